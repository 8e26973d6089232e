package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Transition Table
// ==========================

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusIdle, StatusFetchingProfile, true},
		{StatusIdle, StatusError, true},
		{StatusIdle, StatusTransforming, false},
		{StatusFetchingProfile, StatusTransforming, true},
		{StatusFetchingProfile, StatusComplete, false},
		{StatusTransforming, StatusComplete, true},
		{StatusTransforming, StatusPolling, true},
		{StatusPolling, StatusComplete, true},
		{StatusPolling, StatusTransforming, false},
		{StatusComplete, StatusIdle, true},
		{StatusComplete, StatusError, false},
		{StatusError, StatusIdle, true},
		{StatusError, StatusFetchingProfile, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestState_HappyPathWithPolling(t *testing.T) {
	s := Idle()

	s, err := s.StartFetching()
	require.NoError(t, err)
	s, err = s.StartTransforming("https://unavatar.io/x/alice")
	require.NoError(t, err)
	s, err = s.StartPolling()
	require.NoError(t, err)
	assert.Equal(t, "https://unavatar.io/x/alice", s.ProfileImage)

	s, err = s.Complete("https://cdn/r.png")
	require.NoError(t, err)
	assert.Equal(t, State{
		Status:           StatusComplete,
		ProfileImage:     "https://unavatar.io/x/alice",
		TransformedImage: "https://cdn/r.png",
	}, s)

	s, err = s.Reset()
	require.NoError(t, err)
	assert.Equal(t, Idle(), s)
}

func TestState_InvalidTransitions(t *testing.T) {
	_, err := Idle().Complete("https://cdn/r.png")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = Idle().Reset()
	assert.ErrorIs(t, err, ErrInvalidTransition)

	fetching, _ := Idle().StartFetching()
	_, err = fetching.StartTransforming("")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	done := State{Status: StatusComplete, ProfileImage: "p", TransformedImage: "r"}
	_, err = done.Fail("late")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestState_FailCarriesOnlyMessage(t *testing.T) {
	for _, from := range []Status{StatusIdle, StatusFetchingProfile, StatusTransforming, StatusPolling} {
		s := State{Status: from, ProfileImage: "https://unavatar.io/x/alice"}

		failed, err := s.Fail("Transformation failed.")
		require.NoError(t, err, "from %s", from)
		assert.Equal(t, State{Status: StatusError, Error: "Transformation failed."}, failed)
		assert.Empty(t, failed.TransformedImage)
	}
}

// ==========================
// Export Actions
// ==========================

func TestState_ExportActions(t *testing.T) {
	done := State{Status: StatusComplete, ProfileImage: "p", TransformedImage: "https://cdn/r.png"}

	name, err := done.DownloadName("@alice")
	require.NoError(t, err)
	assert.Equal(t, "alice-ai-model.png", name)

	link, err := done.ShareLink()
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/r.png", link)

	_, err = Idle().DownloadName("alice")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = State{Status: StatusError, Error: "x"}.ShareLink()
	assert.ErrorIs(t, err, ErrInvalidTransition)
}
