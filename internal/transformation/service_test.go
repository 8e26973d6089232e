package transformation

import (
	"context"
	"testing"
	"time"

	"avatar-transformer/internal/common/errors"
	"avatar-transformer/internal/common/logger"
	"avatar-transformer/internal/models"
	"avatar-transformer/internal/provider"
	"avatar-transformer/internal/ratelimit"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// ==========================
// Mocks
// ==========================

type MockVerifier struct {
	mock.Mock
}

func (m *MockVerifier) Verify(ctx context.Context, token, remoteIP string) error {
	return m.Called(ctx, token, remoteIP).Error(0)
}

type MockRateChecker struct {
	mock.Mock
}

func (m *MockRateChecker) Check(ctx context.Context, clientID string) error {
	return m.Called(ctx, clientID).Error(0)
}

type MockAPI struct {
	mock.Mock
}

func (m *MockAPI) Run(ctx context.Context, req provider.RunRequest) (*provider.RunResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*provider.RunResponse)
	return resp, args.Error(1)
}

func (m *MockAPI) Status(ctx context.Context, id string) (*models.PredictionJob, error) {
	args := m.Called(ctx, id)
	job, _ := args.Get(0).(*models.PredictionJob)
	return job, args.Error(1)
}

type MockAwaiter struct {
	mock.Mock
}

func (m *MockAwaiter) Await(ctx context.Context, jobID string) (string, error) {
	args := m.Called(ctx, jobID)
	return args.String(0), args.Error(1)
}

type fixture struct {
	verifier *MockVerifier
	limiter  *MockRateChecker
	api      *MockAPI
	awaiter  *MockAwaiter
}

func newFixture() *fixture {
	return &fixture{
		verifier: new(MockVerifier),
		limiter:  new(MockRateChecker),
		api:      new(MockAPI),
		awaiter:  new(MockAwaiter),
	}
}

func (f *fixture) service(t *testing.T, mode string) *Service {
	t.Helper()
	submitter, err := NewSubmitter(mode, f.api, f.awaiter)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.Mode = mode
	svc, err := NewService(ServiceDependencies{
		Logger:    logger.NewTestLogger(t),
		Verifier:  f.verifier,
		Limiter:   f.limiter,
		Submitter: submitter,
		Seed:      func() uint32 { return 7 },
	}, cfg)
	require.NoError(t, err)
	return svc
}

func (f *fixture) admitAll() {
	f.verifier.On("Verify", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.limiter.On("Check", mock.Anything, mock.Anything).Return(nil)
}

var expectedRequest = provider.RunRequest{
	ModelName: "face-to-model",
	Inputs:    provider.Inputs{FaceImage: "https://unavatar.io/x/alice", Seed: 7, AspectRatio: "2:3"},
}

// ==========================
// Transform Tests
// ==========================

func TestTransform_SyncInlineOutput(t *testing.T) {
	f := newFixture()
	f.verifier.On("Verify", mock.Anything, "tok", "203.0.113.9").Return(nil)
	f.limiter.On("Check", mock.Anything, "203.0.113.9").Return(nil)
	f.api.On("Run", mock.Anything, expectedRequest).
		Return(&provider.RunResponse{ID: "1", Status: models.PredictionCompleted, Output: []string{"https://cdn/r1.png"}}, nil)

	out, err := f.service(t, ModeSync).Transform(context.Background(), Input{
		ImageURL: "https://unavatar.io/x/alice",
		Token:    "tok",
		ClientIP: "203.0.113.9",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/r1.png", out.ImageURL)
	assert.False(t, out.Pending())
	f.awaiter.AssertNotCalled(t, "Await", mock.Anything, mock.Anything)
	f.verifier.AssertExpectations(t)
	f.limiter.AssertExpectations(t)
	f.api.AssertExpectations(t)
}

func TestTransform_SyncWaitsForJob(t *testing.T) {
	f := newFixture()
	f.admitAll()
	f.api.On("Run", mock.Anything, expectedRequest).Return(&provider.RunResponse{ID: "42", Status: models.PredictionInQueue}, nil)
	f.awaiter.On("Await", mock.Anything, "42").Return("https://cdn/r42.png", nil)

	out, err := f.service(t, ModeSync).Transform(context.Background(), Input{ImageURL: "https://unavatar.io/x/alice", Token: "tok"})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/r42.png", out.ImageURL)
	assert.Equal(t, "42", out.JobID)
}

func TestTransform_SyncPropagatesPollFailure(t *testing.T) {
	f := newFixture()
	f.admitAll()
	f.api.On("Run", mock.Anything, mock.Anything).Return(&provider.RunResponse{ID: "42"}, nil)
	f.awaiter.On("Await", mock.Anything, "42").Return("", errors.NewPollTimeoutError("42", 30))

	_, err := f.service(t, ModeSync).Transform(context.Background(), Input{ImageURL: "https://img/a.png", Token: "tok"})
	assert.Equal(t, errors.ErrCodePollTimeout, errors.CodeOf(err))
}

func TestTransform_AsyncReturnsJob(t *testing.T) {
	f := newFixture()
	f.admitAll()
	f.api.On("Run", mock.Anything, expectedRequest).Return(&provider.RunResponse{ID: "42"}, nil)

	out, err := f.service(t, ModeAsync).Transform(context.Background(), Input{ImageURL: "https://unavatar.io/x/alice", Token: "tok"})
	require.NoError(t, err)
	assert.Equal(t, "42", out.JobID)
	assert.True(t, out.Pending())
	f.awaiter.AssertNotCalled(t, "Await", mock.Anything, mock.Anything)
}

func TestTransform_ProviderFailures(t *testing.T) {
	tests := []struct {
		name string
		mode string
		resp *provider.RunResponse
		err  error
	}{
		{name: "rejected", mode: ModeSync, err: &provider.HTTPError{Operation: provider.OperationRun, StatusCode: 422, Body: "ImageLoadError"}},
		{name: "error payload", mode: ModeSync, resp: &provider.RunResponse{ID: "1", Error: &models.PredictionError{Name: "PoseError", Message: "no face"}}},
		{name: "sync without output or id", mode: ModeSync, resp: &provider.RunResponse{}},
		{name: "async without id", mode: ModeAsync, resp: &provider.RunResponse{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.admitAll()
			f.api.On("Run", mock.Anything, mock.Anything).Return(tt.resp, tt.err)

			_, err := f.service(t, tt.mode).Transform(context.Background(), Input{ImageURL: "https://img/a.png", Token: "tok"})
			require.Error(t, err)
			assert.Equal(t, errors.ErrCodeProviderError, errors.CodeOf(err))
			assert.Equal(t, "Internal server error", errors.DisplayMessage(err))
			assert.NotContains(t, errors.DisplayMessage(err), "ImageLoadError")
		})
	}
}

func TestTransform_GatesStopBeforeProvider(t *testing.T) {
	tests := []struct {
		name      string
		verifyErr error
		limitErr  error
		code      errors.ErrorCode
	}{
		{name: "bot check fails", verifyErr: errors.NewVerificationFailedError("invalid-input-response"), code: errors.ErrCodeVerificationFailed},
		{name: "client quota", limitErr: errors.NewRateLimitedError("203.0.113.9"), code: errors.ErrCodeRateLimited},
		{name: "daily quota", limitErr: errors.NewDailyRateLimitedError(), code: errors.ErrCodeRateLimitedDaily},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.verifier.On("Verify", mock.Anything, mock.Anything, mock.Anything).Return(tt.verifyErr)
			f.limiter.On("Check", mock.Anything, mock.Anything).Return(tt.limitErr)

			_, err := f.service(t, ModeSync).Transform(context.Background(), Input{ImageURL: "https://img/a.png", Token: "tok", ClientIP: "203.0.113.9"})
			assert.Equal(t, tt.code, errors.CodeOf(err))
			f.api.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
			if tt.verifyErr != nil {
				f.limiter.AssertNotCalled(t, "Check", mock.Anything, mock.Anything)
			}
		})
	}
}

func TestTransform_MissingImage(t *testing.T) {
	f := newFixture()

	_, err := f.service(t, ModeSync).Transform(context.Background(), Input{ImageURL: "  ", Token: "tok"})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeValidation, errors.CodeOf(err))
	assert.Equal(t, "image_url is required", errors.DisplayMessage(err))
	f.verifier.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything, mock.Anything)
}

// ==========================
// Integration With The Sliding Window
// ==========================

func TestTransform_SixthRequestFromClientIsDenied(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	facade := ratelimit.NewFacade(ratelimit.FacadeDependencies{
		PerClient: ratelimit.NewSlidingWindow(rdb, "@fashn-ai/avatar", 5, 10*time.Minute),
		Daily:     ratelimit.NewSlidingWindow(rdb, "@fashn-ai/avatar", 100, 24*time.Hour),
	})

	f := newFixture()
	f.verifier.On("Verify", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.api.On("Run", mock.Anything, mock.Anything).Return(&provider.RunResponse{ID: "1", Output: []string{"https://cdn/r.png"}}, nil)

	svc, err := NewService(ServiceDependencies{
		Logger:    logger.NewTestLogger(t),
		Verifier:  f.verifier,
		Limiter:   facade,
		Submitter: NewSyncSubmitter(f.api, nil),
	}, DefaultConfig())
	require.NoError(t, err)

	in := Input{ImageURL: "https://img/a.png", Token: "tok", ClientIP: "198.51.100.4"}
	for i := 0; i < 5; i++ {
		_, err := svc.Transform(context.Background(), in)
		require.NoError(t, err, "request %d", i+1)
	}

	_, err = svc.Transform(context.Background(), in)
	assert.Equal(t, errors.ErrCodeRateLimited, errors.CodeOf(err))
	assert.Equal(t, "Rate limit exceeded. Please try again later.", errors.DisplayMessage(err))
	f.api.AssertNumberOfCalls(t, "Run", 5)
}

// ==========================
// Construction
// ==========================

func TestNewService_DefaultSeedCoversFullRange(t *testing.T) {
	f := newFixture()
	svc, err := NewService(ServiceDependencies{Verifier: f.verifier, Limiter: f.limiter, Submitter: NewAsyncSubmitter(f.api)}, nil)
	require.NoError(t, err)

	// uint32 bounds the draw to [0, 2^32-1]; a handful of draws must not all collide.
	seen := map[uint32]struct{}{}
	for i := 0; i < 8; i++ {
		seen[svc.seed()] = struct{}{}
	}
	assert.Greater(t, len(seen), 1)
}

func TestNewService_RequiresCollaborators(t *testing.T) {
	_, err := NewService(ServiceDependencies{}, DefaultConfig())
	assert.Error(t, err)
}

func TestNewSubmitter_UnknownMode(t *testing.T) {
	_, err := NewSubmitter("stream", new(MockAPI), nil)
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.Mode = "batch"
	assert.Error(t, cfg.Validate())
}
