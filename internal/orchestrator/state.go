package orchestrator

import (
	stderrors "errors"
	"fmt"

	"avatar-transformer/internal/models"
)

// Status is the observable stage of a flow.
type Status string

const (
	StatusIdle            Status = "idle"
	StatusFetchingProfile Status = "fetching-profile"
	StatusTransforming    Status = "transforming"
	StatusPolling         Status = "polling"
	StatusComplete        Status = "complete"
	StatusError           Status = "error"
)

// IsTerminal reports whether only Reset can leave s.
func (s Status) IsTerminal() bool {
	return s == StatusComplete || s == StatusError
}

var ErrInvalidTransition = stderrors.New("invalid state transition")

// transitions lists the statuses reachable from each status.
var transitions = map[Status][]Status{
	StatusIdle:            {StatusFetchingProfile, StatusError},
	StatusFetchingProfile: {StatusTransforming, StatusError},
	StatusTransforming:    {StatusPolling, StatusComplete, StatusError},
	StatusPolling:         {StatusComplete, StatusError},
	StatusComplete:        {StatusIdle},
	StatusError:           {StatusIdle},
}

// CanTransition reports whether from may move to to.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// State is what a caller sees of a flow. Error and TransformedImage are never
// both set.
type State struct {
	Status           Status `json:"status"`
	ProfileImage     string `json:"profileImage,omitempty"`
	TransformedImage string `json:"transformedImage,omitempty"`
	Error            string `json:"error,omitempty"`
}

// Idle is the initial state.
func Idle() State {
	return State{Status: StatusIdle}
}

func (s State) to(next State) (State, error) {
	if !CanTransition(s.Status, next.Status) {
		return s, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Status, next.Status)
	}
	return next, nil
}

func (s State) StartFetching() (State, error) {
	return s.to(State{Status: StatusFetchingProfile})
}

func (s State) StartTransforming(profileImage string) (State, error) {
	if profileImage == "" {
		return s, fmt.Errorf("%w: transforming requires a profile image", ErrInvalidTransition)
	}
	return s.to(State{Status: StatusTransforming, ProfileImage: profileImage})
}

func (s State) StartPolling() (State, error) {
	return s.to(State{Status: StatusPolling, ProfileImage: s.ProfileImage})
}

func (s State) Complete(transformedImage string) (State, error) {
	if transformedImage == "" {
		return s, fmt.Errorf("%w: complete requires a result image", ErrInvalidTransition)
	}
	return s.to(State{Status: StatusComplete, ProfileImage: s.ProfileImage, TransformedImage: transformedImage})
}

// Fail keeps only the message.
func (s State) Fail(message string) (State, error) {
	return s.to(State{Status: StatusError, Error: message})
}

func (s State) Reset() (State, error) {
	return s.to(Idle())
}

// DownloadName is the file name offered when saving the result.
func (s State) DownloadName(handle string) (string, error) {
	if s.Status != StatusComplete {
		return "", fmt.Errorf("%w: no result to download in %s", ErrInvalidTransition, s.Status)
	}
	handle = models.NormalizeHandle(handle)
	if handle == "" {
		handle = "avatar"
	}
	return handle + "-ai-model.png", nil
}

// ShareLink is the link copied to the clipboard or shared.
func (s State) ShareLink() (string, error) {
	if s.Status != StatusComplete {
		return "", fmt.Errorf("%w: no result to share in %s", ErrInvalidTransition, s.Status)
	}
	return s.TransformedImage, nil
}
