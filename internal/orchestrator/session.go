package orchestrator

import (
	"context"
	stderrors "errors"
	"sync"
)

// ErrFlowInProgress is returned by Submit while the session's previous flow
// has not finished.
var ErrFlowInProgress = stderrors.New("flow already in progress")

// Session holds one user's current flow state and runs at most one flow at
// a time.
type Session struct {
	flow *Flow

	mu      sync.Mutex
	state   State
	handle  string
	running bool
}

func NewSession(flow *Flow) *Session {
	return &Session{flow: flow, state: Idle()}
}

// Submit runs a flow and mirrors every state it enters. A finished session
// is returned to idle first. A second Submit while a flow runs is rejected
// with ErrFlowInProgress and leaves the session untouched.
func (s *Session) Submit(ctx context.Context, req Request) (State, error) {
	s.mu.Lock()
	if s.running {
		current := s.state
		s.mu.Unlock()
		return current, ErrFlowInProgress
	}
	if s.state.Status.IsTerminal() {
		next, err := s.state.Reset()
		if err != nil {
			s.mu.Unlock()
			return s.state, err
		}
		s.state = next
	}
	s.running = true
	s.handle = req.Handle
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	return s.flow.Run(ctx, req, func(next State) {
		s.mu.Lock()
		s.state = next
		s.mu.Unlock()
	})
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Reset returns a finished session to idle.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, err := s.state.Reset()
	if err != nil {
		return err
	}
	s.state = next
	return nil
}

// DownloadName names the result file after the submitted handle.
func (s *Session) DownloadName() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.DownloadName(s.handle)
}
