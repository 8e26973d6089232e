package verification

import (
	stderrors "errors"
	"sync"
	"time"
)

// DefaultTokenTTL matches the lifetime of a Turnstile response token.
const DefaultTokenTTL = 300 * time.Second

var (
	ErrTokenConsumed = stderrors.New("verification token already consumed")
	ErrTokenExpired  = stderrors.New("verification token expired")
	ErrTokenMissing  = stderrors.New("verification token missing")
)

// TokenSource hands out a challenge token for one transformation attempt.
type TokenSource interface {
	Token() (string, error)
}

// OneTimeToken wraps a token issued by the client-side widget. It yields the
// token at most once, and never after it expires.
type OneTimeToken struct {
	mu        sync.Mutex
	value     string
	expiresAt time.Time
	consumed  bool
	now       func() time.Time
}

func NewOneTimeToken(value string, ttl time.Duration) *OneTimeToken {
	return newOneTimeToken(value, ttl, time.Now)
}

func newOneTimeToken(value string, ttl time.Duration, now func() time.Time) *OneTimeToken {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &OneTimeToken{
		value:     value,
		expiresAt: now().Add(ttl),
		now:       now,
	}
}

func (t *OneTimeToken) Token() (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch {
	case t.consumed:
		return "", ErrTokenConsumed
	case t.value == "":
		return "", ErrTokenMissing
	case !t.now().Before(t.expiresAt):
		return "", ErrTokenExpired
	}
	t.consumed = true
	return t.value, nil
}

// Consumed reports whether Token has already succeeded.
func (t *OneTimeToken) Consumed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.consumed
}
