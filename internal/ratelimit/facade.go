package ratelimit

import (
	"context"
	stderrors "errors"
	"time"

	"avatar-transformer/internal/common/errors"
	"avatar-transformer/internal/common/logger"
	"avatar-transformer/internal/common/metrics"
	"avatar-transformer/internal/models"
)

// Scope names a quota.
type Scope string

const (
	ScopeClient Scope = "client"
	ScopeDaily  Scope = "daily"
)

const (
	clientIdentifierPrefix = "transform-image:"
	dailyIdentifier        = "transform-image-daily"
)

// Decision is the verdict of one scope for one request.
type Decision struct {
	Scope     Scope     `json:"scope"`
	Allowed   bool      `json:"allowed"`
	Remaining int       `json:"remaining"`
	Reset     time.Time `json:"reset"`
}

type FacadeDependencies struct {
	Logger    logger.Logger
	PerClient Limiter
	Daily     Limiter
}

// Facade combines the per-client and global daily windows.
type Facade struct {
	logger    logger.Logger
	perClient Limiter
	daily     Limiter
}

func NewFacade(deps FacadeDependencies) *Facade {
	if deps.Logger == nil {
		deps.Logger = logger.NewNoOpLogger()
	}
	return &Facade{
		logger:    deps.Logger.WithFields(map[string]interface{}{"component": "ratelimit"}),
		perClient: deps.PerClient,
		daily:     deps.Daily,
	}
}

// Evaluate consumes quota from both windows, always in the same order and
// without short-circuiting, and returns both decisions.
func (f *Facade) Evaluate(ctx context.Context, clientID string) ([]Decision, error) {
	if clientID == "" {
		clientID = models.DefaultClientIP
	}

	clientRes, clientErr := f.perClient.Allow(ctx, clientIdentifierPrefix+clientID)
	dailyRes, dailyErr := f.daily.Allow(ctx, dailyIdentifier)
	if err := stderrors.Join(clientErr, dailyErr); err != nil {
		f.logger.Error("rate limit store unavailable", map[string]interface{}{
			"clientId": clientID,
			"error":    err.Error(),
		})
		return nil, errors.NewRateLimitStoreError(err)
	}

	decisions := []Decision{
		{Scope: ScopeClient, Allowed: clientRes.Allowed, Remaining: clientRes.Remaining, Reset: clientRes.Reset},
		{Scope: ScopeDaily, Allowed: dailyRes.Allowed, Remaining: dailyRes.Remaining, Reset: dailyRes.Reset},
	}
	for _, d := range decisions {
		outcome := "allowed"
		if !d.Allowed {
			outcome = "denied"
		}
		metrics.RateLimitDecisions.WithLabelValues(string(d.Scope), outcome).Inc()
	}
	return decisions, nil
}

// Check admits the request only if both windows allow it. A daily denial is
// reported in preference to a per-client one.
func (f *Facade) Check(ctx context.Context, clientID string) error {
	decisions, err := f.Evaluate(ctx, clientID)
	if err != nil {
		return err
	}

	var clientDenied bool
	for _, d := range decisions {
		if d.Allowed {
			continue
		}
		if d.Scope == ScopeDaily {
			f.logger.Warn("daily quota exhausted", map[string]interface{}{"clientId": clientID, "reset": d.Reset})
			return errors.NewDailyRateLimitedError().WithMetadata("reset", d.Reset)
		}
		clientDenied = true
	}
	if clientDenied {
		f.logger.Info("client quota exhausted", map[string]interface{}{"clientId": clientID})
		return errors.NewRateLimitedError(clientID)
	}
	return nil
}
