// Package transformation is the server action that turns a profile image into
// an AI model portrait: bot check, quota, then provider submission.
package transformation

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"

	"avatar-transformer/internal/common/errors"
	"avatar-transformer/internal/common/logger"
	"avatar-transformer/internal/provider"
	"avatar-transformer/internal/verification"
)

// Input is one transformation attempt.
type Input struct {
	ImageURL string
	Token    string
	ClientIP string
}

// Transformer is the capability the orchestrator depends on.
type Transformer interface {
	Transform(ctx context.Context, in Input) (*Output, error)
}

// RateChecker admits or rejects a client.
type RateChecker interface {
	Check(ctx context.Context, clientID string) error
}

type ServiceDependencies struct {
	Logger    logger.Logger
	Verifier  verification.Verifier
	Limiter   RateChecker
	Submitter Submitter
	// Seed defaults to a uniform draw over the full uint32 range.
	Seed func() uint32
}

type Service struct {
	config    *Config
	logger    logger.Logger
	verifier  verification.Verifier
	limiter   RateChecker
	submitter Submitter
	seed      func() uint32
}

func NewService(deps ServiceDependencies, config *Config) (*Service, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid transformation config: %w", err)
	}
	if deps.Verifier == nil || deps.Limiter == nil || deps.Submitter == nil {
		return nil, fmt.Errorf("verifier, limiter and submitter are required")
	}
	if deps.Logger == nil {
		deps.Logger = logger.NewNoOpLogger()
	}
	if deps.Seed == nil {
		deps.Seed = rand.Uint32
	}
	return &Service{
		config:    config,
		logger:    deps.Logger.WithFields(map[string]interface{}{"component": "transformation"}),
		verifier:  deps.Verifier,
		limiter:   deps.Limiter,
		submitter: deps.Submitter,
		seed:      deps.Seed,
	}, nil
}

// Transform runs the checks in order and stops at the first failure. The
// provider is never contacted unless the token verified and quota remained.
func (s *Service) Transform(ctx context.Context, in Input) (*Output, error) {
	imageURL := strings.TrimSpace(in.ImageURL)
	if imageURL == "" {
		return nil, errors.NewValidationError(errors.MsgImageURLRequired, "image_url is empty")
	}

	log := s.logger.WithFields(map[string]interface{}{"clientIp": in.ClientIP})

	if err := s.verifier.Verify(ctx, in.Token, in.ClientIP); err != nil {
		log.Info("transformation rejected by bot check", nil)
		return nil, err
	}

	if err := s.limiter.Check(ctx, in.ClientIP); err != nil {
		log.Info("transformation rejected by rate limit", map[string]interface{}{"code": string(errors.CodeOf(err))})
		return nil, err
	}

	req := provider.RunRequest{
		ModelName: s.config.ModelName,
		Inputs: provider.Inputs{
			FaceImage:   imageURL,
			Seed:        s.seed(),
			AspectRatio: s.config.AspectRatio,
		},
	}

	out, err := s.submitter.Submit(ctx, req)
	if err != nil {
		log.Error("transformation submission failed", map[string]interface{}{
			"code":  string(errors.CodeOf(err)),
			"error": err.Error(),
		})
		return nil, err
	}

	log.Info("transformation submitted", map[string]interface{}{
		"jobId":   out.JobID,
		"pending": out.Pending(),
		"seed":    req.Inputs.Seed,
	})
	return out, nil
}
