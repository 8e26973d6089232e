// Package poller waits for an asynchronous prediction to finish.
package poller

import (
	"context"
	"fmt"
	"time"

	"avatar-transformer/internal/common/errors"
	"avatar-transformer/internal/common/logger"
	"avatar-transformer/internal/common/metrics"
	"avatar-transformer/internal/models"
)

const (
	DefaultMaxAttempts = 30
	DefaultInterval    = 2 * time.Second
)

// StatusClient queries the provider for a job's current state.
type StatusClient interface {
	Status(ctx context.Context, id string) (*models.PredictionJob, error)
}

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

type Config struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	Interval    time.Duration `mapstructure:"interval"`
}

func DefaultConfig() *Config {
	return &Config{MaxAttempts: DefaultMaxAttempts, Interval: DefaultInterval}
}

func (c *Config) Validate() error {
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1")
	}
	if c.Interval < 0 {
		return fmt.Errorf("interval must not be negative")
	}
	return nil
}

// Result is a finished job.
type Result struct {
	JobID    string
	ImageURL string
	Attempts int
}

type Dependencies struct {
	Logger logger.Logger
	Client StatusClient
	Sleep  SleepFunc
}

type Poller struct {
	config *Config
	logger logger.Logger
	client StatusClient
	sleep  SleepFunc
}

func New(deps Dependencies, config *Config) (*Poller, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid poller config: %w", err)
	}
	if deps.Client == nil {
		return nil, fmt.Errorf("status client is required")
	}
	if deps.Logger == nil {
		deps.Logger = logger.NewNoOpLogger()
	}
	if deps.Sleep == nil {
		deps.Sleep = sleepContext
	}
	return &Poller{
		config: config,
		logger: deps.Logger.WithFields(map[string]interface{}{"component": "poller"}),
		client: deps.Client,
		sleep:  deps.Sleep,
	}, nil
}

// Poll queries the job up to MaxAttempts times, Interval apart, and stops at
// the first terminal status. Query errors consume an attempt. Exhausting the
// budget is POLL_TIMEOUT; a failed, canceled or empty completed job is
// JOB_FAILED. Cancelling ctx abandons the loop.
func (p *Poller) Poll(ctx context.Context, jobID string) (*Result, error) {
	log := p.logger.WithFields(map[string]interface{}{"jobId": jobID})

	for attempt := 1; attempt <= p.config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		job, err := p.client.Status(ctx, jobID)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Warn("status query failed", map[string]interface{}{"attempt": attempt, "error": err.Error()})
		case job.Status == models.PredictionCompleted:
			url := job.FirstOutput()
			if url == "" {
				metrics.PollAttempts.WithLabelValues("failed").Observe(float64(attempt))
				return nil, errors.NewJobFailedError(jobID, "completed without output")
			}
			metrics.PollAttempts.WithLabelValues("completed").Observe(float64(attempt))
			log.Info("prediction completed", map[string]interface{}{"attempts": attempt})
			return &Result{JobID: jobID, ImageURL: url, Attempts: attempt}, nil
		case job.Status == models.PredictionFailed, job.Status == models.PredictionCanceled:
			metrics.PollAttempts.WithLabelValues("failed").Observe(float64(attempt))
			return nil, errors.NewJobFailedError(jobID, failureReason(job))
		default:
			log.Debug("prediction pending", map[string]interface{}{"attempt": attempt, "status": string(job.Status)})
		}

		if attempt < p.config.MaxAttempts {
			if err := p.sleep(ctx, p.config.Interval); err != nil {
				return nil, err
			}
		}
	}

	metrics.PollAttempts.WithLabelValues("timeout").Observe(float64(p.config.MaxAttempts))
	log.Warn("prediction did not finish in time", map[string]interface{}{"attempts": p.config.MaxAttempts})
	return nil, errors.NewPollTimeoutError(jobID, p.config.MaxAttempts)
}

// Await is Poll reduced to the output URL.
func (p *Poller) Await(ctx context.Context, jobID string) (string, error) {
	res, err := p.Poll(ctx, jobID)
	if err != nil {
		return "", err
	}
	return res.ImageURL, nil
}

func failureReason(job *models.PredictionJob) string {
	if job.Error != nil {
		if job.Error.Message != "" {
			return fmt.Sprintf("%s: %s", job.Error.Name, job.Error.Message)
		}
		return job.Error.Name
	}
	return string(job.Status)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
