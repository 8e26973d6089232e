package transformation

import (
	"context"
	"fmt"

	"avatar-transformer/internal/common/errors"
	"avatar-transformer/internal/provider"
)

// Output is what a submission yields: a finished image, or a job to poll.
type Output struct {
	ImageURL string `json:"imageUrl,omitempty"`
	JobID    string `json:"jobId,omitempty"`
}

// Pending reports whether the caller still has to poll for the image.
func (o *Output) Pending() bool {
	return o.ImageURL == "" && o.JobID != ""
}

// Submitter hands a prediction to the provider.
type Submitter interface {
	Submit(ctx context.Context, req provider.RunRequest) (*Output, error)
}

// Awaiter blocks until a submitted job produces an image.
type Awaiter interface {
	Await(ctx context.Context, jobID string) (string, error)
}

// SyncSubmitter returns a finished image. When the provider answers with a
// job id instead of inline output it waits on the Awaiter.
type SyncSubmitter struct {
	api     provider.API
	awaiter Awaiter
}

func NewSyncSubmitter(api provider.API, awaiter Awaiter) *SyncSubmitter {
	return &SyncSubmitter{api: api, awaiter: awaiter}
}

func (s *SyncSubmitter) Submit(ctx context.Context, req provider.RunRequest) (*Output, error) {
	resp, err := run(ctx, s.api, req)
	if err != nil {
		return nil, err
	}

	if len(resp.Output) > 0 && resp.Output[0] != "" {
		return &Output{ImageURL: resp.Output[0], JobID: resp.ID}, nil
	}
	if resp.ID == "" || s.awaiter == nil {
		return nil, errors.NewProviderError(provider.OperationRun, fmt.Errorf("response carried no output"))
	}

	imageURL, err := s.awaiter.Await(ctx, resp.ID)
	if err != nil {
		return nil, err
	}
	return &Output{ImageURL: imageURL, JobID: resp.ID}, nil
}

// AsyncSubmitter returns as soon as the provider has accepted the job.
type AsyncSubmitter struct {
	api provider.API
}

func NewAsyncSubmitter(api provider.API) *AsyncSubmitter {
	return &AsyncSubmitter{api: api}
}

func (s *AsyncSubmitter) Submit(ctx context.Context, req provider.RunRequest) (*Output, error) {
	resp, err := run(ctx, s.api, req)
	if err != nil {
		return nil, err
	}
	if resp.ID == "" {
		return nil, errors.NewProviderError(provider.OperationRun, fmt.Errorf("response carried no job id"))
	}
	return &Output{JobID: resp.ID}, nil
}

func run(ctx context.Context, api provider.API, req provider.RunRequest) (*provider.RunResponse, error) {
	resp, err := api.Run(ctx, req)
	if err != nil {
		return nil, errors.NewProviderError(provider.OperationRun, err)
	}
	if resp.Error != nil {
		return nil, errors.NewProviderError(provider.OperationRun, fmt.Errorf("%s: %s", resp.Error.Name, resp.Error.Message))
	}
	return resp, nil
}

// NewSubmitter picks the submitter for mode.
func NewSubmitter(mode string, api provider.API, awaiter Awaiter) (Submitter, error) {
	switch mode {
	case ModeSync, "":
		return NewSyncSubmitter(api, awaiter), nil
	case ModeAsync:
		return NewAsyncSubmitter(api), nil
	default:
		return nil, fmt.Errorf("unknown transformation mode %q", mode)
	}
}
