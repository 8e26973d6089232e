package transformprofile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"avatar-transformer/internal/common/config"
	"avatar-transformer/internal/common/errors"
	"avatar-transformer/internal/common/logger"
	"avatar-transformer/internal/common/metrics"
	"avatar-transformer/internal/common/validation"
	"avatar-transformer/internal/models"
	"avatar-transformer/internal/orchestrator"
	"avatar-transformer/internal/verification"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const TaskType = "avatar.profile.transform"

// FlowRunner runs one end-to-end transformation.
type FlowRunner interface {
	Run(ctx context.Context, req orchestrator.Request, observe orchestrator.Observer) (orchestrator.State, error)
}

type Handler struct {
	config       *Config
	logger       logger.Logger
	flow         FlowRunner
	errorHandler *errors.ErrorHandler
}

type HandlerOptions struct {
	AppConfig    *config.Config
	CustomConfig *Config
	Flow         FlowRunner
	Logger       logger.Logger
}

func NewHandler(opts HandlerOptions) (*Handler, error) {
	workerConfig := createConfigFromAppConfig(opts.AppConfig, opts.CustomConfig)

	if err := workerConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration for %s: %w", WorkerName, err)
	}
	if opts.Flow == nil {
		return nil, fmt.Errorf("flow is required for %s", WorkerName)
	}

	var loggerInstance logger.Logger
	if opts.Logger != nil {
		loggerInstance = opts.Logger
	} else {
		loggerInstance = logger.NewStructured("info", "json")
	}

	return &Handler{
		config:       workerConfig,
		logger:       loggerInstance,
		flow:         opts.Flow,
		errorHandler: errors.NewErrorHandler(loggerInstance),
	}, nil
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	startTime := time.Now()
	metrics.WorkerJobsActive.WithLabelValues(TaskType).Inc()
	defer metrics.WorkerJobsActive.WithLabelValues(TaskType).Dec()

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	h.logger.Info("Processing avatar transformation job", map[string]interface{}{
		"jobKey":             job.GetKey(),
		"processInstanceKey": job.GetProcessInstanceKey(),
		"worker":             TaskType,
	})

	input, err := h.parseInput(job)
	if err != nil {
		metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(errors.CodeOf(err))).Inc()
		h.errorHandler.HandleJobError(ctx, client, job, err)
		return
	}

	output, err := h.Execute(ctx, input)
	if err != nil {
		metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(errors.CodeOf(err))).Inc()
		h.errorHandler.HandleJobError(ctx, client, job, err)
		return
	}

	h.completeJob(ctx, client, job, output)
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(startTime).Seconds())
}

func (h *Handler) parseInput(job entities.Job) (*Input, error) {
	variables, err := job.GetVariablesAsMap()
	if err != nil {
		return nil, errors.NewInputParsingError(err)
	}

	validationResult := validation.ValidateInput(variables, GetInputSchema())
	if !validationResult.Valid {
		return nil, errors.NewValidationError(
			"Input validation failed",
			fmt.Sprintf("Validation errors: %v", validationResult.GetErrorMessages()),
		)
	}

	input := &Input{
		Handle:         variables["handle"].(string),
		TurnstileToken: variables["turnstileToken"].(string),
		ClientIP:       models.DefaultClientIP,
	}
	if ip, ok := variables["clientIp"].(string); ok && strings.TrimSpace(ip) != "" {
		input.ClientIP = strings.TrimSpace(ip)
	}
	return input, nil
}

// Execute runs the flow for one job input. The token is single use, so a
// retried job needs a fresh one from the process.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	state, err := h.flow.Run(ctx, orchestrator.Request{
		Handle:   input.Handle,
		ClientIP: input.ClientIP,
		Token:    verification.NewOneTimeToken(input.TurnstileToken, h.config.TokenTTL),
	}, nil)
	if err != nil {
		return nil, err
	}

	output := &Output{
		Status:           state.Status,
		ProfileImage:     state.ProfileImage,
		TransformedImage: state.TransformedImage,
	}
	if result := validation.ValidateInput(output.ToVariables(), GetOutputSchema()); !result.Valid {
		return nil, errors.NewInternalError(fmt.Errorf("incomplete flow result: %v", result.GetErrorMessages()))
	}
	return output, nil
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, output *Output) {
	request, err := client.NewCompleteJobCommand().JobKey(job.GetKey()).VariablesFromMap(output.ToVariables())
	if err != nil {
		h.logger.Error("Failed to create complete job command", map[string]interface{}{
			"jobKey": job.GetKey(),
			"error":  err.Error(),
			"worker": TaskType,
		})
		return
	}

	if _, err := request.Send(ctx); err != nil {
		h.logger.Error("Failed to complete job", map[string]interface{}{
			"jobKey": job.GetKey(),
			"error":  err.Error(),
			"worker": TaskType,
		})
		return
	}

	h.logger.Info("Completed avatar transformation job", map[string]interface{}{
		"jobKey":           job.GetKey(),
		"status":           string(output.Status),
		"transformedImage": output.TransformedImage,
		"worker":           TaskType,
	})
}

func (h *Handler) GetTaskType() string {
	return TaskType
}

func (h *Handler) IsEnabled() bool {
	return h.config.Enabled
}

func (h *Handler) GetConfig() *Config {
	return h.config
}
