package transformprofile

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"avatar-transformer/internal/common/config"
	"avatar-transformer/internal/common/errors"
	"avatar-transformer/internal/common/logger"
	"avatar-transformer/internal/common/validation"
	"avatar-transformer/internal/orchestrator"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// ==========================
// Mock Flow Implementation
// ==========================

type MockFlow struct {
	mock.Mock
}

func (m *MockFlow) Run(ctx context.Context, req orchestrator.Request, observe orchestrator.Observer) (orchestrator.State, error) {
	args := m.Called(ctx, req, observe)
	return args.Get(0).(orchestrator.State), args.Error(1)
}

// ==========================
// Mock Job Helper
// ==========================

func createMockJob(key int64, variables map[string]interface{}) entities.Job {
	variablesJSON, _ := json.Marshal(variables)

	activatedJob := &pb.ActivatedJob{
		Key:                      key,
		Type:                     TaskType,
		ProcessInstanceKey:       key * 10,
		BpmnProcessId:            "test-process",
		ProcessDefinitionVersion: 1,
		ProcessDefinitionKey:     1,
		ElementId:                "Activity_TransformProfile",
		ElementInstanceKey:       1,
		CustomHeaders:            "{}",
		Worker:                   "test-worker",
		Retries:                  3,
		Deadline:                 0,
		Variables:                string(variablesJSON),
	}

	return entities.Job{ActivatedJob: activatedJob}
}

// ==========================
// Test Helpers
// ==========================

func createValidConfig() *Config {
	return &Config{
		Enabled:       true,
		MaxJobsActive: 5,
		Timeout:       30 * time.Second,
		TokenTTL:      time.Minute,
	}
}

func newTestHandler(t *testing.T, flow FlowRunner) *Handler {
	t.Helper()
	h, err := NewHandler(HandlerOptions{
		CustomConfig: createValidConfig(),
		Flow:         flow,
		Logger:       logger.NewTestLogger(t),
	})
	require.NoError(t, err)
	return h
}

// ==========================
// Handler Creation Tests
// ==========================

func TestHandler_NewHandler(t *testing.T) {
	tests := []struct {
		name      string
		opts      HandlerOptions
		expectErr string
	}{
		{
			name: "valid custom config",
			opts: HandlerOptions{CustomConfig: createValidConfig(), Flow: &MockFlow{}},
		},
		{
			name: "defaults without app config",
			opts: HandlerOptions{Flow: &MockFlow{}},
		},
		{
			name: "invalid timeout",
			opts: HandlerOptions{
				CustomConfig: &Config{Enabled: true, MaxJobsActive: 1, TokenTTL: time.Minute},
				Flow:         &MockFlow{},
			},
			expectErr: "timeout must be positive",
		},
		{
			name:      "missing flow",
			opts:      HandlerOptions{CustomConfig: createValidConfig()},
			expectErr: "flow is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.opts.Logger = logger.NewTestLogger(t)
			h, err := NewHandler(tt.opts)
			if tt.expectErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.expectErr)
				assert.Nil(t, h)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, TaskType, h.GetTaskType())
		})
	}
}

// ==========================
// Input Parsing Tests
// ==========================

func TestHandler_ParseInput(t *testing.T) {
	h := newTestHandler(t, &MockFlow{})

	tests := []struct {
		name      string
		variables map[string]interface{}
		expected  *Input
		errCode   errors.ErrorCode
	}{
		{
			name: "all fields",
			variables: map[string]interface{}{
				"handle":         "alice",
				"turnstileToken": "tok",
				"clientIp":       " 203.0.113.9 ",
			},
			expected: &Input{Handle: "alice", TurnstileToken: "tok", ClientIP: "203.0.113.9"},
		},
		{
			name: "missing client ip falls back to loopback",
			variables: map[string]interface{}{
				"handle":         "@bob",
				"turnstileToken": "tok",
			},
			expected: &Input{Handle: "@bob", TurnstileToken: "tok", ClientIP: "127.0.0.1"},
		},
		{
			name:      "missing handle",
			variables: map[string]interface{}{"turnstileToken": "tok"},
			errCode:   errors.ErrCodeValidation,
		},
		{
			name:      "empty token",
			variables: map[string]interface{}{"handle": "alice", "turnstileToken": ""},
			errCode:   errors.ErrCodeValidation,
		},
		{
			name:      "handle of the wrong type",
			variables: map[string]interface{}{"handle": 42, "turnstileToken": "tok"},
			errCode:   errors.ErrCodeValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input, err := h.parseInput(createMockJob(1, tt.variables))
			if tt.errCode != "" {
				require.Error(t, err)
				assert.Equal(t, tt.errCode, errors.CodeOf(err))
				assert.Nil(t, input)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, input)
		})
	}
}

func TestHandler_ParseInput_MalformedVariables(t *testing.T) {
	h := newTestHandler(t, &MockFlow{})
	job := createMockJob(7, nil)
	job.Variables = "{not json"

	_, err := h.parseInput(job)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInputParsingFailed, errors.CodeOf(err))
}

// ==========================
// Execute Tests
// ==========================

func TestHandler_Execute(t *testing.T) {
	flow := &MockFlow{}
	h := newTestHandler(t, flow)

	var seenToken, seenIP, seenHandle string
	flow.On("Run", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			req := args.Get(1).(orchestrator.Request)
			seenHandle = req.Handle
			seenIP = req.ClientIP
			seenToken, _ = req.Token.Token()
		}).
		Return(orchestrator.State{
			Status:           orchestrator.StatusComplete,
			ProfileImage:     "https://unavatar.io/x/alice",
			TransformedImage: "https://cdn.example.com/alice.png",
		}, nil).Once()

	output, err := h.Execute(context.Background(), &Input{
		Handle:         "alice",
		TurnstileToken: "tok",
		ClientIP:       "203.0.113.9",
	})
	require.NoError(t, err)

	assert.Equal(t, "alice", seenHandle)
	assert.Equal(t, "203.0.113.9", seenIP)
	assert.Equal(t, "tok", seenToken)
	assert.Equal(t, &Output{
		Status:           orchestrator.StatusComplete,
		ProfileImage:     "https://unavatar.io/x/alice",
		TransformedImage: "https://cdn.example.com/alice.png",
	}, output)
	flow.AssertExpectations(t)
}

func TestHandler_Execute_RejectsIncompleteResult(t *testing.T) {
	tests := []struct {
		name  string
		state orchestrator.State
	}{
		{"missing result image", orchestrator.State{Status: orchestrator.StatusComplete, ProfileImage: "https://unavatar.io/x/alice"}},
		{"flow still polling", orchestrator.State{Status: orchestrator.StatusPolling, ProfileImage: "https://unavatar.io/x/alice"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flow := &MockFlow{}
			h := newTestHandler(t, flow)
			flow.On("Run", mock.Anything, mock.Anything, mock.Anything).Return(tt.state, nil).Once()

			output, err := h.Execute(context.Background(), &Input{Handle: "alice", TurnstileToken: "tok", ClientIP: "203.0.113.9"})
			require.Error(t, err)
			assert.Nil(t, output)
			assert.Equal(t, errors.ErrCodeInternal, errors.CodeOf(err))
		})
	}
}

func TestHandler_Execute_FlowErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		bpmnCode string
	}{
		{
			name:     "daily quota shares the rate limit code",
			err:      errors.NewDailyRateLimitedError(),
			bpmnCode: "RATE_LIMITED",
		},
		{
			name:     "profile not found",
			err:      errors.NewResolutionFailedError("ghost", "no image"),
			bpmnCode: "PROFILE_NOT_FOUND",
		},
		{
			name:     "bot challenge",
			err:      errors.NewVerificationFailedError("invalid-input-response"),
			bpmnCode: "VERIFICATION_FAILED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flow := &MockFlow{}
			h := newTestHandler(t, flow)
			flow.On("Run", mock.Anything, mock.Anything, mock.Anything).
				Return(orchestrator.State{Status: orchestrator.StatusError, Error: errors.DisplayMessage(tt.err)}, tt.err).Once()

			output, err := h.Execute(context.Background(), &Input{Handle: "alice", TurnstileToken: "tok"})
			require.Error(t, err)
			assert.Nil(t, output)

			bpmnErr := errors.ConvertToBPMNError(errors.Normalize(err))
			assert.Equal(t, tt.bpmnCode, bpmnErr.Code)
			assert.Equal(t, errors.GetRetryCount(errors.CodeOf(tt.err)), bpmnErr.Retries)
			flow.AssertExpectations(t)
		})
	}
}

// ==========================
// Config Tests
// ==========================

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		expectErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "zero timeout", mutate: func(c *Config) { c.Timeout = 0 }, expectErr: "timeout"},
		{name: "zero max jobs", mutate: func(c *Config) { c.MaxJobsActive = 0 }, expectErr: "max_jobs_active"},
		{name: "zero token ttl", mutate: func(c *Config) { c.TokenTTL = 0 }, expectErr: "token_ttl"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := createValidConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.expectErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.expectErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestConfig_DefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.True(t, cfg.Enabled)
	assert.Equal(t, 5, cfg.MaxJobsActive)
	assert.Equal(t, 120*time.Second, cfg.Timeout)
	assert.NoError(t, cfg.Validate())
}

func TestCreateConfigFromAppConfig(t *testing.T) {
	appConfig := &config.Config{
		Workers: map[string]config.WorkerConfig{
			WorkerName: {Enabled: false, MaxJobsActive: 2, Timeout: 45000},
		},
	}

	cfg := createConfigFromAppConfig(appConfig, nil)
	assert.False(t, cfg.Enabled)
	assert.Equal(t, 2, cfg.MaxJobsActive)
	assert.Equal(t, 45*time.Second, cfg.Timeout)

	custom := createValidConfig()
	assert.Same(t, custom, createConfigFromAppConfig(appConfig, custom))
	assert.Equal(t, DefaultConfig(), createConfigFromAppConfig(&config.Config{}, nil))
}

// ==========================
// Schema And Output Tests
// ==========================

func TestGetInputSchema(t *testing.T) {
	schema := GetInputSchema()
	assert.ElementsMatch(t, []string{"handle", "turnstileToken"}, schema.Required)
	assert.Contains(t, schema.Properties, "clientIp")
}

func TestOutput_WorkflowVariables(t *testing.T) {
	complete := &Output{
		Status:           orchestrator.StatusComplete,
		ProfileImage:     "https://unavatar.io/x/alice",
		TransformedImage: "https://cdn.example.com/alice.png",
	}
	vars := complete.ToVariables()
	assert.Equal(t, map[string]interface{}{
		"status":           "complete",
		"profileImage":     "https://unavatar.io/x/alice",
		"transformedImage": "https://cdn.example.com/alice.png",
	}, vars)
	assert.True(t, validation.ValidateInput(vars, GetOutputSchema()).Valid)

	bare := (&Output{Status: orchestrator.StatusError}).ToVariables()
	assert.Equal(t, map[string]interface{}{"status": "error"}, bare)
	assert.False(t, validation.ValidateInput(bare, GetOutputSchema()).Valid)
}
