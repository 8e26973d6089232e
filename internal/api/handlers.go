// Package api exposes the avatar transformer over HTTP.
package api

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"avatar-transformer/internal/avatar"
	"avatar-transformer/internal/common/errors"
	"avatar-transformer/internal/common/logger"
	"avatar-transformer/internal/common/validation"
	"avatar-transformer/internal/orchestrator"
	"avatar-transformer/internal/provider"
	"avatar-transformer/internal/transformation"
	"avatar-transformer/internal/verification"
)

const maxBodyBytes = 1 << 16

const (
	msgTransformInputRequired = "image_url and model_name are required"
	msgIDRequired             = "ID is required"
	msgProfileFetchFailed     = "Failed to fetch profile image"
	msgStartFailed            = "Failed to start transformation"
	msgStatusFailed           = "Failed to check status"
	msgInvalidBody            = "Invalid JSON body"
)

// FlowRunner runs one end-to-end transformation.
type FlowRunner interface {
	Run(ctx context.Context, req orchestrator.Request, observe orchestrator.Observer) (orchestrator.State, error)
}

// Pinger is a readiness dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Dependencies struct {
	Logger      logger.Logger
	Resolver    avatar.Resolver
	Provider    provider.API
	Flow        FlowRunner
	Checks      map[string]Pinger
	AspectRatio string
	TokenTTL    time.Duration
	Seed        func() uint32
}

type Handler struct {
	logger      logger.Logger
	resolver    avatar.Resolver
	provider    provider.API
	flow        FlowRunner
	checks      map[string]Pinger
	aspectRatio string
	tokenTTL    time.Duration
	seed        func() uint32
}

func NewHandler(deps Dependencies) (*Handler, error) {
	if deps.Resolver == nil || deps.Provider == nil || deps.Flow == nil {
		return nil, fmt.Errorf("resolver, provider and flow are required")
	}
	if deps.Logger == nil {
		deps.Logger = logger.NewNoOpLogger()
	}
	if deps.AspectRatio == "" {
		deps.AspectRatio = transformation.DefaultAspectRatio
	}
	if deps.TokenTTL <= 0 {
		deps.TokenTTL = verification.DefaultTokenTTL
	}
	if deps.Seed == nil {
		deps.Seed = rand.Uint32
	}
	return &Handler{
		logger:      deps.Logger.WithFields(map[string]interface{}{"component": "api"}),
		resolver:    deps.Resolver,
		provider:    deps.Provider,
		flow:        deps.Flow,
		checks:      deps.Checks,
		aspectRatio: deps.AspectRatio,
		tokenTTL:    deps.TokenTTL,
		seed:        deps.Seed,
	}, nil
}

// ==========================
// Request Schemas
// ==========================

var minOne = 1

var transformSchema = validation.JSONSchema{
	Type: "object",
	Properties: map[string]validation.Property{
		"image_url":  {Type: "string", MinLength: &minOne},
		"model_name": {Type: "string", MinLength: &minOne},
	},
	Required:             []string{"image_url", "model_name"},
	AdditionalProperties: true,
}

var flowSchema = validation.JSONSchema{
	Type: "object",
	Properties: map[string]validation.Property{
		"handle":          {Type: "string"},
		"turnstile_token": {Type: "string"},
	},
	AdditionalProperties: true,
}

func decodeBody(r *http.Request) (map[string]interface{}, error) {
	defer r.Body.Close()
	var body map[string]interface{}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&body); err != nil {
		return nil, err
	}
	return body, nil
}

func stringField(body map[string]interface{}, key string) string {
	s, _ := body[key].(string)
	return strings.TrimSpace(s)
}

// ==========================
// Handlers
// ==========================

// ProfileImage handles GET /api/profile-image?username=.
func (h *Handler) ProfileImage(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("username")
	if strings.TrimSpace(username) == "" {
		ErrorResponse(w, http.StatusBadRequest, errors.MsgUsernameRequired)
		return
	}

	res, err := h.resolver.Resolve(r.Context(), username)
	if err != nil {
		switch errors.CodeOf(err) {
		case errors.ErrCodeValidation:
			ErrorResponse(w, http.StatusBadRequest, errors.MsgUsernameRequired)
		case errors.ErrCodeResolutionFailed:
			ErrorResponse(w, http.StatusNotFound, errors.MsgProfileNotFound)
		default:
			h.logger.Error("profile image lookup failed", map[string]interface{}{"error": err.Error()})
			ErrorResponse(w, http.StatusInternalServerError, msgProfileFetchFailed)
		}
		return
	}

	JSONResponse(w, http.StatusOK, res)
}

// StartTransform handles POST /api/transform and returns the provider's reply.
func (h *Handler) StartTransform(w http.ResponseWriter, r *http.Request) {
	body, err := decodeBody(r)
	if err != nil {
		ErrorResponse(w, http.StatusBadRequest, msgInvalidBody)
		return
	}
	if result := validation.ValidateInput(body, transformSchema); !result.Valid {
		ErrorResponse(w, http.StatusBadRequest, msgTransformInputRequired)
		return
	}

	resp, err := h.provider.Run(r.Context(), provider.RunRequest{
		ModelName: stringField(body, "model_name"),
		Inputs: provider.Inputs{
			FaceImage:   stringField(body, "image_url"),
			Seed:        h.seed(),
			AspectRatio: h.aspectRatio,
		},
	})
	if err != nil {
		h.writeProviderError(w, err, msgStartFailed)
		return
	}
	JSONResponse(w, http.StatusOK, resp)
}

// Status handles GET /api/status?id=.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		ErrorResponse(w, http.StatusBadRequest, msgIDRequired)
		return
	}

	job, err := h.provider.Status(r.Context(), id)
	if err != nil {
		h.writeProviderError(w, err, msgStatusFailed)
		return
	}
	JSONResponse(w, http.StatusOK, job)
}

// RunFlow handles POST /api/transformations. The body is the final state;
// the status code reflects the error kind.
func (h *Handler) RunFlow(w http.ResponseWriter, r *http.Request) {
	body, err := decodeBody(r)
	if err != nil {
		ErrorResponse(w, http.StatusBadRequest, msgInvalidBody)
		return
	}
	if result := validation.ValidateInput(body, flowSchema); !result.Valid {
		ErrorResponse(w, http.StatusBadRequest, strings.Join(result.GetErrorMessages(), "; "))
		return
	}

	state, err := h.flow.Run(r.Context(), orchestrator.Request{
		Handle:   stringField(body, "handle"),
		ClientIP: GetClientIP(r),
		Token:    verification.NewOneTimeToken(stringField(body, "turnstile_token"), h.tokenTTL),
	}, nil)

	status := http.StatusOK
	if err != nil {
		status = errors.HTTPStatus(err)
	}
	JSONResponse(w, status, state)
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	JSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready pings every dependency.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := make(map[string]string, len(h.checks))
	ready := true
	for name, p := range h.checks {
		if err := p.Ping(ctx); err != nil {
			checks[name] = err.Error()
			ready = false
			continue
		}
		checks[name] = "ok"
	}

	status := http.StatusOK
	state := "ready"
	if !ready {
		status = http.StatusServiceUnavailable
		state = "not_ready"
	}
	JSONResponse(w, status, map[string]interface{}{"status": state, "checks": checks})
}

// writeProviderError mirrors an upstream rejection's status; anything else
// is a 500.
func (h *Handler) writeProviderError(w http.ResponseWriter, err error, message string) {
	var httpErr *provider.HTTPError
	if stderrors.As(err, &httpErr) {
		h.logger.Warn("provider request rejected", map[string]interface{}{
			"operation": httpErr.Operation,
			"status":    httpErr.StatusCode,
		})
		ErrorResponse(w, httpErr.StatusCode, message)
		return
	}
	h.logger.Error("provider request failed", map[string]interface{}{"error": err.Error()})
	ErrorResponse(w, http.StatusInternalServerError, errors.MsgInternal)
}
