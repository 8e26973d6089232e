// Package orchestrator sequences avatar resolution, verification, quota and
// transformation into one flow with observable states.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"avatar-transformer/internal/avatar"
	"avatar-transformer/internal/common/errors"
	"avatar-transformer/internal/common/logger"
	"avatar-transformer/internal/common/metrics"
	"avatar-transformer/internal/models"
	"avatar-transformer/internal/transformation"
	"avatar-transformer/internal/verification"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "avatar-transformer/orchestrator"

const (
	stageVerifyToken   = "verify_token"
	stageResolveAvatar = "resolve_avatar"
	stageTransform     = "transform"
	stagePoll          = "poll"
)

const historyWriteTimeout = 5 * time.Second

// Request starts a flow.
type Request struct {
	Handle   string
	ClientIP string
	Token    verification.TokenSource
}

// Observer receives every state the flow enters, in order.
type Observer func(State)

// Recorder persists finished flows.
type Recorder interface {
	Record(ctx context.Context, record models.TransformationRecord) error
}

// FlowMetrics receives one sample per finished flow.
type FlowMetrics interface {
	RecordFlow(ctx context.Context, duration time.Duration, status string)
}

type Dependencies struct {
	Logger      logger.Logger
	Resolver    avatar.Resolver
	Transformer transformation.Transformer
	Poller      transformation.Awaiter
	Recorder    Recorder
	Metrics     FlowMetrics
	Tracer      trace.Tracer
	Now         func() time.Time
	NewID       func() string
}

type Flow struct {
	logger      logger.Logger
	resolver    avatar.Resolver
	transformer transformation.Transformer
	poller      transformation.Awaiter
	recorder    Recorder
	metrics     FlowMetrics
	tracer      trace.Tracer
	now         func() time.Time
	newID       func() string
}

func NewFlow(deps Dependencies) (*Flow, error) {
	if deps.Resolver == nil || deps.Transformer == nil {
		return nil, fmt.Errorf("resolver and transformer are required")
	}
	if deps.Logger == nil {
		deps.Logger = logger.NewNoOpLogger()
	}
	if deps.Tracer == nil {
		deps.Tracer = otel.Tracer(tracerName)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}
	return &Flow{
		logger:      deps.Logger.WithFields(map[string]interface{}{"component": "orchestrator"}),
		resolver:    deps.Resolver,
		transformer: deps.Transformer,
		poller:      deps.Poller,
		recorder:    deps.Recorder,
		metrics:     deps.Metrics,
		tracer:      deps.Tracer,
		now:         deps.Now,
		newID:       deps.NewID,
	}, nil
}

// tracker holds the current state and reports each transition.
type tracker struct {
	state   State
	observe Observer
}

func (t *tracker) move(next State, err error) error {
	if err != nil {
		return errors.NewInternalError(err)
	}
	t.state = next
	if t.observe != nil {
		t.observe(next)
	}
	return nil
}

// Run drives one flow to complete or error. The returned State carries only
// the display message on failure; the error keeps its code for callers that
// map it to a status.
func (f *Flow) Run(ctx context.Context, req Request, observe Observer) (State, error) {
	flowID := f.newID()
	handle := models.NormalizeHandle(req.Handle)
	clientIP := req.ClientIP
	if clientIP == "" {
		clientIP = models.DefaultClientIP
	}
	started := f.now()

	log := f.logger.WithFields(map[string]interface{}{
		"flowId":   flowID,
		"handle":   handle,
		"clientIp": clientIP,
	})

	ctx, span := f.tracer.Start(ctx, "flow.run", trace.WithAttributes(
		attribute.String("flow.id", flowID),
		attribute.String("flow.handle", handle),
	))
	defer span.End()

	t := &tracker{state: Idle(), observe: observe}
	err := f.execute(ctx, t, handle, clientIP, req.Token, log)
	profileImage := t.state.ProfileImage
	if err != nil {
		message := errors.DisplayMessage(err)
		if moveErr := t.move(t.state.Fail(message)); moveErr != nil {
			log.Error("failed to enter error state", map[string]interface{}{"error": moveErr.Error()})
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, string(errors.CodeOf(err)))
		log.Warn("flow failed", map[string]interface{}{
			"code":    string(errors.CodeOf(err)),
			"message": message,
			"error":   err.Error(),
		})
	} else {
		log.Info("flow complete", map[string]interface{}{"transformedImage": t.state.TransformedImage})
	}

	f.finish(ctx, flowID, handle, clientIP, profileImage, started, t.state, err)
	return t.state, err
}

func (f *Flow) execute(ctx context.Context, t *tracker, handle, clientIP string, source verification.TokenSource, log logger.Logger) error {
	if handle == "" {
		return errors.NewValidationError(errors.MsgHandleRequired, "handle is empty")
	}

	var token string
	err := f.stage(ctx, stageVerifyToken, func(ctx context.Context) error {
		if source == nil {
			return errors.NewVerificationFailedError(verification.ErrTokenMissing.Error())
		}
		var tokenErr error
		token, tokenErr = source.Token()
		if tokenErr != nil {
			return errors.NewVerificationFailedError(tokenErr.Error())
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := t.move(t.state.StartFetching()); err != nil {
		return err
	}

	var profile *avatar.Result
	err = f.stage(ctx, stageResolveAvatar, func(ctx context.Context) error {
		var resolveErr error
		profile, resolveErr = f.resolver.Resolve(ctx, handle)
		return resolveErr
	})
	if err != nil {
		return err
	}
	log.Debug("profile image resolved", map[string]interface{}{"profileImage": profile.ImageURL, "source": profile.Source})

	if err := t.move(t.state.StartTransforming(profile.ImageURL)); err != nil {
		return err
	}

	var out *transformation.Output
	err = f.stage(ctx, stageTransform, func(ctx context.Context) error {
		var transformErr error
		out, transformErr = f.transformer.Transform(ctx, transformation.Input{
			ImageURL: profile.ImageURL,
			Token:    token,
			ClientIP: clientIP,
		})
		return transformErr
	})
	if err != nil {
		return err
	}

	if !out.Pending() {
		return t.move(t.state.Complete(out.ImageURL))
	}

	if err := t.move(t.state.StartPolling()); err != nil {
		return err
	}
	if f.poller == nil {
		return errors.NewInternalError(fmt.Errorf("job %s needs polling but no poller is configured", out.JobID))
	}

	log.Debug("polling for result", map[string]interface{}{"jobId": out.JobID})
	var imageURL string
	err = f.stage(ctx, stagePoll, func(ctx context.Context) error {
		var pollErr error
		imageURL, pollErr = f.poller.Await(ctx, out.JobID)
		return pollErr
	})
	if err != nil {
		return err
	}
	return t.move(t.state.Complete(imageURL))
}

// stage runs fn inside a span named flow.<name> and records its duration.
func (f *Flow) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := f.tracer.Start(ctx, "flow."+name)
	defer span.End()

	start := f.now()
	err := fn(ctx)
	metrics.FlowStageDuration.WithLabelValues(name).Observe(f.now().Sub(start).Seconds())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(errors.CodeOf(err)))
	}
	return err
}

func (f *Flow) finish(ctx context.Context, flowID, handle, clientIP, profileImage string, started time.Time, state State, err error) {
	duration := f.now().Sub(started)

	var code string
	if err != nil {
		code = string(errors.CodeOf(err))
	}
	metrics.FlowsTotal.WithLabelValues(string(state.Status), code).Inc()
	if f.metrics != nil {
		f.metrics.RecordFlow(ctx, duration, string(state.Status))
	}

	if f.recorder == nil {
		return
	}

	// The caller may have abandoned the flow; the audit row is still written.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), historyWriteTimeout)
	defer cancel()

	record := models.TransformationRecord{
		FlowID:           flowID,
		Handle:           handle,
		ClientIP:         clientIP,
		Status:           string(state.Status),
		ProfileImage:     profileImage,
		TransformedImage: state.TransformedImage,
		ErrorCode:        code,
		ErrorMessage:     state.Error,
		DurationMs:       duration.Milliseconds(),
		CreatedAt:        started.UTC(),
	}
	if recErr := f.recorder.Record(writeCtx, record); recErr != nil {
		f.logger.Warn("failed to record transformation history", map[string]interface{}{
			"flowId": flowID,
			"error":  recErr.Error(),
		})
	}
}
