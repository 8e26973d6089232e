// Package avatar resolves a social-media handle to a usable profile image URL.
package avatar

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"avatar-transformer/internal/common/errors"
	httpclient "avatar-transformer/internal/common/http"
	"avatar-transformer/internal/common/logger"
	"avatar-transformer/internal/common/metrics"
	"avatar-transformer/internal/models"
)

const (
	SourceProxy    = "proxy"
	SourceMetadata = "metadata"
)

// Result is a resolved avatar.
type Result struct {
	ImageURL string `json:"profile_image_url"`
	Source   string `json:"source"`
}

// Resolver is the capability the orchestrator and HTTP layer depend on.
type Resolver interface {
	Resolve(ctx context.Context, handle string) (*Result, error)
}

type ServiceDependencies struct {
	Logger     logger.Logger
	HTTPClient *httpclient.Client
}

type Service struct {
	config *Config
	logger logger.Logger
	client *httpclient.Client
}

func NewService(deps ServiceDependencies, config *Config) (*Service, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid avatar config: %w", err)
	}
	if deps.Logger == nil {
		deps.Logger = logger.NewNoOpLogger()
	}
	if deps.HTTPClient == nil {
		deps.HTTPClient = httpclient.NewClient(config.ProbeTimeout, httpclient.WithUserAgent(config.UserAgent))
	}
	return &Service{
		config: config,
		logger: deps.Logger.WithFields(map[string]interface{}{"component": "avatar"}),
		client: deps.HTTPClient,
	}, nil
}

// Resolve probes the avatar proxy and, when it reports the handle unknown,
// falls back to the profile page's card metadata. Every failure is a
// RESOLUTION_FAILED error; an empty handle is a VALIDATION_ERROR.
func (s *Service) Resolve(ctx context.Context, handle string) (*Result, error) {
	handle = models.NormalizeHandle(handle)
	if handle == "" {
		return nil, errors.NewValidationError(errors.MsgUsernameRequired, "handle is empty")
	}

	log := s.logger.WithFields(map[string]interface{}{"handle": handle})

	canonical := s.canonicalURL(handle)
	status, err := s.probe(ctx, canonical)
	if err != nil {
		log.Warn("avatar probe failed", map[string]interface{}{"error": err.Error()})
		metrics.AvatarResolutions.WithLabelValues(SourceProxy, "error").Inc()
		return nil, errors.NewResolutionFailedError(handle, fmt.Sprintf("probe: %v", err))
	}

	switch {
	case status >= 200 && status < 300:
		metrics.AvatarResolutions.WithLabelValues(SourceProxy, "found").Inc()
		log.Debug("avatar resolved via proxy", map[string]interface{}{"url": canonical})
		return &Result{ImageURL: canonical, Source: SourceProxy}, nil
	case status == http.StatusNotFound:
		metrics.AvatarResolutions.WithLabelValues(SourceProxy, "not_found").Inc()
	default:
		metrics.AvatarResolutions.WithLabelValues(SourceProxy, "error").Inc()
		log.Warn("avatar probe returned unexpected status", map[string]interface{}{"status": status})
		return nil, errors.NewResolutionFailedError(handle, fmt.Sprintf("probe status %d", status))
	}

	imageURL, err := s.fromMetadata(ctx, handle)
	if err != nil {
		log.Warn("avatar metadata fallback failed", map[string]interface{}{"error": err.Error()})
		metrics.AvatarResolutions.WithLabelValues(SourceMetadata, "error").Inc()
		return nil, errors.NewResolutionFailedError(handle, fmt.Sprintf("metadata: %v", err))
	}

	metrics.AvatarResolutions.WithLabelValues(SourceMetadata, "found").Inc()
	log.Info("avatar resolved via profile metadata", map[string]interface{}{"url": imageURL})
	return &Result{ImageURL: imageURL, Source: SourceMetadata}, nil
}

func (s *Service) canonicalURL(handle string) string {
	return strings.TrimRight(s.config.ProxyURL, "/") + "/x/" + url.PathEscape(handle)
}

// probe issues HEAD <canonical>?fallback=false so the proxy answers 404
// instead of serving its own placeholder.
func (s *Service) probe(ctx context.Context, canonical string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, canonical+"?fallback=false", nil)
	if err != nil {
		return 0, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

var errNoAvatar = stderrors.New("no genuine avatar in profile metadata")

func (s *Service) fromMetadata(ctx context.Context, handle string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.MetadataTimeout)
	defer cancel()

	pageURL := strings.TrimRight(s.config.SocialURL, "/") + "/" + url.PathEscape(handle)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "text/html")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("profile page status %d", resp.StatusCode)
	}

	imageURL, err := extractImageMeta(io.LimitReader(resp.Body, s.config.MaxPageBytes))
	if err != nil {
		return "", fmt.Errorf("parse profile page: %w", err)
	}
	if imageURL == "" || !isGenuineAvatar(imageURL) {
		return "", errNoAvatar
	}
	return upscale(imageURL), nil
}
