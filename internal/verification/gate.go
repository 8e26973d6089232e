// Package verification gates transformations behind a bot challenge.
package verification

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"avatar-transformer/internal/common/errors"
	httpclient "avatar-transformer/internal/common/http"
	"avatar-transformer/internal/common/logger"
)

// Verifier validates a client-issued challenge token.
type Verifier interface {
	Verify(ctx context.Context, token, remoteIP string) error
}

type siteverifyResponse struct {
	Success     bool     `json:"success"`
	ErrorCodes  []string `json:"error-codes"`
	Hostname    string   `json:"hostname,omitempty"`
	ChallengeTS string   `json:"challenge_ts,omitempty"`
}

type GateDependencies struct {
	Logger     logger.Logger
	HTTPClient *httpclient.Client
}

// Gate checks tokens against a Turnstile-compatible siteverify endpoint.
type Gate struct {
	config *Config
	logger logger.Logger
	client *httpclient.Client
}

func NewGate(deps GateDependencies, config *Config) (*Gate, error) {
	if config == nil {
		return nil, fmt.Errorf("verification config is required")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid verification config: %w", err)
	}
	if deps.Logger == nil {
		deps.Logger = logger.NewNoOpLogger()
	}
	if deps.HTTPClient == nil {
		deps.HTTPClient = httpclient.NewClient(config.Timeout)
	}
	return &Gate{
		config: config,
		logger: deps.Logger.WithFields(map[string]interface{}{"component": "verification"}),
		client: deps.HTTPClient,
	}, nil
}

// Verify returns nil only when the provider confirms the token. Any other
// outcome, including transport failure, is VERIFICATION_FAILED.
func (g *Gate) Verify(ctx context.Context, token, remoteIP string) error {
	if strings.TrimSpace(token) == "" {
		return errors.NewVerificationFailedError("token is empty")
	}

	ctx, cancel := context.WithTimeout(ctx, g.config.Timeout)
	defer cancel()

	form := url.Values{}
	form.Set("secret", g.config.SecretKey)
	form.Set("response", token)
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.config.VerifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return errors.NewVerificationFailedError(err.Error())
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.client.Do(req)
	if err != nil {
		g.logger.Warn("siteverify request failed", map[string]interface{}{"error": err.Error()})
		return errors.NewVerificationFailedError(fmt.Sprintf("siteverify request: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return errors.NewVerificationFailedError(fmt.Sprintf("siteverify status %d", resp.StatusCode))
	}

	var out siteverifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return errors.NewVerificationFailedError(fmt.Sprintf("decode siteverify: %v", err))
	}

	if !out.Success {
		g.logger.Info("bot challenge rejected", map[string]interface{}{
			"remoteIp":   remoteIP,
			"errorCodes": out.ErrorCodes,
		})
		return errors.NewVerificationFailedError(strings.Join(out.ErrorCodes, ","))
	}
	return nil
}
