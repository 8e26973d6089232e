// cmd/transformer/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexflint/go-arg"
	"go.uber.org/zap"

	"avatar-transformer/internal/api"
	"avatar-transformer/internal/avatar"
	"avatar-transformer/internal/common/camunda"
	"avatar-transformer/internal/common/config"
	"avatar-transformer/internal/common/database"
	httpclient "avatar-transformer/internal/common/http"
	"avatar-transformer/internal/common/logger"
	"avatar-transformer/internal/common/observability"
	"avatar-transformer/internal/history"
	"avatar-transformer/internal/orchestrator"
	"avatar-transformer/internal/poller"
	"avatar-transformer/internal/provider"
	"avatar-transformer/internal/ratelimit"
	"avatar-transformer/internal/transformation"
	"avatar-transformer/internal/verification"
	tp "avatar-transformer/internal/workers/avatar/transform-profile"
)

type args struct {
	Config    string `arg:"-c,--config,env:CONFIG_FILE" help:"path to a config yaml; defaults to ./configs/config.yaml"`
	LogLevel  string `arg:"--log-level,env:LOG_LEVEL" help:"debug, info, warn or error"`
	LogFormat string `arg:"--log-format,env:LOG_FORMAT" help:"json or console"`
}

func (args) Description() string {
	return "avatar-transformer turns a social profile picture into an AI-generated model photo"
}

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	var cli args
	arg.MustParse(&cli)

	cfg, err := loadConfig(cli.Config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}
	if cli.LogLevel != "" {
		cfg.Logging.Level = cli.LogLevel
	}
	if cli.LogFormat != "" {
		cfg.Logging.Format = cli.LogFormat
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format).With(zap.String("service", cfg.App.Name))
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting avatar transformer...",
		zap.String("environment", cfg.App.Environment),
		zap.String("mode", cfg.Transformation.Mode),
	)

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Init Redis with retry ---
	var redis *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		redis, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return redis.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redis.Close()
	zapLog.Info("Redis connected successfully")

	checks := map[string]api.Pinger{"redis": redis}

	// --- Init PostgreSQL history (optional) ---
	var recorder orchestrator.Recorder
	if cfg.Database.Postgres.Enabled() {
		var pg *database.PostgresClient
		err = retryWithBackoff(func() error {
			var err error
			pg, err = database.NewPostgres(cfg.Database.Postgres)
			if err != nil {
				return err
			}
			return pg.Ping(ctx)
		}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
		if err != nil {
			zapLog.Fatal("postgres failed after retries", zap.Error(err))
		}
		defer pg.Close()

		hist := history.NewRecorder(pg.GetDB(), log)
		if err := hist.EnsureSchema(ctx); err != nil {
			zapLog.Fatal("history schema failed", zap.Error(err))
		}
		recorder = hist
		checks["postgres"] = pg
		zapLog.Info("PostgreSQL history enabled")
	}

	// --- Domain services ---
	resolver, err := avatar.NewService(avatar.ServiceDependencies{
		Logger: log,
		HTTPClient: httpclient.NewClient(
			config.GetDuration(cfg.Avatar.ProbeTimeout),
			httpclient.WithUserAgent(cfg.Avatar.UserAgent),
		),
	}, avatarConfig(cfg))
	if err != nil {
		zapLog.Fatal("avatar resolver init failed", zap.Error(err))
	}

	gate, err := verification.NewGate(verification.GateDependencies{
		Logger:     log,
		HTTPClient: httpclient.NewClient(config.GetDuration(cfg.Turnstile.Timeout)),
	}, &verification.Config{
		SecretKey: cfg.Turnstile.SecretKey,
		VerifyURL: cfg.Turnstile.VerifyURL,
		Timeout:   config.GetDuration(cfg.Turnstile.Timeout),
	})
	if err != nil {
		zapLog.Fatal("verification gate init failed", zap.Error(err))
	}

	rdb := redis.GetClient()
	limiter := ratelimit.NewFacade(ratelimit.FacadeDependencies{
		Logger: log,
		PerClient: ratelimit.NewSlidingWindow(rdb, cfg.RateLimit.Prefix,
			cfg.RateLimit.PerClient.Limit, config.GetDuration(cfg.RateLimit.PerClient.Window)),
		Daily: ratelimit.NewSlidingWindow(rdb, cfg.RateLimit.Prefix,
			cfg.RateLimit.Daily.Limit, config.GetDuration(cfg.RateLimit.Daily.Window)),
	})

	fashn, err := provider.NewClient(provider.ClientDependencies{
		Logger:     log,
		HTTPClient: httpclient.NewClient(config.GetDuration(cfg.Transformation.Timeout)),
	}, &provider.Config{
		BaseURL: cfg.Transformation.BaseURL,
		APIKey:  cfg.Transformation.APIKey,
		Timeout: config.GetDuration(cfg.Transformation.Timeout),
	})
	if err != nil {
		zapLog.Fatal("provider client init failed", zap.Error(err))
	}

	jobPoller, err := poller.New(poller.Dependencies{Logger: log, Client: fashn}, &poller.Config{
		MaxAttempts: cfg.Poller.MaxAttempts,
		Interval:    config.GetDuration(cfg.Poller.Interval),
	})
	if err != nil {
		zapLog.Fatal("poller init failed", zap.Error(err))
	}

	submitter, err := transformation.NewSubmitter(cfg.Transformation.Mode, fashn, jobPoller)
	if err != nil {
		zapLog.Fatal("submitter init failed", zap.Error(err))
	}

	transformer, err := transformation.NewService(transformation.ServiceDependencies{
		Logger:    log,
		Verifier:  gate,
		Limiter:   limiter,
		Submitter: submitter,
	}, &transformation.Config{
		ModelName:   cfg.Transformation.ModelName,
		AspectRatio: cfg.Transformation.AspectRatio,
		Mode:        cfg.Transformation.Mode,
	})
	if err != nil {
		zapLog.Fatal("transformation service init failed", zap.Error(err))
	}

	flow, err := orchestrator.NewFlow(orchestrator.Dependencies{
		Logger:      log,
		Resolver:    resolver,
		Transformer: transformer,
		Poller:      jobPoller,
		Recorder:    recorder,
		Metrics:     obs,
		Tracer:      obs.Tracer(),
	})
	if err != nil {
		zapLog.Fatal("flow init failed", zap.Error(err))
	}

	// --- Optional Zeebe worker ---
	var jobWorker *camunda.Worker
	var zeebe *camunda.Client
	if cfg.Camunda.Enabled {
		zeebe, err = camunda.NewClientWithConfig(ctx, &camunda.ClientConfig{
			GatewayAddress:         cfg.Camunda.BrokerAddress,
			UsePlaintextConnection: true,
			ConnectionTimeout:      config.GetDuration(cfg.Camunda.RequestTimeout),
		})
		if err != nil {
			zapLog.Fatal("zeebe client failed", zap.Error(err))
		}

		handler, err := tp.NewHandler(tp.HandlerOptions{
			AppConfig: cfg,
			Flow:      flow,
			Logger:    log,
		})
		if err != nil {
			zapLog.Fatal("failed to create transform-profile handler", zap.Error(err))
		}
		if handler.IsEnabled() {
			wcfg := handler.GetConfig()
			jobWorker = camunda.StartWorker(zeebe.GetClient(), handler, camunda.WorkerOptions{
				MaxJobsActive: wcfg.MaxJobsActive,
				Timeout:       wcfg.Timeout,
			}, log)
		}
		checks["camunda"] = pingFunc(zeebe.HealthCheck)
	}

	// --- HTTP server ---
	h, err := api.NewHandler(api.Dependencies{
		Logger:      log,
		Resolver:    resolver,
		Provider:    fashn,
		Flow:        flow,
		Checks:      checks,
		AspectRatio: cfg.Transformation.AspectRatio,
	})
	if err != nil {
		zapLog.Fatal("api handler init failed", zap.Error(err))
	}

	server := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           api.NewRouter(h, log, cfg.Server.AllowedOrigins),
		ReadTimeout:       config.GetDuration(cfg.Server.ReadTimeout),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      config.GetDuration(cfg.Server.WriteTimeout),
	}

	serverErr := make(chan error, 1)
	go func() {
		zapLog.Info("HTTP server listening", zap.String("address", cfg.Server.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		zapLog.Info("Shutdown signal received", zap.String("signal", sig.String()))
	case err := <-serverErr:
		zapLog.Error("HTTP server failed", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetDuration(cfg.Server.ShutdownTimeout))
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error shutting down HTTP server", zap.Error(err))
	}
	if jobWorker != nil {
		jobWorker.Stop()
	}
	if zeebe != nil {
		if err := zeebe.Close(); err != nil {
			zapLog.Error("Error closing Zeebe client", zap.Error(err))
		}
	}

	zapLog.Info("Avatar transformer stopped gracefully")
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

func avatarConfig(cfg *config.Config) *avatar.Config {
	ac := avatar.DefaultConfig()
	ac.ProxyURL = cfg.Avatar.ProxyURL
	ac.SocialURL = cfg.Avatar.SocialURL
	ac.ProbeTimeout = config.GetDuration(cfg.Avatar.ProbeTimeout)
	ac.MetadataTimeout = config.GetDuration(cfg.Avatar.MetadataTimeout)
	ac.UserAgent = cfg.Avatar.UserAgent
	return ac
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }
