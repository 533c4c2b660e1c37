package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gocardless-connect/internal/config"
	"github.com/noah-isme/gocardless-connect/internal/connect"
	"github.com/noah-isme/gocardless-connect/internal/gocardless"
	"github.com/noah-isme/gocardless-connect/internal/obs"
	"github.com/noah-isme/gocardless-connect/internal/queue"
	"github.com/noah-isme/gocardless-connect/internal/resilience"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("component", "worker").Logger()

	obs.MustRegisterDomainMetrics(envOrDefault("OBS_METRICS_NAMESPACE", "gocardless_connect"), nil)
	queue.RegisterMetrics(nil)

	shutdownTracer, err := obs.InitTracer(context.Background(), obs.TracingConfig{
		ServiceName: "gocardless-connect-worker",
		Endpoint:    envOrDefault("OBS_OTLP_ENDPOINT", ""),
		Exporter:    envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
		Environment: cfg.AppEnv,
	})
	if err != nil {
		logger.Error().Err(err).Msg("initialise tracing")
	} else {
		defer func() {
			if err := shutdownTracer(context.Background()); err != nil {
				logger.Error().Err(err).Msg("shutdown tracer")
			}
		}()
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}

	creds := connect.NewCredentialStore(cfg.Credentials())
	breaker := resilience.NewBreaker(cfg.CircuitMinReq, cfg.CircuitFailRatio, cfg.CircuitOpenFor).
		WithTarget("gocardless").
		WithLogger(logger)
	api := &gocardless.Client{
		BaseURL:     cfg.BaseURL,
		Store:       creds,
		RedirectURI: cfg.RedirectURI,
		HTTP: &resilience.HTTPClient{
			Client:      resilience.NewTracedClient(cfg.OutboundTimeout),
			Breaker:     breaker,
			BaseBackoff: cfg.RetryBase,
			MaxAttempts: cfg.RetryMaxAttempts,
			Jitter:      0.2,
			Timeout:     cfg.OutboundTimeout,
			Target:      "gocardless",
			Logger:      &logger,
		},
	}
	processor := &queue.Processor{Confirmer: api, Logger: logger}

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.QueueConcurrency,
		Queues:      map[string]int{queue.DefaultQueue: 1},
		Logger:      asynqLogger{logger: logger.With().Str("source", "asynq").Logger()},
		RetryDelayFunc: func(n int, _ error, _ *asynq.Task) time.Duration {
			return resilience.Backoff(time.Second, min(n+1, 10), 0.2)
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			logger.Warn().Err(err).
				Str("type", task.Type()).
				Int("retried", retried).
				Int("max_retry", maxRetry).
				Msg("task_failed")
		}),
	})
	mux := asynq.NewServeMux()
	processor.Register(mux)

	var metricsSrv *http.Server
	if addr := envOrDefault("WORKER_METRICS_ADDR", ""); addr != "" {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{Addr: addr, Handler: metricsMux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("metrics server stopped")
			}
		}()
	}

	logger.Info().Int("concurrency", cfg.QueueConcurrency).Str("base_url", cfg.BaseURL).Msg("worker starting")
	if err := srv.Start(mux); err != nil {
		logger.Fatal().Err(err).Msg("start worker")
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signals)
	for sig := range signals {
		if sig == syscall.SIGHUP {
			reloadCredentials(logger, creds)
			continue
		}
		logger.Info().Str("signal", sig.String()).Msg("worker shutting down")
		break
	}

	srv.Shutdown()
	if metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = metricsSrv.Shutdown(ctx)
		cancel()
	}
	logger.Info().Msg("worker shutdown complete")
}

func reloadCredentials(logger zerolog.Logger, store *connect.CredentialStore) {
	cfg, err := config.Load()
	if err != nil {
		logger.Error().Err(err).Msg("reload credentials")
		return
	}
	store.Rotate(cfg.Credentials())
	logger.Info().Str("app_id", cfg.AppID).Msg("credentials rotated")
}

// asynqLogger routes asynq's internal logging through zerolog.
type asynqLogger struct {
	logger zerolog.Logger
}

func (l asynqLogger) Debug(args ...interface{}) { l.logger.Debug().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...interface{})  { l.logger.Info().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...interface{})  { l.logger.Warn().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...interface{}) { l.logger.Error().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Fatal(args ...interface{}) { l.logger.Fatal().Msg(fmt.Sprint(args...)) }

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}
