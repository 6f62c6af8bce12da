package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/lalithlochan/fellowship/internal/ai"
	"github.com/lalithlochan/fellowship/internal/alert"
	"github.com/lalithlochan/fellowship/internal/api"
	"github.com/lalithlochan/fellowship/internal/circuitbreaker"
	"github.com/lalithlochan/fellowship/internal/config"
	"github.com/lalithlochan/fellowship/internal/db"
	"github.com/lalithlochan/fellowship/internal/events"
	"github.com/lalithlochan/fellowship/internal/kafka"
	"github.com/lalithlochan/fellowship/internal/metrics"
	"github.com/lalithlochan/fellowship/internal/notify"
	"github.com/lalithlochan/fellowship/internal/observ"
	"github.com/lalithlochan/fellowship/internal/push"
	"github.com/lalithlochan/fellowship/internal/redis"
	"github.com/lalithlochan/fellowship/internal/sqs"
	"github.com/lalithlochan/fellowship/internal/worker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Setup logger
	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting fellowship api",
		zap.String("env", cfg.Env),
		zap.Int("port", cfg.Port),
	)

	ctx := context.Background()

	shutdownTracer, err := observ.InitTracer(ctx, observ.TracerConfig{
		Enabled:     cfg.OTELEnabled,
		Endpoint:    cfg.OTELEndpoint,
		ServiceName: cfg.OTELServiceName,
		Env:         cfg.Env,
		SampleRatio: cfg.OTELSampleRatio,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to init tracing: %w", err)
	}
	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(tctx); err != nil {
			logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}()

	// Initialize database connection
	database, err := db.New(ctx, db.Config{
		URL:      cfg.DatabaseURL,
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		Database: cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	repo := db.NewRepository(database, logger)

	// Redis backs rate limiting, idempotency and like dedupe. Everything
	// still works without it.
	redisClient, err := redis.New(ctx, redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, logger)
	if err != nil {
		logger.Warn("redis unavailable, rate limiting and idempotency disabled",
			zap.Error(err),
			zap.String("host", cfg.RedisHost),
		)
	}

	var (
		idempotencyService *redis.IdempotencyService
		rateLimiter        *redis.RateLimiter
		likeDeduper        *redis.LikeDeduper
	)
	if redisClient != nil {
		defer redisClient.Close()
		idempotencyService = redis.NewIdempotencyService(redisClient, logger)
		rateLimiter = redis.NewRateLimiter(redisClient, logger, redis.RateLimitConfig{
			Limit:  cfg.RateLimitPerMinute,
			Window: time.Minute,
		})
		likeDeduper = redis.NewLikeDeduper(redisClient, logger)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		logger.Warn("aws config unavailable, sns/ses alerts and sqs ingest disabled", zap.Error(err))
	}
	awsReady := err == nil

	alerter := newAlerter(cfg, awsCfg, awsReady, logger)

	// Push gateway: Expo client behind a circuit breaker.
	breakerCfg := circuitbreaker.DefaultConfig("expo")
	breakerCfg.OnStateChange = func(name string, from, to circuitbreaker.State) {
		metrics.SetCircuitState(name, int(to))
	}
	expo := push.NewExpoClient(push.ExpoConfig{
		URL:         cfg.ExpoPushURL,
		AccessToken: cfg.ExpoAccessToken,
		Timeout:     cfg.PushTimeout,
	}, logger)
	gateway := circuitbreaker.NewProtectedGateway(expo, circuitbreaker.New(breakerCfg, logger), logger)

	dispatcher := push.NewDispatcher(
		gateway,
		repo,
		alerter,
		push.Config{
			BatchSize:   cfg.PushBatchSize,
			MaxAttempts: cfg.PushMaxAttempts,
			RetryDelay:  cfg.PushRetryDelay,
		},
		logger,
	)

	notifier := notify.NewNotifier(repo, dispatcher, cfg.DispatchTimeout, logger)

	var titles api.TitleGenerator
	if cfg.AIEnabled {
		client, err := ai.NewClient(ai.Config{
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.OpenAIModel,
			BaseURL: cfg.OpenAIBaseURL,
		}, logger)
		if err != nil {
			logger.Warn("ai client unavailable, prayer titles use the fallback", zap.Error(err))
		} else {
			titles = ai.NewTitleGenerator(client)
		}
	}

	deps := api.Deps{
		Repo:     repo,
		Notifier: notifier,
		Titles:   titles,
		Breaker:  gateway.Breaker(),
		DBHealth: database.Health,
	}
	if redisClient != nil {
		deps.Likes = likeDeduper
		deps.Idempotency = idempotencyService
		deps.RedisHealth = redisClient.Ping
	}

	handler := api.NewHandler(logger, deps)
	router := api.NewRouter(handler, api.RouterConfig{
		JWTSecret:      []byte(cfg.JWTSecret),
		AllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimiter:    rateLimiter,
	}, logger)

	// Background work: token sweeper, event consumers, pool gauge.
	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()
	var bg sync.WaitGroup

	sweeper := worker.New(repo, worker.Config{
		Interval: cfg.TokenSweepInterval,
		MaxAge:   time.Duration(cfg.TokenStaleDays) * 24 * time.Hour,
	}, logger)
	bg.Add(1)
	go func() {
		defer bg.Done()
		sweeper.Start(bgCtx)
	}()

	ingest := events.NewHandler(repo, notifier, logger)

	if cfg.KafkaBrokers != "" {
		consumer := kafka.NewConsumer(kafka.Config{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
			GroupID: cfg.KafkaGroupID,
		}, ingest, logger)
		bg.Add(1)
		go func() {
			defer bg.Done()
			_ = consumer.Run(bgCtx)
		}()
	}

	if cfg.SQSQueueURL != "" && awsReady {
		sqsCfg := awsCfg.Copy()
		sqsCfg.Region = cfg.SQSRegion
		consumer := sqs.NewConsumer(sqsCfg, sqs.Config{QueueURL: cfg.SQSQueueURL}, ingest, logger)
		bg.Add(1)
		go func() {
			defer bg.Done()
			_ = consumer.Run(bgCtx)
		}()
	}

	bg.Add(1)
	go func() {
		defer bg.Done()
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-bgCtx.Done():
				return
			case <-ticker.C:
				metrics.SetDBConnections(database.AcquiredConns())
			}
		}
	}()

	// Setup HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      otelhttp.NewHandler(router, "http.server"),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	// Listen for shutdown signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Block until we receive a signal or server error
	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
	}

	// Give outstanding requests 10 seconds to complete
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(sctx); err != nil {
		srv.Close()
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	bgCancel()
	bg.Wait()

	// In-flight dispatches get their own budget after the consumers stop.
	wctx, wcancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer wcancel()
	if err := notifier.Wait(wctx); err != nil {
		logger.Warn("notification dispatches still running at exit", zap.Error(err))
	}

	logger.Info("server stopped gracefully")
	return nil
}

// newAlerter fans InvalidCredentials alerts out to the log and whichever of
// SNS and SES is configured.
func newAlerter(cfg *config.Config, awsCfg aws.Config, awsReady bool, logger *zap.Logger) *alert.Multi {
	alerters := []alert.Alerter{alert.NewLogAlerter(logger)}

	if awsReady && cfg.AlertTopicARN != "" {
		alerters = append(alerters, alert.NewSNSAlerterFromConfig(awsCfg, cfg.AlertTopicARN, logger))
	}
	if awsReady && cfg.AlertEmailTo != "" {
		alerters = append(alerters, alert.NewSESAlerterFromConfig(awsCfg, cfg.SESFromEmail, cfg.AlertEmailTo, logger))
	}

	multi := alert.NewMulti(logger, alerters...)
	logger.Info("operator alerts configured", zap.Int("channels", multi.Len()))
	return multi
}
