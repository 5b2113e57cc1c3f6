package main

import (
	"context"
	"net/http"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/md-rashed-zaman/mentorslots/libs/config"
	"github.com/md-rashed-zaman/mentorslots/libs/db"
	"github.com/md-rashed-zaman/mentorslots/libs/httpx"
	"github.com/md-rashed-zaman/mentorslots/libs/kafkax"
	otelx "github.com/md-rashed-zaman/mentorslots/libs/otel"
	"github.com/md-rashed-zaman/mentorslots/libs/runtime"
	"github.com/md-rashed-zaman/mentorslots/services/availability-service/internal/busy"
	"github.com/md-rashed-zaman/mentorslots/services/availability-service/internal/cache"
	"github.com/md-rashed-zaman/mentorslots/services/availability-service/internal/consumer"
	"github.com/md-rashed-zaman/mentorslots/services/availability-service/internal/handlers"
	"github.com/md-rashed-zaman/mentorslots/services/availability-service/internal/inbox"
	"github.com/md-rashed-zaman/mentorslots/services/availability-service/internal/outbox"
	"github.com/md-rashed-zaman/mentorslots/services/availability-service/internal/resolver"
	"github.com/md-rashed-zaman/mentorslots/services/availability-service/internal/secrets"
	"github.com/md-rashed-zaman/mentorslots/services/availability-service/internal/settings"
	"github.com/md-rashed-zaman/mentorslots/services/availability-service/internal/staleness"
	"github.com/md-rashed-zaman/mentorslots/services/availability-service/internal/storage"
	"github.com/md-rashed-zaman/mentorslots/services/availability-service/internal/syncevents"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "availability-service")
	port, err := config.Port("PORT", "8086")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext(context.Background())
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	cfg, err := settings.Load(config.String("AVAILABILITY_CONFIG_FILE", ""))
	if err != nil {
		logger.Error("invalid availability settings", "err", err)
		panic(err)
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL, db.Options{
		MaxConns: int32(config.Int("DB_MAX_CONNS", 10)),
	})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	tokenSecret, err := config.RequiredString("CALENDAR_TOKEN_SECRET")
	if err != nil {
		panic(err)
	}
	box, err := secrets.NewBox(tokenSecret)
	if err != nil {
		logger.Error("calendar token secret rejected", "err", err)
		panic(err)
	}

	brokers := config.String("KAFKA_BROKERS", "")
	outboxRepo := outbox.NewRepository(pool)
	inboxRepo := inbox.NewRepository(pool)
	ruleRepo := storage.NewRuleRepository(pool, outboxRepo)
	exceptionRepo := storage.NewExceptionRepository(pool, outboxRepo)
	bookingRepo := storage.NewBookingBusyRepository(pool)
	calendarRepo := storage.NewCalendarRepository(pool, box, outboxRepo)

	aggregator := busy.NewAggregator(bookingRepo, calendarRepo, cfg.Calendar.StaleAfter.Duration)

	readyChecks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
		{Name: "kafka", Optional: true, Check: kafkax.ReadyCheck(brokers)},
	}

	var (
		slotCache   *cache.SlotCache
		rateLimitMW httpx.Middleware
	)
	limitPerMinute := config.Int("RATE_LIMIT_PER_MINUTE", 120)
	resolverOpts := []resolver.Option{}
	if addr := strings.TrimSpace(config.String("REDIS_ADDR", "")); addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       config.Int("REDIS_DB", 0),
		})
		defer func() { _ = rdb.Close() }()

		slotCache = cache.NewSlotCache(rdb, cfg.Cache.TTL.Duration, cfg.Cache.Prefix)
		resolverOpts = append(resolverOpts, resolver.WithCache(slotCache))
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "redis", Optional: true, Check: cache.ReadyCheck(rdb)})

		rateLimitMW = httpx.NewRedisRateLimiter(rdb, httpx.RedisLimitConfig{
			Limit:    limitPerMinute,
			Window:   time.Minute,
			Prefix:   config.String("RATE_LIMIT_PREFIX", "rl:availability"),
			FailOpen: config.Bool("RATE_LIMIT_FAIL_OPEN", true),
			Logger:   logger,
		}).Middleware()
		logger.Info("slot cache and rate limiting enabled (redis)", "redis_addr", addr, "per_minute", limitPerMinute)
	} else {
		rateLimitMW = httpx.NewRateLimiter(limitPerMinute, time.Minute).Middleware()
		logger.Info("slot cache disabled, rate limiting in-memory", "per_minute", limitPerMinute)
	}

	slotResolver := resolver.New(ruleRepo, exceptionRepo, aggregator, logger, resolver.Config{
		DefaultTimezone:        cfg.Slots.DefaultTimezone,
		DefaultDurationMinutes: cfg.Slots.DurationMinutes,
		DefaultHorizonDays:     cfg.Slots.HorizonDays,
		FetchTimeout:           cfg.Slots.FetchTimeout.Duration,
	}, resolverOpts...)

	var invalidator handlers.Invalidator
	var eventInvalidator syncevents.Invalidator
	if slotCache != nil {
		invalidator = slotCache
		eventInvalidator = slotCache
	}

	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	if brokers != "" {
		events := syncevents.New(calendarRepo, inboxRepo, eventInvalidator, logger)
		eventConsumer := consumer.New(logger, consumer.Config{
			Brokers: brokers,
			GroupID: config.String("KAFKA_GROUP_ID", "availability-service"),
		}, events.Routes())
		go eventConsumer.Run(ctx)
	} else {
		logger.Warn("event consumer disabled (no kafka brokers configured)")
	}

	stalenessWorker := staleness.NewWorker(calendarRepo, logger, staleness.WorkerConfig{
		Interval:   cfg.Calendar.PollEvery.Duration,
		StaleAfter: cfg.Calendar.StaleAfter.Duration,
		BatchSize:  cfg.Calendar.BatchSize,
	})
	go stalenessWorker.Run(ctx)

	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	handlers.New(handlers.Deps{
		Resolver:    slotResolver,
		Rules:       ruleRepo,
		Exceptions:  exceptionRepo,
		Calendars:   calendarRepo,
		Invalidator: invalidator,
		SyncStatus:  aggregator.Status,
		Logger:      logger,
	}).Register(mux)

	handler := httpx.Chain(mux,
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: config.List("CORS_ALLOWED_ORIGINS", ""),
			AllowedMethods: config.List("CORS_ALLOWED_METHODS", "GET,POST,PATCH,DELETE,OPTIONS"),
			AllowedHeaders: config.List("CORS_ALLOWED_HEADERS", "Content-Type,X-Request-Id,X-Mentor-Id,X-Role"),
			MaxAge:         config.Duration("CORS_MAX_AGE", 10*time.Minute),
		}),
		httpx.WithRequestID,
		httpx.WithRecover(logger),
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(int64(config.Int("REQUEST_BODY_LIMIT_BYTES", 1<<20))),
		httpx.WithTimeout(config.Duration("REQUEST_TIMEOUT", 10*time.Second)),
		rateLimitMW,
	)
	handler = otelhttp.NewHandler(handler, "availability")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	if err := startGrpcServer(ctx, logger, slotResolver); err != nil {
		logger.Error("grpc server failed to start", "err", err)
	}

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
