package main

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/agendave/agendave/libs/auth"
	"github.com/agendave/agendave/libs/config"
	"github.com/agendave/agendave/libs/db"
	"github.com/agendave/agendave/libs/grpcx"
	"github.com/agendave/agendave/libs/httpx"
	"github.com/agendave/agendave/libs/kafkax"
	otelx "github.com/agendave/agendave/libs/otel"
	"github.com/agendave/agendave/libs/runtime"
	"github.com/agendave/agendave/services/booking-service/internal/availability"
	"github.com/agendave/agendave/services/booking-service/internal/booking"
	"github.com/agendave/agendave/services/booking-service/internal/handlers"
	"github.com/agendave/agendave/services/booking-service/internal/outbox"
	"github.com/agendave/agendave/services/booking-service/internal/reminders"
	"github.com/agendave/agendave/services/booking-service/internal/scheduling"
	"github.com/agendave/agendave/services/booking-service/internal/settings"
	"github.com/agendave/agendave/services/booking-service/internal/storage"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func main() {
	_ = config.LoadDotenv()
	service := config.String("SERVICE_NAME", "booking-service")
	port, err := config.Port("PORT", "8083")
	if err != nil {
		panic(err)
	}
	grpcPort, err := config.Port("GRPC_PORT", "9093")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
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

	loc, err := time.LoadLocation(config.String("TIMEZONE", "UTC"))
	if err != nil {
		logger.Error("invalid TIMEZONE; using UTC", "err", err)
		loc = time.UTC
	}
	jwtSecret, err := config.RequiredString("JWT_SECRET")
	if err != nil {
		panic(err)
	}
	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}

	pool, err := db.Open(ctx, dbURL, db.Options{
		MaxConns: int32(config.Int("DB_MAX_CONNS", 10)),
		MinConns: int32(config.Int("DB_MIN_CONNS", 0)),
	})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	store := storage.NewPostgres(pool)
	if config.Bool("AUTO_MIGRATE", false) {
		if err := store.Migrate(ctx); err != nil {
			logger.Error("schema migration failed", "err", err)
			panic(err)
		}
		logger.Info("schema migrated")
	}

	readyChecks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
		{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	}

	storeSettings := settings.NewStoreSource(store, settings.DefaultLimits)
	var (
		settingsSource settings.Source = storeSettings
		settingsCache  handlers.SettingsInvalidator
		rdb            *redis.Client
	)
	if addr := strings.TrimSpace(config.String("REDIS_ADDR", "")); addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       config.Int("REDIS_DB", 0),
		})
		defer func() { _ = rdb.Close() }()
		cache := settings.NewRedisCache(rdb, storeSettings, config.Seconds("SETTINGS_CACHE_TTL_SECONDS", time.Minute), logger)
		settingsSource = cache
		settingsCache = cache
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}

	engineCfg := scheduling.DefaultConfig()
	engineCfg.SlotIncrementMinutes = config.Int("SLOT_INCREMENT_MINUTES", engineCfg.SlotIncrementMinutes)
	engineCfg.FallbackDurationMinutes = config.Int("FALLBACK_DURATION_MINUTES", engineCfg.FallbackDurationMinutes)
	engineCfg.HidePastSlots = config.Bool("HIDE_PAST_SLOTS", false)
	engineCfg.Location = loc
	engine := scheduling.NewEngine(engineCfg, scheduling.Deps{
		Windows:  availability.NewSource(store),
		Ledger:   store,
		Catalog:  store,
		Settings: settingsSource,
	})

	notifier := outbox.NewNotifier(loc)
	writer := booking.NewWriter(store, engine, settingsSource, notifier, logger, booking.WriterConfig{Location: loc})

	outboxPublisher := outbox.NewPublisher(outbox.NewRepository(pool), logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: config.Seconds("OUTBOX_POLL_SECONDS", 2*time.Second),
		BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
	})
	go outboxPublisher.Run(ctx)

	sweeper := reminders.NewSweeper(store, settingsSource, notifier, logger, reminders.SweeperConfig{
		Location:  loc,
		BatchSize: config.Int("REMINDER_BATCH_SIZE", 200),
	})
	reminderScheduler, err := reminders.NewScheduler(config.String("REMINDER_SCHEDULE", "*/5 * * * *"), loc, sweeper, logger)
	if err != nil {
		logger.Error("reminder scheduler init failed", "err", err)
		panic(err)
	}
	go reminderScheduler.Run(ctx)

	bookingHandler := handlers.NewBookingHandler(handlers.Deps{
		Engine:    engine,
		Writer:    writer,
		Settings:  settingsSource,
		Saver:     storeSettings,
		Cache:     settingsCache,
		Schedules: store,
	}, logger)

	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	bookingHandler.Register(mux, auth.Middleware(jwtSecret))

	middlewares := []httpx.Middleware{
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(int64(config.Int("HTTP_BODY_LIMIT_BYTES", 1<<20))),
	}
	if rdb != nil {
		limiter := httpx.NewRedisRateLimiter(rdb,
			config.Int("RATE_LIMIT_PER_MINUTE", 120),
			time.Minute,
			"rl:booking-public",
			nil,
		)
		middlewares = append(middlewares, publicOnly(limiter.Middleware(logger, true)))
	}
	httpHandler := httpx.Chain(mux, middlewares...)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcServer := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			grpcx.UnaryServerRequestIDInterceptor(),
			grpcx.UnaryServerLoggingInterceptor(logger),
		),
	)
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	go grpcx.WatchReadiness(ctx, healthServer, logger, 10*time.Second, readyChecks...)

	go func() {
		lis, err := net.Listen("tcp", ":"+grpcPort)
		if err != nil {
			logger.Error("grpc listen failed", "err", err)
			return
		}
		logger.Info("grpc server starting", "addr", lis.Addr().String())
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	grpcServer.GracefulStop()
	logger.Info("servers stopped")
}

// publicOnly applies m to the unauthenticated /api/v1/public/ routes.
func publicOnly(m httpx.Middleware) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		limited := m(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/api/v1/public/") {
				limited.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
