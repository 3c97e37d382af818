package main

import (
	"context"
	"net/http"
	"time"

	"github.com/agendave/agendave/libs/auth"
	"github.com/agendave/agendave/libs/config"
	"github.com/agendave/agendave/libs/db"
	"github.com/agendave/agendave/libs/httpx"
	"github.com/agendave/agendave/libs/kafkax"
	otelx "github.com/agendave/agendave/libs/otel"
	"github.com/agendave/agendave/libs/runtime"
	"github.com/agendave/agendave/services/notification-service/internal/consumer"
	"github.com/agendave/agendave/services/notification-service/internal/contacts"
	"github.com/agendave/agendave/services/notification-service/internal/dispatch"
	"github.com/agendave/agendave/services/notification-service/internal/email"
	"github.com/agendave/agendave/services/notification-service/internal/handlers"
	"github.com/agendave/agendave/services/notification-service/internal/inbox"
	"github.com/agendave/agendave/services/notification-service/internal/notify"
	"github.com/agendave/agendave/services/notification-service/internal/sms"
	"github.com/agendave/agendave/services/notification-service/internal/storage"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	_ = config.LoadDotenv()
	service := config.String("SERVICE_NAME", "notification-service")
	port, err := config.Port("PORT", "8085")
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

	jwtSecret, err := config.RequiredString("JWT_SECRET")
	if err != nil {
		panic(err)
	}
	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}

	pool, err := db.Open(ctx, dbURL, db.Options{MaxConns: int32(config.Int("DB_MAX_CONNS", 5))})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	notificationsRepo := storage.NewRepository(pool)
	if config.Bool("AUTO_MIGRATE", false) {
		if err := notificationsRepo.Migrate(ctx); err != nil {
			logger.Error("schema migration failed", "err", err)
			panic(err)
		}
	}
	contactsRepo := contacts.NewRepository(pool)

	emailSender := email.NewSMTPSender(email.Config{
		Host:     config.String("SMTP_HOST", "mailpit"),
		Port:     config.String("SMTP_PORT", "1025"),
		From:     config.String("SMTP_FROM", "no-reply@agendave.local"),
		Username: config.String("SMTP_USERNAME", ""),
		Password: config.String("SMTP_PASSWORD", ""),
	})
	smsSender := sms.New(
		config.String("SMS_PROVIDER", "noop"),
		config.String("SMS_WEBHOOK_URL", ""),
		config.String("SMS_WEBHOOK_TOKEN", ""),
	)
	notifier := notify.NewService(contactsRepo, emailSender, smsSender, notificationsRepo, logger)

	topics := config.List("KAFKA_CONSUME_TOPICS")
	if len(topics) == 0 {
		topics = dispatch.Topics
	}
	eventConsumer := consumer.New(logger, inbox.NewRepository(pool), consumer.Config{
		Brokers: config.String("KAFKA_BROKERS", ""),
		GroupID: config.String("KAFKA_GROUP_ID", "notification-service"),
		Topics:  topics,
	}, notifier.Handle)
	go eventConsumer.Run(ctx)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	)
	handlers.NewContactsHandler(contactsRepo, logger).Register(mux, auth.Middleware(jwtSecret))

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(64<<10),
	)
	handler = otelhttp.NewHandler(handler, "notification")
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

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
