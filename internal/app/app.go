package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	httpapi "github.com/shestoi/yookassa-checkout/internal/api/http"
	"github.com/shestoi/yookassa-checkout/internal/client/yookassa"
	"github.com/shestoi/yookassa-checkout/internal/config"
	eventkafka "github.com/shestoi/yookassa-checkout/internal/event/kafka"
	"github.com/shestoi/yookassa-checkout/internal/metrics"
	"github.com/shestoi/yookassa-checkout/internal/notification"
	"github.com/shestoi/yookassa-checkout/internal/repository"
	"github.com/shestoi/yookassa-checkout/internal/service"
	"github.com/shestoi/yookassa-checkout/internal/telegram"
	"github.com/shestoi/yookassa-checkout/internal/templates"
	"github.com/shestoi/yookassa-checkout/internal/webhook"
	platformlogging "github.com/shestoi/yookassa-checkout/platform/logging"
	platformobservability "github.com/shestoi/yookassa-checkout/platform/observability"
	platformshutdown "github.com/shestoi/yookassa-checkout/platform/shutdown"
)

const serviceName = "checkout"

// App содержит все зависимости для запуска и корректного shutdown checkout
type App struct {
	logger      *zap.Logger
	httpServer  *http.Server
	shutdownMgr *platformshutdown.Manager
	service     *service.OrderService
	dispatcher  *notification.Dispatcher

	dispatcherCancel context.CancelFunc
	dispatcherDone   chan struct{}
	wg               sync.WaitGroup
}

// Build создаёт и настраивает все зависимости checkout.
// При ошибке уже открытые ресурсы закрываются.
func Build(ctx context.Context, cfg config.Config) (_ *App, err error) {
	logger, err := platformlogging.New(platformlogging.Config{
		ServiceName: serviceName,
		Env:         string(cfg.AppEnv),
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
	})
	if err != nil {
		return nil, err
	}
	cfg.Log(logger)

	shutdownMgr := platformshutdown.New(cfg.ShutdownTimeout, logger)
	defer func() {
		if err != nil {
			shutdownMgr.Shutdown()
		}
	}()

	otelShutdown, err := platformobservability.Init(ctx, platformobservability.Config{
		Enabled:               cfg.OTel.Enabled,
		OTLPEndpoint:          cfg.OTel.Endpoint,
		SamplingRatio:         cfg.OTel.SamplingRatio,
		ServiceName:           serviceName,
		DeploymentEnvironment: string(cfg.AppEnv),
	})
	if err != nil {
		return nil, fmt.Errorf("init observability: %w", err)
	}
	shutdownMgr.Add("otel", otelShutdown)

	m := metrics.New()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	shutdownMgr.Add("order_store", platformshutdown.CloseCloser(store))

	events, redisClient, err := openProcessedEvents(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if redisClient != nil {
		shutdownMgr.Add("redis_client", platformshutdown.CloseCloser(redisClient))
	}

	renderer, err := templates.NewRenderer()
	if err != nil {
		return nil, err
	}

	var sender notification.Sender
	if cfg.Telegram.Enabled {
		sender = telegram.NewTelegramSender(logger, cfg.Telegram.APIURL, cfg.Telegram.BotToken, cfg.Telegram.Timeout)
	} else {
		logger.Warn("Telegram is disabled, notifications are only logged")
		sender = telegram.NewNoOpSender(logger)
	}

	var alerter notification.Alerter = notification.NewLogAlerter(logger)
	if cfg.Kafka.Enabled {
		dlq := eventkafka.NewDLQPublisher(logger, cfg.Kafka.Brokers, cfg.Kafka.NotificationDLQTopic)
		shutdownMgr.Add("kafka_dlq_writer", platformshutdown.CloseCloser(dlq))
		alerter = dlq
	}

	dispatcher := notification.NewDispatcher(logger, store, sender, renderer, alerter, m, notification.Config{
		ChatID:       cfg.Telegram.ChatID,
		MaxAttempts:  cfg.Notify.MaxAttempts,
		BackoffBase:  cfg.Notify.BackoffBase,
		BackoffMax:   cfg.Notify.BackoffMax,
		PollInterval: cfg.Notify.PollInterval,
		BatchSize:    cfg.Notify.BatchSize,
	})

	var gateway service.PaymentGateway
	if cfg.YooKassa.Stub {
		logger.Warn("Using stub payment gateway")
		gateway = yookassa.NewStubGateway(logger, cfg.YooKassa.ReturnURL)
	} else {
		gateway = yookassa.NewClient(logger, yookassa.Config{
			APIURL:    cfg.YooKassa.APIURL,
			ShopID:    cfg.YooKassa.ShopID,
			SecretKey: cfg.YooKassa.APIKey,
			ReturnURL: cfg.YooKassa.ReturnURL,
			Currency:  cfg.YooKassa.Currency,
			Timeout:   cfg.YooKassa.GatewayTimeout,
		})
	}

	orderService := service.NewOrderService(logger, store, events, gateway, dispatcher, m, service.Config{
		GatewayTimeout: cfg.YooKassa.GatewayTimeout,
		EventTTL:       cfg.WebhookEventTTL,
	})

	verifier, err := webhook.NewVerifier(cfg.WebhookSecret)
	if err != nil {
		return nil, err
	}

	handler := httpapi.NewHandler(logger, orderService, verifier, m)
	router := httpapi.NewRouter(handler, readiness(store, redisClient), m.Handler(), logger)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a := &App{
		logger:         logger,
		httpServer:     httpServer,
		shutdownMgr:    shutdownMgr,
		service:        orderService,
		dispatcher:     dispatcher,
		dispatcherDone: make(chan struct{}),
	}

	// выполняются в обратном порядке: сначала перестаём принимать запросы, потом гасим доставку
	shutdownMgr.Add("notification_dispatcher", a.stopDispatcher)
	shutdownMgr.Add("http_server", platformshutdown.ShutdownHTTPServer(httpServer))

	return a, nil
}

func readiness(store repository.Store, redisClient *redis.Client) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if err := store.Ping(ctx); err != nil {
			return fmt.Errorf("order store: %w", err)
		}
		if redisClient != nil {
			if err := redisClient.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("redis: %w", err)
			}
		}
		return nil
	}
}

// Service для CLI команд, которым не нужен HTTP сервер
func (a *App) Service() *service.OrderService {
	return a.service
}

// Logger логгер приложения
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Close освобождает ресурсы без ожидания сигнала
func (a *App) Close() {
	a.shutdownMgr.Shutdown()
	platformlogging.Sync(a.logger)
}

// Run запускает HTTP сервер и доставку уведомлений, блокируется до SIGINT/SIGTERM или отмены ctx
func (a *App) Run(ctx context.Context) error {
	defer platformlogging.Sync(a.logger)

	a.logger.Info("Starting checkout service", zap.String("addr", a.httpServer.Addr))

	dispatcherCtx, cancel := context.WithCancel(context.Background())
	a.dispatcherCancel = cancel
	go func() {
		defer close(a.dispatcherDone)
		if err := a.dispatcher.Start(dispatcherCtx); err != nil {
			a.logger.Error("Notification dispatcher error", zap.Error(err))
		}
	}()

	var serveErr error
	failed := make(chan struct{})
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("HTTP server error", zap.Error(err))
			serveErr = err
			close(failed)
		}
	}()

	waitCtx, stop := context.WithCancel(ctx)
	defer stop()
	go func() {
		select {
		case <-failed:
			stop()
		case <-waitCtx.Done():
		}
	}()

	// Ожидаем сигнал (или падение сервера) и выполняем shutdown
	a.shutdownMgr.Wait(waitCtx)

	a.wg.Wait()
	a.logger.Info("Checkout service stopped")
	return serveErr
}

// stopDispatcher отменяет цикл доставки и ждёт текущую отправку в пределах shutdown timeout
func (a *App) stopDispatcher(ctx context.Context) error {
	if a.dispatcherCancel == nil {
		return nil
	}
	a.dispatcherCancel()

	select {
	case <-a.dispatcherDone:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("notification dispatcher did not stop: %w", ctx.Err())
	}
}
