package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gitlab.com/timkado/api/daisi-wa-support-console/internal/cache"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/config"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/healthcheck"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/httpapi"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/ingestion"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/jetstream"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/observer"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/realtime"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/storage"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/tenant"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/usecase"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/whatsapp"
	"gitlab.com/timkado/api/daisi-wa-support-console/pkg/logger"
	"gitlab.com/timkado/api/daisi-wa-support-console/pkg/utils"
)

const serviceName = "daisi-wa-support-console"

func main() {
	time.Local = time.UTC

	cfg, err := config.LoadConfig("")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Initialize(cfg.LogLevel); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	observer.InitMetrics(cfg.Metrics.Enabled)

	cfg.Watch(func(next *config.Config, err error) {
		if err != nil {
			logger.Log.Warn("Ignoring invalid config reload", zap.Error(err))
			return
		}
		logger.SetLevel(next.LogLevel)
		logger.Log.Info("Config reloaded", zap.String("log_level", next.LogLevel))
	})

	origin := replicaOrigin()
	logger.Log.Info("Starting Daisi WA Support Console",
		zap.String("environment", cfg.Environment),
		zap.String("origin", origin),
		zap.String("realtime_broker", cfg.Realtime.Broker),
	)

	mainCtx, mainCancel := context.WithCancel(context.Background())
	defer mainCancel()

	postgresRepo, err := initPostgresRepo(cfg)
	if err != nil {
		logger.Log.Fatal("Failed to initialize Postgres repository", zap.Error(err))
	}

	organizations := cache.NewOrganizationCache(storage.NewOrganizationRepoAdapter(postgresRepo), cfg.Cache.OrganizationTTL)
	repos := usecase.Repositories{
		Organizations: organizations,
		Contacts:      storage.NewContactRepoAdapter(postgresRepo),
		Conversations: storage.NewConversationRepoAdapter(postgresRepo),
		Messages:      storage.NewMessageRepoAdapter(postgresRepo),
		Media:         storage.NewMediaRepoAdapter(postgresRepo),
		WebhookLogs:   storage.NewWebhookLogRepoAdapter(postgresRepo),
	}

	provider := whatsapp.NewClient(whatsapp.Options{
		BaseURL:    cfg.WhatsApp.BaseURL,
		APIVersion: cfg.WhatsApp.APIVersion,
		Timeout:    cfg.WhatsApp.Timeout,
	})

	// --- Realtime ---
	hub := realtime.NewHub(realtime.HubOptions{
		SendBuffer:   cfg.Realtime.SendBuffer,
		PingInterval: cfg.Realtime.PingInterval,
		Authorize: func(ctx context.Context, orgID, conversationID string) error {
			_, err := repos.Conversations.FindByID(tenant.WithOrganizationID(ctx, orgID), conversationID)
			return err
		},
	}, logger.Log)
	emitter := realtime.NewMultiEmitter(origin, hub)

	checkers := []healthcheck.Checker{
		healthcheck.CheckFunc{Label: "postgres", Fn: postgresRepo.Ping},
	}

	var (
		natsClient *jetstream.Client
		natsRelay  *realtime.NATSRelay
		amqpRelay  *realtime.AMQPRelay
	)
	switch cfg.Realtime.Broker {
	case "nats":
		natsClient, err = jetstream.NewClient(cfg.Realtime.NATS.URL, serviceName+"-"+origin)
		if err != nil {
			logger.Log.Fatal("Failed to initialize JetStream client", zap.Error(err))
		}
		natsRelay = realtime.NewNATSRelay(natsClient, cfg.Realtime.NATS.Stream, cfg.Realtime.NATS.SubjectPrefix, origin, logger.Log)
		if err := natsRelay.Setup(mainCtx); err != nil {
			logger.Log.Fatal("Failed to set up relay stream", zap.Error(err))
		}
		if err := natsRelay.Subscribe(hub); err != nil {
			logger.Log.Fatal("Failed to subscribe to relay stream", zap.Error(err))
		}
		emitter.AddSink(natsRelay)
		checkers = append(checkers, connectedCheck("nats", natsClient.Connected))
	case "amqp":
		amqpRelay, err = realtime.NewAMQPRelay(mainCtx, cfg.Realtime.AMQP.URL, cfg.Realtime.AMQP.Exchange, origin, logger.Log)
		if err != nil {
			logger.Log.Fatal("Failed to initialize AMQP relay", zap.Error(err))
		}
		emitter.AddSink(amqpRelay)
		checkers = append(checkers, connectedCheck("amqp", amqpRelay.Connected))
	case "", "none":
	default:
		logger.Log.Fatal("Unknown realtime broker", zap.String("broker", cfg.Realtime.Broker))
	}

	// --- Use cases ---
	resolver := usecase.NewResolver(repos.Contacts, repos.Conversations)
	ingestionService := usecase.NewIngestionService(resolver, repos.Messages, provider, emitter)
	statusService := usecase.NewStatusService(repos.Messages, emitter)
	sendService := usecase.NewSendService(repos, provider, emitter, usecase.SendOptions{
		MediaDir:       cfg.Media.Dir,
		MaxUploadBytes: cfg.Media.MaxUploadBytes,
		Timeout:        cfg.Server.WriteTimeout,
	})
	conversationService := usecase.NewConversationService(repos.Conversations, emitter)
	mediaService := usecase.NewMediaService(repos.Organizations, repos.Media, provider)
	historyService := usecase.NewHistoryService(repos)

	processor := usecase.NewWebhookProcessor(repos.Organizations, repos.WebhookLogs, ingestion.NewRouter(), ingestionService, statusService)
	processor.Setup()

	dispatcher, err := ingestion.NewDispatcher(cfg.WorkerPools.Webhook, cfg.Webhook.ProcessTimeout, processor, logger.Log)
	if err != nil {
		logger.Log.Fatal("Failed to initialize webhook worker pool", zap.Error(err))
	}

	// --- HTTP ---
	engine := httpapi.NewRouter(httpapi.Handlers{
		Webhook: httpapi.NewWebhookHandler(httpapi.WebhookOptions{
			VerifyToken:  cfg.Webhook.VerifyToken,
			AppSecret:    cfg.Webhook.AppSecret,
			MaxBodyBytes: cfg.Webhook.MaxBodyBytes,
		}, repos.Organizations, dispatcher),
		Messages:      httpapi.NewMessageHandler(sendService, mediaService),
		Conversations: httpapi.NewConversationHandler(conversationService),
		History:       httpapi.NewHistoryHandler(historyService),
		Realtime:      httpapi.NewRealtimeHandler(hub),
		Verifier:      httpapi.NewTokenVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer),
	})
	apiServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Log.Info("Starting API server", zap.String("addr", apiServer.Addr))
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Error("API server failed, initiating shutdown...", zap.Error(err))
			select {
			case sigChan <- syscall.SIGTERM:
			default:
			}
		}
	}()

	healthServer := healthcheck.NewServer(cfg.Metrics.Port, logger.Log, checkers...)
	if cfg.Metrics.Enabled {
		healthServer.RegisterMetricsHandler()
	} else {
		logger.Log.Info("Metrics endpoint disabled", zap.String("environment", cfg.Environment))
	}
	healthServer.Start()

	sig := <-sigChan
	logger.Log.Info("Received termination signal", zap.String("signal", sig.String()))
	mainCancel()

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	logger.Log.Info("Starting graceful shutdown", zap.Duration("timeout", shutdownTimeout))

	// The API goes first so no new webhook is acknowledged, then the pool
	// drains acknowledged payloads before storage and brokers close.
	stopStep("API server", func() {
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			logger.Log.Error("[shutdown] Error stopping API server", zap.Error(err))
		}
	})
	stopStep("webhook dispatcher", dispatcher.Stop)
	hits, misses := organizations.Stats()
	logger.Log.Info("[shutdown] Organization cache stats", zap.Int64("hits", hits), zap.Int64("misses", misses))

	var wg sync.WaitGroup
	wg.Add(3)
	utils.SafeGo(func() {
		defer wg.Done()
		stopStep("health check server", func() {
			if err := healthServer.Stop(shutdownCtx); err != nil {
				logger.Log.Error("[shutdown] Error stopping health check server", zap.Error(err))
			}
		})
	}, shutdownPanic("health check server"))
	utils.SafeGo(func() {
		defer wg.Done()
		stopStep("realtime relay", func() {
			if natsRelay != nil {
				natsRelay.Close()
			}
			if natsClient != nil {
				natsClient.Close()
			}
			if amqpRelay != nil {
				amqpRelay.Close()
			}
		})
	}, shutdownPanic("realtime relay"))
	utils.SafeGo(func() {
		defer wg.Done()
		stopStep("PostgreSQL connection", func() {
			if err := postgresRepo.Close(shutdownCtx); err != nil {
				logger.Log.Error("[shutdown] Failed to close PostgreSQL connection", zap.Error(err))
			}
		})
	}, shutdownPanic("PostgreSQL connection"))

	waitCh := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Log.Info("[shutdown] All components stopped gracefully")
	case <-shutdownCtx.Done():
		logger.Log.Warn("[shutdown] Graceful shutdown timed out, forcing exit")
	}

	logger.Log.Info("Daisi WA Support Console shutdown complete")
}

func initPostgresRepo(cfg *config.Config) (*storage.PostgresRepo, error) {
	if cfg.Database.PostgresDSN == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}

	repo, err := storage.NewPostgresRepo(cfg.Database.PostgresDSN, storage.Options{
		AutoMigrate:     cfg.Database.PostgresAutoMigrate,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize postgres repository: %w", err)
	}

	logger.Log.Info("Initialized PostgreSQL repository")
	return repo, nil
}

// replicaOrigin names this process on relayed realtime envelopes.
func replicaOrigin() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "console"
	}
	return host + "-" + uuid.NewString()[:8]
}

func connectedCheck(name string, connected func() bool) healthcheck.Checker {
	return healthcheck.CheckFunc{Label: name, Fn: func(context.Context) error {
		if !connected() {
			return fmt.Errorf("%s not connected", name)
		}
		return nil
	}}
}

func stopStep(name string, fn func()) {
	logger.Log.Info("[shutdown] Stopping " + name)
	start := time.Now()
	fn()
	logger.Log.Info("[shutdown] Stopped "+name, zap.Duration("duration", time.Since(start)))
}

// shutdownPanic logs a panic from a shutdown step. The step's own deferred
// wg.Done has already run by the time this is called.
func shutdownPanic(name string) utils.RecoverFn {
	return func(r interface{}, stack []byte) {
		logger.Log.Error("[shutdown] Panic while stopping "+name,
			zap.Any("panic", r),
			zap.ByteString("stack", stack),
		)
	}
}
