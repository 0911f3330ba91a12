package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dialhaus/realtime-gateway/internal/auth"
	"github.com/dialhaus/realtime-gateway/internal/events"
	eventsmongodb "github.com/dialhaus/realtime-gateway/internal/events/mongodb"
	"github.com/dialhaus/realtime-gateway/internal/gateway"
	"github.com/dialhaus/realtime-gateway/internal/handler"
	"github.com/dialhaus/realtime-gateway/internal/server"
	storememory "github.com/dialhaus/realtime-gateway/internal/store/memory"
	storeredis "github.com/dialhaus/realtime-gateway/internal/store/redis"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	goredis "github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"
)

type App struct {
	logger          *zap.Logger
	settings        Settings
	broadcaster     *gateway.Broadcaster
	websocketServer *server.WebSocketServer
	restServer      *server.RESTServer
	archive         events.Archive
}

func NewApp(logger *zap.Logger, settings Settings) (*App, error) {
	store, err := buildStore(settings)
	if err != nil {
		return nil, fmt.Errorf("failed to build store: %w", err)
	}

	archive, err := buildArchive(settings)
	if err != nil {
		return nil, fmt.Errorf("failed to build event archive: %w", err)
	}

	verifier := auth.NewVerifier(settings.JWTSecret, settings.InternalServiceKey)

	registry := gateway.NewRegistry(logger, store, verifier, gateway.RegistrySettings{
		MaxConnectionsPerTenant: settings.MaxConnectionsPerTenant,
		ConnectionTTLSeconds:    settings.ConnectionTTLSeconds,
	})

	var archiver gateway.Archiver
	if archive != nil {
		archiver = archive
	}

	broadcaster := gateway.NewBroadcaster(logger, registry, store, archiver, gateway.BroadcasterSettings{
		EventRetention: time.Duration(settings.EventRetentionSeconds) * time.Second,
	})

	dispatcher := handler.NewLogDispatcher(logger)
	idValidator := handler.NewIdValidator()

	router := server.NewRouter(
		logger,
		handler.NewHeartbeatHandler(),
		handler.NewSubscribeConversationHandler(idValidator, registry),
		handler.NewUnsubscribeConversationHandler(idValidator, registry),
		handler.NewTakeoverConversationHandler(idValidator, dispatcher, broadcaster),
		handler.NewSendMessageHandler(idValidator, dispatcher, broadcaster),
		handler.NewUpdateLeadStatusHandler(idValidator, dispatcher, broadcaster),
	)

	originChecker := server.NewOriginChecker(strings.Split(settings.CORSOrigins, ","))
	websocketUpgrader := &websocket.Upgrader{
		ReadBufferSize:    1024,
		WriteBufferSize:   1024,
		CheckOrigin:       originChecker.Check,
		EnableCompression: true,
	}

	websocketServer := server.NewWebSocketServer(
		logger,
		websocketUpgrader,
		registry,
		router,
		server.WebSocketSettings{
			HeartbeatInterval: time.Duration(settings.HeartbeatIntervalMs) * time.Millisecond,
			HeartbeatTimeout:  time.Duration(settings.HeartbeatTimeoutMs) * time.Millisecond,
		},
	)
	restServer := server.NewRESTServer(
		logger,
		broadcaster,
		registry,
		verifier,
		archive,
	)

	return &App{
		logger:          logger,
		settings:        settings,
		broadcaster:     broadcaster,
		websocketServer: websocketServer,
		restServer:      restServer,
		archive:         archive,
	}, nil
}

func buildStore(settings Settings) (gateway.Store, error) {
	if settings.StoreURL == "memory" {
		return storememory.NewStore(), nil
	}

	opt, err := goredis.ParseURL(settings.StoreURL)
	if err != nil {
		return nil, err
	}

	return storeredis.NewStore(
		goredis.NewClient(opt),
		settings.ConnectionTTLSeconds,
		time.Duration(settings.EventRetentionSeconds)*time.Second,
	), nil
}

func buildArchive(settings Settings) (events.Archive, error) {
	if settings.MongoURI == "" {
		return nil, nil
	}

	client, err := mongo.Connect(options.Client().ApplyURI(settings.MongoURI))
	if err != nil {
		return nil, err
	}

	return eventsmongodb.NewArchive(client, time.Duration(settings.EventRetentionSeconds)*time.Second), nil
}

func (a *App) setup(ctx context.Context) error {
	if a.archive != nil {
		if err := a.archive.Setup(ctx); err != nil {
			return fmt.Errorf("failed to setup event archive: %w", err)
		}
	}

	if err := a.broadcaster.Run(ctx); err != nil {
		return fmt.Errorf("failed to start broadcast relay: %w", err)
	}

	a.startHttpServer(ctx)

	return nil
}

func (a *App) startHttpServer(ctx context.Context) {
	notifyCtx, notifyCtxCancel := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer notifyCtxCancel()

	address := fmt.Sprintf("0.0.0.0:%d", a.settings.Port)

	router := mux.NewRouter().
		PathPrefix(a.settings.BasePath).
		Subrouter()

	a.websocketServer.Register(router)
	a.restServer.Register(router)

	httpServer := &http.Server{
		Addr:    address,
		Handler: router,
	}

	a.logger.Info("starting http server",
		zap.String("address", address))

	go func() {
		err := httpServer.ListenAndServe()

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Fatal("failed to start http server",
				zap.Error(err))
		}
	}()

	<-notifyCtx.Done()

	a.logger.Info("stopping http server")

	shutdownCtx, shutdownCtxCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCtxCancel()

	err := httpServer.Shutdown(shutdownCtx)
	if err != nil {
		a.logger.Fatal("http server shutdown failed",
			zap.Error(err))
	}

	a.logger.Info("http server stopped")
}

func main() {
	ctx := context.Background()

	var settings Settings
	_, err := env.UnmarshalFromEnviron(&settings)
	if err != nil {
		fallbackLogger, _ := zap.NewDevelopment()
		fallbackLogger.Fatal("failed to parse settings from environment", zap.Error(err))
	}

	logger, err := buildZapLogger(settings.LogEncoding, settings.LogLevel)
	if err != nil {
		fallbackLogger, _ := zap.NewDevelopment()
		fallbackLogger.Fatal("failed to build logger", zap.Error(err))
	}
	defer logger.Sync()

	app, err := NewApp(logger, settings)
	if err != nil {
		logger.Fatal("failed to build app", zap.Error(err))
	}

	err = app.setup(ctx)
	if err != nil {
		logger.Fatal("failed to setup", zap.Error(err))
	}
}
