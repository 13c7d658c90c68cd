package app

import (
	"context"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/avolkov-dev/relaycast-server/internal/auth"
	"github.com/avolkov-dev/relaycast-server/internal/config"
	"github.com/avolkov-dev/relaycast-server/internal/fabric"
	"github.com/avolkov-dev/relaycast-server/internal/realtime"
	"github.com/avolkov-dev/relaycast-server/internal/service"
	"github.com/avolkov-dev/relaycast-server/internal/store"
	"github.com/avolkov-dev/relaycast-server/internal/store/sqlite"
	transporthttp "github.com/avolkov-dev/relaycast-server/internal/transport/http"
)

// App wires together store, fabric, realtime core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	manager         *realtime.Manager
	router          *realtime.Router
	pubsub          fabric.PubSub
	store           store.Store
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.JWTTTL,
		GrantTTL: cfg.GrantTTL,
	}
	authService := auth.NewService(st, jwtConfig)

	pubsub, err := newFabric(ctx, cfg, logger)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("init fabric: %w", err)
	}
	logger.Info().Str("fabric", cfg.Fabric).Msg("pub/sub fabric initialized")

	gate := realtime.NewGate(authService)
	registry := realtime.NewRegistry(gate)
	manager := realtime.NewManager(registry, authService, realtime.ManagerConfig{
		HeartbeatInterval: cfg.HeartbeatInterval,
		HeartbeatGrace:    cfg.HeartbeatGrace,
		SendQueueSize:     cfg.SendQueueSize,
	}, *logger)
	router := realtime.NewRouter(pubsub, registry, manager, *logger)

	chatService := service.NewChatService(st, st, router, cfg.MaxMessageBody, *logger)
	postService := service.NewPostService(st, router, *logger)

	server := transporthttp.NewServer(transporthttp.Deps{
		Auth:     authService,
		Chat:     chatService,
		Posts:    postService,
		Gate:     gate,
		Manager:  manager,
		Registry: registry,
	}, *cfg, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		manager:         manager,
		router:          router,
		pubsub:          pubsub,
		store:           st,
		log:             logger,
	}, nil
}

func newFabric(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (fabric.PubSub, error) {
	switch cfg.Fabric {
	case "", "memory":
		return fabric.NewMemory(), nil
	case "redis":
		return fabric.NewRedis(ctx, cfg.RedisAddr, *logger)
	case "kafka":
		return fabric.NewKafka(cfg.KafkaBrokers, cfg.KafkaTopic, *logger), nil
	default:
		return nil, fmt.Errorf("unknown fabric backend %q", cfg.Fabric)
	}
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go a.manager.Run(ctx)
	go func() {
		if err := a.router.Run(ctx); err != nil && ctx.Err() == nil {
			a.log.Error().Err(err).Msg("broadcast router stopped")
		}
	}()

	go func() {
		if err := a.server.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

// cleanup closes the fabric, database and other resources.
func (a *App) cleanup() {
	if a.pubsub != nil {
		if err := a.pubsub.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close fabric")
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
