// Package server wires the gophgate components together: identity store,
// signing keys, the security pipeline and the HTTP and gRPC transports.
package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/gophgate/internal/logging"
	"github.com/dmitrijs2005/gophgate/internal/server/auth"
	"github.com/dmitrijs2005/gophgate/internal/server/config"
	"github.com/dmitrijs2005/gophgate/internal/server/httpapi"
	"github.com/dmitrijs2005/gophgate/internal/server/identity"
	"github.com/dmitrijs2005/gophgate/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gophgate/internal/server/security"
	"github.com/dmitrijs2005/gophgate/internal/server/services"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	gs "github.com/dmitrijs2005/gophgate/internal/server/grpc"
)

type App struct {
	config      *config.Config
	logger      logging.Logger
	repomanager repomanager.RepositoryManager
	keys        *auth.KeyRing
	keyWatcher  *auth.KeyFileWatcher
	userService *services.UserService
	httpServer  *httpapi.Server
	grpcServer  *gs.GRPCServer
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}

	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel)

	rm, err := openStore(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("store init error: %w", err)
	}

	app, err := newApp(ctx, c, logger, rm)
	if err != nil {
		_ = rm.Close()
		return nil, err
	}
	return app, nil
}

// newApp builds everything above the store.
func newApp(ctx context.Context, c *config.Config, logger logging.Logger, rm repomanager.RepositoryManager) (*App, error) {
	if err := rm.RunMigrations(ctx); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	keys, err := loadKeys(ctx, c, logger)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := security.NewMetrics(registry)

	tokens := auth.NewTokenService(keys, c.AccessTokenValidityDuration, auth.SystemClock)
	hashes := auth.NewHashPool(auth.NewPasswordVerifier(c.BcryptCost), c.HashPoolSize)
	authn := security.NewAuthenticator(tokens, identity.NewLoader(rm.Users()), auth.SystemClock, logger, metrics)

	us := services.NewUserService(rm, tokens, hashes, logger, metrics)

	pipeline := security.NewPipeline(authn, logger, metrics)
	handlers := httpapi.NewHandlers(us, logger)
	router := httpapi.NewRouter(handlers.Routes(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})), pipeline, logger)

	app := &App{
		config:      c,
		logger:      logger,
		repomanager: rm,
		keys:        keys,
		userService: us,
		httpServer:  httpapi.NewServer(c.EndpointAddrHTTP, router, logger),
		grpcServer:  gs.NewGRPCServer(c.EndpointAddrGRPC, logger, us, gs.NewAuthInterceptor(authn, gs.MethodRequirements, logger)),
	}
	if c.SecretKeyFile != "" {
		app.keyWatcher = auth.NewKeyFileWatcher(c.SecretKeyFile, keys, logger)
	}

	if err := app.bootstrapAdmin(ctx); err != nil {
		return nil, err
	}
	return app, nil
}

func openStore(ctx context.Context, c *config.Config) (repomanager.RepositoryManager, error) {
	switch c.StoreBackend {
	case config.StorePostgres:
		db, err := repomanager.OpenPostgres(ctx, c.DatabaseDSN)
		if err != nil {
			return nil, err
		}
		return repomanager.NewPostgresRepositoryManager(db), nil
	case config.StoreRedis:
		client, err := repomanager.NewRedisClient(ctx, c.RedisAddr)
		if err != nil {
			return nil, err
		}
		return repomanager.NewRedisRepositoryManager(client, c.RedisKeyPrefix), nil
	case config.StoreMemory:
		return repomanager.NewMemoryRepositoryManager(), nil
	}
	return nil, fmt.Errorf("unknown store backend %q", c.StoreBackend)
}

// loadKeys picks the signing key: the key file wins over the configured
// secret, and with neither a random key is generated.
func loadKeys(ctx context.Context, c *config.Config, logger logging.Logger) (*auth.KeyRing, error) {
	var secret []byte
	switch {
	case c.SecretKeyFile != "":
		key, err := auth.LoadKeyFile(c.SecretKeyFile)
		if err != nil {
			return nil, err
		}
		secret = key
	case c.SecretKey != "":
		secret = []byte(c.SecretKey)
	default:
		key, err := auth.GenerateKey()
		if err != nil {
			return nil, fmt.Errorf("key generation error: %w", err)
		}
		logger.Warn(ctx, "no signing key configured, using a random key; tokens will not survive a restart")
		secret = key
	}

	ring, err := auth.NewKeyRing(secret)
	if err != nil {
		return nil, fmt.Errorf("signing key error: %w", err)
	}
	return ring, nil
}

func (app *App) bootstrapAdmin(ctx context.Context) error {
	if app.config.AdminUsername == "" {
		return nil
	}
	created, err := app.userService.EnsureAdmin(ctx, app.config.AdminUsername, app.config.AdminPassword)
	if err != nil {
		return fmt.Errorf("admin bootstrap error: %w", err)
	}
	if created {
		app.logger.Info(ctx, "admin user created", "username", app.config.AdminUsername)
	}
	return nil
}

// Run serves both transports until SIGINT/SIGTERM/SIGQUIT, ctx cancellation
// or the first server failure, then releases the store.
func (app *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	app.logger.Info(ctx, "Starting app...")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return app.httpServer.Run(ctx) })
	g.Go(func() error { return app.grpcServer.Run(ctx) })
	if app.keyWatcher != nil {
		g.Go(func() error { return app.keyWatcher.Run(ctx) })
	}

	err := g.Wait()
	if cerr := app.repomanager.Close(); cerr != nil {
		err = errors.Join(err, cerr)
	}

	app.logger.Info(context.WithoutCancel(ctx), "App stopped")
	return err
}
