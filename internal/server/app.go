// Package server assembles the session service: it opens the user database
// and the session store, builds the token codec and session manager, and
// runs the HTTP and gRPC endpoints until a shutdown signal arrives.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrijs2005/sessionkeeper/internal/logging"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/auth"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/authn"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/calls"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/config"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/passwords"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/repositories/sessions"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/services"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/storage"

	gs "github.com/dmitrijs2005/sessionkeeper/internal/server/grpc"
	hs "github.com/dmitrijs2005/sessionkeeper/internal/server/http"
)

const (
	pingTimeout     = 5 * time.Second
	shutdownTimeout = 10 * time.Second
)

type App struct {
	config   *config.Config
	logger   logging.Logger
	db       *sql.DB
	closers  []func() error
	http     *hs.Server
	grpc     *gs.GRPCServer
	sessions *services.SessionService
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := logging.NewJSON(os.Stdout, c.LogLevel)
	app := &App{config: c, logger: logger}

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	app.db = db
	app.closers = append(app.closers, db.Close)

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		app.Close()
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	m := metrics.New()

	store, err := app.newSessionStore(ctx)
	if err != nil {
		app.Close()
		return nil, err
	}
	store = metrics.InstrumentStore(store, m)

	codec, err := auth.NewCodec(c.AccessTokenSecret, c.RefreshTokenSecret,
		c.AccessTokenValidityDuration, c.RefreshTokenValidityDuration)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("codec init error: %w", err)
	}

	app.sessions = services.NewSessionService(db, rm, store, codec, passwords.NewHasher(c.BcryptCost), c, logger)
	authenticator := authn.New(codec, store, authn.WithObserver(m.ObserveAuth))

	var objects hs.ObjectStorage
	if c.S3BaseEndpoint != "" {
		client, err := storage.New(ctx, c)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("storage init error: %w", err)
		}
		objects = client
	} else {
		logger.Warn(ctx, "object storage disabled, no S3 endpoint configured")
	}

	directory := calls.NewDirectory(c.UploadDir, c.MembersFile, logger)

	app.http = hs.NewServer(app.sessions, authenticator, directory, objects, m, m.Handler(), logger)
	app.grpc = gs.NewGRPCServer(c.EndpointAddrGRPC, logger, authenticator)

	return app, nil
}

// newSessionStore connects to Redis, or falls back to the in-process store
// when no Redis address is configured.
func (app *App) newSessionStore(ctx context.Context) (sessions.Store, error) {
	if app.config.RedisAddr == "" {
		app.logger.Warn(ctx, "no redis address configured, sessions are kept in memory")
		return sessions.NewMemoryStore(), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     app.config.RedisAddr,
		Password: app.config.RedisPassword,
		DB:       app.config.RedisDB,
	})
	store := sessions.NewRedisStore(client)
	if err := store.Ping(ctx, pingTimeout); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis init error: %w", err)
	}
	app.closers = append(app.closers, client.Close)

	return store, nil
}

// Close releases the database and session store connections.
func (app *App) Close() {
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i](); err != nil {
			app.logger.Error(context.Background(), "close error", "error", err)
		}
	}
	app.closers = nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.grpc.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	srv := &http.Server{
		Addr:              app.config.EndpointAddrHTTP,
		Handler:           app.http.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		app.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			app.logger.Error(ctx, "http shutdown error", "error", err)
		}
	}()

	app.logger.Info(ctx, "Starting HTTP server", "address", srv.Addr)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	app.Close()
	app.logger.Info(context.Background(), "App stopped")
}
