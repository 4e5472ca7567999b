package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nkiryanov/skyauth/internal/credstore"
	"github.com/nkiryanov/skyauth/internal/handlers"
	"github.com/nkiryanov/skyauth/internal/identity"
	"github.com/nkiryanov/skyauth/internal/logger"
	"github.com/nkiryanov/skyauth/internal/session"
)

type App struct {
	ListenAddr string

	Session *session.Session
	Store   credstore.Store
	Logger  logger.Logger
}

func NewApp(ctx context.Context, c *Config) (*App, error) {
	// Initialize logger
	logger, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	// Open credential store, connects and migrates for shared backends
	store, err := credstore.Open(ctx, c.StoreConfig())
	if err != nil {
		return nil, fmt.Errorf("error while opening credential store. Err: %w", err)
	}

	client := identity.NewClient(identity.Config{
		BaseURL:        c.AuthServiceURL,
		Store:          store,
		RequestTimeout: c.RequestTimeout,
		Logger:         logger.With("component", "identity"),
	})

	s := session.New(session.Config{
		Store:    store,
		Client:   client,
		CacheTTL: c.CacheTTL,
		Logger:   logger.With("component", "session"),
	})

	return &App{
		ListenAddr: c.ListenAddr,
		Session:    s,
		Store:      store,
		Logger:     logger,
	}, nil
}

func (a *App) Close() error {
	return a.Store.Close()
}

// Serve starts portal http server and closes gracefully on context cancellation
func (a *App) Serve(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    a.ListenAddr,
		Handler: handlers.NewRouter(a.Session, a.Logger),
	}

	idleConnsClosed := make(chan struct{})
	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); errors.Is(err, context.DeadlineExceeded) {
			a.Logger.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		a.Logger.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	a.Logger.Info("Starting portal", "address", a.ListenAddr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed

	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
