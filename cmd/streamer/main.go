package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"alpacastream/config"
	"alpacastream/internal/alpaca/clientcache"
	"alpacastream/internal/alpaca/stream"
	"alpacastream/internal/auth"
	"alpacastream/internal/server"
	"alpacastream/internal/users"
	"alpacastream/logger"
	"alpacastream/pkg/alpaca"
	"alpacastream/pkg/storage/postgres"

	"github.com/sourcegraph/conc"
	"go.uber.org/zap"
)

// devJWTSecret signs tokens when no secret is configured outside prod.
const devJWTSecret = "alpacastream-dev-secret"

func main() {
	issueFor := flag.String("issue-token", "", "print a token for the user with this email and exit")
	createDB := flag.Bool("create-db", false, "create the postgres database before migrating")
	flag.Parse()

	// viper config
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}

	// zap logger
	log, err := logger.New(cfg.Log)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer log.Sync()

	if err := run(cfg, log, *issueFor, *createDB); err != nil {
		log.Fatal("streamer failed", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger, issueFor string, createDB bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env := cfg.Log.Environment

	feed, err := alpaca.ParseFeed(cfg.Alpaca.Stream.Feed)
	if err != nil {
		return err
	}

	store, closeStore, err := openUserStore(cfg, env, createDB)
	if err != nil {
		return err
	}
	defer closeStore()

	clients := clientcache.New(
		clientcache.NewBuilder(alpaca.Options{
			BaseURL:              cfg.Alpaca.REST.BaseURL,
			RESTTimeout:          cfg.Alpaca.REST.Timeout,
			RateLimit:            cfg.Alpaca.REST.RateLimit,
			Burst:                cfg.Alpaca.REST.Burst,
			StreamURL:            cfg.Alpaca.Stream.URL,
			Feed:                 feed,
			MaxReconnectAttempts: cfg.Alpaca.Stream.MaxReconnectAttempts,
			ReconnectDelay:       cfg.Alpaca.Stream.ReconnectDelay,
		}, log),
		clientcache.WithLogger(log),
	)

	svc := users.NewService(store, clients, log)
	if err := svc.Seed(ctx, cfg.Users.Seed); err != nil {
		return err
	}

	secret := cfg.Auth.ResolveJWTSecret(env)
	if secret == "" {
		if env == "prod" {
			return auth.ErrNoSecret
		}
		log.Warn("no jwt secret configured, using the development secret")
		secret = devJWTSecret
	}
	issuer, err := auth.NewIssuer(secret, cfg.Auth.TokenTTL, cfg.Auth.Issuer)
	if err != nil {
		return err
	}

	if issueFor != "" {
		return issueToken(ctx, store, issuer, issueFor)
	}

	sessions := stream.NewSupervisor(log)
	srv := server.New(cfg, server.Deps{
		Resolver: auth.NewResolver(issuer, svc),
		Clients:  clients,
		Users:    svc,
		Sessions: sessions,
		Logger:   log,
	})

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	var wg conc.WaitGroup
	serveErr := make(chan error, 1)
	wg.Go(func() {
		log.Info("listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	})

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err = <-serveErr:
		log.Error("http server stopped", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// hijacked websocket connections are not tracked by http.Server
	sessions.CloseAll("server shutting down")
	if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
		log.Warn("http shutdown", zap.Error(shutdownErr))
	}
	wg.Wait()
	clients.InvalidateAll()

	return err
}

func openUserStore(cfg *config.Config, env string, createDB bool) (users.Store, func(), error) {
	switch cfg.Users.Driver {
	case "", "memory":
		return users.NewMemoryStore(), func() {}, nil
	case "postgres":
		client, err := postgres.InitializeAndMigrateUserRecord(cfg.Postgres, env, createDB)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres user store: %w", err)
		}
		return postgres.NewUserStore(client), func() { _ = client.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown users driver: %s", cfg.Users.Driver)
	}
}

func issueToken(ctx context.Context, store users.Store, issuer *auth.Issuer, email string) error {
	u, err := store.GetByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("lookup %s: %w", email, err)
	}
	token, err := issuer.Issue(u)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
