package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"credledger.org/internal/auth"
	"credledger.org/internal/config"
	"credledger.org/internal/httpapi"
	"credledger.org/internal/ledger"
	"credledger.org/internal/obs"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg := config.MustLoad(os.Getenv("CREDLEDGER_CONFIG"))
	if cfg.Auth.SigningSecret == "dev-secret-change-me" && cfg.Env != "local" {
		log.Fatal("refusing to start: default signing secret outside local env")
	}

	// The Postgres store is selected when a DSN is configured; otherwise the
	// flat-file store carries the collection.
	var (
		store auth.Store
		db    *sql.DB
	)
	if cfg.Store.PostgresDSN != "" {
		var err error
		db, err = sql.Open("pgx", cfg.Store.PostgresDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
		store = auth.NewPGStore(db)
	} else {
		fs, err := auth.NewFileStore(cfg.Store.FilePath)
		if err != nil {
			log.Fatalf("open account store: %v", err)
		}
		store = fs
	}

	tokens, err := auth.NewTokenService(cfg.Auth.SigningSecret, store,
		auth.WithAccessTTL(cfg.Auth.AccessTTL),
		auth.WithRefreshTTL(cfg.Auth.RefreshTTL),
	)
	if err != nil {
		log.Fatalf("token service: %v", err)
	}
	accounts := auth.NewService(store, tokens,
		auth.WithMinPasswordLength(cfg.Auth.MinPasswordLength),
		auth.WithBcryptCost(cfg.Auth.BcryptCost),
	)

	api := httpapi.New(accounts, ledger.NewInMemoryGateway(), httpapi.ReadyProbe{DB: db}, httpapi.Options{
		Version:       version,
		MaxBodyBytes:  cfg.HTTPServer.MaxBodyBytes,
		RatePerSecond: cfg.RateLimit.PerSecond,
		RateBurst:     cfg.RateLimit.Burst,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPServer.Address,
		Handler:           api.Handler(),
		ReadTimeout:       cfg.HTTPServer.ReadTimeout,
		ReadHeaderTimeout: cfg.HTTPServer.ReadTimeout,
		WriteTimeout:      cfg.HTTPServer.WriteTimeout,
		IdleTimeout:       cfg.HTTPServer.IdleTimeout,
	}

	log.Printf("Starting credledger-api %s on %s", version, srv.Addr)

	// graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}
