package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"capcall/internal/capitalcall/metrics"
	ccservice "capcall/internal/capitalcall/service"
	ccstore "capcall/internal/capitalcall/store"
	"capcall/internal/events"
	"capcall/internal/ledger"
	"capcall/internal/platform/config"
	"capcall/internal/platform/httpserver"
	"capcall/internal/platform/logger"
	"capcall/internal/platform/middleware"
	platformredis "capcall/internal/platform/redis"
	"capcall/internal/registry"
	httptransport "capcall/internal/transport/http"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var registryStore registry.Store
	var callTx ccstore.Tx
	if cfg.PostgresDSN != "" {
		db, err := sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("ping postgres: %w", err)
		}
		if err := registry.Migrate(ctx, db); err != nil {
			return fmt.Errorf("migrate registries: %w", err)
		}
		if err := ccstore.Migrate(ctx, db); err != nil {
			return fmt.Errorf("migrate capital calls: %w", err)
		}
		registryStore = registry.NewPostgresStore(db)
		callTx = ccstore.NewPostgresTx(db)
		log.Info("using postgres backend")
	} else {
		registryStore = registry.NewInMemoryStore()
		callTx = ccstore.NewInMemoryStore()
		log.Info("using in-memory backend")
	}

	var publisher events.Publisher
	redisClient, err := platformredis.New(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
		publisher = events.NewRedisPublisher(redisClient.Client)
		log.Info("publishing events to redis stream")
	} else {
		publisher = events.NewInMemoryPublisher()
		log.Info("events kept in memory")
	}

	ledgerSvc := ledger.NewInMemory()

	registrySvc := registry.NewService(registryStore, ledgerSvc, log)
	callSvc, err := ccservice.New(callTx, registrySvc, ledgerSvc, publisher, metrics.New(), log)
	if err != nil {
		return fmt.Errorf("build capital-call service: %w", err)
	}

	validator := middleware.NewValidator(cfg.JWTSigningKey)
	handler := httptransport.NewHandler(registrySvc, callSvc, log)
	router := httptransport.NewRouter(handler, validator, log)
	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), config.DefaultTxTimeout)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
