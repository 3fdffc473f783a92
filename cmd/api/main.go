package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dchud/unalog2/internal/app"
	"github.com/dchud/unalog2/internal/config"
	"github.com/dchud/unalog2/internal/logging"
	"github.com/dchud/unalog2/internal/search"
	"github.com/dchud/unalog2/internal/session"
	"github.com/dchud/unalog2/internal/snapshot"
	"github.com/dchud/unalog2/internal/store"
)

func main() {
	cfg, err := config.Load(os.Getenv("UNALOG_CONFIG_DIR"))
	if err != nil {
		logging.New("info", "json").WithError(err).Fatal("config load failed")
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("database connection failed")
	}
	defer db.Close()

	applied, err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir)
	if err != nil {
		log.WithError(err).Fatal("migrations failed")
	}
	for _, version := range applied {
		log.WithField("version", version).Info("migration applied")
	}

	dataStore := store.NewPostgresStore(db)

	var index search.Indexer
	var primary search.Searcher
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meili := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, cfg.MeiliIndex, log)
		defer meili.Close()
		index, primary = meili, meili
	} else {
		log.Warn("MEILI_URL not set, search uses postgres only")
	}
	searchService := search.NewService(primary, search.NewPgFTS(dataStore), dataStore, log)
	mirror := search.NewMirror(index, dataStore, log, cfg.IndexBatchSize, cfg.IndexCommitEvery)
	relay := search.NewRelay(dataStore, mirror, log, cfg.OutboxBatch, cfg.OutboxMaxAttempts, cfg.OutboxPollInterval)
	go relay.Run(ctx)

	deps := app.Deps{
		Store:  dataStore,
		Search: searchService,
		Mirror: mirror,
		Relay:  relay,
		Log:    log,
	}
	if strings.TrimSpace(cfg.RedisURL) != "" {
		sessions, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.WithError(err).Fatal("redis connection failed")
		}
		defer sessions.Close()
		deps.Sessions = sessions
	} else {
		log.Warn("REDIS_URL not set, sign-in is disabled")
	}
	if cfg.SnapshotEnabled {
		if !snapshot.Available() {
			log.Warn("page snapshots enabled but no chrome binary found")
		}
		deps.Snapshots = snapshot.NewChrome(cfg.SnapshotTimeout)
	}
	service := app.New(cfg, deps)

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin, log)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.WithField("addr", cfg.Addr).Info("unalog API listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server failed")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("shutdown error")
	}
}
