package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"oai-edge/internal/audit"
	"oai-edge/internal/backend"
	"oai-edge/internal/consortium"
	consortiumstore "oai-edge/internal/consortium/store"
	"oai-edge/internal/harvest"
	harvestmetrics "oai-edge/internal/harvest/metrics"
	"oai-edge/internal/platform/config"
	"oai-edge/internal/platform/httpserver"
	"oai-edge/internal/platform/logger"
	platformredis "oai-edge/internal/platform/redis"
	httptransport "oai-edge/internal/transport/http"
)

// main wires dependencies and keeps the server lifecycle small. Harvesting
// logic lives in the internal packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	checks := map[string]httptransport.HealthChecker{}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("redis unavailable", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		checks["redis"] = redisClient
	}

	var membership consortium.Store
	if cfg.PostgresURL != "" {
		db, err := sql.Open("pgx", cfg.PostgresURL)
		if err != nil {
			log.Error("open postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		store := consortiumstore.NewPostgres(db)
		if err := store.EnsureSchema(context.Background()); err != nil {
			log.Error("prepare membership schema", "error", err)
			os.Exit(1)
		}
		membership = store
		checks["postgres"] = dbHealth{db}
	} else {
		// Without a membership source every tenant harvests alone.
		membership = consortiumstore.NewInMemory()
	}

	resolverOpts := []consortium.ResolverOption{consortium.WithLogger(log)}
	if redisClient != nil {
		resolverOpts = append(resolverOpts,
			consortium.WithCache(redisClient.Client, cfg.MembershipCacheTTL))
	}
	resolver := consortium.NewResolver(membership, resolverOpts...)

	caller := backend.New(cfg.BackendBaseURL,
		backend.WithHTTPClient(&http.Client{Timeout: cfg.BackendTimeout}),
		backend.WithTenantHeader(cfg.TenantHeader),
		backend.WithLogger(log),
	)

	engineOpts := []harvest.Option{
		harvest.WithLogger(log),
		harvest.WithMetrics(harvestmetrics.New()),
		harvest.WithMaxHops(cfg.MaxHops),
	}
	if len(cfg.KafkaBrokers) > 0 {
		publisher, err := audit.NewKafka(cfg.KafkaBrokers, cfg.KafkaTopic, log)
		if err != nil {
			log.Error("kafka unavailable", "error", err)
			os.Exit(1)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = publisher.Close(ctx)
		}()
		engineOpts = append(engineOpts, harvest.WithAudit(publisher))
	}

	engine := harvest.New(caller, resolver,
		harvest.NewErrorPolicy(cfg.ErrorsProcessing), engineOpts...)

	handler := httptransport.NewHandler(engine, log,
		httptransport.WithTenantHeader(cfg.TenantHeader))
	router := httptransport.NewRouter(handler, checks)

	srv := httpserver.New(cfg.Addr, router)

	log.Info("starting oai-edge", "addr", cfg.Addr, "backend", cfg.BackendBaseURL)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
}

type dbHealth struct{ db *sql.DB }

func (d dbHealth) Health(ctx context.Context) error {
	return d.db.PingContext(ctx)
}
