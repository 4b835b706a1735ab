package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sheikh-saqib/custody-vault-ledger/internal/auth"
	"github.com/sheikh-saqib/custody-vault-ledger/internal/config"
	"github.com/sheikh-saqib/custody-vault-ledger/internal/events/kafka"
	eventsmem "github.com/sheikh-saqib/custody-vault-ledger/internal/events/memory"
	"github.com/sheikh-saqib/custody-vault-ledger/internal/genesis"
	"github.com/sheikh-saqib/custody-vault-ledger/internal/httpapi"
	interfaces "github.com/sheikh-saqib/custody-vault-ledger/internal/interfaces"
	"github.com/sheikh-saqib/custody-vault-ledger/internal/ledger"
	"github.com/sheikh-saqib/custody-vault-ledger/internal/logging"
	"github.com/sheikh-saqib/custody-vault-ledger/internal/metrics"
	"github.com/sheikh-saqib/custody-vault-ledger/internal/social"
	"github.com/sheikh-saqib/custody-vault-ledger/internal/storage/memory"
	"github.com/sheikh-saqib/custody-vault-ledger/internal/storage/postgres"
	"go.uber.org/zap"
)

// store is what the server needs from a storage backend.
type store interface {
	interfaces.VaultStore
	interfaces.ReactionStore
	genesis.Seeder
}

func main() {
	configPath := flag.String("config", "", "Path to config.yaml (optional)")
	envPath := flag.String("env", ".env", "Path to .env file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath, *envPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	var st store
	switch cfg.Storage {
	case config.BackendPostgres:
		db, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return err
		}
		defer db.Close()
		pg := postgres.NewPostgresStore(db)
		if err := pg.Migrate(ctx); err != nil {
			return err
		}
		st = pg
	default:
		st = memory.NewMemoryStore()
	}

	if cfg.GenesisPath != "" {
		f, err := genesis.LoadFile(cfg.GenesisPath)
		if err != nil {
			return err
		}
		if err := genesis.Apply(ctx, st, f); err != nil {
			return err
		}
		logger.Info("genesis applied", zap.String("path", cfg.GenesisPath), zap.Int("vaults", len(f.Vaults)))
	}

	var publisher interfaces.EventPublisher
	switch cfg.Events {
	case config.BackendKafka:
		kp := kafka.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopicPrefix, logger.Named("kafka"))
		defer kp.Close()
		publisher = kp
	default:
		publisher = eventsmem.NewJournal()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(reg)
	if err != nil {
		return err
	}

	vaults := ledger.NewLedger(st, publisher, cfg.Ledger(),
		ledger.WithLogger(logger.Named("ledger")),
		ledger.WithRecorder(m),
	)
	reactions := social.NewReactions(st, publisher,
		social.WithLogger(logger.Named("social")),
		social.WithRecorder(m),
		social.WithDeposit(cfg.ReactionDeposit),
	)
	api := httpapi.NewServer(vaults, reactions, auth.NewAuthenticator(),
		httpapi.WithLogger(logger.Named("http")),
		httpapi.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
		httpapi.WithMetricsHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})),
	)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("addr", cfg.HTTPAddr),
			zap.String("storage", cfg.Storage), zap.String("events", cfg.Events))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}
