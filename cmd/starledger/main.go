package main

import (
	"StarLedger/internal/btcmsg"
	"StarLedger/internal/ingestion"
	"StarLedger/internal/ledger"
	"StarLedger/internal/observability"
	"StarLedger/internal/persistence"
	"StarLedger/internal/replay"
	"StarLedger/internal/server"
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

func main() {
	logger := observability.NewLogger("starledger")
	if err := run(logger); err != nil {
		logger.Fatal().Err(err).Msg("starledger exited")
	}
}

func run(logger zerolog.Logger) error {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger.Info().
		Str("store", cfg.Store).
		Str("grpc", cfg.GRPCAddr).
		Str("http", cfg.HTTPAddr).
		Str("metrics", cfg.MetricsAddr).
		Str("bitcoin_net", cfg.BitcoinNet).
		Dur("challenge_window", cfg.ChallengeWindow).
		Bool("reject_replays", cfg.RejectReplays).
		Bool("nats", cfg.NATSURL != "").
		Msg("starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)

	params, err := btcmsg.NetParams(cfg.BitcoinNet)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	verifier := btcmsg.NewVerifier(params)

	// --- Postgres (primary store, mirror, durable replay tier) ---
	var db *sql.DB
	if cfg.NeedsPostgres() {
		db, err = openPostgres(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer db.Close()
	}

	// --- Block store ---
	var (
		store  ledger.BlockStore
		level  *persistence.LevelStore
		mirror *persistence.MirrorWorker
	)
	switch cfg.Store {
	case StorePostgres:
		store = persistence.NewPostgresStore(db)
	case StoreLevelDB:
		level, err = persistence.OpenLevelStore(cfg.LevelDBPath, logger.With().Str("component", "leveldb").Logger())
		if err != nil {
			return err
		}
		defer level.Close()
		store = level
	}

	var observers []ledger.Observer
	if cfg.MirrorPostgres {
		mirror = persistence.NewMirrorWorker(db,
			cfg.MirrorChanSize, cfg.MirrorBatchSize, cfg.MirrorFlushTimeout,
			metrics, logger.With().Str("component", "mirror").Logger())
		observers = append(observers, mirror)
	}

	// --- NATS ---
	var (
		nc         *nats.Conn
		publisher  *ingestion.BlockPublisher
		subscriber *ingestion.NATSSubscriber
		rawChan    chan ingestion.RawSubmission
	)
	if cfg.NATSURL != "" {
		natsLog := logger.With().Str("component", "nats").Logger()
		var js jetstream.JetStream
		nc, js, err = ingestion.ConnectNATS(cfg.NATSURL, natsLog)
		if err != nil {
			return err
		}
		defer nc.Close()

		if err := ingestion.EnsureStreams(ctx, js, natsLog); err != nil {
			return err
		}
		publisher = ingestion.NewBlockPublisher(js, cfg.PublishChanSize, metrics, natsLog)
		observers = append(observers, publisher)

		rawChan = make(chan ingestion.RawSubmission, cfg.SubmitChanSize)
		subscriber = ingestion.NewNATSSubscriber(js, rawChan, natsLog)
	}

	// --- Replay guard ---
	var guard ledger.ReplayGuard
	if cfg.RejectReplays {
		var durable replay.DurableLog
		if db != nil {
			durable = persistence.NewPostgresChallengeLog(db)
		}
		g, err := replay.NewGuard(cfg.ReplayCacheSize, durable, metrics, logger.With().Str("component", "replay").Logger())
		if err != nil {
			return err
		}
		guard = g
	}

	// --- Ledger ---
	ledgerLog := logger.With().Str("component", "ledger").Logger()
	l, err := ledger.New(ctx, ledger.Config{
		Verifier:        verifier,
		Store:           store,
		Observers:       observers,
		Replay:          guard,
		ChallengeWindow: cfg.ChallengeWindow,
		Metrics:         metrics,
		Logger:          &ledgerLog,
	})
	if err != nil {
		return fmt.Errorf("ledger: %w", err)
	}
	logger.Info().Int64("height", l.Height()).Msg("chain loaded")

	if mirror != nil {
		if err := mirror.Backfill(ctx, l.Blocks()); err != nil {
			logger.Warn().Err(err).Msg("mirror backfill failed, continuing with live mirroring")
		}
	}

	// --- Health ---
	healthChecker := observability.NewHealthChecker(func() error {
		if db != nil {
			pingCtx, pingCancel := context.WithTimeout(context.Background(), time.Second)
			defer pingCancel()
			if err := db.PingContext(pingCtx); err != nil {
				return fmt.Errorf("postgres: %w", err)
			}
		}
		if nc != nil && !nc.IsConnected() {
			return fmt.Errorf("nats: %s", nc.Status())
		}
		return nil
	})

	srv, err := server.NewGRPCServer(cfg.GRPCAddr, cfg.HTTPAddr, &server.ServerDeps{
		Registry:      l,
		HealthChecker: healthChecker,
		Metrics:       metrics,
		Logger:        logger.With().Str("component", "api").Logger(),
	})
	if err != nil {
		return fmt.Errorf("server: %w", err)
	}

	// --- Goroutines ---
	errChan := make(chan error, 10)
	running := 0
	start := func(fn func(context.Context) error) {
		running++
		go func() { errChan <- fn(ctx) }()
	}

	if mirror != nil {
		start(mirror.Run)
	}
	if publisher != nil {
		start(publisher.Run)
	}
	if subscriber != nil {
		worker := ingestion.NewSubmissionWorker(l, rawChan, logger.With().Str("component", "submissions").Logger())
		start(worker.Run)
		if err := subscriber.Subscribe(ctx); err != nil {
			return err
		}
	}

	start(srv.StartGRPC)
	start(srv.StartHTTPGateway)
	start(func(ctx context.Context) error { return serveMetrics(ctx, cfg.MetricsAddr, logger) })

	healthChecker.SetReady(true)
	logger.Info().Msg("ready")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errChan:
		running--
		if err != nil {
			logger.Error().Err(err).Msg("component failed, shutting down")
			runErr = err
		}
	}

	healthChecker.SetReady(false)
	if subscriber != nil {
		subscriber.Stop()
	}
	cancel()

	// Give servers and workers a bounded window to drain
	select {
	case <-time.After(cfg.ShutdownTimeout):
		logger.Warn().Dur("timeout", cfg.ShutdownTimeout).Msg("shutdown timed out")
	case <-drained(errChan, running):
	}

	logger.Info().Int64("height", l.Height()).Msg("stopped")
	return runErr
}

func openPostgres(ctx context.Context, cfg Config, logger zerolog.Logger) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.PostgresURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	migrator := persistence.NewMigrator(db, cfg.MigrationsDir, logger.With().Str("component", "migrate").Logger())
	if err := migrator.Up(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

func serveMetrics(ctx context.Context, addr string, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", addr).Msg("metrics server listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// drained closes once n results have been read from errChan.
func drained(errChan <-chan error, n int) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		for i := 0; i < n; i++ {
			<-errChan
		}
		close(done)
	}()
	return done
}
