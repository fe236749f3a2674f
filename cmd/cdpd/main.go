package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cdpledger/cmd/internal/secret"
	"cdpledger/config"
	"cdpledger/core/events"
	"cdpledger/core/ledger"
	"cdpledger/core/state"
	"cdpledger/indexer"
	"cdpledger/native/pricefeed"
	"cdpledger/observability/logging"
	"cdpledger/observability/metrics"
	telemetry "cdpledger/observability/otel"
	"cdpledger/rpc"
	"cdpledger/storage"
)

const serviceName = "cdpd"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	genesisFlag := flag.String("genesis", "", "Path to a YAML genesis file (overrides config GenesisFile)")
	allowMigrateFlag := flag.Bool("allow-migrate", false, "Allow starting with a mismatched state schema (manual migrations only)")
	flag.Parse()

	if err := run(*configFile, *genesisFlag, *allowMigrateFlag); err != nil {
		slog.Error("cdpd exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(configFile, genesisFlag string, allowMigrate bool) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, logCloser := logging.Setup(serviceName, cfg.Environment, cfg.Log)
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, serviceName, cfg.Environment, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("telemetry shutdown", slog.Any("error", err))
		}
	}()

	genesisPath := strings.TrimSpace(genesisFlag)
	if genesisPath == "" {
		genesisPath = cfg.GenesisFile
	}
	if genesisPath == "" {
		return errors.New("genesis file required")
	}
	genesisFile, err := config.LoadGenesis(genesisPath)
	if err != nil {
		return err
	}
	genesis, err := genesisFile.Resolve()
	if err != nil {
		return err
	}
	params, rewardsDuration, err := cfg.Protocol.Params()
	if err != nil {
		return fmt.Errorf("protocol params: %w", err)
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	store, err := state.Open(db, allowMigrate || cfg.AllowMigrate)
	if err != nil {
		return fmt.Errorf("open state: %w", err)
	}

	hub := rpc.NewEventHub()
	emitters := events.Multi{metrics.NewObserver(), hub}
	var sink *indexer.Sink
	if cfg.Indexer.DSN != "" {
		gdb, err := indexer.Open(cfg.Indexer.DSN)
		if err != nil {
			return err
		}
		sink, err = indexer.NewSink(gdb, logger)
		if err != nil {
			return err
		}
		emitters = append(emitters, sink)
		logger.Info("indexer enabled", slog.String("dsn", logging.MaskDSN(cfg.Indexer.DSN)))
	}

	ledgerCfg := ledger.DefaultConfig()
	ledgerCfg.Params = params
	ledgerCfg.RewardsDuration = rewardsDuration
	ledgerCfg.DeployedAt = genesis.DeployedAt
	if !genesis.RewardsOwner.IsZero() {
		ledgerCfg.RewardsOwner = genesis.RewardsOwner
	}
	feed := pricefeed.NewStatic(genesis.Price)
	sys, err := ledger.New(ledgerCfg, feed, nil, emitters)
	if err != nil {
		return fmt.Errorf("build ledger: %w", err)
	}

	snap, found, err := store.LoadLedger()
	if err != nil {
		return fmt.Errorf("load ledger: %w", err)
	}
	if found {
		if err := sys.Restore(snap); err != nil {
			return fmt.Errorf("restore ledger: %w", err)
		}
		logger.Info("ledger restored", slog.Uint64("version", store.Head().Version), slog.String("root", store.Head().Root.Hex()))
	} else {
		if err := sys.Fund(genesis.Balances); err != nil {
			return err
		}
		head, err := store.SaveLedger(sys.Export())
		if err != nil {
			return fmt.Errorf("save genesis ledger: %w", err)
		}
		logger.Info("ledger initialised from genesis", slog.String("root", head.Root.Hex()), slog.Int("balances", len(genesis.Balances)))
	}

	jwtSecret := cfg.Auth.JWTSecretValue()
	if jwtSecret == "" {
		jwtSecret, err = secret.NewSource(cfg.Auth.JWTSecretEnv, "JWT signing secret: ").Get()
		if err != nil {
			return fmt.Errorf("jwt secret: %w", err)
		}
	}
	auth, err := rpc.NewAuthenticator(rpc.AuthConfig{
		HMACSecret:    jwtSecret,
		Issuer:        cfg.Auth.Issuer,
		Audience:      cfg.Auth.Audience,
		AdminSubjects: cfg.Auth.AdminSubjects,
	}, logger)
	if err != nil {
		return err
	}
	limiter := rpc.NewRateLimiter(rpc.RateLimit{PerSecond: cfg.RateLimit.PerSecond, Burst: cfg.RateLimit.Burst})
	server := rpc.NewServer(sys, sink, auth, limiter, logger)
	server.SetPriceSetter(feed)
	server.SetEventHub(hub)
	if sink != nil {
		server.SetArchiveDir(cfg.Indexer.ArchiveDir)
	}

	httpServer := &http.Server{
		Addr:              cfg.RPCAddress,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("rpc listening", slog.String("addr", cfg.RPCAddress))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	save := func() {
		head, err := store.SaveLedger(sys.Export())
		if err != nil {
			logger.Error("ledger snapshot failed", slog.Any("error", err))
			return
		}
		logger.Debug("ledger snapshot", slog.Uint64("version", head.Version), slog.String("root", head.Root.Hex()))
	}

	ticker := time.NewTicker(time.Duration(cfg.SnapshotIntervalSecs) * time.Second)
	defer ticker.Stop()
	var runErr error
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case err, ok := <-serveErr:
			if ok {
				runErr = fmt.Errorf("rpc server: %w", err)
			}
			break loop
		case <-ticker.C:
			save()
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("rpc shutdown", slog.Any("error", err))
	}
	save()
	logger.Info("cdpd stopped")
	return runErr
}
