package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"solana_game_server/config"
	"solana_game_server/controllers"
	"solana_game_server/ledger"
	"solana_game_server/logging"
	"solana_game_server/routes"
	"solana_game_server/services"
	"solana_game_server/socket"
	"solana_game_server/solana"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/cors"
	"github.com/spf13/pflag"
	_ "modernc.org/sqlite"
)

// localDecimals is the mint precision of the in-process ledger.
const localDecimals = 6

func main() {
	configPath := pflag.StringP("config", "c", "", "path to a YAML config file")
	port := pflag.String("port", "", "HTTP port (overrides config and PORT)")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	if *port != "" {
		cfg.Server.Port = *port
	}

	logger, err := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Invalid log settings: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("❌ Server stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	store, closeStore, err := newStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	settlement, localLedger, closeSettlement, err := newSettlement(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeSettlement()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	server := &services.GameServer{
		Store:      store,
		Settlement: settlement,
		Metrics:    services.NewMetrics(registry),
		Logger:     logger,
	}

	var outcomes controllers.OutcomeLinker
	if cfg.Archive.Bucket != "" {
		archive, err := services.NewS3OutcomeArchive(ctx, cfg.Store.AWSRegion, cfg.Archive.Bucket, cfg.Archive.Prefix, cfg.Archive.PresignExpiry)
		if err != nil {
			return err
		}
		archive.Logger = logger
		server.Archive = archive
		outcomes = archive
		logger.Info("✅ Outcome archive enabled", "bucket", cfg.Archive.Bucket)
	}

	r := mux.NewRouter()
	routes.RegisterRoutes(r, registry)
	routes.RegisterMatchRoutes(r, controllers.NewMatchController(server, outcomes, logger))
	if localLedger != nil {
		routes.RegisterLedgerRoutes(r, &controllers.LedgerController{Ledger: localLedger})
	}

	if cfg.Server.EnableSocket {
		sock := socket.NewSocketServer(logger)
		go func() {
			if err := sock.Serve(); err != nil {
				logger.Error("❌ Socket server failed", "error", err)
			}
		}()
		defer sock.Close()
		server.Events = sock
		r.PathPrefix("/socket.io/").Handler(sock.IO)
	}

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: cfg.Server.AllowCredentials,
	}).Handler(r)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           corsHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("🚀 Starting server", "port", cfg.Server.Port, "store", cfg.Store.Backend, "network", cfg.Solana.Network)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("🛑 Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func newStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (services.MatchStore, func(), error) {
	noop := func() {}
	switch cfg.Store.Backend {
	case config.StoreDynamo:
		client, err := services.InitializeDynamoDBClient(ctx, cfg.Store.AWSRegion)
		if err != nil {
			return nil, noop, err
		}
		logger.Info("✅ DynamoDB client initialized", "region", cfg.Store.AWSRegion)
		return &services.DynamoMatchStore{
			Dynamo:       &services.DynamoService{Client: client, Logger: logger},
			MatchesTable: cfg.Store.MatchesTable,
			UsersTable:   cfg.Store.UsersTable,
		}, noop, nil
	case config.StoreRedis:
		store, err := services.NewRedisMatchStore(ctx, cfg.Store.RedisURL)
		if err != nil {
			return nil, noop, err
		}
		return store, func() { store.Close() }, nil
	case config.StoreSQL:
		store, err := services.OpenSQLMatchStore(ctx, cfg.Store.SQLDriver, cfg.Store.SQLDSN, logger)
		if err != nil {
			return nil, noop, err
		}
		return store, func() { store.Close() }, nil
	default:
		logger.Warn("⚠️ Using the in-memory record store; matches are lost on restart")
		return services.NewMemoryMatchStore(), noop, nil
	}
}

func newSettlement(ctx context.Context, cfg *config.Config, logger *slog.Logger) (services.SettlementClient, *ledger.Ledger, func(), error) {
	if cfg.Solana.Network == config.NetworkLocal {
		var programID solana.PublicKey
		if cfg.Solana.ProgramID != "" {
			parsed, err := solana.ParsePublicKey(cfg.Solana.ProgramID)
			if err != nil {
				return nil, nil, nil, err
			}
			programID = parsed
		}
		l := ledger.New(programID, localDecimals, logger)
		logger.Warn("⚠️ Settling on the in-process ledger", "program", programID.String())
		return l, l, func() {}, nil
	}

	wallet, err := solana.LoadWallet(cfg.Solana.WalletPath)
	if err != nil {
		return nil, nil, nil, err
	}
	client, err := solana.Dial(ctx, solana.Options{
		Endpoint:          cfg.Solana.Network,
		Wallet:            wallet,
		ProgramID:         cfg.Solana.ProgramID,
		MintKey:           cfg.Solana.MintKey,
		Commitment:        cfg.Solana.Commitment,
		RequestsPerSecond: cfg.Solana.RequestsPerSecond,
		RequestTimeout:    cfg.Solana.RequestTimeout,
		Logger:            logger,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	return client, nil, client.Close, nil
}
