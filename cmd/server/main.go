// Carteira server: position consolidation engine over a transaction ledger.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dmelo/carteira/internal/clientdata"
	"github.com/dmelo/carteira/internal/clients/prices"
	"github.com/dmelo/carteira/internal/config"
	"github.com/dmelo/carteira/internal/database"
	"github.com/dmelo/carteira/internal/modules/assets"
	"github.com/dmelo/carteira/internal/modules/ledger"
	ledgerhandlers "github.com/dmelo/carteira/internal/modules/ledger/handlers"
	"github.com/dmelo/carteira/internal/modules/portfolio"
	portfoliohandlers "github.com/dmelo/carteira/internal/modules/portfolio/handlers"
	"github.com/dmelo/carteira/internal/queue"
	"github.com/dmelo/carteira/internal/scheduler"
	"github.com/dmelo/carteira/internal/server"
	"github.com/dmelo/carteira/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	log.Info().Str("data_dir", cfg.DataDir).Int("port", cfg.Port).Msg("Starting carteira")

	portfolioDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "portfolio.db"),
		Profile: database.ProfileStandard,
		Name:    "portfolio",
	})
	if err != nil {
		return fmt.Errorf("failed to open portfolio database: %w", err)
	}
	defer portfolioDB.Close()

	cacheDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "cache.db"),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	if err != nil {
		return fmt.Errorf("failed to open cache database: %w", err)
	}
	defer cacheDB.Close()

	for _, db := range []*database.DB{portfolioDB, cacheDB} {
		if err := db.Migrate(); err != nil {
			return fmt.Errorf("failed to migrate %s database: %w", db.Name(), err)
		}
	}

	// Repositories
	assetRepo := assets.NewRepository(portfolioDB.Conn(), log)
	entryRepo := ledger.NewRepository(portfolioDB.Conn(), log)
	portfolioRepo := portfolio.NewRepository(portfolioDB.Conn(), log)
	snapshotRepo := portfolio.NewSnapshotRepository(portfolioDB.Conn(), log)
	cacheRepo := clientdata.NewRepository(cacheDB.Conn())

	// Services
	priceClient := prices.NewClient(cfg.PriceServiceURL, cacheRepo, log)
	assetService := assets.NewService(assetRepo, priceClient, log)
	queueManager := queue.NewManager(assetService, cfg.QueueSize, log)
	ledgerService := ledger.NewService(portfolioDB.Conn(), entryRepo, assetRepo, queueManager, log)
	consolidator := portfolio.NewService(portfolioDB, portfolioRepo, snapshotRepo, entryRepo, assetRepo, queueManager, log)
	reportService := portfolio.NewReportService(consolidator, portfolioRepo, snapshotRepo, entryRepo, assetRepo, log)

	// Background workers
	queueManager.Start()
	defer queueManager.Stop()

	sched := scheduler.New(log)
	refreshSchedule := fmt.Sprintf("@every %dm", cfg.PriceRefreshMinutes)
	if err := sched.AddJob(refreshSchedule, scheduler.NewRefreshPricesJob(queueManager)); err != nil {
		return fmt.Errorf("failed to register price refresh job: %w", err)
	}
	if err := sched.AddJob("@every 1h", scheduler.NewPurgeCacheJob(cacheRepo, log)); err != nil {
		return fmt.Errorf("failed to register cache purge job: %w", err)
	}
	sched.Start()
	defer sched.Stop()

	// HTTP surface
	portfolioHandler := portfoliohandlers.NewHandler(portfolioRepo, consolidator, reportService, log)
	ledgerHandler := ledgerhandlers.NewHandler(ledgerService, entryRepo, assetRepo, portfolioRepo, log)

	srv := server.New(server.Config{
		Log:              log,
		Cfg:              cfg,
		PortfolioDB:      portfolioDB,
		CacheDB:          cacheDB,
		PortfolioHandler: portfolioHandler,
		LedgerHandler:    ledgerHandler,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}
