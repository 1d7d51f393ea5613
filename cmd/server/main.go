// Package main is the entry point for the basket aggregation service.
// The service combines weighted member accounts into synthetic baskets,
// keeps their derived values current as accounts and exchange rates change,
// and serves the results over an HTTP API.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/aristath/basket/internal/clientdata"
	"github.com/aristath/basket/internal/clients/connector"
	"github.com/aristath/basket/internal/clients/exchangerate"
	"github.com/aristath/basket/internal/config"
	"github.com/aristath/basket/internal/database"
	"github.com/aristath/basket/internal/domain"
	"github.com/aristath/basket/internal/events"
	"github.com/aristath/basket/internal/modules/account"
	accounthandlers "github.com/aristath/basket/internal/modules/account/handlers"
	"github.com/aristath/basket/internal/modules/basket"
	baskethandlers "github.com/aristath/basket/internal/modules/basket/handlers"
	currencyhandlers "github.com/aristath/basket/internal/modules/currency/handlers"
	"github.com/aristath/basket/internal/scheduler"
	"github.com/aristath/basket/internal/server"
	"github.com/aristath/basket/internal/services"
	"github.com/aristath/basket/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		println("failed to load configuration:", err.Error())
		os.Exit(1)
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.DevMode})
	logger.SetGlobalLogger(log)
	log.Info().Str("data_dir", cfg.DataDir).Int("port", cfg.Port).Msg("Starting basket service")

	// Databases: basket definitions, cached client data, valuation history.
	basketDB, err := openDatabase(cfg.DataDir, "basket", database.ProfileStandard)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open basket database")
	}
	defer basketDB.Close()

	clientDataDB, err := openDatabase(cfg.DataDir, "client_data", database.ProfileCache)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open client data database")
	}
	defer clientDataDB.Close()

	historyDB, err := openDatabase(cfg.DataDir, "history", database.ProfileStandard)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open history database")
	}
	defer historyDB.Close()

	// Events
	eventBus := events.NewBus(log)
	eventManager := events.NewManager(eventBus, log)

	// Client data cache and external clients
	cacheRepo := clientdata.NewRepository(clientDataDB.Conn())
	rateClient := exchangerate.NewClient(cacheRepo, log)
	connectorClient := connector.NewClient(cfg.ConnectorURL, cacheRepo, log)

	// Services
	exchangeService := services.NewCurrencyExchangeService(rateClient, log)
	registry := account.NewRegistry(eventManager, log)

	basketRepo := basket.NewRepository(basketDB.Conn(), log)
	historyRepo := basket.NewHistoryRepository(historyDB.Conn(), log)
	basketService := basket.NewService(registry, exchangeService, connectorClient, basketRepo, eventManager, log)

	// Live account updates from the connector. Every applied snapshot fires
	// the account's change notifications, which recompute member baskets.
	var accountStream *connector.AccountStream
	if cfg.ConnectorWSURL != "" {
		accountStream = connector.NewAccountStream(cfg.ConnectorWSURL, func(update connector.AccountUpdate) {
			registry.Apply(account.Snapshot{
				ID:           update.AccountID,
				Name:         update.Name,
				Currency:     currencyOrDefault(update.Currency, cfg),
				BeginValue:   update.BeginValue,
				CurrentValue: update.CurrentValue,
				BlockedValue: update.BlockedValue,
				Leverage:     update.Leverage,
				Commission:   update.Commission,
			}, "connector")
		}, log)
		accountStream.Start()
		defer accountStream.Stop()
	} else {
		log.Warn().Msg("CONNECTOR_WS_URL not set, account updates disabled")
	}

	// Baskets persisted by a previous run come back before the API opens.
	if err := basketService.Restore(); err != nil {
		log.Error().Err(err).Msg("Failed to restore persisted baskets")
	}

	// Background jobs
	sched := scheduler.New(eventManager, log)
	rateSyncJob := scheduler.NewRateSyncJob(rateClient, cfg.RateCurrencies, eventManager, log)
	snapshotJob := scheduler.NewSnapshotJob(basketService, historyRepo, eventManager, log)
	cleanupJob := clientdata.NewCleanupJob(cacheRepo, log)

	for _, reg := range []struct {
		spec string
		job  scheduler.Job
	}{
		{cfg.RateSyncSpec, rateSyncJob},
		{cfg.SnapshotSpec, snapshotJob},
		{cfg.CacheCleanupSpec, cleanupJob},
	} {
		if err := sched.Register(reg.spec, reg.job); err != nil {
			log.Fatal().Err(err).Msg("Failed to register job")
		}
	}

	// Warm the rate cache before the first basket recomputation needs it.
	sched.RunNow(rateSyncJob)
	sched.Start()
	defer sched.Stop()

	// HTTP server
	srv := server.New(server.Config{
		Port:    cfg.Port,
		DevMode: cfg.DevMode,
		Log:     log,

		BasketHandler:   baskethandlers.NewHandler(basketService, historyRepo, log),
		AccountHandler:  accounthandlers.NewHandler(registry, log),
		CurrencyHandler: currencyhandlers.NewHandler(exchangeService, rateClient, log),
		SystemHandlers: server.NewSystemHandlers(map[string]*database.DB{
			"basket":      basketDB,
			"client_data": clientDataDB,
			"history":     historyDB,
		}, basketService, registry, log),
		EventsStream: server.NewEventsStreamHandler(eventBus, log),
	})

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for shutdown signal or server failure
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	case err := <-serverErr:
		log.Error().Err(err).Msg("HTTP server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Graceful shutdown failed")
	}

	log.Info().Msg("Basket service stopped")
}

// currencyOrDefault falls back to the configured base currency when the
// connector omits the account currency.
func currencyOrDefault(currency string, cfg *config.Config) domain.Currency {
	if currency == "" {
		return cfg.BaseCurrency
	}
	return domain.Currency(currency)
}

// openDatabase opens one named database under the data directory and runs
// its migrations.
func openDatabase(dataDir, name string, profile database.DatabaseProfile) (*database.DB, error) {
	db, err := database.New(database.Config{
		Path:    filepath.Join(dataDir, name+".db"),
		Profile: profile,
		Name:    name,
	})
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
