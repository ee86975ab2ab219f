package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mvukovic/bankcore/internal/adapter/interbank"
	"github.com/mvukovic/bankcore/internal/adapter/marketdata"
	"github.com/mvukovic/bankcore/internal/adapter/repository/postgres"
	"github.com/mvukovic/bankcore/internal/config"
	"github.com/mvukovic/bankcore/internal/domain"
	"github.com/mvukovic/bankcore/internal/logging"
	"github.com/mvukovic/bankcore/internal/queue"
	"github.com/mvukovic/bankcore/internal/usecase/matching"
	"github.com/mvukovic/bankcore/internal/usecase/rates"
	"github.com/mvukovic/bankcore/internal/usecase/settlement"
	"github.com/mvukovic/bankcore/internal/usecase/transfer"
	"github.com/mvukovic/bankcore/internal/worker"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "bankcore",
		Short: "Multi-currency banking ledger",
		Long:  `Core banking service: order matching against streaming quotes plus queue-based settlement of multi-currency transfers`,
		Run:   runServer,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(logging.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		File:       cfg.Logging.File,
		MaxSize:    cfg.Logging.MaxSize,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAge,
	})

	db, err := postgres.NewDB(cfg.Database.ConnectionString())
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	// Repositories
	accountRepo := postgres.NewAccountRepository(db)
	transactionRepo := postgres.NewTransactionRepository(db)
	currencyRepo := postgres.NewCurrencyRepository(db)
	codeRepo := postgres.NewTransactionCodeRepository(db)
	userRepo := postgres.NewUserRepository(db)
	exchangeRepo := postgres.NewExchangeRepository(db)
	orderRepo := postgres.NewOrderRepository(db)
	assetRepo := postgres.NewAssetRepository(db)
	securityRepo := postgres.NewSecurityRepository(db)

	// Outbound adapters
	gateway := interbank.NewClient(cfg.Interbank.Endpoints, seconds(cfg.Interbank.Timeout), log)
	feed := marketdata.NewClient(cfg.MarketData.URL, seconds(cfg.MarketData.Timeout), seconds(cfg.MarketData.CacheTTL), log)

	// The settlement currency must exist before any job can be drained.
	settlementCurrency, err := currencyRepo.GetByCode(context.Background(), cfg.Bank.SettlementCurrency)
	if err != nil {
		log.WithError(err).WithField("currency", cfg.Bank.SettlementCurrency).
			Fatal("Settlement currency not found")
	}

	// Services. The queue pair ties the preparer to the drain workers.
	queues := queue.NewQueues()
	rateService := rates.NewService(exchangeRepo)
	transferService := transfer.NewService(
		transactionRepo, accountRepo, currencyRepo, codeRepo, userRepo,
		gateway, rateService, queues, cfg.Bank.Code, log,
	)
	settlementService := settlement.NewService(
		transactionRepo, accountRepo, rateService, gateway, settlementCurrency.ID, log,
	)
	matchingService := matching.NewService(
		orderRepo, assetRepo, securityRepo, accountRepo, transferService, log,
	)

	// Workers: one drainer per queue, one quote cycler per asset class.
	workers := []interface{ Run(context.Context) }{
		worker.NewQueueDrainer("internal", queues.Internal, settlementService, seconds(cfg.Settlement.InternalInterval), log),
		worker.NewQueueDrainer("external", queues.External, settlementService, seconds(cfg.Settlement.ExternalInterval), log),
		worker.NewQuoteCycler(domain.SecurityTypeStock, securityRepo, feed, matchingService, seconds(cfg.Quotes.StockInterval), log),
		worker.NewQuoteCycler(domain.SecurityTypeForexPair, securityRepo, feed, matchingService, seconds(cfg.Quotes.ForexInterval), log),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	for _, w := range workers {
		wg.Add(1)
		go func(w interface{ Run(context.Context) }) {
			defer wg.Done()
			w.Run(ctx)
		}(w)
	}

	log.WithFields(logrus.Fields{
		"bank":                cfg.Bank.Code,
		"settlement_currency": settlementCurrency.Code,
	}).Info("Bank core is running. Press Ctrl+C to stop.")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.WithField("signal", sig.String()).Info("Received shutdown signal")

	cancel()
	wg.Wait()
	log.Info("Bank core stopped")
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
