package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"dex_trader/internal/alert"
	"dex_trader/internal/bootstrap"
	"dex_trader/internal/config"
	"dex_trader/internal/core"
	"dex_trader/internal/dexmock"
	"dex_trader/internal/engine"
	"dex_trader/internal/execution"
	"dex_trader/internal/feed"
	"dex_trader/internal/infrastructure/health"
	"dex_trader/internal/infrastructure/metrics"
	"dex_trader/internal/ledger"
	"dex_trader/internal/pricecache"
	"dex_trader/internal/risk"
	"dex_trader/internal/safety"
	"dex_trader/internal/scheduler"
	"dex_trader/internal/store"
	"dex_trader/internal/wallet"
	"dex_trader/pkg/liveserver"
	"dex_trader/pkg/logging"
	"dex_trader/pkg/telemetry"

	"github.com/shopspring/decimal"
)

var configFile = flag.String("config", "configs/config.yaml", "Path to configuration file")

func main() {
	flag.Parse()

	if envConfig := os.Getenv("CONFIG_FILE"); envConfig != "" {
		*configFile = envConfig
	}

	app, err := bootstrap.NewApp(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bootstrap failed: %v\n", err)
		os.Exit(1)
	}
	cfg := app.Cfg
	logger := app.Logger
	logging.SetGlobalLogger(logger)

	logger.Info("Starting DEX trader",
		"paper_trading", cfg.System.PaperTrading,
		"venues", cfg.System.VenuePreference,
		"pairs", cfg.Feed.Pairs)

	// Telemetry
	var metricsHolder *telemetry.MetricsHolder
	if cfg.Telemetry.EnableMetrics {
		tel, err := telemetry.Setup("dex_trader")
		if err != nil {
			logger.Fatal("Failed to set up telemetry", "error", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = tel.Shutdown(ctx)
		}()

		// Setup already initialized the instrument set on the global holder.
		metricsHolder = telemetry.GetGlobalMetrics()
	}

	// Market data
	cache := pricecache.New()
	priceFeed := feed.New(cfg.Feed, cache, logger)

	// Fill history
	var fillStore core.IFillStore
	if cfg.Ledger.FillStorePath != "" {
		fillStore, err = store.NewSQLiteStore(cfg.Ledger.FillStorePath)
		if err != nil {
			logger.Fatal("Failed to open fill store", "error", err)
		}
	} else {
		fillStore = store.NewMemoryStore()
	}
	defer fillStore.Close()

	// Portfolio
	book := ledger.New(decimal.NewFromFloat(cfg.System.StartingCash), fillStore, logger)

	// Wallets
	wallets, err := wallet.NewProvider(cfg.Wallets.Addresses)
	if err != nil {
		logger.Fatal("Failed to build wallet pool", "error", err)
	}

	// Venues. Paper trading replaces every configured venue with a simulated
	// one filling at the cached price.
	venues := buildVenues(cfg, cache, logger)
	if len(venues) > 0 && !cfg.System.PaperTrading {
		first := venues[0]
		wallets.SetBalanceSource(func(ctx context.Context) (decimal.Decimal, error) {
			return first.GetBalance(ctx, "USDC")
		})
	}

	// Pre-flight. Venue quoting can only be probed in live mode; paper venues
	// fill from the cache, which is empty until the feed connects.
	preflight := safety.NewChecker(logger)
	if cfg.System.PaperTrading {
		if err := preflight.CheckTradingParameters(cfg); err != nil {
			logger.Fatal("Pre-flight check failed", "error", err)
		}
	} else {
		preflightCtx, cancelPreflight := context.WithTimeout(context.Background(), 30*time.Second)
		err := preflight.RunAll(preflightCtx, cfg, venues, wallets)
		cancelPreflight()
		if err != nil {
			logger.Fatal("Pre-flight check failed", "error", err)
		}
	}

	// Operator alerts
	alerts := alert.NewManager(logger)
	if cfg.Alerts.SlackWebhookURL != "" {
		alerts.AddChannel(alert.NewSlackChannel(cfg.Alerts.SlackWebhookURL))
	}
	if cfg.Alerts.TelegramBotToken != "" {
		alerts.AddChannel(alert.NewTelegramChannel(cfg.Alerts.TelegramBotToken, cfg.Alerts.TelegramChatID))
	}

	// Execution and scheduling
	exec := execution.NewEngine(cfg.Execution, venues, cache, book, wallets, metricsHolder, logger)
	sched := scheduler.New(cfg.Scheduler, cache, priceFeed.Subscribe(), metricsHolder, logger)

	eng := engine.New(cfg, cache, risk.NewGate(cfg.Risk), exec, sched, book, metricsHolder, logger)
	exec.SetHaltCheck(eng.IsHalted)
	eng.SetAlerts(alerts)

	reconciler := ledger.NewReconciler(book, wallets, fillStore, cfg.Ledger, metricsHolder, logger)
	reconciler.SetAlerts(alerts)

	// Health and metrics endpoints
	healthMgr := health.NewHealthManager(logger)
	healthMgr.Register("feed", priceFeed.CheckHealth)
	healthMgr.Register("engine", func() error {
		if eng.IsHalted() {
			return fmt.Errorf("trading halted")
		}
		return nil
	})

	var metricsSrv *metrics.Server
	if cfg.Telemetry.EnableMetrics {
		metricsSrv = metrics.NewServer(cfg.Telemetry.MetricsPort, healthMgr, logger)
		metricsSrv.Start()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsSrv.Stop(ctx)
		}()
	}

	if err := priceFeed.Start(); err != nil {
		logger.Fatal("Failed to start market data feed", "error", err)
	}
	defer priceFeed.Stop()

	runners := []bootstrap.Runner{
		eng,
		reconciler,
		bootstrap.RunnerFunc(func(ctx context.Context) error {
			if err := sched.Start(ctx); err != nil {
				return err
			}
			<-ctx.Done()
			return sched.Stop()
		}),
	}

	if cfg.Telemetry.EnableDashboard {
		hub := liveserver.NewHub(logger)
		dashboard := liveserver.NewServer(hub, cfg.Telemetry.DashboardPort,
			func() interface{} { return eng.Snapshot() }, 2*time.Second, logger)
		runners = append(runners, dashboard)
	}

	err = app.Run(runners...)

	logger.Info("Session report", "report", book.Report().String())
	if err != nil {
		os.Exit(1)
	}
}

func buildVenues(cfg *config.Config, cache core.IPriceCache, logger core.ILogger) []core.IDexClient {
	venues := make([]core.IDexClient, 0, len(cfg.System.VenuePreference))
	for _, name := range cfg.System.VenuePreference {
		if cfg.System.PaperTrading {
			venues = append(venues, dexmock.NewClient(name, cache, decimal.NewFromFloat(0.0005)))
			continue
		}
		// Live venue adapters are provided out of process; until one is wired
		// the trader refuses to run with paper trading off.
		logger.Fatal("Live trading requires a venue adapter", "venue", name)
	}
	return venues
}
