package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alejandrodnm/tradesim/config"
	"github.com/alejandrodnm/tradesim/internal/adapters/calendar"
	"github.com/alejandrodnm/tradesim/internal/adapters/marketdata"
	"github.com/alejandrodnm/tradesim/internal/adapters/notify"
	"github.com/alejandrodnm/tradesim/internal/adapters/storage"
	"github.com/alejandrodnm/tradesim/internal/engine"
	"github.com/alejandrodnm/tradesim/internal/metric"
	"github.com/alejandrodnm/tradesim/internal/paper"
	"github.com/alejandrodnm/tradesim/internal/strategy"
	"golang.org/x/time/rate"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	slog.Info("tradesim starting",
		"config", *configPath,
		"runner_id", cfg.Simulation.RunnerID,
		"start", cfg.Simulation.StartDate,
		"end", cfg.Simulation.EndDate,
	)

	if err := run(cfg); err != nil {
		slog.Error("simulation exited with error", "err", err)
		os.Exit(1)
	}
	slog.Info("tradesim stopped cleanly")
}

func run(cfg *config.Config) error {
	store, err := storage.NewSQLiteStore(cfg.Storage.DSN)
	if err != nil {
		return err
	}
	defer store.Close()

	md := marketdata.NewManager(marketdata.NewCSVFeed(cfg.Data.Dir))
	cal := calendar.NewWeekday()

	runner := engine.NewSimRunner(cfg.Simulation.RunnerID, store, cfg.Risk.MaxOrderQuantity)
	runner.SetupMarketData(md, cal, cfg.Simulation.LiveFrequency)

	exchange := paper.NewExchange(cfg.Simulation.LiveFrequency, cfg.Exchange.FillMultiplier)
	broker := paper.NewBroker("paper_broker", runner.OrderManager(), exchange, cfg.Broker.StockFeePerShare)
	runner.SetupExchange(exchange, broker)
	runner.AddEODMetric("net_pnl", metric.NewNetPnL(runner.PositionManager()))

	if cfg.Simulation.BarsPerSecond > 0 {
		runner.Limiter = rate.NewLimiter(rate.Limit(cfg.Simulation.BarsPerSecond), 1)
	}

	registry := strategy.NewRegistry()
	deps := engine.Deps{
		OrderManager:    runner.OrderManager(),
		PositionManager: runner.PositionManager(),
		MarketData:      md,
	}
	for _, sc := range cfg.Strategies {
		s, err := registry.New(sc.Name, sc.ID, deps)
		if err != nil {
			return err
		}
		if err := runner.AddStrategy(s, sc.PortfolioID); err != nil {
			return err
		}
		base, ok := s.(interface {
			AddSymbol(productType, symbol, frequency string) error
			SetParameters(map[string]any) error
		})
		if !ok {
			continue
		}
		for _, sym := range sc.Symbols {
			if err := base.AddSymbol(sym.ProductType, sym.Symbol, sym.Frequency); err != nil {
				return err
			}
		}
		if len(sc.Parameters) > 0 {
			if err := base.SetParameters(sc.Parameters); err != nil {
				return err
			}
		}
	}

	start, err := cfg.StartTime()
	if err != nil {
		return err
	}
	end, err := cfg.EndTime()
	if err != nil {
		return err
	}
	openOff, err := cfg.MarketOpenOffset()
	if err != nil {
		return err
	}
	closeOff, err := cfg.MarketCloseOffset()
	if err != nil {
		return err
	}
	step, err := cfg.BarStep()
	if err != nil {
		return err
	}
	bartimes := engine.Bartimes(start, end, openOff, closeOff, step)
	if len(bartimes) == 0 {
		slog.Warn("no bartimes in range, nothing to do", "start", cfg.Simulation.StartDate, "end", cfg.Simulation.EndDate)
		return nil
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := runner.Run(ctx, bartimes); err != nil {
		return err
	}

	console := notify.NewConsole()
	console.PrintRunSummary(notify.RunSummary{
		RunnerID:  cfg.Simulation.RunnerID,
		Start:     bartimes[0],
		End:       bartimes[len(bartimes)-1],
		Bars:      len(bartimes),
		Orders:    runner.OrderManager().OrdersSnapshot(engine.Filter{}),
		Trades:    runner.PositionManager().NewTrades(),
		Positions: runner.PositionManager().PositionsSnapshot(),
	})
	return nil
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
