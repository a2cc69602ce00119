// Command botengine is the process entrypoint: load configuration, open the
// store, run the startup Recovery pass, then serve metrics until a
// termination signal arrives (teacher: cmd/*/main.go wiring through
// bootstrap.App, scaled down to this module's dependency graph).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"dcagrid/internal/bootstrap"
	"dcagrid/internal/config"
	"dcagrid/internal/core"
	"dcagrid/internal/exchangeio"
	"dcagrid/internal/logging"
	"dcagrid/internal/mock"
	"dcagrid/internal/recovery"
	"dcagrid/internal/registry"
	"dcagrid/internal/repository"
	"dcagrid/internal/supervisor"
	"dcagrid/internal/telemetry"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the process configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("botengine: load config: %w", err)
	}

	logger, err := logging.New(cfg.System.LogLevel)
	if err != nil {
		return fmt.Errorf("botengine: init logger: %w", err)
	}
	defer logger.Sync()

	tel, err := telemetry.Setup(cfg.Telemetry.ServiceName)
	if err != nil {
		return fmt.Errorf("botengine: init telemetry: %w", err)
	}
	defer tel.Shutdown(context.Background())

	repo, err := repository.Open(cfg.App.DatabasePath)
	if err != nil {
		return fmt.Errorf("botengine: open repository: %w", err)
	}

	reg := registry.New(logger)
	priceCache := supervisor.NewPriceCache()

	exchFactory := buildExchangeFactory(cfg, logger)

	runner := recovery.NewRunner(repo, exchFactory, reg, priceCache, logger)
	result, err := runner.Run(context.Background())
	if err != nil {
		return fmt.Errorf("botengine: recovery pass: %w", err)
	}
	logger.Info("recovery complete", "recovered", result.Recovered, "failed", result.Failed)

	app := bootstrap.NewApp(logger, repo, reg, time.Duration(cfg.System.ShutdownTimeout)*time.Second)

	var runners []bootstrap.Runner
	if cfg.Telemetry.Enabled {
		runners = append(runners, telemetry.NewServer(9090, logger))
	}
	// The registry's supervisors run on their own independent background
	// contexts (started by Recovery above), not on app's context, so nothing
	// in runners otherwise blocks process exit. holdOpen keeps the process
	// alive to host them until a termination signal arrives, with or without
	// the metrics server enabled.
	runners = append(runners, holdOpen{})

	return app.Run(runners...)
}

// holdOpen blocks for the lifetime of the process; see run's comment above.
type holdOpen struct{}

func (holdOpen) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

// buildExchangeFactory returns the per-bot exchange session constructor
// Recovery and the Registry use. No concrete wire client ships in this
// core (spec §1/§6); this wires a fresh in-memory reference Exchange,
// given only the configured exchange name, behind exchangeio.Executor.
// That exchange starts with no balances, tickers or markets, so bots
// cannot open cycles against it until something seeds it.
func buildExchangeFactory(cfg *config.Config, logger core.Logger) recovery.ExchangeFactory {
	return func(botCfg core.Config) (core.Exchange, error) {
		exch := mock.New(cfg.Exchange.Name)
		return exchangeio.New(exch, logger), nil
	}
}
