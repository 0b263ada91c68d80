// Command goldrouterd is the composition root of the gold router: it wires
// the Security Manager, Audit Journal, venue adapters, reliability
// envelopes, Portfolio Aggregator, Trading Engine, resilience Controller,
// and API Front into one running process. Grounded on the teacher's
// cmd/cryptorun/main.go cobra-root-plus-subcommands shape and its
// monitor_main.go HTTP-server subcommand.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/goldrouter/internal/apifront"
	"github.com/sawpanic/goldrouter/internal/audit"
	"github.com/sawpanic/goldrouter/internal/audit/store"
	"github.com/sawpanic/goldrouter/internal/goldconfig"
	"github.com/sawpanic/goldrouter/internal/portfolio"
	"github.com/sawpanic/goldrouter/internal/resilience"
	"github.com/sawpanic/goldrouter/internal/security"
	"github.com/sawpanic/goldrouter/internal/trading"
	"github.com/sawpanic/goldrouter/internal/venue"
	"github.com/sawpanic/goldrouter/internal/venue/chain"
	venueerr "github.com/sawpanic/goldrouter/internal/venue/errors"
	"github.com/sawpanic/goldrouter/internal/venue/exchange"
	"github.com/sawpanic/goldrouter/internal/venue/reliability"
)

const (
	appName = "goldrouterd"
	version = "v0.1.0"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Non-custodial routing layer for gold-backed tokens",
		Version: version,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API front and begin routing",
		RunE:  runServe,
	}
	serveCmd.Flags().String("config", "goldrouter.yaml", "Path to the YAML configuration file")
	rootCmd.AddCommand(serveCmd)

	resilienceCmd := &cobra.Command{
		Use:   "resilience",
		Short: "Drive a resilience scenario against a running configuration",
		RunE:  runResilience,
	}
	resilienceCmd.Flags().String("config", "goldrouter.yaml", "Path to the YAML configuration file")
	resilienceCmd.Flags().String("venue", "", "Venue ID to disable for the scenario")
	rootCmd.AddCommand(resilienceCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("goldrouterd exited with error")
	}
}

// system bundles every wired component so serve and resilience can share
// the build step (spec §9: "no singletons"; everything below is owned by
// this function's caller, never reached through a package-level global).
type system struct {
	cfg         *goldconfig.Config
	journal     *audit.Journal
	manager     *security.Manager
	aggregator  *portfolio.Aggregator
	engine      *trading.Engine
	controller  *resilience.Controller
	apiServer   *apifront.Server
	auditStore  *store.Store
}

func buildSystem(cfgPath string) (*system, error) {
	cfg, err := goldconfig.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	journal := audit.New()

	auditStore, err := store.Open(store.Config{
		DSN:     cfg.Store.DSN,
		Enabled: cfg.Store.Enabled,
	})
	if err != nil {
		return nil, fmt.Errorf("open audit store: %w", err)
	}
	if auditStore != nil {
		journal.AttachStore(auditStore.Sink(context.Background()))
		log.Info().Msg("durable audit store attached")
	}

	manager, err := security.New(journal)
	if err != nil {
		return nil, fmt.Errorf("init security manager: %w", err)
	}

	portfolioDeadline := cfg.PortfolioDeadline
	if portfolioDeadline <= 0 {
		portfolioDeadline = 5 * time.Second
	}
	aggregator := portfolio.New(portfolioDeadline)
	engine := trading.New(journal)
	controller := resilience.NewController(journal)

	for _, vc := range cfg.Venues {
		if err := wireVenue(vc, manager, aggregator, engine, controller); err != nil {
			return nil, fmt.Errorf("wire venue %q: %w", vc.ID, err)
		}
	}

	apiServer := apifront.NewServer(apifront.Config{
		Addr:            cfg.HTTP.Addr,
		AuthTokens:      cfg.HTTP.AuthTokens,
		RateWindowMs:    cfg.HTTP.RateWindowMs,
		RateMaxRequests: cfg.HTTP.RateMaxRequests,
		DevProfile:      cfg.HTTP.DevProfile,
	}, aggregator, journal, controller)

	return &system{
		cfg:        cfg,
		journal:    journal,
		manager:    manager,
		aggregator: aggregator,
		engine:     engine,
		controller: controller,
		apiServer:  apiServer,
		auditStore: auditStore,
	}, nil
}

// wireVenue builds one venue's adapter, reliability envelope, and
// registers it with every subsystem that needs to reach it (resilience
// Controller for lifecycle, portfolio Aggregator for balances, trading
// Engine for exchange venues only, since on-chain venues carry no order
// book).
func wireVenue(vc goldconfig.VenueConfig, manager *security.Manager, aggregator *portfolio.Aggregator, engine *trading.Engine, controller *resilience.Controller) error {
	breaker := reliability.NewBreaker(reliability.Config{
		Name:             vc.ID,
		FailureThreshold: orDefault32(vc.FailureThreshold, 5),
		MonitoringPeriod: orDefaultDuration(vc.MonitoringPeriod, time.Minute),
		RecoveryTimeout:  orDefaultDuration(vc.RecoveryTimeout, 30*time.Second),
	})
	limiter := reliability.NewLimiter(orDefaultFloat(vc.RateLimitRPS, 10), orDefaultInt(vc.RateLimitBurst, 20))
	envelope := reliability.NewEnvelope(vc.ID, limiter, breaker, reliability.DefaultRetryConfig())

	entry := &resilience.Entry{Envelope: envelope}

	switch venue.Kind(vc.Kind) {
	case venue.KindExchange:
		adapter := exchange.NewAdapter(vc.ID, vc.BaseURL, nil)
		entry.Adapter = adapter
		entry.Kind = venue.KindExchange

		aggregator.Register(portfolio.Registration{
			Source:       exchangeSource{adapter: adapter},
			Symbol:       "XAUt",
			HealthStatus: func() venue.Status { return venue.Status(envelope.Status()) },
		})
		engine.Register(trading.Venue{
			ID:        vc.ID,
			Adapter:   adapter,
			Status:    func() venue.Status { return venue.Status(envelope.Status()) },
			Latency:   envelope.Latency,
			ErrorRate: envelope.ErrorRate,
		})

	case venue.KindOnchain:
		adapter := chain.NewAdapter(vc.ID, vc.BaseURL, nil)
		if vc.ConfirmationThreshold > 0 {
			_ = adapter.SetConfirmationThreshold(vc.ConfirmationThreshold)
		}
		entry.Adapter = adapter
		entry.Kind = venue.KindOnchain
		entry.SetConfirmationThreshold = adapter.SetConfirmationThreshold

		aggregator.Register(portfolio.Registration{
			Source:       chainSource{adapter: adapter, holderAddress: vc.HolderAddress, tokenContract: vc.TokenContract},
			Symbol:       "KAU",
			HealthStatus: func() venue.Status { return venue.Status(envelope.Status()) },
		})

	default:
		return fmt.Errorf("unknown venue kind %q", vc.Kind)
	}

	controller.Add(vc.ID, entry)
	return nil
}

// exchangeSource adapts an exchange adapter to portfolio.Source.
type exchangeSource struct {
	adapter *exchange.Adapter
}

func (s exchangeSource) Info() venue.Info { return s.adapter.Info() }
func (s exchangeSource) GetBalance(ctx context.Context, symbol string) (venue.Holding, error) {
	return s.adapter.GetBalance(ctx, symbol)
}

// chainSource adapts a chain adapter's (address, token contract) balance
// lookup to portfolio.Source. HolderAddress/TokenContract come from
// goldconfig.VenueConfig (spec §4.2/§9 scenario S1: on-chain holdings
// contribute to the portfolio total the same as exchange balances).
type chainSource struct {
	adapter       *chain.Adapter
	holderAddress string
	tokenContract string
}

func (s chainSource) Info() venue.Info { return s.adapter.Info() }
func (s chainSource) GetBalance(ctx context.Context, symbol string) (venue.Holding, error) {
	if s.holderAddress == "" || s.tokenContract == "" {
		return venue.Holding{}, venueerr.New(venueerr.ValidationError, "onchain venue missing holder_address/token_contract configuration")
	}
	return s.adapter.GetBalanceOf(ctx, s.holderAddress, s.tokenContract)
}

func orDefault32(v uint32, def uint32) uint32 {
	if v == 0 {
		return def
	}
	return v
}

func orDefaultInt(v int, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func orDefaultFloat(v float64, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}

func orDefaultDuration(v time.Duration, def time.Duration) time.Duration {
	if v == 0 {
		return def
	}
	return v
}

func runServe(cmd *cobra.Command, args []string) error {
	cfgPath, _ := cmd.Flags().GetString("config")
	sys, err := buildSystem(cfgPath)
	if err != nil {
		return err
	}
	defer func() {
		if sys.auditStore != nil {
			_ = sys.auditStore.Close()
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sys.aggregator.Refresh(ctx)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", sys.cfg.HTTP.Addr).Msg("api front listening")
		errCh <- sys.apiServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("api front: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return sys.apiServer.Shutdown(shutdownCtx)
}

func runResilience(cmd *cobra.Command, args []string) error {
	cfgPath, _ := cmd.Flags().GetString("config")
	venueID, _ := cmd.Flags().GetString("venue")
	if venueID == "" {
		return fmt.Errorf("--venue is required")
	}

	sys, err := buildSystem(cfgPath)
	if err != nil {
		return err
	}
	defer func() {
		if sys.auditStore != nil {
			_ = sys.auditStore.Close()
		}
	}()

	scenario := resilience.Scenario{
		Name: "disable-venue",
		Steps: []resilience.Step{
			{Name: "disable " + venueID, DisableVenueID: venueID, PauseAfter: time.Second},
		},
	}

	result := scenario.Run(context.Background(), sys.controller)
	for _, step := range result.Steps {
		if step.Err != nil {
			log.Error().Str("step", step.Name).Err(step.Err).Msg("resilience step failed")
		} else {
			log.Info().Str("step", step.Name).Dur("duration", step.Duration).Msg("resilience step ok")
		}
	}
	if !result.OverallOK {
		return fmt.Errorf("resilience scenario %q did not complete cleanly", result.ScenarioName)
	}
	return nil
}
