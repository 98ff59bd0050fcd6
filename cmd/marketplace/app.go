package main

import (
	"context"
	"fmt"

	"github.com/R3E-Network/listing_marketplace/internal/algorand"
	"github.com/R3E-Network/listing_marketplace/internal/config"
	"github.com/R3E-Network/listing_marketplace/internal/journal"
	mp "github.com/R3E-Network/listing_marketplace/internal/marketplace"
	"github.com/R3E-Network/listing_marketplace/internal/metrics"
	"github.com/R3E-Network/listing_marketplace/internal/simnet"
	"github.com/R3E-Network/listing_marketplace/internal/wallet"
	"github.com/R3E-Network/listing_marketplace/pkg/logger"
)

// app holds the wired components shared by every command.
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	keyring *wallet.Keyring
	runs    journal.Store
	metrics *metrics.Collector
	ctrl    *mp.Controller
	closers []func() error
}

// buildApp wires config into a controller. wrap, when set, decorates the run
// journal so that commands can observe workflow progress.
func buildApp(ctx context.Context, cfg *config.Config, wrap func(journal.Recorder) journal.Recorder) (*app, error) {
	a := &app{
		cfg: cfg,
		log: logger.New(logger.Config{
			Level:     cfg.Logging.Level,
			Format:    cfg.Logging.Format,
			Component: "marketplace",
		}),
		metrics: metrics.NewCollector(metrics.DefaultNamespace),
	}

	var factory mp.ClientFactory
	switch cfg.Network {
	case config.NetworkAlgorand:
		f, err := algorand.NewFactory(cfg.Algorand, a.log.Named("algorand"))
		if err != nil {
			return nil, fmt.Errorf("algorand: %w", err)
		}
		factory = f
		keyring, err := wallet.NewAlgorand(cfg.Accounts)
		if err != nil {
			return nil, fmt.Errorf("accounts: %w", err)
		}
		a.keyring = keyring
	default:
		factory = simnet.New(simnet.Options{
			InitialBalance: cfg.Simnet.InitialBalance,
			FundingMinimum: cfg.Simnet.FundingMinimum,
		})
		a.keyring = wallet.NewSimulated(cfg.Accounts)
	}

	switch cfg.Journal.Driver {
	case config.JournalPostgres:
		pg, err := journal.OpenPostgres(ctx, cfg.Journal.DSN)
		if err != nil {
			return nil, fmt.Errorf("journal: %w", err)
		}
		a.runs = pg
		a.closers = append(a.closers, pg.Close)
	default:
		a.runs = journal.NewMemory()
	}

	var rec journal.Recorder = a.runs
	if wrap != nil {
		rec = wrap(rec)
	}

	a.ctrl = mp.NewController(factory, mp.Options{
		Fees:         cfg.Fees,
		VerifyEscrow: cfg.Workflow.VerifyEscrow,
		Journal:      rec,
		Metrics:      a.metrics,
		Logger:       a.log.Named("workflow"),
	})
	return a, nil
}

func (a *app) Close() error {
	var first error
	for _, c := range a.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
