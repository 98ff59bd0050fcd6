package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/R3E-Network/listing_marketplace/internal/cli"
	"github.com/R3E-Network/listing_marketplace/internal/config"
	"github.com/R3E-Network/listing_marketplace/internal/httpapi"
	"github.com/R3E-Network/listing_marketplace/internal/journal"
	mp "github.com/R3E-Network/listing_marketplace/internal/marketplace"
)

type rootOptions struct {
	envFile    string
	configPath string
	logLevel   string
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "marketplace",
		Short:         "Create, buy from and close listings on an Algorand marketplace contract",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadEnvFile(opts.envFile); err != nil {
				return err
			}
			var (
				cfg *config.Config
				err error
			)
			if opts.configPath != "" {
				cfg, err = config.LoadFromPath(opts.configPath)
			} else {
				cfg, err = config.Load()
			}
			if err != nil {
				return err
			}
			if opts.logLevel != "" {
				cfg.Logging.Level = opts.logLevel
			}
			opts.cfg = cfg
			return nil
		},
	}
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", "", "dotenv file to export before loading config (default "+config.DefaultEnvFile+" when present)")
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default "+config.DefaultPath+" when present)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	root.AddCommand(
		newServeCmd(opts),
		newCreateCmd(opts),
		newBuyCmd(opts),
		newCloseCmd(opts),
		newShowCmd(opts),
		newRunsCmd(opts),
		newDemoCmd(opts),
	)
	return root
}

// run builds the app, runs fn and reports a failure on stderr.
func run(cmd *cobra.Command, opts *rootOptions, progress bool, fn func(context.Context, *app, *cli.Printer) error) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wrap func(journal.Recorder) journal.Recorder
	if progress {
		bar := cli.NewProgressBar(0, "").SetWriter(cmd.ErrOrStderr())
		wrap = func(next journal.Recorder) journal.Recorder {
			return &cli.ProgressRecorder{Bar: bar, Next: next}
		}
	}

	a, err := buildApp(ctx, opts.cfg, wrap)
	if err != nil {
		return err
	}
	defer a.Close()

	out := cli.NewPrinter(cmd.OutOrStdout())
	if err := fn(ctx, a, out); err != nil {
		reportError(cli.NewPrinter(cmd.ErrOrStderr()), err)
		return err
	}
	return nil
}

func reportError(p *cli.Printer, err error) {
	p.Error("%v", err)
	var wfErr *mp.WorkflowError
	if !errors.As(err, &wfErr) {
		return
	}
	fields := map[string]interface{}{
		"run":   wfErr.RunID,
		"step":  wfErr.Step,
		"stage": wfErr.Checkpoint.Stage,
	}
	if wfErr.Checkpoint.AssetID != 0 {
		fields["asset"] = wfErr.Checkpoint.AssetID
	}
	if wfErr.Checkpoint.AppID.IsSet() {
		fields["app"] = wfErr.Checkpoint.AppID
		p.Warning("application %d was left on the ledger", wfErr.Checkpoint.AppID)
	}
	p.Fields(fields)
}

func parseAppID(arg string) (mp.AppID, error) {
	id, err := strconv.ParseUint(arg, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid application id %q", arg)
	}
	return mp.AppID(id), nil
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, opts, false, func(ctx context.Context, a *app, _ *cli.Printer) error {
				h := a.cfg.HTTP
				if addr != "" {
					h.Addr = addr
				}
				srv := httpapi.NewServer(a.ctrl, a.keyring, httpapi.Options{
					Runs:           a.runs,
					Metrics:        a.metrics,
					Logger:         a.log.Named("httpapi"),
					RateLimit:      h.RateLimit,
					RateBurst:      h.RateBurst,
					AllowedOrigins: h.AllowedOrigins,
					WatchInterval:  h.WatchInterval,
					ReadTimeout:    h.ReadTimeout,
					WriteTimeout:   h.WriteTimeout,
				})
				a.log.WithField("network", a.cfg.Network).WithField("journal", a.cfg.Journal.Driver).Info("starting marketplace")
				return srv.ListenAndServe(ctx, h.Addr)
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address override")
	return cmd
}

func newCreateCmd(opts *rootOptions) *cobra.Command {
	var (
		price, priceAlgo, quantity, asset uint64
		account                           string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a listing, minting a new asset unless --asset is given",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, opts, true, func(ctx context.Context, a *app, out *cli.Printer) error {
				unitary, err := resolvePrice(price, priceAlgo)
				if err != nil {
					return err
				}
				signer, err := a.keyring.Signer(account)
				if err != nil {
					return err
				}
				res, err := a.ctrl.CreateListing(ctx, signer, mp.CreateRequest{
					UnitaryPrice:  unitary,
					Quantity:      quantity,
					ExistingAsset: mp.AssetID(asset),
				})
				if err != nil {
					return err
				}
				out.Success("listing %d created", res.AppID)
				out.Fields(map[string]interface{}{
					"app":     res.AppID,
					"address": res.AppAddress,
					"asset":   res.AssetID,
					"run":     res.RunID,
				})
				return nil
			})
		},
	}
	cmd.Flags().Uint64Var(&price, "price", 0, "unit price in microAlgos")
	cmd.Flags().Uint64Var(&priceAlgo, "price-algo", 0, "unit price in whole ALGO")
	cmd.Flags().Uint64Var(&quantity, "quantity", 0, "units to escrow")
	cmd.Flags().Uint64Var(&asset, "asset", 0, "existing asset id to sell instead of minting")
	cmd.Flags().StringVar(&account, "account", "", "seller account name")
	cmd.MarkFlagsMutuallyExclusive("price", "price-algo")
	_ = cmd.MarkFlagRequired("quantity")
	return cmd
}

func resolvePrice(micro, algo uint64) (uint64, error) {
	if algo == 0 {
		return micro, nil
	}
	if algo > ^uint64(0)/mp.MicroAlgosPerAlgo {
		return 0, fmt.Errorf("%w: price %d ALGO overflows", mp.ErrInvalidInput, algo)
	}
	return algo * mp.MicroAlgosPerAlgo, nil
}

func newBuyCmd(opts *rootOptions) *cobra.Command {
	var (
		quantity uint64
		account  string
	)
	cmd := &cobra.Command{
		Use:   "buy <app-id>",
		Short: "Buy units from a listing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, true, func(ctx context.Context, a *app, out *cli.Printer) error {
				id, err := parseAppID(args[0])
				if err != nil {
					return err
				}
				signer, err := a.keyring.Signer(account)
				if err != nil {
					return err
				}
				view := a.ctrl.RefreshListingView(ctx, id)
				if view.Status != mp.ViewFound {
					return fmt.Errorf("listing %d is %s: %v", id, view.Status, view.Reason)
				}
				res, err := a.ctrl.BuyUnits(ctx, signer, view.Listing, quantity)
				if err != nil {
					return err
				}
				out.Success("bought %d units of asset %d for %d microAlgos", quantity, view.Listing.AssetID, res.Paid)
				out.Fields(map[string]interface{}{"units left": res.UnitsLeft, "run": res.RunID})
				return nil
			})
		},
	}
	cmd.Flags().Uint64Var(&quantity, "quantity", 1, "units to buy")
	cmd.Flags().StringVar(&account, "account", "", "buyer account name")
	return cmd
}

func newCloseCmd(opts *rootOptions) *cobra.Command {
	var account string
	cmd := &cobra.Command{
		Use:   "close <app-id>",
		Short: "Delete a sold-out listing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, true, func(ctx context.Context, a *app, out *cli.Printer) error {
				id, err := parseAppID(args[0])
				if err != nil {
					return err
				}
				signer, err := a.keyring.Signer(account)
				if err != nil {
					return err
				}
				if _, err := a.ctrl.CloseListing(ctx, signer, id); err != nil {
					return err
				}
				out.Success("listing %d closed", id)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&account, "account", "", "owner account name")
	return cmd
}

func newShowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <app-id>",
		Short: "Show a listing's current state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, false, func(ctx context.Context, a *app, out *cli.Printer) error {
				id, err := parseAppID(args[0])
				if err != nil {
					return err
				}
				printView(out, a.ctrl.RefreshListingView(ctx, id))
				return nil
			})
		},
	}
}

func printView(out *cli.Printer, view mp.ListingView) {
	switch view.Status {
	case mp.ViewFound:
		l := view.Fields()
		out.Success("listing %d", l.AppID)
		out.Fields(map[string]interface{}{
			"address":    l.AppAddress,
			"asset":      l.AssetID,
			"price":      l.UnitaryPrice,
			"units left": l.UnitsLeft,
			"seller":     l.Seller,
		})
	case mp.ViewQueryFailed:
		out.Warning("listing %d could not be queried: %v", view.Listing.AppID, view.Reason)
	default:
		out.Info("listing %d not found", view.Listing.AppID)
	}
}

func newRunsCmd(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "List recorded workflow runs, or show one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, false, func(ctx context.Context, a *app, out *cli.Printer) error {
				if len(args) == 1 {
					r, err := a.runs.Get(ctx, args[0])
					if err != nil {
						return err
					}
					printRun(out, r)
					for _, s := range r.Steps {
						out.Info("%s %s %s %s", s.Name, s.Status, s.Duration, s.Error)
					}
					return nil
				}
				runs, err := a.runs.List(ctx, limit)
				if err != nil {
					return err
				}
				if len(runs) == 0 {
					out.Info("no runs recorded")
				}
				for _, r := range runs {
					printRun(out, r)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", journal.DefaultListLimit, "maximum runs to list")
	return cmd
}

func printRun(out *cli.Printer, r journal.Run) {
	line := fmt.Sprintf("%s %s app=%d stage=%s %s", r.ID, r.Op, r.AppID, r.Stage, r.StartedAt.Format("2006-01-02 15:04:05"))
	switch r.Status {
	case journal.StatusSucceeded:
		out.Success("%s", line)
	case journal.StatusFailed:
		out.Error("%s: %s", line, r.Error)
	default:
		out.Info("%s", line)
	}
}

func newDemoCmd(opts *rootOptions) *cobra.Command {
	var price, quantity, buy uint64
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run create, buy and close end to end on the simulated network",
		Args:  cobra.NoArgs,
		PreRun: func(*cobra.Command, []string) {
			opts.cfg.Network = config.NetworkSimulated
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, opts, true, func(ctx context.Context, a *app, out *cli.Printer) error {
				seller, err := a.keyring.Signer("seller")
				if err != nil {
					return err
				}
				buyer, err := a.keyring.Signer("buyer")
				if err != nil {
					return err
				}

				created, err := a.ctrl.CreateListing(ctx, seller, mp.CreateRequest{UnitaryPrice: price, Quantity: quantity})
				if err != nil {
					return err
				}
				out.Success("listing %d created", created.AppID)

				view := a.ctrl.RefreshListingView(ctx, created.AppID)
				printView(out, view)

				if buy > quantity {
					buy = quantity
				}
				if buy > 0 {
					bought, err := a.ctrl.BuyUnits(ctx, buyer, view.Listing, buy)
					if err != nil {
						return err
					}
					out.Success("bought %d units, %d left", buy, bought.UnitsLeft)
				}

				if buy == quantity {
					if _, err := a.ctrl.CloseListing(ctx, seller, created.AppID); err != nil {
						return err
					}
					out.Success("listing %d closed", created.AppID)
				}
				printView(out, a.ctrl.RefreshListingView(ctx, created.AppID))
				return nil
			})
		},
	}
	cmd.Flags().Uint64Var(&price, "price", mp.MicroAlgosPerAlgo, "unit price in microAlgos")
	cmd.Flags().Uint64Var(&quantity, "quantity", 10, "units to list")
	cmd.Flags().Uint64Var(&buy, "buy", 10, "units to buy")
	return cmd
}
