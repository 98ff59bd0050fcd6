package marketplace

import (
	"context"
	"errors"
	"fmt"
	"math/bits"

	"github.com/R3E-Network/listing_marketplace/internal/journal"
	"github.com/R3E-Network/listing_marketplace/internal/metrics"
	"github.com/R3E-Network/listing_marketplace/pkg/logger"
)

// Operation names used in logs, metrics and the run journal.
const (
	OpCreate = "create"
	OpBuy    = "buy"
	OpClose  = "close"
)

// Options configures a Controller.
type Options struct {
	Fees Fees
	// VerifyEscrow adds a final create step that checks the custodial balance
	// equals the requested quantity.
	VerifyEscrow bool
	Journal      journal.Recorder
	Metrics      *metrics.Collector
	Logger       *logger.Logger
}

// Controller runs the listing workflows against the sessions its factory
// opens. It holds no listing state and is safe for concurrent use.
type Controller struct {
	factory      ClientFactory
	fees         Fees
	verifyEscrow bool
	journal      journal.Recorder
	metrics      *metrics.Collector
	log          *logger.Logger
}

// NewController creates a controller.
func NewController(factory ClientFactory, opts Options) *Controller {
	log := opts.Logger
	if log == nil {
		log = logger.NewDefault("marketplace")
	}
	return &Controller{
		factory:      factory,
		fees:         opts.Fees.withDefaults(),
		verifyEscrow: opts.VerifyEscrow,
		journal:      opts.Journal,
		metrics:      opts.Metrics,
		log:          log,
	}
}

// Fees returns the fee schedule in effect.
func (c *Controller) Fees() Fees { return c.fees }

// CreateRequest describes a new listing.
type CreateRequest struct {
	// UnitaryPrice is the price of one unit in microAlgos.
	UnitaryPrice uint64
	// Quantity is the number of units to escrow; also the total supply when
	// a new asset is minted.
	Quantity uint64
	// ExistingAsset sells an asset the sender already holds. MintNewAsset
	// mints a fresh one.
	ExistingAsset AssetID
}

// CreateResult identifies the listing that was created.
type CreateResult struct {
	RunID      string
	AppID      AppID
	AppAddress string
	AssetID    AssetID
}

// CreateListing mints (or reuses) the asset, deploys a contract instance,
// funds and opts it into the asset, then escrows the full quantity. Nothing is
// undone on failure; the returned *WorkflowError names the stage left behind.
func (c *Controller) CreateListing(ctx context.Context, seller Signer, req CreateRequest) (CreateResult, error) {
	if seller == nil {
		return CreateResult{}, fmt.Errorf("%w: signer is required", ErrInvalidInput)
	}
	if req.UnitaryPrice == 0 {
		return CreateResult{}, fmt.Errorf("%w: unitary price must be positive", ErrInvalidInput)
	}
	if req.Quantity == 0 {
		return CreateResult{}, fmt.Errorf("%w: quantity must be positive", ErrInvalidInput)
	}

	wf := c.begin(ctx, OpCreate, seller.Address())
	res := CreateResult{RunID: wf.id}

	firstKind := ErrContractDeployment
	if req.ExistingAsset == MintNewAsset {
		firstKind = ErrAssetCreation
	}
	sess, err := c.factory.Open(ctx, seller)
	if err != nil {
		return res, wf.fail(ctx, "connect", firstKind, err)
	}
	ledger := sess.Ledger()

	asset := req.ExistingAsset
	if asset == MintNewAsset {
		err := wf.step(ctx, "mint-asset", ErrAssetCreation, func(ctx context.Context) error {
			id, err := ledger.CreateAsset(ctx, req.Quantity)
			if err != nil {
				return err
			}
			asset = id
			return nil
		})
		if err != nil {
			return res, wf.finish(ctx, err)
		}
	} else {
		wf.skip(ctx, "mint-asset")
	}
	wf.cp.AssetID = asset
	wf.cp.Stage = StageAssetReady
	res.AssetID = asset

	var dep Deployment
	err = wf.step(ctx, "deploy", ErrContractDeployment, func(ctx context.Context) error {
		d, err := sess.Contract(NoListing).CreateApplication(ctx, asset, req.UnitaryPrice)
		if err != nil {
			return err
		}
		if !d.AppID.IsSet() {
			return errors.New("ledger returned no application id")
		}
		if d.AppAddress == "" {
			d.AppAddress = ledger.ApplicationAddress(d.AppID)
		}
		dep = d
		return nil
	})
	if err != nil {
		return res, wf.finish(ctx, err)
	}
	wf.cp.AppID = dep.AppID
	wf.cp.AppAddress = dep.AppAddress
	wf.cp.Stage = StageDeployed
	res.AppID = dep.AppID
	res.AppAddress = dep.AppAddress

	// The funding payment is only built here. It is submitted as the pay
	// argument of optInToAsset.
	var funding Payment
	err = wf.step(ctx, "fund", ErrOptIn, func(context.Context) error {
		funding = Payment{
			Sender:   sess.Sender(),
			Receiver: dep.AppAddress,
			Amount:   c.fees.FundingAmount,
			ExtraFee: c.fees.ExtraFee,
		}
		return nil
	})
	if err != nil {
		return res, wf.finish(ctx, err)
	}

	app := sess.Contract(dep.AppID)
	err = wf.step(ctx, "opt-in", ErrOptIn, func(ctx context.Context) error {
		return app.OptInToAsset(ctx, funding)
	})
	if err != nil {
		return res, wf.finish(ctx, err)
	}
	wf.cp.Stage = StageOptedIn

	err = wf.step(ctx, "escrow", ErrAssetFunding, func(ctx context.Context) error {
		return ledger.TransferAsset(ctx, asset, dep.AppAddress, req.Quantity)
	})
	if err != nil {
		return res, wf.finish(ctx, err)
	}
	wf.cp.Stage = StageActive

	if c.verifyEscrow {
		err = wf.step(ctx, "verify-escrow", ErrEscrowMismatch, func(ctx context.Context) error {
			held, err := ledger.AssetBalance(ctx, dep.AppAddress, asset)
			if err != nil {
				// Nothing was compared.
				return &stepKind{kind: ErrStateQuery, err: err}
			}
			if held != req.Quantity {
				return fmt.Errorf("custodial address holds %d units, want %d", held, req.Quantity)
			}
			return nil
		})
		if err != nil {
			return res, wf.finish(ctx, err)
		}
	}

	return res, wf.finish(ctx, nil)
}

// BuyResult reports a completed purchase.
type BuyResult struct {
	RunID string
	// Paid is the payment amount in microAlgos, excluding fees.
	Paid uint64
	// UnitsLeft is the escrow balance read back after the purchase.
	UnitsLeft uint64
}

// PurchaseAmount returns quantity × unitaryPrice, failing on overflow.
func PurchaseAmount(quantity, unitaryPrice uint64) (uint64, error) {
	hi, lo := bits.Mul64(quantity, unitaryPrice)
	if hi != 0 {
		return 0, fmt.Errorf("%w: %d units at %d overflows", ErrInvalidInput, quantity, unitaryPrice)
	}
	return lo, nil
}

// BuyUnits pays for and buys quantity units of listing, then reads back the
// remaining escrow. The caller supplies a listing with a known price; the
// quantity is not checked against UnitsLeft because the contract validates
// the purchase.
func (c *Controller) BuyUnits(ctx context.Context, buyer Signer, listing Listing, quantity uint64) (BuyResult, error) {
	if buyer == nil {
		return BuyResult{}, fmt.Errorf("%w: signer is required", ErrInvalidInput)
	}
	if !listing.AppID.IsSet() {
		return BuyResult{}, fmt.Errorf("%w: no listing selected", ErrInvalidInput)
	}
	if listing.UnitaryPrice == 0 {
		return BuyResult{}, fmt.Errorf("%w: listing %d has no unitary price", ErrInvalidInput, listing.AppID)
	}
	if quantity == 0 {
		return BuyResult{}, fmt.Errorf("%w: quantity must be positive", ErrInvalidInput)
	}
	amount, err := PurchaseAmount(quantity, listing.UnitaryPrice)
	if err != nil {
		return BuyResult{}, err
	}

	wf := c.begin(ctx, OpBuy, buyer.Address())
	wf.cp = Checkpoint{Stage: StageActive, AppID: listing.AppID, AssetID: listing.AssetID, AppAddress: listing.AppAddress}
	res := BuyResult{RunID: wf.id}

	sess, err := c.factory.Open(ctx, buyer)
	if err != nil {
		return res, wf.fail(ctx, "connect", ErrPurchase, err)
	}
	ledger := sess.Ledger()
	app := sess.Contract(listing.AppID)

	appAddress := listing.AppAddress
	if appAddress == "" {
		appAddress = ledger.ApplicationAddress(listing.AppID)
		wf.cp.AppAddress = appAddress
	}

	var payer Payment
	err = wf.step(ctx, "pay", ErrPurchase, func(context.Context) error {
		payer = Payment{
			Sender:   sess.Sender(),
			Receiver: appAddress,
			Amount:   amount,
			ExtraFee: c.fees.ExtraFee,
		}
		return nil
	})
	if err != nil {
		return res, wf.finish(ctx, err)
	}

	err = wf.step(ctx, "buy", ErrPurchase, func(ctx context.Context) error {
		return app.Buy(ctx, payer, quantity)
	})
	if err != nil {
		return res, wf.finish(ctx, err)
	}
	res.Paid = amount

	err = wf.step(ctx, "refresh", ErrPurchase, func(ctx context.Context) error {
		gs, err := app.GlobalState(ctx)
		if err != nil {
			return err
		}
		asset, ok := gs.AssetID()
		if !ok {
			return fmt.Errorf("global state has no %s", GlobalKeyAssetID)
		}
		wf.cp.AssetID = asset
		units, err := ledger.AssetBalance(ctx, appAddress, asset)
		if err != nil {
			return err
		}
		res.UnitsLeft = units
		return nil
	})
	if err != nil {
		return res, wf.finish(ctx, err)
	}

	return res, wf.finish(ctx, nil)
}

// CloseListing deletes the contract instance. On success it returns
// NoListing, the identifier the caller should now hold; on failure it returns
// app unchanged. The contract decides whether deletion is allowed.
func (c *Controller) CloseListing(ctx context.Context, owner Signer, app AppID) (AppID, error) {
	if owner == nil {
		return app, fmt.Errorf("%w: signer is required", ErrInvalidInput)
	}
	if !app.IsSet() {
		return app, fmt.Errorf("%w: no listing selected", ErrInvalidInput)
	}

	wf := c.begin(ctx, OpClose, owner.Address())
	wf.cp = Checkpoint{Stage: StageActive, AppID: app}

	sess, err := c.factory.Open(ctx, owner)
	if err != nil {
		return app, wf.fail(ctx, "connect", ErrClose, err)
	}

	err = wf.step(ctx, "delete", ErrClose, func(ctx context.Context) error {
		return sess.Contract(app).DeleteApplication(ctx, c.fees.DeleteFee)
	})
	if err != nil {
		return app, wf.finish(ctx, err)
	}
	wf.cp.Stage = StageClosed

	return NoListing, wf.finish(ctx, nil)
}

// RefreshListingView reads the listing's price, asset, escrow balance and
// seller. It never returns an error: failures are reported in the view's
// status so that callers can tell a missing listing from an unreachable
// ledger.
func (c *Controller) RefreshListingView(ctx context.Context, app AppID) ListingView {
	view := c.refresh(ctx, app)
	c.metrics.RecordRefresh(view.Status.String())
	if view.Status == ViewQueryFailed {
		c.log.WithError(view.Reason).WithField("app_id", uint64(app)).Warn("listing query failed")
	}
	return view
}

func (c *Controller) refresh(ctx context.Context, app AppID) ListingView {
	if !app.IsSet() {
		return NotFound(NoListing, nil)
	}

	sess, err := c.factory.Open(ctx, nil)
	if err != nil {
		return classifyQueryError(app, err)
	}
	ledger := sess.Ledger()

	gs, err := sess.Contract(app).GlobalState(ctx)
	if err != nil {
		return classifyQueryError(app, err)
	}
	price, _ := gs.UnitaryPrice()
	asset, _ := gs.AssetID()
	address := ledger.ApplicationAddress(app)

	var units uint64
	if asset != 0 {
		units, err = ledger.AssetBalance(ctx, address, asset)
		// A custodial address that never opted in holds nothing.
		if err != nil && !errors.Is(err, ErrNotFound) {
			return classifyQueryError(app, err)
		}
	}

	info, err := ledger.ApplicationInfo(ctx, app)
	if err != nil {
		return classifyQueryError(app, err)
	}

	return Found(Listing{
		AppID:        app,
		AppAddress:   address,
		AssetID:      asset,
		UnitaryPrice: price,
		UnitsLeft:    units,
		Seller:       info.Creator,
	})
}

func classifyQueryError(app AppID, err error) ListingView {
	reason := fmt.Errorf("%w: %w", ErrStateQuery, err)
	if errors.Is(err, ErrNotFound) {
		return NotFound(app, reason)
	}
	return QueryFailed(app, reason)
}
