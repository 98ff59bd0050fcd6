package simnet

import (
	"context"
	"fmt"
	"math/bits"

	mp "github.com/R3E-Network/listing_marketplace/internal/marketplace"
)

type contract struct {
	s   *session
	app mp.AppID
}

func (c contract) AppID() mp.AppID { return c.app }

func (c contract) CreateApplication(ctx context.Context, id mp.AssetID, unitaryPrice uint64) (mp.Deployment, error) {
	n := c.s.net
	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.faultLocked(ctx, OpCreateApplication); err != nil {
		return mp.Deployment{}, err
	}
	if err := c.s.requireSigner(); err != nil {
		return mp.Deployment{}, err
	}
	if c.app.IsSet() {
		return mp.Deployment{}, fmt.Errorf("%w: proxy already bound to application %d", ErrRejected, c.app)
	}
	if _, ok := n.assets[id]; !ok {
		return mp.Deployment{}, fmt.Errorf("%w: asset %d does not exist", ErrRejected, id)
	}
	if err := n.chargeLocked(c.s.sender, n.opts.MinFee); err != nil {
		return mp.Deployment{}, err
	}

	app := mp.AppID(n.allocIDLocked())
	address := ApplicationAddress(app)
	n.apps[app] = &application{
		creator: c.s.sender,
		address: address,
		global: mp.GlobalState{
			mp.GlobalKeyAssetID:      uint64(id),
			mp.GlobalKeyUnitaryPrice: unitaryPrice,
		},
	}
	n.accountLocked(address)
	return mp.Deployment{AppID: app, AppAddress: address}, nil
}

func (c contract) OptInToAsset(ctx context.Context, pay mp.Payment) error {
	n := c.s.net
	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.faultLocked(ctx, OpOptInToAsset); err != nil {
		return err
	}
	if err := c.s.requireSigner(); err != nil {
		return err
	}
	a, err := n.appLocked(c.app)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRejected, err)
	}
	if c.s.sender != a.creator {
		return fmt.Errorf("%w: only the creator may opt the application in", ErrRejected)
	}
	if err := c.checkPaymentLocked(pay, a); err != nil {
		return err
	}
	if pay.Amount < n.opts.FundingMinimum {
		return fmt.Errorf("%w: funding payment %d below minimum %d", ErrRejected, pay.Amount, n.opts.FundingMinimum)
	}
	id := mp.AssetID(a.global[mp.GlobalKeyAssetID])
	custodian := n.accountLocked(a.address)
	if _, ok := custodian.holdings[id]; ok {
		return fmt.Errorf("%w: application already opted in to asset %d", ErrRejected, id)
	}
	// payment (min fee + extra fee) then the app call (min fee).
	if err := n.chargeLocked(c.s.sender, pay.Amount, n.opts.MinFee, pay.ExtraFee, n.opts.MinFee); err != nil {
		return err
	}

	custodian.balance += pay.Amount
	custodian.holdings[id] = 0
	return nil
}

func (c contract) Buy(ctx context.Context, payer mp.Payment, quantity uint64) error {
	n := c.s.net
	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.faultLocked(ctx, OpBuy); err != nil {
		return err
	}
	if err := c.s.requireSigner(); err != nil {
		return err
	}
	a, err := n.appLocked(c.app)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRejected, err)
	}
	if err := c.checkPaymentLocked(payer, a); err != nil {
		return err
	}
	if quantity == 0 {
		return fmt.Errorf("%w: quantity must be positive", ErrRejected)
	}
	hi, due := bits.Mul64(quantity, a.global[mp.GlobalKeyUnitaryPrice])
	if hi != 0 || payer.Amount < due {
		return fmt.Errorf("%w: payment %d does not cover %d units", ErrRejected, payer.Amount, quantity)
	}
	id := mp.AssetID(a.global[mp.GlobalKeyAssetID])
	custodian := n.accountLocked(a.address)
	if escrow := custodian.holdings[id]; quantity > escrow {
		return fmt.Errorf("%w: %d units requested, %d left", ErrRejected, quantity, escrow)
	}
	if err := n.chargeLocked(c.s.sender, payer.Amount, n.opts.MinFee, payer.ExtraFee, n.opts.MinFee); err != nil {
		return err
	}

	custodian.balance += payer.Amount
	custodian.holdings[id] -= quantity
	// The inner transfer opts the buyer in implicitly.
	n.accountLocked(c.s.sender).holdings[id] += quantity
	return nil
}

func (c contract) DeleteApplication(ctx context.Context, fee uint64) error {
	n := c.s.net
	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.faultLocked(ctx, OpDeleteApplication); err != nil {
		return err
	}
	if err := c.s.requireSigner(); err != nil {
		return err
	}
	a, err := n.appLocked(c.app)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRejected, err)
	}
	if c.s.sender != a.creator {
		return fmt.Errorf("%w: only the creator may delete application %d", ErrRejected, c.app)
	}
	id := mp.AssetID(a.global[mp.GlobalKeyAssetID])
	if escrow := n.accountLocked(a.address).holdings[id]; escrow > 0 {
		return fmt.Errorf("%w: %d units still in escrow", ErrRejected, escrow)
	}
	if fee < n.opts.MinFee {
		return fmt.Errorf("%w: fee %d below minimum %d", ErrRejected, fee, n.opts.MinFee)
	}
	if err := n.chargeLocked(c.s.sender, fee); err != nil {
		return err
	}

	// Closing out returns the custodial balance to the creator.
	custodian := n.accounts[a.address]
	n.accountLocked(a.creator).balance += custodian.balance
	delete(n.accounts, a.address)
	delete(n.apps, c.app)
	return nil
}

func (c contract) GlobalState(ctx context.Context) (mp.GlobalState, error) {
	n := c.s.net
	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.faultLocked(ctx, OpGlobalState); err != nil {
		return nil, err
	}
	a, err := n.appLocked(c.app)
	if err != nil {
		return nil, err
	}
	out := make(mp.GlobalState, len(a.global))
	for k, v := range a.global {
		out[k] = v
	}
	return out, nil
}

func (c contract) checkPaymentLocked(pay mp.Payment, a *application) error {
	if pay.Sender != c.s.sender {
		return fmt.Errorf("%w: payment sender %s is not the caller", ErrRejected, pay.Sender)
	}
	if pay.Receiver != a.address {
		return fmt.Errorf("%w: payment receiver is not the application address", ErrRejected)
	}
	return nil
}
