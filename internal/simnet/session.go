package simnet

import (
	"context"
	"fmt"

	mp "github.com/R3E-Network/listing_marketplace/internal/marketplace"
)

var _ mp.ClientFactory = (*Network)(nil)

// Account is a simulated signer.
type Account struct {
	Name    string
	address string
}

// NewAccount returns the account derived from name.
func NewAccount(name string) Account {
	return Account{Name: name, address: AddressFor(name)}
}

// Address implements marketplace.Signer.
func (a Account) Address() string { return a.address }

// Open implements marketplace.ClientFactory. Any signer address is accepted;
// an address seen for the first time receives the initial balance.
func (n *Network) Open(ctx context.Context, signer mp.Signer) (mp.Session, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.faultLocked(ctx, OpOpen); err != nil {
		return nil, err
	}
	s := &session{net: n}
	if signer != nil {
		s.sender = signer.Address()
		if s.sender == "" {
			return nil, fmt.Errorf("%w: empty address", mp.ErrUnsupportedSigner)
		}
		n.ensureFundedLocked(s.sender)
	}
	return s, nil
}

type session struct {
	net    *Network
	sender string
}

func (s *session) Sender() string                    { return s.sender }
func (s *session) Ledger() mp.Ledger                 { return ledger{s} }
func (s *session) Contract(app mp.AppID) mp.Contract { return contract{s: s, app: app} }

func (s *session) requireSigner() error {
	if s.sender == "" {
		return mp.ErrNoSigner
	}
	return nil
}

type ledger struct{ s *session }

func (l ledger) CreateAsset(ctx context.Context, total uint64) (mp.AssetID, error) {
	n := l.s.net
	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.faultLocked(ctx, OpCreateAsset); err != nil {
		return 0, err
	}
	if err := l.s.requireSigner(); err != nil {
		return 0, err
	}
	if total == 0 {
		return 0, fmt.Errorf("%w: asset total must be positive", ErrRejected)
	}
	if err := n.chargeLocked(l.s.sender, n.opts.MinFee); err != nil {
		return 0, err
	}

	id := mp.AssetID(n.allocIDLocked())
	n.assets[id] = &asset{creator: l.s.sender, total: total}
	n.accountLocked(l.s.sender).holdings[id] = total
	return id, nil
}

func (l ledger) TransferAsset(ctx context.Context, id mp.AssetID, receiver string, amount uint64) error {
	n := l.s.net
	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.faultLocked(ctx, OpTransferAsset); err != nil {
		return err
	}
	if err := l.s.requireSigner(); err != nil {
		return err
	}
	if _, ok := n.assets[id]; !ok {
		return fmt.Errorf("%w: asset %d does not exist", ErrRejected, id)
	}
	from := n.accountLocked(l.s.sender)
	held, ok := from.holdings[id]
	if !ok || held < amount {
		return fmt.Errorf("%w: sender holds %d of asset %d, needs %d", ErrRejected, held, id, amount)
	}
	to, ok := n.accounts[receiver]
	if !ok {
		return fmt.Errorf("%w: receiver %s not opted in to asset %d", ErrRejected, receiver, id)
	}
	if _, ok := to.holdings[id]; !ok {
		return fmt.Errorf("%w: receiver %s not opted in to asset %d", ErrRejected, receiver, id)
	}
	if err := n.chargeLocked(l.s.sender, n.opts.MinFee); err != nil {
		return err
	}

	from.holdings[id] -= amount
	to.holdings[id] += amount
	return nil
}

func (l ledger) AssetBalance(ctx context.Context, address string, id mp.AssetID) (uint64, error) {
	n := l.s.net
	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.faultLocked(ctx, OpAssetBalance); err != nil {
		return 0, err
	}
	acct, ok := n.accounts[address]
	if !ok {
		return 0, fmt.Errorf("account %s: %w", address, mp.ErrNotFound)
	}
	units, ok := acct.holdings[id]
	if !ok {
		return 0, fmt.Errorf("holding of asset %d by %s: %w", id, address, mp.ErrNotFound)
	}
	return units, nil
}

func (l ledger) ApplicationInfo(ctx context.Context, app mp.AppID) (mp.ApplicationInfo, error) {
	n := l.s.net
	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.faultLocked(ctx, OpApplicationInfo); err != nil {
		return mp.ApplicationInfo{}, err
	}
	a, err := n.appLocked(app)
	if err != nil {
		return mp.ApplicationInfo{}, err
	}
	return mp.ApplicationInfo{Creator: a.creator}, nil
}

func (l ledger) ApplicationAddress(app mp.AppID) string {
	return ApplicationAddress(app)
}
