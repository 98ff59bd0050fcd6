// Package simnet is an in-memory ledger that enforces the marketplace
// contract's observable rules. It backs tests and the "simulated" network
// setting.
package simnet

import (
	"context"
	"crypto/sha512"
	"fmt"
	"sync"

	"github.com/algorand/go-algorand-sdk/v2/crypto"
	"github.com/algorand/go-algorand-sdk/v2/types"

	mp "github.com/R3E-Network/listing_marketplace/internal/marketplace"
)

// ErrRejected is returned for transactions the ledger or contract refuses.
var ErrRejected = fmt.Errorf("simnet: %w", mp.ErrRejected)

// Op names a ledger operation for fault injection.
type Op string

const (
	OpOpen              Op = "open"
	OpCreateAsset       Op = "create-asset"
	OpTransferAsset     Op = "transfer-asset"
	OpAssetBalance      Op = "asset-balance"
	OpApplicationInfo   Op = "application-info"
	OpCreateApplication Op = "create-application"
	OpOptInToAsset      Op = "opt-in-to-asset"
	OpBuy               Op = "buy"
	OpDeleteApplication Op = "delete-application"
	OpGlobalState       Op = "global-state"
)

// Defaults for Options.
const (
	DefaultMinFee         uint64 = 1_000
	DefaultInitialBalance uint64 = 10_000 * mp.MicroAlgosPerAlgo
	DefaultFundingMinimum uint64 = 100_000
)

// Options configures a Network.
type Options struct {
	// MinFee is charged for every submitted transaction.
	MinFee uint64
	// InitialBalance is credited to an account the first time it opens a
	// session.
	InitialBalance uint64
	// FundingMinimum is the smallest payment optInToAsset accepts.
	FundingMinimum uint64
	// FirstID is the first asset/application id handed out.
	FirstID uint64
}

type account struct {
	balance uint64
	// holdings presence means opted in.
	holdings map[mp.AssetID]uint64
}

type asset struct {
	creator string
	total   uint64
}

type application struct {
	creator string
	address string
	global  mp.GlobalState
}

// Network is a single simulated ledger. It is safe for concurrent use; every
// operation runs under one lock, so transactions apply atomically and in a
// total order.
type Network struct {
	mu       sync.Mutex
	opts     Options
	nextID   uint64
	accounts map[string]*account
	assets   map[mp.AssetID]*asset
	apps     map[mp.AppID]*application
	faults   map[Op][]error
}

// New creates an empty network.
func New(opts Options) *Network {
	if opts.MinFee == 0 {
		opts.MinFee = DefaultMinFee
	}
	if opts.InitialBalance == 0 {
		opts.InitialBalance = DefaultInitialBalance
	}
	if opts.FundingMinimum == 0 {
		opts.FundingMinimum = DefaultFundingMinimum
	}
	if opts.FirstID == 0 {
		opts.FirstID = 1001
	}
	return &Network{
		opts:     opts,
		nextID:   opts.FirstID,
		accounts: make(map[string]*account),
		assets:   make(map[mp.AssetID]*asset),
		apps:     make(map[mp.AppID]*application),
		faults:   make(map[Op][]error),
	}
}

// FailNext makes the next call of op fail with err. Calls queue up.
func (n *Network) FailNext(op Op, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.faults[op] = append(n.faults[op], err)
}

// Fund credits address with amount microAlgos.
func (n *Network) Fund(address string, amount uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.accountLocked(address).balance += amount
}

// Balance returns address's native balance.
func (n *Network) Balance(address string) uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	if acct, ok := n.accounts[address]; ok {
		return acct.balance
	}
	return 0
}

// Holding returns address's balance of asset and whether it is opted in.
func (n *Network) Holding(address string, id mp.AssetID) (uint64, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	acct, ok := n.accounts[address]
	if !ok {
		return 0, false
	}
	units, ok := acct.holdings[id]
	return units, ok
}

// Exists reports whether app is deployed.
func (n *Network) Exists(app mp.AppID) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, ok := n.apps[app]
	return ok
}

// ApplicationAddress derives the custodial address of app the same way the
// real ledger does.
func ApplicationAddress(app mp.AppID) string {
	return crypto.GetApplicationAddress(uint64(app)).String()
}

// AddressFor derives a stable account address from a name.
func AddressFor(name string) string {
	return types.Address(sha512.Sum512_256([]byte("simnet:" + name))).String()
}

func (n *Network) accountLocked(address string) *account {
	acct, ok := n.accounts[address]
	if !ok {
		acct = &account{holdings: make(map[mp.AssetID]uint64)}
		n.accounts[address] = acct
	}
	return acct
}

// ensureFundedLocked credits the initial balance to an address seen for the
// first time.
func (n *Network) ensureFundedLocked(address string) {
	if _, ok := n.accounts[address]; ok {
		return
	}
	n.accountLocked(address).balance = n.opts.InitialBalance
}

func (n *Network) faultLocked(ctx context.Context, op Op) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	queue := n.faults[op]
	if len(queue) == 0 {
		return nil
	}
	err := queue[0]
	n.faults[op] = queue[1:]
	return err
}

func (n *Network) allocIDLocked() uint64 {
	id := n.nextID
	n.nextID++
	return id
}

// chargeLocked debits fee plus amount from sender, failing without side
// effects when the balance is short.
func (n *Network) chargeLocked(sender string, amounts ...uint64) error {
	var total uint64
	for _, a := range amounts {
		if total+a < total {
			return fmt.Errorf("%w: amount overflows", ErrRejected)
		}
		total += a
	}
	acct := n.accountLocked(sender)
	if acct.balance < total {
		return fmt.Errorf("%w: %s has %d microAlgos, needs %d", ErrRejected, sender, acct.balance, total)
	}
	acct.balance -= total
	return nil
}

func (n *Network) appLocked(app mp.AppID) (*application, error) {
	a, ok := n.apps[app]
	if !ok {
		return nil, fmt.Errorf("application %d: %w", app, mp.ErrNotFound)
	}
	return a, nil
}
