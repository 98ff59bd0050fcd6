package marketplace

import "context"

// Signer is the wallet capability of one account. Ledger adapters may require
// more than an address; they reject signers they cannot use with
// ErrUnsupportedSigner.
type Signer interface {
	Address() string
}

// ClientFactory opens ledger sessions. The controller opens exactly one
// session per operation and passes the signer explicitly; a nil signer opens
// a read-only session.
type ClientFactory interface {
	Open(ctx context.Context, signer Signer) (Session, error)
}

// Session bundles the ledger client and contract proxies for one signer.
type Session interface {
	// Sender is the signer's address, or "" for read-only sessions.
	Sender() string
	Ledger() Ledger
	// Contract returns a proxy bound to app. NoListing yields a proxy that can
	// only deploy a new instance.
	Contract(app AppID) Contract
}

// Ledger is the blockchain client capability. Writes are signed by the
// session's signer.
type Ledger interface {
	// CreateAsset mints a new asset with the given total supply held by the
	// sender.
	CreateAsset(ctx context.Context, total uint64) (AssetID, error)
	// TransferAsset moves amount units of asset from the sender to receiver.
	TransferAsset(ctx context.Context, asset AssetID, receiver string, amount uint64) error
	// AssetBalance returns address's holding of asset.
	AssetBalance(ctx context.Context, address string, asset AssetID) (uint64, error)
	// ApplicationInfo returns application metadata such as its creator.
	ApplicationInfo(ctx context.Context, app AppID) (ApplicationInfo, error)
	// ApplicationAddress derives the custodial address of app.
	ApplicationAddress(app AppID) string
}

// Contract is the typed call surface of one marketplace contract instance.
// Method names and argument shapes are fixed by the deployed contract.
type Contract interface {
	AppID() AppID
	// CreateApplication deploys a new instance selling asset at unitaryPrice.
	CreateApplication(ctx context.Context, asset AssetID, unitaryPrice uint64) (Deployment, error)
	// OptInToAsset lets the custodial address hold the listed asset. pay funds
	// its minimum balance.
	OptInToAsset(ctx context.Context, pay Payment) error
	// Buy purchases quantity units paid for by payer.
	Buy(ctx context.Context, payer Payment, quantity uint64) error
	// DeleteApplication destroys the instance using a flat fee override.
	DeleteApplication(ctx context.Context, fee uint64) error
	// GlobalState reads the instance's global state.
	GlobalState(ctx context.Context) (GlobalState, error)
}
