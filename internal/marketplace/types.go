// Package marketplace implements the listing lifecycle of the fixed-price asset
// marketplace contract: create, buy down, close and observe a Listing.
//
// The controller owns no ledger logic. Every transaction is built and submitted
// through the Ledger and Contract ports, which the algorand and simnet packages
// implement.
package marketplace

import "fmt"

// AppID identifies a deployed contract instance (one Listing).
type AppID uint64

// NoListing is the sentinel AppID meaning "no listing selected or deployed".
const NoListing AppID = 0

// IsSet reports whether id refers to a deployed listing.
func (id AppID) IsSet() bool { return id != NoListing }

func (id AppID) String() string { return fmt.Sprintf("%d", uint64(id)) }

// AssetID identifies a fungible asset on the ledger.
type AssetID uint64

// MintNewAsset passed as the existing asset tells CreateListing to mint a new asset.
const MintNewAsset AssetID = 0

func (id AssetID) String() string { return fmt.Sprintf("%d", uint64(id)) }

// MicroAlgosPerAlgo converts whole currency units to the smallest unit.
const MicroAlgosPerAlgo uint64 = 1_000_000

// Listing is the observable state of one deployed marketplace contract.
type Listing struct {
	AppID        AppID   `json:"app_id"`
	AppAddress   string  `json:"app_address"`
	AssetID      AssetID `json:"asset_id"`
	UnitaryPrice uint64  `json:"unitary_price"`
	UnitsLeft    uint64  `json:"units_left"`
	Seller       string  `json:"seller"`
}

// IsZero reports whether l carries no data, which is how an uninitialized
// listing looks.
func (l Listing) IsZero() bool { return l == Listing{} }

// Deployment is the result of deploying a new contract instance.
type Deployment struct {
	AppID      AppID
	AppAddress string
}

// Payment is a payment transaction that has been constructed but not
// submitted. It travels as a transaction argument of a contract call.
type Payment struct {
	Sender   string
	Receiver string
	Amount   uint64
	ExtraFee uint64
}

// ApplicationInfo is the application metadata the ledger exposes.
type ApplicationInfo struct {
	Creator string
}

// Global state keys written by the contract.
const (
	GlobalKeyUnitaryPrice = "unitaryPrice"
	GlobalKeyAssetID      = "assetId"
)

// GlobalState holds the integer global state of a contract instance. Keys the
// application has not initialized are absent.
type GlobalState map[string]uint64

// UnitaryPrice returns the configured unit price, if set.
func (g GlobalState) UnitaryPrice() (uint64, bool) {
	v, ok := g[GlobalKeyUnitaryPrice]
	return v, ok
}

// AssetID returns the asset sold by the listing, if set.
func (g GlobalState) AssetID() (AssetID, bool) {
	v, ok := g[GlobalKeyAssetID]
	return AssetID(v), ok
}
