package marketplace

import (
	"encoding/json"
	"fmt"
)

// Stage is how far a listing has progressed through its lifecycle. Workflow
// errors carry the stage reached so callers can see partial failures such as
// a contract that was deployed but never funded.
type Stage int32

const (
	// StageUninitialized means nothing has been submitted yet.
	StageUninitialized Stage = iota

	// StageAssetReady means the asset to sell exists (minted or supplied).
	StageAssetReady

	// StageDeployed means a contract instance exists but holds no funds.
	StageDeployed

	// StageOptedIn means the custodial address is funded and opted into the
	// asset, but no units have been escrowed.
	StageOptedIn

	// StageActive means the supply is escrowed and units can be bought.
	StageActive

	// StageClosed means the contract instance was deleted.
	StageClosed
)

// String returns the string representation of the stage.
func (s Stage) String() string {
	switch s {
	case StageUninitialized:
		return "uninitialized"
	case StageAssetReady:
		return "asset-ready"
	case StageDeployed:
		return "deployed"
	case StageOptedIn:
		return "opted-in"
	case StageActive:
		return "active"
	case StageClosed:
		return "closed"
	default:
		return fmt.Sprintf("stage(%d)", s)
	}
}

// MarshalJSON implements json.Marshaler.
func (s Stage) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Stage) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = ParseStage(str)
	return nil
}

// ParseStage converts a string to Stage. Unknown strings map to
// StageUninitialized.
func ParseStage(s string) Stage {
	switch s {
	case "asset-ready":
		return StageAssetReady
	case "deployed", "deployed-unfunded":
		return StageDeployed
	case "opted-in":
		return StageOptedIn
	case "active":
		return StageActive
	case "closed", "deleted":
		return StageClosed
	default:
		return StageUninitialized
	}
}

// IsPartial reports whether the stage is a dead end left behind by a failed
// create: a contract exists on the ledger but cannot sell anything.
func (s Stage) IsPartial() bool {
	return s == StageDeployed || s == StageOptedIn
}

// Describe explains a partial stage in operator terms.
func (s Stage) Describe() string {
	switch s {
	case StageDeployed:
		return "contract deployed but unfunded; it holds no asset and no minimum balance"
	case StageOptedIn:
		return "contract funded and opted in but no units were escrowed"
	case StageActive:
		return "listing active"
	default:
		return s.String()
	}
}
