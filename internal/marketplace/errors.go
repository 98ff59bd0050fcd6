package marketplace

import (
	"errors"
	"fmt"
)

// Error kinds. Each workflow failure unwraps to exactly one of these.
var (
	ErrAssetCreation      = errors.New("asset creation failed")
	ErrContractDeployment = errors.New("contract deployment failed")
	ErrOptIn              = errors.New("asset opt-in failed")
	ErrAssetFunding       = errors.New("asset escrow transfer failed")
	ErrEscrowMismatch     = errors.New("escrowed balance does not match quantity")
	ErrPurchase           = errors.New("purchase failed")
	ErrClose              = errors.New("close listing failed")
	ErrStateQuery         = errors.New("listing state query failed")
	ErrInvalidInput       = errors.New("invalid input")
)

// ErrNotFound is returned by ledger adapters when an application or holding
// does not exist.
var ErrNotFound = errors.New("not found")

// ErrRejected is wrapped by ledger adapters when the ledger or the contract
// refuses a transaction, as opposed to failing to process it.
var ErrRejected = errors.New("rejected by ledger")

// ErrUnsupportedSigner is returned by a ClientFactory when the signer cannot
// sign for its ledger.
var ErrUnsupportedSigner = errors.New("unsupported signer")

// ErrNoSigner is returned when a write is attempted on a read-only session.
var ErrNoSigner = errors.New("session has no signer")

// Checkpoint is the ledger state a workflow had produced when it stopped.
type Checkpoint struct {
	Stage      Stage   `json:"stage"`
	AssetID    AssetID `json:"asset_id,omitempty"`
	AppID      AppID   `json:"app_id,omitempty"`
	AppAddress string  `json:"app_address,omitempty"`
}

// WorkflowError reports a failed workflow step. Nothing is rolled back: the
// Checkpoint describes what was left on the ledger.
type WorkflowError struct {
	Op         string
	Step       string
	RunID      string
	Kind       error
	Checkpoint Checkpoint
	Err        error
}

func (e *WorkflowError) Error() string {
	msg := fmt.Sprintf("%s: step %s: %v", e.Op, e.Step, e.Kind)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Checkpoint.Stage.IsPartial() {
		msg += fmt.Sprintf(" (left %s, app %d)", e.Checkpoint.Stage, e.Checkpoint.AppID)
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *WorkflowError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// KindOf returns the error kind carried by err, or nil when err is not a
// workflow failure.
func KindOf(err error) error {
	var wfErr *WorkflowError
	if errors.As(err, &wfErr) {
		return wfErr.Kind
	}
	for _, kind := range []error{
		ErrInvalidInput, ErrAssetCreation, ErrContractDeployment, ErrOptIn,
		ErrAssetFunding, ErrEscrowMismatch, ErrPurchase, ErrClose, ErrStateQuery,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// KindName returns a short machine-readable name for an error kind.
func KindName(kind error) string {
	switch kind {
	case ErrAssetCreation:
		return "asset_creation"
	case ErrContractDeployment:
		return "contract_deployment"
	case ErrOptIn:
		return "opt_in"
	case ErrAssetFunding:
		return "asset_funding"
	case ErrEscrowMismatch:
		return "escrow_mismatch"
	case ErrPurchase:
		return "purchase"
	case ErrClose:
		return "close"
	case ErrStateQuery:
		return "state_query"
	case ErrInvalidInput:
		return "invalid_input"
	case nil:
		return ""
	default:
		return "unknown"
	}
}
