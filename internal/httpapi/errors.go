package httpapi

import (
	"errors"
	"net/http"

	mp "github.com/R3E-Network/listing_marketplace/internal/marketplace"
)

type errorResponse struct {
	Error string   `json:"error"`
	Kind  string   `json:"kind,omitempty"`
	Step  string   `json:"step,omitempty"`
	Stage string   `json:"stage,omitempty"`
	AppID mp.AppID `json:"app_id,omitempty"`
	RunID string   `json:"run_id,omitempty"`
}

// statusFor maps controller errors to HTTP statuses: bad input is the
// caller's fault, a refusal by the ledger or contract is a conflict with
// ledger state, anything else is a failure of the upstream ledger.
func statusFor(err error) int {
	switch {
	case errors.Is(err, mp.ErrInvalidInput), errors.Is(err, mp.ErrUnsupportedSigner):
		return http.StatusBadRequest
	case errors.Is(err, mp.ErrRejected):
		return http.StatusConflict
	case mp.KindOf(err) != nil:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeWorkflowError(w http.ResponseWriter, err error) {
	resp := errorResponse{Error: err.Error(), Kind: mp.KindName(mp.KindOf(err))}
	var wfErr *mp.WorkflowError
	if errors.As(err, &wfErr) {
		resp.Step = wfErr.Step
		resp.Stage = wfErr.Checkpoint.Stage.String()
		resp.AppID = wfErr.Checkpoint.AppID
		resp.RunID = wfErr.RunID
	}
	writeJSON(w, statusFor(err), resp)
}
