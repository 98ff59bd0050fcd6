package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/bits"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/R3E-Network/listing_marketplace/internal/journal"
	mp "github.com/R3E-Network/listing_marketplace/internal/marketplace"
)

type createRequest struct {
	Account          string `json:"account"`
	UnitaryPrice     uint64 `json:"unitary_price"`
	UnitaryPriceAlgo uint64 `json:"unitary_price_algo"`
	Quantity         uint64 `json:"quantity"`
	AssetID          uint64 `json:"asset_id"`
}

type createResponse struct {
	RunID      string     `json:"run_id"`
	AppID      mp.AppID   `json:"app_id"`
	AppAddress string     `json:"app_address"`
	AssetID    mp.AssetID `json:"asset_id"`
}

type buyRequest struct {
	Account  string `json:"account"`
	Quantity uint64 `json:"quantity"`
}

type buyResponse struct {
	RunID     string `json:"run_id"`
	UnitsLeft uint64 `json:"units_left"`
	Paid      uint64 `json:"paid"`
}

// price resolves the unit price in microAlgos. Whole-ALGO prices are accepted
// for parity with the wallet front-end.
func (req createRequest) price() (uint64, error) {
	switch {
	case req.UnitaryPrice != 0 && req.UnitaryPriceAlgo != 0:
		return 0, fmt.Errorf("%w: set only one of unitary_price and unitary_price_algo", mp.ErrInvalidInput)
	case req.UnitaryPriceAlgo != 0:
		hi, lo := bits.Mul64(req.UnitaryPriceAlgo, mp.MicroAlgosPerAlgo)
		if hi != 0 {
			return 0, fmt.Errorf("%w: unitary_price_algo overflows", mp.ErrInvalidInput)
		}
		return lo, nil
	default:
		return req.UnitaryPrice, nil
	}
}

func (s *Server) createListing(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	price, err := req.price()
	if err != nil {
		writeWorkflowError(w, err)
		return
	}
	signer, err := s.keyring.Signer(req.Account)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	res, err := s.ctrl.CreateListing(r.Context(), signer, mp.CreateRequest{
		UnitaryPrice:  price,
		Quantity:      req.Quantity,
		ExistingAsset: mp.AssetID(req.AssetID),
	})
	if err != nil {
		writeWorkflowError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, createResponse{
		RunID:      res.RunID,
		AppID:      res.AppID,
		AppAddress: res.AppAddress,
		AssetID:    res.AssetID,
	})
}

func (s *Server) getListing(w http.ResponseWriter, r *http.Request) {
	app, err := appID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	view := s.ctrl.RefreshListingView(r.Context(), app)
	writeJSON(w, viewStatus(view), view)
}

func (s *Server) buyUnits(w http.ResponseWriter, r *http.Request) {
	app, err := appID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var req buyRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	signer, err := s.keyring.Signer(req.Account)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	view := s.ctrl.RefreshListingView(r.Context(), app)
	if view.Status != mp.ViewFound {
		writeJSON(w, viewStatus(view), view)
		return
	}

	res, err := s.ctrl.BuyUnits(r.Context(), signer, view.Listing, req.Quantity)
	if err != nil {
		writeWorkflowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, buyResponse{RunID: res.RunID, UnitsLeft: res.UnitsLeft, Paid: res.Paid})
}

func (s *Server) closeListing(w http.ResponseWriter, r *http.Request) {
	app, err := appID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	signer, err := s.keyring.Signer(r.URL.Query().Get("account"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	remaining, err := s.ctrl.CloseListing(r.Context(), signer, app)
	if err != nil {
		writeWorkflowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]mp.AppID{"app_id": remaining})
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeError(w, http.StatusNotFound, errors.New("run journal disabled"))
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", v))
			return
		}
		limit = n
	}
	runs, err := s.runs.List(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if runs == nil {
		runs = []journal.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeError(w, http.StatusNotFound, errors.New("run journal disabled"))
		return
	}
	run, err := s.runs.Get(r.Context(), mux.Vars(r)["id"])
	if errors.Is(err, journal.ErrRunNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func appID(r *http.Request) (mp.AppID, error) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid application id %q", raw)
	}
	return mp.AppID(id), nil
}

func viewStatus(view mp.ListingView) int {
	switch view.Status {
	case mp.ViewFound:
		return http.StatusOK
	case mp.ViewQueryFailed:
		return http.StatusBadGateway
	default:
		return http.StatusNotFound
	}
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
