package algorand

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/algorand/go-algorand-sdk/v2/abi"
	"github.com/algorand/go-algorand-sdk/v2/crypto"
	"github.com/algorand/go-algorand-sdk/v2/encoding/msgpack"
	"github.com/algorand/go-algorand-sdk/v2/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mp "github.com/R3E-Network/listing_marketplace/internal/marketplace"
	"github.com/R3E-Network/listing_marketplace/pkg/logger"
)

const (
	fakeAssetID uint64 = 55
	fakeAppID   uint64 = 12
)

// submitNode is an algod double that accepts transaction groups, confirms
// them in the next round and keeps what was sent.
type submitNode struct {
	mu      sync.Mutex
	groups  [][]types.SignedTxn
	pending map[string]map[string]interface{}
	creator string
}

func (n *submitNode) sent(t *testing.T) []types.SignedTxn {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	require.NotEmpty(t, n.groups)
	return n.groups[len(n.groups)-1]
}

func (n *submitNode) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	writeJSON := func(w http.ResponseWriter, body string) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, body)
	}

	mux.HandleFunc("/v2/transactions/params", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, fmt.Sprintf(`{"consensus-version":"future","fee":0,"genesis-hash":%q,"genesis-id":"sandnet-v1","last-round":100,"min-fee":1000}`,
			base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{7}, 32))))
	})
	mux.HandleFunc("/v2/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"last-round":100}`)
	})
	mux.HandleFunc("/v2/status/wait-for-block-after/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"last-round":101}`)
	})
	mux.HandleFunc("/v2/teal/compile", func(w http.ResponseWriter, r *http.Request) {
		source, _ := io.ReadAll(r.Body)
		writeJSON(w, fmt.Sprintf(`{"hash":"HASH","result":%q}`, base64.StdEncoding.EncodeToString(source)))
	})
	mux.HandleFunc("/v2/transactions", func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		reader := bytes.NewReader(raw)
		dec := msgpack.NewDecoder(reader)
		var group []types.SignedTxn
		for reader.Len() > 0 {
			var stx types.SignedTxn
			require.NoError(t, dec.Decode(&stx))
			group = append(group, stx)
		}
		require.NotEmpty(t, group)

		n.mu.Lock()
		n.groups = append(n.groups, group)
		for _, stx := range group {
			info := map[string]interface{}{"confirmed-round": uint64(101), "pool-error": ""}
			switch {
			case stx.Txn.Type == types.AssetConfigTx:
				info["asset-index"] = fakeAssetID
			case stx.Txn.Type == types.ApplicationCallTx && stx.Txn.ApplicationID == 0:
				info["application-index"] = fakeAppID
			}
			n.pending[crypto.GetTxID(stx.Txn)] = info
		}
		n.mu.Unlock()

		writeJSON(w, fmt.Sprintf(`{"txId":%q}`, crypto.GetTxID(group[0].Txn)))
	})
	mux.HandleFunc("/v2/transactions/pending/", func(w http.ResponseWriter, r *http.Request) {
		n.mu.Lock()
		info, ok := n.pending[strings.TrimPrefix(r.URL.Path, "/v2/transactions/pending/")]
		n.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"message":"txn not found"}`)
			return
		}
		w.Header().Set("Content-Type", "application/msgpack")
		_, _ = w.Write(msgpack.Encode(info))
	})
	mux.HandleFunc(fmt.Sprintf("/v2/applications/%d", fakeAppID), func(w http.ResponseWriter, r *http.Request) {
		body, err := json.Marshal(map[string]interface{}{
			"id": fakeAppID,
			"params": map[string]interface{}{
				"creator": n.creator,
				"global-state": []map[string]interface{}{
					{"key": b64(mp.GlobalKeyUnitaryPrice), "value": map[string]interface{}{"type": 2, "uint": 1_000_000, "bytes": ""}},
					{"key": b64(mp.GlobalKeyAssetID), "value": map[string]interface{}{"type": 2, "uint": fakeAssetID, "bytes": ""}},
				},
			},
		})
		require.NoError(t, err)
		writeJSON(w, string(body))
	})
	return mux
}

type writeHarness struct {
	node    *submitNode
	factory *Factory
	seller  Account
	buyer   Account
}

func newWriteHarness(t *testing.T) *writeHarness {
	t.Helper()
	seller := Account{acct: crypto.GenerateAccount()}
	node := &submitNode{pending: make(map[string]map[string]interface{}), creator: seller.Address()}
	srv := httptest.NewServer(node.handler(t))
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	approval := filepath.Join(dir, "approval.teal")
	clearProg := filepath.Join(dir, "clear.teal")
	require.NoError(t, os.WriteFile(approval, []byte("#pragma version 8\nint 1"), 0o600))
	require.NoError(t, os.WriteFile(clearProg, []byte("#pragma version 8\nint 0"), 0o600))

	f, err := NewFactory(Config{
		Address:         srv.URL,
		Token:           "token",
		AssetUnitName:   "UNIT",
		AssetName:       "Listing Asset",
		ApprovalProgram: approval,
		ClearProgram:    clearProg,
	}, logger.Discard())
	require.NoError(t, err)

	return &writeHarness{node: node, factory: f, seller: seller, buyer: Account{acct: crypto.GenerateAccount()}}
}

func (h *writeHarness) open(t *testing.T, acct Account) *session {
	t.Helper()
	sess, err := h.factory.Open(context.Background(), acct)
	require.NoError(t, err)
	return sess.(*session)
}

func selector(t *testing.T, signature string) []byte {
	t.Helper()
	method, err := abi.MethodFromSignature(signature)
	require.NoError(t, err)
	return method.GetSelector()
}

func uint64Arg(v uint64) []byte {
	out := make([]byte, 8)
	binary.BigEndian.PutUint64(out, v)
	return out
}

func mustAddress(t *testing.T, s string) types.Address {
	t.Helper()
	addr, err := types.DecodeAddress(s)
	require.NoError(t, err)
	return addr
}

func TestLedgerSubmitsAssetTransactions(t *testing.T) {
	ctx := context.Background()
	h := newWriteHarness(t)
	sess := h.open(t, h.seller)

	id, err := sess.Ledger().CreateAsset(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, mp.AssetID(fakeAssetID), id)

	group := h.node.sent(t)
	require.Len(t, group, 1)
	create := group[0].Txn
	assert.Equal(t, types.AssetConfigTx, create.Type)
	assert.Equal(t, mustAddress(t, h.seller.Address()), create.Sender)
	assert.Equal(t, uint64(100), create.AssetParams.Total)
	assert.Equal(t, "UNIT", create.AssetParams.UnitName)
	assert.Equal(t, "Listing Asset", create.AssetParams.AssetName)
	assert.Equal(t, mustAddress(t, h.seller.Address()), create.AssetParams.Manager)

	escrow := crypto.GetApplicationAddress(fakeAppID).String()
	require.NoError(t, sess.Ledger().TransferAsset(ctx, id, escrow, 100))

	group = h.node.sent(t)
	require.Len(t, group, 1)
	xfer := group[0].Txn
	assert.Equal(t, types.AssetTransferTx, xfer.Type)
	assert.Equal(t, types.AssetIndex(fakeAssetID), xfer.XferAsset)
	assert.Equal(t, uint64(100), xfer.AssetAmount)
	assert.Equal(t, mustAddress(t, escrow), xfer.AssetReceiver)
}

func TestContractCreateApplicationArgs(t *testing.T) {
	h := newWriteHarness(t)
	sess := h.open(t, h.seller)

	dep, err := sess.Contract(mp.NoListing).CreateApplication(context.Background(), mp.AssetID(fakeAssetID), 1_000_000)
	require.NoError(t, err)
	assert.Equal(t, mp.AppID(fakeAppID), dep.AppID)
	assert.Equal(t, crypto.GetApplicationAddress(fakeAppID).String(), dep.AppAddress)

	group := h.node.sent(t)
	require.Len(t, group, 1)
	call := group[0].Txn
	assert.Equal(t, types.ApplicationCallTx, call.Type)
	assert.Equal(t, types.AppIndex(0), call.ApplicationID)
	assert.Equal(t, types.NoOpOC, call.OnCompletion)
	assert.Equal(t, [][]byte{selector(t, SigCreateApplication), uint64Arg(fakeAssetID), uint64Arg(1_000_000)}, call.ApplicationArgs)
	assert.Equal(t, uint64(globalUints), call.GlobalStateSchema.NumUint)
	assert.Equal(t, []byte("#pragma version 8\nint 1"), call.ApprovalProgram)
}

func TestContractOptInGroupsFundingPayment(t *testing.T) {
	h := newWriteHarness(t)
	sess := h.open(t, h.seller)
	escrow := crypto.GetApplicationAddress(fakeAppID).String()

	err := sess.Contract(mp.AppID(fakeAppID)).OptInToAsset(context.Background(), mp.Payment{
		Sender: h.seller.Address(), Receiver: escrow, Amount: 200_000, ExtraFee: 1_000,
	})
	require.NoError(t, err)

	group := h.node.sent(t)
	require.Len(t, group, 2)
	pay, call := group[0].Txn, group[1].Txn

	assert.Equal(t, types.PaymentTx, pay.Type)
	assert.Equal(t, types.MicroAlgos(200_000), pay.Amount)
	assert.Equal(t, types.MicroAlgos(2_000), pay.Fee)
	assert.Equal(t, mustAddress(t, escrow), pay.Receiver)

	assert.Equal(t, types.ApplicationCallTx, call.Type)
	assert.Equal(t, types.AppIndex(fakeAppID), call.ApplicationID)
	assert.Equal(t, [][]byte{selector(t, SigOptInToAsset)}, call.ApplicationArgs)
	assert.Equal(t, []types.AssetIndex{types.AssetIndex(fakeAssetID)}, call.ForeignAssets)

	assert.NotEqual(t, types.Digest{}, pay.Group)
	assert.Equal(t, pay.Group, call.Group)
}

func TestContractBuyGroupsPaymentAndQuantity(t *testing.T) {
	h := newWriteHarness(t)
	sess := h.open(t, h.buyer)
	escrow := crypto.GetApplicationAddress(fakeAppID).String()

	err := sess.Contract(mp.AppID(fakeAppID)).Buy(context.Background(), mp.Payment{
		Sender: h.buyer.Address(), Receiver: escrow, Amount: 10_000_000, ExtraFee: 1_000,
	}, 10)
	require.NoError(t, err)

	group := h.node.sent(t)
	require.Len(t, group, 2)
	pay, call := group[0].Txn, group[1].Txn

	assert.Equal(t, types.PaymentTx, pay.Type)
	assert.Equal(t, types.MicroAlgos(10_000_000), pay.Amount)
	assert.Equal(t, types.MicroAlgos(2_000), pay.Fee)
	assert.Equal(t, mustAddress(t, h.buyer.Address()), pay.Sender)

	assert.Equal(t, [][]byte{selector(t, SigBuy), uint64Arg(10)}, call.ApplicationArgs)
	assert.Equal(t, []types.AssetIndex{types.AssetIndex(fakeAssetID)}, call.ForeignAssets)
	assert.Equal(t, []types.Address{mustAddress(t, h.buyer.Address())}, call.Accounts)

	assert.NotEqual(t, types.Digest{}, pay.Group)
	assert.Equal(t, pay.Group, call.Group)
}

func TestContractDeleteUsesFlatFee(t *testing.T) {
	h := newWriteHarness(t)
	sess := h.open(t, h.seller)

	require.NoError(t, sess.Contract(mp.AppID(fakeAppID)).DeleteApplication(context.Background(), 3_000))

	group := h.node.sent(t)
	require.Len(t, group, 1)
	call := group[0].Txn
	assert.Equal(t, types.ApplicationCallTx, call.Type)
	assert.Equal(t, types.DeleteApplicationOC, call.OnCompletion)
	assert.Equal(t, types.MicroAlgos(3_000), call.Fee)
	assert.Equal(t, [][]byte{selector(t, SigDeleteApplication)}, call.ApplicationArgs)
	assert.Equal(t, []types.AssetIndex{types.AssetIndex(fakeAssetID)}, call.ForeignAssets)
	assert.Equal(t, []types.Address{mustAddress(t, h.seller.Address())}, call.Accounts)
}

func TestControllerCreatesListingOnAlgod(t *testing.T) {
	h := newWriteHarness(t)
	ctrl := mp.NewController(h.factory, mp.Options{Logger: logger.Discard()})

	res, err := ctrl.CreateListing(context.Background(), h.seller, mp.CreateRequest{UnitaryPrice: 1_000_000, Quantity: 100})
	require.NoError(t, err)
	assert.Equal(t, mp.AppID(fakeAppID), res.AppID)
	assert.Equal(t, mp.AssetID(fakeAssetID), res.AssetID)

	h.node.mu.Lock()
	defer h.node.mu.Unlock()
	// mint, deploy, opt-in group, escrow transfer
	require.Len(t, h.node.groups, 4)
	assert.Equal(t, types.AssetTransferTx, h.node.groups[3][0].Txn.Type)
}
