package algorand

import (
	"context"
	"errors"
	"fmt"

	"github.com/algorand/go-algorand-sdk/v2/abi"
	"github.com/algorand/go-algorand-sdk/v2/client/v2/common/models"
	"github.com/algorand/go-algorand-sdk/v2/crypto"
	"github.com/algorand/go-algorand-sdk/v2/transaction"
	"github.com/algorand/go-algorand-sdk/v2/types"

	mp "github.com/R3E-Network/listing_marketplace/internal/marketplace"
)

// ABI method signatures of the marketplace contract.
const (
	SigCreateApplication = "createApplication(uint64,uint64)void"
	SigOptInToAsset      = "optInToAsset(pay)void"
	SigBuy               = "buy(pay,uint64)void"
	SigDeleteApplication = "deleteApplication()void"
)

// globalUints is the contract's global integer slot count (unitaryPrice,
// assetId).
const globalUints = 2

// minTxnFee is used when the node does not report a minimum fee.
const minTxnFee uint64 = 1_000

type session struct {
	f      *Factory
	sender string
	signer transaction.TransactionSigner
}

func (s *session) Sender() string                    { return s.sender }
func (s *session) Ledger() mp.Ledger                 { return ledger{s} }
func (s *session) Contract(app mp.AppID) mp.Contract { return contract{s: s, app: app} }

func (s *session) requireSigner() error {
	if s.signer == nil {
		return mp.ErrNoSigner
	}
	return nil
}

func (s *session) params(ctx context.Context) (types.SuggestedParams, error) {
	sp, err := s.f.client.SuggestedParams().Do(ctx)
	if err != nil {
		return types.SuggestedParams{}, fmt.Errorf("suggested params: %w", err)
	}
	return sp, nil
}

// submit signs, sends and waits for a single transaction.
func (s *session) submit(ctx context.Context, tx types.Transaction) (models.PendingTransactionInfoResponse, error) {
	signed, err := s.signer.SignTransactions([]types.Transaction{tx}, []int{0})
	if err != nil {
		return models.PendingTransactionInfoResponse{}, fmt.Errorf("sign: %w", err)
	}
	txid, err := s.f.client.SendRawTransaction(signed[0]).Do(ctx)
	if err != nil {
		return models.PendingTransactionInfoResponse{}, fmt.Errorf("send: %w", mapError(err))
	}
	info, err := transaction.WaitForConfirmation(s.f.client, txid, s.f.cfg.WaitRounds, ctx)
	if err != nil {
		return models.PendingTransactionInfoResponse{}, fmt.Errorf("confirm %s: %w", txid, err)
	}
	s.f.log.WithField("txid", txid).WithField("round", info.ConfirmedRound).Debug("transaction confirmed")
	return info, nil
}

// withFlatFee pins the fee to the minimum plus extra so the surplus pays for
// the contract's inner transactions.
func withFlatFee(sp types.SuggestedParams, extra uint64) types.SuggestedParams {
	minFee := sp.MinFee
	if minFee == 0 {
		minFee = minTxnFee
	}
	sp.FlatFee = true
	sp.Fee = types.MicroAlgos(minFee + extra)
	return sp
}

// =============================================================================
// Ledger
// =============================================================================

type ledger struct{ s *session }

func (l ledger) CreateAsset(ctx context.Context, total uint64) (mp.AssetID, error) {
	if err := l.s.requireSigner(); err != nil {
		return 0, err
	}
	sp, err := l.s.params(ctx)
	if err != nil {
		return 0, err
	}
	cfg := l.s.f.cfg
	tx, err := transaction.MakeAssetCreateTxn(l.s.sender, nil, sp, total, 0, false,
		l.s.sender, "", "", "", cfg.AssetUnitName, cfg.AssetName, "", "")
	if err != nil {
		return 0, fmt.Errorf("build asset create: %w", err)
	}
	info, err := l.s.submit(ctx, tx)
	if err != nil {
		return 0, err
	}
	if info.AssetIndex == 0 {
		return 0, errors.New("confirmation carries no asset id")
	}
	return mp.AssetID(info.AssetIndex), nil
}

func (l ledger) TransferAsset(ctx context.Context, asset mp.AssetID, receiver string, amount uint64) error {
	if err := l.s.requireSigner(); err != nil {
		return err
	}
	sp, err := l.s.params(ctx)
	if err != nil {
		return err
	}
	tx, err := transaction.MakeAssetTransferTxn(l.s.sender, receiver, amount, nil, sp, "", uint64(asset))
	if err != nil {
		return fmt.Errorf("build asset transfer: %w", err)
	}
	_, err = l.s.submit(ctx, tx)
	return err
}

func (l ledger) AssetBalance(ctx context.Context, address string, asset mp.AssetID) (uint64, error) {
	resp, err := l.s.f.client.AccountAssetInformation(address, uint64(asset)).Do(ctx)
	if err != nil {
		return 0, mapError(err)
	}
	return resp.AssetHolding.Amount, nil
}

func (l ledger) ApplicationInfo(ctx context.Context, app mp.AppID) (mp.ApplicationInfo, error) {
	resp, err := l.s.f.client.GetApplicationByID(uint64(app)).Do(ctx)
	if err != nil {
		return mp.ApplicationInfo{}, mapError(err)
	}
	return mp.ApplicationInfo{Creator: resp.Params.Creator}, nil
}

func (l ledger) ApplicationAddress(app mp.AppID) string {
	return crypto.GetApplicationAddress(uint64(app)).String()
}

// =============================================================================
// Contract
// =============================================================================

type contract struct {
	s   *session
	app mp.AppID
}

func (c contract) AppID() mp.AppID { return c.app }

func (c contract) CreateApplication(ctx context.Context, asset mp.AssetID, unitaryPrice uint64) (mp.Deployment, error) {
	if err := c.s.requireSigner(); err != nil {
		return mp.Deployment{}, err
	}
	if c.app.IsSet() {
		return mp.Deployment{}, fmt.Errorf("proxy already bound to application %d", c.app)
	}
	approval, clearProg, err := c.s.f.programs(ctx)
	if err != nil {
		return mp.Deployment{}, err
	}
	res, err := c.call(ctx, SigCreateApplication, 0, func(p *transaction.AddMethodCallParams) {
		p.MethodArgs = []interface{}{uint64(asset), unitaryPrice}
		p.ApprovalProgram = approval
		p.ClearProgram = clearProg
		p.GlobalSchema = types.StateSchema{NumUint: globalUints}
	})
	if err != nil {
		return mp.Deployment{}, err
	}
	if len(res.MethodResults) == 0 || res.MethodResults[0].TransactionInfo.ApplicationIndex == 0 {
		return mp.Deployment{}, errors.New("confirmation carries no application id")
	}
	app := mp.AppID(res.MethodResults[0].TransactionInfo.ApplicationIndex)
	return mp.Deployment{AppID: app, AppAddress: crypto.GetApplicationAddress(uint64(app)).String()}, nil
}

func (c contract) OptInToAsset(ctx context.Context, pay mp.Payment) error {
	if err := c.s.requireSigner(); err != nil {
		return err
	}
	asset, err := c.assetID(ctx)
	if err != nil {
		return err
	}
	payTxn, err := c.payment(ctx, pay)
	if err != nil {
		return err
	}
	_, err = c.call(ctx, SigOptInToAsset, 0, func(p *transaction.AddMethodCallParams) {
		p.MethodArgs = []interface{}{payTxn}
		p.ForeignAssets = []uint64{uint64(asset)}
	})
	return err
}

func (c contract) Buy(ctx context.Context, payer mp.Payment, quantity uint64) error {
	if err := c.s.requireSigner(); err != nil {
		return err
	}
	asset, err := c.assetID(ctx)
	if err != nil {
		return err
	}
	payTxn, err := c.payment(ctx, payer)
	if err != nil {
		return err
	}
	_, err = c.call(ctx, SigBuy, 0, func(p *transaction.AddMethodCallParams) {
		p.MethodArgs = []interface{}{payTxn, quantity}
		p.ForeignAssets = []uint64{uint64(asset)}
		p.ForeignAccounts = []string{c.s.sender}
	})
	return err
}

func (c contract) DeleteApplication(ctx context.Context, fee uint64) error {
	if err := c.s.requireSigner(); err != nil {
		return err
	}
	asset, err := c.assetID(ctx)
	if err != nil {
		return err
	}
	creator, err := ledger{c.s}.ApplicationInfo(ctx, c.app)
	if err != nil {
		return err
	}
	_, err = c.call(ctx, SigDeleteApplication, fee, func(p *transaction.AddMethodCallParams) {
		p.OnComplete = types.DeleteApplicationOC
		p.ForeignAssets = []uint64{uint64(asset)}
		p.ForeignAccounts = []string{creator.Creator}
	})
	return err
}

func (c contract) GlobalState(ctx context.Context) (mp.GlobalState, error) {
	resp, err := c.s.f.client.GetApplicationByID(uint64(c.app)).Do(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	return decodeGlobalState(resp.Params.GlobalState)
}

func (c contract) assetID(ctx context.Context) (mp.AssetID, error) {
	gs, err := c.GlobalState(ctx)
	if err != nil {
		return 0, err
	}
	asset, ok := gs.AssetID()
	if !ok {
		return 0, fmt.Errorf("application %d has no %s in global state", c.app, mp.GlobalKeyAssetID)
	}
	return asset, nil
}

// payment builds the payment argument of a method call.
func (c contract) payment(ctx context.Context, pay mp.Payment) (transaction.TransactionWithSigner, error) {
	if err := c.s.requireSigner(); err != nil {
		return transaction.TransactionWithSigner{}, err
	}
	sp, err := c.s.params(ctx)
	if err != nil {
		return transaction.TransactionWithSigner{}, err
	}
	tx, err := transaction.MakePaymentTxn(pay.Sender, pay.Receiver, pay.Amount, nil, "", withFlatFee(sp, pay.ExtraFee))
	if err != nil {
		return transaction.TransactionWithSigner{}, fmt.Errorf("build payment: %w", err)
	}
	return transaction.TransactionWithSigner{Txn: tx, Signer: c.s.signer}, nil
}

// call composes and executes one ABI method call. A non-zero fee is applied
// as a flat fee.
func (c contract) call(ctx context.Context, signature string, fee uint64, configure func(*transaction.AddMethodCallParams)) (transaction.ExecuteResult, error) {
	if err := c.s.requireSigner(); err != nil {
		return transaction.ExecuteResult{}, err
	}
	method, err := abi.MethodFromSignature(signature)
	if err != nil {
		return transaction.ExecuteResult{}, fmt.Errorf("parse %s: %w", signature, err)
	}
	sender, err := types.DecodeAddress(c.s.sender)
	if err != nil {
		return transaction.ExecuteResult{}, fmt.Errorf("sender address: %w", err)
	}
	sp, err := c.s.params(ctx)
	if err != nil {
		return transaction.ExecuteResult{}, err
	}
	if fee > 0 {
		sp.FlatFee = true
		sp.Fee = types.MicroAlgos(fee)
	}

	params := transaction.AddMethodCallParams{
		AppID:           uint64(c.app),
		Method:          method,
		Sender:          sender,
		SuggestedParams: sp,
		OnComplete:      types.NoOpOC,
		Signer:          c.s.signer,
	}
	configure(&params)

	var atc transaction.AtomicTransactionComposer
	if err := atc.AddMethodCall(params); err != nil {
		return transaction.ExecuteResult{}, fmt.Errorf("compose %s: %w", method.Name, err)
	}
	res, err := atc.Execute(c.s.f.client, ctx, c.s.f.cfg.WaitRounds)
	if err != nil {
		return transaction.ExecuteResult{}, fmt.Errorf("execute %s: %w", method.Name, mapError(err))
	}
	c.s.f.log.WithField("method", method.Name).WithField("app_id", uint64(c.app)).WithField("round", res.ConfirmedRound).Debug("method call confirmed")
	return res, nil
}
