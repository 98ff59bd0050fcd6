// Package algorand implements the marketplace ledger and contract ports on an
// Algorand node through algod.
package algorand

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/algorand/go-algorand-sdk/v2/client/v2/algod"
	"github.com/algorand/go-algorand-sdk/v2/transaction"

	mp "github.com/R3E-Network/listing_marketplace/internal/marketplace"
	"github.com/R3E-Network/listing_marketplace/pkg/logger"
)

// DefaultWaitRounds bounds how long a submission waits for confirmation.
const DefaultWaitRounds uint64 = 4

// Config holds node and contract settings.
type Config struct {
	Address         string `yaml:"address"`
	Token           string `yaml:"token"`
	WaitRounds      uint64 `yaml:"wait_rounds"`
	AssetUnitName   string `yaml:"asset_unit_name"`
	AssetName       string `yaml:"asset_name"`
	ApprovalProgram string `yaml:"approval_program"`
	ClearProgram    string `yaml:"clear_program"`
}

// Factory opens sessions against one algod endpoint.
type Factory struct {
	client *algod.Client
	cfg    Config
	log    *logger.Logger

	mu        sync.Mutex
	approval  []byte
	clearProg []byte
}

var _ mp.ClientFactory = (*Factory)(nil)

// NewFactory creates a factory. No request is made until a session is used.
func NewFactory(cfg Config, log *logger.Logger) (*Factory, error) {
	if cfg.Address == "" {
		return nil, errors.New("algod address required")
	}
	if cfg.WaitRounds == 0 {
		cfg.WaitRounds = DefaultWaitRounds
	}
	if log == nil {
		log = logger.NewDefault("algorand")
	}
	client, err := algod.MakeClient(cfg.Address, cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create algod client: %w", err)
	}
	return &Factory{client: client, cfg: cfg, log: log}, nil
}

// TxSigner is a marketplace signer that can sign Algorand transactions.
type TxSigner interface {
	mp.Signer
	TransactionSigner() transaction.TransactionSigner
}

// Open implements marketplace.ClientFactory. signer must implement TxSigner;
// nil opens a read-only session.
func (f *Factory) Open(ctx context.Context, signer mp.Signer) (mp.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := &session{f: f}
	if signer != nil {
		ts, ok := signer.(TxSigner)
		if !ok {
			return nil, fmt.Errorf("%w: %T cannot sign algorand transactions", mp.ErrUnsupportedSigner, signer)
		}
		s.sender = ts.Address()
		s.signer = ts.TransactionSigner()
	}
	return s, nil
}

// programs compiles the approval and clear programs once per factory.
func (f *Factory) programs(ctx context.Context) (approval, clearProg []byte, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.approval != nil && f.clearProg != nil {
		return f.approval, f.clearProg, nil
	}
	if f.approval, err = f.compileFile(ctx, f.cfg.ApprovalProgram); err != nil {
		return nil, nil, fmt.Errorf("approval program: %w", err)
	}
	if f.clearProg, err = f.compileFile(ctx, f.cfg.ClearProgram); err != nil {
		return nil, nil, fmt.Errorf("clear program: %w", err)
	}
	return f.approval, f.clearProg, nil
}

func (f *Factory) compileFile(ctx context.Context, path string) ([]byte, error) {
	if path == "" {
		return nil, errors.New("program path not configured")
	}
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.TealCompile(source).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", path, err)
	}
	program, err := base64.StdEncoding.DecodeString(resp.Result)
	if err != nil {
		return nil, fmt.Errorf("decode compiled %s: %w", path, err)
	}
	f.log.WithField("program", path).WithField("hash", resp.Hash).Debug("compiled program")
	return program, nil
}

// mapError turns algod 404 responses into marketplace.ErrNotFound and 400
// responses, which carry pool and logic rejections, into
// marketplace.ErrRejected.
func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case hasStatus(err, 404):
		return fmt.Errorf("%w: %w", mp.ErrNotFound, err)
	case hasStatus(err, 400):
		return fmt.Errorf("%w: %w", mp.ErrRejected, err)
	default:
		return err
	}
}

// hasStatus reports whether err is an algod response with the given status.
// The SDK's error classes are plain error aliases, so the status is only
// visible in the message.
func hasStatus(err error, code int) bool {
	return strings.Contains(err.Error(), fmt.Sprintf("HTTP %d", code))
}
