// Package ledger commits a content hash of a produced artifact to an
// external JSON-RPC ledger and later re-verifies it against an expected
// value. It degrades to a local-only offline mode whenever the configured
// chain is unreachable at startup, rather than failing the pipeline.
package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/duskforge/obfusc/internal/diagnostics"
	"github.com/duskforge/obfusc/internal/logging"
)

const (
	rpcTimeout          = 10 * time.Second
	confirmationBudget  = 30
	confirmationInterval = time.Second
	offlinePrefix       = "offline_"
	nominalValue        = "0x1"
)

// Recorder is the process-local handle to the ledger. It owns its own RPC
// client and verification cache; nothing here is shared across components.
type Recorder struct {
	cfg       Config
	logger    *logging.Logger
	bag       *diagnostics.Bag
	client    *rpc.Client
	connected bool
	cache     *cache
}

// NewRecorder constructs an uninitialized Recorder. Call Initialize before
// VerifyBinary to attempt a live connection; an uninitialized Recorder
// behaves as if it is permanently offline.
func NewRecorder(cfg Config, bag *diagnostics.Bag, logger *logging.Logger) *Recorder {
	return &Recorder{cfg: cfg, bag: bag, logger: logger, cache: newCache()}
}

// Initialize attempts to dial the configured RPC endpoint and checks
// liveness via eth_chainId. Any failure — dial error, RPC error, or a
// chain id disagreement — puts the recorder into offline mode rather than
// returning an error: per the ledger's contract, a connect failure is
// contained, not fatal to the pipeline.
func (r *Recorder) Initialize(ctx context.Context) error {
	if !r.cfg.Enabled {
		r.logf("ledger disabled by configuration, operating offline")
		return nil
	}

	client, err := rpc.DialContext(ctx, r.cfg.RPCEndpoint)
	if err != nil {
		r.goOffline(fmt.Errorf("dial %s: %w", r.cfg.RPCEndpoint, err))
		return nil
	}
	r.client = client

	callCtx, cancel := context.WithTimeout(ctx, rpcTimeout)
	defer cancel()

	var chainIDHex string
	if err := r.client.CallContext(callCtx, &chainIDHex, "eth_chainId"); err != nil {
		r.goOffline(fmt.Errorf("eth_chainId: %w", err))
		return nil
	}

	actual, err := hexutil.DecodeUint64(chainIDHex)
	if err != nil {
		r.goOffline(fmt.Errorf("decode chain id %q: %w", chainIDHex, err))
		return nil
	}
	if int64(actual) != r.cfg.ChainID {
		r.goOffline(fmt.Errorf("chain id mismatch: expected %d, got %d", r.cfg.ChainID, actual))
		return nil
	}

	r.connected = true
	r.logf("connected to ledger at %s (chain id %d)", r.cfg.RPCEndpoint, actual)
	return nil
}

func (r *Recorder) goOffline(cause error) {
	r.connected = false
	if r.bag != nil {
		r.bag.Add(diagnostics.Wrap(diagnostics.LedgerConnectError, "ledger liveness check failed, continuing offline", cause))
	}
	r.logf("ledger unreachable, continuing in offline mode: %v", cause)
}

// HashFile computes the 0x-prefixed, lower-case hex SHA-256 of path's raw
// bytes.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return "0x" + hex.EncodeToString(h.Sum(nil)), nil
}

// VerifyBinary computes path's hash, submits it to the ledger (or records
// an offline attestation), and returns the resulting verification record.
// A hash already present in the cache is returned without resubmission.
func (r *Recorder) VerifyBinary(ctx context.Context, path string) (Result, error) {
	hash, err := HashFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("ledger: hash %s: %w", path, err)
	}

	if existing, ok := r.cache.get(hash); ok {
		r.logf("found cached verification for %s", hash)
		return existing, nil
	}

	var result Result
	if r.connected {
		result = r.submit(ctx, hash)
	} else {
		result = Result{
			Verified:      true,
			Hash:          hash,
			TransactionID: offlinePrefix + generateLocalID(),
			Network:       fmt.Sprintf("chain-%d", r.cfg.ChainID),
			Timestamp:     nowUnix(),
		}
	}

	r.cache.put(result)
	return result, nil
}

func (r *Recorder) submit(ctx context.Context, hash string) Result {
	txID, err := r.sendTransaction(ctx, hash)
	if err != nil {
		return r.submitFailure(hash, err)
	}

	blockNumber, status, err := r.waitForConfirmation(ctx, txID)
	if err != nil {
		return r.submitFailure(hash, err)
	}
	if !status {
		return r.submitFailure(hash, fmt.Errorf("transaction %s failed on-chain", txID))
	}

	return Result{
		Verified:      true,
		Hash:          hash,
		TransactionID: txID,
		Network:       r.networkName(),
		BlockNumber:   blockNumber,
		Timestamp:     nowUnix(),
	}
}

func (r *Recorder) submitFailure(hash string, cause error) Result {
	if r.bag != nil {
		r.bag.Add(diagnostics.Wrap(diagnostics.LedgerSubmitError, "ledger submission failed", cause))
	}
	r.logf("ledger submission failed: %v", cause)
	return Result{
		Verified:     false,
		Hash:         hash,
		Network:      r.networkName(),
		Timestamp:    nowUnix(),
		ErrorMessage: cause.Error(),
	}
}

func (r *Recorder) sendTransaction(ctx context.Context, hash string) (string, error) {
	params := map[string]interface{}{
		"from":     r.cfg.SenderAddress,
		"to":       r.cfg.RecipientAddress,
		"value":    nominalValue,
		"gas":      hexutil.EncodeUint64(r.cfg.GasLimit),
		"gasPrice": hexutil.EncodeUint64(r.cfg.GasPriceWei),
		"data":     hash,
	}

	callCtx, cancel := context.WithTimeout(ctx, rpcTimeout)
	defer cancel()

	var txHash string
	if err := r.client.CallContext(callCtx, &txHash, "eth_sendTransaction", params); err != nil {
		return "", fmt.Errorf("eth_sendTransaction: %w", err)
	}
	return txHash, nil
}

// waitForConfirmation polls eth_getTransactionReceipt once per second for
// up to confirmationBudget seconds, per the ledger's suspension-point
// contract.
func (r *Recorder) waitForConfirmation(ctx context.Context, txID string) (blockNumber uint64, success bool, err error) {
	for i := 0; i < confirmationBudget; i++ {
		receipt, recErr := r.getReceipt(ctx, txID)
		if recErr == nil && receipt != nil {
			switch receipt["status"] {
			case "0x1":
				if n, ok := receipt["blockNumber"].(string); ok {
					if parsed, pErr := hexutil.DecodeUint64(n); pErr == nil {
						blockNumber = parsed
					}
				}
				return blockNumber, true, nil
			case "0x0":
				return 0, false, nil
			}
		}

		select {
		case <-ctx.Done():
			return 0, false, ctx.Err()
		case <-time.After(confirmationInterval):
		}
	}
	return 0, false, fmt.Errorf("transaction %s: confirmation timeout after %d seconds", txID, confirmationBudget)
}

func (r *Recorder) getReceipt(ctx context.Context, txID string) (map[string]interface{}, error) {
	callCtx, cancel := context.WithTimeout(ctx, rpcTimeout)
	defer cancel()

	var receipt map[string]interface{}
	if err := r.client.CallContext(callCtx, &receipt, "eth_getTransactionReceipt", txID); err != nil {
		return nil, err
	}
	return receipt, nil
}

// ValidateIntegrity re-hashes path and reports whether it matches expected.
// A disagreement is a clean boolean result, not an error, per the ledger's
// IntegrityMismatch classification.
func (r *Recorder) ValidateIntegrity(path, expected string) (bool, error) {
	actual, err := HashFile(path)
	if err != nil {
		return false, fmt.Errorf("ledger: hash %s: %w", path, err)
	}
	match := actual == expected
	if !match && r.bag != nil {
		r.bag.Add(diagnostics.New(diagnostics.IntegrityMismatch, fmt.Sprintf("expected %s, got %s", expected, actual)))
	}
	return match, nil
}

// NetworkStatus renders a short human-readable summary, grounded on the
// original recorder's status report.
func (r *Recorder) NetworkStatus() string {
	return fmt.Sprintf(
		"ledger network=%s connected=%v endpoint=%s contract=%s cached=%d",
		r.networkName(), r.connected, r.cfg.RPCEndpoint, r.cfg.ContractAddress, r.cache.size(),
	)
}

func (r *Recorder) networkName() string {
	if r.connected {
		return fmt.Sprintf("chain-%d", r.cfg.ChainID)
	}
	return "offline"
}

func (r *Recorder) logf(format string, args ...any) {
	if r.logger != nil {
		r.logger.Info(format, args...)
	}
}
