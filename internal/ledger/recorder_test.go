package ledger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/duskforge/obfusc/internal/diagnostics"
)

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      json.RawMessage `json:"id"`
}

func rpcResult(id json.RawMessage, result interface{}) map[string]interface{} {
	return map[string]interface{}{"jsonrpc": "2.0", "id": json.RawMessage(id), "result": result}
}

// fakeLedgerServer simulates just enough of a JSON-RPC node to exercise
// the recorder's three methods.
func fakeLedgerServer(t *testing.T, chainIDHex string, receiptStatus string) *httptest.Server {
	t.Helper()
	var calls int32
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		atomic.AddInt32(&calls, 1)
		var rpcReq rpcRequest
		if err := json.NewDecoder(req.Body).Decode(&rpcReq); err != nil {
			t.Fatalf("decode rpc request: %v", err)
		}

		w.Header().Set("Content-Type", "application/json")
		switch rpcReq.Method {
		case "eth_chainId":
			json.NewEncoder(w).Encode(rpcResult(rpcReq.ID, chainIDHex))
		case "eth_sendTransaction":
			json.NewEncoder(w).Encode(rpcResult(rpcReq.ID, "0xdeadbeef00000000000000000000000000000000000000000000000000000000"))
		case "eth_getTransactionReceipt":
			json.NewEncoder(w).Encode(rpcResult(rpcReq.ID, map[string]interface{}{
				"status":      receiptStatus,
				"blockNumber": "0xbc614e",
			}))
		default:
			t.Fatalf("unexpected rpc method %q", rpcReq.Method)
		}
	}))
}

func writeTempFile(t *testing.T, content []byte) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "artifact.bin")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func TestRecorderOnlineSubmitsAndConfirms(t *testing.T) {
	srv := fakeLedgerServer(t, "0x539", "0x1") // 0x539 == 1337
	defer srv.Close()

	cfg := Config{Enabled: true, RPCEndpoint: srv.URL, ChainID: 1337, GasLimit: 90000, GasPriceWei: 1000000000}
	bag := diagnostics.NewBag()
	rec := NewRecorder(cfg, bag, nil)

	if err := rec.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if !rec.connected {
		t.Fatal("expected recorder to be connected")
	}

	path := writeTempFile(t, []byte("hello world!\n"))
	result, err := rec.VerifyBinary(context.Background(), path)
	if err != nil {
		t.Fatalf("VerifyBinary: %v", err)
	}
	if !result.Verified {
		t.Fatalf("expected verified result, got %+v", result)
	}
	if result.TransactionID == "" || result.BlockNumber == 0 {
		t.Fatalf("expected populated transaction id and block number, got %+v", result)
	}
	if bag.HasErrors() {
		t.Fatalf("unexpected diagnostics recorded: %+v", bag.All())
	}
}

func TestRecorderFallsBackToOfflineOnChainIDMismatch(t *testing.T) {
	srv := fakeLedgerServer(t, "0x1", "0x1") // chain id 1, config expects 1337
	defer srv.Close()

	cfg := Config{Enabled: true, RPCEndpoint: srv.URL, ChainID: 1337}
	bag := diagnostics.NewBag()
	rec := NewRecorder(cfg, bag, nil)

	if err := rec.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize should not return an error on liveness failure: %v", err)
	}
	if rec.connected {
		t.Fatal("expected recorder to fall back to offline mode")
	}
	if !bag.HasErrors() {
		t.Fatal("expected a LedgerConnectError diagnostic")
	}

	path := writeTempFile(t, []byte("hello world!\n"))
	result, err := rec.VerifyBinary(context.Background(), path)
	if err != nil {
		t.Fatalf("VerifyBinary: %v", err)
	}
	if !result.Verified {
		t.Fatal("offline verification must report verified=true")
	}
	if len(result.TransactionID) < len(offlinePrefix) || result.TransactionID[:len(offlinePrefix)] != offlinePrefix {
		t.Fatalf("offline transaction id missing prefix: %q", result.TransactionID)
	}
}

func TestRecorderCachesRepeatedVerification(t *testing.T) {
	srv := fakeLedgerServer(t, "0x539", "0x1")
	defer srv.Close()

	cfg := Config{Enabled: true, RPCEndpoint: srv.URL, ChainID: 1337, GasLimit: 90000, GasPriceWei: 1000000000}
	rec := NewRecorder(cfg, diagnostics.NewBag(), nil)
	if err := rec.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	path := writeTempFile(t, []byte("hello world!\n"))
	first, err := rec.VerifyBinary(context.Background(), path)
	if err != nil {
		t.Fatalf("VerifyBinary: %v", err)
	}
	second, err := rec.VerifyBinary(context.Background(), path)
	if err != nil {
		t.Fatalf("VerifyBinary (cached): %v", err)
	}
	if first.TransactionID != second.TransactionID {
		t.Fatalf("expected cached result with matching transaction id, got %q vs %q", first.TransactionID, second.TransactionID)
	}
}

func TestHashFileKnownVector(t *testing.T) {
	path := writeTempFile(t, []byte("hello world!\n"))
	hash, err := HashFile(path)
	if err != nil {
		t.Fatalf("HashFile: %v", err)
	}
	want := "0xecf701f727d9e2d77c4aa49ac6fbbcc997278aca010bddeeb961c10cf54d435a"
	if hash != want {
		t.Fatalf("HashFile = %q, want %q", hash, want)
	}
}

func TestValidateIntegrityDetectsCorruption(t *testing.T) {
	path := writeTempFile(t, []byte("hello world!\n"))
	rec := NewRecorder(Config{}, diagnostics.NewBag(), nil)

	expected, err := HashFile(path)
	if err != nil {
		t.Fatalf("HashFile: %v", err)
	}
	ok, err := rec.ValidateIntegrity(path, expected)
	if err != nil {
		t.Fatalf("ValidateIntegrity: %v", err)
	}
	if !ok {
		t.Fatal("expected integrity check to pass before corruption")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	data[0] ^= 0xFF
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	ok, err = rec.ValidateIntegrity(path, expected)
	if err != nil {
		t.Fatalf("ValidateIntegrity after corruption: %v", err)
	}
	if ok {
		t.Fatal("expected integrity check to fail after corruption")
	}
}
