package ledger

// Result is the verification record returned by a submission or replayed
// from cache. The offline/online distinction lives entirely in
// TransactionID's "offline_" prefix, per the recorder's offline contract.
type Result struct {
	Verified      bool   `json:"verified"`
	Hash          string `json:"hash"`
	TransactionID string `json:"transaction_id"`
	Network       string `json:"network"`
	BlockNumber   uint64 `json:"block_number"`
	Timestamp     int64  `json:"timestamp"`
	ErrorMessage  string `json:"error_message,omitempty"`
}
