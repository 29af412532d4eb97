package ledger

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// generateLocalID produces a 0x-prefixed 32-byte random identifier, used
// as the offline-mode stand-in for a transaction hash.
func generateLocalID() string {
	buf := make([]byte, 32)
	_, _ = rand.Read(buf)
	return "0x" + hex.EncodeToString(buf)
}

func nowUnix() int64 {
	return time.Now().Unix()
}
