package xid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// New returns a prefixed, time-ordered identifier such as "txn-1735…-a3f9…".
// The random suffix keeps IDs unique when two are minted in the same
// nanosecond; on entropy failure the timestamp alone is used.
func New(prefix string) string {
	var buf [10]byte
	now := time.Now().UnixNano()
	if _, err := rand.Read(buf[:]); err != nil {
		return fmt.Sprintf("%s-%d", prefix, now)
	}
	return fmt.Sprintf("%s-%d-%s", prefix, now, hex.EncodeToString(buf[:]))
}
