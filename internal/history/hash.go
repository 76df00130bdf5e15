package history

import (
	"crypto/sha256"
	"encoding/hex"
)

// DomainContext prefixes context block hashes. The version suffix allows
// the algorithm to change without colliding with recorded hashes.
const DomainContext = "lace/context/v1"

// ContextHash identifies a compiled context block so consecutive entries
// show whether the block an editor would see changed.
//
// Format: hex(SHA256(domain + 0x00 + text))
func ContextHash(text string) string {
	h := sha256.New()
	h.Write([]byte(DomainContext))
	h.Write([]byte{0x00})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}
