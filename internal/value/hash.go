package value

import (
	"crypto/sha256"
	"encoding/hex"
)

// DomainDefinition prefixes stored definition fingerprints. Both catalog
// backends use it, so a definition has one fingerprint wherever it lives.
// The version suffix enables future algorithm migration.
const DomainDefinition = "fedq/definition/v1"

// Fingerprint computes a SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func Fingerprint(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}
