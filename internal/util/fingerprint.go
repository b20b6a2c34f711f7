// Package util holds small helpers shared across the gateway: machine
// fingerprinting and wire identifier generation.
package util

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"sync"
)

// fallbackFingerprintSeed is hashed when the hostname cannot be resolved so
// the gateway still presents a stable fingerprint.
const fallbackFingerprintSeed = "default-kiro-gateway"

var (
	fingerprintOnce sync.Once
	fingerprint     string
)

// MachineFingerprint returns a stable 64-char hex identifier for this host,
// derived from the hostname. The value is computed once per process.
func MachineFingerprint() string {
	fingerprintOnce.Do(func() {
		seed := fallbackFingerprintSeed
		if host, err := os.Hostname(); err == nil && host != "" {
			seed = host
		}
		sum := sha256.Sum256([]byte(seed))
		fingerprint = hex.EncodeToString(sum[:])
	})
	return fingerprint
}
