package visitors

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// UnknownFingerprint is stored for visits whose network address is unavailable.
// All anonymous visits collapse into this single fingerprint.
const UnknownFingerprint = "unknown"

// BuildVisitorFingerprint creates a privacy-preserving pseudo-identifier for a visitor.
// IP addresses are never stored - only the SHA-256 digest of the address is.
func BuildVisitorFingerprint(ipAddress string) string {
	ipAddress = strings.TrimSpace(ipAddress)
	if ipAddress == "" {
		return UnknownFingerprint
	}

	h := sha256.New()
	if _, err := h.Write([]byte(ipAddress)); err != nil {
		return UnknownFingerprint
	}
	return hex.EncodeToString(h.Sum(nil))
}
