package helpers

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/blake2b"
)

const (
	DeviceFingerprintHeader = "X-Device-Fingerprint"
	// MaxDeviceKeyLength bounds what is stored and queried as device_key.
	MaxDeviceKeyLength = 128
)

// Fingerprint is the identity surrogate of an anonymous submitter.
type Fingerprint struct {
	Email     string
	IP        string
	DeviceKey string
	UserAgent string
}

// BuildFingerprint never fails: without a client supplied device fingerprint the
// device key is a hash of user agent and source IP. Oversized client values are
// replaced by their hash.
func BuildFingerprint(email, ip, userAgent, deviceFingerprint string) Fingerprint {
	email = strings.ToLower(strings.TrimSpace(email))
	ip = strings.TrimSpace(ip)
	userAgent = strings.TrimSpace(userAgent)

	deviceKey := strings.TrimSpace(deviceFingerprint)
	switch {
	case deviceKey == "":
		deviceKey = "ua:" + shortHash(userAgent+"|"+ip)
	case len(deviceKey) > MaxDeviceKeyLength:
		deviceKey = "fp:" + shortHash(deviceKey)
	}

	return Fingerprint{
		Email:     email,
		IP:        ip,
		DeviceKey: deviceKey,
		UserAgent: userAgent,
	}
}

func shortHash(s string) string {
	sum := blake2b.Sum256([]byte(s))
	return hex.EncodeToString(sum[:16])
}
