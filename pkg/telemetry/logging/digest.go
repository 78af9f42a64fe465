package logging

import (
	"crypto/sha256"
	"encoding/hex"
)

// digestLen is the number of hex characters kept from the sha256 sum,
// matching the short form used for policy pack digests.
const digestLen = 12

// PayloadDigest returns a short stable fingerprint for rendered marketing
// copy. Message text is customer-facing content and must never appear in
// logs above debug level; the digest is enough to correlate a log line
// with the creative that produced it.
func PayloadDigest(payload string) string {
	if payload == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])[:digestLen]
}
