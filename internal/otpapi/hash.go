package otpapi

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// Hasher computes the time salted hash the OTP API expects on its public
// users/{uid}/{hash} endpoint.
type Hasher struct {
	secretDigest string
	now          func() time.Time
}

// NewHasher returns a Hasher for the shared users secret.
func NewHasher(usersSecret string) *Hasher {
	sum := md5.Sum([]byte(usersSecret))
	return &Hasher{secretDigest: hex.EncodeToString(sum[:]), now: time.Now}
}

// Hash returns hex(sha256(hex(md5(secret)) + uid + salt)) for the current
// UTC hour. The salt is the day of month followed by the hour, both in
// decimal without padding.
func (h *Hasher) Hash(uid string) string {
	return h.hashAt(uid, h.now())
}

func (h *Hasher) hashAt(uid string, at time.Time) string {
	at = at.UTC()
	salt := strconv.Itoa(at.Day()) + strconv.Itoa(at.Hour())
	sum := sha256.Sum256([]byte(h.secretDigest + uid + salt))
	return hex.EncodeToString(sum[:])
}
