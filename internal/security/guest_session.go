package security

import (
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

const guestSessionTagLen = 16

// NewGuestSession mints an anonymous session token of the form <uuid>.<tag>.
func NewGuestSession(secret string) string {
	id := uuid.NewString()
	return id + "." + guestSessionTag(secret, id)
}

// VerifyGuestSession returns the session id carried by token when its tag matches secret.
func VerifyGuestSession(secret, token string) (string, bool) {
	id, tag, found := strings.Cut(strings.TrimSpace(token), ".")
	if !found || tag == "" {
		return "", false
	}
	parsed, errParse := uuid.Parse(id)
	if errParse != nil {
		return "", false
	}
	id = parsed.String()
	want := guestSessionTag(secret, id)
	if subtle.ConstantTimeCompare([]byte(strings.ToLower(tag)), []byte(want)) != 1 {
		return "", false
	}
	return id, true
}

func guestSessionTag(secret, id string) string {
	key := blake2b.Sum256([]byte("film4u guest session:" + secret))
	h, errNew := blake2b.New256(key[:])
	if errNew != nil {
		// A 32-byte key is always accepted.
		panic(errNew)
	}
	_, _ = h.Write([]byte(id))
	return hex.EncodeToString(h.Sum(nil)[:guestSessionTagLen])
}
