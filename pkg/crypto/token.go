package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"

	"github.com/google/uuid"
)

// inviteTokenBytes is the entropy carried by an invitation token. 32 bytes
// hex-encode to the 64-character tokens embedded in invite links.
const inviteTokenBytes = 32

// GenerateInviteToken returns a 256-bit random token, hex-encoded to 64
// characters. The raw token is handed to the inviter exactly once and is
// never persisted; only its hash is.
func GenerateInviteToken() (string, error) {
	buffer := make([]byte, inviteTokenBytes)
	if _, err := rand.Read(buffer); err != nil {
		return "", err
	}
	return hex.EncodeToString(buffer), nil
}

// HashToken returns the hex-encoded SHA-256 digest of the token. This is the
// only form of the token that ever reaches durable storage.
func HashToken(token string) string {
	digest := sha256.Sum256([]byte(token))
	return hex.EncodeToString(digest[:])
}

// VerifyToken recomputes the digest of the presented token and compares it
// against the stored hash in constant time.
func VerifyToken(token, hash string) bool {
	if token == "" || hash == "" {
		return false
	}
	computed := sha256.Sum256([]byte(token))
	stored, err := hex.DecodeString(hash)
	if err != nil || len(stored) != len(computed) {
		return false
	}
	return subtle.ConstantTimeCompare(computed[:], stored) == 1
}

// NewInviteID returns an opaque, URL-safe, non-sequential identifier for a
// new invitation. Collision resistance here is operational, not
// cryptographic; the secret material lives in the token.
func NewInviteID() string {
	return uuid.NewString()
}
