package auth

import "strings"

// Identity is the authenticated caller as seen by the service layer. Email is
// the address verified at sign-in, already canonicalised by the issuer.
type Identity struct {
	UID   string `json:"uid"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

// IsZero reports whether the identity carries no authenticated subject.
func (i Identity) IsZero() bool {
	return i.UID == ""
}

// CanonicalEmail returns the identity email trimmed and lowercased.
func (i Identity) CanonicalEmail() string {
	return strings.ToLower(strings.TrimSpace(i.Email))
}
