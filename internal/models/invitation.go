package models

import (
	"time"

	"gorm.io/datatypes"
)

// Invitation lifecycle states. Pending moves to exactly one of the other
// three; terminal states never transition again.
const (
	InviteStatusPending   = "pending"
	InviteStatusAccepted  = "accepted"
	InviteStatusExpired   = "expired"
	InviteStatusCancelled = "cancelled"
)

// InviteMetadata is a denormalized snapshot taken when the invitation is
// created, so the public preview needs no joins.
type InviteMetadata struct {
	TeamName    string `json:"team_name"`
	InviterName string `json:"inviter_name"`
}

// Invitation represents a pending or settled offer to join a team. Only the
// SHA-256 digest of the invite token is stored; the raw token lives solely in
// the URL handed to the invitee.
type Invitation struct {
	BaseModel

	TeamID string `gorm:"type:uuid;not null;index" json:"team_id"`
	Email  string `gorm:"not null;index" json:"email"`
	Role   string `gorm:"not null" json:"role"`

	TokenHash string `gorm:"not null" json:"-"`

	Status    string    `gorm:"not null;default:'pending';index" json:"status"`
	ExpiresAt time.Time `gorm:"not null;index" json:"expires_at"`

	CreatedBy string `gorm:"type:uuid;not null" json:"created_by"`

	AcceptedAt  *time.Time `json:"accepted_at,omitempty"`
	AcceptedBy  *string    `gorm:"type:uuid" json:"accepted_by,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`

	Metadata datatypes.JSONType[InviteMetadata] `json:"metadata"`

	Team *Team `gorm:"constraint:OnDelete:CASCADE" json:"team,omitempty"`
}

// IsPending reports whether the invitation is still open for acceptance,
// ignoring wall-clock expiry.
func (i *Invitation) IsPending() bool {
	return i.Status == InviteStatusPending
}

// IsExpired reports whether the deadline has passed at the given instant.
// Callers decide whether to persist the transition.
func (i *Invitation) IsExpired(now time.Time) bool {
	return !i.ExpiresAt.IsZero() && now.After(i.ExpiresAt)
}

// EffectiveStatus resolves the status as of now without mutating the record:
// a pending invitation past its deadline reads as expired.
func (i *Invitation) EffectiveStatus(now time.Time) string {
	if i.IsPending() && i.IsExpired(now) {
		return InviteStatusExpired
	}
	return i.Status
}
