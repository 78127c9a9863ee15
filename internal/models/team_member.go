package models

import "time"

// Membership roles. Owner is assigned once, when the team is created.
const (
	TeamRoleOwner  = "owner"
	TeamRoleAdmin  = "admin"
	TeamRoleMember = "member"
)

// Membership statuses.
const (
	MemberStatusActive   = "active"
	MemberStatusInactive = "inactive"
)

// TeamMember records one user's membership in one team. The composite unique
// index keeps a user from holding two memberships in the same team.
type TeamMember struct {
	BaseModel

	TeamID string `gorm:"type:uuid;not null;index;uniqueIndex:idx_team_members_team_uid" json:"team_id"`
	UID    string `gorm:"type:uuid;not null;uniqueIndex:idx_team_members_team_uid" json:"uid"`

	Email       string `gorm:"not null;index" json:"email"`
	DisplayName string `json:"display_name"`

	Role   string `gorm:"not null" json:"role"`
	Status string `gorm:"not null;default:'active'" json:"status"`

	JoinedAt  time.Time `gorm:"not null" json:"joined_at"`
	InvitedBy string    `gorm:"type:uuid" json:"invited_by,omitempty"`

	Team *Team `gorm:"constraint:OnDelete:CASCADE" json:"team,omitempty"`
}

// IsActive reports whether the membership currently counts toward the team.
func (m *TeamMember) IsActive() bool {
	return m.Status == MemberStatusActive
}

// ValidMemberRole reports whether role is assignable through invitations or
// role changes. Owner is excluded on purpose.
func ValidMemberRole(role string) bool {
	return role == TeamRoleAdmin || role == TeamRoleMember
}
