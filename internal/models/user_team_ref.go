package models

import "time"

// UserTeamRef is the reverse index from a user to the teams they belong to.
// Rows are written and removed in the same transaction as the TeamMember they
// mirror; nothing else may touch this table.
type UserTeamRef struct {
	BaseModel

	UID          string `gorm:"type:uuid;not null;index;uniqueIndex:idx_user_team_refs_uid_team" json:"uid"`
	TeamID       string `gorm:"type:uuid;not null;uniqueIndex:idx_user_team_refs_uid_team" json:"team_id"`
	MembershipID string `gorm:"type:uuid;not null" json:"membership_id"`

	// TeamName is a snapshot taken when the membership was written.
	TeamName string `json:"team_name"`
	Role     string `gorm:"not null" json:"role"`

	JoinedAt time.Time `gorm:"not null" json:"joined_at"`
}
