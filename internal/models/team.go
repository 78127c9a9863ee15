package models

import "gorm.io/datatypes"

// TeamSettings holds per-team policy stored as a JSON document.
type TeamSettings struct {
	// AllowInvites controls whether admins may send invitations at all.
	AllowInvites bool `json:"allow_invites"`
	// MaxMembers caps active memberships; zero means unlimited.
	MaxMembers int `json:"max_members"`
}

// DefaultTeamSettings returns the policy applied to newly created teams.
func DefaultTeamSettings() TeamSettings {
	return TeamSettings{AllowInvites: true, MaxMembers: 0}
}

// Team is the unit of collaboration. The owner is fixed at creation time;
// ownership transfer is not supported.
type Team struct {
	BaseModel

	Name        string `gorm:"not null" json:"name"`
	Description string `json:"description"`
	OwnerUID    string `gorm:"type:uuid;index;not null" json:"owner_uid"`

	Settings datatypes.JSONType[TeamSettings] `json:"settings"`
}
