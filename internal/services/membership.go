package services

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/escalaapp/escala/internal/models"
)

// Membership rows and their UserTeamRef mirror are only ever written through
// the helpers below, always inside the caller's transaction. Keeping the pair
// in lockstep here is what guarantees the forward and reverse indexes never
// disagree.

func createMembershipTx(tx *gorm.DB, member *models.TeamMember, teamName string) error {
	if err := tx.Create(member).Error; err != nil {
		return err
	}

	ref := models.UserTeamRef{
		UID:          member.UID,
		TeamID:       member.TeamID,
		MembershipID: member.ID,
		TeamName:     teamName,
		Role:         member.Role,
		JoinedAt:     member.JoinedAt,
	}
	if err := tx.Create(&ref).Error; err != nil {
		return fmt.Errorf("create team ref: %w", err)
	}

	return nil
}

func deleteMembershipTx(tx *gorm.DB, member *models.TeamMember) error {
	if err := tx.Delete(&models.TeamMember{}, "id = ?", member.ID).Error; err != nil {
		return err
	}

	return tx.Where("uid = ? AND team_id = ?", member.UID, member.TeamID).
		Delete(&models.UserTeamRef{}).Error
}

func updateMembershipRoleTx(tx *gorm.DB, member *models.TeamMember, role string) error {
	if err := tx.Model(&models.TeamMember{}).
		Where("id = ?", member.ID).
		Update("role", role).Error; err != nil {
		return err
	}

	return tx.Model(&models.UserTeamRef{}).
		Where("uid = ? AND team_id = ?", member.UID, member.TeamID).
		Update("role", role).Error
}
