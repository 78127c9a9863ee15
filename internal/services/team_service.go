package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/escalaapp/escala/internal/auth"
	"github.com/escalaapp/escala/internal/models"
	"github.com/escalaapp/escala/internal/realtime"
	apperrors "github.com/escalaapp/escala/pkg/errors"
)

var (
	// ErrTeamNotFound indicates the requested team does not exist.
	ErrTeamNotFound = apperrors.New("TEAM_NOT_FOUND", "Team not found", http.StatusNotFound)
	// ErrMembershipNotFound indicates the requested membership does not exist.
	ErrMembershipNotFound = apperrors.New("TEAM_MEMBER_NOT_FOUND", "User is not a member of the team", http.StatusNotFound)
	// ErrOwnerImmutable rejects role changes and removal aimed at the team owner.
	ErrOwnerImmutable = apperrors.New("TEAM_OWNER_IMMUTABLE", "The team owner cannot be modified or removed", http.StatusConflict)
)

// CreateTeamInput captures new team metadata.
type CreateTeamInput struct {
	Name        string
	Description string
	Settings    *models.TeamSettings
}

// MembershipEventPayload rides the memberships realtime stream.
type MembershipEventPayload struct {
	TeamID       string `json:"team_id"`
	TeamName     string `json:"team_name"`
	MembershipID string `json:"membership_id"`
	UID          string `json:"uid"`
	Role         string `json:"role,omitempty"`
}

// TeamService owns teams, memberships and the per-user reverse index.
type TeamService struct {
	db       *gorm.DB
	audit    *AuditService
	notifier *NotificationService
}

// TeamOption customises TeamService construction.
type TeamOption func(*TeamService)

// WithTeamNotifier attaches the notification service used to tell members
// about membership changes.
func WithTeamNotifier(notifier *NotificationService) TeamOption {
	return func(s *TeamService) { s.notifier = notifier }
}

// NewTeamService constructs a TeamService instance.
func NewTeamService(db *gorm.DB, audit *AuditService, opts ...TeamOption) (*TeamService, error) {
	if db == nil {
		return nil, errors.New("team service: db is required")
	}
	svc := &TeamService{db: db, audit: audit}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Create registers a new team with the caller as owner. The team row, the
// owner membership and its reverse-index ref commit in one transaction.
func (s *TeamService) Create(ctx context.Context, identity auth.Identity, input CreateTeamInput) (*models.Team, error) {
	ctx = ensureContext(ctx)

	if identity.IsZero() {
		return nil, apperrors.ErrUnauthorized
	}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperrors.NewBadRequest("team name is required")
	}

	settings := models.DefaultTeamSettings()
	if input.Settings != nil {
		settings = *input.Settings
	}

	team := &models.Team{
		Name:        name,
		Description: strings.TrimSpace(input.Description),
		OwnerUID:    identity.UID,
		Settings:    datatypes.NewJSONType(settings),
	}

	now := time.Now().UTC()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(team).Error; err != nil {
			return err
		}

		owner := &models.TeamMember{
			TeamID:      team.ID,
			UID:         identity.UID,
			Email:       identity.CanonicalEmail(),
			DisplayName: identity.Name,
			Role:        models.TeamRoleOwner,
			Status:      models.MemberStatusActive,
			JoinedAt:    now,
		}
		return createMembershipTx(tx, owner, team.Name)
	})
	if err != nil {
		return nil, fmt.Errorf("team service: create team: %w", err)
	}

	recordAudit(ctx, s.audit, AuditEntry{
		UserID:   &team.OwnerUID,
		Username: identity.Name,
		Action:   "team.create",
		Resource: team.ID,
		Result:   "success",
		Metadata: map[string]any{"name": team.Name},
	})

	return team, nil
}

// GetByID loads a team by identifier.
func (s *TeamService) GetByID(ctx context.Context, teamID string) (*models.Team, error) {
	ctx = ensureContext(ctx)

	var team models.Team
	err := s.db.WithContext(ctx).First(&team, "id = ?", teamID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTeamNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("team service: load team: %w", err)
	}

	return &team, nil
}

// ListMembers returns the team's memberships, newest joiners first.
func (s *TeamService) ListMembers(ctx context.Context, teamID string) ([]models.TeamMember, error) {
	ctx = ensureContext(ctx)

	if _, err := s.GetByID(ctx, teamID); err != nil {
		return nil, err
	}

	var members []models.TeamMember
	if err := s.db.WithContext(ctx).
		Where("team_id = ?", teamID).
		Order("joined_at DESC").
		Find(&members).Error; err != nil {
		return nil, fmt.Errorf("team service: list members: %w", err)
	}

	return members, nil
}

// ListTeamsForUser reads the reverse index of teams the user belongs to.
func (s *TeamService) ListTeamsForUser(ctx context.Context, uid string) ([]models.UserTeamRef, error) {
	ctx = ensureContext(ctx)

	var refs []models.UserTeamRef
	if err := s.db.WithContext(ctx).
		Where("uid = ?", uid).
		Order("joined_at DESC").
		Find(&refs).Error; err != nil {
		return nil, fmt.Errorf("team service: list teams for user: %w", err)
	}

	return refs, nil
}

// IsOwner reports whether uid owns the team.
func (s *TeamService) IsOwner(ctx context.Context, teamID, uid string) (bool, error) {
	team, err := s.GetByID(ctx, teamID)
	if err != nil {
		return false, err
	}
	return team.OwnerUID == uid, nil
}

// CanInvite reports whether uid may manage invitations and memberships for
// the team: the owner, or any active membership with the owner or admin role.
func (s *TeamService) CanInvite(ctx context.Context, teamID, uid string) (bool, error) {
	ctx = ensureContext(ctx)

	team, err := s.GetByID(ctx, teamID)
	if err != nil {
		return false, err
	}
	return s.canManageMembers(ctx, team, uid)
}

func (s *TeamService) canManageMembers(ctx context.Context, team *models.Team, uid string) (bool, error) {
	if team.OwnerUID == uid {
		return true, nil
	}

	var count int64
	err := s.db.WithContext(ctx).Model(&models.TeamMember{}).
		Where("team_id = ? AND uid = ? AND status = ? AND role IN ?",
			team.ID, uid, models.MemberStatusActive,
			[]string{models.TeamRoleOwner, models.TeamRoleAdmin}).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("team service: check invite permission: %w", err)
	}

	return count > 0, nil
}

// IsMember reports whether uid holds an active membership in the team.
func (s *TeamService) IsMember(ctx context.Context, teamID, uid string) (bool, error) {
	ctx = ensureContext(ctx)

	var count int64
	err := s.db.WithContext(ctx).Model(&models.TeamMember{}).
		Where("team_id = ? AND uid = ? AND status = ?", teamID, uid, models.MemberStatusActive).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("team service: check membership: %w", err)
	}

	return count > 0, nil
}

// IsMemberByEmail reports whether the canonical email holds an active membership.
func (s *TeamService) IsMemberByEmail(ctx context.Context, teamID, email string) (bool, error) {
	ctx = ensureContext(ctx)

	var count int64
	err := s.db.WithContext(ctx).Model(&models.TeamMember{}).
		Where("team_id = ? AND email = ? AND status = ?", teamID, canonicalEmail(email), models.MemberStatusActive).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("team service: check membership by email: %w", err)
	}

	return count > 0, nil
}

// ActiveMemberCount counts memberships that count toward the team cap.
func (s *TeamService) ActiveMemberCount(ctx context.Context, teamID string) (int64, error) {
	ctx = ensureContext(ctx)

	var count int64
	err := s.db.WithContext(ctx).Model(&models.TeamMember{}).
		Where("team_id = ? AND status = ?", teamID, models.MemberStatusActive).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("team service: count members: %w", err)
	}

	return count, nil
}

// RemoveMember deletes a membership and its reverse-index ref. The owner
// membership is immutable.
func (s *TeamService) RemoveMember(ctx context.Context, identity auth.Identity, teamID, membershipID string) error {
	ctx = ensureContext(ctx)

	if identity.IsZero() {
		return apperrors.ErrUnauthorized
	}

	team, err := s.GetByID(ctx, teamID)
	if err != nil {
		return err
	}
	allowed, err := s.canManageMembers(ctx, team, identity.UID)
	if err != nil {
		return err
	}
	if !allowed {
		return apperrors.ErrForbidden
	}

	member, err := s.loadMembership(ctx, teamID, membershipID)
	if err != nil {
		return err
	}
	if member.Role == models.TeamRoleOwner {
		return ErrOwnerImmutable
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return deleteMembershipTx(tx, member)
	})
	if err != nil {
		return fmt.Errorf("team service: remove member: %w", err)
	}

	recordAudit(ctx, s.audit, AuditEntry{
		UserID:   &identity.UID,
		Username: identity.Name,
		Action:   "team.member.remove",
		Resource: teamID,
		Result:   "success",
		Metadata: map[string]any{"membership_id": membershipID, "uid": member.UID},
	})

	s.notifyMembershipChange(ctx, member.UID, "membership.removed",
		CreateNotificationInput{
			UserID:   member.UID,
			Type:     "team.member.removed",
			Title:    "Removed from team",
			Message:  fmt.Sprintf("You are no longer a member of %s.", team.Name),
			Metadata: map[string]any{"team_id": team.ID},
		},
		MembershipEventPayload{
			TeamID:       team.ID,
			TeamName:     team.Name,
			MembershipID: member.ID,
			UID:          member.UID,
		})

	return nil
}

// UpdateMemberRole changes a membership role and syncs the reverse index.
// Owner only; the owner membership itself cannot be re-roled.
func (s *TeamService) UpdateMemberRole(ctx context.Context, identity auth.Identity, teamID, membershipID, role string) error {
	ctx = ensureContext(ctx)

	if identity.IsZero() {
		return apperrors.ErrUnauthorized
	}
	if !models.ValidMemberRole(role) {
		return apperrors.NewBadRequest("role must be admin or member")
	}

	team, err := s.GetByID(ctx, teamID)
	if err != nil {
		return err
	}
	if team.OwnerUID != identity.UID {
		return apperrors.ErrForbidden
	}

	member, err := s.loadMembership(ctx, teamID, membershipID)
	if err != nil {
		return err
	}
	if member.Role == models.TeamRoleOwner {
		return ErrOwnerImmutable
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return updateMembershipRoleTx(tx, member, role)
	})
	if err != nil {
		return fmt.Errorf("team service: update member role: %w", err)
	}

	recordAudit(ctx, s.audit, AuditEntry{
		UserID:   &identity.UID,
		Username: identity.Name,
		Action:   "team.member.role",
		Resource: teamID,
		Result:   "success",
		Metadata: map[string]any{"membership_id": membershipID, "role": role},
	})

	s.notifyMembershipChange(ctx, member.UID, "membership.role_changed",
		CreateNotificationInput{
			UserID:   member.UID,
			Type:     "team.member.role",
			Title:    "Role updated",
			Message:  fmt.Sprintf("Your role in %s is now %s.", team.Name, role),
			Metadata: map[string]any{"team_id": team.ID, "role": role},
		},
		MembershipEventPayload{
			TeamID:       team.ID,
			TeamName:     team.Name,
			MembershipID: member.ID,
			UID:          member.UID,
			Role:         role,
		})

	return nil
}

// notifyMembershipChange records an in-app notification for the affected
// member and mirrors the event on the memberships realtime stream. Outcomes
// never affect the membership mutation itself.
func (s *TeamService) notifyMembershipChange(ctx context.Context, uid, event string, note CreateNotificationInput, payload MembershipEventPayload) {
	if s.notifier == nil || uid == "" {
		return
	}
	_, _ = s.notifier.Create(ctx, note)
	s.notifier.Publish(realtime.StreamMemberships, uid, event, payload)
}

func (s *TeamService) loadMembership(ctx context.Context, teamID, membershipID string) (*models.TeamMember, error) {
	var member models.TeamMember
	err := s.db.WithContext(ctx).
		Where("id = ? AND team_id = ?", membershipID, teamID).
		First(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrMembershipNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("team service: load membership: %w", err)
	}

	return &member, nil
}
