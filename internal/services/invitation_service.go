package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/escalaapp/escala/internal/auth"
	"github.com/escalaapp/escala/internal/models"
	"github.com/escalaapp/escala/internal/realtime"
	"github.com/escalaapp/escala/pkg/crypto"
	apperrors "github.com/escalaapp/escala/pkg/errors"
	"github.com/escalaapp/escala/pkg/metrics"
)

const defaultInviteTTL = 72 * time.Hour

var (
	// ErrInviteNotFound indicates the invitation does not exist.
	ErrInviteNotFound = apperrors.New("INVITE_NOT_FOUND", "Invitation not found", http.StatusNotFound)
	// ErrInvitePending signals an open invitation already exists for the address.
	ErrInvitePending = apperrors.New("INVITE_ALREADY_PENDING", "An invitation for this email is already pending", http.StatusConflict)
	// ErrAlreadyMember signals the address already belongs to the team.
	ErrAlreadyMember = apperrors.New("TEAM_MEMBER_EXISTS", "This email already belongs to a team member", http.StatusConflict)
	// ErrInviteNotPending rejects lifecycle operations on settled invitations.
	ErrInviteNotPending = apperrors.New("INVITE_NOT_PENDING", "Invitation is no longer pending", http.StatusConflict)
	// ErrInviteExpired indicates the invitation deadline has passed.
	ErrInviteExpired = apperrors.New("INVITE_EXPIRED", "Invitation has expired", http.StatusGone)
	// ErrInvalidToken indicates the presented token does not match the invitation.
	ErrInvalidToken = apperrors.New("INVALID_TOKEN", "Invitation token is invalid", http.StatusBadRequest)
	// ErrEmailMismatch indicates the signed-in account does not match the invited address.
	ErrEmailMismatch = apperrors.New("EMAIL_MISMATCH", "Invitation was issued to a different email address", http.StatusForbidden)
	// ErrInvitesDisabled signals the team has switched invitations off.
	ErrInvitesDisabled = apperrors.New("TEAM_INVITES_DISABLED", "This team does not accept invitations", http.StatusConflict)
	// ErrTeamFull signals the team reached its member cap.
	ErrTeamFull = apperrors.New("TEAM_FULL", "This team has reached its member limit", http.StatusConflict)
)

// errMemberRace aborts the accept transaction when the unique membership
// index catches a concurrent join.
var errMemberRace = errors.New("invitation service: membership inserted concurrently")

// Accept outcome codes surfaced to clients.
const (
	AcceptCodeAccepted         = "accepted"
	AcceptCodeNotFound         = "not_found"
	AcceptCodeAlreadyProcessed = "already_processed"
	AcceptCodeCancelled        = "cancelled"
	AcceptCodeExpired          = "expired"
	AcceptCodeInvalidToken     = "invalid_token"
	AcceptCodeEmailMismatch    = "email_mismatch"
	AcceptCodeAlreadyMember    = "already_member"
)

// CreateInvitationInput describes a new invitation.
type CreateInvitationInput struct {
	TeamID string
	Email  string
	Role   string
}

// InviteLink is returned exactly once, at creation or regeneration; the raw
// token it carries is never persisted and cannot be recovered later.
type InviteLink struct {
	ID        string    `json:"id"`
	Token     string    `json:"token"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// InvitationPreview is the public, pre-authentication view of an invitation.
type InvitationPreview struct {
	ID          string    `json:"id"`
	TeamID      string    `json:"team_id"`
	TeamName    string    `json:"team_name"`
	InviterName string    `json:"inviter_name"`
	Email       string    `json:"email"`
	Role        string    `json:"role"`
	Status      string    `json:"status"`
	ExpiresAt   time.Time `json:"expires_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// AcceptResult reports the outcome of an acceptance attempt. Validation
// failures are results, not errors; only infrastructure faults surface as
// errors.
type AcceptResult struct {
	Success  bool   `json:"success"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	TeamID   string `json:"team_id,omitempty"`
	TeamName string `json:"team_name,omitempty"`
	Role     string `json:"role,omitempty"`
}

// InvitationOption customises InvitationService behaviour.
type InvitationOption func(*InvitationService)

// WithInviteBaseURL configures the base URL used to build invite hyperlinks.
func WithInviteBaseURL(base string) InvitationOption {
	return func(s *InvitationService) {
		s.baseURL = strings.TrimRight(strings.TrimSpace(base), "/")
	}
}

// WithInviteTTL overrides the invitation lifetime.
func WithInviteTTL(d time.Duration) InvitationOption {
	return func(s *InvitationService) {
		if d > 0 {
			s.ttl = d
		}
	}
}

// WithInviteClock injects a custom clock primarily for testing.
func WithInviteClock(clock func() time.Time) InvitationOption {
	return func(s *InvitationService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// InvitationService owns the invitation lifecycle: issuing links, the public
// preview, acceptance, cancellation and regeneration.
type InvitationService struct {
	db       *gorm.DB
	teams    *TeamService
	audit    *AuditService
	notifier *NotificationService

	baseURL string
	ttl     time.Duration
	now     func() time.Time
}

// NewInvitationService constructs an InvitationService. The notifier is
// optional; everything else is required.
func NewInvitationService(db *gorm.DB, teams *TeamService, audit *AuditService, notifier *NotificationService, opts ...InvitationOption) (*InvitationService, error) {
	if db == nil {
		return nil, errors.New("invitation service: db is required")
	}
	if teams == nil {
		return nil, errors.New("invitation service: team service is required")
	}

	service := &InvitationService{
		db:       db,
		teams:    teams,
		audit:    audit,
		notifier: notifier,
		ttl:      defaultInviteTTL,
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(service)
	}

	return service, nil
}

// Create issues a new invitation and returns the single-use link. The caller
// must hold invite rights on the team; duplicate pending invitations and
// existing members are rejected inside the creating transaction.
func (s *InvitationService) Create(ctx context.Context, identity auth.Identity, input CreateInvitationInput) (*InviteLink, error) {
	ctx = ensureContext(ctx)

	if identity.IsZero() {
		return nil, apperrors.ErrUnauthorized
	}

	email := canonicalEmail(input.Email)
	if email == "" {
		return nil, apperrors.NewBadRequest("email is required")
	}
	role := strings.TrimSpace(input.Role)
	if role == "" {
		role = models.TeamRoleMember
	}
	if !models.ValidMemberRole(role) {
		return nil, apperrors.NewBadRequest("role must be admin or member")
	}

	allowed, err := s.teams.CanInvite(ctx, input.TeamID, identity.UID)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, apperrors.ErrForbidden
	}

	team, err := s.teams.GetByID(ctx, input.TeamID)
	if err != nil {
		return nil, err
	}

	settings := team.Settings.Data()
	if !settings.AllowInvites {
		return nil, ErrInvitesDisabled
	}
	if settings.MaxMembers > 0 {
		count, err := s.teams.ActiveMemberCount(ctx, team.ID)
		if err != nil {
			return nil, err
		}
		if count >= int64(settings.MaxMembers) {
			return nil, ErrTeamFull
		}
	}

	token, err := crypto.GenerateInviteToken()
	if err != nil {
		return nil, fmt.Errorf("invitation service: generate token: %w", err)
	}

	now := s.now().UTC()
	invitation := &models.Invitation{
		TeamID:    team.ID,
		Email:     email,
		Role:      role,
		TokenHash: crypto.HashToken(token),
		Status:    models.InviteStatusPending,
		ExpiresAt: now.Add(s.ttl),
		CreatedBy: identity.UID,
		Metadata: datatypes.NewJSONType(models.InviteMetadata{
			TeamName:    team.Name,
			InviterName: defaultIfEmpty(identity.Name, identity.CanonicalEmail()),
		}),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var open models.Invitation
		err := tx.Where("team_id = ? AND email = ? AND status = ?", team.ID, email, models.InviteStatusPending).
			First(&open).Error
		switch {
		case err == nil:
			if !open.IsExpired(now) {
				return ErrInvitePending
			}
			// The previous invitation lapsed; settle it and continue.
			if err := tx.Model(&models.Invitation{}).
				Where("id = ? AND status = ?", open.ID, models.InviteStatusPending).
				Update("status", models.InviteStatusExpired).Error; err != nil {
				return err
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
		default:
			return err
		}

		var members int64
		if err := tx.Model(&models.TeamMember{}).
			Where("team_id = ? AND email = ? AND status = ?", team.ID, email, models.MemberStatusActive).
			Count(&members).Error; err != nil {
			return err
		}
		if members > 0 {
			return ErrAlreadyMember
		}

		return tx.Create(invitation).Error
	})
	if err != nil {
		metrics.InviteEvents.WithLabelValues("created", "failure").Inc()
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, fmt.Errorf("invitation service: create invitation: %w", err)
	}

	metrics.InviteEvents.WithLabelValues("created", "success").Inc()
	recordAudit(ctx, s.audit, AuditEntry{
		UserID:   &invitation.CreatedBy,
		Username: identity.Name,
		Action:   "invite.create",
		Resource: invitation.ID,
		Result:   "success",
		Metadata: map[string]any{"team_id": team.ID, "email": email, "role": role},
	})

	return &InviteLink{
		ID:        invitation.ID,
		Token:     token,
		URL:       s.inviteURL(invitation.ID, token),
		ExpiresAt: invitation.ExpiresAt,
	}, nil
}

// PublicMetadata returns the pre-authentication preview of an invitation.
// A pending invitation past its deadline is settled to expired on the way out.
func (s *InvitationService) PublicMetadata(ctx context.Context, inviteID string) (*InvitationPreview, error) {
	ctx = ensureContext(ctx)

	invitation, err := s.load(ctx, inviteID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if invitation.IsPending() && invitation.IsExpired(now) {
		if err := s.settleExpired(ctx, invitation.ID); err != nil {
			return nil, err
		}
		invitation.Status = models.InviteStatusExpired
	}

	meta := invitation.Metadata.Data()
	return &InvitationPreview{
		ID:          invitation.ID,
		TeamID:      invitation.TeamID,
		TeamName:    meta.TeamName,
		InviterName: meta.InviterName,
		Email:       invitation.Email,
		Role:        invitation.Role,
		Status:      invitation.Status,
		ExpiresAt:   invitation.ExpiresAt,
		CreatedAt:   invitation.CreatedAt,
	}, nil
}

// Validate checks a token against an invitation without mutating anything
// beyond the lazy expiry settlement.
func (s *InvitationService) Validate(ctx context.Context, inviteID, token string) (bool, string, error) {
	preview, err := s.PublicMetadata(ctx, inviteID)
	if err != nil {
		if errors.Is(err, ErrInviteNotFound) {
			return false, AcceptCodeNotFound, nil
		}
		return false, "", err
	}

	if preview.Status != models.InviteStatusPending {
		if preview.Status == models.InviteStatusExpired {
			return false, AcceptCodeExpired, nil
		}
		return false, AcceptCodeAlreadyProcessed, nil
	}

	invitation, err := s.load(ctx, inviteID)
	if err != nil {
		return false, "", err
	}
	if !crypto.VerifyToken(token, invitation.TokenHash) {
		return false, AcceptCodeInvalidToken, nil
	}

	return true, "", nil
}

// Accept redeems an invitation for the signed-in identity. The membership,
// its reverse-index ref and the status flip commit in a single transaction
// whose preconditions are re-verified under a row lock.
func (s *InvitationService) Accept(ctx context.Context, identity auth.Identity, inviteID, token string) (*AcceptResult, error) {
	ctx = ensureContext(ctx)

	if identity.IsZero() {
		return nil, apperrors.ErrUnauthorized
	}

	invitation, err := s.load(ctx, inviteID)
	if errors.Is(err, ErrInviteNotFound) {
		return s.acceptFailure(ctx, identity, inviteID, AcceptCodeNotFound, "Invitation not found."), nil
	}
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()

	if failure := s.checkAcceptPreconditions(invitation, identity, token, now); failure != nil {
		if failure.Code == AcceptCodeExpired {
			if err := s.settleExpired(ctx, invitation.ID); err != nil {
				return nil, err
			}
		}
		return s.acceptFailure(ctx, identity, inviteID, failure.Code, failure.Message), nil
	}

	member, err := s.teams.IsMember(ctx, invitation.TeamID, identity.UID)
	if err != nil {
		return nil, err
	}
	if member {
		return s.acceptFailure(ctx, identity, inviteID, AcceptCodeAlreadyMember, "You are already a member of this team."), nil
	}

	var (
		failure  *AcceptResult
		teamName string
	)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var locked models.Invitation
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&locked, "id = ?", invitation.ID).Error; err != nil {
			return err
		}

		// Status, expiry and token are re-verified under the lock; the
		// unique membership index backstops the member check.
		if failure = s.checkAcceptPreconditions(&locked, identity, token, now); failure != nil {
			if failure.Code == AcceptCodeExpired {
				return tx.Model(&models.Invitation{}).
					Where("id = ? AND status = ?", locked.ID, models.InviteStatusPending).
					Update("status", models.InviteStatusExpired).Error
			}
			return nil
		}

		var team models.Team
		if err := tx.First(&team, "id = ?", locked.TeamID).Error; err != nil {
			return err
		}
		teamName = team.Name

		newMember := &models.TeamMember{
			TeamID:      locked.TeamID,
			UID:         identity.UID,
			Email:       identity.CanonicalEmail(),
			DisplayName: identity.Name,
			Role:        locked.Role,
			Status:      models.MemberStatusActive,
			JoinedAt:    now,
			InvitedBy:   locked.CreatedBy,
		}
		if err := createMembershipTx(tx, newMember, team.Name); err != nil {
			if isUniqueConstraintError(err) {
				return errMemberRace
			}
			return err
		}

		return tx.Model(&models.Invitation{}).
			Where("id = ?", locked.ID).
			Updates(map[string]any{
				"status":      models.InviteStatusAccepted,
				"accepted_at": now,
				"accepted_by": identity.UID,
			}).Error
	})
	if errors.Is(err, errMemberRace) {
		return s.acceptFailure(ctx, identity, inviteID, AcceptCodeAlreadyMember, "You are already a member of this team."), nil
	}
	if err != nil {
		metrics.InviteEvents.WithLabelValues("accepted", "failure").Inc()
		return nil, fmt.Errorf("invitation service: accept invitation: %w", err)
	}
	if failure != nil {
		return s.acceptFailure(ctx, identity, inviteID, failure.Code, failure.Message), nil
	}

	metrics.InviteEvents.WithLabelValues("accepted", "success").Inc()
	recordAudit(ctx, s.audit, AuditEntry{
		UserID:   &identity.UID,
		Username: identity.Name,
		Action:   "invite.accept",
		Resource: invitation.ID,
		Result:   "success",
		Metadata: map[string]any{"team_id": invitation.TeamID},
	})
	s.notifyAccepted(ctx, invitation, identity, teamName)

	return &AcceptResult{
		Success:  true,
		Code:     AcceptCodeAccepted,
		Message:  fmt.Sprintf("You have joined %s.", teamName),
		TeamID:   invitation.TeamID,
		TeamName: teamName,
		Role:     invitation.Role,
	}, nil
}

// Cancel settles a pending invitation as cancelled. Only the creator or the
// team owner may cancel; settled invitations stay settled.
func (s *InvitationService) Cancel(ctx context.Context, identity auth.Identity, inviteID string) error {
	ctx = ensureContext(ctx)

	if identity.IsZero() {
		return apperrors.ErrUnauthorized
	}

	invitation, err := s.load(ctx, inviteID)
	if err != nil {
		return err
	}

	if err := s.requireManageRights(ctx, identity, invitation); err != nil {
		return err
	}
	if !invitation.IsPending() {
		return ErrInviteNotPending
	}

	now := s.now().UTC()
	result := s.db.WithContext(ctx).Model(&models.Invitation{}).
		Where("id = ? AND status = ?", invitation.ID, models.InviteStatusPending).
		Updates(map[string]any{
			"status":       models.InviteStatusCancelled,
			"cancelled_at": now,
		})
	if result.Error != nil {
		return fmt.Errorf("invitation service: cancel invitation: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrInviteNotPending
	}

	metrics.InviteEvents.WithLabelValues("cancelled", "success").Inc()
	recordAudit(ctx, s.audit, AuditEntry{
		UserID:   &identity.UID,
		Username: identity.Name,
		Action:   "invite.cancel",
		Resource: invitation.ID,
		Result:   "success",
		Metadata: map[string]any{"team_id": invitation.TeamID},
	})

	return nil
}

// Regenerate replaces the token and deadline of a pending invitation in
// place. The previous link stops verifying the moment the new hash lands.
func (s *InvitationService) Regenerate(ctx context.Context, identity auth.Identity, inviteID string) (*InviteLink, error) {
	ctx = ensureContext(ctx)

	if identity.IsZero() {
		return nil, apperrors.ErrUnauthorized
	}

	invitation, err := s.load(ctx, inviteID)
	if err != nil {
		return nil, err
	}

	if err := s.requireManageRights(ctx, identity, invitation); err != nil {
		return nil, err
	}
	if !invitation.IsPending() {
		return nil, ErrInviteNotPending
	}

	token, err := crypto.GenerateInviteToken()
	if err != nil {
		return nil, fmt.Errorf("invitation service: generate token: %w", err)
	}

	now := s.now().UTC()
	expiresAt := now.Add(s.ttl)

	result := s.db.WithContext(ctx).Model(&models.Invitation{}).
		Where("id = ? AND status = ?", invitation.ID, models.InviteStatusPending).
		Updates(map[string]any{
			"token_hash": crypto.HashToken(token),
			"expires_at": expiresAt,
		})
	if result.Error != nil {
		return nil, fmt.Errorf("invitation service: regenerate invitation: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrInviteNotPending
	}

	metrics.InviteEvents.WithLabelValues("regenerated", "success").Inc()
	recordAudit(ctx, s.audit, AuditEntry{
		UserID:   &identity.UID,
		Username: identity.Name,
		Action:   "invite.regenerate",
		Resource: invitation.ID,
		Result:   "success",
		Metadata: map[string]any{"team_id": invitation.TeamID},
	})

	return &InviteLink{
		ID:        invitation.ID,
		Token:     token,
		URL:       s.inviteURL(invitation.ID, token),
		ExpiresAt: expiresAt,
	}, nil
}

// ListForTeam returns pending and accepted invitations for a team, newest
// first. Pending invitations past their deadline read as expired; the list
// never writes.
func (s *InvitationService) ListForTeam(ctx context.Context, identity auth.Identity, teamID string) ([]InvitationPreview, error) {
	ctx = ensureContext(ctx)

	if identity.IsZero() {
		return nil, apperrors.ErrUnauthorized
	}

	allowed, err := s.teams.CanInvite(ctx, teamID, identity.UID)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, apperrors.ErrForbidden
	}

	var invitations []models.Invitation
	if err := s.db.WithContext(ctx).
		Where("team_id = ? AND status IN ?", teamID,
			[]string{models.InviteStatusPending, models.InviteStatusAccepted}).
		Order("created_at DESC").
		Find(&invitations).Error; err != nil {
		return nil, fmt.Errorf("invitation service: list invitations: %w", err)
	}

	now := s.now().UTC()
	previews := make([]InvitationPreview, 0, len(invitations))
	for i := range invitations {
		invitation := &invitations[i]
		meta := invitation.Metadata.Data()
		previews = append(previews, InvitationPreview{
			ID:          invitation.ID,
			TeamID:      invitation.TeamID,
			TeamName:    meta.TeamName,
			InviterName: meta.InviterName,
			Email:       invitation.Email,
			Role:        invitation.Role,
			Status:      invitation.EffectiveStatus(now),
			ExpiresAt:   invitation.ExpiresAt,
			CreatedAt:   invitation.CreatedAt,
		})
	}

	return previews, nil
}

// checkAcceptPreconditions returns the failure result for an invitation that
// cannot be accepted as-is, or nil when acceptance may proceed. Pure; callers
// persist any expiry settlement themselves.
func (s *InvitationService) checkAcceptPreconditions(invitation *models.Invitation, identity auth.Identity, token string, now time.Time) *AcceptResult {
	switch invitation.Status {
	case models.InviteStatusPending:
	case models.InviteStatusCancelled:
		return &AcceptResult{Code: AcceptCodeCancelled, Message: "This invitation was cancelled."}
	default:
		return &AcceptResult{
			Code:    AcceptCodeAlreadyProcessed,
			Message: fmt.Sprintf("This invitation was already %s.", invitation.Status),
		}
	}

	if invitation.IsExpired(now) {
		return &AcceptResult{Code: AcceptCodeExpired, Message: "This invitation has expired. Ask for a new one."}
	}

	if !crypto.VerifyToken(token, invitation.TokenHash) {
		return &AcceptResult{Code: AcceptCodeInvalidToken, Message: "Invitation token is invalid."}
	}

	if identity.CanonicalEmail() != invitation.Email {
		return &AcceptResult{
			Code: AcceptCodeEmailMismatch,
			Message: fmt.Sprintf("This invitation was issued to %s, but you are signed in as %s.",
				invitation.Email, identity.CanonicalEmail()),
		}
	}

	return nil
}

func (s *InvitationService) acceptFailure(ctx context.Context, identity auth.Identity, inviteID, code, message string) *AcceptResult {
	metrics.InviteEvents.WithLabelValues("accepted", "failure").Inc()
	recordAudit(ctx, s.audit, AuditEntry{
		UserID:   &identity.UID,
		Username: identity.Name,
		Action:   "invite.accept",
		Resource: inviteID,
		Result:   code,
	})
	return &AcceptResult{Success: false, Code: code, Message: message}
}

// requireManageRights allows the invitation creator or the team owner.
func (s *InvitationService) requireManageRights(ctx context.Context, identity auth.Identity, invitation *models.Invitation) error {
	if invitation.CreatedBy == identity.UID {
		return nil
	}

	owner, err := s.teams.IsOwner(ctx, invitation.TeamID, identity.UID)
	if err != nil {
		return err
	}
	if !owner {
		return apperrors.ErrForbidden
	}

	return nil
}

func (s *InvitationService) load(ctx context.Context, inviteID string) (*models.Invitation, error) {
	inviteID = strings.TrimSpace(inviteID)
	if inviteID == "" {
		return nil, ErrInviteNotFound
	}

	var invitation models.Invitation
	err := s.db.WithContext(ctx).First(&invitation, "id = ?", inviteID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInviteNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("invitation service: load invitation: %w", err)
	}

	return &invitation, nil
}

func (s *InvitationService) settleExpired(ctx context.Context, inviteID string) error {
	err := s.db.WithContext(ctx).Model(&models.Invitation{}).
		Where("id = ? AND status = ?", inviteID, models.InviteStatusPending).
		Update("status", models.InviteStatusExpired).Error
	if err != nil {
		return fmt.Errorf("invitation service: settle expired invitation: %w", err)
	}

	metrics.InviteEvents.WithLabelValues("expired", "success").Inc()
	return nil
}

// notifyAccepted tells the inviter their link was used, both as a stored
// notification and as an event on the invitations realtime stream.
func (s *InvitationService) notifyAccepted(ctx context.Context, invitation *models.Invitation, identity auth.Identity, teamName string) {
	if s.notifier == nil {
		return
	}

	joined := defaultIfEmpty(identity.Name, identity.CanonicalEmail())
	_, _ = s.notifier.Create(ctx, CreateNotificationInput{
		UserID:  invitation.CreatedBy,
		Type:    "invite.accepted",
		Title:   "Invitation accepted",
		Message: fmt.Sprintf("%s joined %s.", joined, teamName),
		Metadata: map[string]any{
			"team_id":   invitation.TeamID,
			"invite_id": invitation.ID,
			"uid":       identity.UID,
		},
	})

	s.notifier.Publish(realtime.StreamInvitations, invitation.CreatedBy, "invite.accepted", map[string]any{
		"invite_id": invitation.ID,
		"team_id":   invitation.TeamID,
		"team_name": teamName,
		"email":     invitation.Email,
		"joined_by": joined,
	})
}

// inviteURL renders the shareable acceptance link.
func (s *InvitationService) inviteURL(inviteID, token string) string {
	if s.baseURL == "" {
		return fmt.Sprintf("/aceitar?inviteId=%s&token=%s", url.QueryEscape(inviteID), url.QueryEscape(token))
	}
	return fmt.Sprintf("%s/aceitar?inviteId=%s&token=%s", s.baseURL, url.QueryEscape(inviteID), url.QueryEscape(token))
}
