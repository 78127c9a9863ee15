package handlers_test

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/escalaapp/escala/internal/handlers/testutil"
	"github.com/escalaapp/escala/internal/models"
	"github.com/escalaapp/escala/pkg/crypto"
)

var inviteTokenPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

type invitePreviewPayload struct {
	ID          string `json:"id"`
	TeamID      string `json:"team_id"`
	TeamName    string `json:"team_name"`
	InviterName string `json:"inviter_name"`
	Email       string `json:"email"`
	Role        string `json:"role"`
	Status      string `json:"status"`
}

func validateInvite(t *testing.T, env *testutil.Env, inviteID, token string) (bool, string) {
	t.Helper()

	w := env.Request(http.MethodPost, "/api/invitations/"+inviteID+"/validate",
		map[string]string{"token": token}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var payload struct {
		Valid  bool   `json:"valid"`
		Reason string `json:"reason"`
	}
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &payload)
	return payload.Valid, payload.Reason
}

func loadInvitation(t *testing.T, env *testutil.Env, inviteID string) models.Invitation {
	t.Helper()

	var row models.Invitation
	require.NoError(t, env.DB.First(&row, "id = ?", inviteID).Error)
	return row
}

func TestInvitationHandler_CreateIssuesSingleUseLink(t *testing.T) {
	env := testutil.NewEnv(t)
	owner, _ := env.RegisterUnique("owner")

	team := createTeam(t, env, owner.Token, "Escala Leste")
	link := inviteMember(t, env, owner.Token, team.ID, "Carol@Example.com", models.TeamRoleMember)

	require.Regexp(t, inviteTokenPattern, link.Token)
	require.Equal(t,
		fmt.Sprintf("https://escala.test/aceitar?inviteId=%s&token=%s", link.ID, link.Token),
		link.URL)

	// Only the digest is persisted; the raw token exists nowhere but the link.
	row := loadInvitation(t, env, link.ID)
	require.Equal(t, models.InviteStatusPending, row.Status)
	require.NotEqual(t, link.Token, row.TokenHash)
	require.Equal(t, crypto.HashToken(link.Token), row.TokenHash)
	require.Equal(t, "carol@example.com", row.Email)
	require.Equal(t, models.TeamRoleMember, row.Role)
	require.Equal(t, owner.User.ID, row.CreatedBy)
	require.WithinDuration(t, time.Now().Add(72*time.Hour), row.ExpiresAt, time.Minute)

	meta := row.Metadata.Data()
	require.Equal(t, "Escala Leste", meta.TeamName)
	require.Equal(t, "owner", meta.InviterName)

	w := env.Request(http.MethodGet, "/api/teams/"+team.ID+"/invitations", nil, owner.Token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var previews []invitePreviewPayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &previews)
	require.Len(t, previews, 1)
	require.Equal(t, link.ID, previews[0].ID)
	require.Equal(t, models.InviteStatusPending, previews[0].Status)
	require.Equal(t, "carol@example.com", previews[0].Email)
	require.Equal(t, "Escala Leste", previews[0].TeamName)
	require.Equal(t, "owner", previews[0].InviterName)

	require.NotContains(t, w.Body.String(), link.Token)
	require.NotContains(t, w.Body.String(), row.TokenHash)
}

func TestInvitationHandler_CreateRules(t *testing.T) {
	env := testutil.NewEnv(t)
	owner, _ := env.RegisterUnique("owner")
	bob, bobEmail := env.RegisterUnique("bob")
	stranger, _ := env.RegisterUnique("stranger")

	team := createTeam(t, env, owner.Token, "Rules")
	link := inviteMember(t, env, owner.Token, team.ID, bobEmail, models.TeamRoleMember)
	result := acceptInvite(t, env, bob.Token, link.ID, link.Token)
	require.Equal(t, "accepted", result.Code)

	// Plain members cannot issue invitations.
	w := env.Request(http.MethodPost, "/api/teams/"+team.ID+"/invitations",
		map[string]string{"email": "new@example.com", "role": "member"}, bob.Token)
	require.Equal(t, http.StatusForbidden, w.Code, w.Body.String())
	require.Equal(t, "PERMISSION_DENIED", testutil.DecodeResponse(t, w).Error.Code)

	inviteMember(t, env, owner.Token, team.ID, "carol@example.com", models.TeamRoleMember)

	// Pending uniqueness is case-insensitive on the address.
	w = env.Request(http.MethodPost, "/api/teams/"+team.ID+"/invitations",
		map[string]string{"email": "Carol@Example.com", "role": "admin"}, owner.Token)
	require.Equal(t, http.StatusConflict, w.Code, w.Body.String())
	require.Equal(t, "INVITE_ALREADY_PENDING", testutil.DecodeResponse(t, w).Error.Code)

	w = env.Request(http.MethodPost, "/api/teams/"+team.ID+"/invitations",
		map[string]string{"email": bobEmail, "role": "member"}, owner.Token)
	require.Equal(t, http.StatusConflict, w.Code, w.Body.String())
	require.Equal(t, "TEAM_MEMBER_EXISTS", testutil.DecodeResponse(t, w).Error.Code)

	w = env.Request(http.MethodPost, "/api/teams/"+team.ID+"/invitations",
		map[string]string{"email": "new@example.com", "role": "owner"}, owner.Token)
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

	w = env.Request(http.MethodPost, "/api/teams/"+uuid.NewString()+"/invitations",
		map[string]string{"email": "new@example.com", "role": "member"}, owner.Token)
	require.Equal(t, http.StatusNotFound, w.Code, w.Body.String())
	require.Equal(t, "TEAM_NOT_FOUND", testutil.DecodeResponse(t, w).Error.Code)

	w = env.Request(http.MethodGet, "/api/teams/"+team.ID+"/invitations", nil, stranger.Token)
	require.Equal(t, http.StatusForbidden, w.Code, w.Body.String())
}

func TestInvitationHandler_CreateRespectsTeamSettings(t *testing.T) {
	env := testutil.NewEnv(t)
	owner, _ := env.RegisterUnique("owner")

	w := env.Request(http.MethodPost, "/api/teams", map[string]any{
		"name":     "Closed",
		"settings": map[string]any{"allow_invites": false},
	}, owner.Token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var closed teamPayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &closed)

	w = env.Request(http.MethodPost, "/api/teams/"+closed.ID+"/invitations",
		map[string]string{"email": "new@example.com", "role": "member"}, owner.Token)
	require.Equal(t, http.StatusConflict, w.Code, w.Body.String())
	require.Equal(t, "TEAM_INVITES_DISABLED", testutil.DecodeResponse(t, w).Error.Code)

	// A cap of one is already filled by the owner membership.
	w = env.Request(http.MethodPost, "/api/teams", map[string]any{
		"name":     "Tiny",
		"settings": map[string]any{"max_members": 1},
	}, owner.Token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var tiny teamPayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &tiny)

	w = env.Request(http.MethodPost, "/api/teams/"+tiny.ID+"/invitations",
		map[string]string{"email": "new@example.com", "role": "member"}, owner.Token)
	require.Equal(t, http.StatusConflict, w.Code, w.Body.String())
	require.Equal(t, "TEAM_FULL", testutil.DecodeResponse(t, w).Error.Code)
}

func TestInvitationHandler_PublicPreviewAndValidate(t *testing.T) {
	env := testutil.NewEnv(t)
	owner, _ := env.RegisterUnique("owner")
	team := createTeam(t, env, owner.Token, "Preview")
	link := inviteMember(t, env, owner.Token, team.ID, "carol@example.com", models.TeamRoleAdmin)

	// The preview needs no authentication and never carries token material.
	w := env.Request(http.MethodGet, "/api/invitations/"+link.ID, nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var preview invitePreviewPayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &preview)
	require.Equal(t, link.ID, preview.ID)
	require.Equal(t, team.ID, preview.TeamID)
	require.Equal(t, "Preview", preview.TeamName)
	require.Equal(t, "owner", preview.InviterName)
	require.Equal(t, "carol@example.com", preview.Email)
	require.Equal(t, models.TeamRoleAdmin, preview.Role)
	require.Equal(t, models.InviteStatusPending, preview.Status)
	require.NotContains(t, w.Body.String(), link.Token)
	require.NotContains(t, w.Body.String(), crypto.HashToken(link.Token))

	w = env.Request(http.MethodGet, "/api/invitations/"+uuid.NewString(), nil, "")
	require.Equal(t, http.StatusNotFound, w.Code, w.Body.String())
	require.Equal(t, "INVITE_NOT_FOUND", testutil.DecodeResponse(t, w).Error.Code)

	valid, reason := validateInvite(t, env, link.ID, link.Token)
	require.True(t, valid)
	require.Empty(t, reason)

	valid, reason = validateInvite(t, env, link.ID, strings.Repeat("ab", 32))
	require.False(t, valid)
	require.Equal(t, "invalid_token", reason)

	valid, reason = validateInvite(t, env, uuid.NewString(), link.Token)
	require.False(t, valid)
	require.Equal(t, "not_found", reason)

	w = env.Request(http.MethodPost, "/api/invitations/"+link.ID+"/validate",
		map[string]string{}, "")
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

	w = env.Request(http.MethodDelete, "/api/invitations/"+link.ID, nil, owner.Token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	valid, reason = validateInvite(t, env, link.ID, link.Token)
	require.False(t, valid)
	require.Equal(t, "already_processed", reason)
}

func TestInvitationHandler_AcceptOutcomes(t *testing.T) {
	env := testutil.NewEnv(t)
	owner, _ := env.RegisterUnique("owner")
	carol, carolEmail := env.RegisterUnique("carol")
	dave, _ := env.RegisterUnique("dave")

	team := createTeam(t, env, owner.Token, "Accept")
	link := inviteMember(t, env, owner.Token, team.ID, carolEmail, models.TeamRoleMember)

	// A bad token is a result, not an HTTP error, and leaves the invitation open.
	result := acceptInvite(t, env, carol.Token, link.ID, strings.Repeat("ab", 32))
	require.False(t, result.Success)
	require.Equal(t, "invalid_token", result.Code)
	require.Equal(t, models.InviteStatusPending, loadInvitation(t, env, link.ID).Status)

	result = acceptInvite(t, env, dave.Token, link.ID, link.Token)
	require.False(t, result.Success)
	require.Equal(t, "email_mismatch", result.Code)

	result = acceptInvite(t, env, carol.Token, link.ID, link.Token)
	require.True(t, result.Success, result.Message)
	require.Equal(t, "accepted", result.Code)
	require.Equal(t, team.ID, result.TeamID)
	require.Equal(t, "Accept", result.TeamName)
	require.Equal(t, models.TeamRoleMember, result.Role)

	row := loadInvitation(t, env, link.ID)
	require.Equal(t, models.InviteStatusAccepted, row.Status)
	require.NotNil(t, row.AcceptedAt)
	require.NotNil(t, row.AcceptedBy)
	require.Equal(t, carol.User.ID, *row.AcceptedBy)

	refs := listMyTeams(t, env, carol.Token)
	require.Len(t, refs, 1)
	require.Equal(t, team.ID, refs[0].TeamID)

	result = acceptInvite(t, env, carol.Token, link.ID, link.Token)
	require.False(t, result.Success)
	require.Equal(t, "already_processed", result.Code)

	result = acceptInvite(t, env, carol.Token, uuid.NewString(), link.Token)
	require.False(t, result.Success)
	require.Equal(t, "not_found", result.Code)

	w := env.Request(http.MethodPost, "/api/invitations/"+link.ID+"/accept",
		map[string]string{"token": link.Token}, "")
	require.Equal(t, http.StatusUnauthorized, w.Code, w.Body.String())
}

func TestInvitationHandler_AcceptExpiredSettlesInvitation(t *testing.T) {
	env := testutil.NewEnv(t)
	owner, _ := env.RegisterUnique("owner")
	carol, carolEmail := env.RegisterUnique("carol")

	team := createTeam(t, env, owner.Token, "Deadline")
	link := inviteMember(t, env, owner.Token, team.ID, carolEmail, models.TeamRoleMember)

	require.NoError(t, env.DB.Model(&models.Invitation{}).
		Where("id = ?", link.ID).
		Update("expires_at", time.Now().Add(-time.Hour)).Error)

	result := acceptInvite(t, env, carol.Token, link.ID, link.Token)
	require.False(t, result.Success)
	require.Equal(t, "expired", result.Code)
	require.Equal(t, models.InviteStatusExpired, loadInvitation(t, env, link.ID).Status)

	w := env.Request(http.MethodGet, "/api/invitations/"+link.ID, nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var preview invitePreviewPayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &preview)
	require.Equal(t, models.InviteStatusExpired, preview.Status)

	// With the lapsed invitation settled, the address can be invited again.
	fresh := inviteMember(t, env, owner.Token, team.ID, carolEmail, models.TeamRoleMember)
	require.NotEqual(t, link.ID, fresh.ID)

	result = acceptInvite(t, env, carol.Token, fresh.ID, fresh.Token)
	require.True(t, result.Success, result.Message)
	require.Equal(t, "accepted", result.Code)
}

func TestInvitationHandler_CreateSettlesLapsedPending(t *testing.T) {
	env := testutil.NewEnv(t)
	owner, _ := env.RegisterUnique("owner")

	team := createTeam(t, env, owner.Token, "Lapsed")
	link := inviteMember(t, env, owner.Token, team.ID, "late@example.com", models.TeamRoleMember)

	require.NoError(t, env.DB.Model(&models.Invitation{}).
		Where("id = ?", link.ID).
		Update("expires_at", time.Now().Add(-time.Minute)).Error)

	// The lapsed invitation does not block a new one; it is settled in passing.
	fresh := inviteMember(t, env, owner.Token, team.ID, "late@example.com", models.TeamRoleMember)
	require.NotEqual(t, link.ID, fresh.ID)
	require.Equal(t, models.InviteStatusExpired, loadInvitation(t, env, link.ID).Status)
	require.Equal(t, models.InviteStatusPending, loadInvitation(t, env, fresh.ID).Status)
}

func TestInvitationHandler_CancelAndRegenerate(t *testing.T) {
	env := testutil.NewEnv(t)
	owner, _ := env.RegisterUnique("owner")
	carol, carolEmail := env.RegisterUnique("carol")

	team := createTeam(t, env, owner.Token, "Manage")
	link := inviteMember(t, env, owner.Token, team.ID, carolEmail, models.TeamRoleMember)

	// Only the creator or the team owner may manage an invitation.
	w := env.Request(http.MethodDelete, "/api/invitations/"+link.ID, nil, carol.Token)
	require.Equal(t, http.StatusForbidden, w.Code, w.Body.String())
	require.Equal(t, "PERMISSION_DENIED", testutil.DecodeResponse(t, w).Error.Code)

	w = env.Request(http.MethodPost, "/api/invitations/"+link.ID+"/regenerate", nil, owner.Token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var renewed inviteLinkPayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &renewed)
	require.Equal(t, link.ID, renewed.ID)
	require.NotEqual(t, link.Token, renewed.Token)
	require.Regexp(t, inviteTokenPattern, renewed.Token)

	// The previous link stops working the moment the new one is issued.
	valid, reason := validateInvite(t, env, link.ID, link.Token)
	require.False(t, valid)
	require.Equal(t, "invalid_token", reason)

	valid, _ = validateInvite(t, env, link.ID, renewed.Token)
	require.True(t, valid)

	result := acceptInvite(t, env, carol.Token, link.ID, link.Token)
	require.Equal(t, "invalid_token", result.Code)

	result = acceptInvite(t, env, carol.Token, renewed.ID, renewed.Token)
	require.True(t, result.Success, result.Message)

	second := inviteMember(t, env, owner.Token, team.ID, "dana@example.com", models.TeamRoleMember)

	w = env.Request(http.MethodDelete, "/api/invitations/"+second.ID, nil, owner.Token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	row := loadInvitation(t, env, second.ID)
	require.Equal(t, models.InviteStatusCancelled, row.Status)
	require.NotNil(t, row.CancelledAt)

	dana, _ := env.RegisterUnique("dana")
	result = acceptInvite(t, env, dana.Token, second.ID, second.Token)
	require.False(t, result.Success)
	require.Equal(t, "cancelled", result.Code)

	// Settled invitations stay settled.
	w = env.Request(http.MethodDelete, "/api/invitations/"+second.ID, nil, owner.Token)
	require.Equal(t, http.StatusConflict, w.Code, w.Body.String())
	require.Equal(t, "INVITE_NOT_PENDING", testutil.DecodeResponse(t, w).Error.Code)

	w = env.Request(http.MethodPost, "/api/invitations/"+second.ID+"/regenerate", nil, owner.Token)
	require.Equal(t, http.StatusConflict, w.Code, w.Body.String())
	require.Equal(t, "INVITE_NOT_PENDING", testutil.DecodeResponse(t, w).Error.Code)

	w = env.Request(http.MethodDelete, "/api/invitations/"+uuid.NewString(), nil, owner.Token)
	require.Equal(t, http.StatusNotFound, w.Code, w.Body.String())

	w = env.Request(http.MethodPost, "/api/invitations/"+second.ID+"/regenerate", nil, "")
	require.Equal(t, http.StatusUnauthorized, w.Code, w.Body.String())
}

func TestInvitationHandler_StashAndResumeOnSignIn(t *testing.T) {
	env := testutil.NewEnv(t)
	owner, _ := env.RegisterUnique("owner")

	team := createTeam(t, env, owner.Token, "Resume")
	carolEmail := fmt.Sprintf("carol-%s@example.com", uuid.NewString()[:8])
	link := inviteMember(t, env, owner.Token, team.ID, carolEmail, models.TeamRoleMember)

	visitorID := "visitor-" + uuid.NewString()[:8]

	// The landing page stashes the invite before redirecting to sign-up.
	w := env.Request(http.MethodPost, "/api/invitations/"+link.ID+"/stash",
		map[string]string{"token": link.Token, "visitor_id": visitorID}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.Request(http.MethodPost, "/api/invitations/"+link.ID+"/stash",
		map[string]string{"token": link.Token}, "")
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

	// Registration with the visitor id redeems the stash in the same response.
	w = env.Request(http.MethodPost, "/api/auth/register", map[string]string{
		"email":        carolEmail,
		"password":     "Password123!",
		"display_name": "Carol",
		"visitor_id":   visitorID,
	}, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var session testutil.SessionResult
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &session)
	require.NotEmpty(t, session.InviteResult)

	var result acceptResultPayload
	testutil.DecodeInto(t, session.InviteResult, &result)
	require.True(t, result.Success, result.Message)
	require.Equal(t, "accepted", result.Code)
	require.Equal(t, team.ID, result.TeamID)

	refs := listMyTeams(t, env, session.Token)
	require.Len(t, refs, 1)
	require.Equal(t, team.ID, refs[0].TeamID)

	// The stash is consumed; the next sign-in resumes nothing.
	again := env.Login(carolEmail, "Password123!", visitorID)
	require.Empty(t, again.InviteResult)
}

func TestInvitationHandler_ResumeFailureStillClearsStash(t *testing.T) {
	env := testutil.NewEnv(t)
	owner, _ := env.RegisterUnique("owner")
	mallory, malloryEmail := env.RegisterUnique("mallory")

	team := createTeam(t, env, owner.Token, "Mismatch")
	carolEmail := fmt.Sprintf("carol-%s@example.com", uuid.NewString()[:8])
	link := inviteMember(t, env, owner.Token, team.ID, carolEmail, models.TeamRoleMember)

	visitorID := "visitor-" + uuid.NewString()[:8]
	w := env.Request(http.MethodPost, "/api/invitations/"+link.ID+"/stash",
		map[string]string{"token": link.Token, "visitor_id": visitorID}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// The wrong account redeems the stash and gets the mismatch as a result.
	session := env.Login(malloryEmail, "Password123!", visitorID)
	require.NotEmpty(t, session.InviteResult)

	var result acceptResultPayload
	testutil.DecodeInto(t, session.InviteResult, &result)
	require.False(t, result.Success)
	require.Equal(t, "email_mismatch", result.Code)

	// The invitation survives for its rightful recipient.
	require.Equal(t, models.InviteStatusPending, loadInvitation(t, env, link.ID).Status)
	require.Empty(t, listMyTeams(t, env, mallory.Token))

	// The stash does not: resume runs at most once per stash.
	again := env.Login(malloryEmail, "Password123!", visitorID)
	require.Empty(t, again.InviteResult)

	carol := env.Register(carolEmail, "Password123!", "Carol")
	accepted := acceptInvite(t, env, carol.Token, link.ID, link.Token)
	require.True(t, accepted.Success, accepted.Message)
}
