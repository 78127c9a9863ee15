package handlers_test

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/escalaapp/escala/internal/handlers/testutil"
	"github.com/escalaapp/escala/internal/models"
)

type teamPayload struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Description string              `json:"description"`
	OwnerUID    string              `json:"owner_uid"`
	Settings    models.TeamSettings `json:"settings"`
}

type memberPayload struct {
	ID          string `json:"id"`
	TeamID      string `json:"team_id"`
	UID         string `json:"uid"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
	Status      string `json:"status"`
}

type teamRefPayload struct {
	TeamID   string `json:"team_id"`
	TeamName string `json:"team_name"`
	Role     string `json:"role"`
}

type inviteLinkPayload struct {
	ID        string `json:"id"`
	Token     string `json:"token"`
	URL       string `json:"url"`
	ExpiresAt string `json:"expires_at"`
}

type acceptResultPayload struct {
	Success  bool   `json:"success"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	TeamID   string `json:"team_id"`
	TeamName string `json:"team_name"`
	Role     string `json:"role"`
}

func createTeam(t *testing.T, env *testutil.Env, token, name string) teamPayload {
	t.Helper()

	w := env.Request(http.MethodPost, "/api/teams", map[string]any{"name": name}, token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var team teamPayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &team)
	require.NotEmpty(t, team.ID)
	return team
}

func listMembers(t *testing.T, env *testutil.Env, token, teamID string) []memberPayload {
	t.Helper()

	w := env.Request(http.MethodGet, "/api/teams/"+teamID+"/members", nil, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var members []memberPayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &members)
	return members
}

func listMyTeams(t *testing.T, env *testutil.Env, token string) []teamRefPayload {
	t.Helper()

	w := env.Request(http.MethodGet, "/api/me/teams", nil, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var refs []teamRefPayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &refs)
	return refs
}

func inviteMember(t *testing.T, env *testutil.Env, token, teamID, email, role string) inviteLinkPayload {
	t.Helper()

	w := env.Request(http.MethodPost, "/api/teams/"+teamID+"/invitations",
		map[string]string{"email": email, "role": role}, token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var link inviteLinkPayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &link)
	require.NotEmpty(t, link.Token)
	return link
}

func acceptInvite(t *testing.T, env *testutil.Env, token, inviteID, inviteToken string) acceptResultPayload {
	t.Helper()

	w := env.Request(http.MethodPost, fmt.Sprintf("/api/invitations/%s/accept", inviteID),
		map[string]string{"token": inviteToken}, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var result acceptResultPayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &result)
	return result
}

func TestTeamHandler_CreateAppliesDefaults(t *testing.T) {
	env := testutil.NewEnv(t)
	owner, ownerEmail := env.RegisterUnique("owner")

	w := env.Request(http.MethodPost, "/api/teams", map[string]any{
		"name":        "  Plantao Noturno  ",
		"description": " Night shift roster ",
	}, owner.Token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	resp := testutil.DecodeResponse(t, w)
	require.True(t, resp.Success, w.Body.String())

	var team teamPayload
	testutil.DecodeInto(t, resp.Data, &team)
	require.NotEmpty(t, team.ID)
	require.Equal(t, "Plantao Noturno", team.Name)
	require.Equal(t, "Night shift roster", team.Description)
	require.Equal(t, owner.User.ID, team.OwnerUID)
	require.True(t, team.Settings.AllowInvites)
	require.Zero(t, team.Settings.MaxMembers)

	members := listMembers(t, env, owner.Token, team.ID)
	require.Len(t, members, 1)
	require.Equal(t, models.TeamRoleOwner, members[0].Role)
	require.Equal(t, models.MemberStatusActive, members[0].Status)
	require.Equal(t, owner.User.ID, members[0].UID)
	require.Equal(t, ownerEmail, members[0].Email)

	refs := listMyTeams(t, env, owner.Token)
	require.Len(t, refs, 1)
	require.Equal(t, team.ID, refs[0].TeamID)
	require.Equal(t, "Plantao Noturno", refs[0].TeamName)
	require.Equal(t, models.TeamRoleOwner, refs[0].Role)
}

func TestTeamHandler_CreateWithSettings(t *testing.T) {
	env := testutil.NewEnv(t)
	owner, _ := env.RegisterUnique("owner")

	w := env.Request(http.MethodPost, "/api/teams", map[string]any{
		"name": "Capped",
		"settings": map[string]any{
			"allow_invites": false,
			"max_members":   5,
		},
	}, owner.Token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var team teamPayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &team)
	require.False(t, team.Settings.AllowInvites)
	require.Equal(t, 5, team.Settings.MaxMembers)
}

func TestTeamHandler_CreateValidation(t *testing.T) {
	env := testutil.NewEnv(t)
	owner, _ := env.RegisterUnique("owner")

	cases := []map[string]any{
		{"name": "A"},
		{"description": "no name"},
		{"name": "Negative Cap", "settings": map[string]any{"max_members": -1}},
	}
	for _, body := range cases {
		w := env.Request(http.MethodPost, "/api/teams", body, owner.Token)
		require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

		resp := testutil.DecodeResponse(t, w)
		require.False(t, resp.Success)
		require.Equal(t, "BAD_REQUEST", resp.Error.Code)
	}
}

func TestTeamHandler_GetRequiresMembership(t *testing.T) {
	env := testutil.NewEnv(t)
	owner, _ := env.RegisterUnique("owner")
	stranger, _ := env.RegisterUnique("stranger")

	team := createTeam(t, env, owner.Token, "Inner Circle")

	w := env.Request(http.MethodGet, "/api/teams/"+team.ID, nil, owner.Token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var fetched teamPayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &fetched)
	require.Equal(t, team.ID, fetched.ID)
	require.Equal(t, "Inner Circle", fetched.Name)

	w = env.Request(http.MethodGet, "/api/teams/"+team.ID, nil, stranger.Token)
	require.Equal(t, http.StatusForbidden, w.Code, w.Body.String())
	require.Equal(t, "PERMISSION_DENIED", testutil.DecodeResponse(t, w).Error.Code)

	w = env.Request(http.MethodGet, "/api/teams/"+team.ID+"/members", nil, stranger.Token)
	require.Equal(t, http.StatusForbidden, w.Code, w.Body.String())

	// Unknown teams read as forbidden rather than revealing whether they exist.
	w = env.Request(http.MethodGet, "/api/teams/"+uuid.NewString(), nil, owner.Token)
	require.Equal(t, http.StatusForbidden, w.Code, w.Body.String())

	w = env.Request(http.MethodGet, "/api/teams/"+team.ID, nil, "")
	require.Equal(t, http.StatusUnauthorized, w.Code, w.Body.String())
}

func TestTeamHandler_MemberLifecycle(t *testing.T) {
	env := testutil.NewEnv(t)
	owner, _ := env.RegisterUnique("owner")
	bob, bobEmail := env.RegisterUnique("bob")

	team := createTeam(t, env, owner.Token, "Lifecycle")
	link := inviteMember(t, env, owner.Token, team.ID, bobEmail, models.TeamRoleMember)

	result := acceptInvite(t, env, bob.Token, link.ID, link.Token)
	require.True(t, result.Success, result.Message)
	require.Equal(t, "accepted", result.Code)

	members := listMembers(t, env, owner.Token, team.ID)
	require.Len(t, members, 2)

	var ownerMembership, bobMembership memberPayload
	for _, m := range members {
		switch m.UID {
		case owner.User.ID:
			ownerMembership = m
		case bob.User.ID:
			bobMembership = m
		}
	}
	require.NotEmpty(t, ownerMembership.ID)
	require.NotEmpty(t, bobMembership.ID)
	require.Equal(t, models.TeamRoleMember, bobMembership.Role)

	roleURL := fmt.Sprintf("/api/teams/%s/members/%s/role", team.ID, bobMembership.ID)

	// Only the owner may change roles.
	w := env.Request(http.MethodPatch, roleURL, map[string]string{"role": "admin"}, bob.Token)
	require.Equal(t, http.StatusForbidden, w.Code, w.Body.String())
	require.Equal(t, "PERMISSION_DENIED", testutil.DecodeResponse(t, w).Error.Code)

	w = env.Request(http.MethodPatch, roleURL, map[string]string{"role": "owner"}, owner.Token)
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

	w = env.Request(http.MethodPatch, roleURL, map[string]string{"role": "admin"}, owner.Token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	refs := listMyTeams(t, env, bob.Token)
	require.Len(t, refs, 1)
	require.Equal(t, models.TeamRoleAdmin, refs[0].Role)

	// The owner membership can be neither re-roled nor removed.
	ownerRoleURL := fmt.Sprintf("/api/teams/%s/members/%s/role", team.ID, ownerMembership.ID)
	w = env.Request(http.MethodPatch, ownerRoleURL, map[string]string{"role": "member"}, owner.Token)
	require.Equal(t, http.StatusConflict, w.Code, w.Body.String())
	require.Equal(t, "TEAM_OWNER_IMMUTABLE", testutil.DecodeResponse(t, w).Error.Code)

	w = env.Request(http.MethodDelete,
		fmt.Sprintf("/api/teams/%s/members/%s", team.ID, ownerMembership.ID), nil, owner.Token)
	require.Equal(t, http.StatusConflict, w.Code, w.Body.String())
	require.Equal(t, "TEAM_OWNER_IMMUTABLE", testutil.DecodeResponse(t, w).Error.Code)

	w = env.Request(http.MethodDelete,
		fmt.Sprintf("/api/teams/%s/members/%s", team.ID, uuid.NewString()), nil, owner.Token)
	require.Equal(t, http.StatusNotFound, w.Code, w.Body.String())
	require.Equal(t, "TEAM_MEMBER_NOT_FOUND", testutil.DecodeResponse(t, w).Error.Code)

	w = env.Request(http.MethodDelete,
		fmt.Sprintf("/api/teams/%s/members/%s", team.ID, bobMembership.ID), nil, owner.Token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	require.Empty(t, listMyTeams(t, env, bob.Token))
	require.Len(t, listMembers(t, env, owner.Token, team.ID), 1)

	w = env.Request(http.MethodGet, "/api/teams/"+team.ID, nil, bob.Token)
	require.Equal(t, http.StatusForbidden, w.Code, w.Body.String())
}
