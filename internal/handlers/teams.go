package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/escalaapp/escala/internal/models"
	"github.com/escalaapp/escala/internal/services"
	"github.com/escalaapp/escala/pkg/errors"
	"github.com/escalaapp/escala/pkg/response"
)

// TeamHandler exposes team, membership and reverse-index endpoints.
type TeamHandler struct {
	svc *services.TeamService
}

// NewTeamHandler constructs a TeamHandler.
func NewTeamHandler(teams *services.TeamService) (*TeamHandler, error) {
	if teams == nil {
		return nil, fmt.Errorf("team handler: team service must be provided")
	}
	return &TeamHandler{svc: teams}, nil
}

type teamSettingsPayload struct {
	AllowInvites *bool `json:"allow_invites"`
	MaxMembers   *int  `json:"max_members" validate:"omitempty,min=0"`
}

type createTeamRequest struct {
	Name        string               `json:"name" validate:"required,min=2,max=128"`
	Description string               `json:"description" validate:"omitempty,max=512"`
	Settings    *teamSettingsPayload `json:"settings"`
}

type updateMemberRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=admin member"`
}

// POST /api/teams
func (h *TeamHandler) Create(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var body createTeamRequest
	if !bindAndValidate(c, &body) {
		return
	}

	input := services.CreateTeamInput{
		Name:        strings.TrimSpace(body.Name),
		Description: strings.TrimSpace(body.Description),
	}
	if body.Settings != nil {
		settings := models.DefaultTeamSettings()
		if body.Settings.AllowInvites != nil {
			settings.AllowInvites = *body.Settings.AllowInvites
		}
		if body.Settings.MaxMembers != nil {
			settings.MaxMembers = *body.Settings.MaxMembers
		}
		input.Settings = &settings
	}

	team, err := h.svc.Create(requestContext(c), identity, input)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, team)
}

// GET /api/teams/:id
func (h *TeamHandler) Get(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	teamID := c.Param("id")
	if !h.requireMembership(c, teamID, identity.UID) {
		return
	}

	team, err := h.svc.GetByID(requestContext(c), teamID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, team)
}

// GET /api/teams/:id/members
func (h *TeamHandler) ListMembers(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	teamID := c.Param("id")
	if !h.requireMembership(c, teamID, identity.UID) {
		return
	}

	members, err := h.svc.ListMembers(requestContext(c), teamID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, members)
}

// DELETE /api/teams/:id/members/:memberID
func (h *TeamHandler) RemoveMember(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	if err := h.svc.RemoveMember(requestContext(c), identity, c.Param("id"), c.Param("memberID")); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"removed": true})
}

// PATCH /api/teams/:id/members/:memberID/role
func (h *TeamHandler) UpdateMemberRole(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var body updateMemberRoleRequest
	if !bindAndValidate(c, &body) {
		return
	}

	err := h.svc.UpdateMemberRole(requestContext(c), identity, c.Param("id"), c.Param("memberID"), body.Role)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"updated": true})
}

// GET /api/me/teams
func (h *TeamHandler) ListMine(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	refs, err := h.svc.ListTeamsForUser(requestContext(c), identity.UID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, refs)
}

func (h *TeamHandler) requireMembership(c *gin.Context, teamID, uid string) bool {
	member, err := h.svc.IsMember(requestContext(c), teamID, uid)
	if err != nil {
		response.Error(c, err)
		return false
	}
	if !member {
		response.Error(c, errors.ErrForbidden)
		return false
	}
	return true
}
