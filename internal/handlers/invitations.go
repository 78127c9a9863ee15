package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/escalaapp/escala/internal/services"
	"github.com/escalaapp/escala/pkg/errors"
	"github.com/escalaapp/escala/pkg/response"
)

// InvitationHandler exposes the invitation lifecycle over HTTP: issuing and
// managing links for team admins, plus the public preview/validate/stash
// endpoints the landing page uses before the visitor signs in.
type InvitationHandler struct {
	svc     *services.InvitationService
	pending *services.PendingInviteCache
}

// NewInvitationHandler constructs an InvitationHandler.
func NewInvitationHandler(invitations *services.InvitationService, pending *services.PendingInviteCache) (*InvitationHandler, error) {
	if invitations == nil {
		return nil, fmt.Errorf("invitation handler: invitation service must be provided")
	}
	if pending == nil {
		return nil, fmt.Errorf("invitation handler: pending invite cache must be provided")
	}
	return &InvitationHandler{svc: invitations, pending: pending}, nil
}

type createInvitationRequest struct {
	Email string `json:"email" validate:"required,email,max=320"`
	Role  string `json:"role" validate:"required,oneof=admin member"`
}

type invitationTokenRequest struct {
	Token string `json:"token" validate:"required,max=128"`
}

type stashInvitationRequest struct {
	Token     string `json:"token" validate:"required,max=128"`
	VisitorID string `json:"visitor_id" validate:"required,max=128"`
}

// POST /api/teams/:id/invitations
func (h *InvitationHandler) Create(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var body createInvitationRequest
	if !bindAndValidate(c, &body) {
		return
	}

	link, err := h.svc.Create(requestContext(c), identity, services.CreateInvitationInput{
		TeamID: c.Param("id"),
		Email:  body.Email,
		Role:   body.Role,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, link)
}

// GET /api/teams/:id/invitations
func (h *InvitationHandler) ListForTeam(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	previews, err := h.svc.ListForTeam(requestContext(c), identity, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, previews)
}

// DELETE /api/invitations/:id
func (h *InvitationHandler) Cancel(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	if err := h.svc.Cancel(requestContext(c), identity, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"cancelled": true})
}

// POST /api/invitations/:id/regenerate
func (h *InvitationHandler) Regenerate(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	link, err := h.svc.Regenerate(requestContext(c), identity, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, link)
}

// GET /api/invitations/:id
//
// Public. Returns the team/inviter preview the landing page renders before
// the visitor authenticates. Never includes the token hash.
func (h *InvitationHandler) PublicMetadata(c *gin.Context) {
	preview, err := h.svc.PublicMetadata(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, preview)
}

// POST /api/invitations/:id/validate
//
// Public. Reports whether the presented token would currently be accepted,
// without mutating anything.
func (h *InvitationHandler) Validate(c *gin.Context) {
	var body invitationTokenRequest
	if !bindAndValidate(c, &body) {
		return
	}

	valid, reason, err := h.svc.Validate(requestContext(c), c.Param("id"), body.Token)
	if err != nil {
		response.Error(c, err)
		return
	}

	payload := gin.H{"valid": valid}
	if reason != "" {
		payload["reason"] = reason
	}
	response.Success(c, http.StatusOK, payload)
}

// POST /api/invitations/:id/stash
//
// Public. Saves the invite reference under the caller's visitor id so the
// flow can resume after the sign-in redirect.
func (h *InvitationHandler) Stash(c *gin.Context) {
	var body stashInvitationRequest
	if !bindAndValidate(c, &body) {
		return
	}

	if err := h.pending.Save(requestContext(c), body.VisitorID, c.Param("id"), body.Token); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"stashed": true})
}

// POST /api/invitations/:id/accept
//
// Validation failures come back as a result payload with success=false, not
// as an HTTP error; only infrastructure faults produce error envelopes.
func (h *InvitationHandler) Accept(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var body invitationTokenRequest
	if !bindAndValidate(c, &body) {
		return
	}

	result, err := h.svc.Accept(requestContext(c), identity, c.Param("id"), body.Token)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}
