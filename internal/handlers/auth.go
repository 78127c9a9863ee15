package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	iauth "github.com/escalaapp/escala/internal/auth"
	"github.com/escalaapp/escala/internal/models"
	"github.com/escalaapp/escala/internal/services"
	"github.com/escalaapp/escala/pkg/errors"
	"github.com/escalaapp/escala/pkg/logger"
	"github.com/escalaapp/escala/pkg/metrics"
	"github.com/escalaapp/escala/pkg/response"
)

// AuthHandler manages registration, sign-in and the current-user endpoint.
// When a visitor id accompanies the credentials, a stashed invitation is
// redeemed as part of the sign-in and its outcome embedded in the response.
type AuthHandler struct {
	users  *services.UserService
	jwt    *iauth.JWTService
	resume *services.InviteResumeCoordinator
}

// NewAuthHandler constructs an AuthHandler. The resume coordinator is
// optional; without it sign-in simply never resumes invitations.
func NewAuthHandler(users *services.UserService, jwt *iauth.JWTService, resume *services.InviteResumeCoordinator) (*AuthHandler, error) {
	if users == nil {
		return nil, fmt.Errorf("auth handler: user service must be provided")
	}
	if jwt == nil {
		return nil, fmt.Errorf("auth handler: jwt service must be provided")
	}
	return &AuthHandler{users: users, jwt: jwt, resume: resume}, nil
}

type registerRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=8,max=128"`
	DisplayName string `json:"display_name" validate:"omitempty,max=128"`
	PhotoURL    string `json:"photo_url" validate:"omitempty,max=512"`
	VisitorID   string `json:"visitor_id" validate:"omitempty,max=128"`
}

type loginRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required"`
	VisitorID string `json:"visitor_id" validate:"omitempty,max=128"`
}

// POST /api/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.users.Create(requestContext(c), services.CreateUserInput{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
		PhotoURL:    req.PhotoURL,
	})
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		response.Error(c, err)
		return
	}

	h.issueSession(c, user, req.VisitorID, http.StatusCreated)
}

// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.users.Authenticate(requestContext(c), req.Email, req.Password)
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		response.Error(c, err)
		return
	}

	h.issueSession(c, user, req.VisitorID, http.StatusOK)
}

// GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	user, err := h.users.GetByID(requestContext(c), identity.UID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, user)
}

func (h *AuthHandler) issueSession(c *gin.Context, user *models.User, visitorID string, status int) {
	token, err := h.jwt.GenerateAccessToken(iauth.AccessTokenInput{
		UserID: user.ID,
		Email:  user.Email,
		Name:   user.DisplayName,
	})
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		response.Error(c, errors.ErrInternalServer)
		return
	}

	_ = h.users.TouchLastLogin(requestContext(c), user.ID, time.Now().UTC())
	metrics.AuthAttempts.WithLabelValues("success").Inc()

	payload := gin.H{
		"token": token,
		"user":  user,
	}
	if result := h.resumeInvite(c, user, visitorID); result != nil {
		payload["invite_result"] = result
	}

	response.Success(c, status, payload)
}

// resumeInvite redeems a stashed invitation for the fresh session. Sign-in
// never fails because of the stash; failures are logged and swallowed.
func (h *AuthHandler) resumeInvite(c *gin.Context, user *models.User, visitorID string) *services.AcceptResult {
	visitorID = strings.TrimSpace(visitorID)
	if h.resume == nil || visitorID == "" {
		return nil
	}

	identity := iauth.Identity{UID: user.ID, Email: user.Email, Name: user.DisplayName}
	result, err := h.resume.Resume(requestContext(c), identity, visitorID)
	if err != nil {
		logger.WithModule("auth").Warn("invite resume failed",
			zap.String("user_id", user.ID), zap.Error(err))
		return nil
	}
	return result
}
