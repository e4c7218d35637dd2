package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/upb/sso-gateway/auth"
	"github.com/upb/sso-gateway/middleware"
	"github.com/upb/sso-gateway/models"
	"github.com/upb/sso-gateway/services"
	"github.com/upb/sso-gateway/session"
	"github.com/upb/sso-gateway/utils"
	"go.uber.org/zap"
)

// SSOService is the orchestration the SSO endpoints depend on
type SSOService interface {
	ValidateSSO(ctx context.Context, req services.ValidateRequest) (*services.ValidateResult, error)
	RefreshSession(ctx context.Context, identity *models.IdentityRecord, previousSessionID string) (*session.Issued, error)
	Logout(ctx context.Context, identity *models.IdentityRecord, sessionID string) error
}

// ValidateSSORequest is the body of POST /validate-sso
type ValidateSSORequest struct {
	AccessToken string `json:"accessToken" validate:"required"`
	Source      string `json:"source,omitempty"`
}

// ValidateSSOResponse is returned when an external credential was accepted
type ValidateSSOResponse struct {
	IsValid      bool                   `json:"isValid"`
	User         *models.IdentityRecord `json:"user"`
	SessionToken string                 `json:"sessionToken"`
	ExpiresAt    string                 `json:"expiresAt"`
}

// SessionResponse is returned when a session is refreshed
type SessionResponse struct {
	SessionToken string `json:"sessionToken"`
	ExpiresAt    string `json:"expiresAt"`
}

// SSOHandler handles the SSO and session endpoints
type SSOHandler struct {
	service SSOService
	cookies *auth.Cookies
	logger  *zap.Logger
}

// NewSSOHandler creates a new SSOHandler
func NewSSOHandler(service SSOService, cookies *auth.Cookies, logger *zap.Logger) *SSOHandler {
	return &SSOHandler{
		service: service,
		cookies: cookies,
		logger:  logger,
	}
}

// HandleValidateSSO handles POST /validate-sso
func (h *SSOHandler) HandleValidateSSO(w http.ResponseWriter, r *http.Request) {
	var req ValidateSSORequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	result, err := h.service.ValidateSSO(r.Context(), services.ValidateRequest{
		AccessToken: req.AccessToken,
		Source:      req.Source,
	})
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.cookies.SetSession(w, result.SessionToken, result.ExpiresAt)
	if err := utils.WriteOK(w, ValidateSSOResponse{
		IsValid:      true,
		User:         result.User,
		SessionToken: result.SessionToken,
		ExpiresAt:    formatExpiry(result.ExpiresAt),
	}); err != nil {
		h.logger.Error("failed to write validate response", zap.Error(err))
	}
}

// HandleRefreshSession handles POST /refresh-session
func (h *SSOHandler) HandleRefreshSession(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.SessionIdentity(r.Context())
	if !ok {
		_ = utils.WriteUnauthorized(w, "")
		return
	}

	issued, err := h.service.RefreshSession(r.Context(), identity, currentSessionID(r))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.cookies.SetSession(w, issued.Token, issued.ExpiresAt)
	if err := utils.WriteOK(w, SessionResponse{
		SessionToken: issued.Token,
		ExpiresAt:    formatExpiry(issued.ExpiresAt),
	}); err != nil {
		h.logger.Error("failed to write refresh response", zap.Error(err))
	}
}

// HandleMe handles GET /me
func (h *SSOHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.SessionIdentity(r.Context())
	if !ok {
		_ = utils.WriteUnauthorized(w, "")
		return
	}
	if err := utils.WriteOK(w, identity); err != nil {
		h.logger.Error("failed to write identity response", zap.Error(err))
	}
}

// HandleLogout handles POST /logout
func (h *SSOHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.SessionIdentity(r.Context())
	if !ok {
		_ = utils.WriteUnauthorized(w, "")
		return
	}

	if err := h.service.Logout(r.Context(), identity, currentSessionID(r)); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.cookies.ClearSession(w)
	if err := utils.WriteMessage(w, "Logged out successfully"); err != nil {
		h.logger.Error("failed to write logout response", zap.Error(err))
	}
}

func currentSessionID(r *http.Request) string {
	if claims := middleware.SessionClaims(r.Context()); claims != nil {
		return claims.SessionID
	}
	return ""
}

func formatExpiry(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
