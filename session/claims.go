package session

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/upb/sso-gateway/models"
)

// Claims is the payload of an application session credential
type Claims struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	TenantID  string `json:"tenant_id"`
	SessionID string `json:"session_id"`
	jwt.RegisteredClaims
}

// Identity projects the session claims back onto an identity record.
// Given and family names are not carried by the session.
func (c *Claims) Identity() *models.IdentityRecord {
	return &models.IdentityRecord{
		ID:       c.UserID,
		Email:    c.Email,
		Name:     c.Name,
		TenantID: c.TenantID,
	}
}
