package idtoken

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/upb/sso-gateway/models"
)

// ErrMissingRequiredClaims is returned when the user id or email cannot be resolved
var ErrMissingRequiredClaims = errors.New("missing required user claims")

// Claim name aliases, tried in order. Long URI forms are what WS-Federation
// style mappers emit for the same Azure AD claims.
var (
	IDClaims = []string{
		"oid",
		"http://schemas.microsoft.com/identity/claims/objectidentifier",
		"sub",
		"http://schemas.xmlsoap.org/ws/2005/05/identity/claims/nameidentifier",
	}
	EmailClaims = []string{
		"email",
		"http://schemas.xmlsoap.org/ws/2005/05/identity/claims/emailaddress",
		"preferred_username",
		"upn",
		"http://schemas.xmlsoap.org/ws/2005/05/identity/claims/upn",
	}
	NameClaims = []string{
		"name",
		"http://schemas.xmlsoap.org/ws/2005/05/identity/claims/name",
	}
	GivenNameClaims = []string{
		"given_name",
		"http://schemas.xmlsoap.org/ws/2005/05/identity/claims/givenname",
	}
	FamilyNameClaims = []string{
		"family_name",
		"http://schemas.xmlsoap.org/ws/2005/05/identity/claims/surname",
	}
	TenantClaims = []string{
		"tid",
		"http://schemas.microsoft.com/identity/claims/tenantid",
	}
	AuthMethodClaims = []string{
		"amr",
		"http://schemas.microsoft.com/claims/authnmethodsreferences",
	}
)

// VerifiedClaims is the immutable result of a successful verification
type VerifiedClaims struct {
	claims    jwt.MapClaims
	algorithm string
	issuedAt  *time.Time
}

// NewVerifiedClaims copies the claim map so later mutation of the source has no effect
func NewVerifiedClaims(claims jwt.MapClaims, algorithm string) *VerifiedClaims {
	copied := make(jwt.MapClaims, len(claims))
	for k, v := range claims {
		copied[k] = v
	}
	vc := &VerifiedClaims{claims: copied, algorithm: algorithm}
	if iat, err := copied.GetIssuedAt(); err == nil && iat != nil {
		t := iat.Time
		vc.issuedAt = &t
	}
	return vc
}

// Algorithm returns the signing algorithm of the verified token
func (c *VerifiedClaims) Algorithm() string { return c.algorithm }

// IssuedAt returns the iat claim, or nil when the token carries none
func (c *VerifiedClaims) IssuedAt() *time.Time { return c.issuedAt }

// Subject returns the resolved user id
func (c *VerifiedClaims) Subject() string { return c.First(IDClaims...) }

// Email returns the resolved email
func (c *VerifiedClaims) Email() string { return c.First(EmailClaims...) }

// TenantID returns the resolved tenant id
func (c *VerifiedClaims) TenantID() string { return c.First(TenantClaims...) }

// AuthMethods returns the authentication method references. The claim may
// be a single string or an array.
func (c *VerifiedClaims) AuthMethods() []string {
	for _, name := range AuthMethodClaims {
		switch v := c.claims[name].(type) {
		case string:
			if v != "" {
				return []string{v}
			}
		case []interface{}:
			methods := make([]string, 0, len(v))
			for _, item := range v {
				if s, ok := item.(string); ok && s != "" {
					methods = append(methods, s)
				}
			}
			if len(methods) > 0 {
				return methods
			}
		}
	}
	return nil
}

// First returns the first non-empty string value among the named claims
func (c *VerifiedClaims) First(names ...string) string {
	for _, name := range names {
		if s, ok := c.claims[name].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// ExtractIdentity projects verified claims onto an identity record.
// Optional fields default to the empty string.
func ExtractIdentity(c *VerifiedClaims) (*models.IdentityRecord, error) {
	identity := &models.IdentityRecord{
		ID:         c.Subject(),
		Email:      c.Email(),
		Name:       c.First(NameClaims...),
		GivenName:  c.First(GivenNameClaims...),
		FamilyName: c.First(FamilyNameClaims...),
		TenantID:   c.TenantID(),
	}
	if identity.ID == "" || identity.Email == "" {
		return nil, ErrMissingRequiredClaims
	}
	return identity, nil
}
