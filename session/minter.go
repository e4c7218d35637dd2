package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/upb/sso-gateway/models"
)

const (
	// MinSigningKeyBytes is the smallest HMAC secret accepted for signing sessions
	MinSigningKeyBytes = 32

	// DefaultExpirationHours applies when Config.ExpirationHours is not positive
	DefaultExpirationHours = 8
)

var (
	// ErrSigningKeyTooShort is returned when the configured secret is under MinSigningKeyBytes
	ErrSigningKeyTooShort = errors.New("session signing secret is too short")

	// ErrMissingIdentity is returned when minting without a user id or email
	ErrMissingIdentity = errors.New("session requires user id and email")
)

// Config holds configuration for Minter and Verifier
type Config struct {
	SigningSecret   string
	ExpirationHours int
	Issuer          string // optional; set as iss and required on verification
}

// Issued is a freshly minted session credential
type Issued struct {
	Token     string
	SessionID string
	ExpiresAt time.Time
}

// Minter issues HS256 session credentials. It keeps no state between calls.
type Minter struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
	newID  func() string
}

// NewMinter creates a session minter. The secret is checked on every mint.
func NewMinter(cfg Config) *Minter {
	hours := cfg.ExpirationHours
	if hours <= 0 {
		hours = DefaultExpirationHours
	}
	return &Minter{
		secret: []byte(cfg.SigningSecret),
		ttl:    time.Duration(hours) * time.Hour,
		issuer: strings.TrimSpace(cfg.Issuer),
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// TTL returns the lifetime given to every minted session
func (m *Minter) TTL() time.Duration {
	return m.ttl
}

// Mint issues a new session credential for the identity with a fresh session id.
func (m *Minter) Mint(identity *models.IdentityRecord) (*Issued, error) {
	if len(m.secret) < MinSigningKeyBytes {
		return nil, fmt.Errorf("%w: %d bytes, need at least %d", ErrSigningKeyTooShort, len(m.secret), MinSigningKeyBytes)
	}
	if identity == nil || identity.ID == "" || identity.Email == "" {
		return nil, ErrMissingIdentity
	}

	issuedAt := m.now().UTC().Truncate(time.Second)
	expiresAt := issuedAt.Add(m.ttl)
	sessionID := m.newID()

	claims := &Claims{
		UserID:    identity.ID,
		Email:     identity.Email,
		Name:      identity.Name,
		TenantID:  identity.TenantID,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign session: %w", err)
	}

	return &Issued{Token: token, SessionID: sessionID, ExpiresAt: expiresAt}, nil
}
