package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidSession is returned for any session credential that fails verification
var ErrInvalidSession = errors.New("invalid or expired session")

// Verifier authenticates session credentials minted by Minter
type Verifier struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewVerifier creates a session verifier sharing the minter's configuration
func NewVerifier(cfg Config) *Verifier {
	return &Verifier{
		secret: []byte(cfg.SigningSecret),
		issuer: strings.TrimSpace(cfg.Issuer),
		now:    time.Now,
	}
}

// Verify checks the HS256 signature, expiry and issuer of a session credential.
func (v *Verifier) Verify(raw string) (*Claims, error) {
	if len(v.secret) < MinSigningKeyBytes {
		return nil, ErrSigningKeyTooShort
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	if !token.Valid || claims.UserID == "" || claims.SessionID == "" {
		return nil, ErrInvalidSession
	}
	return claims, nil
}
