package idtoken

import (
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrEmptyCredential is returned when no credential was presented
	ErrEmptyCredential = errors.New("access token is required")

	// ErrMalformedCredential is returned when the credential is not a compact signed token
	ErrMalformedCredential = errors.New("access token is not a well-formed JWT")
)

// CheckFormat is a cheap syntactic pre-check run before any network call.
// It accepts only three base64url segments with JSON header and payload.
func CheckFormat(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return ErrEmptyCredential
	}
	if strings.Count(raw, ".") != 2 {
		return ErrMalformedCredential
	}

	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(raw, jwt.MapClaims{}); err != nil {
		return ErrMalformedCredential
	}
	return nil
}
