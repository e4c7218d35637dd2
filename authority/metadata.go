package authority

import (
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"
)

// Metadata is the resolved trust material of the identity authority
type Metadata struct {
	Issuer    string
	JWKSURI   string
	Keys      []*rsa.PublicKey
	FetchedAt time.Time
}

// discoveryDocument is the subset of the OpenID discovery document the gateway needs
type discoveryDocument struct {
	Issuer  string `json:"issuer"`
	JWKSURI string `json:"jwks_uri"`
}

// JWKS represents the JSON Web Key Set
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// JWK represents a JSON Web Key
type JWK struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Alg string `json:"alg,omitempty"`
	Use string `json:"use,omitempty"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// rsaKeys converts every RSA signing key in the set. Encryption keys and
// other key types are skipped, as are malformed keys, which are logged.
func (s *JWKS) rsaKeys(logger *zap.Logger) []*rsa.PublicKey {
	keys := make([]*rsa.PublicKey, 0, len(s.Keys))
	for i := range s.Keys {
		jwk := &s.Keys[i]
		if jwk.Kty != "RSA" || (jwk.Use != "" && jwk.Use != "sig") {
			continue
		}
		key, err := jwkToRSAPublicKey(jwk)
		if err != nil {
			logger.Warn("skipping malformed signing key",
				zap.String("kid", jwk.Kid),
				zap.Error(err))
			continue
		}
		keys = append(keys, key)
	}
	return keys
}

// jwkToRSAPublicKey converts a JWK to an RSA public key
func jwkToRSAPublicKey(jwk *JWK) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(jwk.N)
	if err != nil {
		return nil, fmt.Errorf("failed to decode modulus: %w", err)
	}

	eBytes, err := base64.RawURLEncoding.DecodeString(jwk.E)
	if err != nil {
		return nil, fmt.Errorf("failed to decode exponent: %w", err)
	}
	if len(nBytes) == 0 || len(eBytes) == 0 || len(eBytes) > 4 {
		return nil, fmt.Errorf("invalid RSA key parameters")
	}

	var e int
	for _, b := range eBytes {
		e = e*256 + int(b)
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: e,
	}, nil
}
