package idtoken

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/upb/sso-gateway/authority"
)

// ClockSkew is the symmetric tolerance applied to exp and nbf
const ClockSkew = 5 * time.Minute

// RequiredAlgorithm is the only signing algorithm accepted on external credentials
const RequiredAlgorithm = "RS256"

// Reason identifies why verification failed. It is logged, never returned to callers.
type Reason string

const (
	ReasonBadSignature     Reason = "bad_signature"
	ReasonMalformed        Reason = "malformed"
	ReasonUnsupportedType  Reason = "unsupported_token_type"
	ReasonBadAlgorithm     Reason = "bad_algorithm"
	ReasonBadIssuer        Reason = "bad_issuer"
	ReasonBadAudience      Reason = "bad_audience"
	ReasonMissingExpiry    Reason = "missing_expiry"
	ReasonExpired          Reason = "expired"
	ReasonNotYetValid      Reason = "not_yet_valid"
	ReasonInvalidTimeClaim Reason = "invalid_time_claim"
)

// VerificationError reports the failing step and its reason
type VerificationError struct {
	Step   string
	Reason Reason
	Err    error
}

func (e *VerificationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s check failed (%s): %v", e.Step, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s check failed (%s)", e.Step, e.Reason)
}

func (e *VerificationError) Unwrap() error {
	return e.Err
}

// IsSecurityViolation reports failures that indicate an attack on the
// verifier itself rather than an ordinary invalid token.
func (e *VerificationError) IsSecurityViolation() bool {
	return e.Reason == ReasonBadAlgorithm || e.Reason == ReasonUnsupportedType
}

// check is one ordered verification step
type check struct {
	name string
	run  func(v *Verifier, token *jwt.Token, claims jwt.MapClaims, md *authority.Metadata) *VerificationError
}

// steps run in order after the signature has been verified
var steps = []check{
	{"token_type", checkTokenType},
	{"algorithm", checkAlgorithm},
	{"issuer", checkIssuer},
	{"audience", checkAudience},
	{"lifetime", checkLifetime},
}

// Verifier verifies external credentials against resolved authority metadata
type Verifier struct {
	clientID string
	now      func() time.Time
}

// NewVerifier creates a verifier expecting the given client id as audience
func NewVerifier(clientID string) *Verifier {
	return &Verifier{clientID: clientID, now: time.Now}
}

// WithClock replaces the verifier's time source
func (v *Verifier) WithClock(now func() time.Time) *Verifier {
	v.now = now
	return v
}

// Verify runs the signature check against the full key set, then every
// step in order, stopping at the first failure.
func (v *Verifier) Verify(raw string, md *authority.Metadata) (*VerifiedClaims, error) {
	token, claims, verr := v.verifySignature(raw, md)
	if verr != nil {
		return nil, verr
	}

	for _, step := range steps {
		if verr := step.run(v, token, claims, md); verr != nil {
			verr.Step = step.name
			return nil, verr
		}
	}

	alg, _ := token.Header["alg"].(string)
	return NewVerifiedClaims(claims, alg), nil
}

func (v *Verifier) verifySignature(raw string, md *authority.Metadata) (*jwt.Token, jwt.MapClaims, *VerificationError) {
	fail := func(reason Reason, err error) (*jwt.Token, jwt.MapClaims, *VerificationError) {
		return nil, nil, &VerificationError{Step: "signature", Reason: reason, Err: err}
	}
	if md == nil || len(md.Keys) == 0 {
		return fail(ReasonBadSignature, errors.New("no signing keys resolved"))
	}

	keys := make([]jwt.VerificationKey, 0, len(md.Keys))
	for _, key := range md.Keys {
		keys = append(keys, key)
	}

	claims := jwt.MapClaims{}
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	token, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return jwt.VerificationKeySet{Keys: keys}, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenMalformed) {
			return fail(ReasonMalformed, err)
		}
		return fail(ReasonBadSignature, err)
	}
	if !token.Valid {
		return fail(ReasonBadSignature, errors.New("token not marked valid"))
	}
	return token, claims, nil
}

// checkTokenType accepts any typ (JWT, at+jwt) and rejects encrypted or
// nested credentials
func checkTokenType(_ *Verifier, token *jwt.Token, _ jwt.MapClaims, _ *authority.Metadata) *VerificationError {
	for _, h := range []string{"enc", "zip"} {
		if _, present := token.Header[h]; present {
			return &VerificationError{Reason: ReasonUnsupportedType, Err: fmt.Errorf("encrypted token (%s header)", h)}
		}
	}
	if cty, ok := token.Header["cty"].(string); ok && strings.EqualFold(cty, "JWT") {
		return &VerificationError{Reason: ReasonUnsupportedType, Err: errors.New("nested token")}
	}
	return nil
}

func checkAlgorithm(_ *Verifier, token *jwt.Token, _ jwt.MapClaims, _ *authority.Metadata) *VerificationError {
	alg, _ := token.Header["alg"].(string)
	if alg != RequiredAlgorithm || token.Method != jwt.SigningMethodRS256 {
		return &VerificationError{Reason: ReasonBadAlgorithm, Err: fmt.Errorf("alg %q", alg)}
	}
	return nil
}

func checkIssuer(_ *Verifier, _ *jwt.Token, claims jwt.MapClaims, md *authority.Metadata) *VerificationError {
	iss, err := claims.GetIssuer()
	if err != nil || md.Issuer == "" || iss != md.Issuer {
		return &VerificationError{Reason: ReasonBadIssuer, Err: fmt.Errorf("issuer %q", iss)}
	}
	return nil
}

func checkAudience(v *Verifier, _ *jwt.Token, claims jwt.MapClaims, _ *authority.Metadata) *VerificationError {
	aud, err := claims.GetAudience()
	if err != nil || v.clientID == "" {
		return &VerificationError{Reason: ReasonBadAudience, Err: err}
	}
	for _, a := range aud {
		if a == v.clientID {
			return nil
		}
	}
	return &VerificationError{Reason: ReasonBadAudience, Err: fmt.Errorf("audience %v", []string(aud))}
}

func checkLifetime(v *Verifier, _ *jwt.Token, claims jwt.MapClaims, _ *authority.Metadata) *VerificationError {
	now := v.now()

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return &VerificationError{Reason: ReasonInvalidTimeClaim, Err: err}
	}
	if exp == nil {
		return &VerificationError{Reason: ReasonMissingExpiry}
	}
	if now.After(exp.Add(ClockSkew)) {
		return &VerificationError{Reason: ReasonExpired, Err: fmt.Errorf("expired at %s", exp.UTC().Format(time.RFC3339))}
	}

	nbf, err := claims.GetNotBefore()
	if err != nil {
		return &VerificationError{Reason: ReasonInvalidTimeClaim, Err: err}
	}
	if nbf != nil && now.Before(nbf.Add(-ClockSkew)) {
		return &VerificationError{Reason: ReasonNotYetValid, Err: fmt.Errorf("not before %s", nbf.UTC().Format(time.RFC3339))}
	}
	return nil
}
