package idtoken

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractIdentity_Aliases(t *testing.T) {
	tests := []struct {
		name   string
		claims jwt.MapClaims
		wantID string
		wantEm string
	}{
		{
			name:   "short names",
			claims: jwt.MapClaims{"oid": "oid-1", "sub": "sub-1", "email": "a@b.com", "preferred_username": "p@b.com"},
			wantID: "oid-1",
			wantEm: "a@b.com",
		},
		{
			name: "long uri forms",
			claims: jwt.MapClaims{
				"http://schemas.microsoft.com/identity/claims/objectidentifier":      "oid-uri",
				"http://schemas.xmlsoap.org/ws/2005/05/identity/claims/emailaddress": "uri@b.com",
			},
			wantID: "oid-uri",
			wantEm: "uri@b.com",
		},
		{
			name:   "sub and preferred_username fallback",
			claims: jwt.MapClaims{"sub": "sub-1", "preferred_username": "p@b.com"},
			wantID: "sub-1",
			wantEm: "p@b.com",
		},
		{
			name:   "empty primary falls through",
			claims: jwt.MapClaims{"oid": "", "sub": "sub-1", "email": "", "upn": "upn@b.com"},
			wantID: "sub-1",
			wantEm: "upn@b.com",
		},
		{
			name:   "non-string primary falls through",
			claims: jwt.MapClaims{"oid": 42, "sub": "sub-1", "email": []interface{}{"x"}, "upn": "upn@b.com"},
			wantID: "sub-1",
			wantEm: "upn@b.com",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			identity, err := ExtractIdentity(NewVerifiedClaims(tt.claims, "RS256"))
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, identity.ID)
			assert.Equal(t, tt.wantEm, identity.Email)
		})
	}
}

func TestExtractIdentity_OptionalFields(t *testing.T) {
	claims := jwt.MapClaims{
		"oid":         "u1",
		"email":       "a@b.com",
		"name":        "Alice Doe",
		"given_name":  "Alice",
		"http://schemas.xmlsoap.org/ws/2005/05/identity/claims/surname": "Doe",
		"http://schemas.microsoft.com/identity/claims/tenantid":         "t1",
	}

	identity, err := ExtractIdentity(NewVerifiedClaims(claims, "RS256"))
	require.NoError(t, err)
	assert.Equal(t, "Alice Doe", identity.Name)
	assert.Equal(t, "Alice", identity.GivenName)
	assert.Equal(t, "Doe", identity.FamilyName)
	assert.Equal(t, "t1", identity.TenantID)

	bare, err := ExtractIdentity(NewVerifiedClaims(jwt.MapClaims{"sub": "u1", "upn": "a@b.com"}, "RS256"))
	require.NoError(t, err)
	assert.Equal(t, "", bare.Name)
	assert.Equal(t, "", bare.GivenName)
	assert.Equal(t, "", bare.FamilyName)
	assert.Equal(t, "", bare.TenantID)
}

func TestExtractIdentity_MissingRequired(t *testing.T) {
	tests := []struct {
		name   string
		claims jwt.MapClaims
	}{
		{"no id", jwt.MapClaims{"email": "a@b.com"}},
		{"no email", jwt.MapClaims{"oid": "u1"}},
		{"blank values", jwt.MapClaims{"oid": "", "email": ""}},
		{"empty", jwt.MapClaims{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			identity, err := ExtractIdentity(NewVerifiedClaims(tt.claims, "RS256"))
			assert.ErrorIs(t, err, ErrMissingRequiredClaims)
			assert.Nil(t, identity)
		})
	}
}

func TestVerifiedClaims_AuthMethods(t *testing.T) {
	tests := []struct {
		name   string
		claims jwt.MapClaims
		want   []string
	}{
		{"array", jwt.MapClaims{"amr": []interface{}{"pwd", "mfa"}}, []string{"pwd", "mfa"}},
		{"single string", jwt.MapClaims{"amr": "mfa"}, []string{"mfa"}},
		{"long uri", jwt.MapClaims{"http://schemas.microsoft.com/claims/authnmethodsreferences": "mfa"}, []string{"mfa"}},
		{"mixed array drops non-strings", jwt.MapClaims{"amr": []interface{}{"pwd", 7, ""}}, []string{"pwd"}},
		{"absent", jwt.MapClaims{}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NewVerifiedClaims(tt.claims, "RS256").AuthMethods())
		})
	}
}

func TestVerifiedClaims_IsolatedFromSource(t *testing.T) {
	source := jwt.MapClaims{"oid": "u1", "email": "a@b.com", "iat": float64(1_700_000_000)}
	vc := NewVerifiedClaims(source, "RS256")

	source["oid"] = "mutated"
	assert.Equal(t, "u1", vc.Subject())
	require.NotNil(t, vc.IssuedAt())
	assert.True(t, vc.IssuedAt().Equal(time.Unix(1_700_000_000, 0)))

	assert.Nil(t, NewVerifiedClaims(jwt.MapClaims{}, "RS256").IssuedAt())
}
