package models

import "strings"

// IdentityRecord is the normalized identity extracted from a verified
// external credential. Optional fields are empty strings, never null.
type IdentityRecord struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	GivenName  string `json:"givenName"`
	FamilyName string `json:"familyName"`
	TenantID   string `json:"tenantId"`
}

// EmailDomain returns the lower-cased part after the last '@', or "" when there is none
func (i *IdentityRecord) EmailDomain() string {
	at := strings.LastIndex(i.Email, "@")
	if at < 0 {
		return ""
	}
	return strings.ToLower(i.Email[at+1:])
}
