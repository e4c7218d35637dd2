// Package policy provides the organizational access gate applied to an
// identity after its credential has been verified.
//
// The gate runs named checks in a fixed order:
//   - domain: email domain against an allow-list
//   - tenant: tenant id against the expected tenant
//   - token_age: time since the credential was issued
//   - auth_method: presence of a required authentication method
//
// A check whose setting is not configured passes. Evaluation stops at the
// first violation.
package policy
