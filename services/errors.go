package services

import (
	"errors"
	"fmt"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeInput         ErrorType = "input"
	ErrorTypeClaims        ErrorType = "claims"
	ErrorTypeCrypto        ErrorType = "crypto"
	ErrorTypeUnauthorized  ErrorType = "unauthorized"
	ErrorTypePolicy        ErrorType = "policy"
	ErrorTypeConfiguration ErrorType = "configuration"
	ErrorTypeInternal      ErrorType = "internal"
	ErrorTypeCanceled      ErrorType = "canceled"
)

// Public error codes returned in the response body
const (
	CodeInvalidInput          = "INVALID_INPUT"
	CodeInvalidTokenFormat    = "INVALID_TOKEN_FORMAT"
	CodeMissingUserClaims     = "MISSING_USER_CLAIMS"
	CodeTokenValidationFailed = "TOKEN_VALIDATION_FAILED"
	CodeTokenSecurityError    = "TOKEN_SECURITY_ERROR"
	CodeUnauthorized          = "UNAUTHORIZED"
	CodePolicyDenied          = "POLICY_DENIED"
	CodeInternalError         = "INTERNAL_ERROR"
	CodeRequestCanceled       = "REQUEST_CANCELED"
)

// DomainError represents a structured error with additional context.
// Message is safe to return to callers; Err and Details are for logs only.
type DomainError struct {
	Type    ErrorType
	Code    string
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type && (t.Code == "" || e.Code == t.Code)
}

// WithDetail adds a detail to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, code, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Code:    code,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// Domain error variables. Use them as errors.Is targets; wrap a fresh
// error with the constructors below so Details are never shared.

var (
	ErrInvalidInput       = NewDomainError(ErrorTypeInput, CodeInvalidInput, "Access token is required", nil)
	ErrInvalidTokenFormat = NewDomainError(ErrorTypeInput, CodeInvalidTokenFormat, "Invalid token format", nil)

	ErrMissingUserClaims = NewDomainError(ErrorTypeClaims, CodeMissingUserClaims, "Token is missing required user claims", nil)

	ErrTokenValidation = NewDomainError(ErrorTypeCrypto, CodeTokenValidationFailed, "Token validation failed", nil)
	ErrTokenSecurity   = NewDomainError(ErrorTypeCrypto, CodeTokenSecurityError, "Token validation failed", nil)

	ErrUnauthorized = NewDomainError(ErrorTypeUnauthorized, CodeUnauthorized, "Authentication required", nil)

	ErrAccessDenied = NewDomainError(ErrorTypePolicy, CodePolicyDenied, "Access denied", nil)

	ErrConfiguration = NewDomainError(ErrorTypeConfiguration, CodeInternalError, "An internal error occurred", nil)
	ErrInternal      = NewDomainError(ErrorTypeInternal, CodeInternalError, "An internal error occurred", nil)

	ErrRequestCanceled = NewDomainError(ErrorTypeCanceled, CodeRequestCanceled, "Request canceled", nil)
)

// Constructors

// InputError reports an empty or malformed credential
func InputError(code, message string, err error) *DomainError {
	return NewDomainError(ErrorTypeInput, code, message, err)
}

// ClaimsError reports a verified credential lacking user id or email
func ClaimsError(err error) *DomainError {
	return NewDomainError(ErrorTypeClaims, CodeMissingUserClaims, ErrMissingUserClaims.Message, err)
}

// CryptoError reports a failed credential verification. Security violations
// get their own code; the message never says which check failed.
func CryptoError(securityViolation bool, err error) *DomainError {
	if securityViolation {
		return NewDomainError(ErrorTypeCrypto, CodeTokenSecurityError, ErrTokenSecurity.Message, err)
	}
	return NewDomainError(ErrorTypeCrypto, CodeTokenValidationFailed, ErrTokenValidation.Message, err)
}

// PolicyError reports an organizational policy rejection
func PolicyError(err error) *DomainError {
	return NewDomainError(ErrorTypePolicy, CodePolicyDenied, ErrAccessDenied.Message, err)
}

// ConfigurationError reports missing or unusable gateway settings
func ConfigurationError(err error) *DomainError {
	return NewDomainError(ErrorTypeConfiguration, CodeInternalError, ErrConfiguration.Message, err)
}

// WrapInternal wraps an error as an internal error
func WrapInternal(err error) *DomainError {
	return NewDomainError(ErrorTypeInternal, CodeInternalError, ErrInternal.Message, err)
}

// CanceledError reports a request abandoned by its caller or cut off by its deadline
func CanceledError(err error) *DomainError {
	return NewDomainError(ErrorTypeCanceled, CodeRequestCanceled, ErrRequestCanceled.Message, err)
}

// Error type checking helper functions

// IsInputError checks if an error is an input error
func IsInputError(err error) bool {
	return GetErrorType(err) == ErrorTypeInput
}

// IsClaimsError checks if an error is a claims error
func IsClaimsError(err error) bool {
	return GetErrorType(err) == ErrorTypeClaims
}

// IsCryptoError checks if an error is a credential verification error
func IsCryptoError(err error) bool {
	return GetErrorType(err) == ErrorTypeCrypto
}

// IsUnauthorizedError checks if an error is an unauthorized error
func IsUnauthorizedError(err error) bool {
	return GetErrorType(err) == ErrorTypeUnauthorized
}

// IsPolicyError checks if an error is a policy error
func IsPolicyError(err error) bool {
	return GetErrorType(err) == ErrorTypePolicy
}

// IsConfigurationError checks if an error is a configuration error
func IsConfigurationError(err error) bool {
	return GetErrorType(err) == ErrorTypeConfiguration
}

// IsInternalError checks if an error is an internal error
func IsInternalError(err error) bool {
	return GetErrorType(err) == ErrorTypeInternal
}

// IsCanceledError checks if an error is a canceled request
func IsCanceledError(err error) bool {
	return GetErrorType(err) == ErrorTypeCanceled
}

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorCode returns the public code of a domain error, or INTERNAL_ERROR otherwise
func GetErrorCode(err error) string {
	var domainErr *DomainError
	if errors.As(err, &domainErr) && domainErr.Code != "" {
		return domainErr.Code
	}
	return CodeInternalError
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}
