package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// SignInAction represents the gateway operation being audited
type SignInAction string

const (
	SignInActionValidate SignInAction = "validate_sso"
	SignInActionRefresh  SignInAction = "refresh_session"
	SignInActionLogout   SignInAction = "logout"
)

// SignInOutcome is the final state of an audited operation
type SignInOutcome string

const (
	SignInOutcomeSucceeded SignInOutcome = "succeeded"
	SignInOutcomeRejected  SignInOutcome = "rejected"
)

// SignInEvent is one audit trail entry for a gateway operation. It is
// written after the fact and never consulted during authentication.
type SignInEvent struct {
	ID        uuid.UUID       `json:"id" db:"id"`
	Action    SignInAction    `json:"action" db:"action"`
	Outcome   SignInOutcome   `json:"outcome" db:"outcome"`
	Stage     string          `json:"stage" db:"stage"`   // last stage reached
	Reason    string          `json:"reason" db:"reason"` // internal rejection reason, empty on success
	ErrorCode string          `json:"error_code,omitempty" db:"error_code"`
	UserID    string          `json:"user_id,omitempty" db:"user_id"`
	Email     string          `json:"email,omitempty" db:"email"`
	TenantID  string          `json:"tenant_id,omitempty" db:"tenant_id"`
	SessionID string          `json:"session_id,omitempty" db:"session_id"`
	Source    string          `json:"source,omitempty" db:"source"`
	Details   json.RawMessage `json:"details,omitempty" db:"details"`
	IPAddress string          `json:"ip_address" db:"ip_address"`
	UserAgent string          `json:"user_agent" db:"user_agent"`
	RequestID string          `json:"request_id" db:"request_id"`
	Timestamp time.Time       `json:"timestamp" db:"timestamp"`
}

// TableName returns the table name for the SignInEvent model
func (SignInEvent) TableName() string {
	return "sign_in_events"
}

// NewSignInEvent creates a new SignInEvent instance
func NewSignInEvent(action SignInAction, outcome SignInOutcome, stage string) *SignInEvent {
	return &SignInEvent{
		ID:        uuid.New(),
		Action:    action,
		Outcome:   outcome,
		Stage:     stage,
		Timestamp: time.Now().UTC(),
	}
}

// WithIdentity sets the user fields
func (e *SignInEvent) WithIdentity(identity *IdentityRecord) *SignInEvent {
	if identity != nil {
		e.UserID = identity.ID
		e.Email = identity.Email
		e.TenantID = identity.TenantID
	}
	return e
}

// WithSession sets the session id
func (e *SignInEvent) WithSession(sessionID string) *SignInEvent {
	e.SessionID = sessionID
	return e
}

// WithRejection sets the rejection reason and public error code
func (e *SignInEvent) WithRejection(reason, code string) *SignInEvent {
	e.Reason = reason
	e.ErrorCode = code
	return e
}

// WithSource sets the client-declared source of the credential
func (e *SignInEvent) WithSource(source string) *SignInEvent {
	e.Source = source
	return e
}

// WithDetails sets the details
func (e *SignInEvent) WithDetails(details interface{}) *SignInEvent {
	if data, err := json.Marshal(details); err == nil {
		e.Details = data
	}
	return e
}

// WithRequest sets request metadata
func (e *SignInEvent) WithRequest(requestID, ipAddress, userAgent string) *SignInEvent {
	e.RequestID = requestID
	e.IPAddress = ipAddress
	e.UserAgent = userAgent
	return e
}

// Succeeded reports whether the operation completed
func (e *SignInEvent) Succeeded() bool {
	return e.Outcome == SignInOutcomeSucceeded
}
