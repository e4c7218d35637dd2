package policy

import (
	"context"
	"time"
)

// Evaluator decides whether a verified identity may receive a session.
type Evaluator interface {
	Evaluate(ctx context.Context, req *EvaluationRequest) *Decision
}

// Config holds the organizational policy settings.
type Config struct {
	AllowedDomains     []string
	ExpectedTenantID   string
	MaxTokenAge        time.Duration // zero selects DefaultMaxTokenAge
	RequiredAuthMethod string
}

// EvaluationRequest contains the identity attributes needed for policy evaluation.
type EvaluationRequest struct {
	Email       string
	TenantID    string
	IssuedAt    *time.Time // nil when the credential carried no iat
	AuthMethods []string
}

// Decision represents the result of policy evaluation.
type Decision struct {
	Allowed   bool
	Violation *Violation
}

// Violation represents the first failed check.
type Violation struct {
	Type    ViolationType
	Message string
}

// ViolationType names the failed check.
type ViolationType string

const (
	ViolationDomain     ViolationType = "domain"
	ViolationTenant     ViolationType = "tenant"
	ViolationTokenAge   ViolationType = "token_age"
	ViolationAuthMethod ViolationType = "auth_method"
)
