package policy

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/upb/sso-gateway/internal/observability"
	"go.uber.org/zap"
)

// DefaultMaxTokenAge applies when Config.MaxTokenAge is zero
const DefaultMaxTokenAge = 60 * time.Minute

type check struct {
	name ViolationType
	run  func(g *Gate, req *EvaluationRequest) *Violation
}

var checks = []check{
	{ViolationDomain, checkDomain},
	{ViolationTenant, checkTenant},
	{ViolationTokenAge, checkTokenAge},
	{ViolationAuthMethod, checkAuthMethod},
}

// Gate evaluates organizational policy for a verified identity.
type Gate struct {
	allowedDomains     map[string]struct{}
	expectedTenantID   string
	maxTokenAge        time.Duration
	requiredAuthMethod string
	now                func() time.Time
	logger             observability.Logger
}

// NewGate creates a gate from configuration. Domain entries are trimmed
// and lower-cased; blank entries are ignored.
func NewGate(cfg Config, logger observability.Logger) *Gate {
	g := &Gate{
		expectedTenantID:   strings.TrimSpace(cfg.ExpectedTenantID),
		maxTokenAge:        cfg.MaxTokenAge,
		requiredAuthMethod: strings.TrimSpace(cfg.RequiredAuthMethod),
		now:                time.Now,
		logger:             logger,
	}
	if g.maxTokenAge <= 0 {
		g.maxTokenAge = DefaultMaxTokenAge
	}
	if g.logger == nil {
		g.logger = observability.NewLogger(nil)
	}
	for _, d := range cfg.AllowedDomains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == "" {
			continue
		}
		if g.allowedDomains == nil {
			g.allowedDomains = make(map[string]struct{})
		}
		g.allowedDomains[d] = struct{}{}
	}
	return g
}

// WithClock replaces the gate's time source
func (g *Gate) WithClock(now func() time.Time) *Gate {
	g.now = now
	return g
}

// Evaluate runs every check in order and stops at the first violation.
func (g *Gate) Evaluate(ctx context.Context, req *EvaluationRequest) *Decision {
	for _, c := range checks {
		if v := c.run(g, req); v != nil {
			g.logger.Warn(ctx, "policy violation",
				zap.String("check", string(v.Type)),
				zap.String("reason", v.Message))
			return &Decision{Allowed: false, Violation: v}
		}
	}
	return &Decision{Allowed: true}
}

func checkDomain(g *Gate, req *EvaluationRequest) *Violation {
	if len(g.allowedDomains) == 0 {
		return nil
	}
	at := strings.LastIndex(req.Email, "@")
	if at < 0 {
		return &Violation{Type: ViolationDomain, Message: "email has no domain"}
	}
	domain := strings.ToLower(req.Email[at+1:])
	if _, ok := g.allowedDomains[domain]; !ok {
		return &Violation{Type: ViolationDomain, Message: fmt.Sprintf("domain %q not allowed", domain)}
	}
	return nil
}

func checkTenant(g *Gate, req *EvaluationRequest) *Violation {
	if g.expectedTenantID == "" {
		return nil
	}
	if !strings.EqualFold(req.TenantID, g.expectedTenantID) {
		return &Violation{Type: ViolationTenant, Message: fmt.Sprintf("tenant %q not expected", req.TenantID)}
	}
	return nil
}

// checkTokenAge passes credentials without iat
func checkTokenAge(g *Gate, req *EvaluationRequest) *Violation {
	if req.IssuedAt == nil {
		return nil
	}
	age := g.now().Sub(*req.IssuedAt)
	if age > g.maxTokenAge {
		return &Violation{Type: ViolationTokenAge, Message: fmt.Sprintf("token age %s exceeds %s", age.Round(time.Second), g.maxTokenAge)}
	}
	return nil
}

func checkAuthMethod(g *Gate, req *EvaluationRequest) *Violation {
	if g.requiredAuthMethod == "" {
		return nil
	}
	for _, m := range req.AuthMethods {
		if m == g.requiredAuthMethod {
			return nil
		}
	}
	return &Violation{Type: ViolationAuthMethod, Message: fmt.Sprintf("required auth method %q absent", g.requiredAuthMethod)}
}
