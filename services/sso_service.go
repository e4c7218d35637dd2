package services

import (
	"context"
	"errors"
	"time"

	"github.com/upb/sso-gateway/authority"
	"github.com/upb/sso-gateway/idtoken"
	"github.com/upb/sso-gateway/internal/observability"
	"github.com/upb/sso-gateway/internal/policy"
	"github.com/upb/sso-gateway/internal/shared"
	"github.com/upb/sso-gateway/models"
	"github.com/upb/sso-gateway/session"
	"go.uber.org/zap"
)

// Stage names the furthest point a request reached in the validation pipeline
type Stage string

const (
	StageReceived        Stage = "received"
	StageFormatChecked   Stage = "format_checked"
	StageKeysResolved    Stage = "keys_resolved"
	StageCryptoVerified  Stage = "crypto_verified"
	StageClaimsExtracted Stage = "claims_extracted"
	StagePolicyPassed    Stage = "policy_passed"
	StageSessionMinted   Stage = "session_minted"
	StageResponded       Stage = "responded"
	StageRejected        Stage = "rejected"
)

// MetadataResolver resolves the trusted authority's issuer and signing keys
type MetadataResolver interface {
	Resolve(ctx context.Context) (*authority.Metadata, error)
}

// CredentialVerifier verifies an external credential against resolved metadata
type CredentialVerifier interface {
	Verify(raw string, md *authority.Metadata) (*idtoken.VerifiedClaims, error)
}

// SessionMinter issues application session credentials
type SessionMinter interface {
	Mint(identity *models.IdentityRecord) (*session.Issued, error)
}

// EventRecorder accepts sign-in audit events without blocking
type EventRecorder interface {
	Record(event *models.SignInEvent) error
}

// ValidateRequest is the input of ValidateSSO
type ValidateRequest struct {
	AccessToken string
	Source      string
}

// ValidateResult is a successful SSO validation
type ValidateResult struct {
	User         *models.IdentityRecord
	SessionToken string
	SessionID    string
	ExpiresAt    time.Time
}

// SSOService orchestrates credential validation and session issuance
type SSOService struct {
	resolver MetadataResolver
	verifier CredentialVerifier
	policy   policy.Evaluator
	minter   SessionMinter
	recorder EventRecorder // optional
	logger   observability.Logger
}

// NewSSOService creates a new SSOService instance. recorder may be nil.
func NewSSOService(
	resolver MetadataResolver,
	verifier CredentialVerifier,
	gate policy.Evaluator,
	minter SessionMinter,
	recorder EventRecorder,
	logger observability.Logger,
) *SSOService {
	if logger == nil {
		logger = observability.NewLogger(nil)
	}
	return &SSOService{
		resolver: resolver,
		verifier: verifier,
		policy:   gate,
		minter:   minter,
		recorder: recorder,
		logger:   logger,
	}
}

// ValidateSSO verifies an external credential, enforces policy and mints a
// session. Each stage classifies its own failure as a *DomainError.
func (s *SSOService) ValidateSSO(ctx context.Context, req ValidateRequest) (*ValidateResult, error) {
	run := &pipelineRun{svc: s, ctx: ctx, action: models.SignInActionValidate, source: req.Source, stage: StageReceived}

	if err := idtoken.CheckFormat(req.AccessToken); err != nil {
		if errors.Is(err, idtoken.ErrEmptyCredential) {
			return nil, run.reject(InputError(CodeInvalidInput, ErrInvalidInput.Message, err), "empty_credential")
		}
		return nil, run.reject(InputError(CodeInvalidTokenFormat, ErrInvalidTokenFormat.Message, err), "malformed_credential")
	}
	run.advance(StageFormatChecked)

	md, err := s.resolver.Resolve(ctx)
	if err != nil {
		if errors.Is(err, authority.ErrMissingConfiguration) {
			return nil, run.reject(ConfigurationError(err), "missing_authority_configuration")
		}
		if ctx.Err() != nil {
			return nil, run.reject(CanceledError(err), "request_canceled")
		}
		return nil, run.reject(WrapInternal(err), "metadata_unavailable")
	}
	run.advance(StageKeysResolved)

	claims, err := s.verifier.Verify(req.AccessToken, md)
	if err != nil {
		var verr *idtoken.VerificationError
		if errors.As(err, &verr) {
			derr := CryptoError(verr.IsSecurityViolation(), err).WithDetail("step", verr.Step)
			return nil, run.reject(derr, string(verr.Reason))
		}
		return nil, run.reject(CryptoError(false, err), "verification_failed")
	}
	run.advance(StageCryptoVerified)

	identity, err := idtoken.ExtractIdentity(claims)
	if err != nil {
		return nil, run.reject(ClaimsError(err), "missing_user_claims")
	}
	run.identity = identity
	run.advance(StageClaimsExtracted)

	decision := s.policy.Evaluate(ctx, &policy.EvaluationRequest{
		Email:       identity.Email,
		TenantID:    identity.TenantID,
		IssuedAt:    claims.IssuedAt(),
		AuthMethods: claims.AuthMethods(),
	})
	if !decision.Allowed {
		reason := "policy_denied"
		derr := PolicyError(nil)
		if decision.Violation != nil {
			reason = string(decision.Violation.Type)
			derr = PolicyError(errors.New(decision.Violation.Message)).WithDetail("check", reason)
		}
		return nil, run.reject(derr, reason)
	}
	run.advance(StagePolicyPassed)

	issued, err := s.mint(run, identity)
	if err != nil {
		return nil, err
	}

	run.succeed(issued.SessionID)
	return &ValidateResult{
		User:         identity,
		SessionToken: issued.Token,
		SessionID:    issued.SessionID,
		ExpiresAt:    issued.ExpiresAt,
	}, nil
}

// RefreshSession mints a new session for an already authenticated identity.
// The previous session stays valid until it expires; there is no revocation.
func (s *SSOService) RefreshSession(ctx context.Context, identity *models.IdentityRecord, previousSessionID string) (*session.Issued, error) {
	run := &pipelineRun{svc: s, ctx: ctx, action: models.SignInActionRefresh, stage: StageReceived, identity: identity}

	if identity == nil || identity.ID == "" || identity.Email == "" {
		return nil, run.reject(unauthorized(), "missing_session_identity")
	}
	run.details = map[string]string{"previous_session_id": previousSessionID}
	run.advance(StageClaimsExtracted)

	issued, err := s.mint(run, identity)
	if err != nil {
		return nil, err
	}
	run.succeed(issued.SessionID)
	return issued, nil
}

// Logout records the end of a session. Sessions are stateless, so the
// credential itself remains valid until expiry.
func (s *SSOService) Logout(ctx context.Context, identity *models.IdentityRecord, sessionID string) error {
	run := &pipelineRun{svc: s, ctx: ctx, action: models.SignInActionLogout, stage: StageReceived, identity: identity}

	if identity == nil || identity.ID == "" {
		return run.reject(unauthorized(), "missing_session_identity")
	}
	run.succeed(sessionID)
	return nil
}

func unauthorized() *DomainError {
	return NewDomainError(ErrorTypeUnauthorized, CodeUnauthorized, ErrUnauthorized.Message, nil)
}

func (s *SSOService) mint(run *pipelineRun, identity *models.IdentityRecord) (*session.Issued, error) {
	issued, err := s.minter.Mint(identity)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrSigningKeyTooShort):
			return nil, run.reject(ConfigurationError(err), "signing_key_too_short")
		case errors.Is(err, session.ErrMissingIdentity):
			return nil, run.reject(ClaimsError(err), "missing_user_claims")
		default:
			return nil, run.reject(WrapInternal(err), "session_signing_failed")
		}
	}
	run.advance(StageSessionMinted)
	return issued, nil
}

// pipelineRun tracks one request through the stages for logging and audit
type pipelineRun struct {
	svc      *SSOService
	ctx      context.Context
	action   models.SignInAction
	source   string
	stage    Stage
	identity *models.IdentityRecord
	details  map[string]string
}

func (r *pipelineRun) advance(stage Stage) {
	r.stage = stage
	r.svc.logger.Debug(r.ctx, "sso stage reached",
		zap.String("action", string(r.action)),
		zap.String("stage", string(stage)))
}

// reject logs the failure at the level its type calls for, records the
// audit event and returns the classified error.
func (r *pipelineRun) reject(derr *DomainError, reason string) error {
	derr.WithDetail("stage", string(r.stage)).WithDetail("reason", reason)

	fields := []zap.Field{
		zap.String("state", string(StageRejected)),
		zap.String("action", string(r.action)),
		zap.String("stage", string(r.stage)),
		zap.String("reason", reason),
		zap.String("code", derr.Code),
		zap.Error(derr.Err),
	}
	if r.identity != nil {
		fields = append(fields, zap.String("user_id", r.identity.ID))
	}
	switch derr.Type {
	case ErrorTypeConfiguration, ErrorTypeInternal:
		r.svc.logger.Error(r.ctx, "sso request failed", fields...)
	default:
		r.svc.logger.Warn(r.ctx, "sso request rejected", fields...)
	}

	event := r.event(models.SignInOutcomeRejected).WithRejection(reason, derr.Code)
	r.record(event)
	return derr
}

func (r *pipelineRun) succeed(sessionID string) {
	r.stage = StageResponded
	r.svc.logger.Info(r.ctx, "sso request succeeded",
		zap.String("action", string(r.action)),
		zap.String("user_id", r.identity.ID),
		zap.String("session_id", sessionID))

	r.record(r.event(models.SignInOutcomeSucceeded).WithSession(sessionID))
}

func (r *pipelineRun) event(outcome models.SignInOutcome) *models.SignInEvent {
	event := models.NewSignInEvent(r.action, outcome, string(r.stage)).
		WithIdentity(r.identity).
		WithSource(r.source).
		WithRequest(shared.RequestID(r.ctx), shared.RemoteAddr(r.ctx), shared.UserAgent(r.ctx))
	if len(r.details) > 0 {
		event.WithDetails(r.details)
	}
	return event
}

func (r *pipelineRun) record(event *models.SignInEvent) {
	if r.svc.recorder == nil {
		return
	}
	if err := r.svc.recorder.Record(event); err != nil {
		r.svc.logger.Warn(r.ctx, "sign-in event not recorded", zap.Error(err))
	}
}
