package application

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/calculus-guy/paymentscore/internal/webhook/domain"
	"github.com/calculus-guy/paymentscore/pkg/metrics"
	"github.com/calculus-guy/paymentscore/pkg/ratelimit"
)

const dedupWindow = 24 * time.Hour

// ProviderPolicy tunes the per-origin protections for one provider.
type ProviderPolicy struct {
	OriginRatePerMinute int
	OriginBurst         int
	MaxSignatureFails   int
	BlockDuration       time.Duration
	FailureWindow       time.Duration
}

func (p ProviderPolicy) withDefaults() ProviderPolicy {
	if p.OriginRatePerMinute <= 0 {
		p.OriginRatePerMinute = 120
	}
	if p.OriginBurst <= 0 {
		p.OriginBurst = p.OriginRatePerMinute
	}
	if p.MaxSignatureFails <= 0 {
		p.MaxSignatureFails = 5
	}
	if p.BlockDuration <= 0 {
		p.BlockDuration = 30 * time.Minute
	}
	if p.FailureWindow <= 0 {
		p.FailureWindow = 15 * time.Minute
	}
	return p
}

// Request is one inbound webhook delivery.
type Request struct {
	Provider        string
	RawPayload      []byte
	SignatureHeader string
	EventID         string
	OriginIP        string
}

// Authenticator gates inbound gateway callbacks: origin throttling, then
// the provider signature scheme, then event dedup. Only a first-seen valid
// event should be forwarded to the router.
type Authenticator struct {
	verifiers map[string]domain.Verifier
	policies  map[string]ProviderPolicy
	dedup     domain.DedupStore
	blocks    domain.OriginBlockStore
	limiter   ratelimit.RateLimiter
	audits    domain.AuditRepository
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

func NewAuthenticator(
	verifiers []domain.Verifier,
	policies map[string]ProviderPolicy,
	dedup domain.DedupStore,
	blocks domain.OriginBlockStore,
	limiter ratelimit.RateLimiter,
	audits domain.AuditRepository,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Authenticator {
	byName := make(map[string]domain.Verifier, len(verifiers))
	for _, v := range verifiers {
		byName[v.Provider()] = v
	}
	normalized := make(map[string]ProviderPolicy, len(policies))
	for provider, policy := range policies {
		normalized[strings.ToLower(provider)] = policy.withDefaults()
	}
	return &Authenticator{
		verifiers: byName,
		policies:  normalized,
		dedup:     dedup,
		blocks:    blocks,
		limiter:   limiter,
		audits:    audits,
		metrics:   m,
		logger:    logger,
		now:       time.Now,
	}
}

// Validate runs the full authentication chain for one delivery.
func (a *Authenticator) Validate(ctx context.Context, req Request) (*domain.Result, error) {
	provider := strings.ToLower(req.Provider)
	if a.metrics != nil {
		a.metrics.WebhooksReceived.WithLabelValues(provider).Inc()
	}

	verifier, ok := a.verifiers[provider]
	if !ok {
		return a.reject(ctx, req, domain.ReasonProviderUnknown), nil
	}
	policy := a.policies[provider].withDefaults()

	if req.OriginIP != "" {
		remaining, reason, err := a.blocks.BlockedFor(ctx, req.OriginIP)
		if err != nil {
			return nil, err
		}
		if remaining > 0 {
			a.logger.Warn("webhook origin blocked",
				"provider", provider,
				"origin_ip", req.OriginIP,
				"remaining", remaining,
				"block_reason", reason,
			)
			return a.reject(ctx, req, domain.ReasonOriginBlocked), nil
		}

		if a.limiter != nil {
			res, err := a.limiter.Allow(ctx, "webhook:origin:"+req.OriginIP, ratelimit.Limit{
				Rate:   policy.OriginRatePerMinute,
				Period: time.Minute,
				Burst:  policy.OriginBurst,
			})
			if err != nil {
				// Throttling is protection, not correctness; a limiter
				// outage must not drop provider callbacks.
				a.logger.Error("webhook rate limiter unavailable", "origin_ip", req.OriginIP, "error", err)
			} else if !res.Allowed {
				// Denials feed the same streak as signature failures, so
				// an origin that keeps hammering the limit gets blocked
				// outright instead of retrying forever.
				fails, ferr := a.blocks.RecordFailure(ctx, req.OriginIP, policy.FailureWindow)
				if ferr != nil {
					a.logger.Error("rate limit streak tracking failed", "origin_ip", req.OriginIP, "error", ferr)
				} else if fails >= policy.MaxSignatureFails {
					a.escalateOrigin(ctx, req.OriginIP, policy, "persistent rate limit excess")
				}
				return a.reject(ctx, req, domain.ReasonOriginRateLimit), nil
			}
		}
	}

	if reason := verifier.Verify(req.RawPayload, req.SignatureHeader, a.now()); reason != domain.ReasonNone {
		if req.OriginIP != "" && (reason == domain.ReasonBadSignature || reason == domain.ReasonMalformedHeader) {
			fails, err := a.blocks.RecordFailure(ctx, req.OriginIP, policy.FailureWindow)
			if err != nil {
				a.logger.Error("signature failure tracking failed", "origin_ip", req.OriginIP, "error", err)
			} else if fails >= policy.MaxSignatureFails {
				a.escalateOrigin(ctx, req.OriginIP, policy, "repeated signature failures")
			}
		}
		return a.reject(ctx, req, reason), nil
	}

	if req.OriginIP != "" {
		if err := a.blocks.ClearFailures(ctx, req.OriginIP); err != nil {
			a.logger.Error("failure streak clear failed", "origin_ip", req.OriginIP, "error", err)
		}
	}

	first, err := a.dedup.MarkSeen(ctx, provider, req.EventID, dedupWindow)
	if err != nil {
		return nil, err
	}
	result := &domain.Result{Valid: true, Duplicate: !first}
	a.audit(ctx, req, result)
	return result, nil
}

func (a *Authenticator) escalateOrigin(ctx context.Context, originIP string, policy ProviderPolicy, reason string) {
	if err := a.blocks.Block(ctx, originIP, policy.BlockDuration, reason); err != nil {
		a.logger.Error("origin block failed", "origin_ip", originIP, "error", err)
		return
	}
	a.logger.Warn("webhook origin auto-blocked",
		"origin_ip", originIP,
		"duration", policy.BlockDuration,
		"reason", reason,
	)
}

func (a *Authenticator) reject(ctx context.Context, req Request, reason domain.RejectReason) *domain.Result {
	if a.metrics != nil {
		a.metrics.WebhooksRejected.WithLabelValues(strings.ToLower(req.Provider), string(reason)).Inc()
	}
	result := &domain.Result{Valid: false, Reason: reason}
	a.audit(ctx, req, result)
	return result
}

func (a *Authenticator) audit(ctx context.Context, req Request, result *domain.Result) {
	if a.audits == nil {
		return
	}
	err := a.audits.Save(ctx, &domain.Audit{
		Provider:  strings.ToLower(req.Provider),
		EventID:   req.EventID,
		OriginIP:  req.OriginIP,
		Valid:     result.Valid,
		Duplicate: result.Duplicate,
		Reason:    result.Reason,
		CreatedAt: a.now(),
	})
	if err != nil {
		a.logger.Error("webhook audit save failed", "provider", req.Provider, "event_id", req.EventID, "error", err)
	}
}
