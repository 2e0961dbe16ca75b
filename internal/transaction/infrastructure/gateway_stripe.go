package infrastructure

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/calculus-guy/paymentscore/internal/transaction/domain"
	"github.com/calculus-guy/paymentscore/pkg/metrics"
)

// StripeGateway drives the Stripe REST API: form-encoded requests, cent
// amounts, lowercase currency codes, typed errors in the response body.
type StripeGateway struct {
	cfg    GatewayConfig
	client *gatewayClient
}

func NewStripeGateway(cfg GatewayConfig, m *metrics.Metrics) *StripeGateway {
	return &StripeGateway{cfg: cfg, client: newGatewayClient("stripe", cfg, m)}
}

func (g *StripeGateway) Name() string { return "stripe" }

type stripeIntent struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	NextAction *struct {
		RedirectToURL struct {
			URL string `json:"url"`
		} `json:"redirect_to_url"`
	} `json:"next_action"`
}

func (g *StripeGateway) InitiateCharge(ctx context.Context, req domain.ChargeRequest) (*domain.GatewayResult, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(minorUnits(req.Amount), 10))
	form.Set("currency", strings.ToLower(req.Currency))
	form.Set("metadata[reference]", req.Reference)
	form.Set("metadata[subject_id]", req.SubjectID)

	intent, err := g.call(ctx, "initiate_charge", "POST", g.cfg.BaseURL+"/v1/payment_intents", form)
	if err != nil {
		return nil, err
	}
	result := &domain.GatewayResult{
		Reference:   req.Reference,
		ProviderRef: intent.ID,
		Status:      intent.Status,
		Succeeded:   intent.Status != "canceled",
	}
	if intent.NextAction != nil {
		result.AuthURL = intent.NextAction.RedirectToURL.URL
	}
	return result, nil
}

func (g *StripeGateway) VerifyCharge(ctx context.Context, reference string) (*domain.GatewayResult, error) {
	intent, err := g.call(ctx, "verify_charge", "GET", g.cfg.BaseURL+"/v1/payment_intents/"+reference, nil)
	if err != nil {
		return nil, err
	}
	return &domain.GatewayResult{
		Reference:   reference,
		ProviderRef: intent.ID,
		Status:      intent.Status,
		Succeeded:   intent.Status == "succeeded",
	}, nil
}

func (g *StripeGateway) InitiatePayout(ctx context.Context, req domain.PayoutRequest) (*domain.GatewayResult, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(minorUnits(req.Amount), 10))
	form.Set("currency", strings.ToLower(req.Currency))
	form.Set("metadata[reference]", req.Reference)
	form.Set("destination", req.AccountNumber)

	intent, err := g.call(ctx, "initiate_payout", "POST", g.cfg.BaseURL+"/v1/payouts", form)
	if err != nil {
		return nil, err
	}
	return &domain.GatewayResult{
		Reference:   req.Reference,
		ProviderRef: intent.ID,
		Status:      intent.Status,
		Succeeded:   intent.Status != "failed" && intent.Status != "canceled",
	}, nil
}

func (g *StripeGateway) call(ctx context.Context, name, method, endpoint string, form url.Values) (*stripeIntent, error) {
	resp, err := g.client.do(ctx, name, func(ctx context.Context) (*http.Request, error) {
		var body *strings.Reader
		if form != nil {
			body = strings.NewReader(form.Encode())
		} else {
			body = strings.NewReader("")
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+g.cfg.SecretKey)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	})
	if err != nil {
		return nil, err
	}
	var intent stripeIntent
	if err := json.Unmarshal(resp.body, &intent); err != nil {
		return nil, &domain.GatewayUnreachableError{Gateway: g.Name(), Cause: err}
	}
	if resp.status >= 400 {
		rejected := &domain.GatewayRejectedError{Gateway: g.Name(), Code: "request_failed"}
		if intent.Error != nil {
			rejected.Code = intent.Error.Code
			rejected.Message = intent.Error.Message
		}
		return nil, rejected
	}
	return &intent, nil
}
