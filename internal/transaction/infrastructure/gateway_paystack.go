package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/calculus-guy/paymentscore/internal/transaction/domain"
	"github.com/calculus-guy/paymentscore/pkg/metrics"
	"github.com/shopspring/decimal"
)

// PaystackGateway drives the Paystack REST API. Amounts go over the wire
// in kobo (minor units), responses carry a boolean envelope status plus a
// data object.
type PaystackGateway struct {
	cfg    GatewayConfig
	client *gatewayClient
}

func NewPaystackGateway(cfg GatewayConfig, m *metrics.Metrics) *PaystackGateway {
	return &PaystackGateway{cfg: cfg, client: newGatewayClient("paystack", cfg, m)}
}

func (g *PaystackGateway) Name() string { return "paystack" }

type paystackEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type paystackChargeData struct {
	AuthorizationURL string `json:"authorization_url"`
	Reference        string `json:"reference"`
	Status           string `json:"status"`
}

func (g *PaystackGateway) InitiateCharge(ctx context.Context, req domain.ChargeRequest) (*domain.GatewayResult, error) {
	payload, err := json.Marshal(map[string]any{
		"amount":    minorUnits(req.Amount),
		"currency":  req.Currency,
		"reference": req.Reference,
		"metadata":  map[string]string{"subject_id": req.SubjectID},
	})
	if err != nil {
		return nil, err
	}
	data, err := g.call(ctx, "initiate_charge", "POST", g.cfg.BaseURL+"/transaction/initialize", payload)
	if err != nil {
		return nil, err
	}
	var charge paystackChargeData
	if err := json.Unmarshal(data, &charge); err != nil {
		return nil, &domain.GatewayUnreachableError{Gateway: g.Name(), Cause: err}
	}
	return &domain.GatewayResult{
		Reference:   req.Reference,
		ProviderRef: charge.Reference,
		Status:      "pending",
		Succeeded:   true,
		AuthURL:     charge.AuthorizationURL,
	}, nil
}

func (g *PaystackGateway) VerifyCharge(ctx context.Context, reference string) (*domain.GatewayResult, error) {
	data, err := g.call(ctx, "verify_charge", "GET", g.cfg.BaseURL+"/transaction/verify/"+reference, nil)
	if err != nil {
		return nil, err
	}
	var charge paystackChargeData
	if err := json.Unmarshal(data, &charge); err != nil {
		return nil, &domain.GatewayUnreachableError{Gateway: g.Name(), Cause: err}
	}
	return &domain.GatewayResult{
		Reference:   reference,
		ProviderRef: charge.Reference,
		Status:      charge.Status,
		Succeeded:   charge.Status == "success",
	}, nil
}

type paystackTransferData struct {
	TransferCode string `json:"transfer_code"`
	Status       string `json:"status"`
}

func (g *PaystackGateway) InitiatePayout(ctx context.Context, req domain.PayoutRequest) (*domain.GatewayResult, error) {
	payload, err := json.Marshal(map[string]any{
		"source":    "balance",
		"amount":    minorUnits(req.Amount),
		"currency":  req.Currency,
		"reference": req.Reference,
		"reason":    "payout",
		"recipient": map[string]string{
			"type":           "nuban",
			"bank_code":      req.BankCode,
			"account_number": req.AccountNumber,
			"name":           req.AccountName,
		},
	})
	if err != nil {
		return nil, err
	}
	data, err := g.call(ctx, "initiate_payout", "POST", g.cfg.BaseURL+"/transfer", payload)
	if err != nil {
		return nil, err
	}
	var transfer paystackTransferData
	if err := json.Unmarshal(data, &transfer); err != nil {
		return nil, &domain.GatewayUnreachableError{Gateway: g.Name(), Cause: err}
	}
	return &domain.GatewayResult{
		Reference:   req.Reference,
		ProviderRef: transfer.TransferCode,
		Status:      transfer.Status,
		Succeeded:   transfer.Status != "failed",
	}, nil
}

// call performs one request and decodes the Paystack envelope. A 4xx or a
// false envelope status is a definitive refusal.
func (g *PaystackGateway) call(ctx context.Context, name, method, url string, payload []byte) (json.RawMessage, error) {
	resp, err := g.client.do(ctx, name, func(ctx context.Context) (*http.Request, error) {
		return jsonRequest(ctx, method, url, g.cfg.SecretKey, payload)
	})
	if err != nil {
		return nil, err
	}
	var env paystackEnvelope
	if err := json.Unmarshal(resp.body, &env); err != nil {
		return nil, &domain.GatewayUnreachableError{Gateway: g.Name(), Cause: err}
	}
	if resp.status >= 400 || !env.Status {
		return nil, &domain.GatewayRejectedError{
			Gateway: g.Name(),
			Code:    fmt.Sprintf("http_%d", resp.status),
			Message: env.Message,
		}
	}
	return env.Data, nil
}

// minorUnits converts a major-unit decimal amount to integer minor units.
func minorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).IntPart()
}
