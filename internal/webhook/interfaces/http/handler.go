package http

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	txnapp "github.com/calculus-guy/paymentscore/internal/transaction/application"
	txndomain "github.com/calculus-guy/paymentscore/internal/transaction/domain"
	"github.com/calculus-guy/paymentscore/internal/webhook/application"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const maxPayloadBytes = 1 << 20

// signatureHeaders maps provider to the header its scheme lives in.
var signatureHeaders = map[string]string{
	"paystack": "x-paystack-signature",
	"stripe":   "stripe-signature",
}

type Handler struct {
	auth   *application.Authenticator
	router *txnapp.Router
	logger *slog.Logger
}

func NewHandler(auth *application.Authenticator, router *txnapp.Router, logger *slog.Logger) *Handler {
	return &Handler{auth: auth, router: router, logger: logger}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/webhooks/:provider", h.HandleWebhook)
}

func (h *Handler) HandleWebhook(c *gin.Context) {
	provider := strings.ToLower(c.Param("provider"))
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxPayloadBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable payload"})
		return
	}

	event, perr := parseEvent(provider, payload)
	if perr != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": perr.Error()})
		return
	}

	result, err := h.auth.Validate(c.Request.Context(), application.Request{
		Provider:        provider,
		RawPayload:      payload,
		SignatureHeader: c.GetHeader(signatureHeaders[provider]),
		EventID:         event.ID,
		OriginIP:        c.ClientIP(),
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "webhook validation failed"})
		return
	}
	if !result.Valid {
		c.JSON(http.StatusUnauthorized, gin.H{"error": string(result.Reason)})
		return
	}
	if result.Duplicate {
		// Already handled; ack so the provider stops redelivering.
		c.JSON(http.StatusOK, gin.H{"status": "ok", "duplicate": true})
		return
	}

	if event.Credit != nil {
		h.submitCredit(c, provider, event)
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// submitCredit drives a successful charge event through the router. The
// idempotency key is derived from the event id, so a redelivery that
// somehow clears dedup still replays instead of re-crediting.
func (h *Handler) submitCredit(c *gin.Context, provider string, event *providerEvent) {
	params, err := json.Marshal(txndomain.WebhookCreditParams{
		Amount:    event.Credit.Amount,
		Currency:  event.Credit.Currency,
		Provider:  provider,
		Reference: event.Credit.Reference,
	})
	if err != nil {
		h.logger.Error("credit params marshal failed", "provider", provider, "event_id", event.ID, "error", err)
		return
	}

	key := uuid.NewSHA1(uuid.NameSpaceURL, []byte("webhook:"+provider+":"+event.ID)).String()
	outcome, err := h.router.SubmitOperation(c.Request.Context(), txnapp.Request{
		IdempotencyKey: key,
		SubjectID:      event.Credit.SubjectID,
		OriginID:       "webhook:" + provider,
		OperationType:  txndomain.OpWebhookCredit,
		Params:         params,
	})
	if err != nil {
		h.logger.Error("webhook credit submission failed", "provider", provider, "event_id", event.ID, "error", err)
		return
	}
	if outcome.Status != txndomain.OutcomeCompleted {
		h.logger.Warn("webhook credit not completed",
			"provider", provider,
			"event_id", event.ID,
			"status", outcome.Status,
			"reason", outcome.Reason,
		)
	}
}

type creditEvent struct {
	SubjectID string
	Amount    decimal.Decimal
	Currency  string
	Reference string
}

type providerEvent struct {
	ID     string
	Credit *creditEvent
}

// parseEvent extracts the provider-scoped event id and, for successful
// charge events, the credit details.
func parseEvent(provider string, payload []byte) (*providerEvent, error) {
	switch provider {
	case "paystack":
		return parsePaystackEvent(payload)
	case "stripe":
		return parseStripeEvent(payload)
	default:
		// Unknown providers still get an event id so the authenticator can
		// audit the rejection.
		return &providerEvent{ID: "unknown"}, nil
	}
}

func parsePaystackEvent(payload []byte) (*providerEvent, error) {
	var body struct {
		Event string `json:"event"`
		Data  struct {
			ID        json.Number     `json:"id"`
			Reference string          `json:"reference"`
			Amount    decimal.Decimal `json:"amount"`
			Currency  string          `json:"currency"`
			Metadata  struct {
				SubjectID string `json:"subject_id"`
			} `json:"metadata"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("malformed paystack payload: %w", err)
	}
	event := &providerEvent{ID: body.Data.Reference}
	if event.ID == "" {
		event.ID = body.Data.ID.String()
	}
	if body.Event == "charge.success" && body.Data.Metadata.SubjectID != "" {
		event.Credit = &creditEvent{
			SubjectID: body.Data.Metadata.SubjectID,
			Amount:    body.Data.Amount.Div(decimal.NewFromInt(100)),
			Currency:  body.Data.Currency,
			Reference: body.Data.Reference,
		}
	}
	return event, nil
}

func parseStripeEvent(payload []byte) (*providerEvent, error) {
	var body struct {
		ID   string `json:"id"`
		Type string `json:"type"`
		Data struct {
			Object struct {
				ID       string          `json:"id"`
				Amount   decimal.Decimal `json:"amount"`
				Currency string          `json:"currency"`
				Metadata struct {
					SubjectID string `json:"subject_id"`
				} `json:"metadata"`
			} `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("malformed stripe payload: %w", err)
	}
	event := &providerEvent{ID: body.ID}
	if body.Type == "payment_intent.succeeded" && body.Data.Object.Metadata.SubjectID != "" {
		event.Credit = &creditEvent{
			SubjectID: body.Data.Object.Metadata.SubjectID,
			Amount:    body.Data.Object.Amount.Div(decimal.NewFromInt(100)),
			Currency:  strings.ToUpper(body.Data.Object.Currency),
			Reference: body.Data.Object.ID,
		}
	}
	return event, nil
}
