package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	OpPurchase            = "purchase"
	OpWithdrawal          = "withdrawal"
	OpTransfer            = "transfer"
	OpWebhookCredit       = "webhook_credit"
	OpPaymentVerification = "payment_verification"
)

var ErrUnknownOperationType = errors.New("unknown operation type")

// MissingParametersError lists the absent or invalid fields of a request.
type MissingParametersError struct {
	Fields []string
}

func (e *MissingParametersError) Error() string {
	return "missing parameters: " + strings.Join(e.Fields, ", ")
}

// Params is the validated, typed view of one operation's inputs. Exactly
// one of the operation structs is populated, matching OperationType.
type Params struct {
	OperationType string

	Purchase     *PurchaseParams
	Withdrawal   *WithdrawalParams
	Transfer     *TransferParams
	Credit       *WebhookCreditParams
	Verification *PaymentVerificationParams
}

// Amount returns the monetary amount of the operation; zero for
// verification requests.
func (p *Params) Amount() decimal.Decimal {
	switch p.OperationType {
	case OpPurchase:
		return p.Purchase.Amount
	case OpWithdrawal:
		return p.Withdrawal.Amount
	case OpTransfer:
		return p.Transfer.Amount
	case OpWebhookCredit:
		return p.Credit.Amount
	default:
		return decimal.Zero
	}
}

// Currency returns the upper-cased ISO currency of the operation.
func (p *Params) Currency() string {
	var currency string
	switch p.OperationType {
	case OpPurchase:
		currency = p.Purchase.Currency
	case OpWithdrawal:
		currency = p.Withdrawal.Currency
	case OpTransfer:
		currency = p.Transfer.Currency
	case OpWebhookCredit:
		currency = p.Credit.Currency
	case OpPaymentVerification:
		currency = p.Verification.Currency
	}
	return strings.ToUpper(currency)
}

type PurchaseParams struct {
	ContentID string          `json:"content_id"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
}

type WithdrawalParams struct {
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	BankCode      string          `json:"bank_code"`
	AccountNumber string          `json:"account_number"`
	AccountName   string          `json:"account_name"`
}

type TransferParams struct {
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	RecipientID string          `json:"recipient_id"`
	Narration   string          `json:"narration,omitempty"`
}

type WebhookCreditParams struct {
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Provider  string          `json:"provider"`
	Reference string          `json:"reference"`
}

type PaymentVerificationParams struct {
	Reference string `json:"reference"`
	Currency  string `json:"currency"`
}

// ParseParams decodes and validates the raw request body for one operation
// type. Validation failures are MissingParametersError; nothing is mutated
// before this passes.
func ParseParams(operationType string, raw json.RawMessage) (*Params, error) {
	params := &Params{OperationType: operationType}
	var missing []string

	requireAmount := func(amount decimal.Decimal) {
		if !amount.IsPositive() {
			missing = append(missing, "amount")
		}
	}
	requireField := func(name, value string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}

	switch operationType {
	case OpPurchase:
		var p PurchaseParams
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, &MissingParametersError{Fields: []string{"params"}}
		}
		requireField("content_id", p.ContentID)
		requireAmount(p.Amount)
		requireField("currency", p.Currency)
		params.Purchase = &p

	case OpWithdrawal:
		var p WithdrawalParams
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, &MissingParametersError{Fields: []string{"params"}}
		}
		requireAmount(p.Amount)
		requireField("currency", p.Currency)
		requireField("bank_code", p.BankCode)
		requireField("account_number", p.AccountNumber)
		requireField("account_name", p.AccountName)
		params.Withdrawal = &p

	case OpTransfer:
		var p TransferParams
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, &MissingParametersError{Fields: []string{"params"}}
		}
		requireAmount(p.Amount)
		requireField("currency", p.Currency)
		requireField("recipient_id", p.RecipientID)
		params.Transfer = &p

	case OpWebhookCredit:
		var p WebhookCreditParams
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, &MissingParametersError{Fields: []string{"params"}}
		}
		requireAmount(p.Amount)
		requireField("currency", p.Currency)
		requireField("provider", p.Provider)
		requireField("reference", p.Reference)
		params.Credit = &p

	case OpPaymentVerification:
		var p PaymentVerificationParams
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, &MissingParametersError{Fields: []string{"params"}}
		}
		requireField("reference", p.Reference)
		requireField("currency", p.Currency)
		params.Verification = &p

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownOperationType, operationType)
	}

	if len(missing) > 0 {
		return nil, &MissingParametersError{Fields: missing}
	}
	return params, nil
}

// GatewayFor returns the gateway a currency routes to. The pairing is fixed
// and case-insensitive; anything off the table fails validation.
func GatewayFor(currency string) (string, error) {
	switch strings.ToUpper(currency) {
	case "NGN":
		return "paystack", nil
	case "USD":
		return "stripe", nil
	default:
		return "", &MissingParametersError{Fields: []string{"currency"}}
	}
}
