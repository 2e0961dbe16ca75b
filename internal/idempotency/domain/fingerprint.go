package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
)

// sensitiveFields are redacted before fingerprinting so the stored
// fingerprint never derives from raw secrets or card data.
var sensitiveFields = map[string]struct{}{
	"password":       {},
	"pin":            {},
	"cvv":            {},
	"card_number":    {},
	"account_number": {},
	"token":          {},
	"secret":         {},
	"authorization":  {},
}

const redactedPlaceholder = "[REDACTED]"

// Fingerprint produces a canonical, order-independent digest of operation
// parameters. Maps are serialized with sorted keys, sensitive fields are
// replaced by a placeholder, and the result is hex-encoded SHA-256.
func Fingerprint(params interface{}) (string, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return "", err
	}

	var decoded interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", err
	}

	canonical, err := json.Marshal(redact(decoded))
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// redact walks the decoded value replacing sensitive fields. encoding/json
// already emits map keys in sorted order, which gives the canonical form.
func redact(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			if _, sensitive := sensitiveFields[strings.ToLower(k)]; sensitive {
				out[k] = redactedPlaceholder
				continue
			}
			out[k] = redact(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = redact(item)
		}
		return out
	default:
		return v
	}
}
