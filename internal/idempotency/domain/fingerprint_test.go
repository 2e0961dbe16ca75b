package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprintIgnoresFieldOrder(t *testing.T) {
	a, err := Fingerprint(map[string]interface{}{
		"course_id": "course-9",
		"amount":    "5000",
		"currency":  "NGN",
	})
	require.NoError(t, err)

	b, err := Fingerprint(map[string]interface{}{
		"currency":  "NGN",
		"amount":    "5000",
		"course_id": "course-9",
	})
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestFingerprintDetectsValueChange(t *testing.T) {
	a, err := Fingerprint(map[string]interface{}{"amount": "5000"})
	require.NoError(t, err)
	b, err := Fingerprint(map[string]interface{}{"amount": "5001"})
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestFingerprintRedactsSensitiveFields(t *testing.T) {
	// Different PINs fingerprint identically: secrets never influence the
	// digest, so they can never be recovered from it.
	a, err := Fingerprint(map[string]interface{}{"amount": "5000", "pin": "1234"})
	require.NoError(t, err)
	b, err := Fingerprint(map[string]interface{}{"amount": "5000", "pin": "9999"})
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestFingerprintRedactsNestedFields(t *testing.T) {
	a, err := Fingerprint(map[string]interface{}{
		"amount": "5000",
		"card":   map[string]interface{}{"card_number": "4111111111111111", "cvv": "123"},
	})
	require.NoError(t, err)
	b, err := Fingerprint(map[string]interface{}{
		"amount": "5000",
		"card":   map[string]interface{}{"card_number": "5500000000000004", "cvv": "999"},
	})
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestFingerprintNilParams(t *testing.T) {
	a, err := Fingerprint(nil)
	require.NoError(t, err)
	assert.NotEmpty(t, a)
}
