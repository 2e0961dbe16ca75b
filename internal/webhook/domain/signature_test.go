package domain

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var sigAnchor = time.Date(2026, 3, 4, 14, 0, 0, 0, time.UTC)

func paystackSign(secret string, payload []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func stripeSign(secret string, payload []byte, at time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", at.Unix())
	mac.Write(payload)
	return fmt.Sprintf("t=%d,v1=%s", at.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func TestPaystackVerifierAcceptsValidSignature(t *testing.T) {
	v := NewPaystackVerifier("sk_test_secret")
	payload := []byte(`{"event":"charge.success","data":{"reference":"ps_ref_1"}}`)

	assert.Equal(t, ReasonNone, v.Verify(payload, paystackSign("sk_test_secret", payload), sigAnchor))
}

func TestPaystackVerifierRejectsTamperedPayload(t *testing.T) {
	v := NewPaystackVerifier("sk_test_secret")
	payload := []byte(`{"event":"charge.success","amount":1000}`)
	sig := paystackSign("sk_test_secret", payload)

	tampered := []byte(`{"event":"charge.success","amount":9000}`)
	assert.Equal(t, ReasonBadSignature, v.Verify(tampered, sig, sigAnchor))
}

func TestPaystackVerifierRejectsWrongSecret(t *testing.T) {
	v := NewPaystackVerifier("sk_test_secret")
	payload := []byte(`{"event":"charge.success"}`)

	assert.Equal(t, ReasonBadSignature, v.Verify(payload, paystackSign("sk_other", payload), sigAnchor))
}

func TestPaystackVerifierRejectsGarbageHeader(t *testing.T) {
	v := NewPaystackVerifier("sk_test_secret")

	assert.Equal(t, ReasonMalformedHeader, v.Verify([]byte("{}"), "not-hex!", sigAnchor))
	assert.Equal(t, ReasonMalformedHeader, v.Verify([]byte("{}"), "", sigAnchor))
}

func TestStripeVerifierAcceptsValidSignature(t *testing.T) {
	v := NewStripeVerifier("whsec_test", 5*time.Minute)
	payload := []byte(`{"id":"evt_1","type":"payment_intent.succeeded"}`)

	assert.Equal(t, ReasonNone, v.Verify(payload, stripeSign("whsec_test", payload, sigAnchor), sigAnchor))
}

func TestStripeVerifierRejectsSingleByteMutation(t *testing.T) {
	v := NewStripeVerifier("whsec_test", 5*time.Minute)
	payload := []byte(`{"id":"evt_1","amount":100}`)
	header := stripeSign("whsec_test", payload, sigAnchor)

	mutated := []byte(`{"id":"evt_1","amount":900}`)
	assert.Equal(t, ReasonBadSignature, v.Verify(mutated, header, sigAnchor))
}

func TestStripeVerifierRejectsStaleTimestampDespiteValidMAC(t *testing.T) {
	v := NewStripeVerifier("whsec_test", 5*time.Minute)
	payload := []byte(`{"id":"evt_old"}`)

	// Signed ten minutes ago; the MAC is genuine but the window has passed.
	signedAt := sigAnchor.Add(-10 * time.Minute)
	assert.Equal(t, ReasonReplayTooOld, v.Verify(payload, stripeSign("whsec_test", payload, signedAt), sigAnchor))
}

func TestStripeVerifierAcceptsWithinReplayWindow(t *testing.T) {
	v := NewStripeVerifier("whsec_test", 5*time.Minute)
	payload := []byte(`{"id":"evt_recent"}`)

	signedAt := sigAnchor.Add(-4 * time.Minute)
	assert.Equal(t, ReasonNone, v.Verify(payload, stripeSign("whsec_test", payload, signedAt), sigAnchor))
}

func TestStripeVerifierRejectsMalformedHeaders(t *testing.T) {
	v := NewStripeVerifier("whsec_test", 5*time.Minute)
	payload := []byte(`{}`)

	for _, header := range []string{
		"",
		"v1=deadbeef",
		"t=notanumber,v1=deadbeef",
		fmt.Sprintf("t=%d", sigAnchor.Unix()),
		"t=0,v1=zz",
	} {
		assert.Equal(t, ReasonMalformedHeader, v.Verify(payload, header, sigAnchor), "header %q", header)
	}
}
