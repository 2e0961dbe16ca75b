package domain

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// PaystackVerifier checks the x-paystack-signature header: HMAC-SHA512 of
// the raw body, hex encoded.
type PaystackVerifier struct {
	secret []byte
}

func NewPaystackVerifier(secret string) *PaystackVerifier {
	return &PaystackVerifier{secret: []byte(secret)}
}

func (v *PaystackVerifier) Provider() string { return "paystack" }

func (v *PaystackVerifier) Verify(rawPayload []byte, signatureHeader string, _ time.Time) RejectReason {
	expected, err := hex.DecodeString(strings.TrimSpace(signatureHeader))
	if err != nil || len(expected) == 0 {
		return ReasonMalformedHeader
	}
	mac := hmac.New(sha512.New, v.secret)
	mac.Write(rawPayload)
	if !hmac.Equal(mac.Sum(nil), expected) {
		return ReasonBadSignature
	}
	return ReasonNone
}

// StripeVerifier checks the stripe-signature header: `t=<unix>,v1=<hex>`
// where v1 is HMAC-SHA256 over "<t>.<payload>". The embedded timestamp is
// bound by the replay window regardless of delivery delay.
type StripeVerifier struct {
	secret       []byte
	replayWindow time.Duration
}

func NewStripeVerifier(secret string, replayWindow time.Duration) *StripeVerifier {
	if replayWindow <= 0 {
		replayWindow = 5 * time.Minute
	}
	return &StripeVerifier{secret: []byte(secret), replayWindow: replayWindow}
}

func (v *StripeVerifier) Provider() string { return "stripe" }

func (v *StripeVerifier) Verify(rawPayload []byte, signatureHeader string, now time.Time) RejectReason {
	var (
		timestamp  int64
		signatures [][]byte
	)
	for _, part := range strings.Split(signatureHeader, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return ReasonMalformedHeader
		}
		switch key {
		case "t":
			ts, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return ReasonMalformedHeader
			}
			timestamp = ts
		case "v1":
			sig, err := hex.DecodeString(value)
			if err != nil {
				return ReasonMalformedHeader
			}
			signatures = append(signatures, sig)
		}
	}
	if timestamp == 0 || len(signatures) == 0 {
		return ReasonMalformedHeader
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(rawPayload)
	expected := mac.Sum(nil)

	valid := false
	for _, sig := range signatures {
		if hmac.Equal(expected, sig) {
			valid = true
		}
	}
	if !valid {
		return ReasonBadSignature
	}

	// Replay bound is checked only after the MAC, so a forged timestamp
	// cannot probe the window.
	if now.Sub(time.Unix(timestamp, 0)) > v.replayWindow {
		return ReasonReplayTooOld
	}
	return ReasonNone
}
