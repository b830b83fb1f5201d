package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"
)

func stripeHeader(secret string, payload []byte) string {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(fmt.Sprintf("%d.", ts)))
	mac.Write(payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func stripeEvent(eventType, intentStatus string) []byte {
	return []byte(fmt.Sprintf(`{
  "id": "evt_1",
  "object": "event",
  "type": %q,
  "data": {"object": {
    "id": "pi_123",
    "object": "payment_intent",
    "amount": 80000,
    "currency": "inr",
    "status": %q,
    "last_payment_error": {"message": "Your card was declined."}
  }}
}`, eventType, intentStatus))
}

func TestStripeVerifyCallback(t *testing.T) {
	const secret = "whsec_test"
	gw := NewStripeGateway("sk_test_123", secret)
	ctx := context.Background()

	succeeded := stripeEvent("payment_intent.succeeded", "succeeded")
	failed := stripeEvent("payment_intent.payment_failed", "requires_payment_method")
	other := stripeEvent("charge.updated", "succeeded")

	tests := []struct {
		name         string
		body         []byte
		signature    string
		wantVerified bool
		wantSuccess  bool
		wantIgnored  bool
	}{
		{"succeeded", succeeded, stripeHeader(secret, succeeded), true, true, false},
		{"failed", failed, stripeHeader(secret, failed), true, false, false},
		{"other event", other, stripeHeader(secret, other), true, false, true},
		{"bad signature", succeeded, stripeHeader("whsec_other", succeeded), false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := gw.VerifyCallback(ctx, &Callback{Body: tt.body, Signature: tt.signature})
			if err != nil {
				t.Fatalf("VerifyCallback() error = %v", err)
			}
			if res.Verified != tt.wantVerified || res.Success != tt.wantSuccess || res.Ignored != tt.wantIgnored {
				t.Errorf("got verified=%v success=%v ignored=%v", res.Verified, res.Success, res.Ignored)
			}
			if tt.wantVerified && !tt.wantIgnored {
				if res.GatewayOrderID != "pi_123" || res.AmountSubunits != 80000 {
					t.Errorf("order=%q amount=%d", res.GatewayOrderID, res.AmountSubunits)
				}
			}
			if tt.name == "failed" && res.FailureReason != "Your card was declined." {
				t.Errorf("FailureReason = %q", res.FailureReason)
			}
		})
	}
}
