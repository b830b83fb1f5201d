package payment

import (
	"context"
	"strings"
	"testing"
)

func testPayU() *PayUGateway {
	return NewPayUGateway(PayUConfig{
		MerchantKey: "gtKFFx",
		Salt:        "eCwWELxi",
		BaseURL:     "https://test.payu.in",
		SuccessURL:  "https://example.com/payu/success",
		FailureURL:  "https://example.com/payu/failure",
	})
}

func payuFields() map[string]string {
	return map[string]string{
		"key":         "gtKFFx",
		"txnid":       "abc123",
		"amount":      "800.00",
		"productinfo": "Consultation",
		"firstname":   "Asha",
		"email":       "asha@example.com",
		"udf1":        "appt1",
	}
}

func TestPayUHashes(t *testing.T) {
	gw := testPayU()
	f := payuFields()

	const wantRequest = "1c1b4a8e7d341558e60b68db81cdaafbcaf5801623df9816d0b79146ce3335520e9df96deb969ca04af881f16938a94599ff5730196d1850e5df62e08ad279cd"
	if got := gw.RequestHash(f); got != wantRequest {
		t.Errorf("RequestHash() = %s", got)
	}

	f["status"] = "success"
	const wantResponse = "60a3f9cbe8889b448ff2da1b45892ea8ae94d74e05c7fda98a973a8fa48184b641240530bf966757ea8c90e070a03a2f94b9e1175145fee31af7e4b76767be6a"
	if got := gw.ResponseHash(f); got != wantResponse {
		t.Errorf("ResponseHash() = %s", got)
	}

	if gw.RequestHash(f) == gw.ResponseHash(f) {
		t.Error("request and response hashes must differ")
	}
}

func TestPayUVerifyCallback(t *testing.T) {
	gw := testPayU()
	ctx := context.Background()

	signed := func(status string, mutate func(map[string]string)) map[string]string {
		f := payuFields()
		f["status"] = status
		f["mihpayid"] = "403993715521"
		f["hash"] = gw.ResponseHash(f)
		if mutate != nil {
			mutate(f)
		}
		return f
	}

	tests := []struct {
		name         string
		fields       map[string]string
		wantVerified bool
		wantSuccess  bool
	}{
		{"success", signed("success", nil), true, true},
		{"uppercase hash", signed("success", func(f map[string]string) { f["hash"] = strings.ToUpper(f["hash"]) }), true, true},
		{"failure", signed("failure", func(f map[string]string) { f["error_Message"] = "Bank was unable to authenticate" }), true, false},
		{"tampered amount", signed("success", func(f map[string]string) { f["amount"] = "1.00" }), false, false},
		{"request direction hash", signed("success", func(f map[string]string) { f["hash"] = gw.RequestHash(f) }), false, false},
		{"wrong key", signed("success", func(f map[string]string) { f["key"] = "other" }), false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := gw.VerifyCallback(ctx, &Callback{Fields: tt.fields})
			if err != nil {
				t.Fatalf("VerifyCallback() error = %v", err)
			}
			if res.Verified != tt.wantVerified || res.Success != tt.wantSuccess {
				t.Errorf("verified=%v success=%v, want %v/%v (%s)", res.Verified, res.Success, tt.wantVerified, tt.wantSuccess, res.FailureReason)
			}
			if res.GatewayOrderID != "abc123" {
				t.Errorf("GatewayOrderID = %q", res.GatewayOrderID)
			}
		})
	}
}

func TestPayUCallbackAmountInSubunits(t *testing.T) {
	gw := testPayU()
	f := payuFields()
	f["status"] = "success"
	f["hash"] = gw.ResponseHash(f)

	res, err := gw.VerifyCallback(context.Background(), &Callback{Fields: f})
	if err != nil {
		t.Fatalf("VerifyCallback() error = %v", err)
	}
	if res.AmountSubunits != 80000 {
		t.Errorf("AmountSubunits = %d, want 80000", res.AmountSubunits)
	}
}

func TestPayUCreateOrder(t *testing.T) {
	gw := testPayU()
	order, err := gw.CreateOrder(context.Background(), &OrderRequest{
		Receipt:        "appt1",
		AmountSubunits: 80000,
		Currency:       "INR",
		Description:    "Consultation",
		Customer:       Customer{Name: "Asha", Email: "asha@example.com"},
	})
	if err != nil {
		t.Fatalf("CreateOrder() error = %v", err)
	}
	if order.FormFields["amount"] != "800.00" {
		t.Errorf("amount = %q, want 800.00", order.FormFields["amount"])
	}
	if order.FormFields["txnid"] != order.GatewayOrderID || order.GatewayOrderID == "" {
		t.Errorf("txnid = %q, order id = %q", order.FormFields["txnid"], order.GatewayOrderID)
	}
	if order.FormFields["hash"] != gw.RequestHash(order.FormFields) {
		t.Error("form hash does not match request hash")
	}
	if order.RedirectURL != "https://test.payu.in/_payment" {
		t.Errorf("RedirectURL = %q", order.RedirectURL)
	}
}

func TestPayURefundIsQueued(t *testing.T) {
	res, err := testPayU().Refund(context.Background(), &RefundRequest{AmountSubunits: 5000})
	if err != nil {
		t.Fatalf("Refund() error = %v", err)
	}
	if !res.Queued || res.Status != "queued" {
		t.Errorf("Refund() = %+v", res)
	}
}
