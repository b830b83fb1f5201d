package payment

import (
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const GatewayPayU = "payu"

type PayUConfig struct {
	MerchantKey string
	Salt        string
	BaseURL     string
	SuccessURL  string
	FailureURL  string
}

// PayUGateway builds hosted-checkout forms and verifies the redirect
// callback. Refunds are queued for manual processing.
type PayUGateway struct {
	config PayUConfig
}

func NewPayUGateway(config PayUConfig) *PayUGateway {
	return &PayUGateway{config: config}
}

func (p *PayUGateway) Name() string { return GatewayPayU }

func (p *PayUGateway) CreateOrder(ctx context.Context, request *OrderRequest) (*OrderResponse, error) {
	txnID := strings.ReplaceAll(uuid.NewString(), "-", "")
	fields := map[string]string{
		"key":         p.config.MerchantKey,
		"txnid":       txnID,
		"amount":      formatSubunits(request.AmountSubunits),
		"productinfo": request.Description,
		"firstname":   request.Customer.Name,
		"email":       request.Customer.Email,
		"phone":       request.Customer.Phone,
		"udf1":        request.Receipt,
		"surl":        p.config.SuccessURL,
		"furl":        p.config.FailureURL,
	}
	fields["hash"] = p.RequestHash(fields)

	return &OrderResponse{
		GatewayOrderID: txnID,
		AmountSubunits: request.AmountSubunits,
		RedirectURL:    p.config.BaseURL + "/_payment",
		FormFields:     fields,
	}, nil
}

// RequestHash is sha512 of
// key|txnid|amount|productinfo|firstname|email|udf1|udf2|udf3|udf4|udf5||||||salt.
func (p *PayUGateway) RequestHash(f map[string]string) string {
	parts := []string{
		p.config.MerchantKey, f["txnid"], f["amount"], f["productinfo"], f["firstname"], f["email"],
		f["udf1"], f["udf2"], f["udf3"], f["udf4"], f["udf5"],
		"", "", "", "", "",
		p.config.Salt,
	}
	return sha512Hex(strings.Join(parts, "|"))
}

// ResponseHash runs the request sequence backwards:
// [additionalCharges|]salt|status||||||udf5|udf4|udf3|udf2|udf1|email|firstname|productinfo|amount|txnid|key.
func (p *PayUGateway) ResponseHash(f map[string]string) string {
	parts := []string{
		p.config.Salt, f["status"],
		"", "", "", "", "",
		f["udf5"], f["udf4"], f["udf3"], f["udf2"], f["udf1"],
		f["email"], f["firstname"], f["productinfo"], f["amount"], f["txnid"],
		p.config.MerchantKey,
	}
	if charges := f["additionalCharges"]; charges != "" {
		parts = append([]string{charges}, parts...)
	}
	return sha512Hex(strings.Join(parts, "|"))
}

func (p *PayUGateway) VerifyCallback(ctx context.Context, callback *Callback) (*VerificationResult, error) {
	f := callback.Fields
	txnID := f["txnid"]
	if txnID == "" {
		return nil, fmt.Errorf("payu callback missing txnid")
	}

	result := &VerificationResult{
		GatewayOrderID:    txnID,
		ExternalPaymentID: f["mihpayid"],
		RawStatus:         f["status"],
	}

	amount, err := decimal.NewFromString(f["amount"])
	if err != nil {
		return nil, fmt.Errorf("payu callback has invalid amount %q: %w", f["amount"], err)
	}
	result.AmountSubunits = amount.Shift(2).Round(0).IntPart()

	expected := p.ResponseHash(f)
	got := strings.ToLower(f["hash"])
	if f["key"] != p.config.MerchantKey || subtle.ConstantTimeCompare([]byte(expected), []byte(got)) != 1 {
		result.FailureReason = "hash mismatch"
		return result, nil
	}

	result.Verified = true
	result.Success = strings.EqualFold(f["status"], "success")
	if !result.Success {
		result.FailureReason = firstNonEmpty(f["error_Message"], f["field9"], "payment "+f["status"])
	}
	return result, nil
}

func (p *PayUGateway) Refund(ctx context.Context, request *RefundRequest) (*RefundResponse, error) {
	return &RefundResponse{
		Status:         "queued",
		AmountSubunits: request.AmountSubunits,
		Queued:         true,
	}, nil
}

func sha512Hex(s string) string {
	sum := sha512.Sum512([]byte(s))
	return hex.EncodeToString(sum[:])
}

func formatSubunits(subunits int64) string {
	return decimal.New(subunits, -2).StringFixed(2)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
