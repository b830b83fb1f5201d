package config

type PaymentConfig struct {
	Razorpay *RazorpayConfig `yaml:"razorpay"`
	PayU     *PayUConfig     `yaml:"payu"`
	Stripe   *StripeConfig   `yaml:"stripe"`
	// CashTolerance is how far a collected cash amount may drift from the
	// appointment's final amount, in currency units.
	CashTolerance float64 `yaml:"cash_tolerance"`
}

type RazorpayConfig struct {
	KeyID     string `yaml:"key_id"`
	KeySecret string `yaml:"key_secret"`
}

type PayUConfig struct {
	MerchantKey string `yaml:"merchant_key"`
	Salt        string `yaml:"salt"`
	BaseURL     string `yaml:"base_url"`
	SuccessURL  string `yaml:"success_url"`
	FailureURL  string `yaml:"failure_url"`
}

type StripeConfig struct {
	SecretKey     string `yaml:"secret_key"`
	WebhookSecret string `yaml:"webhook_secret"`
}

func (c *RazorpayConfig) Enabled() bool { return c.KeyID != "" && c.KeySecret != "" }
func (c *PayUConfig) Enabled() bool     { return c.MerchantKey != "" && c.Salt != "" }
func (c *StripeConfig) Enabled() bool   { return c.SecretKey != "" && c.WebhookSecret != "" }

func loadPaymentConfig() *PaymentConfig {
	baseURL := getEnv("APP_BASE_URL", "http://localhost:8080")
	return &PaymentConfig{
		Razorpay: &RazorpayConfig{
			KeyID:     getEnv("RAZORPAY_KEY_ID", ""),
			KeySecret: getEnv("RAZORPAY_KEY_SECRET", ""),
		},
		PayU: &PayUConfig{
			MerchantKey: getEnv("PAYU_MERCHANT_KEY", ""),
			Salt:        getEnv("PAYU_SALT", ""),
			BaseURL:     getEnv("PAYU_BASE_URL", "https://test.payu.in"),
			SuccessURL:  getEnv("PAYU_SUCCESS_URL", baseURL+"/api/v1/webhooks/payu"),
			FailureURL:  getEnv("PAYU_FAILURE_URL", baseURL+"/api/v1/webhooks/payu"),
		},
		Stripe: &StripeConfig{
			SecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
			WebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		},
		CashTolerance: getEnvAsFloat64("PAYMENT_CASH_TOLERANCE", 1.0),
	}
}
