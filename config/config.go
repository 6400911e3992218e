package config

import "github.com/pitabwire/frame"

type RentPayConfig struct {
	frame.ConfigurationDefault

	MpesaConsumerKey        string `envDefault:"" env:"MPESA_CONSUMER_KEY"`
	MpesaConsumerSecret     string `envDefault:"" env:"MPESA_CONSUMER_SECRET"`
	MpesaBusinessShortCode  string `envDefault:"174379" env:"MPESA_BUSINESS_SHORT_CODE"`
	MpesaPasskey            string `envDefault:"" env:"MPESA_PASSKEY"`
	MpesaCallbackURL        string `envDefault:"" env:"MPESA_CALLBACK_URL"`
	MpesaB2BCallbackURL     string `envDefault:"" env:"MPESA_B2B_CALLBACK_URL"`
	MpesaTimeoutURL         string `envDefault:"" env:"MPESA_TIMEOUT_URL"`
	MpesaInitiatorName      string `envDefault:"" env:"MPESA_INITIATOR_NAME"`
	MpesaSecurityCredential string `envDefault:"" env:"MPESA_SECURITY_CREDENTIAL"`
	MpesaBaseURL            string `envDefault:"https://sandbox.safaricom.co.ke" env:"MPESA_BASE_URL"`

	Currency              string `envDefault:"KES" env:"PAYMENT_CURRENCY"`
	PlatformFeePercent    string `envDefault:"5" env:"PLATFORM_FEE_PERCENT"`
	DisburseAutomatically bool   `envDefault:"true" env:"DISBURSEMENT_AUTO_INITIATE"`
	DisburseRetryBatch    int    `envDefault:"50" env:"DISBURSEMENT_RETRY_BATCH"`

	NotificationTopic string `envDefault:"rentpay.notifications" env:"NOTIFICATION_TOPIC"`
	NotificationURL   string `envDefault:"mem://rentpay.notifications" env:"NOTIFICATION_URL"`
}

// B2BResultURL falls back to the collection callback URL when a dedicated
// result endpoint is not configured.
func (c *RentPayConfig) B2BResultURL() string {
	if c.MpesaB2BCallbackURL != "" {
		return c.MpesaB2BCallbackURL
	}
	return c.MpesaCallbackURL
}

func (c *RentPayConfig) B2BTimeoutURL() string {
	if c.MpesaTimeoutURL != "" {
		return c.MpesaTimeoutURL
	}
	return c.MpesaCallbackURL
}
