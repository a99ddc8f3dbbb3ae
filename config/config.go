package config

import (
	"strings"
	"time"

	"github.com/pitabwire/frame"
	"github.com/shopspring/decimal"
)

const (
	darajaSandboxURL    = "https://sandbox.safaricom.co.ke"
	darajaProductionURL = "https://api.safaricom.co.ke"
)

type WelfareConfig struct {
	frame.ConfigurationDefault

	//DARAJA_ENV=sandbox|production
	DarajaEnv     string `envDefault:"sandbox" env:"DARAJA_ENV"`
	DarajaBaseURL string `envDefault:"" env:"DARAJA_BASE_URL"`

	DarajaConsumerKey     string        `envDefault:"" env:"DARAJA_CONSUMER_KEY"`
	DarajaConsumerSecret  string        `envDefault:"" env:"DARAJA_CONSUMER_SECRET"`
	DarajaShortCode       string        `envDefault:"174379" env:"DARAJA_SHORTCODE"`
	DarajaPassKey         string        `envDefault:"" env:"DARAJA_PASSKEY"`
	DarajaTransactionType string        `envDefault:"CustomerPayBillOnline" env:"DARAJA_TRANSACTION_TYPE"`
	StkCallbackURL        string        `envDefault:"http://localhost:8080/mpesa/stk/callback" env:"STK_CALLBACK_URL"`
	B2CInitiatorName      string        `envDefault:"testapi" env:"B2C_INITIATOR_NAME"`
	B2CSecurityCredential string        `envDefault:"" env:"B2C_SECURITY_CREDENTIAL"`
	B2CShortCode          string        `envDefault:"600000" env:"B2C_SHORTCODE"`
	B2CCommandID          string        `envDefault:"BusinessPayment" env:"B2C_COMMAND_ID"`
	B2CResultURL          string        `envDefault:"http://localhost:8080/mpesa/b2c/result" env:"B2C_RESULT_URL"`
	B2CQueueTimeoutURL    string        `envDefault:"http://localhost:8080/mpesa/b2c/queue" env:"B2C_QUEUE_TIMEOUT_URL"`
	GatewayTimeout        time.Duration `envDefault:"30s" env:"GATEWAY_TIMEOUT"`
	GatewayMaxRetries     uint64        `envDefault:"2" env:"GATEWAY_MAX_RETRIES"`

	LoanInterestRate decimal.Decimal `envDefault:"0.05" env:"LOAN_INTEREST_RATE"`
	OrganisationName string          `envDefault:"FinGrow" env:"ORGANISATION_NAME"`
	AdminAPIKey      string          `envDefault:"" env:"ADMIN_API_KEY"`

	SMTPHost     string `envDefault:"" env:"SMTP_HOST"`
	SMTPPort     int    `envDefault:"587" env:"SMTP_PORT"`
	SMTPUsername string `envDefault:"" env:"SMTP_USERNAME"`
	SMTPPassword string `envDefault:"" env:"SMTP_PASSWORD"`
	EmailFrom    string `envDefault:"FinGrow Welfare <support@fingrow.com>" env:"EMAIL_FROM"`
	AdminEmail   string `envDefault:"" env:"ADMIN_EMAIL"`
}

// BaseURL resolves the Daraja host. An explicit DARAJA_BASE_URL always wins.
func (c *WelfareConfig) BaseURL() string {
	if c.DarajaBaseURL != "" {
		return strings.TrimRight(c.DarajaBaseURL, "/")
	}
	if strings.EqualFold(c.DarajaEnv, "production") {
		return darajaProductionURL
	}
	return darajaSandboxURL
}

func (c *WelfareConfig) MailEnabled() bool {
	return c.SMTPHost != ""
}
