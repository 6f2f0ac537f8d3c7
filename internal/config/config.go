package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Skotchmaster/grocery_shop/internal/paypal"
	"github.com/Skotchmaster/grocery_shop/internal/service"
	"github.com/Skotchmaster/grocery_shop/pkg/config"
)

// ServiceConfig is the storefront configuration. Integrations with an empty
// address (Kafka, Redis, Elasticsearch, auth) are disabled.
type ServiceConfig struct {
	config.Config

	JWTSecret string `envconfig:"JWT_SECRET" required:"true"`
	AuthURL   string `envconfig:"AUTH_URL"`

	KafkaBrokers []string `envconfig:"KAFKA_BROKERS"`

	RedisURL       string        `envconfig:"REDIS_URL"`
	IdempotencyTTL time.Duration `envconfig:"IDEMPOTENCY_TTL" default:"24h"`

	ESURL      string `envconfig:"ES_URL"`
	ESUser     string `envconfig:"ES_USER"`
	ESPassword string `envconfig:"ES_PASSWORD"`
	ESIndex    string `envconfig:"ES_INDEX" default:"products"`

	PayPalBaseURL      string        `envconfig:"PAYPAL_BASE_URL" default:"https://api-m.sandbox.paypal.com"`
	PayPalClientID     string        `envconfig:"PAYPAL_CLIENT_ID" required:"true"`
	PayPalClientSecret string        `envconfig:"PAYPAL_CLIENT_SECRET" required:"true"`
	PayPalCurrency     string        `envconfig:"PAYPAL_CURRENCY" default:"GBP"`
	PayPalTimeout      time.Duration `envconfig:"PAYPAL_TIMEOUT" default:"15s"`
	PayPalBrandName    string        `envconfig:"PAYPAL_BRAND_NAME"`
	StorefrontURL      string        `envconfig:"STOREFRONT_URL"`

	CloudinaryCloudName string `envconfig:"CLOUDINARY_CLOUD_NAME" required:"true"`
	CloudinaryAPIKey    string `envconfig:"CLOUDINARY_API_KEY" required:"true"`
	CloudinaryAPISecret string `envconfig:"CLOUDINARY_API_SECRET" required:"true"`
	CloudinaryFolder    string `envconfig:"CLOUDINARY_FOLDER" default:"products"`

	PricingPolicy   string `envconfig:"PRICING_POLICY" default:"client"`
	RestockOnCancel bool   `envconfig:"RESTOCK_ON_CANCEL" default:"false"`

	TraceExporter string `envconfig:"TRACE_EXPORTER"`
	OTLPEndpoint  string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	Pricing service.PricingPolicy `ignored:"true"`
}

func Load() (ServiceConfig, error) {
	var cfg ServiceConfig
	if err := config.Process(&cfg); err != nil {
		return ServiceConfig{}, err
	}

	policy, ok := service.ParsePricingPolicy(cfg.PricingPolicy)
	if !ok {
		return ServiceConfig{}, fmt.Errorf("load config: PRICING_POLICY must be client or catalog, got %q", cfg.PricingPolicy)
	}
	cfg.Pricing = policy
	cfg.PayPalCurrency = strings.ToUpper(cfg.PayPalCurrency)
	cfg.StorefrontURL = strings.TrimRight(cfg.StorefrontURL, "/")
	if cfg.PayPalBaseURL == "live" {
		cfg.PayPalBaseURL = paypal.LiveURL
	}
	return cfg, nil
}

// ReturnURL and CancelURL are where PayPal sends the buyer back to.
func (c ServiceConfig) ReturnURL() string {
	if c.StorefrontURL == "" {
		return ""
	}
	return c.StorefrontURL + "/checkout/success"
}

func (c ServiceConfig) CancelURL() string {
	if c.StorefrontURL == "" {
		return ""
	}
	return c.StorefrontURL + "/checkout"
}
