package config

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	aws_pkg "checkout-service/pkg/aws"

	"github.com/joho/godotenv"
)

// PhonePeConfig holds merchant credentials for the PhonePe pay-page API.
type PhonePeConfig struct {
	MerchantID  string
	SaltKey     string
	SaltIndex   string
	BaseURL     string
	RedirectURL string
	CallbackURL string
}

// Enabled reports whether enough credentials are present to call PhonePe.
func (c PhonePeConfig) Enabled() bool {
	return c.MerchantID != "" && c.SaltKey != ""
}

type RazorpayConfig struct {
	KeyID         string
	KeySecret     string
	WebhookSecret string
	BaseURL       string
}

func (c RazorpayConfig) Enabled() bool {
	return c.KeyID != "" && c.KeySecret != ""
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
}

func (c StripeConfig) Enabled() bool {
	return c.SecretKey != ""
}

// PricingConfig drives shipping and tax at order time. Amounts are whole rupees.
type PricingConfig struct {
	FreeShippingThreshold int
	FlatShippingFee       int
	TaxRatePercent        string
}

// GatewayHTTPConfig bounds every outbound gateway call.
type GatewayHTTPConfig struct {
	Timeout     time.Duration
	MaxRetries  int
	BaseBackoff time.Duration
}

type Config struct {
	Env  string
	Port string

	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresHost     string
	PostgresPort     string
	PostgresSSLMode  string
	PostgresTimeZone string

	RedisURL     string
	CartTTL      time.Duration
	PaymentLock  time.Duration
	JWTSecret    string
	ServiceName  string
	CardGateway  string
	KafkaBrokers string
	KafkaTopic   string

	OrderSNSTopicARN          string
	PaymentCallbackQueueURL   string
	CloudWatchEnabled         bool
	CloudWatchNamespace       string
	CloudWatchLogGroup        string
	AllowedOrigins            string
	RateLimitPerMinute        int
	RateLimitBurst            int
	OrderNumberMaxAttempts    int
	DefaultCancellationReason string

	// TrustGatewayHeaders accepts X-User-ID / X-User-Role from an upstream
	// gateway when no bearer token is sent. Only enable behind that gateway.
	TrustGatewayHeaders bool

	PhonePe  PhonePeConfig
	Razorpay RazorpayConfig
	Stripe   StripeConfig
	Pricing  PricingConfig
	Gateway  GatewayHTTPConfig
}

// IsProduction is used by the error envelope to hide stack traces.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// DSN builds the Postgres connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
		c.PostgresHost, c.PostgresUser, c.PostgresPassword, c.PostgresDB, c.PostgresPort, c.PostgresSSLMode, c.PostgresTimeZone)
}

// KafkaBrokerList splits KAFKA_BROKERS; empty means Kafka publishing is off.
func (c *Config) KafkaBrokerList() []string {
	if strings.TrimSpace(c.KafkaBrokers) == "" {
		return nil
	}
	var out []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// SecretGetter is satisfied by aws_pkg.SecretsClient.
type SecretGetter interface {
	GetSecret(ctx context.Context, name string) (string, error)
}

// LoadConfig reads configuration from the environment (and .env when present),
// with optional Secrets Manager override when AWS_USE_SECRETS=true.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	var sm SecretGetter
	if os.Getenv("AWS_USE_SECRETS") == "true" {
		if awsCfg, err := aws_pkg.LoadAWSConfig(context.Background()); err == nil {
			sm = aws_pkg.NewSecretsClient(awsCfg)
		} else {
			log.Printf("AWS config unavailable, skipping secrets override: %v", err)
		}
	}
	return load(context.Background(), sm)
}

func load(ctx context.Context, sm SecretGetter) (*Config, error) {
	cfg := &Config{
		Env:              getEnv("APP_ENV", "development"),
		Port:             getEnv("PORT", "8085"),
		PostgresUser:     os.Getenv("POSTGRES_USER"),
		PostgresPassword: os.Getenv("POSTGRES_PASSWORD"),
		PostgresDB:       os.Getenv("POSTGRES_DB"),
		PostgresHost:     os.Getenv("POSTGRES_HOST"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		PostgresTimeZone: getEnv("POSTGRES_TIMEZONE", "Asia/Kolkata"),

		RedisURL:     os.Getenv("REDIS_URL"),
		CartTTL:      getDuration("CART_TTL", 7*24*time.Hour),
		PaymentLock:  getDuration("PAYMENT_LOCK_TTL", 30*time.Second),
		JWTSecret:    strings.TrimSpace(os.Getenv("JWT_SECRET")),
		ServiceName:  getEnv("SERVICE_NAME", "checkout-service"),
		CardGateway:  strings.ToLower(getEnv("CARD_GATEWAY", "razorpay")),
		KafkaBrokers: os.Getenv("KAFKA_BROKERS"),
		KafkaTopic:   getEnv("ORDER_EVENTS_TOPIC", "order.events"),

		OrderSNSTopicARN:          os.Getenv("ORDER_SNS_TOPIC_ARN"),
		PaymentCallbackQueueURL:   os.Getenv("PAYMENT_CALLBACK_QUEUE_URL"),
		CloudWatchEnabled:         os.Getenv("CLOUDWATCH_ENABLED") == "true",
		CloudWatchNamespace:       getEnv("CLOUDWATCH_NAMESPACE", "ECommerce"),
		CloudWatchLogGroup:        getEnv("CLOUDWATCH_LOG_GROUP", "/ecommerce/services"),
		AllowedOrigins:            os.Getenv("ALLOWED_ORIGINS"),
		RateLimitPerMinute:        getInt("RATE_LIMIT_PER_MINUTE", 100),
		RateLimitBurst:            getInt("RATE_LIMIT_BURST", 50),
		OrderNumberMaxAttempts:    getInt("ORDER_NUMBER_MAX_ATTEMPTS", 3),
		DefaultCancellationReason: getEnv("DEFAULT_CANCELLATION_REASON", "Cancelled by customer"),

		TrustGatewayHeaders: os.Getenv("TRUST_GATEWAY_HEADERS") == "true",

		PhonePe: PhonePeConfig{
			MerchantID:  os.Getenv("PHONEPE_MERCHANT_ID"),
			SaltKey:     os.Getenv("PHONEPE_SALT_KEY"),
			SaltIndex:   getEnv("PHONEPE_SALT_INDEX", "1"),
			BaseURL:     strings.TrimSuffix(getEnv("PHONEPE_BASE_URL", "https://api-preprod.phonepe.com/apis/pg-sandbox"), "/"),
			RedirectURL: os.Getenv("PHONEPE_REDIRECT_URL"),
			CallbackURL: os.Getenv("PHONEPE_CALLBACK_URL"),
		},
		Razorpay: RazorpayConfig{
			KeyID:         os.Getenv("RAZORPAY_KEY_ID"),
			KeySecret:     os.Getenv("RAZORPAY_KEY_SECRET"),
			WebhookSecret: os.Getenv("RAZORPAY_WEBHOOK_SECRET"),
			BaseURL:       strings.TrimSuffix(getEnv("RAZORPAY_BASE_URL", "https://api.razorpay.com"), "/"),
		},
		Stripe: StripeConfig{
			SecretKey:     os.Getenv("STRIPE_API_KEY"),
			WebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		},
		Pricing: PricingConfig{
			FreeShippingThreshold: getInt("FREE_SHIPPING_THRESHOLD", 999),
			FlatShippingFee:       getInt("FLAT_SHIPPING_FEE", 50),
			TaxRatePercent:        getEnv("TAX_RATE_PERCENT", "2"),
		},
		Gateway: GatewayHTTPConfig{
			Timeout:     getDuration("GATEWAY_TIMEOUT", 15*time.Second),
			MaxRetries:  getInt("GATEWAY_MAX_RETRIES", 2),
			BaseBackoff: getDuration("GATEWAY_BASE_BACKOFF", 200*time.Millisecond),
		},
	}

	if sm != nil {
		applySecrets(ctx, sm, cfg)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applySecrets overrides DB and gateway credentials from Secrets Manager.
// Missing secrets are not fatal; env values stay in place.
func applySecrets(ctx context.Context, sm SecretGetter, cfg *Config) {
	if m := readSecretMap(ctx, sm, "checkout/DB_CREDENTIALS"); m != nil {
		setIf(&cfg.PostgresUser, m["POSTGRES_USER"])
		setIf(&cfg.PostgresPassword, m["POSTGRES_PASSWORD"])
		setIf(&cfg.PostgresDB, m["POSTGRES_DB"])
		setIf(&cfg.PostgresHost, m["POSTGRES_HOST"])
		setIf(&cfg.PostgresPort, m["POSTGRES_PORT"])
	}
	if m := readSecretMap(ctx, sm, "checkout/GATEWAY_CREDENTIALS"); m != nil {
		setIf(&cfg.PhonePe.MerchantID, m["PHONEPE_MERCHANT_ID"])
		setIf(&cfg.PhonePe.SaltKey, m["PHONEPE_SALT_KEY"])
		setIf(&cfg.PhonePe.SaltIndex, m["PHONEPE_SALT_INDEX"])
		setIf(&cfg.Razorpay.KeyID, m["RAZORPAY_KEY_ID"])
		setIf(&cfg.Razorpay.KeySecret, m["RAZORPAY_KEY_SECRET"])
		setIf(&cfg.Razorpay.WebhookSecret, m["RAZORPAY_WEBHOOK_SECRET"])
		setIf(&cfg.Stripe.SecretKey, m["STRIPE_API_KEY"])
		setIf(&cfg.Stripe.WebhookSecret, m["STRIPE_WEBHOOK_SECRET"])
		setIf(&cfg.JWTSecret, m["JWT_SECRET"])
	}
}

func readSecretMap(ctx context.Context, sm SecretGetter, name string) map[string]string {
	raw, err := sm.GetSecret(ctx, name)
	if err != nil || raw == "" {
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		log.Printf("secret %s is not a JSON object: %v", name, err)
		return nil
	}
	return m
}

func setIf(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func (c *Config) validate() error {
	if c.PostgresUser == "" || c.PostgresPassword == "" || c.PostgresDB == "" || c.PostgresHost == "" {
		return fmt.Errorf("database config incomplete")
	}
	if !c.PhonePe.Enabled() && !c.Razorpay.Enabled() && !c.Stripe.Enabled() {
		return fmt.Errorf("at least one payment gateway must be configured")
	}
	if c.CardGateway != "razorpay" && c.CardGateway != "stripe" {
		return fmt.Errorf("CARD_GATEWAY must be razorpay or stripe, got %q", c.CardGateway)
	}
	if c.Pricing.FreeShippingThreshold < 0 || c.Pricing.FlatShippingFee < 0 {
		return fmt.Errorf("shipping amounts must not be negative")
	}
	if _, err := strconv.ParseFloat(c.Pricing.TaxRatePercent, 64); err != nil {
		return fmt.Errorf("TAX_RATE_PERCENT is not a number: %w", err)
	}
	if c.OrderNumberMaxAttempts < 1 {
		c.OrderNumberMaxAttempts = 1
	}
	if c.Gateway.MaxRetries < 0 {
		c.Gateway.MaxRetries = 0
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
		log.Printf("invalid integer for %s=%q, using %d", key, val, fallback)
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
		log.Printf("invalid duration for %s=%q, using %s", key, val, fallback)
	}
	return fallback
}
