package config // package config loads application configuration from environment variables

import (
	"log"     // log is used to report configuration errors and halt execution
	"os"      // os provides access to environment variables
	"strconv" // strconv converts strings to other types
	"strings" // strings normalizes list-valued variables
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  The types reflect how the values are used in
// the application: strings for identifiers and secrets, ints for durations
// and costs, slices for allow-lists.
type Config struct {
	Env            string // application environment (e.g. "dev", "prod")
	Port           string // HTTP port to listen on
	DBUser         string // database username
	DBPass         string // database password (optional)
	DBHost         string // database host address
	DBPort         string // database port number
	DBName         string // database name
	JWTSecret      string // secret used to sign JWTs
	AccessTTLMin   int    // access token time-to-live in minutes
	RefreshTTLDays int    // refresh token time-to-live in days
	BcryptCost     int    // bcrypt cost for password hashing

	SuperAdminEmails []string // emails that bypass every permission check

	GatewayKeyID     string // payment gateway API key id
	GatewayKeySecret string // payment gateway API key secret (signs payments)
	GatewayBaseURL   string // payment gateway REST base URL
	WebhookSecret    string // secret for webhook body signatures (required in prod)
	Currency         string // ISO currency code for gateway orders

	CaptchaEnabled   bool   // whether order creation requires a captcha token
	CaptchaVerifyURL string // captcha provider verification endpoint
	CaptchaSecret    string // captcha provider shared secret
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.
func Load() Config {
	cfg := Config{
		Env:            must("APP_ENV"),
		Port:           must("APP_PORT"),
		DBUser:         must("DB_USER"),
		DBPass:         os.Getenv("DB_PASS"),
		DBHost:         must("DB_HOST"),
		DBPort:         must("DB_PORT"),
		DBName:         must("DB_NAME"),
		JWTSecret:      must("JWT_SECRET"),
		AccessTTLMin:   intOr("ACCESS_TOKEN_TTL_MIN", 60),
		RefreshTTLDays: intOr("REFRESH_TOKEN_TTL_DAYS", 14),
		BcryptCost:     intOr("BCRYPT_COST", 12),

		SuperAdminEmails: splitEmails(os.Getenv("SUPER_ADMIN_EMAILS")),

		GatewayKeyID:     must("GATEWAY_KEY_ID"),
		GatewayKeySecret: must("GATEWAY_KEY_SECRET"),
		GatewayBaseURL:   envOr("GATEWAY_BASE_URL", "https://api.razorpay.com/v1"),
		WebhookSecret:    os.Getenv("GATEWAY_WEBHOOK_SECRET"),
		Currency:         envOr("GATEWAY_CURRENCY", "INR"),

		CaptchaEnabled:   os.Getenv("CAPTCHA_ENABLED") == "true",
		CaptchaVerifyURL: os.Getenv("CAPTCHA_VERIFY_URL"),
		CaptchaSecret:    os.Getenv("CAPTCHA_SECRET"),
	}

	// An unsigned webhook endpoint accepts forged payment events.  That
	// escape hatch is only tolerable during local development, so a
	// production deployment without a webhook secret refuses to start.
	if cfg.Env == "prod" && cfg.WebhookSecret == "" {
		log.Fatal("GATEWAY_WEBHOOK_SECRET must be set when APP_ENV=prod")
	}
	return cfg
}

// IsSuperAdmin reports whether the given email is on the configured
// super-admin allow-list.  Comparison is case-insensitive.
func (c Config) IsSuperAdmin(email string) bool {
	email = strings.ToLower(strings.TrimSpace(email))
	for _, e := range c.SuperAdminEmails {
		if e == email {
			return true
		}
	}
	return false
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

// envOr returns the variable's value or a default when unset.
func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// intOr converts the variable to an int, falling back to a default when the
// variable is unset and exiting when it is set but malformed.
func intOr(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		log.Fatalf("invalid int for %s: %q", key, s)
	}
	return n
}

// splitEmails parses a comma-separated email list, trimming and lower-casing
// each entry so later comparisons are exact.
func splitEmails(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
