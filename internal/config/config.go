package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration required by the API process.
// Values come from the environment, optionally seeded from a .env file.
// No business logic should depend on raw environment variables.
type Config struct {
	App      AppConfig
	DB       DBConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Twilio   TwilioConfig
	Calls    CallsConfig
	Inbox    InboxConfig
	Realtime RealtimeConfig
}

type AppConfig struct {
	Env  string
	Port int

	// PublicBaseURL is the externally reachable origin used to build
	// webhook callback URLs and to verify Twilio signatures.
	PublicBaseURL string

	// Timezone drives day dividers in conversation timelines.
	Timezone string
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
}

type AuthConfig struct {
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// Shared dashboard passwords; owner unlocks team phone configuration.
	OwnerPassword string
	StaffPassword string
}

type TwilioConfig struct {
	AccountSID        string
	AuthToken         string
	FromNumber        string
	APIBase           string
	ValidateSignature bool
}

type CallsConfig struct {
	RingTimeout        time.Duration
	VoicemailMaxLength time.Duration
	StaleRingingAfter  time.Duration
	SweepInterval      time.Duration
}

type InboxConfig struct {
	// MessageWindow bounds how many recent messages feed the conversation list.
	MessageWindow int
}

type RealtimeConfig struct {
	Stream           string
	StreamMaxLen     int64
	SubscriberBuffer int
}

const (
	defaultRingTimeout   = 12 * time.Second
	defaultVoicemailMax  = 120 * time.Second
	defaultStaleRinging  = 10 * time.Minute
	defaultSweepInterval = time.Minute
	defaultMessageWindow = 500
	defaultTwilioAPIBase = "https://api.twilio.com"
	defaultStream        = "wrapdesk:events"
	defaultStreamMaxLen  = 10000
	defaultSubBuffer     = 64
	defaultTimezone      = "America/New_York"
)

func Load() (Config, error) {
	if err := loadEnvFile(); err != nil {
		return Config{}, err
	}

	c := Config{}
	var parseErrs errList

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	c.App.Port = parseErrs.int(requiredInt("APP_PORT"))
	c.App.PublicBaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("PUBLIC_BASE_URL")), "/")
	c.App.Timezone = strings.TrimSpace(os.Getenv("TIMEZONE"))

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	c.DB.Port = parseErrs.int(requiredInt("DB_PORT"))
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	c.Redis.Port = parseErrs.int(requiredInt("REDIS_PORT"))
	c.Redis.Password = os.Getenv("REDIS_PASSWORD")

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	c.Auth.AccessTokenTTL = parseErrs.duration(optionalDuration("JWT_ACCESS_TTL"))
	c.Auth.RefreshTokenTTL = parseErrs.duration(optionalDuration("JWT_REFRESH_TTL"))
	c.Auth.OwnerPassword = os.Getenv("DASHBOARD_OWNER_PASSWORD")
	c.Auth.StaffPassword = os.Getenv("DASHBOARD_PASSWORD")

	c.Twilio.AccountSID = strings.TrimSpace(os.Getenv("TWILIO_ACCOUNT_SID"))
	c.Twilio.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	c.Twilio.FromNumber = strings.TrimSpace(os.Getenv("TWILIO_FROM_NUMBER"))
	c.Twilio.APIBase = strings.TrimRight(strings.TrimSpace(os.Getenv("TWILIO_API_BASE")), "/")
	c.Twilio.ValidateSignature = parseErrs.bool(optionalBool("TWILIO_VALIDATE_SIGNATURE", true))

	c.Calls.RingTimeout = parseErrs.duration(optionalDuration("RING_TIMEOUT"))
	c.Calls.VoicemailMaxLength = parseErrs.duration(optionalDuration("VOICEMAIL_MAX_LENGTH"))
	c.Calls.StaleRingingAfter = parseErrs.duration(optionalDuration("RINGING_STALE_AFTER"))
	c.Calls.SweepInterval = parseErrs.duration(optionalDuration("STALE_SWEEP_INTERVAL"))

	c.Inbox.MessageWindow = parseErrs.int(optionalInt("MESSAGE_WINDOW"))

	c.Realtime.Stream = strings.TrimSpace(os.Getenv("REALTIME_STREAM"))
	c.Realtime.StreamMaxLen = int64(parseErrs.int(optionalInt("REALTIME_STREAM_MAXLEN")))
	c.Realtime.SubscriberBuffer = parseErrs.int(optionalInt("REALTIME_SUBSCRIBER_BUFFER"))

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks required values and fills defaults for optional ones.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}
	if c.App.PublicBaseURL == "" {
		errs = append(errs, errors.New("PUBLIC_BASE_URL is required"))
	} else if u, err := url.Parse(c.App.PublicBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("PUBLIC_BASE_URL must be an absolute URL, got %q", c.App.PublicBaseURL))
	}
	if c.App.Timezone == "" {
		c.App.Timezone = defaultTimezone
	}
	if _, err := time.LoadLocation(c.App.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("TIMEZONE is not a known location: %q", c.App.Timezone))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if c.DB.SSLMode == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.Auth.StaffPassword == "" {
		errs = append(errs, errors.New("DASHBOARD_PASSWORD is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}
	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 12 * time.Hour
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		c.Auth.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("JWT_REFRESH_TTL must be greater than JWT_ACCESS_TTL"))
	}

	if c.Twilio.AccountSID == "" {
		errs = append(errs, errors.New("TWILIO_ACCOUNT_SID is required"))
	}
	if c.Twilio.AuthToken == "" {
		errs = append(errs, errors.New("TWILIO_AUTH_TOKEN is required"))
	}
	if c.Twilio.FromNumber == "" {
		errs = append(errs, errors.New("TWILIO_FROM_NUMBER is required"))
	}
	if c.Twilio.APIBase == "" {
		c.Twilio.APIBase = defaultTwilioAPIBase
	}
	if c.IsProduction() && !c.Twilio.ValidateSignature {
		errs = append(errs, errors.New("TWILIO_VALIDATE_SIGNATURE cannot be disabled in production"))
	}

	if c.Calls.RingTimeout <= 0 {
		c.Calls.RingTimeout = defaultRingTimeout
	}
	if c.Calls.VoicemailMaxLength <= 0 {
		c.Calls.VoicemailMaxLength = defaultVoicemailMax
	}
	if c.Calls.StaleRingingAfter <= 0 {
		c.Calls.StaleRingingAfter = defaultStaleRinging
	}
	if c.Calls.SweepInterval <= 0 {
		c.Calls.SweepInterval = defaultSweepInterval
	}
	if c.Calls.StaleRingingAfter <= c.Calls.RingTimeout {
		errs = append(errs, errors.New("RINGING_STALE_AFTER must be greater than RING_TIMEOUT"))
	}

	if c.Inbox.MessageWindow <= 0 {
		c.Inbox.MessageWindow = defaultMessageWindow
	}

	if c.Realtime.Stream == "" {
		c.Realtime.Stream = defaultStream
	}
	if c.Realtime.StreamMaxLen <= 0 {
		c.Realtime.StreamMaxLen = defaultStreamMaxLen
	}
	if c.Realtime.SubscriberBuffer <= 0 {
		c.Realtime.SubscriberBuffer = defaultSubBuffer
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

// Location returns the configured timezone, UTC if it cannot be loaded.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.App.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// loadEnvFile seeds the environment from ENV_FILE (or ./.env when present).
// Variables already set in the environment win.
func loadEnvFile() error {
	path := strings.TrimSpace(os.Getenv("ENV_FILE"))
	if path == "" {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func requiredInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optionalInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optionalDuration(key string) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration, got %q", key, v)
	}
	return d, nil
}

func optionalBool(key string, def bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, fmt.Errorf("%s must be a boolean, got %q", key, v)
	}
	return b, nil
}

// errList accumulates parse errors so Load can report every bad key at once.
type errList []error

func (e *errList) add(err error) {
	if err != nil {
		*e = append(*e, err)
	}
}

func (e *errList) int(n int, err error) int {
	e.add(err)
	return n
}

func (e *errList) duration(d time.Duration, err error) time.Duration {
	e.add(err)
	return d
}

func (e *errList) bool(b bool, err error) bool {
	e.add(err)
	return b
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
