package main

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/philippzhuravlev/event-aggregator/internal/logger"
)

const (
	defaultListenAddr   = "localhost:8080"
	defaultLoggingLevel = logger.LevelInfo
	defaultEnvironment  = logger.EnvProduction

	defaultSyncInterval    = time.Hour
	defaultRefreshInterval = 24 * time.Hour
	defaultHealthInterval  = 24 * time.Hour

	defaultWarningDays   = 7
	defaultValidityDays  = 60
	defaultLookbackDays  = 30
	defaultMaxConcurrent = 8
)

type Config struct {
	// Default logging level
	LogLevel string

	// Environment (dev, prod)
	Environment string

	// Address on which the aggregator service will be run
	ListenAddr string

	// Database to connect to
	DatabaseDSN string

	// Facebook app credentials and webhook verify token
	FacebookAppID     string
	FacebookAppSecret string
	FacebookVerify    string

	// Secret key, 32 bytes hex encoded
	// Used to seal page tokens at rest and to sign the oauth state parameter
	SecretKey string

	// Static bearer key guarding the trigger endpoints
	APIKey string

	// Resend alerting
	ResendAPIKey   string
	AlertEmailFrom string
	AlertEmailTo   string

	// Object storage for relocated event covers; leave endpoint empty to
	// keep facebook CDN urls
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Bucket    string
	S3PublicURL string
	S3UseSSL    bool

	// Scheduling intervals
	SyncInterval    time.Duration
	RefreshInterval time.Duration
	HealthInterval  time.Duration

	// Token lifecycle knobs
	TokenWarningDays  int
	TokenValidityDays int
	EventLookbackDays int
	SyncMaxConcurrent int
}

func NewConfig() *Config {
	return &Config{
		LogLevel:    defaultLoggingLevel,
		Environment: defaultEnvironment,
		ListenAddr:  defaultListenAddr,

		SyncInterval:    defaultSyncInterval,
		RefreshInterval: defaultRefreshInterval,
		HealthInterval:  defaultHealthInterval,

		TokenWarningDays:  defaultWarningDays,
		TokenValidityDays: defaultValidityDays,
		EventLookbackDays: defaultLookbackDays,
		SyncMaxConcurrent: defaultMaxConcurrent,
	}
}

// Load variable from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		c.LoadEnv(func(key string) string {
			return envMap[key]
		})
		return nil
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) {
	// Set option to value if it not empty
	setString := func(o *string) func(value string) {
		return func(value string) {
			if value != "" {
				*o = value
			}
		}
	}
	setBool := func(o *bool) func(value string) {
		return func(value string) {
			if v, err := strconv.ParseBool(value); value != "" && err == nil {
				*o = v
			}
		}
	}
	setInt := func(o *int) func(value string) {
		return func(value string) {
			if v, err := strconv.Atoi(value); value != "" && err == nil {
				*o = v
			}
		}
	}
	setDuration := func(o *time.Duration) func(value string) {
		return func(value string) {
			if v, err := time.ParseDuration(value); value != "" && err == nil {
				*o = v
			}
		}
	}

	envMap := map[string]func(string){
		"RUN_ADDRESS":  setString(&c.ListenAddr),
		"DATABASE_URI": setString(&c.DatabaseDSN),
		"LOG_LEVEL":    setString(&c.LogLevel),
		"ENVIRONMENT":  setString(&c.Environment),

		"FACEBOOK_APP_ID":       setString(&c.FacebookAppID),
		"FACEBOOK_APP_SECRET":   setString(&c.FacebookAppSecret),
		"FACEBOOK_VERIFY_TOKEN": setString(&c.FacebookVerify),

		"SECRET_KEY": setString(&c.SecretKey),
		"API_KEY":    setString(&c.APIKey),

		"RESEND_API_KEY":   setString(&c.ResendAPIKey),
		"ALERT_EMAIL_FROM": setString(&c.AlertEmailFrom),
		"ALERT_EMAIL_TO":   setString(&c.AlertEmailTo),

		"S3_ENDPOINT":   setString(&c.S3Endpoint),
		"S3_ACCESS_KEY": setString(&c.S3AccessKey),
		"S3_SECRET_KEY": setString(&c.S3SecretKey),
		"S3_BUCKET":     setString(&c.S3Bucket),
		"S3_PUBLIC_URL": setString(&c.S3PublicURL),
		"S3_USE_SSL":    setBool(&c.S3UseSSL),

		"SYNC_INTERVAL":    setDuration(&c.SyncInterval),
		"REFRESH_INTERVAL": setDuration(&c.RefreshInterval),
		"HEALTH_INTERVAL":  setDuration(&c.HealthInterval),

		"TOKEN_WARNING_DAYS":  setInt(&c.TokenWarningDays),
		"TOKEN_VALIDITY_DAYS": setInt(&c.TokenValidityDays),
		"EVENT_LOOKBACK_DAYS": setInt(&c.EventLookbackDays),
		"SYNC_MAX_CONCURRENT": setInt(&c.SyncMaxConcurrent),
	}

	for key, parseFn := range envMap {
		parseFn(getenv(key))
	}
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("aggregator", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string")
	fs.StringVarP(&c.SecretKey, "secret-key", "s", c.SecretKey, "Secret key (32 bytes, hex)")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, prod)")
	fs.DurationVar(&c.SyncInterval, "sync-interval", c.SyncInterval, "Interval between event sync runs")
	fs.DurationVar(&c.RefreshInterval, "refresh-interval", c.RefreshInterval, "Interval between token refresh runs")

	return fs.Parse(args)
}

// Validate checks the settings nothing can run without
func (c *Config) Validate() error {
	switch {
	case c.DatabaseDSN == "":
		return errors.New("database DSN is required")
	case c.FacebookAppID == "" || c.FacebookAppSecret == "":
		return errors.New("facebook app credentials are required")
	case c.SecretKey == "":
		return errors.New("secret key is required")
	default:
		return nil
	}
}
