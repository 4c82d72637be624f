package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix                = "PLATEPAL"
	defaultHTTPAddress       = "0.0.0.0:8080"
	defaultDatabaseDriver    = "sqlite"
	defaultDatabasePath      = "platepal.db"
	defaultLogLevel          = "info"
	defaultIssuer            = "platepal-auth"
	defaultAudience          = "platepal-api"
	defaultTokenTTLMinutes   = 43200
	defaultInferenceProvider = "gemini"
	defaultInferenceModel    = "gemini-1.5-flash"
	defaultInferenceLocation = "us-central1"
	defaultInferenceTimeout  = 60
	defaultTemperature       = 0.1
	defaultMaxOutputTokens   = 1000
	defaultTimezone          = "Local"
	defaultQueryMode         = "indexed"
	defaultHeartbeatSeconds  = 25
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress string
	LogLevel    string

	DatabaseDriver string
	DatabasePath   string
	DatabaseDSN    string

	SigningSecret string
	Issuer        string
	Audience      string
	TokenTTL      time.Duration

	Inference InferenceConfig

	Timezone  string
	QueryMode string

	PhotosBucket        string
	PhotosRegion        string
	PhotosPublicBaseURL string

	RealtimeHeartbeat time.Duration
}

// InferenceConfig selects and configures the remote meal estimator.
type InferenceConfig struct {
	Provider        string
	APIKey          string
	Endpoint        string
	Model           string
	ProjectID       string
	Location        string
	CredentialsFile string
	Timeout         time.Duration
	Temperature     float32
	MaxOutputTokens int32
}

// DatabaseConfig locates the backing database.
type DatabaseConfig struct {
	Driver string
	Path   string
	DSN    string
}

// Database returns the database portion of the configuration.
func (c AppConfig) Database() DatabaseConfig {
	return DatabaseConfig{Driver: c.DatabaseDriver, Path: c.DatabasePath, DSN: c.DatabaseDSN}
}

// LoadDatabase reads and validates only the database settings. Commands that
// never serve requests use it to avoid requiring secrets.
func LoadDatabase(configViper *viper.Viper) (DatabaseConfig, error) {
	cfg := DatabaseConfig{
		Driver: strings.ToLower(strings.TrimSpace(configViper.GetString("database.driver"))),
		Path:   configViper.GetString("database.path"),
		DSN:    configViper.GetString("database.dsn"),
	}
	if err := cfg.validate(); err != nil {
		return DatabaseConfig{}, err
	}
	return cfg, nil
}

func (c DatabaseConfig) validate() error {
	switch c.Driver {
	case "sqlite":
		if strings.TrimSpace(c.Path) == "" {
			return fmt.Errorf("database.path is required")
		}
	case "postgres", "postgresql":
		if strings.TrimSpace(c.DSN) == "" {
			return fmt.Errorf("database.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("database.driver %q is not supported", c.Driver)
	}
	return nil
}

// Location resolves the configured timezone.
func (c AppConfig) Location() (*time.Location, error) {
	name := strings.TrimSpace(c.Timezone)
	if name == "" || strings.EqualFold(name, defaultTimezone) {
		return time.Local, nil
	}
	return time.LoadLocation(name)
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("database.driver", defaultDatabaseDriver)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("database.dsn", "")
	configViper.SetDefault("auth.signing_secret", "")
	configViper.SetDefault("auth.issuer", defaultIssuer)
	configViper.SetDefault("auth.audience", defaultAudience)
	configViper.SetDefault("token.ttl_minutes", defaultTokenTTLMinutes)
	configViper.SetDefault("inference.provider", defaultInferenceProvider)
	configViper.SetDefault("inference.api_key", "")
	configViper.SetDefault("inference.endpoint", "")
	configViper.SetDefault("inference.model", defaultInferenceModel)
	configViper.SetDefault("inference.project_id", "")
	configViper.SetDefault("inference.location", defaultInferenceLocation)
	configViper.SetDefault("inference.credentials_file", "")
	configViper.SetDefault("inference.timeout_seconds", defaultInferenceTimeout)
	configViper.SetDefault("inference.temperature", defaultTemperature)
	configViper.SetDefault("inference.max_output_tokens", defaultMaxOutputTokens)
	configViper.SetDefault("calendar.timezone", defaultTimezone)
	configViper.SetDefault("entries.query_mode", defaultQueryMode)
	configViper.SetDefault("photos.bucket", "")
	configViper.SetDefault("photos.region", "")
	configViper.SetDefault("photos.public_base_url", "")
	configViper.SetDefault("realtime.heartbeat_seconds", defaultHeartbeatSeconds)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:    configViper.GetString("http.address"),
		LogLevel:       configViper.GetString("log.level"),
		DatabaseDriver: strings.ToLower(strings.TrimSpace(configViper.GetString("database.driver"))),
		DatabasePath:   configViper.GetString("database.path"),
		DatabaseDSN:    configViper.GetString("database.dsn"),
		SigningSecret:  configViper.GetString("auth.signing_secret"),
		Issuer:         configViper.GetString("auth.issuer"),
		Audience:       configViper.GetString("auth.audience"),
		TokenTTL:       time.Duration(configViper.GetInt("token.ttl_minutes")) * time.Minute,
		Inference: InferenceConfig{
			Provider:        strings.ToLower(strings.TrimSpace(configViper.GetString("inference.provider"))),
			APIKey:          configViper.GetString("inference.api_key"),
			Endpoint:        configViper.GetString("inference.endpoint"),
			Model:           configViper.GetString("inference.model"),
			ProjectID:       configViper.GetString("inference.project_id"),
			Location:        configViper.GetString("inference.location"),
			CredentialsFile: configViper.GetString("inference.credentials_file"),
			Timeout:         time.Duration(configViper.GetInt("inference.timeout_seconds")) * time.Second,
			Temperature:     float32(configViper.GetFloat64("inference.temperature")),
			MaxOutputTokens: configViper.GetInt32("inference.max_output_tokens"),
		},
		Timezone:            configViper.GetString("calendar.timezone"),
		QueryMode:           configViper.GetString("entries.query_mode"),
		PhotosBucket:        configViper.GetString("photos.bucket"),
		PhotosRegion:        configViper.GetString("photos.region"),
		PhotosPublicBaseURL: configViper.GetString("photos.public_base_url"),
		RealtimeHeartbeat:   time.Duration(configViper.GetInt("realtime.heartbeat_seconds")) * time.Second,
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if err := c.Database().validate(); err != nil {
		return err
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("token.ttl_minutes must be positive")
	}
	switch c.Inference.Provider {
	case "gemini":
		if strings.TrimSpace(c.Inference.APIKey) == "" {
			return fmt.Errorf("inference.api_key is required for the gemini provider")
		}
	case "vertex":
		if strings.TrimSpace(c.Inference.ProjectID) == "" {
			return fmt.Errorf("inference.project_id is required for the vertex provider")
		}
	default:
		return fmt.Errorf("inference.provider %q is not supported", c.Inference.Provider)
	}
	if c.Inference.Timeout <= 0 {
		return fmt.Errorf("inference.timeout_seconds must be positive")
	}
	if strings.TrimSpace(c.PhotosBucket) != "" && strings.TrimSpace(c.PhotosRegion) == "" {
		return fmt.Errorf("photos.region is required when photos.bucket is set")
	}
	if c.RealtimeHeartbeat <= 0 {
		return fmt.Errorf("realtime.heartbeat_seconds must be positive")
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("calendar.timezone: %w", err)
	}
	return nil
}
