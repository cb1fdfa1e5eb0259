package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix                = "RAG"
	defaultHTTPAddress       = "0.0.0.0:8080"
	defaultDatabasePath      = "rag.db"
	defaultLogLevel          = "info"
	defaultRedisAddress      = "localhost:6379"
	defaultAlgorithm         = "HS256"
	defaultAccessTTLMinutes  = 60
	defaultRefreshTTLDays    = 30
	defaultPreemptiveMinutes = 5
)

// ProviderCredentials is one provider's OAuth client registration.
type ProviderCredentials struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress    string
	AllowedOrigins []string
	DatabasePath   string
	LogLevel       string
	RedisAddress   string

	SigningKey       string
	SigningAlgorithm string
	AccessTTL        time.Duration
	RefreshTTL       time.Duration
	RefreshThreshold time.Duration

	Google ProviderCredentials
	Kakao  ProviderCredentials
	Naver  ProviderCredentials
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
	configViper.SetDefault("http.allowed_origins", []string{"*"})
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("redis.address", defaultRedisAddress)
	configViper.SetDefault("token.algorithm", defaultAlgorithm)
	configViper.SetDefault("token.access_ttl_minutes", defaultAccessTTLMinutes)
	configViper.SetDefault("token.refresh_ttl_days", defaultRefreshTTLDays)
	configViper.SetDefault("token.preemptive_refresh_minutes", defaultPreemptiveMinutes)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:      configViper.GetString("http.address"),
		AllowedOrigins:   configViper.GetStringSlice("http.allowed_origins"),
		DatabasePath:     configViper.GetString("database.path"),
		LogLevel:         configViper.GetString("log.level"),
		RedisAddress:     configViper.GetString("redis.address"),
		SigningKey:       configViper.GetString("token.signing_key"),
		SigningAlgorithm: configViper.GetString("token.algorithm"),
		AccessTTL:        time.Duration(configViper.GetInt("token.access_ttl_minutes")) * time.Minute,
		RefreshTTL:       time.Duration(configViper.GetInt("token.refresh_ttl_days")) * 24 * time.Hour,
		RefreshThreshold: time.Duration(configViper.GetInt("token.preemptive_refresh_minutes")) * time.Minute,
		Google:           loadProvider(configViper, "google"),
		Kakao:            loadProvider(configViper, "kakao"),
		Naver:            loadProvider(configViper, "naver"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func loadProvider(configViper *viper.Viper, name string) ProviderCredentials {
	return ProviderCredentials{
		ClientID:     configViper.GetString(name + ".client_id"),
		ClientSecret: configViper.GetString(name + ".client_secret"),
		RedirectURI:  configViper.GetString(name + ".redirect_uri"),
	}
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningKey) == "" {
		return fmt.Errorf("token.signing_key is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.RedisAddress) == "" {
		return fmt.Errorf("redis.address is required")
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 {
		return fmt.Errorf("token ttls must be positive")
	}
	if c.AccessTTL >= c.RefreshTTL {
		return fmt.Errorf("token.access_ttl_minutes must be shorter than token.refresh_ttl_days")
	}
	for name, creds := range map[string]ProviderCredentials{
		"google": c.Google,
		"kakao":  c.Kakao,
		"naver":  c.Naver,
	} {
		if strings.TrimSpace(creds.ClientID) == "" || strings.TrimSpace(creds.ClientSecret) == "" {
			return fmt.Errorf("%s.client_id and %s.client_secret are required", name, name)
		}
	}
	return nil
}
