// Package config loads the targeting service configuration.
package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const EnvPrefix = "TARGETING"

// secretKeys may be given to the storage and pubsub adapters through the environment,
// e.g. TARGETING_STORAGE_PASSWORD.
var secretKeys = []string{"password", "access_key", "secret_key"}

type Config struct {
	Server  ServerConfig
	Log     LogConfig
	Storage AdapterConfig
	PubSub  PubSubConfig
	Auth    AuthConfig
}

type ServerConfig struct {
	Host        string
	Port        int
	ReadTimeout time.Duration
}

func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type LogConfig struct {
	Level string
	JSON  bool
}

// AdapterConfig selects an adapter by type. Config is handed to the adapter as is.
type AdapterConfig struct {
	Type   string
	Config map[string]string
}

type PubSubConfig struct {
	AdapterConfig
	Topic string
}

type AuthConfig struct {
	Enabled          bool
	IssuerURL        string
	Audience         []string
	AllowedClockSkew time.Duration
	EmailClaim       string
	RolesClaim       string
	// WriteRole is required to create profiles and segments. Empty allows any caller.
	WriteRole string
}

// Load reads the configuration at path, if given, over the defaults. Environment
// variables prefixed with TARGETING_ override both.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
	v.SetDefault("storage.type", "memory")
	v.SetDefault("pubsub.type", "")
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.allowed_clock_skew", "30s")
	v.SetDefault("auth.email_claim", "email")
	v.SetDefault("auth.roles_claim", "roles")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:        v.GetString("server.host"),
			Port:        v.GetInt("server.port"),
			ReadTimeout: v.GetDuration("server.read_timeout"),
		},
		Log: LogConfig{
			Level: v.GetString("log.level"),
			JSON:  v.GetBool("log.json"),
		},
		Storage: AdapterConfig{
			Type:   v.GetString("storage.type"),
			Config: adapterConfig(v, "storage"),
		},
		PubSub: PubSubConfig{
			AdapterConfig: AdapterConfig{
				Type:   v.GetString("pubsub.type"),
				Config: adapterConfig(v, "pubsub"),
			},
			Topic: v.GetString("pubsub.topic"),
		},
		Auth: AuthConfig{
			Enabled:          v.GetBool("auth.enabled"),
			IssuerURL:        v.GetString("auth.issuer_url"),
			Audience:         v.GetStringSlice("auth.audience"),
			AllowedClockSkew: v.GetDuration("auth.allowed_clock_skew"),
			EmailClaim:       v.GetString("auth.email_claim"),
			RolesClaim:       v.GetString("auth.roles_claim"),
			WriteRole:        v.GetString("auth.write_role"),
		},
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func adapterConfig(v *viper.Viper, section string) map[string]string {
	m := v.GetStringMapString(section + ".config")
	for _, key := range secretKeys {
		if value := v.GetString(section + "." + key); value != "" {
			m[key] = value
		}
	}
	return m
}

func validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server.read_timeout must be positive, got %v", cfg.Server.ReadTimeout)
	}
	if !slices.Contains([]string{"memory", "sql", "dynamodb"}, cfg.Storage.Type) {
		return fmt.Errorf("storage.type must be one of memory, sql or dynamodb, got %q", cfg.Storage.Type)
	}
	switch cfg.PubSub.Type {
	case "":
	case "sns":
		if cfg.PubSub.Topic == "" {
			return fmt.Errorf("pubsub.topic is required with the sns publisher")
		}
	default:
		return fmt.Errorf("pubsub.type must be sns or empty, got %q", cfg.PubSub.Type)
	}
	if cfg.Auth.Enabled && cfg.Auth.IssuerURL == "" {
		return fmt.Errorf("auth.issuer_url is required when auth is enabled")
	}
	return nil
}
