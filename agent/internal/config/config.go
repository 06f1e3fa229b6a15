package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/spf13/viper"

	"github.com/GluM1262/remoteshell-manager/policy"
)

type Logging struct {
	Level       string
	File        string
	RotateBytes int
	Backups     int
}

type Config struct {
	ServerURL   string
	Token       string
	UseTLS      bool
	ValidateTLS bool

	ReconnectInitialMS  int
	ReconnectCapMS      int
	PingIntervalSeconds int

	Policy  policy.Policy
	Logging Logging
}

// SocketURL builds the coordinator websocket endpoint. The token rides
// as a query parameter; the caller appends it at dial time so the URL
// in logs stays token-free.
func (c *Config) SocketURL() string {
	base := strings.TrimRight(c.ServerURL, "/")
	switch {
	case strings.HasPrefix(base, "ws://"), strings.HasPrefix(base, "wss://"):
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	default:
		scheme := "ws://"
		if c.UseTLS {
			scheme = "wss://"
		}
		base = scheme + base
	}
	return base + "/ws"
}

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetDefault("server.url", "ws://127.0.0.1:8000")
	v.SetDefault("server.validate_tls", true)
	v.SetDefault("server.reconnect_initial_ms", 1000)
	v.SetDefault("server.reconnect_cap_ms", 60000)
	v.SetDefault("server.ping_interval_s", 30)
	v.SetDefault("policy.max_length", policy.DefaultMaxLength)
	v.SetDefault("policy.allow_shell_operators", false)
	v.SetDefault("policy.max_timeout_s", policy.DefaultMaxTimeoutSeconds)
	v.SetDefault("policy.max_output_bytes", policy.DefaultMaxOutputBytes)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.rotate_bytes", 10*1024*1024)
	v.SetDefault("logging.backups", 3)

	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := &Config{
		ServerURL:           v.GetString("server.url"),
		Token:               v.GetString("server.token"),
		UseTLS:              v.GetBool("server.use_tls"),
		ValidateTLS:         v.GetBool("server.validate_tls"),
		ReconnectInitialMS:  v.GetInt("server.reconnect_initial_ms"),
		ReconnectCapMS:      v.GetInt("server.reconnect_cap_ms"),
		PingIntervalSeconds: v.GetInt("server.ping_interval_s"),
		Policy: policy.Policy{
			MaxLength:           v.GetInt("policy.max_length"),
			DenyPatterns:        v.GetStringSlice("policy.deny_patterns"),
			AllowListEnabled:    v.GetBool("policy.allow_list_enabled"),
			AllowList:           v.GetStringSlice("policy.allow_list"),
			AllowShellOperators: v.GetBool("policy.allow_shell_operators"),
			MaxTimeoutSeconds:   v.GetInt("policy.max_timeout_s"),
			MaxOutputBytes:      v.GetInt("policy.max_output_bytes"),
		},
		Logging: Logging{
			Level:       v.GetString("logging.level"),
			File:        v.GetString("logging.file"),
			RotateBytes: v.GetInt("logging.rotate_bytes"),
			Backups:     v.GetInt("logging.backups"),
		},
	}
	if cfg.Token == "" {
		return nil, errors.New("server.token is required")
	}
	return cfg, nil
}
