package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/GluM1262/remoteshell-manager/backend/app/db"
	"github.com/GluM1262/remoteshell-manager/policy"
)

type Redis struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

type Policy struct {
	MaxLength           int
	DenyPatterns        []string
	AllowListEnabled    bool
	AllowList           []string
	AllowShellOperators bool
	MaxTimeoutSeconds   int
	MaxOutputBytes      int
}

func (p Policy) ToPolicy() policy.Policy {
	return policy.Policy{
		MaxLength:           p.MaxLength,
		DenyPatterns:        p.DenyPatterns,
		AllowListEnabled:    p.AllowListEnabled,
		AllowList:           p.AllowList,
		AllowShellOperators: p.AllowShellOperators,
		MaxTimeoutSeconds:   p.MaxTimeoutSeconds,
		MaxOutputBytes:      p.MaxOutputBytes,
	}
}

type Config struct {
	ListenAddr string
	TLSCert    string
	TLSKey     string

	Store db.Config

	// Tokens maps token -> explicit agent id; TokenList entries get a
	// derived id. Neither may ever be logged. Map keys pass through
	// viper lowercased, so mixed-case tokens belong in TokenList.
	Tokens       map[string]string
	TokenList    []string
	TokenHashKey string

	MaxQueueSize         int
	HistoryRetentionDays int
	PingIntervalSeconds  int

	Policy Policy
	Redis  Redis

	v *viper.Viper
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.listen_addr", "127.0.0.1:8000")
	v.SetDefault("server.max_queue_size", 1000)
	v.SetDefault("server.history_retention_days", 30)
	v.SetDefault("server.ping_interval_s", 30)
	v.SetDefault("server.token_hash_key", "remoteshell")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "remoteshell.db")
	v.SetDefault("store.port", 3306)
	v.SetDefault("policy.max_length", policy.DefaultMaxLength)
	v.SetDefault("policy.allow_shell_operators", false)
	v.SetDefault("policy.max_timeout_s", policy.DefaultMaxTimeoutSeconds)
	v.SetDefault("policy.max_output_bytes", policy.DefaultMaxOutputBytes)
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "127.0.0.1:6379")
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		ListenAddr: v.GetString("server.listen_addr"),
		TLSCert:    v.GetString("server.tls_cert"),
		TLSKey:     v.GetString("server.tls_key"),
		Store: db.Config{
			Driver: v.GetString("store.driver"),
			Path:   v.GetString("store.path"),
			Host:   v.GetString("store.host"),
			Port:   v.GetInt("store.port"),
			User:   v.GetString("store.user"),
			Pass:   v.GetString("store.pass"),
			Name:   v.GetString("store.name"),
		},
		Tokens:               v.GetStringMapString("server.tokens"),
		TokenList:            v.GetStringSlice("server.token_list"),
		TokenHashKey:         v.GetString("server.token_hash_key"),
		MaxQueueSize:         v.GetInt("server.max_queue_size"),
		HistoryRetentionDays: v.GetInt("server.history_retention_days"),
		PingIntervalSeconds:  v.GetInt("server.ping_interval_s"),
		Policy: Policy{
			MaxLength:           v.GetInt("policy.max_length"),
			DenyPatterns:        v.GetStringSlice("policy.deny_patterns"),
			AllowListEnabled:    v.GetBool("policy.allow_list_enabled"),
			AllowList:           v.GetStringSlice("policy.allow_list"),
			AllowShellOperators: v.GetBool("policy.allow_shell_operators"),
			MaxTimeoutSeconds:   v.GetInt("policy.max_timeout_s"),
			MaxOutputBytes:      v.GetInt("policy.max_output_bytes"),
		},
		Redis: Redis{
			Enabled:  v.GetBool("redis.enabled"),
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		v: v,
	}
}

// Load reads the coordinator config file. A missing file is not an
// error; defaults carry a development setup.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	setDefaults(v)
	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return fromViper(v), nil
}

// WatchPolicy re-reads the policy section whenever the config file
// changes on disk and hands the fresh policy to apply.
func (c *Config) WatchPolicy(apply func(policy.Policy)) {
	if c.v == nil {
		return
	}
	c.v.OnConfigChange(func(e fsnotify.Event) {
		if e.Op&(fsnotify.Write|fsnotify.Create) == 0 {
			return
		}
		apply(fromViper(c.v).Policy.ToPolicy())
	})
	c.v.WatchConfig()
}
