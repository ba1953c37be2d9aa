// Package config loads coordinator settings from an optional YAML file and the
// environment. Environment variables win over the file.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	ListenAddr     string        `yaml:"listen_addr"`
	JoinTimeout    time.Duration `yaml:"join_timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins"`

	WS       WSConfig       `yaml:"ws"`
	Redis    RedisConfig    `yaml:"redis"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	MDNS     MDNSConfig     `yaml:"mdns"`
	Log      LogConfig      `yaml:"log"`
}

type WSConfig struct {
	WriteWait       time.Duration `yaml:"write_wait"`
	PongWait        time.Duration `yaml:"pong_wait"`
	PingPeriod      time.Duration `yaml:"ping_period"`
	MaxMessageBytes int64         `yaml:"max_message_bytes"`
	SendBuffer      int           `yaml:"send_buffer"`
}

// RedisConfig enables the room event mirror when Addr is set.
type RedisConfig struct {
	Addr          string `yaml:"addr"`
	ChannelPrefix string `yaml:"channel_prefix"`
	Buffer        int    `yaml:"buffer"`
}

// DatabaseConfig enables the Postgres room directory when URL is set.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// AuthConfig enables bearer token checks when JWTSecret is set.
type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

type MDNSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Service  string `yaml:"service"`
	Instance string `yaml:"instance"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

func Default() Config {
	return Config{
		ListenAddr:  ":5000",
		JoinTimeout: 5 * time.Second,
		WS: WSConfig{
			WriteWait:       10 * time.Second,
			PongWait:        20 * time.Second,
			PingPeriod:      10 * time.Second,
			MaxMessageBytes: 1 << 20,
			SendBuffer:      256,
		},
		Redis: RedisConfig{
			ChannelPrefix: "devsync:room:",
			Buffer:        1024,
		},
		Auth: AuthConfig{TokenTTL: 24 * time.Hour},
		MDNS: MDNSConfig{
			Service:  "_devsync._tcp",
			Instance: "devsync",
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads path (if non-empty) over the defaults and applies environment
// overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("DEVSYNC_ADDR"); ok && v != "" {
		c.ListenAddr = v
	} else if v, ok := lookup("PORT"); ok && v != "" {
		c.ListenAddr = ":" + v
	}
	if v, ok := lookup("REDIS_ADDR"); ok {
		c.Redis.Addr = v
	}
	if v, ok := lookup("DATABASE_URL"); ok {
		c.Database.URL = v
	}
	if v, ok := lookup("DEVSYNC_JWT_SECRET"); ok {
		c.Auth.JWTSecret = v
	}
	if v, ok := lookup("DEVSYNC_MDNS"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("DEVSYNC_MDNS: %w", err)
		}
		c.MDNS.Enabled = b
	}
	if v, ok := lookup("DEVSYNC_LOG_LEVEL"); ok && v != "" {
		c.Log.Level = v
	}
	return nil
}

func (c Config) Validate() error {
	var errs []error
	if _, _, err := net.SplitHostPort(c.ListenAddr); err != nil {
		errs = append(errs, fmt.Errorf("listen_addr %q: %w", c.ListenAddr, err))
	}
	if c.JoinTimeout <= 0 {
		errs = append(errs, errors.New("join_timeout must be positive"))
	}
	if c.WS.PingPeriod <= 0 || c.WS.PingPeriod >= c.WS.PongWait {
		errs = append(errs, errors.New("ws.ping_period must be positive and shorter than ws.pong_wait"))
	}
	if c.WS.WriteWait <= 0 {
		errs = append(errs, errors.New("ws.write_wait must be positive"))
	}
	if c.WS.SendBuffer <= 0 {
		errs = append(errs, errors.New("ws.send_buffer must be positive"))
	}
	if c.WS.MaxMessageBytes <= 0 {
		errs = append(errs, errors.New("ws.max_message_bytes must be positive"))
	}
	if c.Redis.Addr != "" && c.Redis.Buffer <= 0 {
		errs = append(errs, errors.New("redis.buffer must be positive"))
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q: must be debug, info, warn or error", c.Log.Level))
	}
	return errors.Join(errs...)
}

// Port returns the numeric port of ListenAddr.
func (c Config) Port() (int, error) {
	_, port, err := net.SplitHostPort(c.ListenAddr)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(port)
}
