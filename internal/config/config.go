package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type RelayConfig struct {
	// Access is "open" (anyone with the link) or "project" (project must exist and be live).
	Access       string  `mapstructure:"access"`
	RequireJoin  bool    `mapstructure:"require_join"`
	SingleRoom   bool    `mapstructure:"single_room"`
	Backpressure string  `mapstructure:"backpressure"`
	Rate         float64 `mapstructure:"rate"`
	Burst        int     `mapstructure:"burst"`
}

type StorageConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
	DSN    string `mapstructure:"dsn"`
}

type BlobConfig struct {
	Dir string `mapstructure:"dir"`
}

type RedisConfig struct {
	URL string `mapstructure:"url"`
}

type ProjectsConfig struct {
	DefaultExpiry time.Duration `mapstructure:"default_expiry"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	MaxUploadMB   int64         `mapstructure:"max_upload_mb"`
}

type AuthConfig struct {
	ViewTokenTTL time.Duration `mapstructure:"view_token_ttl"`
}

type RateLimitConfig struct {
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

type WebRTCConfig struct {
	ICEServers []string `mapstructure:"ice_servers"`
}

type Config struct {
	Mode           string          `mapstructure:"mode"`
	Port           int             `mapstructure:"port"`
	StaticPath     string          `mapstructure:"static_path"`
	ReadLimit      int64           `mapstructure:"read_limit"`
	PingPeriod     time.Duration   `mapstructure:"ping_period"`
	SendBuffer     int             `mapstructure:"send_buffer"`
	Secret         string          `mapstructure:"secret"`
	AllowedOrigins []string        `mapstructure:"allowed_origins"`
	// TrustedProxies may set X-Forwarded-For; empty means the peer address is the client.
	TrustedProxies []string        `mapstructure:"trusted_proxies"`
	Relay          RelayConfig     `mapstructure:"relay"`
	Storage        StorageConfig   `mapstructure:"storage"`
	Blob           BlobConfig      `mapstructure:"blob"`
	Redis          RedisConfig     `mapstructure:"redis"`
	Projects       ProjectsConfig  `mapstructure:"projects"`
	Auth           AuthConfig      `mapstructure:"auth"`
	RateLimit      RateLimitConfig `mapstructure:"ratelimit"`
	WebRTC         WebRTCConfig    `mapstructure:"webrtc"`
}

const envPrefix = "REVIEWHUB"

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("send_buffer", 64)
	v.SetDefault("secret", "")
	v.SetDefault("allowed_origins", []string{})
	v.SetDefault("trusted_proxies", []string{})

	v.SetDefault("relay.access", "open")
	v.SetDefault("relay.require_join", false)
	v.SetDefault("relay.single_room", false)
	v.SetDefault("relay.backpressure", "drop")
	v.SetDefault("relay.rate", 30.0)
	v.SetDefault("relay.burst", 60)

	v.SetDefault("storage.driver", "badger")
	v.SetDefault("storage.path", "./data/records")
	v.SetDefault("storage.dsn", "")
	v.SetDefault("blob.dir", "./data/blobs")
	v.SetDefault("redis.url", "")

	v.SetDefault("projects.default_expiry", "72h")
	v.SetDefault("projects.sweep_interval", "1m")
	v.SetDefault("projects.max_upload_mb", 500)
	v.SetDefault("auth.view_token_ttl", "24h")
	v.SetDefault("ratelimit.requests", 20)
	v.SetDefault("ratelimit.window", "1m")
	v.SetDefault("webrtc.ice_servers", []string{"stun:stun.l.google.com:19302"})
}

// Load reads .env, then config/config.<CONFIG_ENV>.yaml, then REVIEWHUB_* overrides.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Str("module", "config").Msg("could not read .env")
	}

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)
	return LoadFile(fileName)
}

// LoadFile is Load without .env handling; a missing file means defaults.
func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Secret == "" {
		cfg.Secret = randomSecret()
		log.Warn().Str("module", "config").Msg("secret not set, generated an ephemeral one; sessions and view tokens reset on restart")
	}
	log.Info().Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Str("storage", cfg.Storage.Driver).
		Str("relay_access", cfg.Relay.Access).
		Msg("config ready")
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Mode {
	case "debug", "release", "test":
	default:
		errs = append(errs, fmt.Errorf("mode: unknown value %q", c.Mode))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port: %d out of range", c.Port))
	}
	if c.Mode == "release" && len(c.Secret) < 32 {
		errs = append(errs, errors.New("secret: at least 32 bytes required in release mode"))
	}
	for _, p := range c.TrustedProxies {
		if net.ParseIP(p) == nil {
			if _, _, err := net.ParseCIDR(p); err != nil {
				errs = append(errs, fmt.Errorf("trusted_proxies: %q is not an IP or CIDR", p))
			}
		}
	}
	switch c.Relay.Access {
	case "open", "project":
	default:
		errs = append(errs, fmt.Errorf("relay.access: unknown value %q", c.Relay.Access))
	}
	switch c.Relay.Backpressure {
	case "drop", "kick":
	default:
		errs = append(errs, fmt.Errorf("relay.backpressure: unknown value %q", c.Relay.Backpressure))
	}
	if c.Relay.Rate < 0 || c.Relay.Burst < 0 {
		errs = append(errs, errors.New("relay.rate and relay.burst must not be negative"))
	}
	switch c.Storage.Driver {
	case "badger", "sqlite":
	case "postgres":
		if c.Storage.DSN == "" {
			errs = append(errs, errors.New("storage.dsn: required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown value %q", c.Storage.Driver))
	}
	if c.Projects.DefaultExpiry <= 0 || c.Projects.SweepInterval <= 0 {
		errs = append(errs, errors.New("projects.default_expiry and projects.sweep_interval must be positive"))
	}
	if c.Projects.MaxUploadMB < 0 {
		errs = append(errs, errors.New("projects.max_upload_mb must not be negative"))
	}
	if c.Auth.ViewTokenTTL <= 0 {
		errs = append(errs, errors.New("auth.view_token_ttl must be positive"))
	}
	return errors.Join(errs...)
}

func randomSecret() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
