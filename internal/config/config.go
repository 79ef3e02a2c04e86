package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Config represents the global ~/.konsul/config.toml plus environment
// overrides. The gateway token is environment-only and never written to disk.
type Config struct {
	DefaultProfile string  `toml:"default_profile" env:"KONSUL_PROFILE"`
	Gateway        Gateway `toml:"gateway"`
	Sync           Sync    `toml:"sync"`
	Server         Server  `toml:"server"`
	Notify         Notify  `toml:"notify"`
}

// Gateway holds the chatbot vendor API settings. Exactly one endpoint per
// deployment: the base URL is configuration, not a runtime fallback list.
type Gateway struct {
	BaseURL   string   `toml:"base_url" env:"KONSUL_GATEWAY_URL" env-default:"https://api.konsul.chat"`
	Workspace string   `toml:"workspace" env:"KONSUL_WORKSPACE"`
	Token     string   `toml:"-" env:"KONSUL_API_TOKEN"`
	PageSize  int      `toml:"page_size" env:"KONSUL_PAGE_SIZE" env-default:"100"`
	CacheTTL  Duration `toml:"cache_ttl" env:"KONSUL_CACHE_TTL" env-default:"5m"`
}

// Sync holds the polling settings.
type Sync struct {
	Interval Duration `toml:"interval" env:"KONSUL_SYNC_INTERVAL" env-default:"10s"`
}

// Server holds the local console API settings.
type Server struct {
	Listen string `toml:"listen" env:"KONSUL_LISTEN" env-default:"127.0.0.1:7621"`
}

// Notify holds notification inbox settings.
type Notify struct {
	MaxEntries int `toml:"max_entries" env:"KONSUL_NOTIFY_MAX" env-default:"50"`
}

// Duration is a time.Duration that round-trips through TOML ("10s") and
// satisfies cleanenv's setter for env overrides. It must stay a named
// non-struct type: cleanenv recurses into struct-typed fields and would
// never consult the env tags or the setter on a wrapper struct.
type Duration time.Duration

// Std returns the plain time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// UnmarshalText implements encoding.TextUnmarshaler for TOML decoding.
func (d *Duration) UnmarshalText(b []byte) error {
	parsed, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText implements encoding.TextMarshaler for TOML encoding.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// SetValue implements cleanenv.Setter for env overrides.
func (d *Duration) SetValue(s string) error {
	return d.UnmarshalText([]byte(s))
}

// Load reads config from the given path and applies environment overrides.
// A missing file is not an error: env defaults apply. A .env file next to the
// working directory is honored for development.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, err
		}
		return &cfg, nil
	}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
// The token field is excluded by its toml tag.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
