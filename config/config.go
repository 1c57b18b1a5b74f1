// Package config loads the ingress server configuration from a YAML, TOML or
// JSON file (or URL) and applies environment variable overrides.
package config

import (
	"encoding"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/presbrey/ircgate/irc"
	"github.com/presbrey/ircgate/linecodec"
	"gopkg.in/yaml.v3"
)

// Config represents the server configuration
type Config struct {
	// Server settings
	Server struct {
		Name    string `yaml:"name" toml:"name" json:"name" env:"IRCGATE_SERVER_NAME" validate:"required,ircserver"`
		Network string `yaml:"network" toml:"network" json:"network" env:"IRCGATE_NETWORK"`
		Host    string `yaml:"host" toml:"host" json:"host" env:"IRCGATE_HOST"`
		Port    int    `yaml:"port" toml:"port" json:"port" env:"IRCGATE_PORT" validate:"gte=0,lte=65535"`
	} `yaml:"server" toml:"server" json:"server"`

	// TLS settings
	TLS struct {
		Enabled           bool     `yaml:"enabled" toml:"enabled" json:"enabled" env:"IRCGATE_TLS_ENABLED"`
		Host              string   `yaml:"host" toml:"host" json:"host" env:"IRCGATE_TLS_HOST"`
		Port              int      `yaml:"port" toml:"port" json:"port" env:"IRCGATE_TLS_PORT" validate:"gte=0,lte=65535"`
		Cert              string   `yaml:"cert" toml:"cert" json:"cert" env:"IRCGATE_TLS_CERT" validate:"required_with=Key"`
		Key               string   `yaml:"key" toml:"key" json:"key" env:"IRCGATE_TLS_KEY" validate:"required_with=Cert"`
		ACMEDomains       []string `yaml:"acme_domains" toml:"acme_domains" json:"acme_domains" env:"IRCGATE_TLS_ACME_DOMAINS" validate:"dive,hostname"`
		ACMECacheDir      string   `yaml:"acme_cache_dir" toml:"acme_cache_dir" json:"acme_cache_dir" env:"IRCGATE_TLS_ACME_CACHE_DIR"`
		SaveGenerated     bool     `yaml:"save_generated" toml:"save_generated" json:"save_generated" env:"IRCGATE_TLS_SAVE_GENERATED"`
		GeneratedCertPath string   `yaml:"generated_cert_path" toml:"generated_cert_path" json:"generated_cert_path" env:"IRCGATE_TLS_GENERATED_CERT_PATH"`
		GeneratedKeyPath  string   `yaml:"generated_key_path" toml:"generated_key_path" json:"generated_key_path" env:"IRCGATE_TLS_GENERATED_KEY_PATH"`
		StartTLS          bool     `yaml:"starttls" toml:"starttls" json:"starttls" env:"IRCGATE_STARTTLS"`
	} `yaml:"tls" toml:"tls" json:"tls"`

	// Limits applied to every connection
	Limits struct {
		MaxLineLength int      `yaml:"max_line_length" toml:"max_line_length" json:"max_line_length" env:"IRCGATE_MAX_LINE_LENGTH" validate:"gte=0"`
		ReadTimeout   Duration `yaml:"read_timeout" toml:"read_timeout" json:"read_timeout" env:"IRCGATE_READ_TIMEOUT"`
		WriteTimeout  Duration `yaml:"write_timeout" toml:"write_timeout" json:"write_timeout" env:"IRCGATE_WRITE_TIMEOUT"`
	} `yaml:"limits" toml:"limits" json:"limits"`

	// Admin HTTP settings
	Admin struct {
		Enabled     bool   `yaml:"enabled" toml:"enabled" json:"enabled" env:"IRCGATE_ADMIN_ENABLED"`
		Host        string `yaml:"host" toml:"host" json:"host" env:"IRCGATE_ADMIN_HOST"`
		Port        int    `yaml:"port" toml:"port" json:"port" env:"IRCGATE_ADMIN_PORT" validate:"gte=0,lte=65535"`
		MetricsPath string `yaml:"metrics_path" toml:"metrics_path" json:"metrics_path" env:"IRCGATE_METRICS_PATH" validate:"startswith=/"`
	} `yaml:"admin" toml:"admin" json:"admin"`

	Debug bool `yaml:"debug" toml:"debug" json:"debug" env:"IRCGATE_DEBUG"`

	// Configuration source for reloading
	Source string `yaml:"-" toml:"-" json:"-"`
}

// Duration is a time.Duration that reads as "30s" in every config format.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalYAML reads a duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	return d.UnmarshalText([]byte(value.Value))
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

func (c *Config) setDefaults() {
	c.Server.Name = "ircgate.local"
	c.Server.Network = "IRCgate"
	c.Server.Host = "0.0.0.0"
	c.Server.Port = 6667
	c.TLS.Host = "0.0.0.0"
	c.TLS.Port = 6697
	c.TLS.GeneratedCertPath = "certs/server.crt"
	c.TLS.GeneratedKeyPath = "certs/server.key"
	c.Limits.MaxLineLength = linecodec.DefaultMaxLength
	c.Limits.ReadTimeout = Duration{5 * time.Minute}
	c.Limits.WriteTimeout = Duration{30 * time.Second}
	c.Admin.Host = "127.0.0.1"
	c.Admin.Port = 8080
	c.Admin.MetricsPath = "/metrics"
}

// Load loads configuration from a file or URL. An empty source yields the
// defaults. Environment variables override both.
func Load(source string) (*Config, error) {
	cfg := Default()

	if source != "" {
		if err := cfg.loadFromSource(source); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// Reload reloads the configuration from the original source or a new source
func (c *Config) Reload(newSource string) error {
	if newSource != "" {
		c.Source = newSource
	}

	newCfg, err := Load(c.Source)
	if err != nil {
		return err
	}

	*c = *newCfg
	return nil
}

// loadFromSource loads configuration from a file or URL
func (c *Config) loadFromSource(source string) error {
	var data []byte
	var err error

	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		resp, err := http.Get(source)
		if err != nil {
			return fmt.Errorf("failed to load config from URL: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("failed to load config from URL, status: %s", resp.Status)
		}

		data, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read config from URL: %w", err)
		}
	} else {
		data, err = os.ReadFile(source)
		if err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Determine the format based on the extension
	switch {
	case strings.HasSuffix(source, ".toml"):
		err = toml.Unmarshal(data, c)
	case strings.HasSuffix(source, ".json"):
		err = json.Unmarshal(data, c)
	default:
		err = yaml.Unmarshal(data, c)
	}

	if err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	c.Source = source
	return nil
}

// Validate checks the configuration with its validate struct tags.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

var validate = irc.NewValidator()

// applyEnvOverrides applies environment variable overrides to the configuration
func applyEnvOverrides(cfg *Config) {
	applyEnvOverridesRecursive(reflect.ValueOf(cfg).Elem())
}

var textUnmarshalerType = reflect.TypeOf((*encoding.TextUnmarshaler)(nil)).Elem()

func applyEnvOverridesRecursive(v reflect.Value) {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldValue := v.Field(i)

		if field.PkgPath != "" {
			continue
		}

		if envTag := field.Tag.Get("env"); envTag != "" {
			if envValue, exists := os.LookupEnv(envTag); exists {
				setFieldFromEnv(fieldValue, envValue)
			}
		} else if field.Type.Kind() == reflect.Struct {
			applyEnvOverridesRecursive(fieldValue)
		}
	}
}

// setFieldFromEnv sets a field's value from an environment variable.
// Unparseable values leave the field unchanged.
func setFieldFromEnv(field reflect.Value, envValue string) {
	if field.CanAddr() && field.Addr().Type().Implements(textUnmarshalerType) {
		u := field.Addr().Interface().(encoding.TextUnmarshaler)
		_ = u.UnmarshalText([]byte(envValue))
		return
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(envValue)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if v, err := strconv.ParseInt(envValue, 10, 64); err == nil {
			field.SetInt(v)
		}
	case reflect.Bool:
		field.SetBool(parseBool(envValue))
	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			values := strings.Split(envValue, ",")
			slice := reflect.MakeSlice(field.Type(), len(values), len(values))
			for i, v := range values {
				slice.Index(i).SetString(strings.TrimSpace(v))
			}
			field.Set(slice)
		}
	}
}

func parseBool(s string) bool {
	s = strings.ToLower(s)
	return s == "true" || s == "1" || s == "yes" || s == "y"
}

// ListenAddress returns the plain IRC listen address
func (c *Config) ListenAddress() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// TLSListenAddress returns the TLS IRC listen address
func (c *Config) TLSListenAddress() string {
	return net.JoinHostPort(c.TLS.Host, strconv.Itoa(c.TLS.Port))
}

// AdminListenAddress returns the admin HTTP listen address
func (c *Config) AdminListenAddress() string {
	return net.JoinHostPort(c.Admin.Host, strconv.Itoa(c.Admin.Port))
}
