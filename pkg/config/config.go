package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/smallyunet/ethpayload/pkg/codec"
	"github.com/smallyunet/ethpayload/pkg/forks"
	"github.com/smallyunet/ethpayload/pkg/logging"
)

// Config stores all configuration for payloadctl
type Config struct {
	// Execution client Engine API configuration
	Engine struct {
		Endpoint  string `yaml:"endpoint"`  // Engine API endpoint (e.g., "http://localhost:8551")
		JWTSecret string `yaml:"jwtSecret"` // Path to JWT secret file for authentication
		Timeout   int    `yaml:"timeout"`   // Request timeout in seconds
		Fork      string `yaml:"fork"`      // Fork used to pick engine_getPayload version
	} `yaml:"engine"`

	// Envelope store configuration
	Store struct {
		Dir        string `yaml:"dir"`        // Directory holding encoded envelopes and the index
		Codec      string `yaml:"codec"`      // Codec used for stored envelopes (json, rlp)
		CacheSize  int    `yaml:"cacheSize"`  // Decoded envelopes kept in memory
		MaxHistory int    `yaml:"maxHistory"` // Block numbers retained; 0 keeps everything
	} `yaml:"store"`

	Log struct {
		Level  string `yaml:"level"`  // debug, info, warn, error
		Format string `yaml:"format"` // text or json
	} `yaml:"log"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Engine.Endpoint = "http://localhost:8551"
	cfg.Engine.JWTSecret = "./jwt.hex"
	cfg.Engine.Timeout = 10
	cfg.Engine.Fork = "cancun"

	cfg.Store.Dir = "./payloads"
	cfg.Store.Codec = "json"
	cfg.Store.CacheSize = 128
	cfg.Store.MaxHistory = 4096

	cfg.Log.Level = "info"
	cfg.Log.Format = "text"

	return cfg
}

// Load reads configuration from path, falling back to $ETHPAYLOAD_CONFIG and
// then config.yaml. A missing file leaves the defaults in place.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = os.Getenv("ETHPAYLOAD_CONFIG")
	}
	if path == "" {
		path = "config.yaml"
	}

	if _, err := os.Stat(path); err == nil {
		file, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer file.Close()

		decoder := yaml.NewDecoder(file)
		if err := decoder.Decode(cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if host := os.Getenv("ENGINE_HOST"); host != "" {
		cfg.Engine.Endpoint = replaceHost(cfg.Engine.Endpoint, host)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the values that later stages cannot recover from.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Engine.Endpoint) == "" {
		return fmt.Errorf("engine endpoint cannot be empty")
	}
	if c.Engine.Timeout < 0 {
		return fmt.Errorf("engine timeout cannot be negative: %d", c.Engine.Timeout)
	}
	if _, err := forks.Parse(c.Engine.Fork); err != nil {
		return fmt.Errorf("engine fork: %w", err)
	}
	if _, err := codec.ByName(c.Store.Codec); err != nil {
		return fmt.Errorf("store codec: %w", err)
	}
	if c.Store.CacheSize < 0 || c.Store.MaxHistory < 0 {
		return fmt.Errorf("store cacheSize and maxHistory cannot be negative")
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	return nil
}

func replaceHost(rawURL, newHost string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		// Fallback to simple replacement if parsing fails
		return strings.Replace(rawURL, "localhost", newHost, 1)
	}

	port := u.Port()
	if port != "" {
		u.Host = newHost + ":" + port
	} else {
		u.Host = newHost
	}
	return u.String()
}

// Save writes the configuration as YAML. The file is only written once the
// whole document has encoded.
func (c *Config) Save(path string) error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return os.WriteFile(path, buf.Bytes(), 0644)
}
