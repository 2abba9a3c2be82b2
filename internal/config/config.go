// Package config loads interpose.yaml or interpose.toml: which proxies the
// generator emits, and the runtime defaults for rate limits and auditing.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/interpose/internal/gen"
	"github.com/ppiankov/interpose/internal/ratelimit"
)

// DefaultFiles are tried in order when no path is given.
var DefaultFiles = []string{"interpose.yaml", "interpose.yml", "interpose.toml"}

// Target names one proxy to generate.
type Target struct {
	Type       string   `yaml:"type" toml:"type"`
	Proxy      string   `yaml:"proxy" toml:"proxy"`
	Interfaces []string `yaml:"interfaces" toml:"interfaces"`
}

// Audit configures the audit log handler.
type Audit struct {
	Path   string `yaml:"path" toml:"path"`
	NoSync bool   `yaml:"no_sync" toml:"no_sync"`
}

// Config holds everything interpose reads from its config file.
type Config struct {
	Package    string           `yaml:"package" toml:"package"`
	Output     string           `yaml:"output" toml:"output"`
	Targets    []Target         `yaml:"targets" toml:"targets"`
	RateLimits ratelimit.Config `yaml:"rate_limits" toml:"rate_limits"`
	Audit      Audit            `yaml:"audit" toml:"audit"`
}

// DefaultConfig returns the settings used for fields a file leaves out.
func DefaultConfig() *Config {
	return &Config{
		Package: ".",
		Output:  "interpose_gen.go",
	}
}

// Validate checks the generator section.
func (c *Config) Validate() error {
	if c.Package == "" {
		return errors.New("config: package is required")
	}
	if strings.ContainsAny(c.Output, `/\`) {
		return fmt.Errorf("config: output %q must be a file name inside the package", c.Output)
	}
	if !strings.HasSuffix(c.Output, ".go") {
		return fmt.Errorf("config: output %q must end in .go", c.Output)
	}
	seen := make(map[string]bool)
	for i, t := range c.Targets {
		if t.Type == "" {
			return fmt.Errorf("config: target %d has no type", i)
		}
		name := t.Proxy
		if name == "" {
			name = t.Type + "Proxy"
		}
		if seen[name] {
			return fmt.Errorf("config: proxy %s declared twice", name)
		}
		seen[name] = true
	}
	for name, l := range c.RateLimits {
		if l == nil {
			continue
		}
		if l.MaxRequests < 0 || l.Window < 0 {
			return fmt.Errorf("config: rate limit for %s must not be negative", name)
		}
	}
	return nil
}

// Request turns the generator section into a gen.Request resolved from dir.
func (c *Config) Request(dir string) gen.Request {
	req := gen.Request{Dir: dir, Package: c.Package, Output: c.Output}
	for _, t := range c.Targets {
		req.Targets = append(req.Targets, gen.TargetSpec{
			Type:       t.Type,
			Proxy:      t.Proxy,
			Interfaces: t.Interfaces,
		})
	}
	return req
}

// Resolve returns path, or the first default file present in dir.
// It returns "" when there is none.
func Resolve(dir, path string) string {
	if path != "" {
		return path
	}
	for _, name := range DefaultFiles {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// LoadConfig loads a YAML or TOML config, chosen by extension.
// Missing file returns defaults. Invalid content returns an error.
func LoadConfig(path string) (*Config, error) {
	cfg, _, err := LoadConfigWithHash(path)
	return cfg, err
}

// LoadConfigWithHash loads a config and returns the SHA-256 of the raw
// bytes on disk. When no file exists the hash is that of empty input.
func LoadConfigWithHash(path string) (*Config, string, error) {
	if path == "" {
		return DefaultConfig(), hashOf(nil), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), hashOf(nil), nil
		}
		return nil, "", fmt.Errorf("failed to read config: %w", err)
	}

	// Start with defaults, the file overwrites only specified fields
	cfg := DefaultConfig()
	if err := decode(path, data, cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return cfg, hashOf(data), nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		_, err := toml.Decode(string(data), cfg)
		return err
	default:
		return yaml.Unmarshal(data, cfg)
	}
}

func hashOf(data []byte) string {
	h := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(h[:])
}
