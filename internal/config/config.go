// Package config loads factory settings from a YAML or TOML file.
//
// Fields missing from the file keep their defaults. Unknown fields are
// rejected so that typos fail loudly instead of silently using a default.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/roach88/mintfactory/internal/factory"
	"github.com/roach88/mintfactory/internal/ir"
)

// DefaultSeed derives the factory identity when Self is empty.
const DefaultSeed = "mintfactory"

// Config holds every setting of the factory and its local replica.
type Config struct {
	// Self is the factory's principal in text form. Empty means the id
	// derived from DefaultSeed.
	Self string `yaml:"self" toml:"self"`

	// Database is the local replica's SQLite file.
	Database string `yaml:"database" toml:"database"`

	// ModulesDir replaces the embedded module catalog with a directory
	// holding catalog.cue and its payloads.
	ModulesDir string `yaml:"modules_dir" toml:"modules_dir"`

	CreateCycles  uint64 `yaml:"create_cycles" toml:"create_cycles"`
	InitialCycles uint64 `yaml:"initial_cycles" toml:"initial_cycles"`

	HandOff          bool `yaml:"hand_off" toml:"hand_off"`
	CleanupOnFailure bool `yaml:"cleanup_on_failure" toml:"cleanup_on_failure"`
	VerifyModuleKind bool `yaml:"verify_module_kind" toml:"verify_module_kind"`

	Listen   string `yaml:"listen" toml:"listen"`
	LogLevel string `yaml:"log_level" toml:"log_level"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Database:         "mintfactory.db",
		CreateCycles:     factory.DefaultCreateCycles,
		InitialCycles:    10_000_000_000_000,
		HandOff:          true,
		CleanupOnFailure: true,
		VerifyModuleKind: true,
		Listen:           ":8080",
		LogLevel:         "info",
	}
}

// Load reads path over the defaults. The format follows the extension:
// .yaml or .yml for YAML, .toml for TOML.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}

	cfg := Default()
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = decodeYAML(data, &cfg)
	case ".toml":
		err = decodeTOML(data, &cfg)
	default:
		return Config{}, fmt.Errorf("config load failed (%s): unsupported extension %q", path, ext)
	}
	if err != nil {
		return Config{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config invalid (%s): %w", path, err)
	}
	return cfg, nil
}

func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func decodeTOML(data []byte, cfg *Config) error {
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(cfg)
}

// Validate checks field values.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Database) == "" {
		return fmt.Errorf("database is required")
	}
	if c.CreateCycles == 0 {
		return fmt.Errorf("create_cycles must be positive")
	}
	if _, err := c.SelfID(); err != nil {
		return err
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// SelfID returns the factory principal.
func (c Config) SelfID() (ir.Principal, error) {
	if c.Self == "" {
		return ir.DerivePrincipal(DefaultSeed), nil
	}
	p, err := ir.ParsePrincipal(c.Self)
	if err != nil {
		return ir.Principal{}, fmt.Errorf("self: %w", err)
	}
	if p.IsAnonymous() {
		return ir.Principal{}, fmt.Errorf("self: the anonymous principal cannot own units")
	}
	return p, nil
}

// Level parses LogLevel.
func (c Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}
