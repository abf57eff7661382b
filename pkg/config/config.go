// Package config loads preprocessor settings from YAML files.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/raymyers/ralph-cfront/pkg/cpp"
)

// Config holds the settings of a preprocessing run. Zero fields in a file
// keep their defaults; command-line flags override both.
type Config struct {
	Std               string   `yaml:"std"`
	Trigraphs         *bool    `yaml:"trigraphs,omitempty"`
	MaxIncludeDepth   int      `yaml:"max_include_depth"`
	Jobs              int      `yaml:"jobs"`
	IncludePaths      []string `yaml:"include_paths"`
	SystemPaths       []string `yaml:"system_paths"`
	QuotePaths        []string `yaml:"quote_paths"`
	Defines           []string `yaml:"defines"`
	Undefines         []string `yaml:"undefines"`
	DetectSystemPaths bool     `yaml:"detect_system_paths"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Std:             "c17",
		MaxIncludeDepth: cpp.DefaultMaxIncludeDepth,
	}
}

// Load reads the YAML file at path on top of the defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML on top of the defaults and validates the result.
// Unknown keys are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the settings for consistency.
func (c Config) Validate() error {
	var errs []error
	if _, err := cpp.ParseStd(c.Std); err != nil {
		errs = append(errs, err)
	}
	if c.MaxIncludeDepth < 0 {
		errs = append(errs, fmt.Errorf("max_include_depth must not be negative, got %d", c.MaxIncludeDepth))
	}
	if c.Jobs < 0 {
		errs = append(errs, fmt.Errorf("jobs must not be negative, got %d", c.Jobs))
	}
	for _, name := range c.Undefines {
		if !cpp.IsIdentifier(name) {
			errs = append(errs, fmt.Errorf("undefines: %q is not an identifier", name))
		}
	}
	for _, def := range c.Defines {
		name, _, _ := strings.Cut(def, "=")
		if i := strings.IndexByte(name, '('); i >= 0 {
			name = name[:i]
		}
		if !cpp.IsIdentifier(name) {
			errs = append(errs, fmt.Errorf("defines: %q does not start with an identifier", def))
		}
	}
	return errors.Join(errs...)
}

// Options returns the preprocessor options the settings describe.
func (c Config) Options() cpp.Options {
	std, err := cpp.ParseStd(c.Std)
	if err != nil {
		std = cpp.C17
	}
	return cpp.Options{
		Trigraphs:       c.Trigraphs == nil || *c.Trigraphs,
		MaxIncludeDepth: c.MaxIncludeDepth,
		Std:             std,
	}
}
