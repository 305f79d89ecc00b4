// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config defines the Osprei configuration schema and helpers for
// loading and validating config files, following the teacher's
// pkg/config.Load shape: a YAML file validated into a Config struct, with
// the same ErrConfigNotFound/Exists pair.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/musergi/ospreid/internal/store"
)

// ErrConfigNotFound is returned when the config file does not exist at the
// given path.
var ErrConfigNotFound = errors.New("ospreid config not found")

// Config is the top-level Osprei daemon configuration.
type Config struct {
	// ListenAddr is the HTTP API's bind address, e.g. ":8080".
	ListenAddr string `yaml:"listen_addr"`
	// DatabaseURL is a sqlite file path. Empty selects the in-memory store.
	DatabaseURL string `yaml:"database_url,omitempty"`
	// ContainerEngine is the binary invoked by the runtime adapter.
	ContainerEngine string `yaml:"container_engine,omitempty"`
	// Verbose enables debug-level logging.
	Verbose bool `yaml:"verbose,omitempty"`
	// Templates seeds the template catalog at startup.
	Templates []TemplateConfig `yaml:"templates,omitempty"`
}

// TemplateConfig is one entry of the configured template catalog.
type TemplateConfig struct {
	Name        string            `yaml:"name"`
	Image       string            `yaml:"image"`
	WorkingDir  string            `yaml:"working_dir,omitempty"`
	Command     []string          `yaml:"command,omitempty"`
	Environment map[string]string `yaml:"environment,omitempty"`
}

// StoreTemplate converts a configured template entry into the store's
// representation, for seeding via store.TemplateSeeder at startup.
func (t TemplateConfig) StoreTemplate() store.Template {
	env := make([]store.EnvVar, 0, len(t.Environment))
	for k, v := range t.Environment {
		env = append(env, store.EnvVar{Name: k, Value: v})
	}
	return store.Template{
		Name: t.Name,
		Definition: store.StageDefinition{
			Image:       t.Image,
			WorkingDir:  t.WorkingDir,
			Command:     t.Command,
			Environment: env,
		},
	}
}

// DefaultConfigPath returns the default config path for the current
// working directory.
func DefaultConfigPath() string {
	return "ospreid.yml"
}

// Default returns the configuration used when no config file is present.
func Default() *Config {
	return &Config{
		ListenAddr:      ":8080",
		ContainerEngine: "docker",
	}
}

// Exists reports whether a config file exists at the given path. It
// returns (false, nil) if the file does not exist.
func Exists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err == nil {
		return !info.IsDir(), nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// Load reads and validates the config from the given path. It returns
// ErrConfigNotFound if the file does not exist.
func Load(path string) (*Config, error) {
	exists, err := Exists(path)
	if err != nil {
		return nil, fmt.Errorf("checking config existence: %w", err)
	}
	if !exists {
		return nil, ErrConfigNotFound
	}

	data, err := os.ReadFile(path) //nolint:gosec // path is operator-supplied, same trust boundary as the CLI itself
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overlays the environment variables the daemon recognizes onto
// cfg, mirroring the original implementation's environment-variable
// precedence (env always wins over the file).
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup("DATABASE_URL"); ok && v != "" {
		c.DatabaseURL = v
	}
	if v, ok := lookup("OSPREID_LISTEN_ADDR"); ok && v != "" {
		c.ListenAddr = v
	}
	if v, ok := lookup("OSPREID_CONTAINER_ENGINE"); ok && v != "" {
		c.ContainerEngine = v
	}
}

func validate(cfg *Config) error {
	if cfg.ListenAddr == "" {
		return errors.New("config: listen_addr must be non-empty")
	}
	for i, tmpl := range cfg.Templates {
		if tmpl.Name == "" {
			return fmt.Errorf("config: templates[%d].name must be non-empty", i)
		}
		if tmpl.Image == "" {
			return fmt.Errorf("config: templates[%q].image must be non-empty", tmpl.Name)
		}
	}
	return nil
}
