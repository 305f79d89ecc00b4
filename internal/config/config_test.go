// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_MissingFileReturnsErrConfigNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	if !errors.Is(err, ErrConfigNotFound) {
		t.Fatalf("expected ErrConfigNotFound, got %v", err)
	}
}

func TestLoad_ValidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ospreid.yml")
	content := []byte("listen_addr: \":9090\"\ndatabase_url: \"/tmp/osprei.db\"\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":9090" {
		t.Errorf("ListenAddr = %q, want :9090", cfg.ListenAddr)
	}
	if cfg.DatabaseURL != "/tmp/osprei.db" {
		t.Errorf("DatabaseURL = %q, want /tmp/osprei.db", cfg.DatabaseURL)
	}
	if cfg.ContainerEngine != "docker" {
		t.Errorf("ContainerEngine default not preserved, got %q", cfg.ContainerEngine)
	}
}

func TestLoad_EmptyListenAddrFailsValidation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ospreid.yml")
	if err := os.WriteFile(path, []byte("listen_addr: \"\"\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for empty listen_addr")
	}
}

func TestApplyEnv_OverridesFileValues(t *testing.T) {
	cfg := Default()
	env := map[string]string{
		"DATABASE_URL":            "/var/lib/osprei/osprei.db",
		"OSPREID_LISTEN_ADDR":     ":7000",
		"OSPREID_CONTAINER_ENGINE": "podman",
	}
	cfg.ApplyEnv(func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	})
	if cfg.DatabaseURL != "/var/lib/osprei/osprei.db" {
		t.Errorf("DatabaseURL = %q", cfg.DatabaseURL)
	}
	if cfg.ListenAddr != ":7000" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.ContainerEngine != "podman" {
		t.Errorf("ContainerEngine = %q", cfg.ContainerEngine)
	}
}
