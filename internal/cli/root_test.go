// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"strings"
	"testing"
)

func noopServe(string) error { return nil }

func TestNewRootCommand_HasExpectedBasics(t *testing.T) {
	cmd := NewRootCommand(noopServe)

	if cmd.Use != "ospreid" {
		t.Fatalf("expected Use to be 'ospreid', got %q", cmd.Use)
	}
	if cmd.Short == "" {
		t.Fatal("expected Short description to be non-empty")
	}

	versionCmd, _, err := cmd.Find([]string{"version"})
	if err != nil {
		t.Fatalf("expected to find 'version' subcommand, got error: %v", err)
	}
	if versionCmd.Use != "version" {
		t.Fatalf("expected 'version' command Use to be 'version', got %q", versionCmd.Use)
	}

	serveCmd, _, err := cmd.Find([]string{"serve"})
	if err != nil {
		t.Fatalf("expected to find 'serve' subcommand, got error: %v", err)
	}
	if serveCmd.Use != "serve" {
		t.Fatalf("expected 'serve' command Use to be 'serve', got %q", serveCmd.Use)
	}
}

func TestVersionCommand_PrintsVersion(t *testing.T) {
	cmd := NewRootCommand(noopServe)

	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"version"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("expected no error executing 'version' command, got: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "Osprei version") {
		t.Fatalf("expected output to contain 'Osprei version', got: %q", out)
	}
}

func TestServeCommand_InvokesServeFunc(t *testing.T) {
	var gotPath string
	cmd := NewRootCommand(func(path string) error {
		gotPath = path
		return nil
	})
	cmd.SetArgs([]string{"serve", "--config", "/tmp/ospreid.yml"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("expected no error executing 'serve' command, got: %v", err)
	}
	if gotPath != "/tmp/ospreid.yml" {
		t.Fatalf("expected serve to receive the --config flag value, got %q", gotPath)
	}
}
