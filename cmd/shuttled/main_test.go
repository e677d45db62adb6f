package main

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestCommandRejectsPositionalArgs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cmd := newCommand()
	cmd.SetArgs([]string{"--config", path, "--log-level", "debug", "extra"})
	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "unknown command") && !strings.Contains(err.Error(), "accepts 0 arg") {
		t.Fatalf("expected positional args to be rejected, got %v", err)
	}
}

func TestCommandFlags(t *testing.T) {
	cmd := newCommand()
	for _, name := range []string{"config", "log-level", "socket", "development"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Fatalf("missing flag %q", name)
		}
	}
}
