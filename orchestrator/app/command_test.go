package app

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
)

func TestCommandRejectsPositionalArgs(t *testing.T) {
	cmd := NewCommand()
	cmd.SetArgs([]string{"extra"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	if err := cmd.Execute(); err == nil {
		t.Fatalf("expected error for positional argument")
	}
}

func TestCommandReportsValidationErrors(t *testing.T) {
	cmd := NewCommand()
	cmd.SetArgs([]string{"-u", "http://localhost:8545", "-f", "request.json"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "connections") {
		t.Fatalf("expected connections validation error, got %v", err)
	}
}

func TestCommandReadsEnvironment(t *testing.T) {
	t.Setenv("RPCLOAD_CONNECTIONS", "0")
	t.Setenv("RPCLOAD_RAMP", "sawtooth")
	cmd := NewCommand()
	cmd.SetArgs([]string{"-u", "http://localhost:8545", "-c", "1", "-f", filepath.Join(t.TempDir(), "request.json")})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "sawtooth") {
		t.Fatalf("expected ramp from environment to be validated, got %v", err)
	}
}
