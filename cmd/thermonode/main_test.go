package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points the config loader at an empty file so a host-wide
// /etc/thermonode.toml cannot leak into the test.
func isolate(t *testing.T) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "thermonode.toml")
	require.NoError(t, os.WriteFile(path, nil, 0o600))
	t.Setenv("THERMONODE_CONFIG", path)
}

func TestRunHelp(t *testing.T) {
	isolate(t)
	assert.Equal(t, exitOK, run([]string{"--help"}))
}

func TestRunRejectsInvalidRole(t *testing.T) {
	isolate(t)

	tests := []struct {
		name string
		args []string
	}{
		{"neither role", []string{}},
		{"both roles", []string{"--publisher-id=pico1", "--output-pin=15"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, exitConfig, run(tt.args))
		})
	}
}

func TestRunRejectsInvalidValues(t *testing.T) {
	isolate(t)
	assert.Equal(t, exitConfig, run([]string{"--publisher-id=pico1", "--transport=carrier-pigeon"}))
}
