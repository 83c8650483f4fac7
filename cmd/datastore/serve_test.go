package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewServeOptions_ConfigPathFromEnv(t *testing.T) {
	t.Setenv("CONFIG_PATH", "/etc/datastore/config.yml")
	assert.Equal(t, "/etc/datastore/config.yml", NewServeOptions().ConfigPath)

	t.Setenv("CONFIG_PATH", "")
	assert.Equal(t, "config.yml", NewServeOptions().ConfigPath)
}

func TestServeOptions_Validate(t *testing.T) {
	o := &ServeOptions{}
	assert.Error(t, o.Validate())

	o.ConfigPath = "config.yml"
	assert.NoError(t, o.Validate())
}

func TestServeOptions_Complete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	content := `
cassandra:
  hosts: ["127.0.0.1"]
  keyspace: library
appPort: ":9090"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	o := &ServeOptions{ConfigPath: path}
	require.NoError(t, o.Complete())
	assert.Equal(t, ":9090", o.config.AppPort)
	assert.Equal(t, "library", o.config.Cassandra.Keyspace)
}

func TestNewServeCommand_Flags(t *testing.T) {
	cmd := NewServeCommand(context.Background())

	require.NoError(t, cmd.Flags().Parse([]string{"--config", "other.yml"}))
	flag := cmd.Flags().Lookup("config")
	require.NotNil(t, flag)
	assert.Equal(t, "other.yml", flag.Value.String())
}
