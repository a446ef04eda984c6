// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/lazyjson/internal/errors"
)

func env(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfig_File(t *testing.T) {
	path := writeConfig(t, `
backends: [mongodb, file]
root: /srv/cf-graph
mongodb:
  uri: mongodb://db:27017
  database: graph
  timeout: 5s
sync:
  batch_size: 100
exclude_root_files: [all_feedstocks.json]
`)
	cfg, err := LoadConfig(path, env(nil))
	require.NoError(t, err)

	want := &Config{
		Backends:         []string{"mongodb", "file"},
		Root:             "/srv/cf-graph",
		MongoDB:          MongoDBConfig{URI: "mongodb://db:27017", Database: "graph", Timeout: 5 * time.Second},
		Sync:             SyncConfig{BatchSize: 100},
		ExcludeRootFiles: []string{"all_feedstocks.json"},
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("LoadConfig() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadConfig_DefaultsWhenMissing(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := LoadConfig("", env(nil))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfig_ExplicitMissing(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"), env(nil))
	var ue *errors.UserError
	require.True(t, stderrors.As(err, &ue))
	assert.Equal(t, errors.ExitConfig, ue.ExitCode)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "backends: [file]\n")
	cfg, err := LoadConfig(path, env(map[string]string{
		"LAZYJSON_BACKENDS":         "mongodb: file",
		"MONGODB_CONNECTION_STRING": "mongodb://env:27017",
	}))
	require.NoError(t, err)
	assert.Equal(t, []string{"mongodb", "file"}, cfg.Backends)
	assert.Equal(t, "mongodb://env:27017", cfg.MongoDB.URI)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		env  map[string]string
		want string
	}{
		{"unknown field", "backend: [file]\n", nil, "Cannot parse"},
		{"unknown backend", "backends: [redis]\n", nil, `Unknown backend "redis"`},
		{"duplicate backend", "backends: [file, file]\n", nil, "listed twice"},
		{"mongo without uri", "backends: [mongodb]\n", nil, "connection string missing"},
		{"negative batch", "sync:\n  batch_size: -1\n", nil, "batch_size"},
		{"empty root", "root: \"\"\n", nil, "root is empty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.body), env(tt.env))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			var ue *errors.UserError
			require.True(t, stderrors.As(err, &ue))
			assert.Equal(t, errors.ExitConfig, ue.ExitCode)
		})
	}
}

func TestConfig_Bootstrap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backends = []string{"mongodb", "file"}
	cfg.MongoDB.URI = "mongodb://x"
	bc := cfg.Bootstrap()
	assert.Equal(t, cfg.Backends, bc.Backends)
	assert.Equal(t, "mongodb://x", bc.Mongo.URI)
	assert.Equal(t, 30*time.Second, bc.Mongo.Timeout)
	assert.Nil(t, bc.ExcludeRootFiles)
}
