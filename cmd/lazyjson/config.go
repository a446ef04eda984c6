// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kraklabs/lazyjson/internal/bootstrap"
	"github.com/kraklabs/lazyjson/internal/errors"
	"github.com/kraklabs/lazyjson/pkg/storage"
	"github.com/kraklabs/lazyjson/pkg/syncer"
)

// DefaultConfigPath is read when --config is not given. A missing file at
// this path is not an error.
const DefaultConfigPath = ".lazyjson/config.yaml"

const (
	envBackends = "LAZYJSON_BACKENDS"
	envMongoURI = "MONGODB_CONNECTION_STRING"
)

// Config is the on-disk configuration.
//
//	backends: [mongodb, file]
//	root: cf-graph
//	mongodb:
//	  database: cf_graph
//	  timeout: 30s
//	sync:
//	  batch_size: 5000
type Config struct {
	Backends         []string      `yaml:"backends"`
	Root             string        `yaml:"root"`
	MongoDB          MongoDBConfig `yaml:"mongodb"`
	Sync             SyncConfig    `yaml:"sync"`
	ExcludeRootFiles []string      `yaml:"exclude_root_files,omitempty"`
}

// MongoDBConfig configures the mongodb backend. The URI usually comes from
// MONGODB_CONNECTION_STRING rather than the file.
type MongoDBConfig struct {
	URI      string        `yaml:"uri,omitempty"`
	Database string        `yaml:"database"`
	Timeout  time.Duration `yaml:"timeout"`
}

// SyncConfig holds sync defaults.
type SyncConfig struct {
	BatchSize int `yaml:"batch_size"`
}

// DefaultConfig returns the configuration used when no file exists: the
// current directory as a file-only graph.
func DefaultConfig() *Config {
	return &Config{
		Backends: []string{storage.FileBackendName},
		Root:     ".",
		MongoDB: MongoDBConfig{
			Database: storage.DefaultMongoDatabase,
			Timeout:  30 * time.Second,
		},
		Sync: SyncConfig{BatchSize: syncer.DefaultBatchSize},
	}
}

// LoadConfig reads the file at path over the defaults and applies
// environment overrides. An empty path reads DefaultConfigPath if present.
func LoadConfig(path string, getenv func(string) string) (*Config, error) {
	cfg := DefaultConfig()
	explicit := path != ""
	if !explicit {
		path = DefaultConfigPath
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := decodeConfig(bytes.NewReader(data), cfg); err != nil {
			return nil, errors.NewConfigError(
				"Cannot parse "+path,
				err.Error(),
				"Fix the YAML syntax or remove unknown fields",
				err,
			)
		}
	case stderrors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return nil, errors.NewConfigError(
			"Cannot read "+path,
			err.Error(),
			"Check the --config path",
			err,
		)
	}

	cfg.applyEnv(getenv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeConfig(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !stderrors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if getenv == nil {
		return
	}
	if v := getenv(envBackends); v != "" {
		var names []string
		for _, n := range strings.Split(v, ":") {
			if n = strings.TrimSpace(n); n != "" {
				names = append(names, n)
			}
		}
		c.Backends = names
	}
	if v := getenv(envMongoURI); v != "" {
		c.MongoDB.URI = v
	}
}

// Validate reports the first problem found as a config UserError.
func (c *Config) Validate() error {
	known := map[string]bool{
		storage.FileBackendName:   true,
		storage.MongoBackendName:  true,
		storage.MemoryBackendName: true,
	}
	if len(c.Backends) == 0 {
		return errors.NewConfigError("No backends configured", "backends is empty",
			"Set backends in "+DefaultConfigPath+" or "+envBackends+"=file", nil)
	}
	seen := make(map[string]bool)
	for _, name := range c.Backends {
		if !known[name] {
			return errors.NewConfigError("Unknown backend "+fmt.Sprintf("%q", name), "",
				"Use a colon separated list of file, mongodb and memory", nil)
		}
		if seen[name] {
			return errors.NewConfigError(fmt.Sprintf("Backend %q listed twice", name), "", "", nil)
		}
		seen[name] = true
	}
	if seen[storage.MongoBackendName] && c.MongoDB.URI == "" {
		return errors.NewConfigError("MongoDB connection string missing",
			"The mongodb backend is enabled but no URI is set",
			"Export "+envMongoURI, nil)
	}
	if c.Root == "" {
		return errors.NewConfigError("Graph root is empty", "", "Set root in "+DefaultConfigPath, nil)
	}
	if c.Sync.BatchSize < 0 {
		return errors.NewConfigError("Invalid sync.batch_size",
			fmt.Sprintf("%d is negative", c.Sync.BatchSize), "Use 0 for the default", nil)
	}
	return nil
}

// Bootstrap converts the file configuration into backend configuration.
func (c *Config) Bootstrap() bootstrap.Config {
	return bootstrap.Config{
		Backends: c.Backends,
		Root:     c.Root,
		Mongo: storage.MongoConfig{
			URI:      c.MongoDB.URI,
			Database: c.MongoDB.Database,
			Timeout:  c.MongoDB.Timeout,
		},
		ExcludeRootFiles: c.ExcludeRootFiles,
	}
}
