// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "academic.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "pdf_processing_env", cfg.Workers.Parser.Env)
	assert.Equal(t, 5, cfg.Evidence.TopK)
}

func TestLoad_YAMLOverlaysDefaults(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	path := writeConfig(t, `
server:
  addr: ":9000"
workers:
  project_root: /srv/academic
  environments:
    pdf_processing_env: /opt/envs/mineru/bin/python
gate:
  max_hold: 45m
checkpoint:
  backend: redis
  redis:
    addr: redis:6379
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, "/srv/academic", cfg.Workers.ProjectRoot)
	assert.Equal(t, "/opt/envs/mineru/bin/python", cfg.Workers.Environments["pdf_processing_env"])
	assert.Equal(t, 45*time.Minute, cfg.Gate.MaxHold)
	assert.Equal(t, "redis", cfg.Checkpoint.Backend)
	// untouched sections keep defaults
	assert.Equal(t, "deepseek-chat", cfg.LLM.Model)
	assert.Equal(t, "data_layer/search_wrapper.py", cfg.Workers.Search.Script)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	t.Setenv("ACADEMIC_STORAGE_ROOT", "/data/storage")
	t.Setenv("ACADEMIC_ENV_SCIENTIFIC_ENV", "/opt/envs/sympy/bin/python")
	t.Setenv("DEEPSEEK_API_KEY", "sk-test")
	t.Setenv("ACADEMIC_INGESTION_WATCH", "true")
	t.Setenv("ACADEMIC_LOG_REDIS_ADDR", "redis:6379")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "/data/storage", cfg.Storage.Root)
	assert.Equal(t, "/opt/envs/sympy/bin/python", cfg.Workers.Environments["scientific_env"])
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.True(t, cfg.Ingestion.Watch)
	assert.Equal(t, "redis:6379", cfg.Logging.Export.Redis.Addr)
	assert.Equal(t, "academic:logs", cfg.Logging.Export.Stream)
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	tests := []struct {
		name string
		body string
	}{
		{"unknown checkpoint backend", "checkpoint:\n  backend: etcd\n"},
		{"bad llm url", "llm:\n  base_url: not a url\n"},
		{"weaviate without url", "evidence:\n  backend: weaviate\n  weaviate:\n    url: \"\"\n"},
		{"tiny context budget", "ingestion:\n  context_budget: 10\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidConfig)
}

func TestLoad_MalformedYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "server: [unterminated"))
	require.Error(t, err)
}
