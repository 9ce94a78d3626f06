// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads academic.yaml, applies environment overrides, and
// validates the result.
//
// Precedence, lowest to highest: Default(), the YAML file, environment
// variables. Secrets (LLM key, Weaviate key, Redis password) are only read
// from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the variable consulted when no --config flag is given.
const EnvConfigPath = "ACADEMIC_CONFIG"

// envWorkerPrefix prefixes per-worker interpreter overrides, for example
// ACADEMIC_ENV_PDF_PROCESSING_ENV=/opt/conda/envs/mineru/bin/python.
const envWorkerPrefix = "ACADEMIC_ENV_"

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

var validate = validator.New()

// Load reads the configuration.
//
// # Description
//
// Starts from Default, overlays the YAML file at path (or $ACADEMIC_CONFIG
// when path is empty; no file at all is allowed), applies environment
// overrides, then validates struct tags.
//
// # Inputs
//
//   - path: YAML file path. Empty means $ACADEMIC_CONFIG or defaults only.
//
// # Outputs
//
//   - *Config: the merged configuration.
//   - error: read/parse failures, or ErrInvalidConfig on validation failure.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(&cfg, os.Environ())

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks struct tags and cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.Evidence.Backend == "weaviate" && c.Evidence.Weaviate.URL == "" {
		return fmt.Errorf("%w: evidence.weaviate.url is required for the weaviate backend", ErrInvalidConfig)
	}
	if c.Checkpoint.Backend == "redis" && c.Checkpoint.Redis.Addr == "" {
		return fmt.Errorf("%w: checkpoint.redis.addr is required for the redis backend", ErrInvalidConfig)
	}
	if c.Checkpoint.Backend == "badger" && !c.Checkpoint.Badger.InMemory && c.Checkpoint.Badger.Path == "" {
		return fmt.Errorf("%w: checkpoint.badger.path is required unless in_memory", ErrInvalidConfig)
	}
	return nil
}

// applyEnv overlays environment variables given as KEY=VALUE pairs.
func applyEnv(cfg *Config, environ []string) {
	env := make(map[string]string, len(environ))
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		env[k] = v
		if strings.HasPrefix(k, envWorkerPrefix) && v != "" {
			if cfg.Workers.Environments == nil {
				cfg.Workers.Environments = map[string]string{}
			}
			key := strings.ToLower(strings.TrimPrefix(k, envWorkerPrefix))
			cfg.Workers.Environments[key] = v
		}
	}

	setString(env, "ACADEMIC_SERVER_ADDR", &cfg.Server.Addr)
	setString(env, "ACADEMIC_API_TOKEN", &cfg.Server.APIToken)
	setString(env, "ACADEMIC_LOG_LEVEL", &cfg.Logging.Level)
	setString(env, "ACADEMIC_LOG_DIR", &cfg.Logging.Dir)
	setString(env, "ACADEMIC_LOG_REDIS_ADDR", &cfg.Logging.Export.Redis.Addr)
	setString(env, "ACADEMIC_STORAGE_ROOT", &cfg.Storage.Root)
	setString(env, "ACADEMIC_PROJECT_ROOT", &cfg.Workers.ProjectRoot)
	setString(env, "ACADEMIC_LLM_BASE_URL", &cfg.LLM.BaseURL)
	setString(env, "ACADEMIC_LLM_MODEL", &cfg.LLM.Model)
	setString(env, "ACADEMIC_EVIDENCE_BACKEND", &cfg.Evidence.Backend)
	setString(env, "ACADEMIC_WEAVIATE_URL", &cfg.Evidence.Weaviate.URL)
	setString(env, "WEAVIATE_API_KEY", &cfg.Evidence.Weaviate.APIKey)
	setString(env, "ACADEMIC_CHECKPOINT_BACKEND", &cfg.Checkpoint.Backend)
	setString(env, "ACADEMIC_REDIS_ADDR", &cfg.Checkpoint.Redis.Addr)
	setString(env, "ACADEMIC_REDIS_PASSWORD", &cfg.Checkpoint.Redis.Password)
	setString(env, "OTEL_TRACES_EXPORTER", &cfg.Telemetry.TraceExporter)
	setString(env, "OTEL_EXPORTER_OTLP_ENDPOINT", &cfg.Telemetry.OTLPEndpoint)

	if v, ok := env["ACADEMIC_INGESTION_WATCH"]; ok {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Ingestion.Watch = b
		}
	}

	keyVar := cfg.LLM.APIKeyEnv
	if keyVar == "" {
		keyVar = "OPENAI_API_KEY"
	}
	if v := env[keyVar]; v != "" {
		cfg.LLM.APIKey = v
	} else if v := env["OPENAI_API_KEY"]; v != "" {
		cfg.LLM.APIKey = v
	}
}

func setString(env map[string]string, key string, dst *string) {
	if v, ok := env[key]; ok && v != "" {
		*dst = v
	}
}
