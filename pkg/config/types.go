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

import "time"

// Config is the root of academic.yaml.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Logging    LoggingConfig    `yaml:"logging"`
	Storage    StorageConfig    `yaml:"storage"`
	Workers    WorkersConfig    `yaml:"workers"`
	LLM        LLMConfig        `yaml:"llm"`
	Evidence   EvidenceConfig   `yaml:"evidence"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
	Gate       GateConfig       `yaml:"gate"`
	Ingestion  IngestionConfig  `yaml:"ingestion"`
	Reasoning  ReasoningConfig  `yaml:"reasoning"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `yaml:"addr" validate:"required"`

	// APIToken, when set, is required as a bearer token on /v1 routes.
	// Read from ACADEMIC_API_TOKEN only.
	APIToken string `yaml:"-"`

	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LoggingConfig maps onto logging.Config.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Dir    string `yaml:"dir"`
	Format string `yaml:"format" validate:"omitempty,oneof=text json"`

	// Export ships every record to a Redis stream when Export.Redis.Addr
	// is set.
	Export LogExportConfig `yaml:"export"`
}

// LogExportConfig configures the Redis stream log exporter.
type LogExportConfig struct {
	Redis  RedisConfig `yaml:"redis"`
	Stream string      `yaml:"stream"`
	MaxLen int64       `yaml:"max_len" validate:"gte=0"`
}

// StorageConfig locates the asset tree. Raw uploads live under Root/raw and
// worker outputs under Root/processed.
type StorageConfig struct {
	Root string `yaml:"root" validate:"required"`
}

// WorkerSpec binds one worker to an interpreter key and a script path
// relative to WorkersConfig.ProjectRoot.
type WorkerSpec struct {
	Env    string `yaml:"env" validate:"required"`
	Script string `yaml:"script" validate:"required"`
}

// WorkersConfig describes every out-of-process worker.
type WorkersConfig struct {
	// ProjectRoot is the working directory for worker processes and the
	// base for relative script paths.
	ProjectRoot string `yaml:"project_root" validate:"required"`

	// Environments maps a worker key to an interpreter executable.
	Environments map[string]string `yaml:"environments"`

	// Timeout bounds a single invocation. Zero means no limit.
	Timeout time.Duration `yaml:"timeout"`

	Parser      WorkerSpec `yaml:"parser"`
	Slicer      WorkerSpec `yaml:"slicer"`
	Transcriber WorkerSpec `yaml:"transcriber"`
	Indexer     WorkerSpec `yaml:"indexer"`
	Search      WorkerSpec `yaml:"search"`
	Vision      WorkerSpec `yaml:"vision"`
	Sandbox     WorkerSpec `yaml:"sandbox"`
}

// LLMConfig configures the OpenAI-compatible chat backend.
type LLMConfig struct {
	BaseURL string `yaml:"base_url" validate:"required,url"`
	Model   string `yaml:"model" validate:"required"`

	// APIKeyEnv names the environment variable holding the bearer token.
	APIKeyEnv string `yaml:"api_key_env"`

	// APIKey is resolved from APIKeyEnv at load time and never serialized.
	APIKey string `yaml:"-"`

	Temperature       float32       `yaml:"temperature" validate:"gte=0,lte=2"`
	MaxTokens         int           `yaml:"max_tokens" validate:"gte=0"`
	RequestsPerSecond float64       `yaml:"requests_per_second" validate:"gte=0"`
	Burst             int           `yaml:"burst" validate:"gte=0"`
	Timeout           time.Duration `yaml:"timeout"`
}

// WeaviateConfig locates a Weaviate instance.
type WeaviateConfig struct {
	URL    string `yaml:"url" validate:"omitempty,url"`
	Class  string `yaml:"class"`
	APIKey string `yaml:"-"`
}

// EvidenceConfig selects the evidence search backend.
type EvidenceConfig struct {
	Backend  string         `yaml:"backend" validate:"required,oneof=worker weaviate"`
	TopK     int            `yaml:"top_k" validate:"gte=1,lte=50"`
	Weaviate WeaviateConfig `yaml:"weaviate"`
}

// BadgerConfig configures the embedded checkpoint store.
type BadgerConfig struct {
	Path       string        `yaml:"path"`
	InMemory   bool          `yaml:"in_memory"`
	GCInterval time.Duration `yaml:"gc_interval"`
}

// RedisConfig configures the networked checkpoint store.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"-"`
	DB       int           `yaml:"db" validate:"gte=0"`
	Prefix   string        `yaml:"prefix"`
	TTL      time.Duration `yaml:"ttl"`
}

// CheckpointConfig selects the checkpoint backend.
type CheckpointConfig struct {
	Backend string       `yaml:"backend" validate:"required,oneof=badger redis"`
	Badger  BadgerConfig `yaml:"badger"`
	Redis   RedisConfig  `yaml:"redis"`
}

// GateConfig configures the supervisory lease on the resource gate.
type GateConfig struct {
	// MaxHold force-releases a holder older than this. Zero disables it.
	MaxHold           time.Duration `yaml:"max_hold"`
	SuperviseInterval time.Duration `yaml:"supervise_interval"`
}

// IngestionConfig configures sweeps and the raw-asset watcher.
type IngestionConfig struct {
	Watch         bool          `yaml:"watch"`
	Debounce      time.Duration `yaml:"debounce"`
	ContextBudget int           `yaml:"context_budget" validate:"gte=500"`
	ChunkOverlap  int           `yaml:"chunk_overlap" validate:"gte=0"`
}

// ReasoningConfig configures the workflow engine.
type ReasoningConfig struct {
	MaxSteps int `yaml:"max_steps" validate:"gte=5"`
}

// TelemetryConfig maps onto telemetry.Config.
type TelemetryConfig struct {
	ServiceName    string `yaml:"service_name"`
	TraceExporter  string `yaml:"trace_exporter" validate:"omitempty,oneof=otlp stdout none"`
	MetricExporter string `yaml:"metric_exporter" validate:"omitempty,oneof=prometheus stdout none"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
}

// Default returns a Config matching the reference worker layout.
func Default() Config {
	return Config{
		Server:  ServerConfig{Addr: ":12210", ShutdownTimeout: 15 * time.Second},
		Logging: LoggingConfig{
			Level:  "info",
			Export: LogExportConfig{Stream: "academic:logs", MaxLen: 100000},
		},
		Storage: StorageConfig{Root: "storage"},
		Workers: WorkersConfig{
			ProjectRoot:  ".",
			Environments: map[string]string{},
			Timeout:      30 * time.Minute,
			Parser:       WorkerSpec{Env: "pdf_processing_env", Script: "data_layer/pdf_pro/pdf_wrapper.py"},
			Slicer:       WorkerSpec{Env: "video_vision_env", Script: "data_layer/video_pro/video_wrapper.py"},
			Transcriber:  WorkerSpec{Env: "audio_processing_env", Script: "data_layer/audio_pro/audio_wrapper.py"},
			Indexer:      WorkerSpec{Env: "data_env", Script: "data_layer/data_wrapper.py"},
			Search:       WorkerSpec{Env: "data_env", Script: "data_layer/search_wrapper.py"},
			Vision:       WorkerSpec{Env: "visual_reasoning_env", Script: "services/reasoning_eye/visual_wrapper.py"},
			Sandbox:      WorkerSpec{Env: "scientific_env", Script: "services/sandbox/sandbox_wrapper.py"},
		},
		LLM: LLMConfig{
			BaseURL:           "https://api.deepseek.com/v1",
			Model:             "deepseek-chat",
			APIKeyEnv:         "DEEPSEEK_API_KEY",
			Temperature:       0.1,
			MaxTokens:         2048,
			RequestsPerSecond: 2,
			Burst:             4,
			Timeout:           2 * time.Minute,
		},
		Evidence: EvidenceConfig{
			Backend:  "worker",
			TopK:     5,
			Weaviate: WeaviateConfig{URL: "http://localhost:8080", Class: "EvidenceChunk"},
		},
		Checkpoint: CheckpointConfig{
			Backend: "badger",
			Badger:  BadgerConfig{Path: "storage/checkpoints", GCInterval: 5 * time.Minute},
			Redis:   RedisConfig{Addr: "localhost:6379", Prefix: "academic:ckpt:", TTL: 7 * 24 * time.Hour},
		},
		Gate: GateConfig{MaxHold: 2 * time.Hour, SuperviseInterval: 30 * time.Second},
		Ingestion: IngestionConfig{
			Debounce:      5 * time.Second,
			ContextBudget: 24000,
			ChunkOverlap:  400,
		},
		Reasoning: ReasoningConfig{MaxSteps: 16},
		Telemetry: TelemetryConfig{
			ServiceName:    "academic-agent",
			TraceExporter:  "none",
			MetricExporter: "prometheus",
			OTLPEndpoint:   "localhost:4317",
		},
	}
}
