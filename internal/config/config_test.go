package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}

	if cfg.Ollama.BaseURL != "http://127.0.0.1:11434" {
		t.Errorf("Ollama.BaseURL = %q", cfg.Ollama.BaseURL)
	}
	if cfg.Storage.ProfilesFile != "models/profiles.json" {
		t.Errorf("Storage.ProfilesFile = %q", cfg.Storage.ProfilesFile)
	}
	if cfg.Ingest.ChunkMin != 1000 || cfg.Ingest.ChunkMax != 1000 {
		t.Errorf("chunk bounds = %d/%d, want 1000/1000", cfg.Ingest.ChunkMin, cfg.Ingest.ChunkMax)
	}
	if cfg.Ingest.OverlapMin != 100 || cfg.Ingest.OverlapMax != 100 {
		t.Errorf("overlap bounds = %d/%d, want 100/100", cfg.Ingest.OverlapMin, cfg.Ingest.OverlapMax)
	}
	if cfg.VectorStore.Type != "duckdb" {
		t.Errorf("VectorStore.Type = %q, want duckdb", cfg.VectorStore.Type)
	}
	if cfg.RAG.TopK != 4 {
		t.Errorf("RAG.TopK = %d, want 4", cfg.RAG.TopK)
	}
}

func TestLoad_LegacyEnv(t *testing.T) {
	t.Setenv("BASE_URL", "http://ollama:11434")
	t.Setenv("PROFILES_FILE", "/data/profiles.json")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}

	if cfg.Ollama.BaseURL != "http://ollama:11434" {
		t.Errorf("Ollama.BaseURL = %q, want env override", cfg.Ollama.BaseURL)
	}
	if cfg.Storage.ProfilesFile != "/data/profiles.json" {
		t.Errorf("Storage.ProfilesFile = %q, want env override", cfg.Storage.ProfilesFile)
	}
}

func TestLoad_PrefixedEnv(t *testing.T) {
	t.Setenv("RAG_SERVER_PORT", "9090")
	t.Setenv("RAG_RAG_TOPK", "8")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.RAG.TopK != 8 {
		t.Errorf("RAG.TopK = %d, want 8", cfg.RAG.TopK)
	}
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
server:
  port: 7000
ingest:
  chunkMin: 500
  chunkMax: 2000
  overlapMin: 50
  overlapMax: 200
vectorStore:
  type: elasticsearch
`)
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}

	if cfg.Server.Port != 7000 {
		t.Errorf("Server.Port = %d, want 7000", cfg.Server.Port)
	}
	if cfg.Ingest.ChunkMin != 500 || cfg.Ingest.ChunkMax != 2000 {
		t.Errorf("chunk bounds = %d/%d", cfg.Ingest.ChunkMin, cfg.Ingest.ChunkMax)
	}
	if cfg.VectorStore.Type != "elasticsearch" {
		t.Errorf("VectorStore.Type = %q", cfg.VectorStore.Type)
	}
	// 文件未覆盖的字段保持默认值
	if cfg.Ollama.BaseURL == "" {
		t.Error("Ollama.BaseURL should keep default")
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("Server.Port = %d, want 8000", cfg.Server.Port)
	}
}

func TestConfig_Validate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Ingest:      IngestConfig{ChunkMin: 1000, ChunkMax: 1000, OverlapMin: 100, OverlapMax: 100},
			VectorStore: VectorStoreConfig{Type: "duckdb"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(c *Config) {}, wantErr: false},
		{name: "chunk max below min", mutate: func(c *Config) { c.Ingest.ChunkMax = 10 }, wantErr: true},
		{name: "zero chunk min", mutate: func(c *Config) { c.Ingest.ChunkMin = 0 }, wantErr: true},
		{name: "overlap not below chunk", mutate: func(c *Config) { c.Ingest.OverlapMin = 1000; c.Ingest.OverlapMax = 1000 }, wantErr: true},
		{name: "elasticsearch store", mutate: func(c *Config) { c.VectorStore.Type = "elasticsearch" }, wantErr: false},
		{name: "es8 alias", mutate: func(c *Config) { c.VectorStore.Type = "es8" }, wantErr: false},
		{name: "memory store", mutate: func(c *Config) { c.VectorStore.Type = "memory" }, wantErr: false},
		{name: "unknown store", mutate: func(c *Config) { c.VectorStore.Type = "chroma" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			if err := c.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
