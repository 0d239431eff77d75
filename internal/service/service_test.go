package service

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ashwinyue/rag-profiles/internal/config"
	"github.com/ashwinyue/rag-profiles/internal/service/profile"
	"github.com/ashwinyue/rag-profiles/internal/service/vectorstore"
	"github.com/ashwinyue/rag-profiles/internal/testutil"
)

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	t.Setenv("RAG_STORAGE_PROFILESFILE", filepath.Join(root, "models", "profiles.json"))
	t.Setenv("RAG_STORAGE_INDEXROOT", filepath.Join(root, "models"))
	t.Setenv("RAG_STORAGE_FILESROOT", filepath.Join(root, "files"))

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("config.Load() unexpected error: %v", err)
	}
	return cfg
}

func TestNewServices_RestoresProfiles(t *testing.T) {
	ctx := context.Background()
	cfg := newTestConfig(t)
	factory := testutil.NewFactory("Paris.")

	// 使用默认 DuckDB 后端，重启后从磁盘打开索引
	svcs, err := NewServices(ctx, cfg, WithComponentFactory(factory))
	if err != nil {
		t.Fatalf("NewServices() unexpected error: %v", err)
	}
	if _, err := svcs.Profiles.Create(ctx, &profile.CreateRequest{
		Name:        "docs",
		Model:       "llama3",
		Prompt:      "Be concise",
		TextContent: "Paris is the capital of France.",
	}); err != nil {
		t.Fatalf("Create() unexpected error: %v", err)
	}
	if err := svcs.Close(); err != nil {
		t.Fatalf("Close() unexpected error: %v", err)
	}

	restarted, err := NewServices(ctx, cfg, WithComponentFactory(factory))
	if err != nil {
		t.Fatalf("NewServices() restart unexpected error: %v", err)
	}
	defer restarted.Close()

	ans, err := restarted.Profiles.Query(ctx, "docs", "What is the capital of France?")
	if err != nil {
		t.Fatalf("Query() unexpected error: %v", err)
	}
	if len(ans.Context) != 1 || !strings.Contains(ans.Context[0].Content, "Paris") {
		t.Errorf("Context = %+v, want the stored sentence", ans.Context)
	}
}

func TestNewServices_WithBackend(t *testing.T) {
	cfg := newTestConfig(t)

	svcs, err := NewServices(context.Background(), cfg,
		WithComponentFactory(testutil.NewFactory("")),
		WithBackend(vectorstore.NewMemoryBackend(cfg.RAG.TopK)),
	)
	if err != nil {
		t.Fatalf("NewServices() unexpected error: %v", err)
	}
	defer svcs.Close()

	if svcs.Models == nil || svcs.Profiles == nil || svcs.Store == nil {
		t.Fatalf("NewServices() = %+v, want all services", svcs)
	}
	if got := len(svcs.Profiles.List()); got != 0 {
		t.Errorf("List() has %d profiles, want 0", got)
	}
}
