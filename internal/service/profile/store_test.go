package profile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ashwinyue/rag-profiles/internal/model"
	"github.com/ashwinyue/rag-profiles/internal/service/types"
	"github.com/ashwinyue/rag-profiles/internal/testutil"
)

func TestStore_RoundTrip(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	requests := []*CreateRequest{
		{Name: "docs", Model: "llama3", Prompt: "Be concise", TextContent: parisText, Language: model.LanguageEnglish},
		{Name: "arabic", Model: "qwen2", Prompt: "أجب باختصار", Language: model.LanguageArabic, UseOnlyContext: true},
		{Name: "manuals", Model: "mistral", Prompt: "Cite pages", Description: "Product manuals",
			Files: []Upload{{FileName: "m.txt", Reader: strings.NewReader("Hold the reset button for ten seconds.")}}},
	}
	for _, req := range requests {
		if _, err := env.svc.Create(ctx, req); err != nil {
			t.Fatalf("Create(%s) unexpected error: %v", req.Name, err)
		}
	}
	want := env.store.List()

	reloaded := NewStore(env.path, env.deps)
	if err := reloaded.Load(ctx); err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	got := reloaded.List()

	if len(got) != len(want) {
		t.Fatalf("Load() has %d profiles, want %d", len(got), len(want))
	}
	for i := range want {
		w, g := want[i], got[i]
		if g.Name != w.Name || g.Model != w.Model || g.Prompt != w.Prompt || g.Description != w.Description ||
			g.Type != w.Type || g.Language != w.Language || g.UseOnlyContext != w.UseOnlyContext ||
			g.ProfileDir != w.ProfileDir || len(g.FilesPath) != len(w.FilesPath) {
			t.Errorf("profile %d = %+v, want %+v", i, g, w)
		}
	}

	// 重新加载时打开已有索引
	for _, name := range []string{"docs", "manuals"} {
		p, err := reloaded.Get(name)
		if err != nil {
			t.Fatalf("Get(%s) unexpected error: %v", name, err)
		}
		if !p.Initialized() {
			t.Errorf("%s not initialized after reload", name)
		}
	}
	if p, _ := reloaded.Get("arabic"); p.Initialized() {
		t.Error("Base profile should not have a pipeline after reload")
	}
}

func TestStore_LoadMissingFile(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "none.json"), &Deps{Factory: testutil.NewFactory("")})
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	if got := s.List(); len(got) != 0 {
		t.Errorf("List() = %v, want empty", got)
	}
}

func TestStore_LoadRepairsTruncatedFile(t *testing.T) {
	env := newTestEnv(t)
	writeFile(t, env.path, `[{"name":"plain","model":"llama3","prompt":"Be helpful","type":"Base","language":"en"}`)

	if err := env.store.Load(context.Background()); err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	recs := env.store.List()
	if len(recs) != 1 || recs[0].Name != "plain" {
		t.Errorf("List() = %+v, want the repaired record", recs)
	}
}

func TestStore_LoadSkipsInvalidAndDuplicates(t *testing.T) {
	env := newTestEnv(t)
	writeFile(t, env.path, `[
  {"name":"a","model":"llama3","prompt":"p","type":"Base"},
  {"name":"a","model":"mistral","prompt":"p","type":"Base"},
  {"name":"","model":"llama3","prompt":"p","type":"Base"},
  {"name":"b","model":"llama3","prompt":"p","type":"Unknown"},
  {"name":"c","model":"llama3","prompt":"p","type":"RAG-txt","files_path":["/nonexistent/x.txt"]}
]`)

	if err := env.store.Load(context.Background()); err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	recs := env.store.List()
	if len(recs) != 2 || recs[0].Name != "a" || recs[0].Model != "llama3" || recs[1].Name != "c" {
		t.Fatalf("List() = %+v, want a(llama3) and c", recs)
	}
	if recs[0].Language != model.LanguageEnglish {
		t.Errorf("Language = %q, want default en", recs[0].Language)
	}

	// 索引不存在的 RAG Profile 保留但未初始化
	p, _ := env.store.Get("c")
	if p.Initialized() {
		t.Error("profile without index should not be initialized")
	}
}

func TestStore_LoadInitializeFailureKeepsProfile(t *testing.T) {
	env := newTestEnv(t)
	env.factory.ChatErr = testutil.ErrUnavailable
	writeFile(t, env.path, `[{"name":"a","model":"llama3","prompt":"p","type":"Base"}]`)

	if err := env.store.Load(context.Background()); err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	if _, err := env.svc.Query(context.Background(), "a", "hi"); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Query() error = %v, want ErrNotInitialized", err)
	}
}

func TestStore_AddGetUpdate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	p, err := New(testutil.NewProfile("a", model.ProfileTypeBase), env.deps)
	if err != nil {
		t.Fatalf("New() unexpected error: %v", err)
	}
	if err := env.store.Add(ctx, p); err != nil {
		t.Fatalf("Add() unexpected error: %v", err)
	}
	if err := env.store.Add(ctx, p); !errors.Is(err, ErrProfileExists) || !errors.Is(err, types.ErrInvalidState) {
		t.Errorf("Add() duplicate error = %v, want ErrProfileExists", err)
	}

	if _, err := env.store.Get("b"); !errors.Is(err, ErrProfileNotFound) {
		t.Errorf("Get() error = %v, want ErrProfileNotFound", err)
	}

	err = env.store.Update(ctx, "a", func(r *model.Profile) error {
		r.Description = "updated"
		return nil
	})
	if err != nil {
		t.Fatalf("Update() unexpected error: %v", err)
	}
	if got := p.Record().Description; got != "updated" {
		t.Errorf("Description = %q, want updated", got)
	}

	wantErr := errors.New("rejected")
	if err := env.store.Update(ctx, "a", func(r *model.Profile) error { return wantErr }); !errors.Is(err, wantErr) {
		t.Errorf("Update() error = %v, want %v", err, wantErr)
	}
	if err := env.store.Update(ctx, "b", func(r *model.Profile) error { return nil }); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("Update() missing error = %v, want ErrNotFound", err)
	}

	if err := env.store.Close(); err != nil {
		t.Errorf("Close() unexpected error: %v", err)
	}
}

func TestStore_SaveFailure(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	writeFile(t, blocker, "x")

	// 父路径是普通文件，无法创建目录
	s := NewStore(filepath.Join(blocker, "profiles.json"), &Deps{Factory: testutil.NewFactory("")})
	p, err := New(testutil.NewProfile("a", model.ProfileTypeBase), s.deps)
	if err != nil {
		t.Fatalf("New() unexpected error: %v", err)
	}
	if err := s.Add(context.Background(), p); !errors.Is(err, types.ErrIO) {
		t.Errorf("Add() error = %v, want ErrIO", err)
	}
	if !s.Contains("a") {
		t.Error("profile should stay in memory when saving fails")
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(nil, nil); !errors.Is(err, types.ErrInvalidInput) {
		t.Errorf("New(nil) error = %v, want ErrInvalidInput", err)
	}
	rec := testutil.NewProfile("a", model.ProfileTypeBase)
	rec.Model = ""
	if _, err := New(rec, nil); !errors.Is(err, types.ErrInvalidInput) {
		t.Errorf("New() error = %v, want ErrInvalidInput", err)
	}

	rec = testutil.NewProfile("a", "")
	p, err := New(rec, nil)
	if err != nil {
		t.Fatalf("New() unexpected error: %v", err)
	}
	if p.Record().Type != model.ProfileTypeBase {
		t.Errorf("Type = %q, want Base", p.Record().Type)
	}
	// 记录被复制，外部修改不影响 Profile
	rec.Name = "changed"
	if p.Name() != "a" {
		t.Errorf("Name() = %q, want a", p.Name())
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestStore_Reserve(t *testing.T) {
	env := newTestEnv(t)

	release, err := env.store.Reserve("docs")
	if err != nil {
		t.Fatalf("Reserve() unexpected error: %v", err)
	}
	if _, err := env.store.Reserve("docs"); !errors.Is(err, ErrProfileExists) {
		t.Errorf("second Reserve() error = %v, want ErrProfileExists", err)
	}
	if _, err := env.store.Reserve("other"); err != nil {
		t.Errorf("Reserve(other) unexpected error: %v", err)
	}

	release()
	release()
	again, err := env.store.Reserve("docs")
	if err != nil {
		t.Fatalf("Reserve() after release unexpected error: %v", err)
	}
	again()

	if _, err := env.svc.Create(context.Background(), &CreateRequest{Name: "base", Model: "llama3"}); err != nil {
		t.Fatalf("Create() unexpected error: %v", err)
	}
	if _, err := env.store.Reserve("base"); !errors.Is(err, ErrProfileExists) {
		t.Errorf("Reserve(existing) error = %v, want ErrProfileExists", err)
	}
}
