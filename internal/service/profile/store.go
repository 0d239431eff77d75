package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ashwinyue/rag-profiles/internal/model"
	"github.com/ashwinyue/rag-profiles/internal/service/types"
	"github.com/kaptinlin/jsonrepair"
	"github.com/rs/zerolog/log"
)

// Store Profile 注册表，持久化到单个 JSON 文件
// mu 串行化所有修改与保存
type Store struct {
	mu       sync.Mutex
	path     string
	deps     *Deps
	profiles map[string]*Profile
	order    []string
	// pending 创建中、尚未加入的名称
	pending map[string]struct{}
}

// NewStore 创建 Store
func NewStore(path string, deps *Deps) *Store {
	return &Store{
		path:     path,
		deps:     deps,
		profiles: make(map[string]*Profile),
		pending:  make(map[string]struct{}),
	}
}

// Path 持久化文件路径
func (s *Store) Path() string {
	return s.path
}

// Load 读取 JSON 文件并初始化所有 Profile
// 文件不存在时得到空 Store；单个 Profile 初始化失败只记录日志
func (s *Store) Load(ctx context.Context) error {
	records, err := s.readFile()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.profiles = make(map[string]*Profile, len(records))
	s.order = s.order[:0]

	for _, rec := range records {
		p, err := New(rec, s.deps)
		if err != nil {
			log.Error().Err(err).Str("profile", rec.Name).Msg("skipping invalid profile record")
			continue
		}
		name := p.Name()
		if _, exists := s.profiles[name]; exists {
			log.Error().Str("profile", name).Msg("skipping duplicate profile record")
			continue
		}
		if err := p.Initialize(ctx, false); err != nil {
			log.Error().Err(err).Str("profile", name).Msg("failed to initialize profile")
		}
		s.profiles[name] = p
		s.order = append(s.order, name)
	}

	log.Info().Str("path", s.path).Int("count", len(s.order)).Msg("profiles loaded")
	return nil
}

// readFile 解析文件，解析失败时尝试修复一次
func (s *Store) readFile() ([]*model.Profile, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Warn().Str("path", s.path).Msg("profiles file does not exist")
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read profiles file: %w: %w", types.ErrIO, err)
	}

	var records []*model.Profile
	if err := json.Unmarshal(data, &records); err == nil {
		return records, nil
	} else {
		log.Warn().Err(err).Str("path", s.path).Msg("profiles file is malformed, attempting repair")
	}

	repaired, err := jsonrepair.JSONRepair(string(data))
	if err != nil {
		return nil, fmt.Errorf("failed to repair profiles file: %w: %w", types.ErrIO, err)
	}
	if err := json.Unmarshal([]byte(repaired), &records); err != nil {
		return nil, fmt.Errorf("failed to parse profiles file: %w: %w", types.ErrIO, err)
	}
	return records, nil
}

// Save 持久化所有 Profile
func (s *Store) Save(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save()
}

// save 先写临时文件再重命名，调用方持有 mu
func (s *Store) save() error {
	records := make([]*model.Profile, 0, len(s.order))
	for _, name := range s.order {
		records = append(records, s.profiles[name].Record())
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal profiles: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create profiles dir: %w: %w", types.ErrIO, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w: %w", types.ErrIO, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write profiles: %w: %w", types.ErrIO, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync profiles: %w: %w", types.ErrIO, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close profiles: %w: %w", types.ErrIO, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace profiles file: %w: %w", types.ErrIO, err)
	}

	log.Debug().Str("path", s.path).Int("count", len(records)).Msg("profiles saved")
	return nil
}

// Add 追加 Profile 并保存
// 保存失败时 Profile 仍保留在内存中，错误返回给调用方
func (s *Store) Add(ctx context.Context, p *Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := p.Name()
	if _, exists := s.profiles[name]; exists {
		return fmt.Errorf("%s: %w", name, ErrProfileExists)
	}

	s.profiles[name] = p
	s.order = append(s.order, name)
	return s.save()
}

// Reserve 为创建中的 Profile 占用名称，直到返回的 release 被调用
// 名称已存在或正在创建时返回 ErrProfileExists
func (s *Store) Reserve(name string) (release func(), err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.profiles[name]; exists {
		return nil, fmt.Errorf("%s: %w", name, ErrProfileExists)
	}
	if _, busy := s.pending[name]; busy {
		return nil, fmt.Errorf("%s is being created: %w", name, ErrProfileExists)
	}
	s.pending[name] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.pending, name)
			s.mu.Unlock()
		})
	}, nil
}

// Contains 名称是否已存在
func (s *Store) Contains(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.profiles[name]
	return ok
}

// Get 按名称获取
func (s *Store) Get(name string) (*Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrProfileNotFound)
	}
	return p, nil
}

// List 按插入顺序返回所有记录
func (s *Store) List() []*model.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*model.Profile, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.profiles[name].Record())
	}
	return out
}

// Update 修改记录后保存
func (s *Store) Update(ctx context.Context, name string, fn func(r *model.Profile) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[name]
	if !ok {
		return fmt.Errorf("%s: %w", name, ErrProfileNotFound)
	}

	var fnErr error
	p.updateRecord(func(r *model.Profile) {
		fnErr = fn(r)
	})
	if fnErr != nil {
		return fnErr
	}
	return s.save()
}

// Close 释放所有 Profile 的索引
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for _, name := range s.order {
		if err := s.profiles[name].Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
