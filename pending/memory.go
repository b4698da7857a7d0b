package pending

import (
	"context"
	"sync"
	"time"
)

// MemoryStore 单进程内存实现
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]Entry
	ttl     time.Duration
	now     func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore 创建内存存储，ttl 为保留时长
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]Entry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (s *MemoryStore) expired(e Entry, now time.Time) bool {
	return now.Sub(e.CreatedAt) >= s.ttl
}

// Put 保存记录，未指定 ID 时自动生成
func (s *MemoryStore) Put(_ context.Context, e Entry) (Entry, error) {
	if e.ID == "" {
		e.ID = NewID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}

	s.mu.Lock()
	s.entries[e.ID] = e.clone()
	s.mu.Unlock()

	return e.clone(), nil
}

// Get 读取记录但不删除
func (s *MemoryStore) Get(_ context.Context, id string) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return Entry{}, ErrNotFound
	}
	if s.expired(e, s.now()) {
		delete(s.entries, id)
		return Entry{}, ErrNotFound
	}
	return e.clone(), nil
}

// Take 原子地读取并删除
func (s *MemoryStore) Take(ctx context.Context, id string) (Entry, error) {
	return s.TakeIf(ctx, id, nil)
}

// TakeIf 条件满足时原子地读取并删除，cond 为 nil 时等同 Take
func (s *MemoryStore) TakeIf(_ context.Context, id string, cond func(Entry) bool) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return Entry{}, ErrNotFound
	}
	if s.expired(e, s.now()) {
		delete(s.entries, id)
		return Entry{}, ErrNotFound
	}
	if cond != nil && !cond(e) {
		return Entry{}, ErrMismatch
	}
	delete(s.entries, id)
	return e, nil
}

// Delete 删除记录，记录不存在时返回 ErrNotFound
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[id]; !ok {
		return ErrNotFound
	}
	delete(s.entries, id)
	return nil
}

// SweepExpired 清理过期记录，返回清理数量
func (s *MemoryStore) SweepExpired(_ context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for id, e := range s.entries {
		if s.expired(e, now) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}

// Len 当前记录数（含未清理的过期记录）
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
