package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"memoryengine/internal/memerr"
)

// InMemoryStore is a Store implementation backed by plain maps, guarded by a
// mutex. It is used by package tests and as a dependency-free fallback.
type InMemoryStore struct {
	mu   sync.RWMutex
	byID map[string]*Memory
}

// NewInMemoryStore constructs an empty InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{byID: make(map[string]*Memory)}
}

func (s *InMemoryStore) Init(context.Context) error { return nil }

func (s *InMemoryStore) Create(_ context.Context, m *Memory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.ContentHash == "" {
		m.ContentHash = ContentHashOf(m.UserID, m.Content)
	}
	for _, existing := range s.byID {
		if existing.UserID == m.UserID && existing.ContentHash == m.ContentHash {
			return memerr.New(memerr.DuplicateMemory, "memory.Create", nil)
		}
	}
	now := time.Now().UTC()
	m.CreatedAt, m.UpdatedAt = now, now
	if m.Version == 0 {
		m.Version = 1
	}
	s.byID[m.ID] = cloneMemory(m)
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, userID, id string) (*Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.byID[id]
	if !ok || m.UserID != userID {
		return nil, memerr.New(memerr.NotFound, "memory.Get", nil)
	}
	return cloneMemory(m), nil
}

func (s *InMemoryStore) Update(_ context.Context, m *Memory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.byID[m.ID]
	if !ok || existing.UserID != m.UserID {
		return memerr.New(memerr.NotFound, "memory.Update", nil)
	}
	m.Version = existing.Version + 1
	m.UpdatedAt = time.Now().UTC()
	m.CreatedAt = existing.CreatedAt
	s.byID[m.ID] = cloneMemory(m)
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[id]
	if !ok || m.UserID != userID {
		return memerr.New(memerr.NotFound, "memory.Delete", nil)
	}
	delete(s.byID, id)
	return nil
}

func (s *InMemoryStore) ListByKey(_ context.Context, userID, canonicalKey string) ([]*Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Memory
	for _, m := range s.byID {
		if m.UserID != userID {
			continue
		}
		for _, tag := range m.Tags {
			if tag == canonicalKey {
				out = append(out, cloneMemory(m))
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryStore) RecentForDedup(_ context.Context, userID string, limit int) ([]*Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Memory
	for _, m := range s.byID {
		if m.UserID == userID {
			out = append(out, cloneMemory(m))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) SimilaritySearch(_ context.Context, userID string, vector []float32, k int, kinds []Kind) ([]ScoredMemory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	kindSet := make(map[Kind]bool, len(kinds))
	for _, k := range kinds {
		kindSet[k] = true
	}
	var out []ScoredMemory
	for _, m := range s.byID {
		if m.UserID != userID || len(m.Embedding) == 0 {
			continue
		}
		if len(kindSet) > 0 && !kindSet[m.Kind] {
			continue
		}
		out = append(out, ScoredMemory{Memory: cloneMemory(m), Score: cosineSimilarity(vector, m.Embedding)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func (s *InMemoryStore) Touch(_ context.Context, userID, id string, turn int64, atUnix int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[id]
	if !ok || m.UserID != userID {
		return memerr.New(memerr.NotFound, "memory.Touch", nil)
	}
	m.AccessCount++
	m.LastAccessed = time.Unix(atUnix, 0).UTC()
	m.LastUsedTurn = turn
	return nil
}

func (s *InMemoryStore) ListExpired(_ context.Context, entityTTLDays, commitmentGraceDays int) ([]*Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := time.Now().UTC()
	var out []*Memory
	for _, m := range s.byID {
		switch m.Kind {
		case KindEntity:
			if !m.LastAccessed.IsZero() && now.Sub(m.LastAccessed) > time.Duration(entityTTLDays)*24*time.Hour {
				out = append(out, cloneMemory(m))
			}
		case KindCommitment:
			if due, ok := m.Context["due_at"]; ok {
				if dueAt, err := time.Parse(time.RFC3339, due); err == nil &&
					now.Sub(dueAt) > time.Duration(commitmentGraceDays)*24*time.Hour {
					out = append(out, cloneMemory(m))
				}
			}
		}
	}
	return out, nil
}

func (s *InMemoryStore) ListForDecay(_ context.Context, batchSize int) ([]*Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Memory
	for _, m := range s.byID {
		out = append(out, cloneMemory(m))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if batchSize > 0 && len(out) > batchSize {
		out = out[:batchSize]
	}
	return out, nil
}

func cloneMemory(m *Memory) *Memory {
	cp := *m
	cp.Embedding = append([]float32(nil), m.Embedding...)
	cp.Tags = append([]string(nil), m.Tags...)
	cp.Entities = append([]string(nil), m.Entities...)
	cp.Context = make(map[string]string, len(m.Context))
	for k, v := range m.Context {
		cp.Context[k] = v
	}
	return &cp
}
