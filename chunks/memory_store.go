package chunks

import (
	"context"
	"sync"

	"github.com/nickyhof/TreeDB/hash"
)

// MemoryStore keeps chunks in a map. It is safe for concurrent use. Put and
// Get copy, so callers may modify the slices they pass in and get back.
type MemoryStore struct {
	mu     sync.RWMutex
	chunks map[hash.Hash][]byte
	counters
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{chunks: make(map[hash.Hash][]byte)}
}

func (s *MemoryStore) Get(_ context.Context, h hash.Hash) ([]byte, error) {
	s.mu.RLock()
	data, ok := s.chunks[h]
	s.mu.RUnlock()
	if !ok {
		return nil, notFound(h)
	}
	s.reads.Add(1)
	if err := verify(h, data); err != nil {
		return nil, err
	}
	return append([]byte(nil), data...), nil
}

func (s *MemoryStore) Has(_ context.Context, h hash.Hash) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.chunks[h]
	return ok, nil
}

func (s *MemoryStore) Put(_ context.Context, data []byte) (hash.Hash, error) {
	h := hash.Of(data)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.chunks[h]; ok {
		s.dedups.Add(1)
		return h, nil
	}
	s.chunks[h] = append([]byte(nil), data...)
	s.writes.Add(1)
	return h, nil
}

func (s *MemoryStore) Hashes(ctx context.Context, fn func(hash.Hash) error) error {
	s.mu.RLock()
	hashes := make([]hash.Hash, 0, len(s.chunks))
	for h := range s.chunks {
		hashes = append(hashes, h)
	}
	s.mu.RUnlock()

	for _, h := range hashes {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(h); err != nil {
			return err
		}
	}
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, h hash.Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.chunks[h]; ok {
		delete(s.chunks, h)
		s.deletes.Add(1)
	}
	return nil
}

// Len returns the number of stored chunks.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

// corrupt overwrites the stored bytes of h. Used by tests.
func (s *MemoryStore) corrupt(h hash.Hash, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks[h] = data
}

func (s *MemoryStore) Close() error {
	return nil
}
