package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore is an in-memory Store implementation used for tests and
// development mode. Documents are stored as marshaled JSON so reads return
// copies, never aliases of the caller's value.
type MemoryStore struct {
	mu   sync.Mutex
	docs map[string]map[string]memoryDoc
}

type memoryDoc struct {
	rev  int64
	data []byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[string]map[string]memoryDoc),
	}
}

// Get unmarshals the document into out and returns its revision.
func (m *MemoryStore) Get(ctx context.Context, collection, id string, out any) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.docs[collection][id]
	if !ok {
		return 0, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	if out != nil {
		if err := json.Unmarshal(doc.data, out); err != nil {
			return 0, fmt.Errorf("unmarshal %s/%s: %w", collection, id, err)
		}
	}
	return doc.rev, nil
}

// Put unconditionally creates or replaces a document.
func (m *MemoryStore) Put(ctx context.Context, collection, id string, v any) (int64, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return 0, fmt.Errorf("marshal %s/%s: %w", collection, id, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	coll := m.docs[collection]
	if coll == nil {
		coll = make(map[string]memoryDoc)
		m.docs[collection] = coll
	}
	rev := coll[id].rev + 1
	coll[id] = memoryDoc{rev: rev, data: data}
	return rev, nil
}

// Replace writes the document only if the stored revision still equals rev.
func (m *MemoryStore) Replace(ctx context.Context, collection, id string, rev int64, v any) (int64, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return 0, fmt.Errorf("marshal %s/%s: %w", collection, id, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.docs[collection][id]
	if !ok {
		return 0, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	if doc.rev != rev {
		return 0, fmt.Errorf("%s/%s at rev %d, caller had %d: %w", collection, id, doc.rev, rev, ErrConflict)
	}
	newRev := doc.rev + 1
	m.docs[collection][id] = memoryDoc{rev: newRev, data: data}
	return newRev, nil
}

// Delete removes a document.
func (m *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.docs[collection][id]; !ok {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	delete(m.docs[collection], id)
	return nil
}

// List returns the ids of every document in a collection, sorted for
// deterministic iteration.
func (m *MemoryStore) List(ctx context.Context, collection string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.docs[collection]))
	for id := range m.docs[collection] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() error { return nil }

// Ensure MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
