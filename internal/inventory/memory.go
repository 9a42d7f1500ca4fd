package inventory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/fleetops/assetpipe/internal/core"
)

// MemoryStore implements core.InventoryStore in process memory. Used by
// tests and by single-binary evaluation without a database.
type MemoryStore struct {
	mu       sync.RWMutex
	byID     map[string]core.AssetRecord
	bySerial map[string]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:     make(map[string]core.AssetRecord),
		bySerial: make(map[string]string),
	}
}

// Create inserts a new asset and returns its generated ID.
func (s *MemoryStore) Create(ctx context.Context, rec core.AssetRecord) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.SerialNumber != "" {
		if existing, taken := s.bySerial[rec.SerialNumber]; taken {
			return "", fmt.Errorf("serial %s already held by asset %s", rec.SerialNumber, existing)
		}
		s.bySerial[rec.SerialNumber] = rec.ID
	}
	s.byID[rec.ID] = cloneRecord(rec)
	return rec.ID, nil
}

// Update replaces an existing asset in place.
func (s *MemoryStore) Update(ctx context.Context, id string, rec core.AssetRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("asset %s not found", id)
	}
	if old.SerialNumber != "" && old.SerialNumber != rec.SerialNumber {
		delete(s.bySerial, old.SerialNumber)
	}
	rec.ID = id
	if rec.SerialNumber != "" {
		s.bySerial[rec.SerialNumber] = id
	}
	s.byID[id] = cloneRecord(rec)
	return nil
}

// FindBySerial returns the asset holding a serial number, or nil.
func (s *MemoryStore) FindBySerial(ctx context.Context, serial string) (*core.AssetRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.bySerial[serial]
	if !ok {
		return nil, nil
	}
	rec := cloneRecord(s.byID[id])
	return &rec, nil
}

// Count returns the number of stored assets.
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// Get returns an asset by ID, for tests.
func (s *MemoryStore) Get(id string) (core.AssetRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byID[id]
	if !ok {
		return core.AssetRecord{}, false
	}
	return cloneRecord(rec), true
}

func cloneRecord(rec core.AssetRecord) core.AssetRecord {
	out := rec
	out.Fields = cloneMap(rec.Fields)
	out.Extended = cloneMap(rec.Extended)
	return out
}

func cloneMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
