package inventory

import (
	"context"
	"testing"

	"github.com/fleetops/assetpipe/internal/core"
)

// ============================================================================
// MemoryStore Tests
// ============================================================================

func TestMemoryStore_CreateAndFind(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	id, err := store.Create(ctx, core.AssetRecord{
		AssetTag:     "A-1",
		SerialNumber: "SN-1",
		Fields:       map[string]string{core.FieldStatus: "deployed"},
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if id == "" {
		t.Fatal("Create() returned empty ID")
	}

	found, err := store.FindBySerial(ctx, "SN-1")
	if err != nil {
		t.Fatalf("FindBySerial() error = %v", err)
	}
	if found == nil || found.ID != id {
		t.Fatalf("FindBySerial() = %+v, want asset %s", found, id)
	}

	missing, err := store.FindBySerial(ctx, "SN-NOPE")
	if err != nil {
		t.Fatalf("FindBySerial() error = %v", err)
	}
	if missing != nil {
		t.Errorf("unknown serial returned %+v, want nil", missing)
	}
}

func TestMemoryStore_DuplicateSerialRejected(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if _, err := store.Create(ctx, core.AssetRecord{SerialNumber: "SN-1"}); err != nil {
		t.Fatalf("first Create() error = %v", err)
	}
	if _, err := store.Create(ctx, core.AssetRecord{SerialNumber: "SN-1"}); err == nil {
		t.Error("second Create() with same serial should fail")
	}
	if store.Count() != 1 {
		t.Errorf("Count() = %d, want 1", store.Count())
	}
}

func TestMemoryStore_UpdateReindexesSerial(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	id, err := store.Create(ctx, core.AssetRecord{AssetTag: "A-1", SerialNumber: "SN-OLD"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	err = store.Update(ctx, id, core.AssetRecord{AssetTag: "A-1", SerialNumber: "SN-NEW"})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	if old, _ := store.FindBySerial(ctx, "SN-OLD"); old != nil {
		t.Error("old serial still indexed after update")
	}
	found, _ := store.FindBySerial(ctx, "SN-NEW")
	if found == nil || found.ID != id {
		t.Errorf("new serial not indexed, got %+v", found)
	}
}

func TestMemoryStore_UpdateUnknownID(t *testing.T) {
	store := NewMemoryStore()
	if err := store.Update(context.Background(), "no-such-id", core.AssetRecord{}); err == nil {
		t.Error("Update() of unknown asset should fail")
	}
}

func TestMemoryStore_RecordsAreIsolated(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	id, _ := store.Create(ctx, core.AssetRecord{
		SerialNumber: "SN-1",
		Fields:       map[string]string{core.FieldStatus: "deployed"},
	})

	found, _ := store.FindBySerial(ctx, "SN-1")
	found.Fields[core.FieldStatus] = "mutated"

	stored, _ := store.Get(id)
	if stored.Fields[core.FieldStatus] != "deployed" {
		t.Error("mutating a returned record leaked into the store")
	}
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	store := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := store.Create(ctx, core.AssetRecord{SerialNumber: "SN-1"}); err == nil {
		t.Error("Create() with cancelled context should fail")
	}
	if store.Count() != 0 {
		t.Errorf("Count() = %d, want 0", store.Count())
	}
}
