package core

import (
	"testing"
)

// ============================================================================
// Registry Tests
// ============================================================================

func TestRegisterAndGetSource(t *testing.T) {
	def := SourceDefinition{
		Info: SourceInfo{ID: "reg-test", Vendor: "Vendor", Label: "Export"},
		Mappings: []ColumnMapping{
			{SourceColumn: "Tag", TargetField: FieldAssetTag, Bucket: BucketDirect},
			{SourceColumn: "Serial", TargetField: FieldSerialNumber, Bucket: BucketDirect},
		},
	}
	Register(def)

	got, ok := GetSource("reg-test")
	if !ok {
		t.Fatal("registered source not found")
	}
	// Columns populated from the mapping set.
	if len(got.Info.Columns) != 2 || got.Info.Columns[0] != "Tag" {
		t.Errorf("columns = %v, want [Tag Serial]", got.Info.Columns)
	}
}

func TestRegister_DuplicatePanics(t *testing.T) {
	Register(SourceDefinition{Info: SourceInfo{ID: "dup-test"}})

	defer func() {
		if recover() == nil {
			t.Error("duplicate registration should panic")
		}
	}()
	Register(SourceDefinition{Info: SourceInfo{ID: "dup-test"}})
}

func TestTransform_UnknownSourceUsesLegacyFallback(t *testing.T) {
	prev := LegacyMappings()
	defer SetLegacyMappings(prev)

	SetLegacyMappings([]ColumnMapping{
		{SourceColumn: "Serial", TargetField: FieldSerialNumber, Bucket: BucketDirect},
	})

	idx := MakeHeaderIndex([]string{"Serial"})
	result := Transform("no-such-source", []string{"SN-1"}, idx)

	if got := result.Direct[FieldSerialNumber]; got != "SN-1" {
		t.Errorf("serial_number = %q, want SN-1 via legacy fallback", got)
	}
}

// ============================================================================
// DetectSource Tests
// ============================================================================

func TestDetectSource(t *testing.T) {
	Register(SourceDefinition{
		Info: SourceInfo{
			ID:      "detect-test",
			Columns: []string{"Alpha", "Beta", "Gamma", "Delta"},
		},
	})

	tests := []struct {
		name    string
		header  []string
		wantID  string
		matched bool
	}{
		{
			name:    "full header matches",
			header:  []string{"Alpha", "Beta", "Gamma", "Delta"},
			wantID:  "detect-test",
			matched: true,
		},
		{
			name:    "three of four clears threshold",
			header:  []string{"Alpha", "Beta", "Gamma", "Other"},
			wantID:  "detect-test",
			matched: true,
		},
		{
			name:    "half the columns is below threshold",
			header:  []string{"Alpha", "Beta", "X", "Y"},
			matched: false,
		},
		{
			name:    "unrelated header",
			header:  []string{"Foo", "Bar"},
			matched: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, score := DetectSource(tt.header)
			if tt.matched {
				if id != tt.wantID {
					t.Errorf("id = %q (score %.2f), want %q", id, score, tt.wantID)
				}
			} else if id == "detect-test" {
				t.Errorf("id = %q (score %.2f), want no match", id, score)
			}
		})
	}
}
