package core

import (
	"strings"
	"testing"
)

func sourceRowWith(index int, direct map[string]string) SourceRow {
	return SourceRow{
		Index:  index,
		Raw:    []string{"raw-cell"},
		Result: TransformResult{Direct: direct, Extended: map[string]string{}},
	}
}

// ============================================================================
// FinalizeRows Tests
// ============================================================================

func TestFinalizeRows_ResolvedUser(t *testing.T) {
	rows := []SourceRow{
		sourceRowWith(0, map[string]string{FieldAssignedUser: `BGC\jsmith`}),
	}
	res := ResolutionResult{
		Users: map[string]*DirectoryUser{
			"jsmith": {ID: "u-1", DisplayName: "Jane Smith", OfficeLocation: "Berlin HQ"},
		},
		Locations: map[string]*DirectoryLocation{},
		Conflicts: map[string]Conflict{},
	}

	out := FinalizeRows(rows, res)
	fr := out[0]

	if got := fr.Direct[FieldAssignedUser]; got != "u-1" {
		t.Errorf("assigned_user = %q, want stable id u-1", got)
	}
	if got := fr.Extended[AttrAssignedUserName]; got != "Jane Smith" {
		t.Errorf("assigned_user_name = %q, want %q", got, "Jane Smith")
	}
	if got := fr.Extended[AttrOfficeLocation]; got != "Berlin HQ" {
		t.Errorf("office_location = %q, want %q", got, "Berlin HQ")
	}
	if fr.UnresolvedUsername != "" {
		t.Errorf("UnresolvedUsername = %q, want empty", fr.UnresolvedUsername)
	}
}

func TestFinalizeRows_UnresolvedUserKeptVerbatim(t *testing.T) {
	raw := `BGC\jsmith`
	rows := []SourceRow{
		sourceRowWith(0, map[string]string{FieldAssignedUser: raw}),
	}
	res := ResolutionResult{
		Users:     map[string]*DirectoryUser{"jsmith": nil},
		Locations: map[string]*DirectoryLocation{},
		Conflicts: map[string]Conflict{},
	}

	fr := FinalizeRows(rows, res)[0]

	// The original value survives untouched, domain prefix and all.
	if got := fr.Direct[FieldAssignedUser]; got != raw {
		t.Errorf("assigned_user = %q, want verbatim %q", got, raw)
	}
	if fr.UnresolvedUsername != raw {
		t.Errorf("UnresolvedUsername = %q, want %q", fr.UnresolvedUsername, raw)
	}
}

func TestFinalizeRows_Locations(t *testing.T) {
	rows := []SourceRow{
		sourceRowWith(0, map[string]string{FieldLocation: "Austin"}),
		sourceRowWith(1, map[string]string{FieldLocation: "Atlantis"}),
	}
	res := ResolutionResult{
		Users: map[string]*DirectoryUser{},
		Locations: map[string]*DirectoryLocation{
			"Austin":   {ID: "l-austin", Name: "Austin"},
			"Atlantis": nil,
		},
		Conflicts: map[string]Conflict{},
	}

	out := FinalizeRows(rows, res)

	if got := out[0].Direct[FieldLocation]; got != "l-austin" {
		t.Errorf("resolved location = %q, want l-austin", got)
	}
	if got := out[1].Direct[FieldLocation]; got != "Atlantis" {
		t.Errorf("unresolved location = %q, want verbatim Atlantis", got)
	}
	if out[1].UnresolvedLocation != "Atlantis" {
		t.Errorf("UnresolvedLocation = %q, want Atlantis", out[1].UnresolvedLocation)
	}
	foundNote := false
	for _, n := range out[1].Notes {
		if strings.Contains(n, "Atlantis") {
			foundNote = true
		}
	}
	if !foundNote {
		t.Error("unresolved location should leave a note")
	}
}

func TestFinalizeRows_ConflictFlag(t *testing.T) {
	rows := []SourceRow{
		sourceRowWith(0, map[string]string{FieldSerialNumber: "SN123"}),
	}
	res := ResolutionResult{
		Users:     map[string]*DirectoryUser{},
		Locations: map[string]*DirectoryLocation{},
		Conflicts: map[string]Conflict{
			"SN123": {ExistingID: "asset-7", ExistingTag: "A-7", SerialNumber: "SN123"},
		},
	}

	fr := FinalizeRows(rows, res)[0]

	if fr.ConflictSerial != "SN123" {
		t.Errorf("ConflictSerial = %q, want SN123", fr.ConflictSerial)
	}
	if fr.ExistingID != "asset-7" {
		t.Errorf("ExistingID = %q, want asset-7", fr.ExistingID)
	}
}

func TestFinalizeRows_DoesNotMutateInput(t *testing.T) {
	direct := map[string]string{FieldAssignedUser: "jsmith"}
	rows := []SourceRow{sourceRowWith(0, direct)}
	res := ResolutionResult{
		Users: map[string]*DirectoryUser{
			"jsmith": {ID: "u-1", DisplayName: "Jane Smith"},
		},
		Locations: map[string]*DirectoryLocation{},
		Conflicts: map[string]Conflict{},
	}

	FinalizeRows(rows, res)

	if direct[FieldAssignedUser] != "jsmith" {
		t.Error("finalization mutated the source row")
	}
}

// ============================================================================
// Category Rule Tests
// ============================================================================

func TestDefaultCategoryRules(t *testing.T) {
	byName := make(map[string]CategoryRule)
	for _, r := range DefaultCategoryRules {
		byName[r.Name] = r
	}

	tests := []struct {
		rule string
		row  FinalizedRow
		want bool
	}{
		{"unassigned", FinalizedRow{Direct: map[string]string{}}, true},
		{"unassigned", FinalizedRow{Direct: map[string]string{FieldAssignedUser: "u-1"}}, false},
		{"unresolved-user", FinalizedRow{Direct: map[string]string{}, UnresolvedUsername: `BGC\x`}, true},
		{"unresolved-location", FinalizedRow{Direct: map[string]string{}, UnresolvedLocation: "Atlantis"}, true},
		{"serial-conflict", FinalizedRow{Direct: map[string]string{}, ConflictSerial: "SN1"}, true},
		{"missing-asset-tag", FinalizedRow{Direct: map[string]string{}}, true},
		{"missing-asset-tag", FinalizedRow{Direct: map[string]string{FieldAssetTag: "A-1"}}, false},
	}

	for _, tt := range tests {
		rule, ok := byName[tt.rule]
		if !ok {
			t.Fatalf("rule %q not registered", tt.rule)
		}
		if got := rule.Match(tt.row); got != tt.want {
			t.Errorf("%s: match = %v, want %v", tt.rule, got, tt.want)
		}
	}
}
