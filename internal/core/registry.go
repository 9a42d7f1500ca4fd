package core

import (
	"sort"
	"strings"
	"sync"
)

// SourceInfo describes one import source format.
type SourceInfo struct {
	ID      string   `json:"id"`      // Unique identifier: "intune"
	Vendor  string   `json:"vendor"`  // Producing system: "Microsoft Intune"
	Label   string   `json:"label"`   // Display name: "Device export"
	Columns []string `json:"columns"` // Expected header column names
}

// ModuleFunc is a per-source transformation module. Modules are total: a
// per-field failure appends a note and omits that field, never panics.
type ModuleFunc func(row []string, idx HeaderIndex) TransformResult

// SourceDefinition bundles everything needed to process one source format.
// Each module owns its field dictionary and normalization rules.
type SourceDefinition struct {
	Info     SourceInfo
	Mappings []ColumnMapping
	// Module overrides plain mapping application with source-specific
	// business rules. Nil means mappings alone describe the source.
	Module ModuleFunc
}

var (
	registry   = make(map[string]SourceDefinition)
	registryMu sync.RWMutex
)

// Register adds a source definition to the registry.
// Panics if a source with the same ID is already registered.
func Register(def SourceDefinition) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[def.Info.ID]; exists {
		panic("source already registered: " + def.Info.ID)
	}

	// Populate Columns from the field dictionary if not set
	if len(def.Info.Columns) == 0 && len(def.Mappings) > 0 {
		def.Info.Columns = make([]string, 0, len(def.Mappings))
		for _, m := range def.Mappings {
			def.Info.Columns = append(def.Info.Columns, m.SourceColumn)
		}
	}

	registry[def.Info.ID] = def
}

// GetSource returns a source definition by ID.
// Returns false if not found.
func GetSource(id string) (SourceDefinition, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	def, ok := registry[id]
	return def, ok
}

// Sources returns all registered source definitions, sorted by ID.
func Sources() []SourceDefinition {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]SourceDefinition, 0, len(registry))
	for _, def := range registry {
		result = append(result, def)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Info.ID < result[j].Info.ID
	})
	return result
}

// SourceCount returns the number of registered sources.
func SourceCount() int {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return len(registry)
}

// ClearSources removes all registered sources.
// Primarily useful for testing.
func ClearSources() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = make(map[string]SourceDefinition)
}

// Transform runs one raw row through the module selected by sourceID.
// Unknown source IDs fall back to the static legacy column table with no
// business rules; the fallback never aborts the pipeline.
func Transform(sourceID string, row []string, idx HeaderIndex) TransformResult {
	def, ok := GetSource(sourceID)
	if !ok {
		return ApplyMappings(LegacyMappings(), row, idx)
	}
	if def.Module != nil {
		return def.Module(row, idx)
	}
	return ApplyMappings(def.Mappings, row, idx)
}

// legacyMappings is installed by the sources package so that the fallback
// stays a plain column table even when no module matched.
var legacyMappings []ColumnMapping

// SetLegacyMappings installs the fallback column table.
func SetLegacyMappings(mappings []ColumnMapping) { legacyMappings = mappings }

// LegacyMappings returns the fallback column table.
func LegacyMappings() []ColumnMapping { return legacyMappings }

// DetectMatchThreshold is the minimum header overlap score for a source to
// be considered a match.
const DetectMatchThreshold = 0.7

// DetectSource scores every registered source against a header row and
// returns the best-scoring source ID. The score is the fraction of the
// source's expected columns present in the header. An empty ID means no
// source cleared the threshold and the caller should use the fallback.
func DetectSource(header []string) (string, float64) {
	idx := MakeHeaderIndex(header)

	bestID := ""
	bestScore := 0.0
	for _, def := range Sources() {
		if len(def.Info.Columns) == 0 {
			continue
		}
		hits := 0
		for _, col := range def.Info.Columns {
			if _, ok := idx[strings.ToLower(CleanCell(col))]; ok {
				hits++
			}
		}
		score := float64(hits) / float64(len(def.Info.Columns))
		if score > bestScore {
			bestID, bestScore = def.Info.ID, score
		}
	}

	if bestScore < DetectMatchThreshold {
		return "", bestScore
	}
	return bestID, bestScore
}
