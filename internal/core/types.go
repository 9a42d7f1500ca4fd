// Package core implements the bulk asset-import pipeline. It turns
// rectangular tables of string cells (spreadsheet exports that have already
// been tokenized upstream) into validated inventory records: per-source
// transformation, declarative filtering, directory-service entity resolution,
// conflict detection against existing inventory, and a partially-failable
// batch write that streams live progress snapshots to any number of
// observers. This package has no HTTP or storage dependencies; collaborators
// are consumed through the DirectoryClient and InventoryStore interfaces.
package core

import (
	"context"
	"strings"
)

// Canonical target field names shared by all transformation modules.
// Direct fields land on the primary inventory record; everything else goes
// into the extended attribute bag.
const (
	FieldAssetTag     = "asset_tag"
	FieldSerialNumber = "serial_number"
	FieldAssignedUser = "assigned_user"
	FieldLocation     = "location"
	FieldDeviceType   = "device_type"
	FieldStatus       = "status"
	FieldModel        = "model"
	FieldManufacturer = "manufacturer"
	FieldLastCheckin  = "last_checkin"

	// Extended attributes populated during finalization.
	AttrAssignedUserName = "assigned_user_name"
	AttrOfficeLocation   = "office_location"
	AttrMemoryClass      = "memory_class"
	AttrOperatingSystem  = "operating_system"
)

// Bucket says where a mapped value lands on the target record.
type Bucket string

const (
	BucketDirect   Bucket = "direct"
	BucketExtended Bucket = "extended"
	BucketIgnore   Bucket = "ignore"
)

// TransformFunc converts a single raw cell value. Transforms must be total:
// they return the best value they can and never panic on odd input.
type TransformFunc func(string) string

// ColumnMapping declares how one raw column maps onto a target field.
type ColumnMapping struct {
	SourceColumn string
	TargetField  string
	Bucket       Bucket
	Transform    TransformFunc
	Required     bool
	Description  string
}

// HeaderIndex maps column names (lowercase) to their position in a row.
type HeaderIndex map[string]int

// MakeHeaderIndex builds a HeaderIndex from a header row.
// Later duplicates do not overwrite earlier columns.
func MakeHeaderIndex(header []string) HeaderIndex {
	idx := make(HeaderIndex, len(header))
	for i, name := range header {
		key := strings.ToLower(CleanCell(name))
		if _, exists := idx[key]; !exists {
			idx[key] = i
		}
	}
	return idx
}

// CleanCell trims whitespace and surrounding quotes from a raw cell value.
func CleanCell(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"`)
	return strings.TrimSpace(s)
}

// TransformResult is the per-row output of a transformation module.
// It is immutable once produced; later stages copy rather than mutate.
type TransformResult struct {
	Direct           map[string]string
	Extended         map[string]string
	Notes            []string
	ValidationErrors []string
}

// SourceRow pairs a raw input row with its transformation result while it
// moves through the filter chain and entity resolution.
type SourceRow struct {
	Index  int
	Raw    []string
	Result TransformResult
}

// Field looks a target field up in the direct bucket first, then extended.
func (r SourceRow) Field(name string) (string, bool) {
	if v, ok := r.Result.Direct[name]; ok {
		return v, true
	}
	v, ok := r.Result.Extended[name]
	return v, ok
}

// DirectoryUser is a user entry returned by the directory service.
type DirectoryUser struct {
	ID             string `json:"id"`
	DisplayName    string `json:"displayName"`
	OfficeLocation string `json:"officeLocation,omitempty"`
}

// DirectoryLocation is a location entry returned by the directory service.
type DirectoryLocation struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// DirectoryClient batch-resolves human-readable identifiers.
// Both lookups are read-only and idempotent; every requested name appears in
// the returned map, absent entries included (callers rely on that to tell
// "looked up but missing" apart from "never asked").
type DirectoryClient interface {
	LookupUsers(ctx context.Context, names []string) (map[string]*DirectoryUser, error)
	LookupLocations(ctx context.Context, names []string) (map[string]*DirectoryLocation, error)
}

// AssetRecord is the shape the inventory store persists.
type AssetRecord struct {
	ID           string
	AssetTag     string
	SerialNumber string
	Fields       map[string]string
	Extended     map[string]string
}

// InventoryStore is the persistent inventory collaborator.
type InventoryStore interface {
	Create(ctx context.Context, rec AssetRecord) (string, error)
	Update(ctx context.Context, id string, rec AssetRecord) error
	FindBySerial(ctx context.Context, serial string) (*AssetRecord, error)
}

// SessionRecorder is optionally implemented by stores that keep an audit
// row per finished import. Recording failures never fail the import.
type SessionRecorder interface {
	RecordSession(ctx context.Context, sourceID string, sess ImportSession) error
}

// ResolutionRequest carries the identifier batches for one resolver call.
type ResolutionRequest struct {
	Usernames     []string
	LocationNames []string
	SerialNumbers []string
}

// Conflict flags an incoming serial number that already exists in inventory.
// Conflicts are informational: the row stays in the batch and the conflict
// policy decides what happens to it at submission time.
type Conflict struct {
	ExistingID   string `json:"existingId"`
	ExistingTag  string `json:"existingTag"`
	SerialNumber string `json:"serialNumber"`
}

// ResolutionResult is the outcome of one resolver batch. Map entries are nil
// when the key was looked up but not found; keys are never omitted.
type ResolutionResult struct {
	Users     map[string]*DirectoryUser
	Locations map[string]*DirectoryLocation
	Conflicts map[string]Conflict
}

// ConflictPolicy is the single global policy for serial-number conflicts.
type ConflictPolicy string

const (
	// ConflictSkip excludes conflicting rows from submission entirely.
	// They are recorded as skipped, not as errors.
	ConflictSkip ConflictPolicy = "skip"
	// ConflictOverwrite submits conflicting rows as update-in-place.
	ConflictOverwrite ConflictPolicy = "overwrite"
)

// FinalizedRow is a row merged with its resolved entities, ready for
// submission. Created once by the row transformer, never mutated after,
// consumed exactly once by the import executor.
type FinalizedRow struct {
	Index    int
	Original []string
	Direct   map[string]string
	Extended map[string]string
	Notes    []string

	// Non-empty when the serial number collides with existing inventory.
	ConflictSerial string
	ExistingID     string

	// Raw values preserved verbatim when resolution failed.
	UnresolvedUsername string
	UnresolvedLocation string

	ValidationErrors []string
}

// RowError records a row that failed during submission.
type RowError struct {
	Index   int      `json:"index"`
	Message string   `json:"message"`
	RawData []string `json:"rawData,omitempty"`
}

// SkippedItem records a row excluded by the conflict policy.
type SkippedItem struct {
	Index   int      `json:"index"`
	Reason  string   `json:"reason"`
	RawData []string `json:"rawData,omitempty"`
}

// CategoryCount is one classification rule's hit count.
type CategoryCount struct {
	Rule  string `json:"rule"`
	Count int    `json:"count"`
}

// ImportStats aggregates what an import touched.
type ImportStats struct {
	Categorized     []CategoryCount `json:"categorized"`
	UniqueUsers     int             `json:"uniqueUsers"`
	UniqueLocations int             `json:"uniqueLocations"`
	TypeBreakdown   map[string]int  `json:"typeBreakdown"`
	StatusBreakdown map[string]int  `json:"statusBreakdown"`
}

// ExecState is the import executor's state.
type ExecState string

const (
	StateIdle       ExecState = "idle"
	StateSubmitting ExecState = "submitting"
	StateStreaming  ExecState = "streaming"
	StateCompleted  ExecState = "completed"
	StateFailed     ExecState = "failed"
)

// ImportSession is the full snapshot of one import batch. The progress
// channel streams whole sessions, never deltas, so a late or reconnecting
// subscriber synchronizes from any single event. Processed is monotonic.
type ImportSession struct {
	SessionID    string        `json:"sessionId"`
	State        ExecState     `json:"state"`
	Total        int           `json:"total"`
	Processed    int           `json:"processed"`
	Successful   int           `json:"successful"`
	Failed       int           `json:"failed"`
	Skipped      int           `json:"skipped"`
	CurrentItem  string        `json:"currentItem,omitempty"`
	Created      []string      `json:"created"`
	Errors       []RowError    `json:"errors"`
	SkippedItems []SkippedItem `json:"skippedItems"`
	Stats        ImportStats   `json:"statistics"`
}

// Done reports whether every row has been accounted for.
func (s ImportSession) Done() bool {
	return s.Total > 0 && s.Processed >= s.Total
}

// clone returns a deep copy safe to hand to subscribers.
func (s ImportSession) clone() ImportSession {
	out := s
	out.Created = append([]string(nil), s.Created...)
	out.Errors = append([]RowError(nil), s.Errors...)
	out.SkippedItems = append([]SkippedItem(nil), s.SkippedItems...)
	out.Stats.Categorized = append([]CategoryCount(nil), s.Stats.Categorized...)
	out.Stats.TypeBreakdown = copyCounts(s.Stats.TypeBreakdown)
	out.Stats.StatusBreakdown = copyCounts(s.Stats.StatusBreakdown)
	return out
}

func copyCounts(m map[string]int) map[string]int {
	if m == nil {
		return nil
	}
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// rawFragment returns a short human-identifiable slice of the original row
// for operator triage in error records.
func rawFragment(row []string) []string {
	const maxCells = 6
	if len(row) <= maxCells {
		return append([]string(nil), row...)
	}
	return append([]string(nil), row[:maxCells]...)
}
