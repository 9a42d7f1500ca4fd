package sources

import (
	"testing"
	"time"
)

// ============================================================================
// NormalizeMemoryClass Tests
// ============================================================================

func TestNormalizeMemoryClass(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"exact rung", "16.0", "16 GB"},
		{"snaps down not nearest", "17.5", "16 GB"},
		{"below smallest rung rounds raw", "1.0", "1 GB"},
		{"integer input", "32", "32 GB"},
		{"usable capacity above marketed size", "16.4", "16 GB"},
		{"just under a rung stays below", "15.9", "8 GB"},
		{"GB suffix", "64 GB", "64 GB"},
		{"MB quantity scaled", "16384 MB", "16 GB"},
		{"raw byte count scaled", "17179869184", "16 GB"},
		{"thousands separator", "1,024", "512 GB"},
		{"top rung", "512", "512 GB"},
		{"above top rung snaps to top", "768", "512 GB"},
		{"fractional below smallest", "2.6", "3 GB"},
		{"unparsable", "lots", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeMemoryClass(tt.input); got != tt.want {
				t.Errorf("NormalizeMemoryClass(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// ============================================================================
// Timestamp Tests
// ============================================================================

func TestNormalizeTimestamp(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"rfc3339 passes through", "2026-03-01T10:00:00Z", "2026-03-01T10:00:00Z"},
		{"date time layout", "2026-03-01 10:00:00", "2026-03-01T10:00:00Z"},
		{"date only", "2026-03-01", "2026-03-01T00:00:00Z"},
		{"us slash layout", "3/1/2026", "2026-03-01T00:00:00Z"},
		{"unparsable returned as-is", "last tuesday", "last tuesday"},
		{"whitespace trimmed", "  2026-03-01  ", "2026-03-01T00:00:00Z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeTimestamp(tt.input); got != tt.want {
				t.Errorf("NormalizeTimestamp(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseTimestamp_RoundTrip(t *testing.T) {
	ts, ok := ParseTimestamp("2026-03-01 10:30:00")
	if !ok {
		t.Fatal("expected parse to succeed")
	}
	want := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)
	if !ts.Equal(want) {
		t.Errorf("parsed = %v, want %v", ts, want)
	}
}

// ============================================================================
// NormalizeStatus Tests
// ============================================================================

func TestNormalizeStatus(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Active", "deployed"},
		{"Compliant", "deployed"},
		{"In Stock", "in_stock"},
		{"spare", "in_stock"},
		{"In Repair", "repair"},
		{"Decommissioned", "retired"},
		{"Noncompliant", "attention"},
		{"Quarantined", "quarantined"}, // unknown passes through lowercased
		{"", ""},
	}

	for _, tt := range tests {
		if got := NormalizeStatus(tt.input); got != tt.want {
			t.Errorf("NormalizeStatus(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

// ============================================================================
// NormalizeCurrency Tests
// ============================================================================

func TestNormalizeCurrency(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"$1,234.56", "1234.56"},
		{"42.00", "42.00"},
		{"$15", "15"},
		{"N/A", "N/A"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := NormalizeCurrency(tt.input); got != tt.want {
			t.Errorf("NormalizeCurrency(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

// ============================================================================
// deviceTypeForOS Tests
// ============================================================================

func TestDeviceTypeForOS(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Windows 11", "computer"},
		{"macOS 14.2", "computer"},
		{"iOS 17", "mobile"},
		{"Android 14", "mobile"},
		{"ChromeOS", "computer"},
		{"VxWorks", "other"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := deviceTypeForOS(tt.input); got != tt.want {
			t.Errorf("deviceTypeForOS(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
