package sources

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// MemoryLadder is the fixed set of conventional memory size classes in GB.
// Raw capacities snap down onto it rather than rounding to the nearest rung,
// because vendor exports report usable capacity slightly above the marketed
// size (e.g. 16.4 GB for a 16 GB module).
var MemoryLadder = []float64{4, 8, 16, 32, 64, 96, 128, 192, 256, 512}

// NormalizeMemoryClass converts a raw memory capacity to its marketed size
// class: the largest ladder rung not exceeding the raw value. Values below
// the smallest rung use the rounded raw value instead. Unparsable input
// returns the empty string.
//
//	"16"   -> "16 GB"
//	"17.5" -> "16 GB"
//	"1.0"  -> "1 GB"
func NormalizeMemoryClass(raw string) string {
	v, err := parseCapacityGB(raw)
	if err != nil {
		return ""
	}

	for i := len(MemoryLadder) - 1; i >= 0; i-- {
		if v >= MemoryLadder[i] {
			return formatGB(MemoryLadder[i])
		}
	}
	return formatGB(math.Round(v))
}

// parseCapacityGB accepts "16", "16.0", "16 GB", "16384 MB", "17179869184".
// Byte and megabyte quantities are scaled to gigabytes.
func parseCapacityGB(raw string) (float64, error) {
	s := strings.TrimSpace(strings.ToUpper(raw))
	scale := 1.0
	switch {
	case strings.HasSuffix(s, "GB"):
		s = strings.TrimSpace(strings.TrimSuffix(s, "GB"))
	case strings.HasSuffix(s, "MB"):
		s = strings.TrimSpace(strings.TrimSuffix(s, "MB"))
		scale = 1.0 / 1024
	}
	s = strings.ReplaceAll(s, ",", "")

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	// Raw byte counts show up in some exports
	if scale == 1.0 && v >= 1<<30 {
		scale = 1.0 / float64(1<<30)
	}
	return v * scale, nil
}

func formatGB(v float64) string {
	return fmt.Sprintf("%s GB", strconv.FormatFloat(v, 'f', -1, 64))
}

// timestampLayouts are the formats seen across vendor exports, most
// specific first.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"1/2/2006 15:04",
	"1/2/2006",
	"01/02/2006",
	"Jan 2, 2006 3:04 PM",
}

// ParseTimestamp parses a raw timestamp using the known export formats.
func ParseTimestamp(raw string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// NormalizeTimestamp canonicalizes a raw timestamp to RFC 3339.
// Unparsable input is returned as-is so nothing is silently lost.
func NormalizeTimestamp(raw string) string {
	if t, ok := ParseTimestamp(raw); ok {
		return t.UTC().Format(time.RFC3339)
	}
	return strings.TrimSpace(raw)
}

// statusAliases folds the status vocabulary of the different exports onto
// the inventory's fixed status set.
var statusAliases = map[string]string{
	"active":         "deployed",
	"in use":         "deployed",
	"assigned":       "deployed",
	"compliant":      "deployed",
	"deployed":       "deployed",
	"in stock":       "in_stock",
	"available":      "in_stock",
	"spare":          "in_stock",
	"in repair":      "repair",
	"repair":         "repair",
	"broken":         "repair",
	"retired":        "retired",
	"decommissioned": "retired",
	"disposed":       "retired",
	"noncompliant":   "attention",
	"not compliant":  "attention",
}

// NormalizeStatus maps a vendor status onto the inventory status set.
// Unknown statuses pass through lowercased.
func NormalizeStatus(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if mapped, ok := statusAliases[s]; ok {
		return mapped
	}
	return s
}

// NormalizeCurrency strips currency symbols and thousands separators,
// leaving a plain decimal string. Unparsable values are returned as-is.
func NormalizeCurrency(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	if _, err := strconv.ParseFloat(s, 64); err != nil {
		return strings.TrimSpace(raw)
	}
	return s
}

// deviceTypeForOS buckets an operating system name into the inventory's
// device type vocabulary.
func deviceTypeForOS(os string) string {
	s := strings.ToLower(os)
	switch {
	case strings.Contains(s, "ios"), strings.Contains(s, "android"), strings.Contains(s, "ipados"):
		return "mobile"
	case strings.Contains(s, "windows"), strings.Contains(s, "macos"), strings.Contains(s, "linux"), strings.Contains(s, "chrome"):
		return "computer"
	case s == "":
		return ""
	default:
		return "other"
	}
}
