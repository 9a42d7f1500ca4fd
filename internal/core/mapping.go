package core

// mapping.go implements the declarative column-mapping model: applying a
// mapping set to a raw row and validating the mapping set itself.
//
// Validation happens at two levels:
//  1. Mapping validation: at most one mapping per source column, required
//     mappings must name a non-empty target field
//  2. Row validation: every required mapping produced a non-empty target value

import (
	"fmt"
	"strings"
)

// ValidateMappings checks a mapping set for structural problems.
// Returns an error listing every problem found, or nil.
func ValidateMappings(mappings []ColumnMapping) error {
	var errs []string
	seen := make(map[string]bool, len(mappings))

	for _, m := range mappings {
		key := strings.ToLower(CleanCell(m.SourceColumn))
		if key == "" {
			errs = append(errs, "mapping with empty source column")
			continue
		}
		if seen[key] {
			errs = append(errs, fmt.Sprintf("duplicate mapping for column %q", m.SourceColumn))
		}
		seen[key] = true

		if m.Required && m.TargetField == "" {
			errs = append(errs, fmt.Sprintf("required mapping for column %q has no target field", m.SourceColumn))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid mappings: %s", strings.Join(errs, "; "))
	}
	return nil
}

// ApplyMappings transforms one raw row using a mapping set. It is total:
// a per-field transform failure appends a note and omits the field.
func ApplyMappings(mappings []ColumnMapping, row []string, idx HeaderIndex) TransformResult {
	result := TransformResult{
		Direct:   make(map[string]string),
		Extended: make(map[string]string),
	}

	for _, m := range mappings {
		if m.Bucket == BucketIgnore || m.TargetField == "" {
			continue
		}

		raw := cellByName(row, idx, m.SourceColumn)
		value := raw
		if m.Transform != nil && raw != "" {
			value = applyTransform(m, raw, &result)
		}

		if value == "" {
			continue
		}

		switch m.Bucket {
		case BucketExtended:
			result.Extended[m.TargetField] = value
		default:
			result.Direct[m.TargetField] = value
		}
	}

	result.ValidationErrors = ValidateRequired(mappings, result)
	return result
}

// applyTransform runs a mapping's transform, converting a panic into a
// field-level note. Transforms are supposed to be total, but a bad custom
// transform must not take the pipeline down.
func applyTransform(m ColumnMapping, raw string, result *TransformResult) (value string) {
	defer func() {
		if r := recover(); r != nil {
			result.Notes = append(result.Notes, FieldTransformError{
				Field:  m.TargetField,
				Value:  raw,
				Reason: fmt.Sprintf("transform panic: %v", r),
			}.Error())
			value = ""
		}
	}()
	return m.Transform(raw)
}

// ValidateRequired reports exactly the required target fields that are
// missing or empty in a transformation result.
func ValidateRequired(mappings []ColumnMapping, result TransformResult) []string {
	var errs []string
	for _, m := range mappings {
		if !m.Required || m.TargetField == "" {
			continue
		}
		var v string
		switch m.Bucket {
		case BucketExtended:
			v = result.Extended[m.TargetField]
		default:
			v = result.Direct[m.TargetField]
		}
		if v == "" {
			errs = append(errs, ValidationError{
				Field:   m.TargetField,
				Message: "required field is empty",
			}.Error())
		}
	}
	return errs
}

// cellByName safely retrieves a cell value from a row by header name.
func cellByName(row []string, idx HeaderIndex, name string) string {
	pos, ok := idx[strings.ToLower(CleanCell(name))]
	if !ok || pos < 0 || pos >= len(row) {
		return ""
	}
	return CleanCell(row[pos])
}
