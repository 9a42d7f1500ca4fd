package core

// transformer.go merges transformation-module output with resolved entities
// into immutable FinalizedRows. Resolution failures never drop data: the
// original raw value is preserved verbatim so nothing the operator typed is
// lost between preview and submission.

// FinalizeRows produces one FinalizedRow per source row. Rows are created
// once here and never mutated afterwards; the import executor consumes each
// exactly once.
func FinalizeRows(rows []SourceRow, res ResolutionResult) []FinalizedRow {
	out := make([]FinalizedRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, finalizeRow(row, res))
	}
	return out
}

func finalizeRow(row SourceRow, res ResolutionResult) FinalizedRow {
	fr := FinalizedRow{
		Index:            row.Index,
		Original:         row.Raw,
		Direct:           copyFields(row.Result.Direct),
		Extended:         copyFields(row.Result.Extended),
		Notes:            append([]string(nil), row.Result.Notes...),
		ValidationErrors: append([]string(nil), row.Result.ValidationErrors...),
	}

	// Username: resolved -> stable id plus display detail for preview;
	// unresolved -> the ORIGINAL raw value verbatim, domain prefix and all.
	if raw := fr.Direct[FieldAssignedUser]; raw != "" {
		if user := res.Users[NormalizeUsername(raw)]; user != nil {
			fr.Direct[FieldAssignedUser] = user.ID
			fr.Extended[AttrAssignedUserName] = user.DisplayName
			if user.OfficeLocation != "" {
				fr.Extended[AttrOfficeLocation] = user.OfficeLocation
			}
		} else {
			fr.UnresolvedUsername = raw
		}
	}

	// Location: resolved -> stable id; unresolved -> keep the
	// human-readable string and note it.
	if raw := fr.Direct[FieldLocation]; raw != "" {
		if loc := res.Locations[raw]; loc != nil {
			fr.Direct[FieldLocation] = loc.ID
		} else {
			fr.UnresolvedLocation = raw
			fr.Notes = append(fr.Notes, "unresolved location: "+raw)
		}
	}

	// Serial conflict: informational flag; the executor applies the policy.
	if serial := fr.Direct[FieldSerialNumber]; serial != "" {
		if c, ok := res.Conflicts[serial]; ok {
			fr.ConflictSerial = serial
			fr.ExistingID = c.ExistingID
		}
	}

	return fr
}

func copyFields(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// CategoryRule is a named business classification applied to finalized rows
// for the import statistics.
type CategoryRule struct {
	Name  string
	Match func(FinalizedRow) bool
}

// DefaultCategoryRules categorize rows operators usually want to chase
// after an import.
var DefaultCategoryRules = []CategoryRule{
	{
		Name:  "unassigned",
		Match: func(r FinalizedRow) bool { return r.Direct[FieldAssignedUser] == "" },
	},
	{
		Name:  "unresolved-user",
		Match: func(r FinalizedRow) bool { return r.UnresolvedUsername != "" },
	},
	{
		Name:  "unresolved-location",
		Match: func(r FinalizedRow) bool { return r.UnresolvedLocation != "" },
	},
	{
		Name:  "serial-conflict",
		Match: func(r FinalizedRow) bool { return r.ConflictSerial != "" },
	},
	{
		Name:  "missing-asset-tag",
		Match: func(r FinalizedRow) bool { return r.Direct[FieldAssetTag] == "" },
	},
}
