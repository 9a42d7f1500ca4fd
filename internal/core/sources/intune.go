package sources

import (
	"strings"

	"github.com/fleetops/assetpipe/internal/core"
)

func init() {
	registerIntune()
}

// registerIntune installs the device-management export module. Intune
// exports carry the richest hardware detail, so this module owns the memory
// size-class ladder and OS-based device typing.
func registerIntune() {
	core.Register(core.SourceDefinition{
		Info: core.SourceInfo{
			ID:     "intune",
			Vendor: "Microsoft Intune",
			Label:  "Device export",
			Columns: []string{
				"Device name",
				"Serial number",
				"Primary user UPN",
				"OS",
				"OS version",
				"Model",
				"Manufacturer",
				"Physical memory",
				"Total storage",
				"Compliance",
				"Last check-in",
			},
		},
		Module: transformIntuneRow,
	})
}

func transformIntuneRow(row []string, idx core.HeaderIndex) core.TransformResult {
	result := core.TransformResult{
		Direct:   make(map[string]string),
		Extended: make(map[string]string),
	}

	setField(&result, core.BucketDirect, core.FieldAssetTag, cell(row, idx, "Device name"))
	setField(&result, core.BucketDirect, core.FieldSerialNumber, cell(row, idx, "Serial number"))
	setField(&result, core.BucketDirect, core.FieldAssignedUser, cell(row, idx, "Primary user UPN"))
	setField(&result, core.BucketDirect, core.FieldModel, cell(row, idx, "Model"))
	setField(&result, core.BucketDirect, core.FieldManufacturer, cell(row, idx, "Manufacturer"))

	os := cell(row, idx, "OS")
	if v := cell(row, idx, "OS version"); os != "" && v != "" {
		result.Extended[core.AttrOperatingSystem] = os + " " + v
	} else if os != "" {
		result.Extended[core.AttrOperatingSystem] = os
	}
	setField(&result, core.BucketDirect, core.FieldDeviceType, deviceTypeForOS(os))

	if raw := cell(row, idx, "Physical memory"); raw != "" {
		if class := NormalizeMemoryClass(raw); class != "" {
			result.Extended[core.AttrMemoryClass] = class
		} else {
			result.Notes = append(result.Notes, core.FieldTransformError{
				Field:  core.AttrMemoryClass,
				Value:  raw,
				Reason: "unparsable memory capacity",
			}.Error())
		}
	}
	setField(&result, core.BucketExtended, "total_storage", cell(row, idx, "Total storage"))

	setField(&result, core.BucketDirect, core.FieldStatus, NormalizeStatus(cell(row, idx, "Compliance")))
	setField(&result, core.BucketDirect, core.FieldLastCheckin, NormalizeTimestamp(cell(row, idx, "Last check-in")))

	if result.Direct[core.FieldSerialNumber] == "" {
		result.ValidationErrors = append(result.ValidationErrors, core.ValidationError{
			Field:   core.FieldSerialNumber,
			Message: "required field is empty",
		}.Error())
	}

	return result
}

// setField writes a non-empty value into the requested bucket.
func setField(result *core.TransformResult, bucket core.Bucket, field, value string) {
	if value == "" {
		return
	}
	if bucket == core.BucketExtended {
		result.Extended[field] = value
		return
	}
	result.Direct[field] = value
}

// cell safely retrieves a cell value from a row by header name.
func cell(row []string, idx core.HeaderIndex, name string) string {
	pos, ok := idx[strings.ToLower(core.CleanCell(name))]
	if !ok || pos >= len(row) {
		return ""
	}
	return core.CleanCell(row[pos])
}
