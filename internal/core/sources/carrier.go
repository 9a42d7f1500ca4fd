package sources

import (
	"github.com/fleetops/assetpipe/internal/core"
)

func init() {
	registerCarrier()
}

// registerCarrier installs the carrier-invoice module. Invoices identify
// devices by IMEI, which doubles as the serial number for conflict
// detection, and name subscribers free-form rather than by principal name.
func registerCarrier() {
	core.Register(core.SourceDefinition{
		Info: core.SourceInfo{
			ID:     "carrier",
			Vendor: "Wireless carrier",
			Label:  "Invoice line detail",
			Columns: []string{
				"Wireless Number",
				"User Name",
				"Device Make/Model",
				"IMEI",
				"Plan Name",
				"Monthly Charges",
				"Last Usage Date",
			},
		},
		Module: transformCarrierRow,
	})
}

func transformCarrierRow(row []string, idx core.HeaderIndex) core.TransformResult {
	result := core.TransformResult{
		Direct:   make(map[string]string),
		Extended: make(map[string]string),
	}

	setField(&result, core.BucketDirect, core.FieldSerialNumber, cell(row, idx, "IMEI"))
	setField(&result, core.BucketDirect, core.FieldAssignedUser, cell(row, idx, "User Name"))
	setField(&result, core.BucketDirect, core.FieldModel, cell(row, idx, "Device Make/Model"))
	result.Direct[core.FieldDeviceType] = "mobile"
	setField(&result, core.BucketDirect, core.FieldLastCheckin, NormalizeTimestamp(cell(row, idx, "Last Usage Date")))

	setField(&result, core.BucketExtended, "wireless_number", cell(row, idx, "Wireless Number"))
	setField(&result, core.BucketExtended, "plan_name", cell(row, idx, "Plan Name"))
	setField(&result, core.BucketExtended, "monthly_charges", NormalizeCurrency(cell(row, idx, "Monthly Charges")))

	if result.Direct[core.FieldSerialNumber] == "" {
		result.ValidationErrors = append(result.ValidationErrors, core.ValidationError{
			Field:   core.FieldSerialNumber,
			Message: "required field is empty",
		}.Error())
	}

	return result
}
