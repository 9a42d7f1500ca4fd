package sources

import (
	"github.com/fleetops/assetpipe/internal/core"
)

func init() {
	registerTemplate()
}

// registerTemplate installs the generic import template: the column layout
// we hand out for bulk entry when no vendor export exists. It is a plain
// mapping set, no module function needed.
func registerTemplate() {
	core.Register(core.SourceDefinition{
		Info: core.SourceInfo{
			ID:     "template",
			Vendor: "Generic",
			Label:  "Import template",
		},
		Mappings: []core.ColumnMapping{
			{SourceColumn: "Asset Tag", TargetField: core.FieldAssetTag, Bucket: core.BucketDirect, Description: "Inventory tag printed on the device"},
			{SourceColumn: "Serial Number", TargetField: core.FieldSerialNumber, Bucket: core.BucketDirect, Required: true, Description: "Manufacturer serial, the natural key"},
			{SourceColumn: "Model", TargetField: core.FieldModel, Bucket: core.BucketDirect},
			{SourceColumn: "Manufacturer", TargetField: core.FieldManufacturer, Bucket: core.BucketDirect},
			{SourceColumn: "Category", TargetField: core.FieldDeviceType, Bucket: core.BucketDirect},
			{SourceColumn: "Assigned To", TargetField: core.FieldAssignedUser, Bucket: core.BucketDirect, Description: "Username or DOMAIN\\username"},
			{SourceColumn: "Location", TargetField: core.FieldLocation, Bucket: core.BucketDirect, Description: "Office name, resolved against the directory"},
			{SourceColumn: "Status", TargetField: core.FieldStatus, Bucket: core.BucketDirect, Transform: NormalizeStatus},
			{SourceColumn: "Last Seen", TargetField: core.FieldLastCheckin, Bucket: core.BucketDirect, Transform: NormalizeTimestamp},
			{SourceColumn: "Notes", TargetField: "notes", Bucket: core.BucketExtended},
		},
	})
}
