package sources

import (
	"github.com/fleetops/assetpipe/internal/core"
)

func init() {
	core.SetLegacyMappings(legacyColumns)
}

// legacyColumns is the static fallback used when no module can classify a
// row. It is a bare column table: no transforms, no required fields, no
// business rules, so it can never abort the pipeline. Several aliases map
// onto the same target because old hand-maintained sheets disagree on
// naming; when several aliases are populated the last non-empty one wins.
var legacyColumns = []core.ColumnMapping{
	{SourceColumn: "asset tag", TargetField: core.FieldAssetTag, Bucket: core.BucketDirect},
	{SourceColumn: "tag", TargetField: core.FieldAssetTag, Bucket: core.BucketDirect},
	{SourceColumn: "serial number", TargetField: core.FieldSerialNumber, Bucket: core.BucketDirect},
	{SourceColumn: "serial", TargetField: core.FieldSerialNumber, Bucket: core.BucketDirect},
	{SourceColumn: "assigned to", TargetField: core.FieldAssignedUser, Bucket: core.BucketDirect},
	{SourceColumn: "user", TargetField: core.FieldAssignedUser, Bucket: core.BucketDirect},
	{SourceColumn: "owner", TargetField: core.FieldAssignedUser, Bucket: core.BucketDirect},
	{SourceColumn: "location", TargetField: core.FieldLocation, Bucket: core.BucketDirect},
	{SourceColumn: "site", TargetField: core.FieldLocation, Bucket: core.BucketDirect},
	{SourceColumn: "office", TargetField: core.FieldLocation, Bucket: core.BucketDirect},
	{SourceColumn: "model", TargetField: core.FieldModel, Bucket: core.BucketDirect},
	{SourceColumn: "manufacturer", TargetField: core.FieldManufacturer, Bucket: core.BucketDirect},
	{SourceColumn: "make", TargetField: core.FieldManufacturer, Bucket: core.BucketDirect},
	{SourceColumn: "category", TargetField: core.FieldDeviceType, Bucket: core.BucketDirect},
	{SourceColumn: "type", TargetField: core.FieldDeviceType, Bucket: core.BucketDirect},
	{SourceColumn: "status", TargetField: core.FieldStatus, Bucket: core.BucketDirect},
	{SourceColumn: "notes", TargetField: "notes", Bucket: core.BucketExtended},
	{SourceColumn: "comments", TargetField: "notes", Bucket: core.BucketExtended},
}
