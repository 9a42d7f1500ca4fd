// Package sources registers all transformation modules with the core
// registry. Import this package for its side effects to make every source
// format available:
//
//	import _ "github.com/fleetops/assetpipe/internal/core/sources"
//
// The source set is fixed and small: intune (device-management exports),
// carrier (invoice line detail), template (the generic bulk-entry sheet),
// plus the legacy fallback column table used when nothing else matches.
package sources
