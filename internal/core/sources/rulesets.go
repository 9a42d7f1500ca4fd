package sources

import (
	"github.com/fleetops/assetpipe/internal/core"
)

func init() {
	// Device exports: retired hardware stays out of the import by default.
	core.RegisterRuleSet(
		core.RuleSetKey{SourceID: "intune", Category: "devices"},
		core.RuleSet{
			Name: "intune-active-devices",
			Rules: []core.FilterRule{
				{Field: core.FieldStatus, Op: core.OpExcludes, Values: []string{"retired"}},
			},
		},
	)

	// Invoice lines: suspended and cancelled lines are billing noise, not
	// inventory.
	core.RegisterRuleSet(
		core.RuleSetKey{SourceID: "carrier", Category: "lines"},
		core.RuleSet{
			Name: "carrier-active-lines",
			Rules: []core.FilterRule{
				{Field: "plan_name", Op: core.OpExcludes, Values: []string{"suspended", "cancelled"}},
			},
		},
	)
}
