package ratelimit

// Limits are per-minute request budgets for one plan, per identity axis.
type Limits struct {
	PerKey  int
	PerUser int
	PerIP   int
}

var planLimits = map[string]Limits{
	"none":    {PerKey: 5, PerUser: 10, PerIP: 20},
	"starter": {PerKey: 10, PerUser: 20, PerIP: 20},
	"pro":     {PerKey: 30, PerUser: 60, PerIP: 20},
	"max":     {PerKey: 100, PerUser: 200, PerIP: 20},
}

// LimitsFor returns the limit set for a plan, falling back to the most
// restrictive tier for unknown plan names.
func LimitsFor(plan string) Limits {
	if l, ok := planLimits[plan]; ok {
		return l
	}
	return planLimits["none"]
}
