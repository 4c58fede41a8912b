package billing

var catalog = []Plan{
	{
		ID:                "basic",
		Name:              "Basic",
		Description:       "Single-therapist practice",
		MonthlyPriceCents: 2900,
		YearlyPriceCents:  29000,
		Currency:          "EUR",
		MaxTherapists:     1,
		Features:          []string{"scheduling", "session notes"},
	},
	{
		ID:                "professional",
		Name:              "Professional",
		Description:       "Small clinics with a shared calendar",
		MonthlyPriceCents: 7900,
		YearlyPriceCents:  79000,
		Currency:          "EUR",
		MaxTherapists:     10,
		Features:          []string{"scheduling", "session notes", "exports", "no-show tracking"},
	},
	{
		ID:                "enterprise",
		Name:              "Enterprise",
		Description:       "Multi-site clinics",
		MonthlyPriceCents: 19900,
		YearlyPriceCents:  199000,
		Currency:          "EUR",
		MaxTherapists:     0,
		Features:          []string{"scheduling", "session notes", "exports", "no-show tracking", "priority support"},
	},
}

// Plans returns a copy of the plan catalog
func Plans() []Plan {
	out := make([]Plan, len(catalog))
	copy(out, catalog)
	return out
}

// FindPlan looks a plan up by ID
func FindPlan(id string) (Plan, bool) {
	for _, p := range catalog {
		if p.ID == id {
			return p, true
		}
	}
	return Plan{}, false
}
