package registry

import "github.com/jaki95/registry-sync/config"

// PageBudget bounds how many pages a run may fetch.
type PageBudget struct {
	Default   int
	Company   int
	Companies map[string]int
}

func NewPageBudget(cfg config.PageBudgetConfig) PageBudget {
	return PageBudget{
		Default:   cfg.Default,
		Company:   cfg.Company,
		Companies: cfg.Companies,
	}
}

// For returns the page limit for a run. An explicit positive limit wins,
// then a per-company override, then the company or full-registry estimate.
func (b PageBudget) For(companyID string, explicit int) int {
	if explicit > 0 {
		return explicit
	}
	if companyID == "" {
		return b.Default
	}
	if n, ok := b.Companies[companyID]; ok && n > 0 {
		return n
	}
	return b.Company
}
