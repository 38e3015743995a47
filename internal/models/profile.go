package models

import (
	"strings"
	"time"
)

// CompanyProfile is the single active bid-eligibility profile. TurnoverAmount
// is in whole currency units (rupees), not minor units.
type CompanyProfile struct {
	TurnoverAmount  float64   `json:"turnover_amount"`
	BusinessSectors []string  `json:"business_sectors"`
	ProjectTypes    []string  `json:"project_types"`
	Certifications  []string  `json:"certifications"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// IsEmpty reports whether no capability at all has been configured.
func (p *CompanyProfile) IsEmpty() bool {
	if p == nil {
		return true
	}
	return p.TurnoverAmount <= 0 && len(p.BusinessSectors) == 0 && len(p.ProjectTypes) == 0 && len(p.Certifications) == 0
}

// Normalize trims every set member and drops blanks and case-insensitive
// duplicates, keeping first-seen order.
func (p *CompanyProfile) Normalize() {
	p.BusinessSectors = uniqueFold(p.BusinessSectors)
	p.ProjectTypes = uniqueFold(p.ProjectTypes)
	p.Certifications = uniqueFold(p.Certifications)
	if p.TurnoverAmount < 0 {
		p.TurnoverAmount = 0
	}
}

func uniqueFold(items []string) []string {
	out := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, v := range items {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		k := strings.ToLower(v)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, v)
	}
	return out
}
