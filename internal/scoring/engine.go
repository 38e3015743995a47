// Package scoring grades tenders against the company profile. Scoring is
// pure: the same tender and profile always produce the same breakdown.
package scoring

import (
	"fmt"
	"math"
	"strings"

	"github.com/david/tender-scout/internal/models"
)

const (
	neutralScore = 50

	sectorMatch  = 100
	sectorMiss   = 60
	projectMatch = 100
	projectMiss  = 40
	certMatch    = 100
	certMiss     = 70
)

type Engine struct {
	keywords map[string][]string
}

// NewEngine builds an engine with the built-in project type keywords plus
// extra, which may add phrases to existing types or define new ones.
func NewEngine(extra map[string][]string) *Engine {
	return &Engine{keywords: keywordSet(extra)}
}

var defaultEngine = NewEngine(nil)

// Score grades t against p with the built-in keyword sets.
func Score(t *models.Tender, p *models.CompanyProfile) models.ScoreBreakdown {
	return defaultEngine.Score(t, p)
}

// Score never fails. A nil or empty profile yields the neutral score with
// no criteria.
func (e *Engine) Score(t *models.Tender, p *models.CompanyProfile) models.ScoreBreakdown {
	if t == nil || p.IsEmpty() {
		return models.ScoreBreakdown{OverallScore: neutralScore, Criteria: []models.CriterionResult{}}
	}

	narrative := strings.ToLower(t.Title + " " + t.Description)
	full := narrative + " " + strings.ToLower(t.Requirements.Text())

	criteria := []models.CriterionResult{e.turnover(t, p)}
	if len(p.BusinessSectors) > 0 {
		criteria = append(criteria, matchAny(models.CriterionBusinessSectors, narrative, p.BusinessSectors, sectorMatch, sectorMiss))
	}
	if len(p.ProjectTypes) > 0 {
		criteria = append(criteria, e.projectTypes(full, p.ProjectTypes))
	}
	if len(p.Certifications) > 0 {
		criteria = append(criteria, matchAny(models.CriterionCertifications, full, p.Certifications, certMatch, certMiss))
	}

	total := 0
	for _, c := range criteria {
		total += c.Score
	}
	return models.ScoreBreakdown{
		OverallScore: int(math.Round(float64(total) / float64(len(criteria)))),
		Criteria:     criteria,
	}
}

func (e *Engine) turnover(t *models.Tender, p *models.CompanyProfile) models.CriterionResult {
	requirement := ParseAmount(t.Requirements.Turnover)
	score, met, reason := TurnoverScore(p.TurnoverAmount, requirement)
	reqText := t.Requirements.Turnover
	if reqText == "" {
		reqText = "Not specified"
	}
	return models.CriterionResult{
		Criterion:       models.CriterionTurnover,
		RequirementText: reqText,
		CapabilityText:  FormatINR(p.TurnoverAmount),
		Met:             met,
		Score:           score,
		Reason:          reason,
	}
}

func (e *Engine) projectTypes(text string, types []string) models.CriterionResult {
	res := models.CriterionResult{
		Criterion:       models.CriterionProjectTypes,
		RequirementText: "Project type keywords in tender text",
		CapabilityText:  strings.Join(types, ", "),
		Score:           projectMiss,
		Reason:          "No configured project type mentioned",
	}
	for _, kind := range types {
		key := strings.ToLower(strings.TrimSpace(kind))
		words, ok := e.keywords[key]
		if !ok {
			words = []string{key}
		}
		for _, w := range words {
			if w != "" && strings.Contains(text, w) {
				res.Met = true
				res.Score = projectMatch
				res.Reason = fmt.Sprintf("Matched %s keyword %q", kind, w)
				return res
			}
		}
	}
	return res
}

func matchAny(criterion models.Criterion, text string, wanted []string, hit, miss int) models.CriterionResult {
	res := models.CriterionResult{
		Criterion:      criterion,
		CapabilityText: strings.Join(wanted, ", "),
		Score:          miss,
	}
	switch criterion {
	case models.CriterionBusinessSectors:
		res.RequirementText = "Sector mentioned in title or description"
		res.Reason = "No configured sector mentioned"
	default:
		res.RequirementText = "Certification mentioned in tender text"
		res.Reason = "No configured certification mentioned"
	}
	for _, w := range wanted {
		needle := strings.ToLower(strings.TrimSpace(w))
		if needle != "" && strings.Contains(text, needle) {
			res.Met = true
			res.Score = hit
			res.Reason = fmt.Sprintf("Matched %q", w)
			return res
		}
	}
	return res
}
