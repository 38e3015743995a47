package models

type Criterion string

const (
	CriterionTurnover        Criterion = "turnover"
	CriterionBusinessSectors Criterion = "business_sectors"
	CriterionProjectTypes    Criterion = "project_types"
	CriterionCertifications  Criterion = "certifications"
)

// ScoreBreakdown is always recomputed in full. OverallScore is the rounded
// mean of the criteria scores, or 50 when no criterion applied.
type ScoreBreakdown struct {
	OverallScore int               `json:"overall_score"`
	Criteria     []CriterionResult `json:"criteria"`
}

type CriterionResult struct {
	Criterion       Criterion `json:"criterion"`
	RequirementText string    `json:"requirement_text"`
	CapabilityText  string    `json:"capability_text"`
	Met             bool      `json:"met"`
	Score           int       `json:"score"`
	Reason          string    `json:"reason"`
}
