package models

import "github.com/google/uuid"

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// Sort orders accepted by ListParams.SortBy.
const (
	SortDeadline = "deadline"
	SortScore    = "score"
	SortValue    = "value"
	SortCreated  = "created"
)

type ListParams struct {
	Query     string
	SourceTag SourceTag
	MinScore  int
	BatchID   *uuid.UUID
	SortBy    string
	Limit     int
	Offset    int
}

// Clamp fills defaults and bounds the page size.
func (p *ListParams) Clamp() {
	if p.Limit <= 0 {
		p.Limit = DefaultListLimit
	}
	if p.Limit > MaxListLimit {
		p.Limit = MaxListLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	switch p.SortBy {
	case SortDeadline, SortScore, SortValue, SortCreated:
	default:
		p.SortBy = SortDeadline
	}
}

type ListResult struct {
	Tenders []Tender `json:"tenders"`
	Total   int      `json:"total"`
	Limit   int      `json:"limit"`
	Offset  int      `json:"offset"`
}
