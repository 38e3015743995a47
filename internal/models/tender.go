package models

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

type SourceTag string

const (
	SourceGeM    SourceTag = "gem"
	SourceNonGeM SourceTag = "non_gem"
)

// Tender is one procurement opportunity assembled from a spreadsheet row.
// Value is stored in minor currency units: input value x 100.
type Tender struct {
	ID              uuid.UUID       `json:"id"`
	Title           string          `json:"title"`
	Description     string          `json:"description,omitempty"`
	Organization    string          `json:"organization,omitempty"`
	Location        string          `json:"location,omitempty"`
	ReferenceNumber string          `json:"reference_number,omitempty"`
	Value           int64           `json:"value"`
	Deadline        time.Time       `json:"deadline"`
	SourceTag       SourceTag       `json:"source_tag"`
	Link            *string         `json:"link"`
	Requirements    Requirements    `json:"requirements"`
	Score           *ScoreBreakdown `json:"score"`
	SourceFile      string          `json:"source_file,omitempty"`
	SourceSheet     string          `json:"source_sheet,omitempty"`
	ImportBatchID   *uuid.UUID      `json:"import_batch_id,omitempty"`
	ScoredAt        *time.Time      `json:"scored_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Requirements holds the recognized requirement fields plus every unmapped
// spreadsheet column keyed by its header.
type Requirements struct {
	Turnover string            `json:"turnover,omitempty"`
	Extra    map[string]string `json:"extra,omitempty"`
}

// Text flattens the requirements in a stable key order.
func (r Requirements) Text() string {
	parts := make([]string, 0, len(r.Extra)+1)
	if r.Turnover != "" {
		parts = append(parts, "turnover: "+r.Turnover)
	}
	keys := make([]string, 0, len(r.Extra))
	for k := range r.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, k+": "+r.Extra[k])
	}
	return strings.Join(parts, "; ")
}

// DeriveSourceTag reports gem when the reference number mentions "gem".
// The sheet name is consulted only when the reference number is empty.
func DeriveSourceTag(referenceNumber, sheetName string) SourceTag {
	probe := referenceNumber
	if strings.TrimSpace(probe) == "" {
		probe = sheetName
	}
	if strings.Contains(strings.ToLower(probe), "gem") {
		return SourceGeM
	}
	return SourceNonGeM
}

// TenderPatch is a partial user edit. Nil fields are left untouched.
type TenderPatch struct {
	Title           *string       `json:"title,omitempty"`
	Description     *string       `json:"description,omitempty"`
	Organization    *string       `json:"organization,omitempty"`
	Location        *string       `json:"location,omitempty"`
	ReferenceNumber *string       `json:"reference_number,omitempty"`
	Value           *int64        `json:"value,omitempty"`
	Deadline        *time.Time    `json:"deadline,omitempty"`
	Link            *string       `json:"link,omitempty"`
	Requirements    *Requirements `json:"requirements,omitempty"`
}

// Apply copies the set fields of p onto t and reports whether a field that
// feeds eligibility scoring changed.
func (p TenderPatch) Apply(t *Tender) (rescore bool) {
	if p.Title != nil && *p.Title != t.Title {
		t.Title = *p.Title
		rescore = true
	}
	if p.Description != nil && *p.Description != t.Description {
		t.Description = *p.Description
		rescore = true
	}
	if p.Organization != nil {
		t.Organization = *p.Organization
	}
	if p.Location != nil {
		t.Location = *p.Location
	}
	if p.ReferenceNumber != nil {
		t.ReferenceNumber = *p.ReferenceNumber
		t.SourceTag = DeriveSourceTag(t.ReferenceNumber, t.SourceSheet)
	}
	if p.Value != nil {
		t.Value = *p.Value
	}
	if p.Deadline != nil {
		t.Deadline = *p.Deadline
	}
	if p.Link != nil {
		if *p.Link == "" {
			t.Link = nil
		} else {
			link := *p.Link
			t.Link = &link
		}
	}
	if p.Requirements != nil {
		t.Requirements = *p.Requirements
		rescore = true
	}
	return rescore
}
