package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/david/tender-scout/internal/models"
	"github.com/david/tender-scout/internal/scoring"
)

const maxTitleWidth = 60

func renderBatches(w io.Writer, batches []*models.ImportBatch) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"File", "Status", "Rows", "Imported", "Duplicate", "Failed", "Skipped", "Duration"})
	for _, b := range batches {
		duration := "Running..."
		if b.CompletedAt != nil {
			duration = b.CompletedAt.Sub(b.StartedAt).Round(time.Millisecond).String()
		}
		t.AppendRow(table.Row{b.FileName, b.Status, b.RowsSeen, b.RowsImported, b.RowsDuplicate, b.RowsFailed, b.RowsSkipped, duration})
	}
	t.Render()

	for _, b := range batches {
		for _, e := range b.Errors {
			fmt.Fprintf(w, "%s: %s\n", b.FileName, e)
		}
	}
}

func renderTenders(w io.Writer, tenders []models.Tender) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Score", "Title", "Reference", "Value", "Deadline", "Source"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, WidthMax: maxTitleWidth},
	})
	for _, tender := range tenders {
		score := "-"
		if tender.Score != nil {
			score = fmt.Sprint(tender.Score.OverallScore)
		}
		t.AppendRow(table.Row{
			score,
			tender.Title,
			tender.ReferenceNumber,
			scoring.FormatINR(float64(tender.Value) / 100),
			tender.Deadline.Format("2006-01-02"),
			tender.SourceTag,
		})
	}
	t.Render()
}

func renderBreakdown(w io.Writer, bd *models.ScoreBreakdown) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Criterion", "Score", "Met", "Requirement", "Capability", "Reason"})
	for _, c := range bd.Criteria {
		t.AppendRow(table.Row{c.Criterion, c.Score, c.Met, c.RequirementText, c.CapabilityText, c.Reason})
	}
	t.AppendFooter(table.Row{"Overall", bd.OverallScore})
	t.Render()
}

func renderProfile(w io.Writer, p *models.CompanyProfile) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendRows([]table.Row{
		{"Turnover", scoring.FormatINR(p.TurnoverAmount)},
		{"Business sectors", joinOrDash(p.BusinessSectors)},
		{"Project types", joinOrDash(p.ProjectTypes)},
		{"Certifications", joinOrDash(p.Certifications)},
		{"Updated", p.UpdatedAt.Format("2006-01-02 15:04")},
	})
	t.Render()
}

func joinOrDash(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}
