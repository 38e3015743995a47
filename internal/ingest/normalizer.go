package ingest

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

var (
	currencyPrefixRe = regexp.MustCompile(`(?i)\b(?:rs\.|inr\b)`)
	markupRe         = regexp.MustCompile(`<[a-zA-Z/!][^>]*>|&[a-zA-Z#0-9]+;`)
)

// NormalizeCurrency converts a money cell to minor units (input x 100).
// Everything but digits, '.' and '-' is dropped before parsing; any input
// that still does not parse yields 0.
func NormalizeCurrency(raw string) int64 {
	s := currencyPrefixRe.ReplaceAllString(raw, "")
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' || r == '-' {
			b.WriteRune(r)
		}
	}
	v, err := strconv.ParseFloat(b.String(), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	minor := math.Round(v * 100)
	if minor >= math.MaxInt64 || minor < math.MinInt64 {
		return 0
	}
	return int64(minor)
}

// NormalizeText strips markup and collapses whitespace.
func NormalizeText(raw string) string {
	s := sanitizeUTF8(raw)
	if markupRe.MatchString(s) {
		s = HTMLToText(s)
	}
	return normalizeSpace(s)
}

// HTMLToText converts HTML to plain text, collapsing whitespace.
func HTMLToText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return html
	}
	return normalizeSpace(doc.Text())
}

// Normalizer resolves raw deadline cells relative to a clock so that the
// fallback is testable.
type Normalizer struct {
	Now          func() time.Time
	FallbackDays int
}

func NewNormalizer(fallbackDays int) *Normalizer {
	if fallbackDays <= 0 {
		fallbackDays = 30
	}
	return &Normalizer{Now: time.Now, FallbackDays: fallbackDays}
}

// Deadline parses raw as an Excel serial or a date string. Unparseable or
// empty input falls back to now plus FallbackDays; ok reports which path
// was taken.
func (n *Normalizer) Deadline(raw string) (t time.Time, ok bool) {
	now := time.Now
	if n.Now != nil {
		now = n.Now
	}
	if parsed, err := parseDeadline(raw); err == nil {
		return parsed, true
	}
	days := n.FallbackDays
	if days <= 0 {
		days = 30
	}
	return now().UTC().AddDate(0, 0, days), false
}
