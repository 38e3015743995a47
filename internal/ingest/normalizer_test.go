package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeCurrency(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"₹1,23,456.50", 12345650},
		{"5,00,000", 50000000},
		{"Rs. 5,000", 500000},
		{"INR 2,500.75", 250075},
		{"1200", 120000},
		{"  0.005 ", 1},
		{"-1,000", -100000},
		{"", 0},
		{"N/A", 0},
		{"1.2.3", 0},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeCurrency(tt.in))
		})
	}
}

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  Road   work\n phase 2 ", "Road work phase 2"},
		{"<b>Supply</b> of &amp; install", "Supply of & install"},
		{"R&D centre", "R&D centre"},
		{"Turnover <5 crore", "Turnover <5 crore"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeText(tt.in))
		})
	}
}

func TestNormalizerDeadline(t *testing.T) {
	now := time.Date(2025, 1, 10, 8, 30, 0, 0, time.UTC)
	n := &Normalizer{Now: func() time.Time { return now }, FallbackDays: 30}
	endOf := func(y int, m time.Month, d int) time.Time {
		return time.Date(y, m, d, 23, 59, 59, 999999999, time.UTC)
	}

	tests := []struct {
		name string
		in   string
		want time.Time
		ok   bool
	}{
		{"excel serial", "45292", endOf(2024, 1, 1), true},
		{"excel serial with time", "45292.5", time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC), true},
		{"day first slash", "15/03/2025", endOf(2025, 3, 15), true},
		{"day first ambiguous", "05/03/2025", endOf(2025, 3, 5), true},
		{"dash short month", "15-Mar-2025", endOf(2025, 3, 15), true},
		{"iso", "2025-03-15", endOf(2025, 3, 15), true},
		{"with time", "15-03-2025 17:00", time.Date(2025, 3, 15, 17, 0, 0, 0, time.UTC), true},
		{"labelled", "Closing date: 15 March 2025", endOf(2025, 3, 15), true},
		{"embedded", "Bids due by 7th Apr 2025 at noon", endOf(2025, 4, 7), true},
		{"garbage", "as per NIT", now.AddDate(0, 0, 30), false},
		{"empty", "", now.AddDate(0, 0, 30), false},
		{"negative serial", "-4", now.AddDate(0, 0, 30), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := n.Deadline(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.True(t, tt.want.Equal(got), "got %s want %s", got, tt.want)
		})
	}
}

func TestDeadlineFallbackUsesClock(t *testing.T) {
	n := NewNormalizer(30)
	before := time.Now().UTC()
	got, ok := n.Deadline("unparseable")
	after := time.Now().UTC()

	assert.False(t, ok)
	assert.WithinRange(t, got, before.AddDate(0, 0, 30), after.AddDate(0, 0, 30))
}
