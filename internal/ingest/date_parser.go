package ingest

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// excelEpochOffset is the serial of 1970-01-01 in the 1900 date system.
const excelEpochOffset = 25569

// maxExcelSerial is 9999-12-31.
const maxExcelSerial = 2958465

// Day-first layouts come before month-first ones: Indian portals write
// 05/03/2025 for 5 March.
var deadlineLayouts = []string{
	"02-01-2006",
	"2-1-2006",
	"02/01/2006",
	"2/1/2006",
	"02.01.2006",
	"02-Jan-2006",
	"2-Jan-2006",
	"02-Jan-06",
	"02 Jan 2006",
	"2 Jan 2006",
	"02 January 2006",
	"2 January 2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"Jan 2 2006",
	"2006-01-02",
	"2006/01/02",
}

var deadlineTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"02-01-2006 15:04:05",
	"02-01-2006 15:04",
	"02-01-2006 03:04 PM",
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	"02/01/2006 03:04 PM",
	"02-Jan-2006 15:04",
	"02-Jan-2006 03:04 PM",
	"02-Jan-2006 03:04:05 PM",
	"2 January 2006 3:04 PM",
	"January 2, 2006 3:04 PM",
}

var (
	dayFirstRe  = regexp.MustCompile(`\b(\d{1,2})[-/.](\d{1,2})[-/.]((?:19|20)\d{2})\b`)
	isoDateRe   = regexp.MustCompile(`\b((?:19|20)\d{2})-(\d{2})-(\d{2})\b`)
	monthNameRe = regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)?[\s-]+(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.?[\s,-]+((?:19|20)\d{2})\b`)
)

// parseDeadline handles numeric Excel serials first, then the layouts above,
// then dates embedded in longer text.
func parseDeadline(raw string) (time.Time, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return time.Time{}, fmt.Errorf("empty deadline")
	}
	if serial, err := strconv.ParseFloat(text, 64); err == nil {
		return fromExcelSerial(serial)
	}
	return parseDateRobust(text)
}

// fromExcelSerial converts a 1900-system serial. Whole-day serials land on
// the end of that day, matching the string layouts.
func fromExcelSerial(serial float64) (time.Time, error) {
	if serial <= 0 || serial > maxExcelSerial || math.IsNaN(serial) {
		return time.Time{}, fmt.Errorf("serial %v out of range", serial)
	}
	days := serial - excelEpochOffset
	whole := math.Floor(days)
	t := time.Unix(int64(whole)*86400, 0).UTC()
	if frac := days - whole; frac > 0 {
		return t.Add(time.Duration(math.Round(frac*86400)) * time.Second), nil
	}
	return toEndOfDay(t), nil
}

func parseDateRobust(text string) (time.Time, error) {
	text = cleanDateString(text)
	text = strings.NewReplacer("a.m.", "AM", "p.m.", "PM", " am", " AM", " pm", " PM", "hrs", "", "IST", "").Replace(text)
	text = normalizeSpace(text)

	for _, layout := range deadlineTimeLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			return t.UTC(), nil
		}
	}
	for _, layout := range deadlineLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			return toEndOfDay(t), nil
		}
	}
	if t := parseDateWithRegex(text); !t.IsZero() {
		return toEndOfDay(t), nil
	}
	return time.Time{}, fmt.Errorf("unable to parse date: %s", text)
}

// toEndOfDay sets the time to 23:59:59.999999999 UTC
func toEndOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 999999999, time.UTC)
}

func parseDateWithRegex(text string) time.Time {
	if m := isoDateRe.FindStringSubmatch(text); len(m) == 4 {
		if t, err := time.Parse("2006-01-02", m[0]); err == nil {
			return t
		}
	}
	if m := dayFirstRe.FindStringSubmatch(text); len(m) == 4 {
		if t, err := time.Parse("2/1/2006", m[1]+"/"+m[2]+"/"+m[3]); err == nil {
			return t
		}
	}
	if m := monthNameRe.FindStringSubmatch(text); len(m) == 4 {
		if t, err := time.Parse("2 Jan 2006", m[1]+" "+m[2]+" "+m[3]); err == nil {
			return t
		}
	}
	return time.Time{}
}

// cleanDateString removes common label prefixes.
func cleanDateString(s string) string {
	prefixes := []string{
		"Closing date:", "Deadline:", "Due date:", "Last date:",
		"Bid end date:", "Submission date:", "End date:",
	}
	sLower := strings.ToLower(s)
	for _, p := range prefixes {
		if idx := strings.Index(sLower, strings.ToLower(p)); idx != -1 {
			s = s[idx+len(p):]
			sLower = sLower[idx+len(p):]
		}
	}
	return strings.TrimSpace(s)
}
