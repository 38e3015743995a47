package scoring

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var amountRe = regexp.MustCompile(`(?i)(\d[\d,]*(?:\.\d+)?)\s*(crores?|crs?|lakhs?|lacs?|lkh|millions?|mn|billions?|bn|thousands?|k)?\b`)

var unitMultipliers = map[string]float64{
	"crore": 1e7, "crores": 1e7, "cr": 1e7, "crs": 1e7,
	"lakh": 1e5, "lakhs": 1e5, "lac": 1e5, "lacs": 1e5, "lkh": 1e5,
	"million": 1e6, "millions": 1e6, "mn": 1e6,
	"billion": 1e9, "billions": 1e9, "bn": 1e9,
	"thousand": 1e3, "thousands": 1e3, "k": 1e3,
}

// ParseAmount reads a turnover requirement such as "3 crores" or
// "Rs. 50,00,000" into rupees. The first amount carrying a unit wins;
// without any unit the largest bare number is used, so counts like
// "last 3 years" do not shadow the amount. Text with no number yields 0.
func ParseAmount(text string) float64 {
	var bare float64
	for _, m := range amountRe.FindAllStringSubmatch(text, -1) {
		v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
		if err != nil || math.IsInf(v, 0) {
			continue
		}
		if unit := strings.ToLower(m[2]); unit != "" {
			return v * unitMultipliers[unit]
		}
		if v > bare {
			bare = v
		}
	}
	return bare
}

// FormatINR renders rupees in the crore/lakh convention.
func FormatINR(amount float64) string {
	switch {
	case amount >= 1e7:
		return fmt.Sprintf("Rs. %s Cr", trimZeros(amount/1e7))
	case amount >= 1e5:
		return fmt.Sprintf("Rs. %s L", trimZeros(amount/1e5))
	default:
		return fmt.Sprintf("Rs. %s", trimZeros(amount))
	}
}

func trimZeros(v float64) string {
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64)
}
