// Package format turns raw invoice values into display strings.
package format

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Placeholder is rendered for missing values.
const Placeholder = "-"

// symbolAndScale looks up the CLDR symbol and minor-unit scale for an ISO
// code. Codes without a distinct symbol keep the code followed by a space.
func symbolAndScale(code string) (string, int) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		code = "USD"
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return code + " ", 2
	}
	scale, _ := currency.Standard.Rounding(unit)
	sym := message.NewPrinter(language.AmericanEnglish).Sprint(currency.Symbol(unit))
	if sym == "" || sym == unit.String() {
		return unit.String() + " ", scale
	}
	return sym, scale
}

// Currency formats amount in en-US style, for example "$1,234.50".
// A nil amount renders as Placeholder.
func Currency(amount *float64, code string) string {
	if amount == nil {
		return Placeholder
	}
	return CurrencyValue(*amount, code)
}

func CurrencyValue(amount float64, code string) string {
	sym, scale := symbolAndScale(code)
	p := message.NewPrinter(language.AmericanEnglish)
	digits := p.Sprint(number.Decimal(math.Abs(amount), number.Scale(scale)))
	if amount < 0 && digits != p.Sprint(number.Decimal(0, number.Scale(scale))) {
		return "-" + sym + digits
	}
	return sym + digits
}

// CompactCurrency abbreviates large amounts: "$1.2K", "$2.5M".
func CompactCurrency(amount float64, code string) string {
	sym, _ := symbolAndScale(code)
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}

	suffixes := []struct {
		limit  float64
		suffix string
	}{
		{1e12, "T"},
		{1e9, "B"},
		{1e6, "M"},
		{1e3, "K"},
	}
	for _, s := range suffixes {
		if amount >= s.limit {
			return sign + sym + trimFloat(amount/s.limit, 1) + s.suffix
		}
	}
	return sign + sym + trimFloat(amount, 0)
}

// Date renders a calendar date as "Jan 2, 2006".
func Date(t *time.Time) string {
	if t == nil || t.IsZero() {
		return Placeholder
	}
	return t.Format("Jan 2, 2006")
}

func DateTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return Placeholder
	}
	return t.Format("Jan 2, 2006 3:04 PM")
}

// FileSize renders a byte count using binary units.
func FileSize(bytes int64) string {
	if bytes <= 0 {
		return "0 B"
	}
	units := []string{"B", "KB", "MB", "GB", "TB"}
	value := float64(bytes)
	i := 0
	for value >= 1024 && i < len(units)-1 {
		value /= 1024
		i++
	}
	return trimFloat(value, 2) + " " + units[i]
}

// RelativeTime describes t relative to now, falling back to Date after
// thirty days. Future instants render as "just now".
func RelativeTime(t, now time.Time) string {
	if t.IsZero() {
		return Placeholder
	}
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return plural(int(d/time.Minute), "minute") + " ago"
	case d < 24*time.Hour:
		return plural(int(d/time.Hour), "hour") + " ago"
	case d < 30*24*time.Hour:
		return plural(int(d/(24*time.Hour)), "day") + " ago"
	default:
		return Date(&t)
	}
}

// Duration renders an average processing time, for example "1m 5s".
func Duration(seconds *float64) string {
	if seconds == nil || *seconds < 0 {
		return Placeholder
	}
	d := time.Duration(math.Round(*seconds)) * time.Second
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d/time.Second))
	case d < time.Hour:
		return fmt.Sprintf("%dm %ds", int(d/time.Minute), int(d%time.Minute/time.Second))
	default:
		return fmt.Sprintf("%dh %dm", int(d/time.Hour), int(d%time.Hour/time.Minute))
	}
}

// TrendPercent is the rounded month-over-month change. ok is false when the
// previous period is empty.
func TrendPercent(current, previous int) (int, bool) {
	if previous == 0 {
		return 0, false
	}
	change := float64(current-previous) / float64(previous) * 100
	return int(math.Round(change)), true
}

func Percent(part, whole float64) string {
	if whole == 0 {
		return "0.0%"
	}
	return strconv.FormatFloat(part/whole*100, 'f', 1, 64) + "%"
}

type ConfidenceLevel struct {
	Level string `json:"level"`
	Label string `json:"label"`
}

const (
	ConfidenceHigh   = 90
	ConfidenceMedium = 70
)

func Confidence(value int) ConfidenceLevel {
	switch {
	case value >= ConfidenceHigh:
		return ConfidenceLevel{Level: "high", Label: "High Confidence"}
	case value >= ConfidenceMedium:
		return ConfidenceLevel{Level: "medium", Label: "Review Recommended"}
	default:
		return ConfidenceLevel{Level: "low", Label: "Manual Review Required"}
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return strconv.Itoa(n) + " " + unit + "s"
}

func trimFloat(v float64, decimals int) string {
	s := strconv.FormatFloat(v, 'f', decimals, 64)
	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimSuffix(s, ".")
	}
	return s
}
