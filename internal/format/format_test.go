package format

import (
	"testing"
	"time"
)

func ptr[T any](v T) *T { return &v }

func TestCurrency(t *testing.T) {
	cases := []struct {
		amount *float64
		code   string
		want   string
	}{
		{ptr(250.0), "USD", "$250.00"},
		{ptr(1234.5), "USD", "$1,234.50"},
		{ptr(1234567.891), "", "$1,234,567.89"},
		{ptr(-42.0), "USD", "-$42.00"},
		{ptr(99.5), "EUR", "€99.50"},
		{ptr(1500.0), "JPY", "¥1,500"},
		{ptr(10.0), "SEK", "SEK 10.00"},
		{ptr(12.0), "gbp", "£12.00"},
		{ptr(12.0), "CAD", "CA$12.00"},
		{ptr(12.0), "INR", "₹12.00"},
		{ptr(12.0), "ZZZ", "ZZZ 12.00"},
		{nil, "USD", "-"},
	}
	for _, tc := range cases {
		if got := Currency(tc.amount, tc.code); got != tc.want {
			t.Fatalf("Currency(%v, %q) = %q, want %q", tc.amount, tc.code, got, tc.want)
		}
	}
}

func TestCompactCurrency(t *testing.T) {
	cases := map[float64]string{
		999:     "$999",
		1000:    "$1K",
		1234:    "$1.2K",
		2500000: "$2.5M",
		-1500:   "-$1.5K",
	}
	for in, want := range cases {
		if got := CompactCurrency(in, "USD"); got != want {
			t.Fatalf("CompactCurrency(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestDate(t *testing.T) {
	d := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	if got := Date(&d); got != "Mar 5, 2024" {
		t.Fatalf("Date() = %q", got)
	}
	if got := Date(nil); got != Placeholder {
		t.Fatalf("Date(nil) = %q", got)
	}
}

func TestFileSize(t *testing.T) {
	cases := map[int64]string{
		0:                "0 B",
		512:              "512 B",
		1536:             "1.5 KB",
		10 * 1024 * 1024: "10 MB",
	}
	for in, want := range cases {
		if got := FileSize(in); got != want {
			t.Fatalf("FileSize(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestRelativeTime(t *testing.T) {
	now := time.Date(2024, 3, 20, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		at   time.Time
		want string
	}{
		{now.Add(-10 * time.Second), "just now"},
		{now.Add(-1 * time.Minute), "1 minute ago"},
		{now.Add(-5 * time.Minute), "5 minutes ago"},
		{now.Add(-3 * time.Hour), "3 hours ago"},
		{now.Add(-49 * time.Hour), "2 days ago"},
		{now.AddDate(0, -2, 0), "Jan 20, 2024"},
		{now.Add(time.Hour), "just now"},
	}
	for _, tc := range cases {
		if got := RelativeTime(tc.at, now); got != tc.want {
			t.Fatalf("RelativeTime(%s) = %q, want %q", tc.at, got, tc.want)
		}
	}
}

func TestTrendPercent(t *testing.T) {
	if _, ok := TrendPercent(5, 0); ok {
		t.Fatalf("expected no trend without a previous period")
	}
	got, ok := TrendPercent(15, 10)
	if !ok || got != 50 {
		t.Fatalf("TrendPercent(15, 10) = %d, %v", got, ok)
	}
	got, _ = TrendPercent(2, 3)
	if got != -33 {
		t.Fatalf("TrendPercent(2, 3) = %d", got)
	}
}

func TestConfidence(t *testing.T) {
	if Confidence(95).Level != "high" || Confidence(90).Level != "high" {
		t.Fatalf("expected high at and above 90")
	}
	if Confidence(70).Level != "medium" {
		t.Fatalf("expected medium at 70")
	}
	if Confidence(69).Label != "Manual Review Required" {
		t.Fatalf("unexpected low label %q", Confidence(69).Label)
	}
}

func TestDuration(t *testing.T) {
	if got := Duration(ptr(65.4)); got != "1m 5s" {
		t.Fatalf("Duration(65.4) = %q", got)
	}
	if got := Duration(nil); got != Placeholder {
		t.Fatalf("Duration(nil) = %q", got)
	}
}
