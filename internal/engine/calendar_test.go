package engine

import (
	"errors"
	"testing"
	"time"

	"subtrack/internal/core"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestOccurrenceAt_MonthlyClampsPerStep(t *testing.T) {
	// A Jan-31 anchor must clamp each step from the original anchor day:
	// the February clamp may not drag March down to the 28th.
	anchor := date(2024, time.January, 31)

	tests := []struct {
		name string
		n    int
		want time.Time
	}{
		{name: "step 0 is the anchor", n: 0, want: date(2024, time.January, 31)},
		{name: "leap february clamps to 29", n: 1, want: date(2024, time.February, 29)},
		{name: "march returns to 31", n: 2, want: date(2024, time.March, 31)},
		{name: "april clamps to 30", n: 3, want: date(2024, time.April, 30)},
		{name: "may returns to 31", n: 4, want: date(2024, time.May, 31)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := OccurrenceAt(anchor, core.Monthly, tt.n)
			if err != nil {
				t.Fatalf("OccurrenceAt() error = %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("OccurrenceAt(%d) = %v, want %v", tt.n, got, tt.want)
			}
		})
	}
}

func TestOccurrenceAt_NonLeapFebruary(t *testing.T) {
	anchor := date(2023, time.January, 31)
	got, err := OccurrenceAt(anchor, core.Monthly, 1)
	if err != nil {
		t.Fatalf("OccurrenceAt() error = %v", err)
	}
	if want := date(2023, time.February, 28); !got.Equal(want) {
		t.Errorf("OccurrenceAt(1) = %v, want %v", got, want)
	}
}

func TestOccurrenceAt_Quarterly(t *testing.T) {
	anchor := date(2024, time.January, 31)

	tests := []struct {
		n    int
		want time.Time
	}{
		{n: 1, want: date(2024, time.April, 30)},
		{n: 2, want: date(2024, time.July, 31)},
		{n: 3, want: date(2024, time.October, 31)},
		{n: 4, want: date(2025, time.January, 31)},
	}

	for _, tt := range tests {
		got, err := OccurrenceAt(anchor, core.Quarterly, tt.n)
		if err != nil {
			t.Fatalf("OccurrenceAt(%d) error = %v", tt.n, err)
		}
		if !got.Equal(tt.want) {
			t.Errorf("OccurrenceAt(%d) = %v, want %v", tt.n, got, tt.want)
		}
	}
}

func TestOccurrenceAt_YearlyLeapAnchor(t *testing.T) {
	anchor := date(2024, time.February, 29)

	tests := []struct {
		n    int
		want time.Time
	}{
		{n: 1, want: date(2025, time.February, 28)},
		{n: 2, want: date(2026, time.February, 28)},
		{n: 4, want: date(2028, time.February, 29)},
	}

	for _, tt := range tests {
		got, err := OccurrenceAt(anchor, core.Yearly, tt.n)
		if err != nil {
			t.Fatalf("OccurrenceAt(%d) error = %v", tt.n, err)
		}
		if !got.Equal(tt.want) {
			t.Errorf("OccurrenceAt(%d) = %v, want %v", tt.n, got, tt.want)
		}
	}
}

func TestOccurrenceAt_Weekly(t *testing.T) {
	anchor := date(2024, time.January, 1)
	got, err := OccurrenceAt(anchor, core.Weekly, 3)
	if err != nil {
		t.Fatalf("OccurrenceAt() error = %v", err)
	}
	if want := date(2024, time.January, 22); !got.Equal(want) {
		t.Errorf("OccurrenceAt(3) = %v, want %v", got, want)
	}
}

func TestOccurrenceAt_UnknownCycle(t *testing.T) {
	_, err := OccurrenceAt(date(2024, time.January, 1), core.BillingCycle("fortnightly"), 1)
	if !errors.Is(err, ErrUnknownCycle) {
		t.Errorf("OccurrenceAt() error = %v, want ErrUnknownCycle", err)
	}
}

func TestNextAfter(t *testing.T) {
	got, err := NextAfter(date(2024, time.March, 31), core.Monthly)
	if err != nil {
		t.Fatalf("NextAfter() error = %v", err)
	}
	if want := date(2024, time.April, 30); !got.Equal(want) {
		t.Errorf("NextAfter() = %v, want %v", got, want)
	}
}

func TestLastDayOfMonth(t *testing.T) {
	tests := []struct {
		year  int
		month time.Month
		want  int
	}{
		{2024, time.February, 29},
		{2023, time.February, 28},
		{2024, time.April, 30},
		{2024, time.December, 31},
	}
	for _, tt := range tests {
		if got := lastDayOfMonth(tt.year, tt.month); got != tt.want {
			t.Errorf("lastDayOfMonth(%d, %v) = %d, want %d", tt.year, tt.month, got, tt.want)
		}
	}
}
