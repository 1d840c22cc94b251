package engine

import (
	"strings"
	"testing"
	"time"

	"subtrack/internal/core"
)

var timelineNow = time.Date(2024, time.July, 19, 14, 0, 0, 0, time.UTC)

func entry(id int64, name string, action core.Action, createdAt time.Time) core.HistoryEntry {
	return core.HistoryEntry{
		ID:               id,
		SubscriptionID:   strings.ToLower(name),
		SubscriptionName: name,
		Action:           action,
		CreatedAt:        createdAt,
	}
}

func TestBucketLabel(t *testing.T) {
	tests := []struct {
		name      string
		createdAt time.Time
		want      string
	}{
		{name: "two hours ago is today", createdAt: timelineNow.Add(-2 * time.Hour), want: "Today"},
		{name: "previous calendar day", createdAt: timelineNow.AddDate(0, 0, -1), want: "Yesterday"},
		{name: "four days ago", createdAt: timelineNow.AddDate(0, 0, -4), want: "This Week"},
		{name: "two weeks ago same month", createdAt: timelineNow.AddDate(0, 0, -14), want: "This Month"},
		{name: "four hundred days ago", createdAt: timelineNow.AddDate(0, 0, -400), want: "June 2023"},
		{name: "previous month", createdAt: date(2024, time.June, 2), want: "June 2024"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := bucketLabel(tt.createdAt, timelineNow); got != tt.want {
				t.Errorf("bucketLabel(%v) = %q, want %q", tt.createdAt, got, tt.want)
			}
		})
	}
}

func TestBuildTimeline_GroupsMostRecentFirst(t *testing.T) {
	entries := []core.HistoryEntry{
		entry(1, "Netflix", core.ActionCreated, date(2023, time.June, 15)),
		entry(2, "Spotify", core.ActionRenewal, timelineNow.Add(-2*time.Hour)),
		entry(3, "Notion", core.ActionUpdated, timelineNow.AddDate(0, 0, -1)),
		entry(4, "Spotify", core.ActionPaymentSuccess, timelineNow.Add(-30*time.Minute)),
	}

	timeline := BuildTimeline(entries, core.TimelineFilter{}, timelineNow)
	if timeline.TotalEvents != 4 {
		t.Fatalf("TotalEvents = %d, want 4", timeline.TotalEvents)
	}

	wantLabels := []string{"Today", "Yesterday", "June 2023"}
	if len(timeline.Groups) != len(wantLabels) {
		t.Fatalf("got %d groups, want %d", len(timeline.Groups), len(wantLabels))
	}
	for i, want := range wantLabels {
		if timeline.Groups[i].Label != want {
			t.Errorf("Groups[%d].Label = %q, want %q", i, timeline.Groups[i].Label, want)
		}
	}

	// Within Today, the 30-minute-old entry precedes the 2-hour-old one.
	today := timeline.Groups[0]
	if len(today.Events) != 2 {
		t.Fatalf("Today has %d events, want 2", len(today.Events))
	}
	if today.Events[0].Entry.ID != 4 || today.Events[1].Entry.ID != 2 {
		t.Errorf("Today events ordered %d, %d; want 4, 2",
			today.Events[0].Entry.ID, today.Events[1].Entry.ID)
	}
}

func TestBuildTimeline_FilterComposition(t *testing.T) {
	entries := []core.HistoryEntry{
		entry(1, "Netflix", core.ActionCreated, timelineNow.AddDate(0, 0, -2)),
		entry(2, "Netflix", core.ActionRenewal, timelineNow.AddDate(0, 0, -3)),
		entry(3, "Internet Plan", core.ActionCreated, timelineNow.AddDate(0, -2, 0)),
		entry(4, "Spotify", core.ActionCreated, timelineNow.AddDate(0, 0, -2)),
	}

	full := core.TimelineFilter{
		SearchTerm: "net",
		Action:     core.ActionCreated,
		TimeRange:  core.RangeThisMonth,
	}
	got := BuildTimeline(entries, full, timelineNow)
	if got.TotalEvents != 1 {
		t.Fatalf("fully filtered TotalEvents = %d, want 1", got.TotalEvents)
	}
	if got.Groups[0].Events[0].Entry.ID != 1 {
		t.Errorf("filtered to entry %d, want 1", got.Groups[0].Events[0].Entry.ID)
	}

	// Removing any one filter must only ever grow the result set.
	withoutSearch := full
	withoutSearch.SearchTerm = ""
	withoutAction := full
	withoutAction.Action = ""
	withoutRange := full
	withoutRange.TimeRange = core.RangeAll

	for name, filter := range map[string]core.TimelineFilter{
		"without search": withoutSearch,
		"without action": withoutAction,
		"without range":  withoutRange,
	} {
		if n := BuildTimeline(entries, filter, timelineNow).TotalEvents; n < got.TotalEvents {
			t.Errorf("%s shrank the result set: %d < %d", name, n, got.TotalEvents)
		}
	}
}

func TestBuildTimeline_SearchIsCaseInsensitive(t *testing.T) {
	entries := []core.HistoryEntry{
		entry(1, "NetFlix", core.ActionCreated, timelineNow),
	}
	timeline := BuildTimeline(entries, core.TimelineFilter{SearchTerm: "NETF"}, timelineNow)
	if timeline.TotalEvents != 1 {
		t.Errorf("TotalEvents = %d, want 1", timeline.TotalEvents)
	}
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		name  string
		entry core.HistoryEntry
		want  string
	}{
		{
			name:  "created",
			entry: core.HistoryEntry{SubscriptionName: "Netflix", Action: core.ActionCreated},
			want:  `Created subscription "Netflix"`,
		},
		{
			name: "updated with values",
			entry: core.HistoryEntry{
				SubscriptionName: "Netflix", Action: core.ActionUpdated,
				OldValue: "9.99", NewValue: "12.99",
			},
			want: `Updated "Netflix" from "9.99" to "12.99"`,
		},
		{
			name:  "updated without values falls back",
			entry: core.HistoryEntry{SubscriptionName: "Netflix", Action: core.ActionUpdated},
			want:  `Updated subscription "Netflix"`,
		},
		{
			name: "payment success with amount",
			entry: core.HistoryEntry{
				SubscriptionName: "Spotify", Action: core.ActionPaymentSuccess, NewValue: "$9.99",
			},
			want: `Payment of $9.99 succeeded for "Spotify"`,
		},
		{
			name:  "unknown action renders generically",
			entry: core.HistoryEntry{SubscriptionName: "Hulu", Action: core.Action("quantum_flip")},
			want:  `quantum_flip on subscription "Hulu"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Describe(tt.entry); got != tt.want {
				t.Errorf("Describe() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTimelineStats(t *testing.T) {
	entries := []core.HistoryEntry{
		entry(1, "Netflix", core.ActionRenewal, timelineNow.AddDate(0, 0, -1)),
		entry(2, "Netflix", core.ActionRenewal, timelineNow.AddDate(0, 0, -2)),
		entry(3, "Netflix", core.ActionUpdated, timelineNow.AddDate(0, 0, -40)),
		entry(4, "Spotify", core.ActionRenewal, timelineNow.AddDate(0, 0, -3)),
		entry(5, "Audible", core.ActionCancel, timelineNow.AddDate(0, 0, -3)),
		entry(6, "Bandcamp", core.ActionCancel, timelineNow.AddDate(0, 0, -4)),
	}

	timeline := BuildTimeline(entries, core.TimelineFilter{}, timelineNow)
	stats := timeline.Stats

	if stats.EventsLast30Days != 5 {
		t.Errorf("EventsLast30Days = %d, want 5", stats.EventsLast30Days)
	}

	if len(stats.ActionCounts) == 0 || stats.ActionCounts[0].Action != core.ActionRenewal {
		t.Fatalf("ActionCounts[0] = %+v, want renewal first", stats.ActionCounts)
	}
	if stats.ActionCounts[0].Count != 3 {
		t.Errorf("renewal count = %d, want 3", stats.ActionCounts[0].Count)
	}

	if stats.MostActive[0].Name != "Netflix" || stats.MostActive[0].Count != 3 {
		t.Errorf("MostActive[0] = %+v, want Netflix x3", stats.MostActive[0])
	}
	// Audible, Bandcamp and Spotify all have one event; ties resolve by
	// name ascending.
	wantOrder := []string{"Netflix", "Audible", "Bandcamp", "Spotify"}
	for i, want := range wantOrder {
		if stats.MostActive[i].Name != want {
			t.Errorf("MostActive[%d].Name = %q, want %q", i, stats.MostActive[i].Name, want)
		}
	}
}

func TestBuildTimeline_EmptyInput(t *testing.T) {
	timeline := BuildTimeline(nil, core.TimelineFilter{}, timelineNow)
	if timeline.TotalEvents != 0 || len(timeline.Groups) != 0 {
		t.Errorf("empty history should yield empty timeline, got %+v", timeline)
	}
}
