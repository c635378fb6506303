package merge

import (
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/require"

	"github.com/sguzman/rics/internal/event"
)

var (
	t0    = time.Date(2025, 12, 1, 10, 0, 0, 0, time.UTC)
	t1    = time.Date(2025, 12, 2, 10, 0, 0, 0, time.UTC)
	today = civil.Date{Year: 2025, Month: 12, Day: 1}
)

func candidate(title, url string, d civil.Date) event.Candidate {
	return event.Candidate{
		SourceKey:  "src.a",
		SourceName: "Source A",
		SourceURL:  url,
		Title:      title,
		Time:       event.NewDate(d, nil),
		Status:     "scheduled",
		EventType:  "publication",
		Categories: []string{"economics"},
		Metadata:   map[string]string{},
	}
}

func TestApplyInsertsNewCandidates(t *testing.T) {
	st := event.NewState()
	report := event.SourceRunReport{SourceKey: "src.a"}

	changed := Apply(st, "src.a", []event.Candidate{
		candidate("A", "https://x/a", civil.Date{Year: 2026, Month: 5, Day: 1}),
		candidate("B", "https://x/b", civil.Date{Year: 2027, Month: 2, Day: 15}),
	}, &report, t0, today)

	require.Equal(t, 2, report.Inserted)
	require.Zero(t, report.Updated)
	require.Zero(t, report.Cancelled)
	require.Equal(t, []int{2026, 2027}, changed)
	require.Len(t, st.Events, 2)

	for _, record := range st.Events {
		require.EqualValues(t, 0, record.Sequence)
		require.Equal(t, t0, record.CreatedAt)
		require.Equal(t, t0, record.LastModified)
		require.Equal(t, t0, record.LastSeenAt)
	}
}

func TestApplyUnchangedOnlyTouchesLastSeen(t *testing.T) {
	st := event.NewState()
	report := event.SourceRunReport{}
	candidates := []event.Candidate{candidate("A", "https://x/a", civil.Date{Year: 2026, Month: 5, Day: 1})}
	Apply(st, "src.a", candidates, &report, t0, today)

	report = event.SourceRunReport{}
	changed := Apply(st, "src.a", []event.Candidate{candidate("A", "https://x/a", civil.Date{Year: 2026, Month: 5, Day: 1})}, &report, t1, today)

	require.Equal(t, 1, report.Unchanged)
	require.Zero(t, report.Inserted)
	require.Zero(t, report.Updated)
	require.Empty(t, changed, "unchanged candidates must not mark changed years")

	for _, record := range st.Events {
		require.EqualValues(t, 0, record.Sequence)
		require.Equal(t, t0, record.CreatedAt)
		require.Equal(t, t0, record.LastModified, "last_modified changes only with the sequence")
		require.Equal(t, t1, record.LastSeenAt)
	}
}

func TestApplyUpdatesOnContentChange(t *testing.T) {
	st := event.NewState()
	report := event.SourceRunReport{}
	Apply(st, "src.a", []event.Candidate{candidate("A", "https://x/a", civil.Date{Year: 2026, Month: 5, Day: 1})}, &report, t0, today)

	revised := candidate("A Revised", "https://x/a", civil.Date{Year: 2026, Month: 5, Day: 20})
	report = event.SourceRunReport{}
	changed := Apply(st, "src.a", []event.Candidate{revised}, &report, t1, today)

	require.Equal(t, 1, report.Updated)
	require.Equal(t, []int{2026}, changed)
	require.Len(t, st.Events, 1)

	for _, record := range st.Events {
		require.Equal(t, "A Revised", record.Title)
		require.EqualValues(t, 1, record.Sequence)
		require.Equal(t, t0, record.CreatedAt, "created_at is immutable")
		require.Equal(t, t1, record.LastModified)
	}
}

func TestApplyRevisionExcludedDriftIsUnchanged(t *testing.T) {
	st := event.NewState()
	report := event.SourceRunReport{}
	Apply(st, "src.a", []event.Candidate{candidate("A", "https://x/a", civil.Date{Year: 2026, Month: 5, Day: 1})}, &report, t0, today)

	drifted := candidate("A", "https://x/a", civil.Date{Year: 2026, Month: 5, Day: 1})
	drifted.SourceName = "Renamed"
	drifted.Timezone = "Europe/Paris"
	drifted.Country = "FR"
	importance := uint8(3)
	drifted.Importance = &importance

	report = event.SourceRunReport{}
	Apply(st, "src.a", []event.Candidate{drifted}, &report, t1, today)
	require.Equal(t, 1, report.Unchanged)
	require.Zero(t, report.Updated)
}

func TestApplyCancelsMissingFutureRecords(t *testing.T) {
	st := event.NewState()
	report := event.SourceRunReport{}
	Apply(st, "src.a", []event.Candidate{
		candidate("Future", "https://x/future", civil.Date{Year: 2026, Month: 5, Day: 1}),
		candidate("Past", "https://x/past", civil.Date{Year: 2024, Month: 1, Day: 1}),
	}, &report, t0, today)

	// Next run: the source stops listing both. Only the future one cancels.
	report = event.SourceRunReport{}
	changed := Apply(st, "src.a", nil, &report, t1, today)

	require.Equal(t, 1, report.Cancelled)
	require.Equal(t, []int{2026}, changed)

	var future, past *event.Record
	for _, record := range st.Events {
		switch record.Title {
		case "Future":
			future = record
		case "Past":
			past = record
		}
	}
	require.NotNil(t, future)
	require.NotNil(t, past)

	require.Equal(t, event.StatusCancelled, future.Status)
	require.EqualValues(t, 1, future.Sequence)
	require.Equal(t, t1, future.LastModified)

	require.Equal(t, "scheduled", past.Status, "past events are preserved as-is")
	require.EqualValues(t, 0, past.Sequence)

	// A third run must not cancel again.
	report = event.SourceRunReport{}
	changed = Apply(st, "src.a", nil, &report, t1, today)
	require.Zero(t, report.Cancelled)
	require.Empty(t, changed)
	require.EqualValues(t, 1, future.Sequence)
}

func TestApplyCancelledRecordReappears(t *testing.T) {
	st := event.NewState()
	report := event.SourceRunReport{}
	orig := candidate("A", "https://x/a", civil.Date{Year: 2026, Month: 5, Day: 1})
	Apply(st, "src.a", []event.Candidate{orig}, &report, t0, today)

	report = event.SourceRunReport{}
	Apply(st, "src.a", nil, &report, t0, today)
	require.Equal(t, 1, report.Cancelled)

	report = event.SourceRunReport{}
	changed := Apply(st, "src.a", []event.Candidate{candidate("A", "https://x/a", civil.Date{Year: 2026, Month: 5, Day: 1})}, &report, t1, today)

	require.Equal(t, 1, report.Updated, "a reappearing candidate updates the cancelled record")
	require.Equal(t, []int{2026}, changed)
	for _, record := range st.Events {
		require.Equal(t, "scheduled", record.Status)
		require.EqualValues(t, 2, record.Sequence)
	}
}

func TestApplyIgnoresOtherSourcesInSweep(t *testing.T) {
	st := event.NewState()
	report := event.SourceRunReport{}
	other := candidate("Other", "https://x/other", civil.Date{Year: 2026, Month: 6, Day: 1})
	other.SourceKey = "src.b"
	Apply(st, "src.b", []event.Candidate{other}, &report, t0, today)

	report = event.SourceRunReport{}
	Apply(st, "src.a", nil, &report, t0, today)
	require.Zero(t, report.Cancelled)
}

func TestApplyTbdCandidateNeverMarksYears(t *testing.T) {
	st := event.NewState()
	report := event.SourceRunReport{}
	tbd := candidate("Undated", "https://x/undated", civil.Date{})
	tbd.Time = event.NewTbd("tba")

	changed := Apply(st, "src.a", []event.Candidate{tbd}, &report, t0, today)
	require.Equal(t, 1, report.Inserted)
	require.Empty(t, changed)
}

func TestApplySortsAndDedupesCategories(t *testing.T) {
	st := event.NewState()
	report := event.SourceRunReport{}
	c := candidate("A", "https://x/a", civil.Date{Year: 2026, Month: 5, Day: 1})
	c.Categories = []string{"zeta", "alpha", "zeta", "economics"}

	Apply(st, "src.a", []event.Candidate{c}, &report, t0, today)
	for _, record := range st.Events {
		require.Equal(t, []string{"alpha", "economics", "zeta"}, record.Categories)
	}
}

func TestApplyDuplicateUIDLastWriterWins(t *testing.T) {
	st := event.NewState()
	report := event.SourceRunReport{}

	first := candidate("First", "https://x/same", civil.Date{Year: 2026, Month: 5, Day: 1})
	second := candidate("Second", "https://x/same", civil.Date{Year: 2026, Month: 5, Day: 1})
	Apply(st, "src.a", []event.Candidate{first, second}, &report, t0, today)

	require.Len(t, st.Events, 1)
	for _, record := range st.Events {
		require.Equal(t, "Second", record.Title)
	}
	require.Equal(t, 1, report.Inserted)
	require.Equal(t, 1, report.Updated)
}

func TestSequenceSaturates(t *testing.T) {
	st := event.NewState()
	report := event.SourceRunReport{}
	c := candidate("A", "https://x/a", civil.Date{Year: 2026, Month: 5, Day: 1})
	Apply(st, "src.a", []event.Candidate{c}, &report, t0, today)

	for _, record := range st.Events {
		record.Sequence = ^uint32(0)
	}
	report = event.SourceRunReport{}
	Apply(st, "src.a", nil, &report, t0, today)
	require.Equal(t, 1, report.Cancelled)
	for _, record := range st.Events {
		require.Equal(t, ^uint32(0), record.Sequence, "sequence pins at the maximum")
	}
}
