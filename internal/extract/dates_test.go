package extract

import (
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/require"

	"github.com/sguzman/rics/internal/config"
	"github.com/sguzman/rics/internal/event"
)

func defaultDateConfig() config.DateConfig {
	return config.DateConfig{
		Primary:        "date",
		Formats:        config.DefaultDateFormats(),
		AllowMonthOnly: true,
		AllowYearOnly:  true,
	}
}

func TestParseEventTimeRFC3339(t *testing.T) {
	spec := ParseEventTime("2026-05-01T09:30:00Z", "2026-05-01T11:00:00+02:00", defaultDateConfig(), "")
	require.Equal(t, event.PrecisionDateTime, spec.Kind)
	require.Equal(t, time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC), *spec.Start)
	require.NotNil(t, spec.End)
	require.Equal(t, time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC), *spec.End)
}

func TestParseEventTimeISODate(t *testing.T) {
	spec := ParseEventTime("2026-05-01", "", defaultDateConfig(), "")
	require.Equal(t, event.PrecisionDate, spec.Kind)
	require.Equal(t, civil.Date{Year: 2026, Month: 5, Day: 1}, spec.DateStart)
	require.Nil(t, spec.DateEnd)
}

func TestParseEventTimeDateRange(t *testing.T) {
	spec := ParseEventTime("2026-05-01", "2026-05-03", defaultDateConfig(), "")
	require.Equal(t, event.PrecisionDate, spec.Kind)
	require.NotNil(t, spec.DateEnd)
	require.Equal(t, civil.Date{Year: 2026, Month: 5, Day: 3}, *spec.DateEnd)
}

func TestParseEventTimeLongMonthDate(t *testing.T) {
	spec := ParseEventTime("May 1, 2026", "", defaultDateConfig(), "")
	require.Equal(t, event.PrecisionDate, spec.Kind)
	require.Equal(t, civil.Date{Year: 2026, Month: 5, Day: 1}, spec.DateStart)
}

func TestParseEventTimeMonthOnly(t *testing.T) {
	spec := ParseEventTime("May 2026", "", defaultDateConfig(), "")
	require.Equal(t, event.PrecisionMonth, spec.Kind)
	require.Equal(t, 2026, spec.Year)
	require.Equal(t, 5, spec.Month)

	for _, raw := range []string{"2026-05", "2026/05", "Sep 2026"} {
		spec := ParseEventTime(raw, "", defaultDateConfig(), "")
		require.Equal(t, event.PrecisionMonth, spec.Kind, "input %q", raw)
	}
}

func TestParseEventTimeMonthOnlyDisallowed(t *testing.T) {
	cfg := defaultDateConfig()
	cfg.AllowMonthOnly = false
	spec := ParseEventTime("May 2026", "", cfg, "")
	require.Equal(t, event.PrecisionTbd, spec.Kind)
	require.Equal(t, "May 2026", spec.Note)
}

func TestParseEventTimeQuarter(t *testing.T) {
	for _, raw := range []string{"Q3 2026", "q3 2026", "Q3-2026", "Q3  2026"} {
		spec := ParseEventTime(raw, "", defaultDateConfig(), "")
		require.Equal(t, event.PrecisionQuarter, spec.Kind, "input %q", raw)
		require.Equal(t, 2026, spec.Year)
		require.Equal(t, 3, spec.Quarter)
	}
}

func TestParseEventTimeYearOnly(t *testing.T) {
	spec := ParseEventTime("2030", "", defaultDateConfig(), "")
	require.Equal(t, event.PrecisionYear, spec.Kind)
	require.Equal(t, 2030, spec.Year)

	cfg := defaultDateConfig()
	cfg.AllowYearOnly = false
	spec = ParseEventTime("2030", "", cfg, "")
	require.Equal(t, event.PrecisionTbd, spec.Kind)
}

func TestParseEventTimeUnparseable(t *testing.T) {
	spec := ParseEventTime("to be announced", "", defaultDateConfig(), "")
	require.Equal(t, event.PrecisionTbd, spec.Kind)
	require.Equal(t, "to be announced", spec.Note)

	spec = ParseEventTime("   ", "", defaultDateConfig(), "")
	require.Equal(t, event.PrecisionTbd, spec.Kind)
	require.Empty(t, spec.Note)
}

func TestParseEventTimeDatetimeFormatWithTimezone(t *testing.T) {
	cfg := defaultDateConfig()
	cfg.Formats = append([]string{"2006-01-02 15:04"}, cfg.Formats...)

	spec := ParseEventTime("2026-05-01 09:30", "", cfg, "America/New_York")
	require.Equal(t, event.PrecisionDateTime, spec.Kind)
	require.Equal(t, time.Date(2026, 5, 1, 13, 30, 0, 0, time.UTC), *spec.Start)
}

func TestClassifyLayout(t *testing.T) {
	cases := map[string]layoutKind{
		"2006-01-02":       layoutDate,
		"2006/01/02":       layoutDate,
		"January 2, 2006":  layoutDate,
		"Jan 2, 2006":      layoutDate,
		"2006-01-02 15:04": layoutDateTime,
		"January 2006":     layoutMonth,
		"Jan 2006":         layoutMonth,
		"2006-01":          layoutMonth,
		"2006":             layoutYear,
	}
	for layout, kind := range cases {
		require.Equal(t, kind, classifyLayout(layout), "layout %q", layout)
	}
}

func TestDetectDateInText(t *testing.T) {
	date, ok := detectDateInText("Release scheduled for 2026-05-01 at noon")
	require.True(t, ok)
	require.Equal(t, "2026-05-01", date)

	date, ok = detectDateInText("Published May 1, 2026 by the secretariat")
	require.True(t, ok)
	require.Equal(t, "May 1, 2026", date)

	_, ok = detectDateInText("no dates here")
	require.False(t, ok)
}
