package event

import (
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
)

// Precision identifies the shape of a TimeSpec.
type Precision string

const (
	PrecisionDateTime Precision = "datetime"
	PrecisionDate     Precision = "date"
	PrecisionMonth    Precision = "month"
	PrecisionQuarter  Precision = "quarter"
	PrecisionYear     Precision = "year"
	PrecisionTbd      Precision = "tbd"
)

// TimeSpec is a tagged variant describing when an event happens. Only the
// fields belonging to the active Kind are meaningful.
type TimeSpec struct {
	Kind Precision

	// PrecisionDateTime
	Start *time.Time
	End   *time.Time

	// PrecisionDate
	DateStart civil.Date
	DateEnd   *civil.Date

	// PrecisionMonth / PrecisionQuarter / PrecisionYear
	Year    int
	Month   int
	Quarter int

	// PrecisionTbd
	Note string
}

func NewDateTime(start time.Time, end *time.Time) TimeSpec {
	s := start.UTC()
	if end != nil {
		e := end.UTC()
		end = &e
	}
	return TimeSpec{Kind: PrecisionDateTime, Start: &s, End: end}
}

func NewDate(start civil.Date, end *civil.Date) TimeSpec {
	return TimeSpec{Kind: PrecisionDate, DateStart: start, DateEnd: end}
}

func NewMonth(year, month int) TimeSpec {
	return TimeSpec{Kind: PrecisionMonth, Year: year, Month: month}
}

func NewQuarter(year, quarter int) TimeSpec {
	return TimeSpec{Kind: PrecisionQuarter, Year: year, Quarter: quarter}
}

func NewYear(year int) TimeSpec {
	return TimeSpec{Kind: PrecisionYear, Year: year}
}

func NewTbd(note string) TimeSpec {
	return TimeSpec{Kind: PrecisionTbd, Note: note}
}

// YearBucket returns the year used to group the event into a per-year
// calendar file. Tbd events have no bucket.
func (t TimeSpec) YearBucket() (int, bool) {
	switch t.Kind {
	case PrecisionDateTime:
		return t.Start.Year(), true
	case PrecisionDate:
		return t.DateStart.Year, true
	case PrecisionMonth, PrecisionQuarter, PrecisionYear:
		return t.Year, true
	default:
		return 0, false
	}
}

// StartDate returns the first calendar day covered by the spec.
func (t TimeSpec) StartDate() (civil.Date, bool) {
	switch t.Kind {
	case PrecisionDateTime:
		return civil.DateOf(t.Start.UTC()), true
	case PrecisionDate:
		return t.DateStart, true
	case PrecisionMonth:
		return civil.Date{Year: t.Year, Month: time.Month(t.Month), Day: 1}, true
	case PrecisionQuarter:
		return civil.Date{Year: t.Year, Month: quarterStartMonth(t.Quarter), Day: 1}, true
	case PrecisionYear:
		return civil.Date{Year: t.Year, Month: time.January, Day: 1}, true
	default:
		return civil.Date{}, false
	}
}

// EndDateExclusive returns the first calendar day after the spec's range.
// For Date specs without an end the range is a single day; bucket specs
// extend to the first day of the next bucket. DateTime specs report the UTC
// calendar day of their end instant, and nothing when they have no end.
func (t TimeSpec) EndDateExclusive() (civil.Date, bool) {
	switch t.Kind {
	case PrecisionDateTime:
		if t.End == nil {
			return civil.Date{}, false
		}
		return civil.DateOf(t.End.UTC()), true
	case PrecisionDate:
		end := t.DateStart
		if t.DateEnd != nil {
			end = *t.DateEnd
		}
		return end.AddDays(1), true
	case PrecisionMonth:
		year, month := t.Year, t.Month+1
		if month > 12 {
			year, month = year+1, 1
		}
		return civil.Date{Year: year, Month: time.Month(month), Day: 1}, true
	case PrecisionQuarter:
		month := int(quarterStartMonth(t.Quarter)) + 3
		year := t.Year
		if month > 12 {
			year, month = year+1, month-12
		}
		return civil.Date{Year: year, Month: time.Month(month), Day: 1}, true
	case PrecisionYear:
		return civil.Date{Year: t.Year + 1, Month: time.January, Day: 1}, true
	default:
		return civil.Date{}, false
	}
}

// Precision reports the variant name used in output and metadata.
func (t TimeSpec) Precision() Precision {
	if t.Kind == "" {
		return PrecisionTbd
	}
	return t.Kind
}

// IsFutureRelativeTo reports whether the spec starts on or after the given
// day. Tbd specs are always treated as future.
func (t TimeSpec) IsFutureRelativeTo(today civil.Date) bool {
	start, ok := t.StartDate()
	if !ok {
		return true
	}
	return !start.Before(today)
}

func quarterStartMonth(quarter int) time.Month {
	if quarter < 1 {
		quarter = 1
	}
	return time.Month(1 + (quarter-1)*3)
}

type timeSpecWire struct {
	Kind    Precision `json:"kind"`
	Start   string    `json:"start,omitempty"`
	End     string    `json:"end,omitempty"`
	Year    int       `json:"year,omitempty"`
	Month   int       `json:"month,omitempty"`
	Quarter int       `json:"quarter,omitempty"`
	Note    string    `json:"note,omitempty"`
}

const instantLayout = time.RFC3339

func (t TimeSpec) MarshalJSON() ([]byte, error) {
	wire := timeSpecWire{Kind: t.Precision()}
	switch t.Kind {
	case PrecisionDateTime:
		wire.Start = t.Start.UTC().Format(instantLayout)
		if t.End != nil {
			wire.End = t.End.UTC().Format(instantLayout)
		}
	case PrecisionDate:
		wire.Start = t.DateStart.String()
		if t.DateEnd != nil {
			wire.End = t.DateEnd.String()
		}
	case PrecisionMonth:
		wire.Year, wire.Month = t.Year, t.Month
	case PrecisionQuarter:
		wire.Year, wire.Quarter = t.Year, t.Quarter
	case PrecisionYear:
		wire.Year = t.Year
	default:
		wire.Note = t.Note
	}
	return json.Marshal(wire)
}

func (t *TimeSpec) UnmarshalJSON(data []byte) error {
	var wire timeSpecWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	switch wire.Kind {
	case PrecisionDateTime:
		start, err := time.Parse(instantLayout, wire.Start)
		if err != nil {
			return fmt.Errorf("invalid datetime start %q: %w", wire.Start, err)
		}
		var end *time.Time
		if wire.End != "" {
			parsed, err := time.Parse(instantLayout, wire.End)
			if err != nil {
				return fmt.Errorf("invalid datetime end %q: %w", wire.End, err)
			}
			end = &parsed
		}
		*t = NewDateTime(start, end)
	case PrecisionDate:
		start, err := civil.ParseDate(wire.Start)
		if err != nil {
			return fmt.Errorf("invalid date start %q: %w", wire.Start, err)
		}
		var end *civil.Date
		if wire.End != "" {
			parsed, err := civil.ParseDate(wire.End)
			if err != nil {
				return fmt.Errorf("invalid date end %q: %w", wire.End, err)
			}
			end = &parsed
		}
		*t = NewDate(start, end)
	case PrecisionMonth:
		*t = NewMonth(wire.Year, wire.Month)
	case PrecisionQuarter:
		*t = NewQuarter(wire.Year, wire.Quarter)
	case PrecisionYear:
		*t = NewYear(wire.Year)
	case PrecisionTbd:
		*t = NewTbd(wire.Note)
	default:
		return fmt.Errorf("unknown time spec kind %q", wire.Kind)
	}
	return nil
}
