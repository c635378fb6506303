package extract

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"

	"github.com/sguzman/rics/internal/config"
	"github.com/sguzman/rics/internal/event"
)

var (
	quarterRe  = regexp.MustCompile(`(?i)^Q([1-4])\s*[- ]?\s*(\d{4})$`)
	bareYearRe = regexp.MustCompile(`^\d{4}$`)

	standaloneDayRe   = regexp.MustCompile(`(^|[^0-9])_?2([^0-9]|$)`)
	standaloneMonthRe = regexp.MustCompile(`(^|[^0-9])1([^0-9]|$)`)
)

var monthOnlyLayouts = []string{"January 2006", "Jan 2006", "2006-01", "2006/01"}

type layoutKind int

const (
	layoutDateTime layoutKind = iota
	layoutDate
	layoutMonth
	layoutYear
)

// classifyLayout inspects a Go reference layout and decides how much
// precision it carries, so a month-only layout in the format list cannot
// masquerade as a full date (time.Parse fills missing fields with 1).
func classifyLayout(layout string) layoutKind {
	rest := strings.ReplaceAll(layout, "2006", "")
	if strings.Contains(rest, "15") || strings.Contains(rest, ":") {
		return layoutDateTime
	}
	if strings.Contains(rest, "02") || standaloneDayRe.MatchString(rest) {
		return layoutDate
	}
	if strings.Contains(rest, "Jan") || strings.Contains(rest, "01") ||
		standaloneMonthRe.MatchString(rest) {
		return layoutMonth
	}
	return layoutYear
}

// ParseEventTime infers a TimeSpec from a raw start string, walking from
// the most precise shape down: RFC 3339, configured datetime layouts,
// configured date layouts, month-year, quarter, bare year, Tbd.
func ParseEventTime(startRaw, endRaw string, dateCfg config.DateConfig, timezone string) event.TimeSpec {
	startRaw = strings.TrimSpace(startRaw)
	endRaw = strings.TrimSpace(endRaw)
	if startRaw == "" {
		return event.NewTbd("")
	}

	if start, err := time.Parse(time.RFC3339, startRaw); err == nil {
		var end *time.Time
		if endRaw != "" {
			if parsed, err := time.Parse(time.RFC3339, endRaw); err == nil {
				utc := parsed.UTC()
				end = &utc
			}
		}
		return event.NewDateTime(start, end)
	}

	loc := locationFor(timezone)
	formats := append(append([]string(nil), dateCfg.Formats...), config.DefaultDateFormats()...)
	for _, layout := range formats {
		switch classifyLayout(layout) {
		case layoutDateTime:
			if start, err := time.ParseInLocation(layout, startRaw, loc); err == nil {
				var end *time.Time
				if endRaw != "" {
					if parsed, err := time.ParseInLocation(layout, endRaw, loc); err == nil {
						utc := parsed.UTC()
						end = &utc
					}
				}
				return event.NewDateTime(start, end)
			}
		case layoutDate:
			if start, err := time.Parse(layout, startRaw); err == nil {
				var end *civil.Date
				if endRaw != "" {
					if parsed, err := time.Parse(layout, endRaw); err == nil {
						d := civil.DateOf(parsed)
						end = &d
					}
				}
				return event.NewDate(civil.DateOf(start), end)
			}
		}
	}

	if dateCfg.AllowMonthOnly {
		if year, month, ok := parseMonthYear(startRaw); ok {
			return event.NewMonth(year, month)
		}
	}

	if caps := quarterRe.FindStringSubmatch(startRaw); caps != nil {
		quarter, _ := strconv.Atoi(caps[1])
		year, _ := strconv.Atoi(caps[2])
		return event.NewQuarter(year, quarter)
	}

	if dateCfg.AllowYearOnly && bareYearRe.MatchString(startRaw) {
		year, _ := strconv.Atoi(startRaw)
		return event.NewYear(year)
	}

	return event.NewTbd(startRaw)
}

func parseMonthYear(value string) (year, month int, ok bool) {
	for _, layout := range monthOnlyLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed.Year(), int(parsed.Month()), true
		}
	}
	return 0, 0, false
}

// locationFor resolves an IANA timezone name, falling back to UTC when the
// name is empty or unknown.
func locationFor(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

var dateDetectionRes = []*regexp.Regexp{
	regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`),
	regexp.MustCompile(`\b\d{4}/\d{2}/\d{2}\b`),
	regexp.MustCompile(`\b(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Sept|Oct|Nov|Dec)[a-z]*\s+\d{1,2},\s+\d{4}\b`),
}

// detectDateInText finds the first date-shaped substring: ISO, slash-dated
// or long-month forms. Used by the mapless HTML fallback.
func detectDateInText(text string) (string, bool) {
	for _, re := range dateDetectionRes {
		if found := re.FindString(text); found != "" {
			return found, true
		}
	}
	return "", false
}
