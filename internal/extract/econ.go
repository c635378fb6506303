package extract

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"

	"github.com/sguzman/rics/internal/config"
	"github.com/sguzman/rics/internal/event"
	"github.com/sguzman/rics/internal/fetch"
)

var (
	econDayHeaderRe = regexp.MustCompile(
		`^(Monday|Tuesday|Wednesday|Thursday|Friday|Saturday|Sunday)\s+([A-Za-z]+)\s+(\d{1,2})\s+(\d{4})`)
	econTimeLineRe     = regexp.MustCompile(`^(\d{1,2}:\d{2}\s*[AP]M)$`)
	econSplitColumnsRe = regexp.MustCompile(`\s{2,}`)
)

// econIndicatorsCalendarParser scans plain-text economic release calendars
// arranged as day headers, release-time lines, country rows and
// wide-whitespace value columns.
type econIndicatorsCalendarParser struct{}

func (econIndicatorsCalendarParser) Key() string { return "econ_indicators_calendar_v1" }

func (p econIndicatorsCalendarParser) Parse(logger zerolog.Logger, source config.LoadedSource, docs []fetch.Document) ([]event.Candidate, error) {
	cfg := &source.Config
	confidence := 0.9

	country := cfg.Fetch.TemplateVars["country"]
	if country == "" {
		country = cfg.Source.DefaultCountry
	}
	if country == "" {
		country = "US"
	}
	country = strings.ToUpper(country)

	var candidates []event.Candidate
	for _, doc := range docs {
		var activeDate *civil.Date
		var activeTime string
		waitingForCountry := false

		for _, raw := range strings.Split(string(doc.Body), "\n") {
			line := strings.TrimSpace(raw)
			if line == "" {
				continue
			}

			if caps := econDayHeaderRe.FindStringSubmatch(line); caps != nil {
				dateText := fmt.Sprintf("%s %s %s", caps[2], caps[3], caps[4])
				activeDate = nil
				for _, layout := range []string{"January 2 2006", "Jan 2 2006"} {
					if parsed, err := time.Parse(layout, dateText); err == nil {
						d := civil.DateOf(parsed)
						activeDate = &d
						break
					}
				}
				activeTime = ""
				waitingForCountry = false
				continue
			}

			if caps := econTimeLineRe.FindStringSubmatch(line); caps != nil {
				activeTime = caps[1]
				waitingForCountry = true
				continue
			}

			if waitingForCountry {
				waitingForCountry = false
				if strings.EqualFold(line, country) {
					continue
				}
				// No country row for this slot; the line is already payload.
			}

			if activeDate == nil || activeTime == "" {
				continue
			}

			start, ok := combineDateTime(*activeDate, activeTime, cfg.Source.Timezone)
			if !ok {
				continue
			}

			var columns []string
			for _, col := range econSplitColumnsRe.Split(line, -1) {
				if trimmed := strings.TrimSpace(col); trimmed != "" {
					columns = append(columns, trimmed)
				}
			}
			if len(columns) == 0 {
				continue
			}

			title := columns[0]
			metadata := map[string]string{
				"country":       country,
				"custom_parser": p.Key(),
			}
			valueNames := []string{"actual", "previous", "consensus", "forecast"}
			var descLines []string
			for i, name := range valueNames {
				if i+1 < len(columns) {
					metadata[name] = columns[i+1]
					descLines = append(descLines, fmt.Sprintf("%s: %s",
						strings.ToUpper(name[:1])+name[1:], columns[i+1]))
				}
			}

			id := fmt.Sprintf("%s|%s|%s|%s", country, activeDate.String(), activeTime, title)

			candidates = append(candidates, event.Candidate{
				SourceKey:     cfg.Source.Key,
				SourceName:    cfg.Source.Name,
				SourceEventID: id,
				SourceURL:     doc.SourceURL,
				Title:         title,
				Description:   strings.Join(descLines, "\n"),
				Time:          event.NewDateTime(start, nil),
				Timezone:      cfg.Source.Timezone,
				Status:        cfg.Event.Status,
				EventType:     cfg.Event.EventType,
				Subtype:       cfg.Event.Subtype,
				Categories:    append([]string(nil), cfg.Event.Categories...),
				Jurisdiction:  cfg.Source.Jurisdiction,
				Country:       country,
				Importance:    cfg.Event.Importance,
				Confidence:    &confidence,
				Metadata:      metadata,
			})
		}
	}

	return candidates, nil
}

// combineDateTime joins a calendar day with an "H:MM AM" clock reading in
// the source timezone, converted to UTC.
func combineDateTime(day civil.Date, timeText, timezone string) (time.Time, bool) {
	loc := locationFor(timezone)
	for _, layout := range []string{"2006-01-02 3:04PM", "2006-01-02 3:04 PM"} {
		text := day.String() + " " + timeText
		if layout == "2006-01-02 3:04PM" {
			text = day.String() + " " + strings.ReplaceAll(timeText, " ", "")
		}
		if parsed, err := time.ParseInLocation(layout, text, loc); err == nil {
			return parsed.UTC(), true
		}
	}
	return time.Time{}, false
}
