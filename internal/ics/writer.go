// Package ics emits per-source, per-year iCalendar files. Emission is
// byte-deterministic: property order is fixed, lines fold at 75 bytes,
// and every run over identical records produces identical files.
package ics

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"cloud.google.com/go/civil"
	ical "github.com/emersion/go-ical"

	"github.com/sguzman/rics/internal/config"
	"github.com/sguzman/rics/internal/event"
)

const prodID = "-//rics//ICS Generator 1.0//EN"

const instantLayout = "20060102T150405Z"

// noStartSentinel sorts records without a start date after everything
// else.
const noStartSentinel = "9999-12-31"

// SortRecords orders records by (start date, uid) ascending, the
// deterministic order VEVENTs appear in within a calendar.
func SortRecords(records []*event.Record) {
	sort.Slice(records, func(i, j int) bool {
		return sortKey(records[i]) < sortKey(records[j])
	})
}

func sortKey(r *event.Record) string {
	day := noStartSentinel
	if start, ok := r.Time.StartDate(); ok {
		day = start.String()
	}
	return day + "|" + r.UID
}

// WriteYearCalendar renders one year bucket to path. Records must already
// be sorted; cancelled records must already be filtered out by the caller.
// The emitted bytes are decoded back through go-ical as a validity check.
func WriteYearCalendar(cfg *config.SourceConfig, year int, records []*event.Record, path string) error {
	var lines []string
	push := func(line string) {
		lines = append(lines, foldLine(line)...)
	}

	push("BEGIN:VCALENDAR")
	push("VERSION:2.0")
	push("PRODID:" + prodID)
	push("CALSCALE:GREGORIAN")
	push("METHOD:PUBLISH")
	push(fmt.Sprintf("X-WR-CALNAME:%s %d", escapeText(cfg.Source.Name), year))
	push("X-WR-TIMEZONE:UTC")

	for _, record := range records {
		appendEventLines(push, record)
	}

	push("END:VCALENDAR")

	payload := []byte(strings.Join(lines, "\r\n") + "\r\n")

	if parent := filepath.Dir(path); parent != "." {
		if err := os.MkdirAll(parent, 0o755); err != nil {
			return fmt.Errorf("failed to create output dir %s: %w", parent, err)
		}
	}
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return fmt.Errorf("failed to write ics %s: %w", path, err)
	}

	if _, err := ical.NewDecoder(bytes.NewReader(payload)).Decode(); err != nil {
		return fmt.Errorf("emitted calendar %s failed to decode: %w", path, err)
	}
	return nil
}

func appendEventLines(push func(string), record *event.Record) {
	push("BEGIN:VEVENT")
	push("UID:" + escapeText(record.UID))
	push("DTSTAMP:" + record.LastModified.UTC().Format(instantLayout))
	push("CREATED:" + record.CreatedAt.UTC().Format(instantLayout))
	push("LAST-MODIFIED:" + record.LastModified.UTC().Format(instantLayout))
	push(fmt.Sprintf("SEQUENCE:%d", record.Sequence))

	switch record.Time.Kind {
	case event.PrecisionDateTime:
		push("DTSTART:" + record.Time.Start.UTC().Format(instantLayout))
		if record.Time.End != nil {
			push("DTEND:" + record.Time.End.UTC().Format(instantLayout))
		}
	case event.PrecisionDate, event.PrecisionMonth, event.PrecisionQuarter, event.PrecisionYear:
		if start, ok := record.Time.StartDate(); ok {
			push("DTSTART;VALUE=DATE:" + dateBasic(start))
		}
		if end, ok := record.Time.EndDateExclusive(); ok {
			push("DTEND;VALUE=DATE:" + dateBasic(end))
		}
	default:
		if record.Time.Note != "" {
			push("X-RICS-TBD-NOTE:" + escapeText(record.Time.Note))
		}
	}

	push("SUMMARY:" + escapeText(record.Title))
	if record.Description != "" {
		push("DESCRIPTION:" + escapeText(record.Description))
	}
	if record.SourceURL != "" {
		push("URL:" + escapeText(record.SourceURL))
	}

	if len(record.Categories) > 0 {
		escaped := make([]string, 0, len(record.Categories))
		for _, c := range record.Categories {
			escaped = append(escaped, escapeText(c))
		}
		sort.Strings(escaped)
		escaped = dedupeSorted(escaped)
		push("CATEGORIES:" + strings.Join(escaped, ","))
	}

	push("STATUS:" + strings.ToUpper(record.Status))
	push("TRANSP:TRANSPARENT")

	push("X-RICS-SOURCE-KEY:" + escapeText(record.SourceKey))
	push("X-RICS-EVENT-TYPE:" + escapeText(record.EventType))
	if record.Subtype != "" {
		push("X-RICS-EVENT-SUBTYPE:" + escapeText(record.Subtype))
	}
	if record.Importance != nil {
		push(fmt.Sprintf("X-RICS-IMPORTANCE:%d", *record.Importance))
	}
	if record.Confidence != nil {
		push(fmt.Sprintf("X-RICS-CONFIDENCE:%.4f", *record.Confidence))
	}
	push("X-RICS-TIME-PRECISION:" + strings.ToUpper(string(record.Time.Precision())))
	push("X-RICS-REVISION-HASH:" + record.RevisionHash)

	for _, key := range sortedMetadataKeys(record.Metadata) {
		value := record.Metadata[key]
		if key == "" || value == "" {
			continue
		}
		push("X-RICS-" + sanitizeXKey(key) + ":" + escapeText(value))
	}

	push("END:VEVENT")
}

func dateBasic(d civil.Date) string {
	return fmt.Sprintf("%04d%02d%02d", d.Year, int(d.Month), d.Day)
}

// sanitizeXKey collapses non-alphanumerics to dashes and uppercases, so a
// metadata key is a legal X- property name fragment.
func sanitizeXKey(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r - ('a' - 'A'))
		case (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	return b.String()
}

// foldLine splits a content line into physical lines no longer than 75
// bytes; continuation lines begin with a single space that counts against
// the limit. Splits always land on rune boundaries.
func foldLine(line string) []string {
	const limit = 75

	if len(line) <= limit {
		return []string{line}
	}

	var out []string
	var current strings.Builder
	width := limit
	for _, r := range line {
		if current.Len()+len(string(r)) > width {
			if len(out) == 0 {
				out = append(out, current.String())
			} else {
				out = append(out, " "+current.String())
			}
			current.Reset()
			width = limit - 1
		}
		current.WriteRune(r)
	}
	if current.Len() > 0 {
		if len(out) == 0 {
			out = append(out, current.String())
		} else {
			out = append(out, " "+current.String())
		}
	}
	return out
}

func escapeText(value string) string {
	value = strings.ReplaceAll(value, `\`, `\\`)
	value = strings.ReplaceAll(value, ";", `\;`)
	value = strings.ReplaceAll(value, ",", `\,`)
	value = strings.ReplaceAll(value, "\n", `\n`)
	return value
}

func dedupeSorted(values []string) []string {
	out := values[:0]
	var prev string
	for i, v := range values {
		if i == 0 || v != prev {
			out = append(out, v)
		}
		prev = v
	}
	return out
}

func sortedMetadataKeys(metadata map[string]string) []string {
	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
