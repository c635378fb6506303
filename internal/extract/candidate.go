package extract

import (
	"sort"
	"strconv"
	"strings"

	"github.com/sguzman/rics/internal/config"
	"github.com/sguzman/rics/internal/event"
)

// claimedFields are record keys consumed by the conversion below; anything
// else flows into metadata.
var claimedFields = map[string]struct{}{
	"title": {}, "name": {}, "description": {}, "summary": {},
	"date": {}, "start": {}, "end": {}, "status": {}, "event_type": {},
	"subtype": {}, "categories": {}, "source_event_id": {}, "id": {},
	"url": {}, "link": {}, "importance": {}, "confidence": {},
}

// recordToCandidate turns a mapped record into a candidate event, applying
// the field fallback chains and the source-level defaults. Records without
// a title are dropped.
func (e *evaluator) recordToCandidate(cfg *config.SourceConfig, rec mappedRecord) (event.Candidate, bool) {
	title, ok := firstField(rec.Fields, "title", "name")
	if !ok {
		e.logger.Debug().
			Str("source", cfg.Source.Key).
			Str("raw", rec.RawText).
			Msg("skipping record with no title")
		return event.Candidate{}, false
	}

	sourceURL, ok := firstField(rec.Fields, "url", "link")
	if !ok {
		sourceURL = rec.SourceURL
	}

	sourceEventID, _ := firstField(rec.Fields, "source_event_id", "id")

	startRaw, ok := firstField(rec.Fields, "start", cfg.Date.Primary, "date")
	endRaw := rec.Fields["end"]

	parseTimezone := cfg.Source.Timezone
	if parseTimezone == "" {
		parseTimezone = cfg.Date.AssumeTimezone
	}

	var spec event.TimeSpec
	if ok {
		spec = ParseEventTime(startRaw, endRaw, cfg.Date, parseTimezone)
	} else {
		spec = event.NewTbd(rec.Fields["tbd"])
	}

	status := rec.Fields["status"]
	if status == "" {
		status = cfg.Event.Status
	}
	eventType := rec.Fields["event_type"]
	if eventType == "" {
		eventType = cfg.Event.EventType
	}
	subtype := rec.Fields["subtype"]
	if subtype == "" {
		subtype = cfg.Event.Subtype
	}

	categories := make(map[string]struct{}, len(cfg.Event.Categories)+1)
	for _, c := range cfg.Event.Categories {
		categories[c] = struct{}{}
	}
	if cfg.Source.Domain != "" {
		categories[cfg.Source.Domain] = struct{}{}
	}
	if dynamic, ok := rec.Fields["categories"]; ok {
		for _, item := range strings.FieldsFunc(dynamic, func(r rune) bool {
			return r == ',' || r == ';'
		}) {
			if v := strings.TrimSpace(item); v != "" {
				categories[v] = struct{}{}
			}
		}
	}
	categoryList := make([]string, 0, len(categories))
	for c := range categories {
		categoryList = append(categoryList, c)
	}
	sort.Strings(categoryList)

	description, _ := firstField(rec.Fields, "description", "summary")

	importance := cfg.Event.Importance
	if raw, ok := rec.Fields["importance"]; ok {
		if parsed, err := strconv.ParseUint(raw, 10, 8); err == nil {
			v := uint8(parsed)
			importance = &v
		}
	}

	var confidence *float64
	if raw, ok := rec.Fields["confidence"]; ok {
		if parsed, err := strconv.ParseFloat(raw, 64); err == nil {
			confidence = &parsed
		}
	}

	metadata := make(map[string]string)
	for key, value := range rec.Fields {
		if _, claimed := claimedFields[key]; claimed {
			continue
		}
		metadata[key] = value
	}
	metadata["time_precision"] = string(spec.Precision())
	if rec.BaseURL != "" {
		metadata["base_url"] = rec.BaseURL
	}

	return event.Candidate{
		SourceKey:     cfg.Source.Key,
		SourceName:    cfg.Source.Name,
		SourceEventID: sourceEventID,
		SourceURL:     sourceURL,
		Title:         title,
		Description:   description,
		Time:          spec,
		Timezone:      cfg.Source.Timezone,
		Status:        status,
		EventType:     eventType,
		Subtype:       subtype,
		Categories:    categoryList,
		Jurisdiction:  cfg.Source.Jurisdiction,
		Country:       cfg.Source.DefaultCountry,
		Importance:    importance,
		Confidence:    confidence,
		Metadata:      metadata,
	}, true
}

func firstField(fields map[string]string, names ...string) (string, bool) {
	for _, name := range names {
		if name == "" {
			continue
		}
		if value, ok := fields[name]; ok {
			return value, true
		}
	}
	return "", false
}
