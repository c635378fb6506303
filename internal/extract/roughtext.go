package extract

import (
	"strings"

	"github.com/rs/zerolog"

	"github.com/sguzman/rics/internal/config"
	"github.com/sguzman/rics/internal/event"
	"github.com/sguzman/rics/internal/fetch"
)

// roughTextLinesParser reads loosely maintained text listings: one
// pipe-separated "date | title | url?" record per line, # comments
// allowed.
type roughTextLinesParser struct{}

func (roughTextLinesParser) Key() string { return "rough_text_lines_v1" }

func (p roughTextLinesParser) Parse(logger zerolog.Logger, source config.LoadedSource, docs []fetch.Document) ([]event.Candidate, error) {
	cfg := &source.Config
	confidence := 0.5

	var candidates []event.Candidate
	for _, doc := range docs {
		for _, raw := range strings.Split(string(doc.Body), "\n") {
			line := strings.TrimSpace(raw)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}

			fields, ok := parsePipeRecord(line)
			if !ok {
				continue
			}
			title, ok := fields["title"]
			if !ok {
				continue
			}

			spec := event.NewTbd("")
			if date, ok := fields["date"]; ok {
				spec = ParseEventTime(date, "", cfg.Date, cfg.Source.Timezone)
			}

			candidates = append(candidates, event.Candidate{
				SourceKey:     cfg.Source.Key,
				SourceName:    cfg.Source.Name,
				SourceEventID: fields["url"],
				SourceURL:     fields["url"],
				Title:         title,
				Time:          spec,
				Timezone:      cfg.Source.Timezone,
				Status:        cfg.Event.Status,
				EventType:     cfg.Event.EventType,
				Subtype:       cfg.Event.Subtype,
				Categories:    append([]string(nil), cfg.Event.Categories...),
				Jurisdiction:  cfg.Source.Jurisdiction,
				Country:       cfg.Source.DefaultCountry,
				Importance:    cfg.Event.Importance,
				Confidence:    &confidence,
				Metadata: map[string]string{
					"custom_parser": p.Key(),
				},
			})
		}
	}

	return candidates, nil
}
