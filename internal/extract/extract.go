// Package extract turns fetched documents into candidate events: a
// declarative field-rule evaluator over HTML, JSON and text contexts, a
// date-shape inference ladder, and a closed registry of source-specific
// custom parsers.
package extract

import (
	"github.com/rs/zerolog"

	"github.com/sguzman/rics/internal/config"
	"github.com/sguzman/rics/internal/event"
	"github.com/sguzman/rics/internal/fetch"
)

// Events parses every fetched document for a source into candidate
// events. An enabled custom parser takes over entirely; unknown parser
// keys fall back to the declarative path with a warning.
func Events(logger zerolog.Logger, source config.LoadedSource, docs []fetch.Document) ([]event.Candidate, error) {
	if source.Config.Custom.Enabled && source.Config.Custom.Parser != "" {
		if parser, ok := customParserFor(source.Config.Custom.Parser); ok {
			candidates, err := parser.Parse(logger, source, docs)
			if err != nil {
				return nil, err
			}
			logger.Info().
				Str("source", source.Config.Source.Key).
				Str("parser", parser.Key()).
				Int("events", len(candidates)).
				Msg("custom parser produced events")
			return candidates, nil
		}
		logger.Warn().
			Str("source", source.Config.Source.Key).
			Str("parser", source.Config.Custom.Parser).
			Msg("custom parser not found; falling back to declarative parser")
	}

	return declarativeEvents(logger, source, docs)
}

func declarativeEvents(logger zerolog.Logger, source config.LoadedSource, docs []fetch.Document) ([]event.Candidate, error) {
	e := newEvaluator(logger)
	cfg := &source.Config

	var records []mappedRecord
	for _, doc := range docs {
		var (
			parsed []mappedRecord
			err    error
		)
		switch cfg.Extract.Format {
		case config.ExtractHTML:
			parsed, err = e.parseHTMLDocument(cfg, doc)
		case config.ExtractJSON:
			parsed, err = e.parseJSONDocument(cfg, doc)
		case config.ExtractPDFText:
			parsed, err = e.parseTextDocument(cfg, doc, true)
		default:
			parsed, err = e.parseTextDocument(cfg, doc, false)
		}
		if err != nil {
			return nil, err
		}
		records = append(records, parsed...)
	}

	var candidates []event.Candidate
	for _, rec := range records {
		if candidate, ok := e.recordToCandidate(cfg, rec); ok {
			candidates = append(candidates, candidate)
		}
	}
	return candidates, nil
}

func (e *evaluator) parseJSONDocument(cfg *config.SourceConfig, doc fetch.Document) ([]mappedRecord, error) {
	root, err := decodeJSONDocument(doc.Body, doc.SourceURL)
	if err != nil {
		return nil, err
	}

	nodes := e.selectJSONNodes(root, cfg.Extract.RootJSONPath)

	var out []mappedRecord
	for _, node := range nodes {
		rawText := compactJSON(node)

		var fields map[string]string
		if len(cfg.Map) == 0 {
			fields = make(map[string]string)
			if obj, ok := node.(map[string]any); ok {
				for key, value := range obj {
					if text, ok := jsonValueToString(value); ok {
						fields[key] = text
					}
				}
			}
		} else {
			fields, err = e.evaluateFields(cfg.Source.Key, cfg.Map, jsonContext(node), rawText, "", doc.SourceURL)
			if err != nil {
				return nil, err
			}
		}

		out = append(out, mappedRecord{
			Fields:    fields,
			SourceURL: doc.SourceURL,
			RawText:   rawText,
		})
	}

	return out, nil
}
