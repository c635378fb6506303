package extract

import (
	"github.com/rs/zerolog"

	"github.com/sguzman/rics/internal/config"
	"github.com/sguzman/rics/internal/event"
	"github.com/sguzman/rics/internal/fetch"
)

// CustomParser is a source-specific parser. Registration is a build-time
// operation: the registry below is the closed set of well-known keys.
type CustomParser interface {
	Key() string
	Parse(logger zerolog.Logger, source config.LoadedSource, docs []fetch.Document) ([]event.Candidate, error)
}

func customParserFor(key string) (CustomParser, bool) {
	switch key {
	case "oecd_publications_v1":
		return oecdPublicationsParser{}, true
	case "rough_text_lines_v1":
		return roughTextLinesParser{}, true
	case "econ_indicators_calendar_v1":
		return econIndicatorsCalendarParser{}, true
	default:
		return nil, false
	}
}
