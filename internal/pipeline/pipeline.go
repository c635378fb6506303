// Package pipeline drives one sync cycle: fetch, extract, merge, rebuild,
// persist. Sources are processed sequentially in sorted-key order; state
// is written once after all sources, so a failed run leaves the previous
// state intact.
package pipeline

import (
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"

	"github.com/sguzman/rics/internal/config"
	"github.com/sguzman/rics/internal/event"
	"github.com/sguzman/rics/internal/extract"
	"github.com/sguzman/rics/internal/fetch"
	"github.com/sguzman/rics/internal/merge"
	"github.com/sguzman/rics/internal/state"
)

type SyncOptions struct {
	ConfigDir string
	StatePath string
	OutDir    string
	Source    string
	DryRun    bool

	// Now overrides the clock; nil means time.Now. Merge classification
	// and the cancellation sweep's notion of "today" both derive from it.
	Now func() time.Time
}

type BuildOptions struct {
	ConfigDir string
	StatePath string
	OutDir    string
	Source    string
	Year      *int
}

type ValidateOptions struct {
	ConfigDir  string
	SourceFile string
}

// Sync runs the full cycle for every matching enabled source. Per-source
// fetch/extract failures are recorded on the report and skipped; rebuild
// and state persistence failures abort the run.
func Sync(logger zerolog.Logger, opts SyncOptions) ([]event.SourceRunReport, error) {
	sources, err := loadSources(logger, opts.ConfigDir, opts.Source)
	if err != nil {
		return nil, err
	}

	st, err := state.Load(opts.StatePath)
	if err != nil {
		return nil, err
	}

	clock := opts.Now
	if clock == nil {
		clock = time.Now
	}

	var reports []event.SourceRunReport
	for _, source := range sources {
		key := source.Config.Source.Key
		if !source.Config.Source.Enabled {
			logger.Info().Str("source", key).Msg("source disabled; skipping")
			continue
		}

		logger.Info().Str("source", key).Msg("sync start")
		report := event.SourceRunReport{SourceKey: key}

		docs, err := fetch.Documents(logger, source)
		if err != nil {
			report.Err = fmt.Sprintf("fetch failed: %v", err)
			logger.Error().Str("source", key).Err(err).Msg("fetch failed; skipping source")
			reports = append(reports, report)
			continue
		}
		report.PagesFetched = len(docs)

		candidates, err := extract.Events(logger, source, docs)
		if err != nil {
			report.Err = fmt.Sprintf("parse failed: %v", err)
			logger.Error().Str("source", key).Err(err).Msg("parse failed; skipping source")
			reports = append(reports, report)
			continue
		}
		report.RecordsParsed = len(candidates)

		now := clock().UTC()
		changedYears := merge.Apply(st, key, candidates, &report, now, civil.DateOf(now))

		logger.Info().
			Str("source", key).
			Int("inserted", report.Inserted).
			Int("updated", report.Updated).
			Int("unchanged", report.Unchanged).
			Int("cancelled", report.Cancelled).
			Ints("changed_years", changedYears).
			Msg("sync merge complete")

		if !opts.DryRun {
			if err := rebuildSourceCalendars(logger, st, source, opts.OutDir, nil, changedYears); err != nil {
				return nil, err
			}
		}

		reports = append(reports, report)
	}

	if opts.DryRun {
		logger.Info().Msg("dry run enabled; state and calendars not persisted")
		return reports, nil
	}

	if err := state.Save(opts.StatePath, st); err != nil {
		return nil, err
	}
	logger.Info().Str("state", opts.StatePath).Msg("state written")

	return reports, nil
}

// Build rewrites calendars from the persisted state alone, without
// fetching. All of a source's years are rewritten unless Year narrows it.
func Build(logger zerolog.Logger, opts BuildOptions) error {
	sources, err := loadSources(logger, opts.ConfigDir, opts.Source)
	if err != nil {
		return err
	}

	st, err := state.Load(opts.StatePath)
	if err != nil {
		return err
	}

	for _, source := range sources {
		if err := rebuildSourceCalendars(logger, st, source, opts.OutDir, opts.Year, nil); err != nil {
			return err
		}
	}
	return nil
}

// Validate parses configs and reports one OK line per valid source.
func Validate(opts ValidateOptions) ([]string, error) {
	if opts.SourceFile != "" {
		source, err := config.LoadFile(opts.SourceFile)
		if err != nil {
			return nil, err
		}
		return []string{fmt.Sprintf("OK: %s (%s)", source.Config.Source.Key, opts.SourceFile)}, nil
	}

	if opts.ConfigDir != "" {
		sources, err := config.LoadDir(opts.ConfigDir)
		if err != nil {
			return nil, err
		}
		lines := make([]string, 0, len(sources))
		for _, source := range sources {
			lines = append(lines, fmt.Sprintf("OK: %s (%s)", source.Config.Source.Key, source.Path))
		}
		return lines, nil
	}

	return nil, fmt.Errorf("either --config-dir or --source-file must be provided")
}

// LoadStateForRead exposes state loading to the harness and tests.
func LoadStateForRead(path string) (*event.State, error) {
	return state.Load(path)
}

// loadSources parses every config file, skipping invalid ones with a
// diagnostic, and applies the optional source-key filter. An empty result
// is an error.
func loadSources(logger zerolog.Logger, configDir, keyFilter string) ([]config.LoadedSource, error) {
	files, err := config.ListFiles(configDir)
	if err != nil {
		return nil, err
	}

	var sources []config.LoadedSource
	for _, path := range files {
		source, err := config.LoadFile(path)
		if err != nil {
			logger.Error().Str("file", path).Err(err).Msg("skipping invalid source config")
			continue
		}
		if keyFilter != "" && source.Config.Source.Key != keyFilter {
			continue
		}
		sources = append(sources, source)
	}

	if len(sources) == 0 {
		return nil, fmt.Errorf("no matching source configurations found")
	}

	sort.Slice(sources, func(i, j int) bool {
		return sources[i].Config.Source.Key < sources[j].Config.Source.Key
	})
	return sources, nil
}
