package pipeline

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/sguzman/rics/internal/config"
	"github.com/sguzman/rics/internal/event"
	"github.com/sguzman/rics/internal/ics"
)

var legacyYearStemRe = regexp.MustCompile(`^\d+$`)

// rebuildSourceCalendars rewrites the per-year calendar files for one
// source. The set of years to write comes from every record the source
// has in state (so a year whose last event was cancelled is rewritten as
// an empty calendar); the events written come only from non-cancelled
// records. yearFilter and changedYears both narrow the set when present.
// Afterward, stale files in the source directory are removed.
func rebuildSourceCalendars(
	logger zerolog.Logger,
	st *event.State,
	source config.LoadedSource,
	outDir string,
	yearFilter *int,
	changedYears []int,
) error {
	cfg := &source.Config
	key := cfg.Source.Key

	yearsWithRecords := make(map[int]struct{})
	byYear := make(map[int][]*event.Record)
	for _, record := range st.Events {
		if record.SourceKey != key {
			continue
		}
		year, ok := record.YearBucket()
		if !ok {
			continue
		}
		yearsWithRecords[year] = struct{}{}
		if !record.IsCancelled() {
			byYear[year] = append(byYear[year], record)
		}
	}

	writeYears := make([]int, 0, len(yearsWithRecords))
	for year := range yearsWithRecords {
		if yearFilter != nil && year != *yearFilter {
			continue
		}
		writeYears = append(writeYears, year)
	}
	if changedYears != nil {
		changed := make(map[int]struct{}, len(changedYears))
		for _, year := range changedYears {
			changed[year] = struct{}{}
		}
		kept := writeYears[:0]
		for _, year := range writeYears {
			if _, ok := changed[year]; ok {
				kept = append(kept, year)
			}
		}
		writeYears = kept
	}
	sort.Ints(writeYears)

	prefix := cfg.SanitizedSourceDir()
	sourceDir := filepath.Join(outDir, "sources", prefix)
	if err := os.MkdirAll(sourceDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output dir %s: %w", sourceDir, err)
	}

	var written []string
	for _, year := range writeYears {
		records := byYear[year]
		ics.SortRecords(records)
		path := filepath.Join(sourceDir, calendarFileName(cfg, prefix, year))
		if err := ics.WriteYearCalendar(cfg, year, records, path); err != nil {
			return err
		}
		written = append(written, path)
		logger.Info().
			Str("source", key).
			Int("year", year).
			Int("events", len(records)).
			Str("file", path).
			Msg("calendar file rebuilt")
	}

	if err := cleanupStaleYearFiles(logger, sourceDir, yearsWithRecords, prefix, yearFilter); err != nil {
		return err
	}

	return mirrorCalendars(logger, cfg, prefix, written)
}

// cleanupStaleYearFiles garbage-collects orphaned output: legacy bare-year
// files always go; canonical <prefix>-<year>.ics files go when the year no
// longer has any record in state or, when yearFilter is set, when the year
// is not the filtered one. Other filenames are left alone.
func cleanupStaleYearFiles(
	logger zerolog.Logger,
	sourceDir string,
	yearsWithRecords map[int]struct{},
	prefix string,
	yearFilter *int,
) error {
	kept := make(map[int]struct{}, len(yearsWithRecords))
	for year := range yearsWithRecords {
		if yearFilter != nil && year != *yearFilter {
			continue
		}
		kept[year] = struct{}{}
	}

	entries, err := os.ReadDir(sourceDir)
	if err != nil {
		return fmt.Errorf("failed to read output dir %s: %w", sourceDir, err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".ics") {
			continue
		}
		stem := strings.TrimSuffix(name, ".ics")
		path := filepath.Join(sourceDir, name)

		if legacyYearStemRe.MatchString(stem) {
			if err := os.Remove(path); err != nil {
				return fmt.Errorf("failed to remove legacy file %s: %w", path, err)
			}
			logger.Warn().Str("file", path).Msg("removed legacy calendar file")
			continue
		}

		yearText, ok := strings.CutPrefix(stem, prefix+"-")
		if !ok {
			continue
		}
		year, err := strconv.Atoi(yearText)
		if err != nil {
			continue
		}
		if _, keep := kept[year]; !keep {
			if err := os.Remove(path); err != nil {
				return fmt.Errorf("failed to remove stale file %s: %w", path, err)
			}
			logger.Warn().Str("file", path).Msg("removed stale calendar file")
		}
	}

	return nil
}

// calendarFileName renders the output filename, honoring an optional
// publish.file_name_template.
func calendarFileName(cfg *config.SourceConfig, prefix string, year int) string {
	if cfg.Publish.FileNameTemplate == "" {
		return fmt.Sprintf("%s-%d.ics", prefix, year)
	}

	vars := map[string]string{
		"year":          strconv.Itoa(year),
		"source_key":    cfg.Source.Key,
		"source_dir":    prefix,
		"country":       cfg.Source.DefaultCountry,
		"country_upper": strings.ToUpper(cfg.Source.DefaultCountry),
	}
	for k, v := range cfg.Fetch.TemplateVars {
		vars[k] = v
	}

	name := cfg.Publish.FileNameTemplate
	for k, v := range vars {
		name = strings.ReplaceAll(name, "{{"+k+"}}", v)
	}
	return name
}

// mirrorCalendars copies freshly written files into publish.mirror_dir.
func mirrorCalendars(logger zerolog.Logger, cfg *config.SourceConfig, prefix string, written []string) error {
	if cfg.Publish.MirrorDir == "" || len(written) == 0 {
		return nil
	}

	destDir := cfg.Publish.MirrorDir
	if cfg.Publish.MirrorSourceSubdir {
		destDir = filepath.Join(destDir, prefix)
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("failed to create mirror dir %s: %w", destDir, err)
	}

	for _, src := range written {
		dest := filepath.Join(destDir, filepath.Base(src))
		if err := copyFile(src, dest); err != nil {
			return fmt.Errorf("failed to mirror %s: %w", src, err)
		}
		logger.Info().Str("file", dest).Msg("calendar file mirrored")
	}
	return nil
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
