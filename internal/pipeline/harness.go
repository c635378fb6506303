package pipeline

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type HarnessOptions struct {
	ConfigDir string
	StatePath string
	OutDir    string

	// Now overrides the clock for both syncs; nil means time.Now.
	Now func() time.Time
}

// HarnessReport summarizes two consecutive syncs over the same fixtures.
// A stable setup shows zero inserts and updates on the second run.
type HarnessReport struct {
	FirstRunSources    int `json:"first_run_sources"`
	FirstRunInserted   int `json:"first_run_inserted"`
	FirstRunUpdated    int `json:"first_run_updated"`
	FirstRunCancelled  int `json:"first_run_cancelled"`
	SecondRunInserted  int `json:"second_run_inserted"`
	SecondRunUpdated   int `json:"second_run_updated"`
	SecondRunCancelled int `json:"second_run_cancelled"`
	TotalEvents        int `json:"total_events"`
	ICSFiles           int `json:"ics_files"`
}

// RunHarness wipes the output directory and state, syncs twice, and
// reports stability metrics.
func RunHarness(logger zerolog.Logger, opts HarnessOptions) (*HarnessReport, error) {
	if err := os.RemoveAll(opts.OutDir); err != nil {
		return nil, err
	}
	if err := os.Remove(opts.StatePath); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	syncOpts := SyncOptions{
		ConfigDir: opts.ConfigDir,
		StatePath: opts.StatePath,
		OutDir:    opts.OutDir,
		Now:       opts.Now,
	}

	first, err := Sync(logger, syncOpts)
	if err != nil {
		return nil, err
	}
	second, err := Sync(logger, syncOpts)
	if err != nil {
		return nil, err
	}

	st, err := LoadStateForRead(opts.StatePath)
	if err != nil {
		return nil, err
	}

	icsFiles := 0
	if _, statErr := os.Stat(opts.OutDir); statErr == nil {
		err = filepath.WalkDir(opts.OutDir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && strings.HasSuffix(path, ".ics") {
				icsFiles++
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	report := &HarnessReport{
		FirstRunSources: len(first),
		TotalEvents:     len(st.Events),
		ICSFiles:        icsFiles,
	}
	for _, r := range first {
		report.FirstRunInserted += r.Inserted
		report.FirstRunUpdated += r.Updated
		report.FirstRunCancelled += r.Cancelled
	}
	for _, r := range second {
		report.SecondRunInserted += r.Inserted
		report.SecondRunUpdated += r.Updated
		report.SecondRunCancelled += r.Cancelled
	}
	return report, nil
}
