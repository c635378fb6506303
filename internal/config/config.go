package config

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// LoadedSource couples a parsed source config with the file it came from,
// so relative fetch paths and diagnostics can refer back to it.
type LoadedSource struct {
	Path   string
	Config SourceConfig
}

type SourceConfig struct {
	Source     SourceMeta           `toml:"source"`
	Fetch      FetchConfig          `toml:"fetch"`
	Pagination PaginationConfig     `toml:"pagination"`
	Extract    ExtractConfig        `toml:"extract"`
	Map        map[string]FieldRule `toml:"map"`
	Date       DateConfig           `toml:"date"`
	Event      EventConfig          `toml:"event"`
	PDF        PDFConfig            `toml:"pdf"`
	Custom     CustomConfig         `toml:"custom"`
	Publish    PublishConfig        `toml:"publish"`
}

type SourceMeta struct {
	Key            string `toml:"key"`
	Name           string `toml:"name"`
	Domain         string `toml:"domain"`
	Enabled        bool   `toml:"enabled"`
	Timezone       string `toml:"timezone"`
	Jurisdiction   string `toml:"jurisdiction"`
	DefaultCountry string `toml:"default_country"`
}

type FetchMode string

const (
	FetchModeHTTP   FetchMode = "http"
	FetchModeFile   FetchMode = "file"
	FetchModeInline FetchMode = "inline"
)

type FetchConfig struct {
	Mode           FetchMode         `toml:"mode"`
	Method         string            `toml:"method"`
	BaseURL        string            `toml:"base_url"`
	FilePath       string            `toml:"file_path"`
	InlineData     string            `toml:"inline_data"`
	Headers        map[string]string `toml:"headers"`
	TemplateVars   map[string]string `toml:"template_vars"`
	TimeoutSecs    uint64            `toml:"timeout_secs"`
	RetryAttempts  uint8             `toml:"retry_attempts"`
	RetryBackoffMs uint64            `toml:"retry_backoff_ms"`
	UserAgent      string            `toml:"user_agent"`
}

type PaginationStrategy string

const (
	PaginationQueryParam PaginationStrategy = "query_param"
	PaginationNextLink   PaginationStrategy = "next_link"
)

type PaginationConfig struct {
	Enabled           bool               `toml:"enabled"`
	Strategy          PaginationStrategy `toml:"strategy"`
	PageParam         string             `toml:"page_param"`
	StartPage         int                `toml:"start_page"`
	MaxPages          int                `toml:"max_pages"`
	StopWhenNoResults bool               `toml:"stop_when_no_results"`
	NextSelector      string             `toml:"next_selector"`
}

type ExtractFormat string

const (
	ExtractHTML    ExtractFormat = "html"
	ExtractJSON    ExtractFormat = "json"
	ExtractPDFText ExtractFormat = "pdf_text"
	ExtractText    ExtractFormat = "text"
)

type ExtractConfig struct {
	Format       ExtractFormat `toml:"format"`
	RootSelector string        `toml:"root_selector"`
	RootJSONPath string        `toml:"root_jsonpath"`
	RecordRegex  string        `toml:"record_regex"`
}

// FieldRule maps an extraction context to a single target field. An empty
// From means the target name itself is the expression; Const overrides
// extraction entirely.
type FieldRule struct {
	From       string `toml:"from"`
	Const      string `toml:"const"`
	Optional   bool   `toml:"optional"`
	Trim       bool   `toml:"trim"`
	Absolutize bool   `toml:"absolutize"`
	Regex      string `toml:"regex"`
	Capture    int    `toml:"capture"`
}

type DateConfig struct {
	Primary        string   `toml:"primary"`
	Formats        []string `toml:"formats"`
	AssumeTimezone string   `toml:"assume_timezone"`
	AllowMonthOnly bool     `toml:"allow_month_only"`
	AllowYearOnly  bool     `toml:"allow_year_only"`
}

type EventConfig struct {
	EventType  string   `toml:"event_type"`
	Subtype    string   `toml:"subtype"`
	Status     string   `toml:"status"`
	Categories []string `toml:"categories"`
	Importance *uint8   `toml:"importance"`
}

type PDFConfig struct {
	PageRange           string                  `toml:"page_range"`
	JoinLines           bool                    `toml:"join_lines"`
	NormalizeWhitespace bool                    `toml:"normalize_whitespace"`
	RecordSplit         []PDFRecordSplit        `toml:"record_split"`
	Fields              map[string]PDFFieldRule `toml:"fields"`
}

type PDFRecordSplit struct {
	Strategy string `toml:"strategy"`
	Pattern  string `toml:"pattern"`
}

type PDFFieldRule struct {
	Pattern  string `toml:"pattern"`
	Capture  int    `toml:"capture"`
	Optional bool   `toml:"optional"`
}

type CustomConfig struct {
	Parser  string `toml:"parser"`
	Enabled bool   `toml:"enabled"`
}

type PublishConfig struct {
	MirrorDir          string `toml:"mirror_dir"`
	MirrorSourceSubdir bool   `toml:"mirror_source_subdir"`
	FileNameTemplate   string `toml:"file_name_template"`
}

// DefaultDateFormats is the built-in layout ladder appended after any
// user-supplied formats: ISO, slash, long/short month-day-year, long/short
// month-year, year-only.
func DefaultDateFormats() []string {
	return []string{
		"2006-01-02",
		"2006/01/02",
		"January 2, 2006",
		"Jan 2, 2006",
		"January 2006",
		"Jan 2006",
		"2006",
	}
}

func defaultSourceConfig() SourceConfig {
	return SourceConfig{
		Source: SourceMeta{Enabled: true},
		Fetch: FetchConfig{
			Mode:           FetchModeHTTP,
			Method:         "GET",
			TimeoutSecs:    20,
			RetryAttempts:  2,
			RetryBackoffMs: 500,
		},
		Pagination: PaginationConfig{
			Strategy:          PaginationQueryParam,
			PageParam:         "page",
			MaxPages:          1,
			StopWhenNoResults: true,
		},
		Extract: ExtractConfig{Format: ExtractHTML},
		Date: DateConfig{
			Primary:        "date",
			Formats:        DefaultDateFormats(),
			AllowMonthOnly: true,
			AllowYearOnly:  true,
		},
		Event: EventConfig{
			EventType: "event",
			Status:    "scheduled",
		},
		PDF: PDFConfig{
			JoinLines:           true,
			NormalizeWhitespace: true,
		},
		Publish: PublishConfig{MirrorSourceSubdir: true},
	}
}

func (c *SourceConfig) Validate() error {
	if strings.TrimSpace(c.Source.Key) == "" {
		return fmt.Errorf("source.key must not be empty")
	}
	if strings.TrimSpace(c.Source.Name) == "" {
		return fmt.Errorf("source.name must not be empty")
	}

	switch c.Fetch.Mode {
	case FetchModeHTTP:
		if c.Fetch.BaseURL == "" {
			return fmt.Errorf("fetch.base_url is required for http mode")
		}
	case FetchModeFile:
		if c.Fetch.FilePath == "" {
			return fmt.Errorf("fetch.file_path is required for file mode")
		}
	case FetchModeInline:
		if c.Fetch.InlineData == "" {
			return fmt.Errorf("fetch.inline_data is required for inline mode")
		}
	default:
		return fmt.Errorf("unknown fetch.mode %q", c.Fetch.Mode)
	}

	switch c.Extract.Format {
	case ExtractHTML, ExtractJSON, ExtractPDFText, ExtractText:
	default:
		return fmt.Errorf("unknown extract.format %q", c.Extract.Format)
	}

	if c.Extract.Format == ExtractHTML && len(c.Map) == 0 &&
		!(c.Custom.Enabled && c.Custom.Parser != "") {
		return fmt.Errorf("map section must not be empty for html extraction")
	}

	return nil
}

// SanitizedSourceDir is the directory and filename prefix derived from the
// source key: non-alphanumerics become dashes, surrounding dashes trimmed.
func (c *SourceConfig) SanitizedSourceDir() string {
	return SanitizeForPath(c.Source.Key)
}

func SanitizeForPath(value string) string {
	var b strings.Builder
	for _, r := range value {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('-')
		}
	}
	return strings.Trim(b.String(), "-")
}

// LoadFile parses and validates a single source config file.
func LoadFile(path string) (LoadedSource, error) {
	cfg := defaultSourceConfig()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return LoadedSource{}, fmt.Errorf("failed to parse toml in %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return LoadedSource{}, fmt.Errorf("invalid source config %s: %w", path, err)
	}
	return LoadedSource{Path: path, Config: cfg}, nil
}

// ListFiles returns every *.toml file under configDir, sorted by path.
func ListFiles(configDir string) ([]string, error) {
	if _, err := os.Stat(configDir); err != nil {
		return nil, fmt.Errorf("config dir does not exist: %s", configDir)
	}

	var files []string
	err := filepath.WalkDir(configDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(path, ".toml") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// LoadDir parses every *.toml file under configDir and returns the
// sources sorted by source key. Any invalid file fails the whole load.
func LoadDir(configDir string) ([]LoadedSource, error) {
	files, err := ListFiles(configDir)
	if err != nil {
		return nil, err
	}

	loaded := make([]LoadedSource, 0, len(files))
	for _, path := range files {
		source, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		loaded = append(loaded, source)
	}

	sort.Slice(loaded, func(i, j int) bool {
		return loaded[i].Config.Source.Key < loaded[j].Config.Source.Key
	})
	return loaded, nil
}

// ResolvePath resolves a possibly-relative path against the directory of
// the config file that referenced it.
func ResolvePath(configPath, maybeRelative string) string {
	if filepath.IsAbs(maybeRelative) {
		return maybeRelative
	}
	return filepath.Join(filepath.Dir(configPath), maybeRelative)
}
