package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const minimalTOML = `
[source]
key = "test.minimal"
name = "Minimal Source"
domain = "economics"

[fetch]
mode = "inline"
inline_data = "2026-05-01 | A"

[extract]
format = "text"
`

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFileAppliesDefaults(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "minimal.toml", minimalTOML)
	source, err := LoadFile(path)
	require.NoError(t, err)

	cfg := source.Config
	require.True(t, cfg.Source.Enabled)
	require.Equal(t, "GET", cfg.Fetch.Method)
	require.EqualValues(t, 20, cfg.Fetch.TimeoutSecs)
	require.EqualValues(t, 2, cfg.Fetch.RetryAttempts)
	require.EqualValues(t, 500, cfg.Fetch.RetryBackoffMs)
	require.Equal(t, PaginationQueryParam, cfg.Pagination.Strategy)
	require.Equal(t, "page", cfg.Pagination.PageParam)
	require.Equal(t, 1, cfg.Pagination.MaxPages)
	require.True(t, cfg.Pagination.StopWhenNoResults)
	require.Equal(t, "date", cfg.Date.Primary)
	require.Equal(t, DefaultDateFormats(), cfg.Date.Formats)
	require.True(t, cfg.Date.AllowMonthOnly)
	require.True(t, cfg.Date.AllowYearOnly)
	require.Equal(t, "event", cfg.Event.EventType)
	require.Equal(t, "scheduled", cfg.Event.Status)
	require.True(t, cfg.PDF.JoinLines)
	require.True(t, cfg.PDF.NormalizeWhitespace)
	require.True(t, cfg.Publish.MirrorSourceSubdir)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	content := minimalTOML + `
[date]
formats = ["2006-01-02"]
allow_month_only = false

[pagination]
enabled = true
strategy = "next_link"
max_pages = 5
stop_when_no_results = false
`
	path := writeConfig(t, t.TempDir(), "override.toml", content)
	source, err := LoadFile(path)
	require.NoError(t, err)

	cfg := source.Config
	require.Equal(t, []string{"2006-01-02"}, cfg.Date.Formats)
	require.False(t, cfg.Date.AllowMonthOnly)
	require.True(t, cfg.Date.AllowYearOnly)
	require.Equal(t, PaginationNextLink, cfg.Pagination.Strategy)
	require.Equal(t, 5, cfg.Pagination.MaxPages)
	require.False(t, cfg.Pagination.StopWhenNoResults)
}

func TestValidateRejectsMissingKeyFields(t *testing.T) {
	cases := map[string]string{
		"empty key": `
[source]
key = "  "
name = "X"
domain = "d"
[fetch]
mode = "inline"
inline_data = "x"
[extract]
format = "text"
`,
		"missing base_url": `
[source]
key = "k"
name = "X"
domain = "d"
[fetch]
mode = "http"
[extract]
format = "text"
`,
		"missing file_path": `
[source]
key = "k"
name = "X"
domain = "d"
[fetch]
mode = "file"
[extract]
format = "text"
`,
		"html without map or custom parser": `
[source]
key = "k"
name = "X"
domain = "d"
[fetch]
mode = "inline"
inline_data = "x"
[extract]
format = "html"
`,
	}

	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := writeConfig(t, t.TempDir(), "bad.toml", content)
			_, err := LoadFile(path)
			require.Error(t, err)
		})
	}
}

func TestValidateAcceptsHTMLWithCustomParser(t *testing.T) {
	content := `
[source]
key = "k"
name = "X"
domain = "d"
[fetch]
mode = "inline"
inline_data = "x"
[extract]
format = "html"
[custom]
parser = "oecd_publications_v1"
enabled = true
`
	path := writeConfig(t, t.TempDir(), "custom.toml", content)
	_, err := LoadFile(path)
	require.NoError(t, err)
}

func TestLoadFileParsesFieldRules(t *testing.T) {
	content := minimalTOML + `
[map.title]
from = "css:h3"
trim = true

[map.url]
from = "css:a@href"
absolutize = true
optional = true

[map.track]
regex = "id=(\\d+)"
capture = 1
`
	path := writeConfig(t, t.TempDir(), "rules.toml", content)
	source, err := LoadFile(path)
	require.NoError(t, err)

	rules := source.Config.Map
	require.Len(t, rules, 3)
	require.Equal(t, "css:h3", rules["title"].From)
	require.True(t, rules["title"].Trim)
	require.True(t, rules["url"].Absolutize)
	require.True(t, rules["url"].Optional)
	require.Equal(t, 1, rules["track"].Capture)
}

func TestLoadDirSortsBySourceKey(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "02-zeta.toml", `
[source]
key = "zeta.source"
name = "Zeta"
domain = "d"
[fetch]
mode = "inline"
inline_data = "x"
[extract]
format = "text"
`)
	writeConfig(t, dir, "01-alpha.toml", `
[source]
key = "alpha.source"
name = "Alpha"
domain = "d"
[fetch]
mode = "inline"
inline_data = "x"
[extract]
format = "text"
`)

	sources, err := LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, sources, 2)
	require.Equal(t, "alpha.source", sources[0].Config.Source.Key)
	require.Equal(t, "zeta.source", sources[1].Config.Source.Key)
}

func TestLoadDirMissingIsError(t *testing.T) {
	_, err := LoadDir(filepath.Join(t.TempDir(), "absent"))
	require.Error(t, err)
}

func TestSanitizeForPath(t *testing.T) {
	require.Equal(t, "test-oecd-fixture", SanitizeForPath("test.oecd.fixture"))
	require.Equal(t, "a-b", SanitizeForPath(".a b."))
	require.Equal(t, "abc123", SanitizeForPath("abc123"))
}

func TestResolvePath(t *testing.T) {
	require.Equal(t, "/abs/data.html", ResolvePath("/cfg/source.toml", "/abs/data.html"))
	require.Equal(t, filepath.Join("/cfg", "data.html"), ResolvePath("/cfg/source.toml", "data.html"))
	require.Equal(t, filepath.Join("/data", "x.html"), ResolvePath("/cfg/source.toml", "../data/x.html"))
}
