package extract

import (
	"bytes"
	"fmt"
	"net/url"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"

	"github.com/sguzman/rics/internal/config"
	"github.com/sguzman/rics/internal/fetch"
)

func (e *evaluator) parseHTMLDocument(cfg *config.SourceConfig, doc fetch.Document) ([]mappedRecord, error) {
	parsed, err := goquery.NewDocumentFromReader(bytes.NewReader(doc.Body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse html from %s: %w", doc.SourceURL, err)
	}

	baseURL := documentBaseURL(doc.SourceURL, cfg.Fetch.BaseURL)

	var nodes *goquery.Selection
	if cfg.Extract.RootSelector != "" {
		matcher, err := cascadia.Compile(cfg.Extract.RootSelector)
		if err != nil {
			return nil, fmt.Errorf("invalid root_selector %s: %w", cfg.Extract.RootSelector, err)
		}
		nodes = parsed.FindMatcher(matcher)
	} else {
		nodes = parsed.Find("body")
	}

	if nodes.Length() == 0 {
		e.logger.Warn().
			Str("source", cfg.Source.Key).
			Str("url", doc.SourceURL).
			Msg("no html nodes matched; skipping document")
		return nil, nil
	}

	var out []mappedRecord
	for i := 0; i < nodes.Length(); i++ {
		node := nodes.Eq(i)
		rawText := collapseWhitespace(node.Text())

		var fields map[string]string
		if len(cfg.Map) == 0 {
			fields = fallbackHTMLFields(node, rawText, baseURL)
		} else {
			fields, err = e.evaluateFields(cfg.Source.Key, cfg.Map, htmlContext(node, parsed), rawText, baseURL, doc.SourceURL)
			if err != nil {
				return nil, err
			}
		}

		out = append(out, mappedRecord{
			Fields:    fields,
			SourceURL: doc.SourceURL,
			BaseURL:   baseURL,
			RawText:   rawText,
		})
	}

	return out, nil
}

// fallbackHTMLFields applies the mapless defaults: first heading or anchor
// text as title, first anchor href as url, first date-shaped string as
// date.
func fallbackHTMLFields(node *goquery.Selection, rawText, baseURL string) map[string]string {
	fields := make(map[string]string)
	for _, selector := range []string{"h1", "h2", "h3", "a"} {
		text := collapseWhitespace(node.Find(selector).Eq(0).Text())
		if text != "" {
			fields["title"] = text
			break
		}
	}
	if href, ok := node.Find("a").Eq(0).Attr("href"); ok {
		fields["url"] = absolutizeURL(baseURL, href)
	}
	if date, ok := detectDateInText(rawText); ok {
		fields["date"] = date
	}
	return fields
}

// documentBaseURL derives the base for relative-link resolution from the
// fetched URL, with query and fragment stripped. The configured base_url
// is used only when the fetched URL does not parse; inline:// and file://
// document URLs parse, so they serve as their own base.
func documentBaseURL(sourceURL, configuredBase string) string {
	u, err := url.Parse(sourceURL)
	if err != nil {
		return configuredBase
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}
