package extract

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/sguzman/rics/internal/config"
	"github.com/sguzman/rics/internal/fetch"
)

var horizontalWSRe = regexp.MustCompile(`[ \t]+`)

func (e *evaluator) parseTextDocument(cfg *config.SourceConfig, doc fetch.Document, fromPDF bool) ([]mappedRecord, error) {
	var rawText string
	if fromPDF {
		text, err := pdfPlainText(doc.Body, cfg.PDF.PageRange)
		if err != nil {
			e.logger.Warn().
				Str("source", cfg.Source.Key).
				Err(err).
				Msg("pdf text extraction failed; falling back to utf8 decode")
			text = string(doc.Body)
		}
		rawText = text
	} else {
		rawText = string(doc.Body)
	}

	processed := normalizeText(rawText, cfg.PDF.NormalizeWhitespace, cfg.PDF.JoinLines)
	chunks, err := e.splitTextRecords(cfg, processed)
	if err != nil {
		return nil, err
	}

	var out []mappedRecord
	for _, chunk := range chunks {
		if strings.TrimSpace(chunk) == "" {
			continue
		}

		var fields map[string]string
		if len(cfg.Map) == 0 {
			fields = make(map[string]string)
			if pipe, ok := parsePipeRecord(chunk); ok {
				fields = pipe
			}
		} else {
			fields, err = e.evaluateFields(cfg.Source.Key, cfg.Map, textContext(), chunk, "", doc.SourceURL)
			if err != nil {
				return nil, err
			}
		}

		for _, name := range sortedKeys(cfg.PDF.Fields) {
			if _, claimed := fields[name]; claimed {
				continue
			}
			rule := cfg.PDF.Fields[name]
			capture := rule.Capture
			if capture == 0 {
				capture = 1
			}
			value, ok, err := e.extractWithRegex(chunk, rule.Pattern, capture)
			if err != nil {
				return nil, err
			}
			if ok {
				fields[name] = value
			} else if !rule.Optional {
				e.logger.Debug().
					Str("source", cfg.Source.Key).
					Str("field", name).
					Msg("missing non-optional pdf field")
			}
		}

		out = append(out, mappedRecord{
			Fields:    fields,
			SourceURL: doc.SourceURL,
			RawText:   chunk,
		})
	}

	return out, nil
}

func normalizeText(text string, normalizeWS, joinLines bool) string {
	working := strings.ReplaceAll(text, "\r\n", "\n")
	if normalizeWS {
		working = horizontalWSRe.ReplaceAllString(working, " ")
	}
	if joinLines {
		lines := strings.Split(working, "\n")
		for i, line := range lines {
			lines[i] = strings.TrimSpace(line)
		}
		working = strings.Join(lines, "\n")
	}
	return working
}

// splitTextRecords chunks the processed text into record strings, trying
// the configured record_regex, then pdf.record_split start anchors, then
// blank-line blocks, then single lines.
func (e *evaluator) splitTextRecords(cfg *config.SourceConfig, text string) ([]string, error) {
	if cfg.Extract.RecordRegex != "" {
		re, err := e.compileRegex(cfg.Extract.RecordRegex)
		if err != nil {
			return nil, fmt.Errorf("invalid record_regex: %w", err)
		}
		var rows []string
		for _, idx := range re.FindAllStringSubmatchIndex(text, -1) {
			start, end := idx[0], idx[1]
			if len(idx) > 2 && idx[2] >= 0 {
				start, end = idx[2], idx[3]
			}
			rows = append(rows, strings.TrimSpace(text[start:end]))
		}
		if len(rows) > 0 {
			return rows, nil
		}
	}

	if len(cfg.PDF.RecordSplit) > 0 {
		split := cfg.PDF.RecordSplit[0]
		if split.Strategy == "" || strings.EqualFold(split.Strategy, "regex") {
			re, err := e.compileRegex(split.Pattern)
			if err != nil {
				return nil, fmt.Errorf("invalid pdf.record_split pattern %s: %w", split.Pattern, err)
			}
			starts := re.FindAllStringIndex(text, -1)
			if len(starts) > 1 {
				rows := make([]string, 0, len(starts))
				for i, loc := range starts {
					end := len(text)
					if i+1 < len(starts) {
						end = starts[i+1][0]
					}
					rows = append(rows, strings.TrimSpace(text[loc[0]:end]))
				}
				return rows, nil
			}
		}
	}

	var blocks []string
	for _, block := range strings.Split(text, "\n\n") {
		if trimmed := strings.TrimSpace(block); trimmed != "" {
			blocks = append(blocks, trimmed)
		}
	}
	if len(blocks) > 1 {
		return blocks, nil
	}

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	return lines, nil
}

// parsePipeRecord reads a "date | title | url?" line.
func parsePipeRecord(line string) (map[string]string, bool) {
	var parts []string
	for _, part := range strings.Split(line, "|") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	if len(parts) < 2 {
		return nil, false
	}

	fields := map[string]string{
		"date":  parts[0],
		"title": parts[1],
	}
	if len(parts) > 2 {
		fields["url"] = parts[2]
	}
	return fields, true
}

// pdfPlainText extracts text from a PDF body, optionally limited to a
// 1-based inclusive page range like "2" or "3-5". The pdf package panics
// on some malformed inputs; that surfaces as an error so the caller can
// fall back to a raw decode.
func pdfPlainText(body []byte, pageRange string) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf parse panic: %v", r)
		}
	}()
	return pdfPlainTextInner(body, pageRange)
}

func pdfPlainTextInner(body []byte, pageRange string) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return "", err
	}

	first, last, limited, err := parsePageRange(pageRange, reader.NumPage())
	if err != nil {
		return "", err
	}

	if !limited {
		r, err := reader.GetPlainText()
		if err != nil {
			return "", err
		}
		text, err := io.ReadAll(r)
		if err != nil {
			return "", err
		}
		return string(text), nil
	}

	var b strings.Builder
	for i := first; i <= last; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", err
		}
		b.WriteString(text)
		b.WriteString("\n")
	}
	return b.String(), nil
}

func parsePageRange(pageRange string, numPages int) (first, last int, limited bool, err error) {
	pageRange = strings.TrimSpace(pageRange)
	if pageRange == "" {
		return 0, 0, false, nil
	}

	firstText, lastText, isRange := strings.Cut(pageRange, "-")
	first, err = strconv.Atoi(strings.TrimSpace(firstText))
	if err != nil {
		return 0, 0, false, fmt.Errorf("invalid pdf.page_range %q", pageRange)
	}
	last = first
	if isRange {
		last, err = strconv.Atoi(strings.TrimSpace(lastText))
		if err != nil {
			return 0, 0, false, fmt.Errorf("invalid pdf.page_range %q", pageRange)
		}
	}

	if first < 1 {
		first = 1
	}
	if last > numPages {
		last = numPages
	}
	return first, last, true, nil
}
