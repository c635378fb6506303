package extract

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/rs/zerolog"

	"github.com/sguzman/rics/internal/config"
)

// mappedRecord is the intermediate key→value extraction from one document
// node, before it becomes a candidate event.
type mappedRecord struct {
	Fields    map[string]string
	SourceURL string
	BaseURL   string
	RawText   string
}

// mappingContext is the tagged extraction context a field rule evaluates
// against: an HTML record node (plus the whole document for the
// document-wide selector fallback), a JSON value, or a plain text chunk.
type mappingContext struct {
	htmlNode *goquery.Selection
	htmlDoc  *goquery.Document
	jsonNode any
	isJSON   bool
}

func htmlContext(node *goquery.Selection, doc *goquery.Document) mappingContext {
	return mappingContext{htmlNode: node, htmlDoc: doc}
}

func jsonContext(node any) mappingContext {
	return mappingContext{jsonNode: node, isJSON: true}
}

func textContext() mappingContext {
	return mappingContext{}
}

// evaluator carries the per-source compiled-pattern caches and the logger
// used for missing-field diagnostics.
type evaluator struct {
	logger  zerolog.Logger
	regexes map[string]*regexp.Regexp
	queries map[string]*jsonQuery
}

func newEvaluator(logger zerolog.Logger) *evaluator {
	return &evaluator{
		logger:  logger,
		regexes: make(map[string]*regexp.Regexp),
		queries: make(map[string]*jsonQuery),
	}
}

func (e *evaluator) compileRegex(pattern string) (*regexp.Regexp, error) {
	if re, ok := e.regexes[pattern]; ok {
		return re, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex pattern %s: %w", pattern, err)
	}
	e.regexes[pattern] = re
	return re, nil
}

// evaluateFields resolves the whole field map for one record, iterating
// targets in sorted name order so that field: backreferences see exactly
// the targets that sort before them.
func (e *evaluator) evaluateFields(
	sourceKey string,
	rules map[string]config.FieldRule,
	ctx mappingContext,
	rawText, baseURL, sourceURL string,
) (map[string]string, error) {
	fields := make(map[string]string, len(rules))
	for _, name := range sortedKeys(rules) {
		rule := rules[name]
		value, ok, err := e.evaluateFieldRule(name, rule, ctx, fields, rawText, baseURL, sourceURL)
		if err != nil {
			return nil, err
		}
		if ok {
			fields[name] = value
		} else if !rule.Optional {
			e.logger.Debug().
				Str("source", sourceKey).
				Str("field", name).
				Msg("missing non-optional field in record")
		}
	}
	return fields, nil
}

func (e *evaluator) evaluateFieldRule(
	fieldName string,
	rule config.FieldRule,
	ctx mappingContext,
	existing map[string]string,
	rawText, baseURL, sourceURL string,
) (string, bool, error) {
	var value string
	var present bool

	if rule.Const != "" {
		value, present = rule.Const, true
	} else {
		expr := rule.From
		if expr == "" {
			expr = fieldName
		}
		var err error
		value, present, err = e.evaluateExpression(expr, ctx, existing, rawText, sourceURL)
		if err != nil {
			return "", false, err
		}
	}

	if rule.Regex != "" && present {
		capture := rule.Capture
		if capture == 0 {
			capture = 1
		}
		var err error
		value, present, err = e.extractWithRegex(value, rule.Regex, capture)
		if err != nil {
			return "", false, err
		}
	}

	if rule.Trim && present {
		value = strings.TrimSpace(value)
	}

	if rule.Absolutize && present {
		value = absolutizeURL(baseURL, value)
	}

	if present && value == "" {
		return "", false, nil
	}
	return value, present, nil
}

func (e *evaluator) evaluateExpression(
	expr string,
	ctx mappingContext,
	existing map[string]string,
	rawText, sourceURL string,
) (string, bool, error) {
	if key, ok := strings.CutPrefix(expr, "field:"); ok {
		value, present := existing[key]
		return value, present, nil
	}
	if expr == "source_url" {
		return sourceURL, true, nil
	}
	if pattern, ok := strings.CutPrefix(expr, "regex:"); ok {
		return e.extractWithRegex(rawText, pattern, 1)
	}

	switch {
	case ctx.htmlNode != nil:
		if css, ok := strings.CutPrefix(expr, "css:"); ok {
			value, present := extractCSSValue(ctx.htmlNode, ctx.htmlDoc, css)
			return value, present, nil
		}
	case ctx.isJSON:
		if path, ok := strings.CutPrefix(expr, "json:"); ok {
			selected, present := e.selectJSONValue(ctx.jsonNode, path)
			if !present {
				return "", false, nil
			}
			value, ok := jsonValueToString(selected)
			return value, ok, nil
		}
		// A bare identifier addresses an object key of the record node.
		if obj, ok := ctx.jsonNode.(map[string]any); ok {
			if raw, present := obj[expr]; present {
				if value, ok := jsonValueToString(raw); ok {
					return value, true, nil
				}
				return "", false, nil
			}
		}
	}

	value, present := existing[expr]
	return value, present, nil
}

func (e *evaluator) extractWithRegex(input, pattern string, capture int) (string, bool, error) {
	re, err := e.compileRegex(pattern)
	if err != nil {
		return "", false, err
	}
	idx := re.FindStringSubmatchIndex(input)
	if idx == nil || capture < 0 || 2*capture+1 >= len(idx) || idx[2*capture] < 0 {
		return "", false, nil
	}
	return strings.TrimSpace(input[idx[2*capture]:idx[2*capture+1]]), true, nil
}

// extractCSSValue resolves a css:<selector>[@attr] expression: first match
// within the record node, falling back to the first match document-wide.
func extractCSSValue(node *goquery.Selection, doc *goquery.Document, expression string) (string, bool) {
	selectorText, attr := splitSelectorAttr(expression)
	matcher, err := cascadia.Compile(selectorText)
	if err != nil {
		return "", false
	}

	sel := node.FindMatcher(matcher)
	if sel.Length() == 0 {
		sel = doc.FindMatcher(matcher)
	}
	if sel.Length() == 0 {
		return "", false
	}
	return elementAttrOrText(sel.Eq(0), attr), true
}

func splitSelectorAttr(expression string) (selector, attr string) {
	if at := strings.LastIndex(expression, "@"); at >= 0 {
		candidate := expression[at+1:]
		if candidate != "" && !strings.Contains(candidate, " ") {
			return expression[:at], candidate
		}
	}
	return expression, ""
}

func elementAttrOrText(sel *goquery.Selection, attr string) string {
	if attr != "" {
		return sel.AttrOr(attr, "")
	}
	return collapseWhitespace(sel.Text())
}

func collapseWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// absolutizeURL resolves a relative URL against the document base; already
// absolute values and unresolvable inputs pass through unchanged.
func absolutizeURL(baseURL, value string) string {
	if strings.HasPrefix(value, "http://") || strings.HasPrefix(value, "https://") {
		return value
	}
	base, err := url.Parse(baseURL)
	if err != nil || baseURL == "" {
		return value
	}
	ref, err := url.Parse(value)
	if err != nil {
		return value
	}
	return base.ResolveReference(ref).String()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
