package extract

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/itchyny/gojq"
)

// jsonQuery is a compiled jq program plus the fallback behavior of the
// path dialect it was built from: $.-style paths fall back to the root
// node set when nothing matches, pointer paths do not.
type jsonQuery struct {
	query          *gojq.Query
	fallbackToRoot bool
}

// selectJSONNodes resolves a root_jsonpath-style expression to the record
// nodes. Supported dialects: empty/"$" (the root, arrays exploded),
// "$.a.b[*]" / "$.a[3]" walks, and "/a/b" JSON pointers.
func (e *evaluator) selectJSONNodes(root any, path string) []any {
	path = strings.TrimSpace(path)
	if path == "" || path == "$" {
		if items, ok := root.([]any); ok {
			return items
		}
		return []any{root}
	}

	q, err := e.compileJSONQuery(path)
	if err != nil || q == nil {
		return []any{root}
	}

	var nodes []any
	iter := q.query.Run(root)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if _, isErr := v.(error); isErr {
			continue
		}
		if v == nil {
			continue
		}
		nodes = append(nodes, v)
	}

	if len(nodes) == 0 {
		if q.fallbackToRoot {
			return []any{root}
		}
		return nil
	}

	if strings.HasPrefix(path, "/") && len(nodes) == 1 {
		// A pointer that lands on an array yields the array's elements.
		if items, ok := nodes[0].([]any); ok {
			return items
		}
	}

	return nodes
}

func (e *evaluator) selectJSONValue(node any, path string) (any, bool) {
	nodes := e.selectJSONNodes(node, path)
	switch len(nodes) {
	case 0:
		return nil, false
	case 1:
		return nodes[0], true
	default:
		return nodes, true
	}
}

func (e *evaluator) compileJSONQuery(path string) (*jsonQuery, error) {
	if q, ok := e.queries[path]; ok {
		return q, nil
	}

	source, fallback, ok := translateJSONPath(path)
	if !ok {
		e.queries[path] = nil
		return nil, nil
	}

	parsed, err := gojq.Parse(source)
	if err != nil {
		return nil, fmt.Errorf("invalid json path %s: %w", path, err)
	}
	q := &jsonQuery{query: parsed, fallbackToRoot: fallback}
	e.queries[path] = q
	return q, nil
}

// translateJSONPath renders the jsonpath-lite dialect as a jq program.
// Returns ok=false when the expression is in neither dialect, in which
// case the caller treats the whole root as the single node.
func translateJSONPath(path string) (source string, fallbackToRoot, ok bool) {
	if pointer, found := strings.CutPrefix(path, "/"); found {
		var steps []string
		for _, segment := range strings.Split(pointer, "/") {
			segment = strings.ReplaceAll(segment, "~1", "/")
			segment = strings.ReplaceAll(segment, "~0", "~")
			if index, err := strconv.Atoi(segment); err == nil {
				steps = append(steps, fmt.Sprintf(".[%d]?", index))
			} else {
				steps = append(steps, fmt.Sprintf(".[%s]?", strconv.Quote(segment)))
			}
		}
		return strings.Join(steps, " | "), false, true
	}

	stripped, found := strings.CutPrefix(path, "$.")
	if !found {
		return "", false, false
	}

	var steps []string
	for _, part := range strings.Split(stripped, ".") {
		if key, found := strings.CutSuffix(part, "[*]"); found {
			steps = append(steps, fmt.Sprintf(".[%s][]?", strconv.Quote(key)))
			continue
		}
		if key, indexPart, found := strings.Cut(part, "["); found {
			if indexText, closed := strings.CutSuffix(indexPart, "]"); closed {
				if index, err := strconv.Atoi(indexText); err == nil {
					steps = append(steps, fmt.Sprintf(".[%s][%d]?", strconv.Quote(key), index))
					continue
				}
			}
		}
		steps = append(steps, fmt.Sprintf(".[%s]?", strconv.Quote(part)))
	}
	return strings.Join(steps, " | "), true, true
}

// decodeJSONDocument parses a fetched body into the generic value tree the
// query machinery operates on.
func decodeJSONDocument(body []byte, sourceURL string) (any, error) {
	var root any
	if err := json.Unmarshal(body, &root); err != nil {
		return nil, fmt.Errorf("failed to parse json from %s: %w", sourceURL, err)
	}
	return root, nil
}

// compactJSON renders a node back to compact JSON for regex-based rules
// and diagnostics.
func compactJSON(node any) string {
	raw, err := json.Marshal(node)
	if err != nil {
		return ""
	}
	return string(raw)
}

// jsonValueToString renders a JSON leaf for field consumption. Nulls are
// absent; compound values render as compact JSON.
func jsonValueToString(value any) (string, bool) {
	switch v := value.(type) {
	case nil:
		return "", false
	case string:
		return v, true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(v), true
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return "", false
		}
		return string(raw), true
	}
}
