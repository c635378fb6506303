package extract

import (
	"encoding/json"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/sguzman/rics/internal/config"
	"github.com/sguzman/rics/internal/event"
	"github.com/sguzman/rics/internal/fetch"
)

const oecdSearchEndpoint = "https://api.oecd.org/webcms/search/faceted-search"

// oecdPublicationsParser walks the OECD faceted-search API and keeps
// dated publication entries for the current or next year.
type oecdPublicationsParser struct{}

func (oecdPublicationsParser) Key() string { return "oecd_publications_v1" }

func (p oecdPublicationsParser) Parse(logger zerolog.Logger, source config.LoadedSource, docs []fetch.Document) ([]event.Candidate, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	cfg := &source.Config

	firstDocURL, err := url.Parse(docs[0].SourceURL)
	if err != nil {
		return nil, fmt.Errorf("invalid source url %s: %w", docs[0].SourceURL, err)
	}
	queryPairs := make(map[string]string)
	for key, values := range firstDocURL.Query() {
		if len(values) > 0 {
			queryPairs[key] = values[0]
		}
	}
	facetTags := queryPairs["facetTags"]
	if facetTags == "" {
		facetTags = "oecd-languages:en,oecd-search-config-pillars:publications"
	}
	queryPairs["facetTags"] = ensureFacetTags(facetTags)

	userAgent := cfg.Fetch.UserAgent
	if userAgent == "" {
		userAgent = "rics/0.1 (+https://example.invalid)"
	}
	client := resty.New().SetHeader("User-Agent", userAgent)

	pageSize := 50
	if raw, ok := cfg.Fetch.Headers["x-oecd-page-size"]; ok {
		if parsed, err := strconv.Atoi(raw); err == nil {
			pageSize = parsed
		}
	}

	currentYear := time.Now().UTC().Year()
	confidence := 0.95
	seenURLs := make(map[string]struct{})
	var candidates []event.Candidate

	const maxPages = 200
	total := int(^uint(0) >> 1)

	for page := 0; page < maxPages && page*pageSize < total; page++ {
		params := make(map[string]string, len(queryPairs)+4)
		for k, v := range queryPairs {
			params[k] = v
		}
		params["siteName"] = "oecd"
		params["page"] = strconv.Itoa(page)
		params["pageSize"] = strconv.Itoa(pageSize)
		if _, ok := params["orderBy"]; !ok {
			params["orderBy"] = "mostRecent"
		}
		if _, ok := params["minPublicationYear"]; !ok {
			params["minPublicationYear"] = strconv.Itoa(currentYear)
		}
		if _, ok := params["maxPublicationYear"]; !ok {
			params["maxPublicationYear"] = strconv.Itoa(currentYear)
		}

		resp, err := client.R().SetQueryParams(params).Get(oecdSearchEndpoint)
		if err != nil {
			return nil, fmt.Errorf("failed to query OECD API page %d: %w", page, err)
		}
		if resp.IsError() {
			return nil, fmt.Errorf("OECD API returned %s for page %d", resp.Status(), page)
		}

		var payload map[string]any
		if err := json.Unmarshal(resp.Body(), &payload); err != nil {
			return nil, fmt.Errorf("failed to decode OECD API JSON: %w", err)
		}

		total = 0
		if raw, ok := payload["total"].(float64); ok {
			total = int(raw)
		}

		results, ok := payload["results"].([]any)
		if !ok {
			break
		}

		for _, raw := range results {
			result, ok := raw.(map[string]any)
			if !ok {
				continue
			}

			tagIDs := resultTagIDs(result)
			if !isPublication(tagIDs) {
				continue
			}

			title := strings.TrimSpace(stringField(result, "title"))
			if title == "" {
				continue
			}

			pubURL := stringField(result, "url")
			if pubURL != "" {
				pubURL = absolutizeURL("https://www.oecd.org", pubURL)
			}
			if pubURL == "" {
				continue
			}
			if _, seen := seenURLs[pubURL]; seen {
				continue
			}
			seenURLs[pubURL] = struct{}{}

			dateText := stringField(result, "publicationDateTime")
			if dateText == "" {
				dateText = stringField(result, "startDateTime")
			}
			if dateText == "" {
				dateText = stringField(result, "endDateTime")
			}
			if dateText == "" {
				continue
			}

			spec := ParseEventTime(dateText, "", cfg.Date, cfg.Source.Timezone)
			if !matchesYearOrNext(spec, currentYear) {
				continue
			}

			description := strings.TrimSpace(stringField(result, "description"))

			categories := append([]string(nil), cfg.Event.Categories...)
			if !slices.Contains(categories, "publishing") {
				categories = append(categories, "publishing")
			}

			candidates = append(candidates, event.Candidate{
				SourceKey:     cfg.Source.Key,
				SourceName:    cfg.Source.Name,
				SourceEventID: pubURL,
				SourceURL:     pubURL,
				Title:         title,
				Description:   description,
				Time:          spec,
				Timezone:      cfg.Source.Timezone,
				Status:        cfg.Event.Status,
				EventType:     cfg.Event.EventType,
				Subtype:       cfg.Event.Subtype,
				Categories:    categories,
				Jurisdiction:  cfg.Source.Jurisdiction,
				Country:       cfg.Source.DefaultCountry,
				Importance:    cfg.Event.Importance,
				Confidence:    &confidence,
				Metadata: map[string]string{
					"custom_parser": p.Key(),
					"api_total":     strconv.Itoa(total),
					"api_tags":      strings.Join(tagIDs, ","),
				},
			})
		}
	}

	logger.Info().
		Str("source", cfg.Source.Key).
		Int("events", len(candidates)).
		Msg("oecd parser extracted dated publication events")

	return candidates, nil
}

func resultTagIDs(result map[string]any) []string {
	raw, ok := result["tags"].([]any)
	if !ok {
		return nil
	}
	var ids []string
	for _, item := range raw {
		if tag, ok := item.(map[string]any); ok {
			if id, ok := tag["id"].(string); ok {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

func isPublication(tagIDs []string) bool {
	for _, id := range tagIDs {
		if strings.HasPrefix(id, "oecd-content-types:publications/") {
			return true
		}
	}
	return false
}

func stringField(obj map[string]any, key string) string {
	value, _ := obj[key].(string)
	return value
}

func ensureFacetTags(tags string) string {
	var values []string
	for _, v := range strings.Split(tags, ",") {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	if !slices.Contains(values, "oecd-languages:en") {
		values = append(values, "oecd-languages:en")
	}
	if !slices.Contains(values, "oecd-search-config-pillars:publications") {
		values = append(values, "oecd-search-config-pillars:publications")
	}
	return strings.Join(values, ",")
}

func matchesYearOrNext(spec event.TimeSpec, currentYear int) bool {
	year, ok := spec.YearBucket()
	return ok && (year == currentYear || year == currentYear+1)
}

