package fetch

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/sguzman/rics/internal/config"
)

// Document is one fetched payload: a single HTTP response body, file, or
// inline blob, tagged with the URL it notionally came from.
type Document struct {
	SourceURL string
	Body      []byte
	PageIndex int
}

const defaultUserAgent = "rics/0.1 (+https://example.invalid)"

// Documents fetches every document for a source according to its fetch
// mode and pagination settings.
func Documents(logger zerolog.Logger, source config.LoadedSource) ([]Document, error) {
	switch source.Config.Fetch.Mode {
	case config.FetchModeHTTP:
		return httpDocuments(logger, source)
	case config.FetchModeFile:
		return fileDocument(logger, source)
	case config.FetchModeInline:
		return inlineDocument(logger, source)
	default:
		return nil, fmt.Errorf("unknown fetch mode %q", source.Config.Fetch.Mode)
	}
}

// NewClient builds a resty client with the source's timeout, retry and
// header settings. Retries use a fixed backoff and also fire on non-2xx
// responses.
func NewClient(fetchCfg config.FetchConfig) *resty.Client {
	attempts := int(fetchCfg.RetryAttempts)
	if attempts < 1 {
		attempts = 1
	}
	backoff := time.Duration(fetchCfg.RetryBackoffMs) * time.Millisecond

	client := resty.New().
		SetTimeout(time.Duration(fetchCfg.TimeoutSecs) * time.Second).
		SetRetryCount(attempts - 1).
		SetRetryWaitTime(backoff).
		SetRetryMaxWaitTime(backoff).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			return err != nil || resp.IsError()
		})

	for name, value := range fetchCfg.Headers {
		client.SetHeader(name, value)
	}
	userAgent := fetchCfg.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	client.SetHeader("User-Agent", userAgent)

	return client
}

func httpDocuments(logger zerolog.Logger, source config.LoadedSource) ([]Document, error) {
	cfg := source.Config
	client := NewClient(cfg.Fetch)

	if cfg.Pagination.Enabled && cfg.Pagination.Strategy == config.PaginationNextLink {
		logger.Warn().
			Str("source", cfg.Source.Key).
			Msg("next_link pagination is declared but not implemented; using query-param style fallback")
	}

	if !cfg.Pagination.Enabled {
		body, err := fetchOnce(client, cfg.Fetch.Method, cfg.Fetch.BaseURL)
		if err != nil {
			return nil, err
		}
		return []Document{{SourceURL: cfg.Fetch.BaseURL, Body: body, PageIndex: 0}}, nil
	}

	var docs []Document
	start := cfg.Pagination.StartPage
	for index := 0; index < cfg.Pagination.MaxPages; index++ {
		page := start + index
		pageURL, err := buildPagedURL(cfg.Fetch.BaseURL, cfg.Pagination.PageParam, fmt.Sprintf("%d", page))
		if err != nil {
			return nil, err
		}
		body, err := fetchOnce(client, cfg.Fetch.Method, pageURL)
		if err != nil {
			return nil, err
		}

		if len(body) == 0 && cfg.Pagination.StopWhenNoResults {
			logger.Info().
				Str("source", cfg.Source.Key).
				Int("page", page).
				Msg("stopping pagination because response is empty")
			break
		}

		logger.Info().
			Str("source", cfg.Source.Key).
			Int("page", page).
			Int("bytes", len(body)).
			Str("url", pageURL).
			Msg("fetched page")

		docs = append(docs, Document{SourceURL: pageURL, Body: body, PageIndex: index})
	}

	return docs, nil
}

func fetchOnce(client *resty.Client, method, rawURL string) ([]byte, error) {
	method = strings.ToUpper(method)
	if method != "GET" && method != "POST" {
		return nil, fmt.Errorf("unsupported fetch method %s", method)
	}

	resp, err := client.R().Execute(method, rawURL)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", rawURL, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("request to %s failed with status %s", rawURL, resp.Status())
	}
	return resp.Body(), nil
}

func fileDocument(logger zerolog.Logger, source config.LoadedSource) ([]Document, error) {
	resolved := config.ResolvePath(source.Path, source.Config.Fetch.FilePath)
	body, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("failed to read file source %s: %w", resolved, err)
	}

	logger.Info().
		Str("source", source.Config.Source.Key).
		Str("file", resolved).
		Int("bytes", len(body)).
		Msg("loaded file source")

	return []Document{{SourceURL: "file://" + resolved, Body: body, PageIndex: 0}}, nil
}

func inlineDocument(logger zerolog.Logger, source config.LoadedSource) ([]Document, error) {
	inline := source.Config.Fetch.InlineData

	logger.Debug().
		Str("source", source.Config.Source.Key).
		Int("bytes", len(inline)).
		Msg("loaded inline source")

	return []Document{{
		SourceURL: "inline://" + source.Config.Source.Key,
		Body:      []byte(inline),
		PageIndex: 0,
	}}, nil
}

func buildPagedURL(baseURL, param, page string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base_url %s: %w", baseURL, err)
	}
	query := u.Query()
	query.Set(param, page)
	u.RawQuery = query.Encode()
	return u.String(), nil
}
