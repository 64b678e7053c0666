// Package search implements the web search tool: SerpAPI when a key is
// configured, the DuckDuckGo HTML endpoint otherwise.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-go-golems/song-vocab/pkg/settings"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

type Client struct {
	httpClient    *http.Client
	serpAPIKey    string
	serpAPIURL    string
	duckDuckGoURL string
	userAgent     string
	numResults    int
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.httpClient = c
	}
}

func NewClient(s *settings.SearchSettings, options ...Option) *Client {
	ret := &Client{
		httpClient:    &http.Client{Timeout: s.HTTPTimeout},
		serpAPIKey:    s.SerpAPIKey,
		serpAPIURL:    s.SerpAPIURL,
		duckDuckGoURL: s.DuckDuckGoURL,
		userAgent:     s.UserAgent,
		numResults:    s.NumResults,
	}
	for _, o := range options {
		o(ret)
	}
	return ret
}

type Input struct {
	Query string `json:"query" jsonschema:"description=Search query, e.g. the song title and artist followed by 歌詞 or lyrics"`
}

// Tool is the search_web_serp tool.
func (c *Client) Tool(ctx context.Context, in Input) ([]Result, error) {
	return c.Search(ctx, in.Query)
}

// Search returns at most numResults ranked results for query.
func (c *Client) Search(ctx context.Context, query string) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("query cannot be empty")
	}

	var (
		results []Result
		err     error
	)
	if c.serpAPIKey != "" {
		log.Debug().Str("query", query).Msg("search: querying serpapi")
		results, err = c.searchSerpAPI(ctx, query)
	} else {
		log.Debug().Str("query", query).Msg("search: querying duckduckgo")
		results, err = c.searchDuckDuckGo(ctx, query)
	}
	if err != nil {
		return nil, err
	}

	if len(results) > c.numResults {
		results = results[:c.numResults]
	}
	log.Info().Str("query", query).Int("results", len(results)).Msg("search: done")
	return results, nil
}

type serpAPIResponse struct {
	Error          string `json:"error,omitempty"`
	OrganicResults []struct {
		Position int    `json:"position"`
		Title    string `json:"title"`
		Link     string `json:"link"`
		Snippet  string `json:"snippet"`
	} `json:"organic_results"`
}

func (c *Client) searchSerpAPI(ctx context.Context, query string) ([]Result, error) {
	u, err := url.Parse(c.serpAPIURL)
	if err != nil {
		return nil, errors.Wrap(err, "invalid serpapi url")
	}
	q := u.Query()
	q.Set("engine", "google")
	q.Set("q", query)
	q.Set("api_key", c.serpAPIKey)
	q.Set("num", fmt.Sprintf("%d", c.numResults))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "serpapi request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read serpapi response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("serpapi error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var serpResp serpAPIResponse
	if err := json.Unmarshal(body, &serpResp); err != nil {
		return nil, errors.Wrap(err, "failed to parse serpapi response")
	}
	if serpResp.Error != "" {
		return nil, errors.Errorf("serpapi error: %s", serpResp.Error)
	}

	results := make([]Result, 0, len(serpResp.OrganicResults))
	for _, r := range serpResp.OrganicResults {
		if r.Link == "" {
			continue
		}
		results = append(results, Result{Title: r.Title, URL: r.Link, Snippet: r.Snippet})
	}
	return results, nil
}

func (c *Client) searchDuckDuckGo(ctx context.Context, query string) ([]Result, error) {
	u, err := url.Parse(c.duckDuckGoURL)
	if err != nil {
		return nil, errors.Wrap(err, "invalid duckduckgo url")
	}
	q := u.Query()
	q.Set("q", query)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "duckduckgo request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("duckduckgo error (status %d)", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse duckduckgo response")
	}

	return parseDuckDuckGo(doc), nil
}

func parseDuckDuckGo(doc *goquery.Document) []Result {
	results := []Result{}
	doc.Find(".result").Each(func(_ int, s *goquery.Selection) {
		if s.HasClass("result--ad") {
			return
		}
		a := s.Find("a.result__a").First()
		href, ok := a.Attr("href")
		if !ok {
			return
		}
		link := resolveDuckDuckGoLink(href)
		if link == "" {
			return
		}
		results = append(results, Result{
			Title:   strings.TrimSpace(a.Text()),
			URL:     link,
			Snippet: strings.Join(strings.Fields(s.Find(".result__snippet").First().Text()), " "),
		})
	})
	return results
}

// resolveDuckDuckGoLink unwraps the //duckduckgo.com/l/?uddg=<target> redirect links.
func resolveDuckDuckGoLink(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	if u.Scheme == "" {
		u.Scheme = "https"
	}
	if u.Host == "" {
		return ""
	}
	return u.String()
}
