package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/kindryd/askflash-mcp/pkg/models"
)

// WebSearcher calls an external web search provider for current
// information, falling back to an empty result set (never an error) when
// no provider is configured or the call fails — web_search augments the
// plan, it never gates it.
type WebSearcher struct {
	httpClient *http.Client
	baseURL    string
}

// NewWebSearcher builds a WebSearcher against baseURL (a search API root
// exposing GET {baseURL}?q={query}). An empty baseURL disables external
// calls entirely.
func NewWebSearcher(baseURL string, timeout time.Duration) *WebSearcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebSearcher{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
	}
}

type searchResult struct {
	ID    string  `json:"id"`
	Title string  `json:"title"`
	URL   string  `json:"url"`
	Score float64 `json:"score"`
}

// Search performs the web_search stage: documents and relevance scores in
// the same SourceHit shape embedding_lookup uses, so Coordinator
// integration can dedupe across both.
func (s *WebSearcher) Search(ctx context.Context, msg models.TaskMessage) (map[string]any, error) {
	if s.baseURL == "" {
		return models.WebSearchResult{}.ToMap(), nil
	}

	u, err := url.Parse(s.baseURL)
	if err != nil {
		return models.WebSearchResult{}.ToMap(), nil
	}
	q := u.Query()
	q.Set("q", msg.Query)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return models.WebSearchResult{}.ToMap(), nil
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return models.WebSearchResult{}.ToMap(), nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.WebSearchResult{}.ToMap(), nil
	}

	var results []searchResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return models.WebSearchResult{}.ToMap(), nil
	}

	docs := make([]models.SourceHit, 0, len(results))
	for _, r := range results {
		docs = append(docs, models.SourceHit{
			ID:    fmt.Sprintf("w_%s", r.ID),
			Title: r.Title,
			URL:   r.URL,
			Score: r.Score,
		})
	}
	return models.WebSearchResult{Documents: docs}.ToMap(), nil
}
