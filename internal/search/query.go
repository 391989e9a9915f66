package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
)

// DefaultLimit caps results when the caller does not.
const DefaultLimit = 50

// Params configures a follow search.
type Params struct {
	Query    string `json:"query"`
	LiveOnly bool   `json:"liveOnly"`
	Limit    int    `json:"limit,omitempty"`
}

// Result is the outcome of a follow search.
type Result struct {
	Query  string `json:"query"`
	Total  uint64 `json:"total"`
	TookMs int64  `json:"tookMs"`
	Hits   []Hit  `json:"hits"`
}

// Hit is one matching channel.
type Hit struct {
	ID          string            `json:"id"`
	Score       float64           `json:"score"`
	Login       string            `json:"login"`
	DisplayName string            `json:"displayName"`
	IsLive      bool              `json:"isLive"`
	Highlights  map[string]string `json:"highlights,omitempty"`
}

// IDs returns the hit ids in relevance order.
func (r *Result) IDs() []string {
	ids := make([]string, len(r.Hits))
	for i, h := range r.Hits {
		ids[i] = h.ID
	}
	return ids
}

// Search runs a query. An empty query matches every channel, live ones and
// the most watched first.
func (f *FollowIndex) Search(ctx context.Context, params Params) (*Result, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	limit := params.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	req := bleve.NewSearchRequestOptions(buildQuery(params), limit, 0, false)
	if strings.TrimSpace(params.Query) == "" {
		req.SortBy([]string{"-is_live", "-viewers", "display_name"})
	} else {
		req.SortBy([]string{"-_score", "display_name"})
		req.Highlight = bleve.NewHighlight()
		req.Highlight.AddField("display_name")
		req.Highlight.AddField("title")
	}
	req.Fields = []string{"login", "display_name", "is_live"}

	res, err := f.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("execute search: %w", err)
	}

	result := &Result{
		Query:  params.Query,
		Total:  res.Total,
		TookMs: res.Took.Milliseconds(),
		Hits:   make([]Hit, 0, len(res.Hits)),
	}
	for _, h := range res.Hits {
		hit := Hit{ID: h.ID, Score: h.Score}
		if v, ok := h.Fields["login"].(string); ok {
			hit.Login = v
		}
		if v, ok := h.Fields["display_name"].(string); ok {
			hit.DisplayName = v
		}
		if v, ok := h.Fields["is_live"].(bool); ok {
			hit.IsLive = v
		}
		if len(h.Fragments) > 0 {
			hit.Highlights = make(map[string]string, len(h.Fragments))
			for field, fragments := range h.Fragments {
				if len(fragments) > 0 {
					hit.Highlights[field] = fragments[0]
				}
			}
		}
		result.Hits = append(result.Hits, hit)
	}
	return result, nil
}

// buildQuery matches the text against names, title, category and tags, with
// names weighted highest, then narrows to live channels when asked.
func buildQuery(params Params) query.Query {
	var queries []query.Query

	text := strings.TrimSpace(params.Query)
	if text != "" {
		var textQueries []query.Query

		for field, boost := range map[string]float64{
			"display_name": 3.0,
			"login":        3.0,
			"tags":         2.0,
			"game":         1.5,
			"title":        1.0,
		} {
			m := bleve.NewMatchQuery(text)
			m.SetField(field)
			m.SetBoost(boost)
			textQueries = append(textQueries, m)
		}

		// Typo tolerance on names.
		fuzzy := bleve.NewFuzzyQuery(strings.ToLower(text))
		fuzzy.SetFuzziness(1)
		fuzzy.SetField("display_name")
		fuzzy.SetBoost(0.8)
		textQueries = append(textQueries, fuzzy)

		// Autocomplete (minimum 2 chars).
		if len(text) >= 2 {
			for _, field := range []string{"display_name", "login"} {
				prefix := bleve.NewPrefixQuery(strings.ToLower(text))
				prefix.SetField(field)
				prefix.SetBoost(0.5)
				textQueries = append(textQueries, prefix)
			}
		}

		queries = append(queries, bleve.NewDisjunctionQuery(textQueries...))
	}

	if params.LiveOnly {
		live := bleve.NewBoolFieldQuery(true)
		live.SetField("is_live")
		queries = append(queries, live)
	}

	switch len(queries) {
	case 0:
		return bleve.NewMatchAllQuery()
	case 1:
		return queries[0]
	default:
		return bleve.NewConjunctionQuery(queries...)
	}
}
