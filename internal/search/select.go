package search

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"scout/internal/llm"
	"scout/internal/logging"
)

var indexPattern = regexp.MustCompile(`\d+`)

// SelectRelevant asks the model which results are worth scraping for the
// query and returns their URLs, at most SelectLimit. Model failure or an
// unparseable answer degrades to the top-ranked results; this call never
// surfaces an error for a non-empty result list.
func (e *WebEngine) SelectRelevant(ctx context.Context, results []Result, query string) ([]string, error) {
	log := logging.Get(logging.CategorySearch)

	if len(results) == 0 {
		return nil, nil
	}

	limit := e.cfg.SelectLimit
	if limit > len(results) {
		limit = len(results)
	}

	if e.client == nil {
		return rankedURLs(results, query, limit), nil
	}

	prompt := buildSelectionPrompt(results, query, limit)
	response, err := e.client.Generate(ctx, prompt, llm.Options{MaxTokens: 50})
	if err != nil {
		log.Warn("relevance selection failed, using keyword ranking", zap.Error(err))
		return rankedURLs(results, query, limit), nil
	}

	indices := parseSelectionIndices(response, len(results))
	if len(indices) == 0 {
		log.Debug("no parseable indices in selection response, using keyword ranking")
		return rankedURLs(results, query, limit), nil
	}
	if len(indices) > limit {
		indices = indices[:limit]
	}

	urls := make([]string, 0, len(indices))
	for _, idx := range indices {
		urls = append(urls, results[idx-1].URL)
	}
	return urls, nil
}

func buildSelectionPrompt(results []Result, query string, limit int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Select up to %d search results most relevant to the query: %q\n\n", limit, query)
	for i, r := range results {
		fmt.Fprintf(&sb, "%d. %s\n   %s\n   %s\n", i+1, r.Title, r.URL, r.Snippet)
	}
	sb.WriteString("\nRespond with ONLY the numbers of the chosen results, comma-separated (e.g. 1, 3).")
	return sb.String()
}

// parseSelectionIndices extracts 1-based result indices from a model answer,
// keeping first-mention order and dropping duplicates and out-of-range values.
func parseSelectionIndices(response string, n int) []int {
	seen := make(map[int]bool)
	var indices []int
	for _, m := range indexPattern.FindAllString(response, -1) {
		idx, err := strconv.Atoi(m)
		if err != nil || idx < 1 || idx > n || seen[idx] {
			continue
		}
		seen[idx] = true
		indices = append(indices, idx)
	}
	return indices
}

// rankedURLs orders results by keyword overlap between query and
// title+snippet, keeping search rank on ties, and returns the first limit.
func rankedURLs(results []Result, query string, limit int) []string {
	keywords := extractKeywords(query)

	ranked := make([]Result, len(results))
	copy(ranked, results)
	sort.SliceStable(ranked, func(i, j int) bool {
		si := keywordScore(ranked[i].Title+" "+ranked[i].Snippet, keywords)
		sj := keywordScore(ranked[j].Title+" "+ranked[j].Snippet, keywords)
		return si > sj
	})

	urls := make([]string, 0, limit)
	for _, r := range ranked[:limit] {
		urls = append(urls, r.URL)
	}
	return urls
}
