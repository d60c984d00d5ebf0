package research

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"scout/internal/llm"
	"scout/internal/logging"
	"scout/internal/search"
)

// Formulator turns one focus area into a concrete search query and time
// range via a single model call. It never fails visibly: malformed model
// output degrades to the focus area text itself with no time range.
type Formulator struct {
	client llm.Client
	log    *zap.Logger
}

// NewFormulator builds a formulator around a model client.
func NewFormulator(client llm.Client) *Formulator {
	return &Formulator{
		client: client,
		log:    logging.Get(logging.CategoryResearch),
	}
}

// Formulate produces a search query for the focus area. The query is also
// appended to the area's SearchQueries for provenance.
func (f *Formulator) Formulate(ctx context.Context, area *FocusArea, originalQuery string) (string, search.TimeRange) {
	response, err := f.client.Generate(ctx, queryPrompt(area.Area, originalQuery), llm.Options{MaxTokens: 50})
	if err != nil {
		f.log.Warn("query formulation failed, using focus area text",
			zap.String("area", area.Area), zap.Error(err))
		area.SearchQueries = append(area.SearchQueries, area.Area)
		return area.Area, search.RangeNone
	}

	query, timeRange := parseQueryResponse(response)
	if query == "" {
		f.log.Debug("empty formulated query, using focus area text",
			zap.String("area", area.Area))
		area.SearchQueries = append(area.SearchQueries, area.Area)
		return area.Area, search.RangeNone
	}

	area.SearchQueries = append(area.SearchQueries, query)
	return query, timeRange
}

var timeRangeChar = regexp.MustCompile(`\b([dwmy])\b`)

// parseQueryResponse tolerantly parses a formulation response. Explicit
// "key: value" lines win; when no time-range line matches, the remaining
// text is scanned for an isolated d/w/m/y character, adopted only if exactly
// one distinct such character appears.
func parseQueryResponse(response string) (string, search.TimeRange) {
	var (
		query     string
		timeRange = search.RangeNone
		rangeSet  bool
	)

	for _, line := range strings.Split(strings.TrimSpace(response), "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		switch {
		case strings.Contains(key, "query"):
			query = cleanQuery(value)
		case strings.Contains(key, "time") || strings.Contains(key, "range"):
			v := strings.ToLower(value)
			if v == "none" {
				timeRange = search.RangeNone
				rangeSet = true
			} else if tr := search.ParseTimeRange(v); tr != search.RangeNone {
				timeRange = tr
				rangeSet = true
			}
		}
	}

	if !rangeSet {
		rest := strings.ToLower(response)
		if query != "" {
			rest = strings.ReplaceAll(rest, strings.ToLower(query), "")
		}
		chars := make(map[string]bool)
		for _, m := range timeRangeChar.FindAllStringSubmatch(rest, -1) {
			chars[m[1]] = true
		}
		if len(chars) == 1 {
			for c := range chars {
				timeRange = search.ParseTimeRange(c)
			}
		}
	}

	return query, timeRange
}

// cleanQuery strips the quoting and markup models wrap queries in.
func cleanQuery(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "\"'`")
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	s = strings.Trim(s, "*_")
	return strings.TrimSpace(s)
}
