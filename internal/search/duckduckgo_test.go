package search

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const resultsFixture = `<html><body>
<div class="serp__results">
  <div class="result results_links results_links_deep web-result">
    <a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fexample.com%2Fextraction&amp;rut=abc123">Coffee Extraction Explained</a>
    <a class="result__snippet" href="https://example.com/extraction">Why over-extraction makes coffee bitter.</a>
  </div>
  <div class="result results_links results_links_deep web-result">
    <a class="result__a" href="https://brew.example.org/grind">Grind Size Guide</a>
    <a class="result__snippet" href="https://brew.example.org/grind">Coarse vs fine grinds.</a>
  </div>
  <div class="result results_links">
    <a class="result__a" href="">Missing link</a>
  </div>
</div>
</body></html>`

func TestParseDuckDuckGoResults(t *testing.T) {
	results, err := parseDuckDuckGoResults(resultsFixture, 10)
	require.NoError(t, err)

	want := []Result{
		{
			Title:   "Coffee Extraction Explained",
			URL:     "https://example.com/extraction",
			Snippet: "Why over-extraction makes coffee bitter.",
		},
		{
			Title:   "Grind Size Guide",
			URL:     "https://brew.example.org/grind",
			Snippet: "Coarse vs fine grinds.",
		},
	}
	if diff := cmp.Diff(want, results); diff != "" {
		t.Errorf("results mismatch (-want +got):\n%s", diff)
	}
}

func TestParseDuckDuckGoResults_MaxResults(t *testing.T) {
	results, err := parseDuckDuckGoResults(resultsFixture, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Coffee Extraction Explained", results[0].Title)
}

func TestParseDuckDuckGoResults_NoResults(t *testing.T) {
	results, err := parseDuckDuckGoResults("<html><body><p>no results</p></body></html>", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestCleanRedirectURL(t *testing.T) {
	cases := map[string]string{
		"//duckduckgo.com/l/?uddg=https%3A%2F%2Fexample.com%2Fpage&rut=xyz": "https://example.com/page",
		"//duckduckgo.com/l/?uddg=https%3A%2F%2Fexample.com%2Fpage":         "https://example.com/page",
		"https://direct.example.com/page":                                   "https://direct.example.com/page",
		"": "",
	}
	for in, want := range cases {
		assert.Equal(t, want, cleanRedirectURL(in), "input %q", in)
	}
}

func TestParseTimeRange(t *testing.T) {
	assert.Equal(t, RangeDay, ParseTimeRange("d"))
	assert.Equal(t, RangeWeek, ParseTimeRange("w"))
	assert.Equal(t, RangeMonth, ParseTimeRange("m"))
	assert.Equal(t, RangeYear, ParseTimeRange("y"))
	assert.Equal(t, RangeNone, ParseTimeRange("none"))
	assert.Equal(t, RangeNone, ParseTimeRange("x"))
	assert.Equal(t, RangeNone, ParseTimeRange(""))
}
