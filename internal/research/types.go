// Package research implements the research orchestration engine: focus-area
// extraction from model output, query formulation, the append-only findings
// document, and the cooperatively-paused control loop that drives them.
package research

import (
	"errors"
	"time"
)

const timestampLayout = "2006-01-02 15:04:05"

// Sentinel errors for the conditions callers branch on.
var (
	// ErrStartTimeout means the background loop never acknowledged startup.
	ErrStartTimeout = errors.New("research failed to start within timeout")
	// ErrNotRunning means an operation required an active research session.
	ErrNotRunning = errors.New("research is not running")
	// ErrNoFindings means no session document exists to read.
	ErrNoFindings = errors.New("no research data found")
	// ErrSummaryWritten means the summary trailer was already appended.
	ErrSummaryWritten = errors.New("summary already written")
)

// FocusArea is a model-proposed sub-topic with an assigned priority, driving
// one search/scrape cycle. Immutable after creation except SearchQueries,
// which the formulator appends to.
type FocusArea struct {
	Area          string
	Priority      int // 1..5, higher is more promising
	SourceQuery   string
	Timestamp     string
	SearchQueries []string
}

// AnalysisResult is one round of strategic decomposition. FocusAreas is
// sorted by priority descending; a nil *AnalysisResult is the failure
// sentinel, never an empty slice masquerading as success.
type AnalysisResult struct {
	OriginalQuestion string
	FocusAreas       []FocusArea
	RawResponse      string
	Timestamp        string
}

func now() string {
	return time.Now().Format(timestampLayout)
}
