package research

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

const (
	defaultPriority = 3
	maxFocusAreas   = 5
	analysisRetries = 3
)

var (
	numberedItem   = regexp.MustCompile(`^(\d+)\.\s*(.*)`)
	inlinePriority = regexp.MustCompile(`(?i)\bpriority\b\s*(?:[:=]?\s*)?(\d+)`)
	linePriority   = regexp.MustCompile(`(?i)^priority\s*(?:[:=]?\s*)?(\d+)`)
)

// ExtractFocusAreas parses loosely-structured model output into focus areas.
// The model is asked for five numbered items each followed by "Priority: N",
// but real output drifts: the priority may sit inline on the item line, on
// the following line, be absent, or be out of range. Items are returned in
// encounter order; text with no numbered items yields nil.
func ExtractFocusAreas(raw string) []FocusArea {
	lines := strings.Split(strings.TrimSpace(raw), "\n")

	var (
		areas           []FocusArea
		currentArea     string
		currentPriority int // 0 = not yet seen
		open            bool
	)

	flush := func() {
		if !open {
			return
		}
		p := currentPriority
		if p == 0 {
			p = defaultPriority
		}
		area := strings.Trim(currentArea, " -:")
		if area != "" {
			areas = append(areas, FocusArea{
				Area:      area,
				Priority:  p,
				Timestamp: now(),
			})
		}
		open = false
		currentArea = ""
		currentPriority = 0
	}

	for _, rawLine := range lines {
		line := strings.TrimSpace(rawLine)
		if line == "" {
			continue
		}

		if m := numberedItem.FindStringSubmatch(line); m != nil {
			flush()
			itemText := m[2]

			// Priority may be embedded anywhere in the item line.
			if pm := inlinePriority.FindStringSubmatchIndex(itemText); pm != nil {
				currentPriority = clampPriority(itemText[pm[2]:pm[3]])
				itemText = itemText[:pm[0]] + itemText[pm[1]:]
			}

			currentArea = strings.TrimSpace(strings.Trim(itemText, " -:"))
			open = true
			continue
		}

		// Two-line format: "Priority: N" on its own line after the item.
		if open {
			if pm := linePriority.FindStringSubmatch(line); pm != nil {
				currentPriority = clampPriority(pm[1])
			}
		}
	}
	flush()

	return areas
}

// clampPriority parses a priority token into [1,5]; unparseable values get
// the default.
func clampPriority(token string) int {
	p, err := strconv.Atoi(token)
	if err != nil {
		return defaultPriority
	}
	if p < 1 {
		return 1
	}
	if p > 5 {
		return 5
	}
	return p
}

// Analyzer turns the original query into a prioritized AnalysisResult via
// the model, retrying until the output parses.
type Analyzer struct {
	client llm.Client
	log    *zap.Logger
}

// NewAnalyzer builds an analyzer around a model client.
func NewAnalyzer(client llm.Client) *Analyzer {
	return &Analyzer{
		client: client,
		log:    logging.Get(logging.CategoryResearch),
	}
}

// Analyze asks the model to decompose the query into five prioritized focus
// areas. It retries up to three times, then makes one final attempt with a
// strengthened prompt. A nil result means no usable areas were produced;
// that is a retryable condition for the caller, not an error.
func (a *Analyzer) Analyze(ctx context.Context, originalQuery string) (*AnalysisResult, error) {
	prompt := analysisPrompt(originalQuery)

	for attempt := 1; attempt <= analysisRetries; attempt++ {
		result, err := a.attempt(ctx, originalQuery, prompt)
		if err != nil {
			return nil, err
		}
		if result != nil {
			return result, nil
		}
		a.log.Debug("analysis produced no focus areas, retrying",
			zap.Int("attempt", attempt), zap.Int("max", analysisRetries))
	}

	// Final attempt with the insistence appended.
	return a.attempt(ctx, originalQuery, prompt+analysisInsistence)
}

func (a *Analyzer) attempt(ctx context.Context, originalQuery, prompt string) (*AnalysisResult, error) {
	response, err := a.client.Generate(ctx, prompt, llm.Options{MaxTokens: 1000})
	if err != nil {
		return nil, fmt.Errorf("strategic analysis: %w", err)
	}

	areas := ExtractFocusAreas(response)
	if len(areas) == 0 {
		return nil, nil
	}

	// Highest priority first; stable keeps encounter order on ties.
	sort.SliceStable(areas, func(i, j int) bool {
		return areas[i].Priority > areas[j].Priority
	})
	if len(areas) > maxFocusAreas {
		areas = areas[:maxFocusAreas]
	}
	for i := range areas {
		areas[i].SourceQuery = originalQuery
	}

	return &AnalysisResult{
		OriginalQuestion: originalQuery,
		FocusAreas:       areas,
		RawResponse:      response,
		Timestamp:        now(),
	}, nil
}

// FormatAnalysisResult renders a result for display.
func FormatAnalysisResult(result *AnalysisResult) string {
	if result == nil {
		return "No valid analysis result generated."
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Research areas for: %s\n", result.OriginalQuestion)
	for i, focus := range result.FocusAreas {
		fmt.Fprintf(&sb, "\n%d. %s\n   Priority: %d", i+1, focus.Area, focus.Priority)
	}
	return sb.String()
}
