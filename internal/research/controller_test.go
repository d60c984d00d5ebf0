package research

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"scout/internal/llm"
	"scout/internal/search"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// routingClient answers each prompt kind with a canned response.
type routingClient struct {
	mu           sync.Mutex
	summaryCalls int
}

func (c *routingClient) Generate(_ context.Context, prompt string, _ llm.Options) (string, error) {
	switch {
	case strings.Contains(prompt, "select exactly 5 areas"):
		return `1. Coffee extraction chemistry
Priority: 5
2. Grind size effects
Priority: 3`, nil
	case strings.Contains(prompt, "Base a search query"):
		return "Search query: coffee over-extraction\nTime range: none", nil
	case strings.Contains(prompt, "comprehensive research summary"):
		c.mu.Lock()
		c.summaryCalls++
		c.mu.Unlock()
		return "The coffee is bitter because of over-extraction.", nil
	case strings.Contains(prompt, "assess whether"):
		return "The research is sufficient to answer the query.", nil
	case strings.Contains(prompt, "applied set"):
		return "Grind coarser and shorten the brew time.", nil
	default:
		return "", nil
	}
}

func (c *routingClient) Model() string { return "routing" }

// fakeEngine serves a fixed result set and page content.
type fakeEngine struct{}

func (fakeEngine) Search(_ context.Context, _ string, _ search.TimeRange) ([]search.Result, error) {
	return []search.Result{
		{Title: "Extraction guide", URL: "https://example.com/one", Snippet: "why coffee turns bitter"},
		{Title: "Grind basics", URL: "https://example.com/two", Snippet: "grind size explained"},
	}, nil
}

func (fakeEngine) SelectRelevant(_ context.Context, results []search.Result, _ string) ([]string, error) {
	urls := make([]string, 0, len(results))
	for _, r := range results {
		urls = append(urls, r.URL)
	}
	return urls, nil
}

func (fakeEngine) Scrape(_ context.Context, urls []string) (map[string]string, error) {
	pages := make(map[string]string, len(urls))
	for _, u := range urls {
		pages[u] = "Over-extraction pulls bitter compounds out of the grounds."
	}
	return pages, nil
}

// scriptUI collects output and serves input from a channel.
type scriptUI struct {
	mu      sync.Mutex
	inputs  chan string
	outputs []string
}

func newScriptUI() *scriptUI {
	return &scriptUI{inputs: make(chan string)}
}

func (u *scriptUI) Setup() error { return nil }
func (u *scriptUI) Cleanup()     {}

func (u *scriptUI) UpdateOutput(text string) {
	u.mu.Lock()
	u.outputs = append(u.outputs, text)
	u.mu.Unlock()
}

func (u *scriptUI) GetInput(string) (string, bool) {
	v, ok := <-u.inputs
	return v, ok
}

func (u *scriptUI) output() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return strings.Join(u.outputs, "\n")
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.StartTimeout = 2 * time.Second
	cfg.PausePoll = 10 * time.Millisecond
	cfg.InitialBackoff = time.Millisecond
	cfg.MaxBackoff = 4 * time.Millisecond
	cfg.ContextTokens = 1 << 20
	return cfg
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Log("condition not reached before deadline")
}

func TestController_FullSession(t *testing.T) {
	client := &routingClient{}
	store := NewStore(t.TempDir())
	defer store.Close()
	ui := newScriptUI()
	ctrl := NewController(testConfig(), client, fakeEngine{}, store, ui)

	go func() {
		// Let the loop record at least one source before quitting.
		waitFor(t, func() bool { return store.SourceCount() >= 1 })
		ui.inputs <- "s"
		ui.inputs <- "q"
		close(ui.inputs)
	}()

	require.NoError(t, ctrl.StartResearch("why is my coffee bitter"))

	assert.True(t, ctrl.ResearchComplete())
	assert.Equal(t, StateComplete, ctrl.StateNow())
	assert.False(t, ctrl.IsActive())

	summary := ctrl.ResearchSummary()
	assert.Contains(t, summary, "RESEARCH SUMMARY")
	assert.Contains(t, summary, "Original Query: why is my coffee bitter")
	assert.Contains(t, summary, "over-extraction")

	doc, err := store.ReadAll()
	require.NoError(t, err)
	assert.Contains(t, doc, "Source: https://example.com/one")
	assert.Contains(t, doc, "Source: https://example.com/two")
	assert.Contains(t, doc, "Research Focus:")
	assert.Contains(t, doc, "RESEARCH SUMMARY")

	out := ui.output()
	assert.Contains(t, out, "Research Progress:")
	assert.Contains(t, out, "Final Research Summary:")
}

func TestController_SizeLimitStopsLoop(t *testing.T) {
	cfg := testConfig()
	cfg.ContextTokens = 50 // a single recorded page blows the budget

	client := &routingClient{}
	store := NewStore(t.TempDir())
	defer store.Close()
	ui := newScriptUI()
	ctrl := NewController(cfg, client, fakeEngine{}, store, ui)

	go func() {
		// The loop self-terminates on the size ceiling; unblock the
		// pending input read afterwards.
		waitFor(t, func() bool { return store.SourceCount() >= 1 })
		waitFor(t, func() bool { return !ctrl.IsActive() })
		ui.inputs <- "q"
		close(ui.inputs)
	}()

	require.NoError(t, ctrl.StartResearch("why is my coffee bitter"))

	assert.True(t, ctrl.ResearchComplete())
	assert.Contains(t, ui.output(), "Document size limit reached")
}

func TestController_SizeCheckFailureStopsLoop(t *testing.T) {
	cfg := testConfig()
	cfg.ContextTokens = 0 // every size estimate fails

	client := &routingClient{}
	store := NewStore(t.TempDir())
	defer store.Close()
	ui := newScriptUI()
	ctrl := NewController(cfg, client, fakeEngine{}, store, ui)

	go func() {
		// An unverifiable size self-terminates the loop after the first
		// area; unblock the pending input read afterwards.
		waitFor(t, func() bool { return store.SourceCount() >= 1 })
		waitFor(t, func() bool { return !ctrl.IsActive() })
		ui.inputs <- "q"
		close(ui.inputs)
	}()

	require.NoError(t, ctrl.StartResearch("why is my coffee bitter"))

	assert.True(t, ctrl.ResearchComplete())
	assert.Contains(t, ui.output(), "Cannot verify document size")
}

func TestController_TerminateIdempotent(t *testing.T) {
	client := &routingClient{}
	store := NewStore(t.TempDir())
	defer store.Close()
	ui := newScriptUI()
	ctrl := NewController(testConfig(), client, fakeEngine{}, store, ui)

	go func() {
		waitFor(t, func() bool { return store.SourceCount() >= 1 })
		ui.inputs <- "q"
		close(ui.inputs)
	}()
	require.NoError(t, ctrl.StartResearch("why is my coffee bitter"))

	first := ctrl.ResearchSummary()
	again, err := ctrl.TerminateResearch()
	require.NoError(t, err)
	assert.Equal(t, first, again)

	client.mu.Lock()
	assert.Equal(t, 1, client.summaryCalls)
	client.mu.Unlock()
}

// brokenAnalysisClient never yields parseable focus areas but can still
// summarize.
type brokenAnalysisClient struct{}

func (brokenAnalysisClient) Generate(_ context.Context, prompt string, _ llm.Options) (string, error) {
	if strings.Contains(prompt, "comprehensive research summary") {
		return "Nothing was gathered.", nil
	}
	return "I refuse to produce numbered areas.", nil
}

func (brokenAnalysisClient) Model() string { return "broken" }

func TestController_AnalysisFailureBreaker(t *testing.T) {
	cfg := testConfig()
	cfg.MaxAnalysisFailures = 3

	store := NewStore(t.TempDir())
	defer store.Close()
	ui := newScriptUI()
	ctrl := NewController(cfg, brokenAnalysisClient{}, fakeEngine{}, store, ui)

	go func() {
		// The breaker self-terminates the loop; unblock the input read.
		waitFor(t, func() bool {
			return strings.Contains(ui.output(), "Finalizing research")
		})
		ui.inputs <- "q"
		close(ui.inputs)
	}()

	require.NoError(t, ctrl.StartResearch("why is my coffee bitter"))

	out := ui.output()
	assert.Contains(t, out, "Failed to generate analysis result")
	assert.Contains(t, out, "Analysis failed 3 times in a row")
	assert.Equal(t, 0, store.SourceCount())
}

// countingEngine yields fresh URLs on every search, so the document keeps
// growing for as long as the loop is allowed to run.
type countingEngine struct {
	n atomic.Int64
}

func (e *countingEngine) Search(_ context.Context, _ string, _ search.TimeRange) ([]search.Result, error) {
	hi := e.n.Add(2)
	return []search.Result{
		{Title: "page", URL: fmt.Sprintf("https://example.com/page-%d", hi-1), Snippet: "coffee notes"},
		{Title: "page", URL: fmt.Sprintf("https://example.com/page-%d", hi), Snippet: "coffee notes"},
	}, nil
}

func (e *countingEngine) SelectRelevant(_ context.Context, results []search.Result, _ string) ([]string, error) {
	urls := make([]string, 0, len(results))
	for _, r := range results {
		urls = append(urls, r.URL)
	}
	return urls, nil
}

func (e *countingEngine) Scrape(_ context.Context, urls []string) (map[string]string, error) {
	pages := make(map[string]string, len(urls))
	for _, u := range urls {
		pages[u] = "Bitterness notes for " + u
	}
	return pages, nil
}

func TestController_PauseAssessAndResume(t *testing.T) {
	cfg := testConfig()
	client := &routingClient{}
	store := NewStore(t.TempDir())
	defer store.Close()
	ui := newScriptUI()
	ctrl := NewController(cfg, client, &countingEngine{}, store, ui)

	go func() {
		waitFor(t, func() bool { return store.SourceCount() >= 1 })
		ui.inputs <- "p"
		waitFor(t, func() bool { return ctrl.awaitingDecision.Load() })
		assert.Equal(t, StatePaused, ctrl.StateNow())

		// Let any in-flight area drain, then verify the pause freezes
		// writes across several poll intervals.
		time.Sleep(3 * cfg.PausePoll)
		frozen := store.SourceCount()
		time.Sleep(5 * cfg.PausePoll)
		assert.Equal(t, frozen, store.SourceCount())

		ui.inputs <- "c"
		waitFor(t, func() bool { return ctrl.StateNow() == StateRunning })
		waitFor(t, func() bool { return store.SourceCount() > frozen })
		ui.inputs <- "q"
		close(ui.inputs)
	}()

	require.NoError(t, ctrl.StartResearch("why is my coffee bitter"))

	out := ui.output()
	assert.Contains(t, out, "Assessment Result:")
	assert.Contains(t, out, "The research is sufficient to answer the query.")
	assert.Contains(t, out, "Resuming research...")
	assert.True(t, ctrl.ResearchComplete())

	// Resuming never re-records: every source block appears exactly once.
	doc, err := store.ReadAll()
	require.NoError(t, err)
	sources := make(map[string]int)
	for _, line := range strings.Split(doc, "\n") {
		if strings.HasPrefix(line, "Source: ") {
			sources[line]++
		}
	}
	require.NotEmpty(t, sources)
	for line, n := range sources {
		assert.Equal(t, 1, n, line)
	}
}

func TestController_TerminateWithoutData(t *testing.T) {
	store := NewStore(t.TempDir())
	defer store.Close()
	ctrl := NewController(testConfig(), &routingClient{}, fakeEngine{}, store, newScriptUI())

	summary, err := ctrl.TerminateResearch()
	require.NoError(t, err)
	assert.Equal(t, "No research data found to summarize.", summary)
	assert.False(t, ctrl.ResearchComplete())
}

func TestController_PauseRequiresRunning(t *testing.T) {
	store := NewStore(t.TempDir())
	defer store.Close()
	ctrl := NewController(testConfig(), &routingClient{}, fakeEngine{}, store, newScriptUI())

	assert.ErrorIs(t, ctrl.PauseAndAssess(), ErrNotRunning)
}

func TestController_ConversationModeRequiresCompletion(t *testing.T) {
	store := NewStore(t.TempDir())
	defer store.Close()
	ctrl := NewController(testConfig(), &routingClient{}, fakeEngine{}, store, newScriptUI())

	assert.ErrorIs(t, ctrl.StartConversationMode(), ErrNotRunning)
}

func TestGenerateConversationResponse(t *testing.T) {
	store := NewStore(t.TempDir())
	defer store.Close()
	ctrl := NewController(testConfig(), &routingClient{}, fakeEngine{}, store, newScriptUI())

	ctrl.mu.Lock()
	ctrl.researchComplete = true
	ctrl.researchContent = "Over-extraction pulls bitter compounds out of the grounds."
	ctrl.researchSummary = "Bitterness comes from over-extraction."
	ctrl.mu.Unlock()

	answer, err := ctrl.GenerateConversationResponse(context.Background(), "how do I fix it?")
	require.NoError(t, err)
	assert.Equal(t, "Grind coarser and shorten the brew time.", answer)
}

func TestGenerateConversationResponse_EmptyAnswer(t *testing.T) {
	store := NewStore(t.TempDir())
	defer store.Close()
	client := &stubClient{responses: []string{"   "}}
	ctrl := NewController(testConfig(), client, fakeEngine{}, store, newScriptUI())

	ctrl.mu.Lock()
	ctrl.researchComplete = true
	ctrl.researchContent = "some findings"
	ctrl.mu.Unlock()

	answer, err := ctrl.GenerateConversationResponse(context.Background(), "anything?")
	require.NoError(t, err)
	assert.Equal(t, noAnswerMessage, answer)
}

func TestGenerateConversationResponse_ReloadsFromStore(t *testing.T) {
	store := NewStore(t.TempDir())
	defer store.Close()
	_, err := store.Initialize("why is my coffee bitter")
	require.NoError(t, err)
	require.NoError(t, store.Record("findings text", "https://example.com", "focus"))

	ctrl := NewController(testConfig(), &routingClient{}, fakeEngine{}, store, newScriptUI())
	ctrl.mu.Lock()
	ctrl.researchComplete = true
	ctrl.mu.Unlock()

	answer, err := ctrl.GenerateConversationResponse(context.Background(), "how do I fix it?")
	require.NoError(t, err)
	assert.NotEmpty(t, answer)

	ctrl.mu.RLock()
	assert.Contains(t, ctrl.researchContent, "findings text")
	ctrl.mu.RUnlock()
}

func TestGenerateConversationResponse_NoDocument(t *testing.T) {
	store := NewStore(t.TempDir())
	defer store.Close()
	ctrl := NewController(testConfig(), &routingClient{}, fakeEngine{}, store, newScriptUI())
	ctrl.mu.Lock()
	ctrl.researchComplete = true
	ctrl.mu.Unlock()

	_, err := ctrl.GenerateConversationResponse(context.Background(), "anything?")
	assert.ErrorIs(t, err, ErrNoFindings)
}
