package research

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"scout/internal/llm"
	"scout/internal/logging"
	"scout/internal/search"
)

// SearchEngine is the retrieval capability the controller drives. The
// concrete implementation lives in internal/search.
type SearchEngine interface {
	Search(ctx context.Context, query string, tr search.TimeRange) ([]search.Result, error)
	SelectRelevant(ctx context.Context, results []search.Result, query string) ([]string, error)
	Scrape(ctx context.Context, urls []string) (map[string]string, error)
}

// UI is the terminal surface the controller talks to. GetInput returns
// ok=false on end-of-input, which is equivalent to quitting.
type UI interface {
	Setup() error
	Cleanup()
	UpdateOutput(text string)
	GetInput(prompt string) (string, bool)
}

// State is the controller's lifecycle phase.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StatePaused
	StateTerminating
	StateComplete
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateTerminating:
		return "terminating"
	case StateComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// Config tunes the control loop.
type Config struct {
	ContextTokens       int           // model context budget for the size ceiling
	SoftSizeRatio       float64       // warn above this share of the budget
	HardSizeRatio       float64       // stop the loop above this share
	StartTimeout        time.Duration // bound on the research-start acknowledgement
	PausePoll           time.Duration // pause-check polling interval
	InitialBackoff      time.Duration // backoff after a failed analysis cycle
	MaxBackoff          time.Duration // backoff cap
	MaxAnalysisFailures int           // consecutive analysis failures before self-termination
}

// DefaultConfig returns the loop defaults.
func DefaultConfig() Config {
	return Config{
		ContextTokens:       8192,
		SoftSizeRatio:       0.8,
		HardSizeRatio:       0.9,
		StartTimeout:        10 * time.Second,
		PausePoll:           time.Second,
		InitialBackoff:      time.Second,
		MaxBackoff:          8 * time.Second,
		MaxAnalysisFailures: 5,
	}
}

// Controller owns the research session: the background work goroutine, the
// pause/terminate signals, and the transition into summarization and
// conversation. The background goroutine is the sole writer of the session
// document and of currentFocus; the foreground only flips signals and reads.
type Controller struct {
	cfg        Config
	client     llm.Client
	engine     SearchEngine
	store      *Store
	ui         UI
	analyzer   *Analyzer
	formulator *Formulator
	log        *zap.Logger

	mu               sync.RWMutex
	state            State
	runID            string
	originalQuery    string
	currentFocus     *FocusArea
	researchComplete bool
	researchSummary  string
	researchContent  string

	paused           atomic.Bool
	awaitingDecision atomic.Bool

	// Session signals, reset by StartResearch.
	ctx           context.Context
	cancel        context.CancelFunc
	terminate     chan struct{}
	terminateOnce *sync.Once
	started       chan struct{}
	done          chan struct{}
}

// NewController wires the research engine together.
func NewController(cfg Config, client llm.Client, engine SearchEngine, store *Store, ui UI) *Controller {
	return &Controller{
		cfg:        cfg,
		client:     client,
		engine:     engine,
		store:      store,
		ui:         ui,
		analyzer:   NewAnalyzer(client),
		formulator: NewFormulator(client),
		log:        logging.Get(logging.CategoryResearch),
		state:      StateIdle,
	}
}

// StartResearch initializes the session document, spawns the research loop,
// and runs the foreground command loop until quit or end-of-input. It blocks
// until the session is over; when research was not already finalized it
// triggers termination and prints the summary before returning.
func (c *Controller) StartResearch(query string) error {
	if err := c.ui.Setup(); err != nil {
		return fmt.Errorf("ui setup: %w", err)
	}
	defer c.ui.Cleanup()

	c.mu.Lock()
	if c.state == StateRunning || c.state == StatePaused {
		c.mu.Unlock()
		return fmt.Errorf("research already in progress")
	}
	c.state = StateRunning
	c.runID = uuid.NewString()
	c.originalQuery = query
	c.currentFocus = nil
	c.researchComplete = false
	c.researchSummary = ""
	c.researchContent = ""
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.terminate = make(chan struct{})
	c.terminateOnce = new(sync.Once)
	c.started = make(chan struct{})
	c.done = make(chan struct{})
	c.mu.Unlock()

	c.paused.Store(false)
	c.awaitingDecision.Store(false)

	path, err := c.store.Initialize(query)
	if err != nil {
		c.setState(StateIdle)
		return err
	}

	c.log.Info("research starting",
		zap.String("run_id", c.runID), zap.String("query", query),
		zap.String("document", path))

	c.ui.UpdateOutput("Starting research on: " + query)
	c.ui.UpdateOutput("Session document: " + path)
	c.ui.UpdateOutput("\nCommands available during research:")
	c.ui.UpdateOutput("'s' = Show status")
	c.ui.UpdateOutput("'f' = Show current focus")
	c.ui.UpdateOutput("'p' = Pause and assess the research progress")
	c.ui.UpdateOutput("'q' = Quit research\n")

	go c.researchLoop()

	select {
	case <-c.started:
	case <-time.After(c.cfg.StartTimeout):
		c.signalTerminate()
		c.setState(StateIdle)
		c.ui.UpdateOutput("Error: research failed to start within timeout period")
		return ErrStartTimeout
	}

	for !c.terminated() {
		cmd, ok := c.ui.GetInput("Enter command: ")
		if !ok {
			break
		}
		c.handleCommand(strings.ToLower(strings.TrimSpace(cmd)))
	}

	if !c.ResearchComplete() {
		c.ui.UpdateOutput("\nGenerating research summary... please wait...")
		summary, err := c.TerminateResearch()
		if err != nil {
			c.ui.UpdateOutput("Summary generation failed: " + err.Error())
			return err
		}
		c.ui.UpdateOutput("\nFinal Research Summary:")
		c.ui.UpdateOutput(summary)
	}
	return nil
}

func (c *Controller) handleCommand(cmd string) {
	// During pause-and-assess the only meaningful answers are continue/quit.
	if c.awaitingDecision.Load() {
		switch cmd {
		case "c":
			c.Resume()
		case "q":
			c.signalTerminate()
		default:
			c.ui.UpdateOutput("Enter 'c' to continue the research or 'q' to terminate and generate the summary.")
		}
		return
	}

	switch cmd {
	case "s":
		c.ui.UpdateOutput(c.Progress())
	case "f":
		if focus := c.CurrentFocus(); focus != nil {
			c.ui.UpdateOutput(fmt.Sprintf("\nCurrent Focus:\nArea: %s\nPriority: %d", focus.Area, focus.Priority))
		} else {
			c.ui.UpdateOutput("\nNo current focus area")
		}
	case "p":
		if err := c.PauseAndAssess(); err != nil {
			c.ui.UpdateOutput("Cannot pause: " + err.Error())
		}
	case "q":
		c.signalTerminate()
	case "":
	default:
		c.ui.UpdateOutput("Unknown command. Use 's', 'f', 'p' or 'q'.")
	}
}

// researchLoop is the background work unit and the only writer of focus-area
// progress and document content. It ends only via the terminate signal, the
// size-limit stop, or the analysis-failure circuit breaker (which itself
// signals terminate).
func (c *Controller) researchLoop() {
	defer close(c.done)
	close(c.started)

	failures := 0
	backoff := c.cfg.InitialBackoff

	for {
		if c.terminated() {
			return
		}
		if c.paused.Load() {
			c.sleep(c.cfg.PausePoll)
			continue
		}

		ok := c.runCycle()
		if c.terminated() {
			return
		}

		if !ok {
			failures++
			if failures >= c.cfg.MaxAnalysisFailures {
				c.log.Error("too many consecutive analysis failures, terminating",
					zap.Int("failures", failures))
				c.ui.UpdateOutput(fmt.Sprintf("\nAnalysis failed %d times in a row. Finalizing research.", failures))
				c.signalTerminate()
				return
			}
			c.ui.UpdateOutput(fmt.Sprintf("\nFailed to generate analysis result. Retrying in %s...", backoff))
			c.sleep(backoff)
			backoff *= 2
			if backoff > c.cfg.MaxBackoff {
				backoff = c.cfg.MaxBackoff
			}
			continue
		}

		failures = 0
		backoff = c.cfg.InitialBackoff
	}
}

// runCycle performs one analysis + focus-area pass. Returns false when no
// usable analysis was produced. A panic inside the cycle is logged and
// treated as a failed cycle rather than killing the goroutine.
func (c *Controller) runCycle() (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("research cycle panicked", zap.Any("panic", r))
			c.ui.UpdateOutput(fmt.Sprintf("Error in research process: %v", r))
			ok = false
		}
	}()

	c.ui.UpdateOutput("\nAnalyzing research progress...")
	c.ui.UpdateOutput("Generating research focus areas...")

	result, err := c.analyzer.Analyze(c.ctx, c.OriginalQuery())
	if err != nil {
		c.log.Warn("strategic analysis failed", zap.Error(err))
		return false
	}
	if result == nil || len(result.FocusAreas) == 0 {
		return false
	}

	c.ui.UpdateOutput(fmt.Sprintf("\nGenerated %d research areas:", len(result.FocusAreas)))
	for i, focus := range result.FocusAreas {
		c.ui.UpdateOutput(fmt.Sprintf("Area %d: %s (priority %d)", i+1, focus.Area, focus.Priority))
	}

	for i := range result.FocusAreas {
		if !c.awaitResume() {
			return true
		}
		if stop := c.processFocusArea(&result.FocusAreas[i]); stop {
			return true
		}
	}

	c.ui.UpdateOutput("\nAll current focus areas investigated. Generating new areas...")
	return true
}

// processFocusArea runs formulate/search/select/scrape/record for one area.
// Returns true when the loop should stop entirely (terminate or size limit).
// Terminate and pause are re-checked between every unit of work so a pause
// can suspend mid-area without losing already-recorded findings.
func (c *Controller) processFocusArea(focus *FocusArea) bool {
	c.setCurrentFocus(focus)
	c.ui.UpdateOutput("\nInvestigating: " + focus.Area)

	query, timeRange := c.formulator.Formulate(c.ctx, focus, c.OriginalQuery())
	if query == "" {
		return false
	}
	if !c.awaitResume() {
		return true
	}

	c.ui.UpdateOutput("Searching: " + query)
	results, err := c.engine.Search(c.ctx, query, timeRange)
	if err != nil {
		c.log.Warn("search failed", zap.String("query", query), zap.Error(err))
		c.ui.UpdateOutput("Error during search: " + err.Error())
		return false
	}
	if len(results) == 0 {
		c.ui.UpdateOutput("No results found.")
		return false
	}
	if !c.awaitResume() {
		return true
	}

	urls, err := c.engine.SelectRelevant(c.ctx, results, query)
	if err != nil || len(urls) == 0 {
		return false
	}
	if !c.awaitResume() {
		return true
	}

	c.ui.UpdateOutput("Scraping selected pages...")
	scraped, err := c.engine.Scrape(c.ctx, urls)
	if err != nil {
		c.log.Warn("scrape failed", zap.Error(err))
	}

	for _, u := range urls {
		content, found := scraped[u]
		if !found || c.store.Recorded(u) {
			continue
		}
		if c.terminated() {
			return true
		}
		if err := c.store.Record(content, u, focus.Area); err != nil {
			c.log.Warn("record failed", zap.String("url", u), zap.Error(err))
			c.ui.UpdateOutput("Error saving content: " + err.Error())
			continue
		}
		c.ui.UpdateOutput("Added content from: " + u)
	}

	return c.checkDocumentSize()
}

// checkDocumentSize enforces the context-budget ceiling after each area.
// An unverifiable size counts as a stop: running blind past the budget would
// poison every later summarization call.
func (c *Controller) checkDocumentSize() bool {
	ratio, err := c.store.EstimateSizeRatio(c.cfg.ContextTokens)
	if err != nil {
		c.log.Error("size estimate failed, stopping research", zap.Error(err))
		c.ui.UpdateOutput("\nCannot verify document size. Finalizing research.")
		c.signalTerminate()
		return true
	}
	if ratio > c.cfg.HardSizeRatio {
		c.log.Info("document size ceiling reached", zap.Float64("ratio", ratio))
		c.ui.UpdateOutput("\nDocument size limit reached. Finalizing research.")
		c.signalTerminate()
		return true
	}
	if ratio > c.cfg.SoftSizeRatio {
		c.ui.UpdateOutput(fmt.Sprintf("Warning: document size at %.1f%% of context limit", ratio*100))
	}
	return false
}

// awaitResume blocks while paused, polling coarsely. Returns false when the
// terminate signal fired.
func (c *Controller) awaitResume() bool {
	for c.paused.Load() {
		if c.terminated() {
			return false
		}
		c.sleep(c.cfg.PausePoll)
	}
	return !c.terminated()
}

// sleep waits for d or until terminate, whichever comes first.
func (c *Controller) sleep(d time.Duration) {
	select {
	case <-c.terminate:
	case <-time.After(d):
	}
}

// PauseAndAssess suspends the loop and asks the model whether the gathered
// content suffices to answer the original query. Settable only while
// running. The next command is expected to be 'c' (resume) or 'q' (quit).
func (c *Controller) PauseAndAssess() error {
	c.mu.Lock()
	if c.state != StateRunning {
		c.mu.Unlock()
		return ErrNotRunning
	}
	c.state = StatePaused
	c.mu.Unlock()
	c.paused.Store(true)

	c.ui.UpdateOutput("\nPausing research for assessment...")

	content, err := c.store.ReadAll()
	if err != nil || strings.TrimSpace(content) == "" {
		c.ui.UpdateOutput("No research data was collected to assess.")
		c.Resume()
		return nil
	}

	// Foreground-blocking excursion: one model call, reading a fully-flushed
	// snapshot of the document.
	assessment, err := c.client.Generate(c.ctx,
		assessmentPrompt(c.OriginalQuery(), content), llm.Options{MaxTokens: 200})
	if err != nil {
		c.log.Warn("assessment failed", zap.Error(err))
		assessment = "Assessment unavailable: " + err.Error()
	}

	c.ui.UpdateOutput("\nAssessment Result:")
	c.ui.UpdateOutput(strings.TrimSpace(assessment))
	c.ui.UpdateOutput("Enter 'c' to continue the research or 'q' to terminate and generate the summary.")
	c.awaitingDecision.Store(true)
	return nil
}

// Resume clears the pause state.
func (c *Controller) Resume() {
	c.awaitingDecision.Store(false)
	c.paused.Store(false)
	c.mu.Lock()
	if c.state == StatePaused {
		c.state = StateRunning
	}
	c.mu.Unlock()
	c.ui.UpdateOutput("Resuming research...")
}

// TerminateResearch stops the loop, waits for it to go quiescent, and
// produces the final summary. Idempotent: once complete, the cached summary
// is returned. When no findings exist it reports that without raising.
func (c *Controller) TerminateResearch() (string, error) {
	c.mu.RLock()
	if c.researchComplete {
		summary := c.researchSummary
		c.mu.RUnlock()
		return summary, nil
	}
	done := c.done
	c.mu.RUnlock()

	c.log.Info("terminating research", zap.String("run_id", c.runID))
	c.signalTerminate()
	if done != nil {
		<-done
	}
	c.setState(StateTerminating)

	content, err := c.store.ReadAll()
	if err != nil || strings.TrimSpace(content) == "" {
		c.setState(StateComplete)
		return "No research data found to summarize.", nil
	}

	c.mu.Lock()
	c.researchContent = content
	c.mu.Unlock()

	// The session context is canceled by now; summarization gets its own.
	summary, err := c.client.Generate(context.Background(),
		summaryPrompt(c.OriginalQuery(), content), llm.Options{MaxTokens: 4000})
	if err != nil {
		return "", fmt.Errorf("summary generation: %w", err)
	}

	formatted := formatSummaryBlock(c.OriginalQuery(), summary)
	if err := c.store.AppendSummary(formatted); err != nil && err != ErrSummaryWritten {
		c.log.Warn("failed to append summary to document", zap.Error(err))
	}

	c.mu.Lock()
	c.researchSummary = formatted
	c.researchComplete = true
	c.state = StateComplete
	c.mu.Unlock()

	c.log.Info("research complete",
		zap.String("run_id", c.runID),
		zap.Int("sources", c.store.SourceCount()))
	return formatted, nil
}

func formatSummaryBlock(originalQuery, summary string) string {
	const rule = ruleLine
	return fmt.Sprintf("%s\nRESEARCH SUMMARY\n%s\n\nOriginal Query: %s\nGenerated on: %s\n\n%s\n\n%s\nEnd of Summary\n%s",
		rule, rule, originalQuery, now(), summary, rule, rule)
}

// Progress returns the current research progress for the status command.
func (c *Controller) Progress() string {
	focusLabel := "Initializing"
	if focus := c.CurrentFocus(); focus != nil {
		focusLabel = focus.Area
	}
	status := "Stopped"
	if c.IsActive() {
		status = "Active"
	}
	return fmt.Sprintf(`
Research Progress:
- Original Query: %s
- Sources analyzed: %d
- Status: %s
- Current focus: %s`,
		c.OriginalQuery(), c.store.SourceCount(), status, focusLabel)
}

// signalTerminate fires the one-way terminate signal. Idempotent per session.
func (c *Controller) signalTerminate() {
	c.mu.RLock()
	once, cancel, terminate := c.terminateOnce, c.cancel, c.terminate
	c.mu.RUnlock()
	if once == nil || terminate == nil {
		return
	}
	once.Do(func() {
		close(terminate)
		if cancel != nil {
			cancel()
		}
	})
}

func (c *Controller) terminated() bool {
	c.mu.RLock()
	terminate := c.terminate
	c.mu.RUnlock()
	if terminate == nil {
		return false
	}
	select {
	case <-terminate:
		return true
	default:
		return false
	}
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// StateNow returns the current lifecycle phase.
func (c *Controller) StateNow() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// IsActive reports whether the background loop is still running.
func (c *Controller) IsActive() bool {
	c.mu.RLock()
	done := c.done
	c.mu.RUnlock()
	if done == nil {
		return false
	}
	select {
	case <-done:
		return false
	default:
		return true
	}
}

// OriginalQuery returns the query this session is researching.
func (c *Controller) OriginalQuery() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.originalQuery
}

// CurrentFocus returns the focus area under investigation; may be slightly
// stale, which is acceptable for status display.
func (c *Controller) CurrentFocus() *FocusArea {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentFocus
}

func (c *Controller) setCurrentFocus(f *FocusArea) {
	c.mu.Lock()
	c.currentFocus = f
	c.mu.Unlock()
}

// ResearchComplete reports whether termination and summarization finished.
func (c *Controller) ResearchComplete() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.researchComplete
}

// ResearchSummary returns the formatted summary, empty until complete.
func (c *Controller) ResearchSummary() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.researchSummary
}
