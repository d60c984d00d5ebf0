package research

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"scout/internal/logging"
)

const (
	sessionPrefix = "research_session_"
	sessionSuffix = ".txt"
	fallbackFile  = "research_findings.txt"
	ruleLine      = "================================================================================"

	// Estimated tokens per word. Coarse, but only drives the stop heuristic.
	tokensPerWord = 1.3
)

var sessionFilePattern = regexp.MustCompile(`^research_session_(\d+)\.txt$`)

// Store is the append-only session document. The background research loop is
// its only writer during active research; the foreground reads fully-flushed
// snapshots. Every record is synced to disk before Record returns, so a
// crash can lose at most an in-flight record, never a completed one.
type Store struct {
	mu              sync.Mutex
	dir             string
	path            string
	file            *os.File
	recordedSources map[string]bool
	summaryWritten  bool
	log             *zap.Logger
}

// NewStore creates a store rooted at dir (the session file is created by
// Initialize).
func NewStore(dir string) *Store {
	if dir == "" {
		dir = "."
	}
	return &Store{
		dir:             dir,
		recordedSources: make(map[string]bool),
		log:             logging.Get(logging.CategoryFindings),
	}
}

// Initialize allocates the next sequential session number, creates the
// document, and writes its header. Directory or write failures fall back to
// a fixed path rather than aborting the research process.
func (s *Store) Initialize(originalQuery string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session := s.nextSessionNumber()
	path := filepath.Join(s.dir, fmt.Sprintf("%s%d%s", sessionPrefix, session, sessionSuffix))

	header := fmt.Sprintf("Research Session %d\nTopic: %s\nStarted: %s\n%s\n\n",
		session, originalQuery, now(), ruleLine)

	if err := s.open(path, header); err != nil {
		s.log.Error("session document init failed, using fallback path",
			zap.String("path", path), zap.Error(err))

		path = filepath.Join(s.dir, fallbackFile)
		if ferr := s.open(path, "Research Findings:\n\n"); ferr != nil {
			return "", fmt.Errorf("initialize findings document: %w", ferr)
		}
	}

	// A store outlives a single session; dedup and summary state are
	// per-session and reset with the document.
	s.path = path
	s.recordedSources = make(map[string]bool)
	s.summaryWritten = false
	s.log.Info("session document initialized",
		zap.String("path", path), zap.Int("session", session))
	return path, nil
}

func (s *Store) open(path, header string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(header); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if s.file != nil {
		s.file.Close()
	}
	s.file = f
	return nil
}

// nextSessionNumber scans existing session files and returns max+1, or 1.
func (s *Store) nextSessionNumber() int {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 1
	}
	max := 0
	for _, entry := range entries {
		m := sessionFilePattern.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		if n, err := strconv.Atoi(m[1]); err == nil && n > max {
			max = n
		}
	}
	return max + 1
}

// Record appends a delimited findings block for sourceURL. A URL already
// recorded this session is a no-op; the block is flushed durably before
// returning.
func (s *Store) Record(content, sourceURL, focusAreaLabel string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return ErrNoFindings
	}
	if s.recordedSources[sourceURL] {
		return nil
	}

	block := fmt.Sprintf("\n%s\nResearch Focus: %s\nSource: %s\nContent:\n%s\n%s\n",
		ruleLine, focusAreaLabel, sourceURL, content, ruleLine)

	if _, err := s.file.WriteString(block); err != nil {
		return fmt.Errorf("append findings record: %w", err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("flush findings record: %w", err)
	}

	s.recordedSources[sourceURL] = true
	s.log.Debug("recorded source",
		zap.String("url", sourceURL), zap.String("focus", focusAreaLabel))
	return nil
}

// Recorded reports whether sourceURL was already written this session.
func (s *Store) Recorded(sourceURL string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recordedSources[sourceURL]
}

// SourceCount returns how many distinct sources have been recorded.
func (s *Store) SourceCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.recordedSources)
}

// Path returns the session document path, empty before Initialize.
func (s *Store) Path() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path
}

// ReadAll returns the full current document content. Reflects every prior
// Record call because records are flushed before Record returns.
func (s *Store) ReadAll() (string, error) {
	s.mu.Lock()
	path := s.path
	s.mu.Unlock()

	if path == "" {
		return "", ErrNoFindings
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read findings document: %w", err)
	}
	return string(data), nil
}

// EstimateSizeRatio estimates the document's share of the model context
// budget: word count times 1.3 over contextBudgetTokens. Monotonically
// non-decreasing within a session for a fixed budget.
func (s *Store) EstimateSizeRatio(contextBudgetTokens int) (float64, error) {
	if contextBudgetTokens <= 0 {
		return 0, fmt.Errorf("context budget must be positive")
	}
	content, err := s.ReadAll()
	if err != nil {
		return 0, err
	}
	estimated := float64(len(strings.Fields(content))) * tokensPerWord
	return estimated / float64(contextBudgetTokens), nil
}

// AppendSummary appends the final formatted summary block. Termination
// happens once per session; a second call returns ErrSummaryWritten.
func (s *Store) AppendSummary(block string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return ErrNoFindings
	}
	if s.summaryWritten {
		return ErrSummaryWritten
	}

	if _, err := s.file.WriteString("\n\n" + block + "\n"); err != nil {
		return fmt.Errorf("append summary: %w", err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("flush summary: %w", err)
	}
	s.summaryWritten = true
	return nil
}

// Close releases the underlying file handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
