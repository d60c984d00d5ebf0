// Package ui provides the line-oriented terminal surface the research
// controller renders to. Output may arrive from the background loop at any
// time, so writes are serialized and the input prompt is reprinted after
// asynchronous output.
package ui

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

var (
	promptStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	sectionStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Bold(true)
)

// Terminal reads commands from in and writes styled output to out.
type Terminal struct {
	mu     sync.Mutex
	out    io.Writer
	reader *bufio.Reader
	prompt string
}

// NewTerminal builds a terminal over stdin/stdout.
func NewTerminal() *Terminal {
	return &Terminal{
		out:    os.Stdout,
		reader: bufio.NewReader(os.Stdin),
	}
}

// NewTerminalWith builds a terminal over explicit streams, for tests.
func NewTerminalWith(in io.Reader, out io.Writer) *Terminal {
	return &Terminal{
		out:    out,
		reader: bufio.NewReader(in),
	}
}

// Setup prepares the surface. Nothing to do for a plain line terminal.
func (t *Terminal) Setup() error { return nil }

// Cleanup restores the surface.
func (t *Terminal) Cleanup() {}

// UpdateOutput writes one block of output, restyling recognizable lines and
// reprinting the pending prompt so background output does not swallow it.
func (t *Terminal) UpdateOutput(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	fmt.Fprintln(t.out, t.style(text))
	if t.prompt != "" {
		fmt.Fprint(t.out, promptStyle.Render(t.prompt))
	}
}

func (t *Terminal) style(text string) string {
	trimmed := strings.TrimSpace(text)
	switch {
	case strings.HasPrefix(trimmed, "Error"):
		return errorStyle.Render(text)
	case strings.HasPrefix(trimmed, "Warning"):
		return warnStyle.Render(text)
	case strings.HasPrefix(trimmed, "Research Progress:"),
		strings.HasPrefix(trimmed, "Current Focus:"),
		strings.HasPrefix(trimmed, "Assessment Result:"),
		strings.HasPrefix(trimmed, "Final Research Summary:"):
		return sectionStyle.Render(text)
	default:
		return text
	}
}

// GetInput prints the prompt and blocks for one line. Returns ok=false on
// end-of-input.
func (t *Terminal) GetInput(prompt string) (string, bool) {
	t.mu.Lock()
	t.prompt = prompt
	fmt.Fprint(t.out, promptStyle.Render(prompt))
	t.mu.Unlock()

	line, err := t.reader.ReadString('\n')

	t.mu.Lock()
	t.prompt = ""
	t.mu.Unlock()

	if err != nil && line == "" {
		return "", false
	}
	return strings.TrimRight(line, "\r\n"), true
}
