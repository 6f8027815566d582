// Package dailylog keeps a human-readable journal of posted replies, one
// markdown file per day.
package dailylog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Entry is one posted reply
type Entry struct {
	Time     time.Time
	Target   string // URI of the post that was answered
	Reply    string // URI of the reply
	Language string
	Text     string
}

// Writer appends entries to <dir>/YYYY-MM-DD.md. A nil Writer discards.
type Writer struct {
	dir string
	mu  sync.Mutex
}

// NewWriter creates a journal writer, or nil when dir is empty
func NewWriter(dir string) *Writer {
	if dir == "" {
		return nil
	}
	return &Writer{dir: dir}
}

// Dir returns the journal directory
func (w *Writer) Dir() string {
	if w == nil {
		return ""
	}
	return w.dir
}

// Log writes an entry to the file for the entry's day
func (w *Writer) Log(e Entry) error {
	if w == nil {
		return nil
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return fmt.Errorf("failed to create journal directory: %w", err)
	}

	path := filepath.Join(w.dir, e.Time.Format("2006-01-02")+".md")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(formatEntry(e)); err != nil {
		return fmt.Errorf("failed to write journal: %w", err)
	}
	return nil
}

// formatEntry renders an entry as markdown:
//
//	## 15:04:05 [en] at://target
//	> reply text
//	(at://reply)
func formatEntry(e Entry) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## %s", e.Time.Format("15:04:05"))
	if e.Language != "" {
		fmt.Fprintf(&sb, " [%s]", e.Language)
	}
	fmt.Fprintf(&sb, " %s\n", e.Target)
	for _, line := range strings.Split(e.Text, "\n") {
		fmt.Fprintf(&sb, "> %s\n", line)
	}
	if e.Reply != "" {
		fmt.Fprintf(&sb, "(%s)\n", e.Reply)
	}
	sb.WriteString("\n")
	return sb.String()
}
