// Package watcher reports config file changes so tunables can be reloaded
// without restarting the bot.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	// DefaultPollInterval is the default interval for checking config changes
	DefaultPollInterval = 5 * time.Second

	// settleDelay collapses the burst of events an editor save produces
	settleDelay = 100 * time.Millisecond
)

// fileState is what a check compares: a missing file has exists=false
type fileState struct {
	exists  bool
	modTime time.Time
	size    int64
}

func (s fileState) equal(o fileState) bool {
	return s.exists == o.exists && s.size == o.size && s.modTime.Equal(o.modTime)
}

func stat(path string) fileState {
	info, err := os.Stat(path)
	if err != nil {
		return fileState{}
	}
	return fileState{exists: true, modTime: info.ModTime(), size: info.Size()}
}

// ConfigWatcher calls OnChange whenever the watched file appears, disappears
// or has its size or modification time change. Filesystem notifications on
// the parent directory trigger a check early; polling catches anything the
// notifier misses (network filesystems, directories created later).
type ConfigWatcher struct {
	path     string
	interval time.Duration
	onChange func(path string)
}

// NewConfigWatcher creates a watcher for path
func NewConfigWatcher(path string, interval time.Duration, onChange func(path string)) *ConfigWatcher {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &ConfigWatcher{path: filepath.Clean(path), interval: interval, onChange: onChange}
}

// Path returns the watched file
func (w *ConfigWatcher) Path() string {
	return w.path
}

// notifier watches the config file's directory. It returns nil when
// notifications are unavailable, leaving polling as the only source.
func (w *ConfigWatcher) notifier() *fsnotify.Watcher {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil
	}
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		fw.Close()
		return nil
	}
	return fw
}

// Run watches until ctx is cancelled. The callback runs on the watching
// goroutine, so a slow reload delays the next check rather than overlapping.
func (w *ConfigWatcher) Run(ctx context.Context) {
	last := stat(w.path)
	check := func() {
		current := stat(w.path)
		if current.equal(last) {
			return
		}
		last = current
		if w.onChange != nil {
			w.onChange(w.path)
		}
	}

	var (
		events <-chan fsnotify.Event
		errs   <-chan error
	)
	if fw := w.notifier(); fw != nil {
		defer fw.Close()
		events, errs = fw.Events, fw.Errors
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	var settle <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			check()
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Clean(ev.Name) == w.path {
				settle = time.After(settleDelay)
			}
		case _, ok := <-errs:
			if !ok {
				errs = nil
			}
		case <-settle:
			settle = nil
			check()
		}
	}
}
