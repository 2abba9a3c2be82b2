// Package watch re-runs the generator when package sources change.
package watch

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long a burst of writes must settle before the
// callback runs.
const DefaultDebounce = 500 * time.Millisecond

// Watcher watches directories for changes to Go sources and config files.
type Watcher struct {
	watcher  *fsnotify.Watcher
	ignore   map[string]bool
	debounce time.Duration
	onChange func() error
	log      io.Writer

	mu   sync.Mutex
	runs int
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// WithIgnore skips events for the given files, typically the generated
// output, so writing it does not trigger another run.
func WithIgnore(paths ...string) Option {
	return func(w *Watcher) {
		for _, p := range paths {
			w.ignore[filepath.Clean(p)] = true
		}
	}
}

// WithLog sets where run results and watcher errors are reported.
// The default is stderr.
func WithLog(out io.Writer) Option {
	return func(w *Watcher) { w.log = out }
}

// New creates a watcher over paths. Directories are watched for any Go or
// config file; missing paths are skipped.
func New(paths []string, onChange func() error, opts ...Option) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	w := &Watcher{
		watcher:  fw,
		ignore:   make(map[string]bool),
		debounce: DefaultDebounce,
		onChange: onChange,
		log:      os.Stderr,
	}
	for _, opt := range opts {
		opt(w)
	}

	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := fw.Add(p); err != nil {
			fw.Close()
			return nil, fmt.Errorf("failed to watch %q: %w", p, err)
		}
	}
	return w, nil
}

// Watched returns the paths currently under watch.
func (w *Watcher) Watched() []string {
	return w.watcher.WatchList()
}

// Runs returns how many times the callback has run.
func (w *Watcher) Runs() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.runs
}

// Relevant reports whether a change to name should trigger a run.
func (w *Watcher) Relevant(name string) bool {
	if w.ignore[filepath.Clean(name)] {
		return false
	}
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, "~") {
		return false
	}
	switch filepath.Ext(base) {
	case ".go", ".yaml", ".yml", ".toml":
		return true
	}
	return false
}

// Run watches for changes and calls the callback after each settled burst.
// Blocks until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	var debounce *time.Timer
	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !w.Relevant(event.Name) {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(w.debounce, w.fire)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(w.log, "file watcher error: %v\n", err)
		}
	}
}

func (w *Watcher) fire() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.runs++
	if err := w.onChange(); err != nil {
		fmt.Fprintf(w.log, "regenerate failed: %v\n", err)
		return
	}
	fmt.Fprintf(w.log, "regenerated\n")
}
