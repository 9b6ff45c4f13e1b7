// Package watch monitors the project directory for file changes and feeds
// debounced change batches to the serving engine, which turns them into
// live reloads or a configuration restart.
package watch

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/breeze-dev/breeze/internal/logging"
)

// Kind classifies a detected change.
type Kind int

const (
	// KindContent is a change to a served file requiring a full reload.
	KindContent Kind = iota

	// KindCSS is a stylesheet change; browsers can refresh it in place.
	KindCSS

	// KindConfig is a change to the project configuration file.
	KindConfig
)

func (k Kind) String() string {
	switch k {
	case KindContent:
		return "content"
	case KindCSS:
		return "css"
	case KindConfig:
		return "config"
	default:
		return "unknown"
	}
}

// Change is one detected file change.
type Change struct {
	Path string
	Kind Kind
}

// defaultIgnore names directories and file patterns never worth watching.
var defaultIgnore = []string{
	".git",
	"node_modules",
	".breeze",
	"*.tmp",
	"*.swp",
	"*~",
}

// Options configures the watcher.
type Options struct {
	// Roots are the content directories to watch recursively.
	Roots []string

	// ConfigFile, when set, is additionally watched; changes to it are
	// reported as KindConfig.
	ConfigFile string

	// Ignore patterns skip files and directories (basename globs or
	// directory names). Merged with the defaults.
	Ignore []string

	// Debounce is how long a burst of events coalesces before one batch
	// is reported. Zero selects 100ms.
	Debounce time.Duration

	// Logger is the diagnostic sink.
	Logger *logrus.Logger
}

// Watcher converts raw fsnotify events into classified, debounced change
// batches. Watching is best-effort: a directory that cannot be watched is
// logged and skipped, never fatal.
type Watcher struct {
	opts       Options
	configFile string

	mu       sync.Mutex
	onChange func([]Change)
}

// New creates a watcher. Call OnChange before Run.
func New(opts Options) *Watcher {
	if opts.Debounce == 0 {
		opts.Debounce = 100 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	opts.Ignore = append(append([]string{}, defaultIgnore...), opts.Ignore...)

	configFile := opts.ConfigFile
	if configFile != "" {
		if abs, err := filepath.Abs(configFile); err == nil {
			configFile = abs
		}
	}
	return &Watcher{opts: opts, configFile: configFile}
}

// OnChange sets the batch callback. It runs on the watcher goroutine.
func (w *Watcher) OnChange(fn func([]Change)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = fn
}

// Run watches until the context is canceled. It returns the error from
// creating the underlying watcher; event-level errors only log.
func (w *Watcher) Run(ctx context.Context) error {
	notifier, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer notifier.Close()

	for _, root := range w.opts.Roots {
		w.addTree(notifier, root)
	}
	if w.configFile != "" {
		// Watch the directory, not the file: editors replace config
		// files on save, which drops a watch on the inode.
		if err := notifier.Add(filepath.Dir(w.configFile)); err != nil {
			w.opts.Logger.WithField("scope", "watch").
				Warnf("cannot watch config file %q: %v", w.configFile, err)
		}
	}

	var (
		pending []Change
		timer   *time.Timer
		timerC  <-chan time.Time
	)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-notifier.Events:
			if !ok {
				return nil
			}
			change, relevant := w.classify(event)
			if !relevant {
				continue
			}
			// New directories join the watch set so nested creates
			// keep being seen.
			if event.Has(fsnotify.Create) {
				w.addTree(notifier, event.Name)
			}
			pending = append(pending, change)
			if timer == nil {
				timer = time.NewTimer(w.opts.Debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.opts.Debounce)
			}

		case err, ok := <-notifier.Errors:
			if !ok {
				return nil
			}
			w.opts.Logger.WithField("scope", "watch").
				Warnf("watch error: %v", err)

		case <-timerC:
			batch := dedupe(pending)
			pending = nil
			timer = nil
			timerC = nil

			w.mu.Lock()
			callback := w.onChange
			w.mu.Unlock()
			if callback != nil && len(batch) > 0 {
				callback(batch)
			}
		}
	}
}

// addTree watches dir and every non-ignored subdirectory.
func (w *Watcher) addTree(notifier *fsnotify.Watcher, dir string) {
	filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if w.ignored(p) {
			return filepath.SkipDir
		}
		if err := notifier.Add(p); err != nil {
			w.opts.Logger.WithField("scope", "watch").
				Warnf("cannot watch %q: %v", p, err)
		}
		return nil
	})
}

// classify maps an fsnotify event to a Change, filtering noise.
func (w *Watcher) classify(event fsnotify.Event) (Change, bool) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return Change{}, false
	}
	if w.ignored(event.Name) {
		return Change{}, false
	}

	abs := event.Name
	if a, err := filepath.Abs(abs); err == nil {
		abs = a
	}
	if w.configFile != "" && abs == w.configFile {
		return Change{Path: abs, Kind: KindConfig}, true
	}
	// Events from the config file's directory that are not the config
	// file itself are noise unless the directory is also a content root.
	if w.configFile != "" && filepath.Dir(abs) == filepath.Dir(w.configFile) && !w.underRoots(abs) {
		return Change{}, false
	}

	kind := KindContent
	if strings.EqualFold(filepath.Ext(abs), ".css") {
		kind = KindCSS
	}
	return Change{Path: abs, Kind: kind}, true
}

// underRoots reports whether the path lives inside a watched content root.
func (w *Watcher) underRoots(path string) bool {
	for _, root := range w.opts.Roots {
		abs := root
		if a, err := filepath.Abs(root); err == nil {
			abs = a
		}
		if path == abs || strings.HasPrefix(path, abs+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// ignored applies the ignore patterns to a path's base name and segments.
func (w *Watcher) ignored(path string) bool {
	base := filepath.Base(path)
	for _, pattern := range w.opts.Ignore {
		if pattern == "" {
			continue
		}
		if base == pattern {
			return true
		}
		if strings.ContainsAny(pattern, "*?[") {
			if matched, _ := filepath.Match(pattern, base); matched {
				return true
			}
			continue
		}
		for _, segment := range strings.Split(filepath.ToSlash(path), "/") {
			if segment == pattern {
				return true
			}
		}
	}
	return false
}

// dedupe keeps the first change per path, preserving order.
func dedupe(changes []Change) []Change {
	seen := make(map[string]bool, len(changes))
	out := changes[:0]
	for _, c := range changes {
		if seen[c.Path] {
			continue
		}
		seen[c.Path] = true
		out = append(out, c)
	}
	return out
}
