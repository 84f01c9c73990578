package agent

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"go-status-sse/internal/infrastructure/logger"
	"go-status-sse/internal/monitor"
)

const (
	EventCreated  = "created"
	EventModified = "modified"
	EventDeleted  = "deleted"
	EventMoved    = "moved"

	// DefaultMoveWindow is how long a rename waits for its matching create
	// before it is reported as a delete.
	DefaultMoveWindow = 100 * time.Millisecond

	eventTimeLayout = "2006-01-02T15:04:05"
)

var ErrNoWatchPaths = errors.New("no valid watch paths")

// EventSink receives the file events a Watcher observes.
type EventSink interface {
	SafeReport(ctx context.Context, ev monitor.FileEvent) bool
}

// Watcher reports file changes under a set of paths.
type Watcher struct {
	paths      []string
	recursive  bool
	ignoreExt  map[string]struct{}
	host       string
	moveWindow time.Duration
	sink       EventSink
	now        func() time.Time
	logger     logger.Logger
}

type WatcherOption func(*Watcher)

func WithRecursive(recursive bool) WatcherOption {
	return func(w *Watcher) { w.recursive = recursive }
}

// WithIgnoreExt skips files with any of the given extensions. Matching is
// case-insensitive and the leading dot is optional.
func WithIgnoreExt(exts ...string) WatcherOption {
	return func(w *Watcher) {
		for _, ext := range exts {
			ext = strings.ToLower(strings.TrimSpace(ext))
			if ext == "" {
				continue
			}
			if !strings.HasPrefix(ext, ".") {
				ext = "." + ext
			}
			w.ignoreExt[ext] = struct{}{}
		}
	}
}

func WithWatcherHost(host string) WatcherOption {
	return func(w *Watcher) {
		if host != "" {
			w.host = host
		}
	}
}

func WithMoveWindow(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.moveWindow = d
		}
	}
}

func WithWatcherLogger(l logger.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = l.WithField("component", "watcher") }
}

func NewWatcher(paths []string, sink EventSink, opts ...WatcherOption) *Watcher {
	hostname, _ := os.Hostname()
	w := &Watcher{
		paths:      paths,
		recursive:  true,
		ignoreExt:  make(map[string]struct{}),
		host:       hostname,
		moveWindow: DefaultMoveWindow,
		sink:       sink,
		now:        time.Now,
		logger:     logger.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run watches until ctx ends. Paths that do not exist are skipped with a
// warning; ErrNoWatchPaths is returned when none is left.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	valid := 0
	for _, p := range w.paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			w.logger.Warnf("Skipping watch path %s: %v", p, err)
			continue
		}
		if _, err := os.Stat(abs); err != nil {
			w.logger.Warnf("Skipping watch path %s: %v", p, err)
			continue
		}
		if err := w.add(fw, abs); err != nil {
			w.logger.Warnf("Skipping watch path %s: %v", p, err)
			continue
		}
		valid++
		w.logger.Infof("Watching %s (recursive: %t)", abs, w.recursive)
	}
	if valid == 0 {
		return ErrNoWatchPaths
	}

	var (
		pending string
		timer   *time.Timer
		expired <-chan time.Time
	)
	flushPending := func() {
		if pending != "" {
			w.emit(ctx, EventDeleted, pending, "")
			pending = ""
		}
		if timer != nil {
			timer.Stop()
			timer, expired = nil, nil
		}
	}
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-expired:
			timer, expired = nil, nil
			flushPending()

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warnf("Watcher error: %v", err)

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			switch {
			case ev.Has(fsnotify.Create):
				if w.recursive {
					if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
						if err := w.add(fw, ev.Name); err != nil {
							w.logger.Warnf("Cannot watch new directory %s: %v", ev.Name, err)
						}
					}
				}
				if pending != "" {
					src := pending
					pending = ""
					flushPending()
					w.emit(ctx, EventMoved, src, ev.Name)
					continue
				}
				w.emit(ctx, EventCreated, ev.Name, "")

			case ev.Has(fsnotify.Write):
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					continue
				}
				w.emit(ctx, EventModified, ev.Name, "")

			case ev.Has(fsnotify.Remove):
				w.emit(ctx, EventDeleted, ev.Name, "")

			case ev.Has(fsnotify.Rename):
				flushPending()
				pending = ev.Name
				timer = time.NewTimer(w.moveWindow)
				expired = timer.C
			}
		}
	}
}

func (w *Watcher) add(fw *fsnotify.Watcher, root string) error {
	info, err := os.Stat(root)
	if err != nil {
		return err
	}
	if !w.recursive || !info.IsDir() {
		return fw.Add(root)
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fw.Add(path)
		}
		return nil
	})
}

func (w *Watcher) ignored(path string) bool {
	_, ok := w.ignoreExt[strings.ToLower(filepath.Ext(path))]
	return ok
}

func (w *Watcher) emit(ctx context.Context, eventType, path, dest string) {
	if w.ignored(path) {
		return
	}
	if dest != "" {
		w.logger.Infof("[%s] %s -> %s", eventType, path, dest)
	} else {
		w.logger.Infof("[%s] %s", eventType, path)
	}
	w.sink.SafeReport(ctx, monitor.FileEvent{
		Host:      w.host,
		Path:      path,
		EventType: eventType,
		Timestamp: w.now().UTC().Format(eventTimeLayout),
		DestPath:  dest,
	})
}
