// Package watcher turns filesystem activity on the Messages database into
// poll passes. SQLite in WAL mode touches chat.db-wal on nearly every
// write, so watching the database's directory is a cheap change signal;
// the pollers then work out what actually happened.
package watcher

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/pvieira/imsgd/internal/bus"
	"github.com/pvieira/imsgd/internal/poller"
	"github.com/pvieira/imsgd/internal/store"
)

// cursorKey names the persisted poll checkpoint.
const cursorKey = "message-poll-cursor"

// Poller is one change-detection pass the watcher drives.
type Poller interface {
	Poll(cursor time.Time) ([]poller.Result, error)
	Tracker() *poller.Tracker
}

// Options configures a Watcher.
type Options struct {
	// DBPath is the chat.db path; its directory is watched.
	DBPath string

	// Debounce coalesces the burst of events one logical write produces.
	Debounce time.Duration

	// CacheMaxAge and CacheMaxEntries bound each poller's dedupe cache.
	CacheMaxAge     time.Duration
	CacheMaxEntries int
}

// Watcher owns the filesystem subscription, the shared poll cursor, and
// the debounce that coalesces bursts of writes into single poll passes.
type Watcher struct {
	opts    Options
	pollers []Poller
	bus     *bus.Bus
	app     *store.AppDB
	logger  *zap.Logger

	fw     *fsnotify.Watcher
	names  map[string]bool
	mtimes map[string]time.Time

	mu       sync.Mutex
	cursor   time.Time
	debounce *time.Timer
	stopped  bool

	passMu sync.Mutex

	stop chan struct{}
	done chan struct{}
}

// New creates a watcher over the given pollers. Events every poller
// produces are published on b under the event kind's topic.
func New(opts Options, pollers []Poller, b *bus.Bus, app *store.AppDB, logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	base := filepath.Base(opts.DBPath)
	return &Watcher{
		opts:    opts,
		pollers: pollers,
		bus:     b,
		app:     app,
		logger:  logger,
		names: map[string]bool{
			base:          true,
			base + "-wal": true,
			base + "-shm": true,
		},
		mtimes: make(map[string]time.Time),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start loads the persisted cursor, subscribes to the database directory,
// and launches the event loop. An unwatchable database is fatal: without
// the signal the daemon would never see anything.
func (w *Watcher) Start() error {
	if _, err := os.Stat(w.opts.DBPath); err != nil {
		return fmt.Errorf("messages database not readable: %w", err)
	}

	cursor, found, err := w.app.LoadCursor(cursorKey)
	if err != nil {
		return fmt.Errorf("loading poll cursor: %w", err)
	}
	if !found {
		// First run: start from now rather than replaying years of
		// history as "new" events.
		cursor = time.Now()
	}
	w.cursor = cursor

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating fs watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(w.opts.DBPath)); err != nil {
		_ = fw.Close()
		return fmt.Errorf("watching messages directory: %w", err)
	}
	w.fw = fw

	w.logger.Info("watching messages database",
		zap.String("path", w.opts.DBPath),
		zap.Time("cursor", cursor))

	go w.loop()
	return nil
}

// Stop tears down the filesystem subscription and waits for the loop to
// exit. Safe to call once.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.mu.Unlock()

	close(w.stop)
	if w.fw != nil {
		_ = w.fw.Close()
	}
	<-w.done
}

func (w *Watcher) loop() {
	defer close(w.done)
	for {
		select {
		case evt, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if w.relevant(evt) {
				w.schedule()
			}
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("fs watcher error", zap.Error(err))
		case <-w.stop:
			return
		}
	}
}

// relevant filters directory noise down to writes against the database
// triplet, deduped by modification time: editors and SQLite both produce
// several events per logical change.
func (w *Watcher) relevant(evt fsnotify.Event) bool {
	if !w.names[filepath.Base(evt.Name)] {
		return false
	}
	if !evt.Has(fsnotify.Write) && !evt.Has(fsnotify.Create) {
		return false
	}
	info, err := os.Stat(evt.Name)
	if err != nil {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.mtimes[evt.Name].Equal(info.ModTime()) {
		return false
	}
	w.mtimes[evt.Name] = info.ModTime()
	return true
}

// schedule (re)arms the debounce timer. Resetting on every event means the
// pass runs once the write burst settles, not once per event.
func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.debounce = time.AfterFunc(w.opts.Debounce, w.RunPass)
}

// RunPass executes one poll pass over all pollers: poll, publish, trim,
// advance and persist the cursor. Passes are single-flight; a failing
// poller is logged and skipped so the others still run. The cursor holds
// until every poller finishes a pass cleanly: an outage longer than the
// skew allowance must not drop its window, and the healthy pollers'
// trackers absorb the replay.
func (w *Watcher) RunPass() {
	w.passMu.Lock()
	defer w.passMu.Unlock()

	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	cursor := w.cursor
	w.mu.Unlock()

	next := time.Now()
	failed := false
	for _, p := range w.pollers {
		results, err := p.Poll(cursor)
		if err != nil {
			w.logger.Error("poll pass failed", zap.Error(err))
			failed = true
			continue
		}
		for _, r := range results {
			w.bus.Publish(bus.New(r.Kind.Topic(), r))
		}
		p.Tracker().Trim(w.opts.CacheMaxAge)
		p.Tracker().TrimCount(w.opts.CacheMaxEntries)
	}
	if failed {
		return
	}

	w.mu.Lock()
	w.cursor = next
	w.mu.Unlock()

	if err := w.app.SaveCursor(cursorKey, next); err != nil {
		w.logger.Warn("persisting poll cursor", zap.Error(err))
	}
}

// Cursor returns the current poll checkpoint.
func (w *Watcher) Cursor() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cursor
}
