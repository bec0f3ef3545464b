package workers

import (
	"context"
	"errors"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/camden-git/foscambackend/foscam"
)

const (
	coalesceWindow    = time.Second
	watcherBackoffMin = time.Second
	watcherBackoffMax = 30 * time.Second
)

// Watcher subscribes to creation events under every recognized snap/
// and record/ subtree and feeds new files into the processor. Newly
// created camera directories are picked up by the periodic rediscovery
// sweep.
type Watcher struct {
	Root        string
	Processor   *Processor
	Rediscovery time.Duration

	mu       sync.Mutex
	lastSeen map[string]time.Time // per-path coalescing of duplicate events
	watched  map[string]bool
}

func NewWatcher(root string, processor *Processor, rediscovery time.Duration) *Watcher {
	if rediscovery <= 0 {
		rediscovery = 60 * time.Second
	}
	return &Watcher{
		Root:        root,
		Processor:   processor,
		Rediscovery: rediscovery,
		lastSeen:    map[string]time.Time{},
		watched:     map[string]bool{},
	}
}

// discoverWatchDirs lists every existing snap/ and record/ directory
// under recognized camera directories.
func (w *Watcher) discoverWatchDirs() []string {
	var dirs []string
	locations, err := os.ReadDir(w.Root)
	if err != nil {
		log.Printf("Warning: watcher failed to read root %s: %v", w.Root, err)
		return dirs
	}
	for _, locationEntry := range locations {
		if !locationEntry.IsDir() {
			continue
		}
		locationPath := filepath.Join(w.Root, locationEntry.Name())
		devices, err := os.ReadDir(locationPath)
		if err != nil {
			continue
		}
		for _, deviceEntry := range devices {
			if !deviceEntry.IsDir() || !foscam.IsKnownDevice(deviceEntry.Name()) {
				continue
			}
			for _, kind := range []string{foscam.KindSnap, foscam.KindRecord} {
				kindDir := filepath.Join(locationPath, deviceEntry.Name(), kind)
				if stat, err := os.Stat(kindDir); err == nil && stat.IsDir() {
					dirs = append(dirs, kindDir)
				}
			}
		}
	}
	return dirs
}

// addNewDirs subscribes any not-yet-watched directories.
func (w *Watcher) addNewDirs(notifier *fsnotify.Watcher) {
	for _, dir := range w.discoverWatchDirs() {
		w.mu.Lock()
		already := w.watched[dir]
		w.mu.Unlock()
		if already {
			continue
		}
		if err := notifier.Add(dir); err != nil {
			log.Printf("Warning: watcher failed to subscribe %s: %v", dir, err)
			continue
		}
		w.mu.Lock()
		w.watched[dir] = true
		w.mu.Unlock()
		log.Printf("watcher: subscribed to %s", dir)
	}
}

// shouldForward applies the grammar filter and the 1s coalescing window.
func (w *Watcher) shouldForward(path string) bool {
	kind := filepath.Base(filepath.Dir(path))
	if !foscam.MatchesGrammar(kind, filepath.Base(path)) {
		return false
	}

	now := time.Now()
	w.mu.Lock()
	defer w.mu.Unlock()
	if last, ok := w.lastSeen[path]; ok && now.Sub(last) < coalesceWindow {
		return false
	}
	w.lastSeen[path] = now

	// keep the coalescing map from growing without bound
	if len(w.lastSeen) > 4096 {
		for p, t := range w.lastSeen {
			if now.Sub(t) > coalesceWindow {
				delete(w.lastSeen, p)
			}
		}
	}
	return true
}

// Run watches until the context is cancelled. Failures of the event
// source are retried with exponential backoff, emitting a warning on
// every retry.
func (w *Watcher) Run(ctx context.Context) error {
	backoff := watcherBackoffMin
	for {
		err := w.runOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		emitEvent(Event{Type: EventWarning, Path: w.Root, Detail: "watcher subscription failed, retrying: " + err.Error()})

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > watcherBackoffMax {
			backoff = watcherBackoffMax
		}
	}
}

func (w *Watcher) runOnce(ctx context.Context) error {
	notifier, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer notifier.Close()

	// reset subscription state for this notifier instance
	w.mu.Lock()
	w.watched = map[string]bool{}
	w.mu.Unlock()

	w.addNewDirs(notifier)

	rediscovery := time.NewTicker(w.Rediscovery)
	defer rediscovery.Stop()

	log.Printf("watcher: running over %s (rediscovery every %s)", w.Root, w.Rediscovery)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-notifier.Events:
			if !ok {
				return errors.New("watcher event channel closed")
			}
			if !event.Has(fsnotify.Create) {
				continue
			}
			if w.shouldForward(event.Name) {
				w.Processor.Enqueue(Job{Path: event.Name, FromWatcher: true})
			}

		case watchErr, ok := <-notifier.Errors:
			if !ok {
				return errors.New("watcher error channel closed")
			}
			return watchErr

		case <-rediscovery.C:
			w.addNewDirs(notifier)
		}
	}
}
