// Package watch keeps a cheap eye on the music directory between scans.
// It does not index anything itself; it only counts relevant filesystem
// events so the dashboard can suggest a rescan.
package watch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/franz/crate/internal/util"
)

var audioExtensions = map[string]bool{
	".flac": true,
	".mp3":  true,
	".m4a":  true,
	".aac":  true,
	".ogg":  true,
	".opus": true,
	".wav":  true,
	".aiff": true,
	".alac": true,
}

// Watcher watches the music root and its artist directories and counts
// events that would change a scan's outcome.
type Watcher struct {
	mu      sync.Mutex
	pending int
	fsw     *fsnotify.Watcher
	stop    chan struct{}
	stopped bool
}

// Start begins watching musicDir and its immediate subdirectories.
// The library layout is flat at the top (one directory per artist), so
// watching two levels catches new artists and new albums; deeper
// changes bump the directory mtime and still produce events on most
// platforms.
func Start(musicDir string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	if err := fsw.Add(musicDir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", musicDir, err)
	}

	entries, err := os.ReadDir(musicDir)
	if err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to read %s: %w", musicDir, err)
	}
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if err := fsw.Add(filepath.Join(musicDir, entry.Name())); err != nil {
			util.WarnLog("Could not watch %s: %v", entry.Name(), err)
		}
	}

	w := &Watcher{fsw: fsw, stop: make(chan struct{})}
	go w.loop()
	util.DebugLog("Watching %s (%d artist directories)", musicDir, len(entries))
	return w, nil
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.stop:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			util.WarnLog("Watcher error: %v", err)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if strings.HasPrefix(filepath.Base(event.Name), ".") {
		return
	}

	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			// New artist or album directory: watch it and count it.
			if err := w.fsw.Add(event.Name); err != nil {
				util.DebugLog("Could not watch new directory %s: %v", event.Name, err)
			}
			w.bump()
			return
		}
	}

	if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		w.bump()
		return
	}

	if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
		if audioExtensions[strings.ToLower(filepath.Ext(event.Name))] {
			w.bump()
		}
	}
}

func (w *Watcher) bump() {
	w.mu.Lock()
	w.pending++
	w.mu.Unlock()
}

// PendingChanges returns the number of relevant events seen since the
// last Reset
func (w *Watcher) PendingChanges() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pending
}

// Reset clears the pending counter. Called after a scan completes so
// the dashboard stops suggesting a rescan.
func (w *Watcher) Reset() {
	w.mu.Lock()
	w.pending = 0
	w.mu.Unlock()
}

// Close stops the event loop and releases the inotify handles
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	w.mu.Unlock()

	close(w.stop)
	return w.fsw.Close()
}
