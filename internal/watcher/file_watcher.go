// Package watcher turns fsnotify filesystem events into debounced,
// coalesced Events for the Indexer. It never classifies deletions
// through PathPolicy (a file that no longer exists cannot be read or
// hashed), but otherwise defers everything about whether a path is
// worth indexing to PathPolicy.
package watcher

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/agentfusion/contextengine/internal/policy"
)

// skipDirNames are never descended into regardless of policy, since
// they are almost always huge and irrelevant to source indexing.
var skipDirNames = map[string]bool{
	".git": true, "node_modules": true, ".contextengine": true,
}

// fileWatcher implements FileWatcher.
type fileWatcher struct {
	watcher      *fsnotify.Watcher
	policy       *policy.Policy
	debounceTime time.Duration
	callback     func(events []Event)
	ctx          context.Context
	cancel       context.CancelFunc

	paused   bool
	pausedMu sync.RWMutex

	accumulated   map[string]Event
	accumulatedMu sync.Mutex

	debounceTimer *time.Timer
	timerMu       sync.Mutex

	stopOnce sync.Once
	doneCh   chan struct{}

	maxDirectories  int
	watchedDirCount int
	countMu         sync.Mutex
}

// NewFileWatcher builds a watcher over every watch root named by p,
// debouncing bursts of events for debounceMs before firing the callback.
func NewFileWatcher(p *policy.Policy, debounceMs int) (FileWatcher, error) {
	if debounceMs <= 0 {
		debounceMs = 500
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watcher: creating fsnotify watcher: %w", err)
	}

	fw := &fileWatcher{
		watcher:        fsw,
		policy:         p,
		debounceTime:   time.Duration(debounceMs) * time.Millisecond,
		accumulated:    make(map[string]Event),
		doneCh:         make(chan struct{}),
		maxDirectories: 10000,
	}

	for _, root := range p.WatchRoots() {
		if err := fw.addDirectoriesRecursively(root); err != nil {
			fsw.Close()
			return nil, err
		}
	}

	return fw, nil
}

// Start begins watching for file changes.
func (fw *fileWatcher) Start(ctx context.Context, callback func(events []Event)) error {
	if callback == nil {
		return nil
	}

	fw.callback = callback
	fw.ctx, fw.cancel = context.WithCancel(ctx)

	go fw.watch()
	return nil
}

// Stop stops the file watcher, draining any pending debounce before
// returning so no event is silently dropped on shutdown.
func (fw *fileWatcher) Stop() error {
	var err error
	fw.stopOnce.Do(func() {
		if fw.cancel != nil {
			fw.cancel()
			<-fw.doneCh
		} else {
			close(fw.doneCh)
		}
		err = fw.watcher.Close()
	})
	return err
}

// Pause stops firing callbacks but continues accumulating events.
func (fw *fileWatcher) Pause() {
	fw.pausedMu.Lock()
	defer fw.pausedMu.Unlock()
	fw.paused = true
}

// Resume resumes firing callbacks, flushing anything accumulated while paused.
func (fw *fileWatcher) Resume() {
	fw.pausedMu.Lock()
	wasPaused := fw.paused
	fw.paused = false
	fw.pausedMu.Unlock()

	if wasPaused {
		fw.flush()
	}
}

func (fw *fileWatcher) watch() {
	defer close(fw.doneCh)

	fireCh := make(chan struct{}, 1)

	for {
		select {
		case <-fw.ctx.Done():
			fw.stopDebounceTimer()
			fw.drainOnShutdown()
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.handleEvent(event)
			fw.resetDebounceTimer(fireCh)

		case <-fireCh:
			fw.maybeFlush()

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[watcher] error: %v", err)
		}
	}
}

// handleEvent classifies one fsnotify event and, if it belongs in the
// accumulated batch, records it keyed by path (last write wins, so a
// rapid create-then-delete of the same path collapses to one outcome).
func (fw *fileWatcher) handleEvent(event fsnotify.Event) {
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := fw.addDirectoriesRecursively(event.Name); err != nil {
				log.Printf("[watcher] failed to watch new directory %s: %v", event.Name, err)
			}
			return
		}
	}

	// Remove and Rename both mean "this path is gone" from fsnotify's point
	// of view; a rename's corresponding create at the new path arrives as
	// its own event, so coalescing naturally yields DELETE+CREATE.
	if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		fw.record(event.Name, true)
		return
	}

	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}

	decision := fw.policy.Classify(event.Name)
	if !decision.IsIndexable() {
		return
	}
	fw.record(event.Name, false)
}

func (fw *fileWatcher) record(absPath string, deleted bool) {
	fw.accumulatedMu.Lock()
	fw.accumulated[absPath] = Event{AbsPath: absPath, Deleted: deleted}
	fw.accumulatedMu.Unlock()
}

func (fw *fileWatcher) maybeFlush() {
	fw.pausedMu.RLock()
	paused := fw.paused
	fw.pausedMu.RUnlock()
	if paused {
		return
	}
	fw.flush()
}

func (fw *fileWatcher) flush() {
	fw.accumulatedMu.Lock()
	if len(fw.accumulated) == 0 {
		fw.accumulatedMu.Unlock()
		return
	}
	events := make([]Event, 0, len(fw.accumulated))
	for _, e := range fw.accumulated {
		events = append(events, e)
	}
	fw.accumulated = make(map[string]Event)
	fw.accumulatedMu.Unlock()

	if fw.callback != nil {
		fw.callback(events)
	}
}

// drainOnShutdown fires any events still pending when the context is
// cancelled, so a shutdown racing the debounce timer never loses work.
func (fw *fileWatcher) drainOnShutdown() {
	fw.pausedMu.Lock()
	fw.paused = false
	fw.pausedMu.Unlock()
	fw.flush()
}

func (fw *fileWatcher) resetDebounceTimer(fireCh chan struct{}) {
	fw.timerMu.Lock()
	defer fw.timerMu.Unlock()

	if fw.debounceTimer != nil {
		if !fw.debounceTimer.Stop() {
			select {
			case <-fw.debounceTimer.C:
			default:
			}
		}
	}

	fw.debounceTimer = time.AfterFunc(fw.debounceTime, func() {
		select {
		case fireCh <- struct{}{}:
		default:
		}
	})
}

func (fw *fileWatcher) stopDebounceTimer() {
	fw.timerMu.Lock()
	defer fw.timerMu.Unlock()
	if fw.debounceTimer != nil {
		fw.debounceTimer.Stop()
		fw.debounceTimer = nil
	}
}

// addDirectoriesRecursively adds rootPath and every non-skipped
// subdirectory to the underlying fsnotify watcher.
func (fw *fileWatcher) addDirectoriesRecursively(rootPath string) error {
	if skipDirNames[filepath.Base(rootPath)] {
		return nil
	}

	fw.countMu.Lock()
	if fw.watchedDirCount >= fw.maxDirectories {
		count := fw.watchedDirCount
		fw.countMu.Unlock()
		return fmt.Errorf("watcher: directory limit reached: %d directories already watched", count)
	}
	fw.countMu.Unlock()

	entries, err := os.ReadDir(rootPath)
	if err != nil {
		return nil // degrade to skip, consistent with the policy's own io_error handling
	}

	if err := fw.watcher.Add(rootPath); err != nil {
		return fmt.Errorf("watcher: watching %s: %w", rootPath, err)
	}
	fw.countMu.Lock()
	fw.watchedDirCount++
	fw.countMu.Unlock()

	for _, entry := range entries {
		if !entry.IsDir() || skipDirNames[entry.Name()] {
			continue
		}
		subPath := filepath.Join(rootPath, entry.Name())
		if err := fw.addDirectoriesRecursively(subPath); err != nil {
			log.Printf("[watcher] %v", err)
		}
	}
	return nil
}
