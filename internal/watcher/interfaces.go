package watcher

import "context"

// Event is one coalesced filesystem change handed to the callback after
// the debounce window closes.
type Event struct {
	AbsPath string
	Deleted bool
}

// FileWatcher monitors source files for changes with debouncing and
// pause/resume support.
type FileWatcher interface {
	// Start begins watching source directories, calling callback with
	// debounced, coalesced file change events.
	Start(ctx context.Context, callback func(events []Event)) error

	// Stop stops the file watcher and cleans up resources.
	Stop() error

	// Pause stops firing callbacks but continues accumulating events.
	Pause()

	// Resume resumes firing callbacks. If events accumulated during pause, fires immediately.
	Resume()
}
