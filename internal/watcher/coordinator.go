package watcher

import (
	"context"
	"log"

	"github.com/agentfusion/contextengine/internal/indexer"
)

// Updater is the subset of Indexer the coordinator drives.
type Updater interface {
	UpdateAsync(ctx context.Context, updates []indexer.Update)
}

// Coordinator routes debounced FileWatcher events to the Indexer.
type Coordinator struct {
	files   FileWatcher
	updater Updater
}

func NewCoordinator(files FileWatcher, updater Updater) *Coordinator {
	return &Coordinator{files: files, updater: updater}
}

// Start begins watching and blocks until ctx is cancelled.
func (c *Coordinator) Start(ctx context.Context) error {
	if err := c.files.Start(ctx, c.handleEvents); err != nil {
		return err
	}
	<-ctx.Done()
	return c.files.Stop()
}

func (c *Coordinator) handleEvents(events []Event) {
	if len(events) == 0 {
		return
	}

	updates := make([]indexer.Update, len(events))
	for i, e := range events {
		updates[i] = indexer.Update{AbsPath: e.AbsPath, Deleted: e.Deleted}
	}

	log.Printf("[watcher] processing %d change(s)", len(updates))
	c.updater.UpdateAsync(context.Background(), updates)
}
