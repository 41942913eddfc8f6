package watcher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentfusion/contextengine/internal/indexer"
)

type fakeFileWatcher struct {
	startCallback func(events []Event)
	stopped       bool
	paused        bool
}

func (f *fakeFileWatcher) Start(_ context.Context, callback func(events []Event)) error {
	f.startCallback = callback
	return nil
}
func (f *fakeFileWatcher) Stop() error { f.stopped = true; return nil }
func (f *fakeFileWatcher) Pause()      { f.paused = true }
func (f *fakeFileWatcher) Resume()     { f.paused = false }

type fakeUpdater struct {
	mu      sync.Mutex
	batches [][]indexer.Update
}

func (f *fakeUpdater) UpdateAsync(_ context.Context, updates []indexer.Update) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, updates)
}

func TestCoordinator_StartWiresCallbackIntoUpdater(t *testing.T) {
	fw := &fakeFileWatcher{}
	updater := &fakeUpdater{}
	c := NewCoordinator(fw, updater)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		require.NoError(t, c.Start(ctx))
		close(done)
	}()

	// Give Start a moment to register the callback before cancelling.
	for fw.startCallback == nil {
		time.Sleep(time.Millisecond)
	}

	fw.startCallback([]Event{
		{AbsPath: "/repo/a.go"},
		{AbsPath: "/repo/b.go", Deleted: true},
	})

	cancel()
	<-done

	updater.mu.Lock()
	defer updater.mu.Unlock()
	require.Len(t, updater.batches, 1)
	require.Len(t, updater.batches[0], 2)
	assert.Equal(t, "/repo/a.go", updater.batches[0][0].AbsPath)
	assert.False(t, updater.batches[0][0].Deleted)
	assert.Equal(t, "/repo/b.go", updater.batches[0][1].AbsPath)
	assert.True(t, updater.batches[0][1].Deleted)
	assert.True(t, fw.stopped)
}

func TestCoordinator_EmptyEventBatchIsIgnored(t *testing.T) {
	fw := &fakeFileWatcher{}
	updater := &fakeUpdater{}
	c := NewCoordinator(fw, updater)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		require.NoError(t, c.Start(ctx))
		close(done)
	}()

	for fw.startCallback == nil {
		time.Sleep(time.Millisecond)
	}

	fw.startCallback(nil)
	cancel()
	<-done

	updater.mu.Lock()
	defer updater.mu.Unlock()
	assert.Empty(t, updater.batches)
}
