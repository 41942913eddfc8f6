// Package bootstrap drives the initial full scan: enumerate every
// candidate path, track resumable progress in the Store, and run
// workers against the Indexer until every path is DONE or FAILED.
package bootstrap

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/agentfusion/contextengine/internal/indexer"
	"github.com/agentfusion/contextengine/internal/model"
	"github.com/agentfusion/contextengine/internal/policy"
)

// Store is the subset of storage.Store the Bootstrap component depends on.
type Store interface {
	ResetBootstrapProgress() error
	EnqueueBootstrapPaths(relPaths []string) error
	ResetInProgress() error
	ClaimNextPending(n int) ([]string, error)
	MarkBootstrapDone(relPath string) error
	MarkBootstrapFailed(relPath string) error
	BootstrapCounts() (map[model.BootstrapState]int, error)
}

// Indexer is the subset of indexer.Indexer the Bootstrap component drives.
type Indexer interface {
	IndexPath(ctx context.Context, absPath string) error
}

// Progress reports bootstrap state for status endpoints/CLI output.
type Progress struct {
	Pending    int
	InProgress int
	Done       int
	Failed     int
}

// Bootstrap runs the full-scan lifecycle of spec §4.8.
type Bootstrap struct {
	store   Store
	policy  *policy.Policy
	indexer Indexer
	workers int
}

// New builds a Bootstrap that runs exactly the given number of workers
// (at least 1). The engine passes the configured worker_count unchanged;
// nothing clamps it to the embedder's usable concurrency.
func New(store Store, p *policy.Policy, idx Indexer, workers int) *Bootstrap {
	if workers <= 0 {
		workers = 1
	}
	return &Bootstrap{store: store, policy: p, indexer: idx, workers: workers}
}

// Rebuild discards all prior bootstrap progress and rescans every watch
// root from scratch. Use Refresh instead for an incremental resume.
func (b *Bootstrap) Rebuild(ctx context.Context) error {
	if err := b.store.ResetBootstrapProgress(); err != nil {
		return fmt.Errorf("bootstrap: resetting progress: %w", err)
	}
	return b.Refresh(ctx)
}

// Refresh enumerates the watch roots, enqueues any path not already
// tracked, resumes any crashed IN_PROGRESS rows, and runs workers until
// the queue drains. A refresh never resets progress: per the PENDING/
// IN_PROGRESS/DONE/FAILED lifecycle, only Rebuild starts over.
func (b *Bootstrap) Refresh(ctx context.Context) error {
	paths, err := b.policy.Walk()
	if err != nil {
		return fmt.Errorf("bootstrap: walking watch roots: %w", err)
	}

	relPaths := make([]string, 0, len(paths))
	for _, absPath := range paths {
		decision := b.policy.Classify(absPath)
		if !decision.IsIndexable() {
			continue
		}
		if relPath, ok := b.policy.RelPath(absPath); ok {
			relPaths = append(relPaths, relPath)
		}
	}

	if err := b.store.EnqueueBootstrapPaths(relPaths); err != nil {
		return fmt.Errorf("bootstrap: enqueueing paths: %w", err)
	}
	if err := b.store.ResetInProgress(); err != nil {
		return fmt.Errorf("bootstrap: resetting in-progress rows: %w", err)
	}

	return b.drain(ctx)
}

// drain runs b.workers claim-and-index loops concurrently until no
// PENDING work remains.
func (b *Bootstrap) drain(ctx context.Context) error {
	done := make(chan struct{}, b.workers)
	for i := 0; i < b.workers; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			b.worker(ctx)
		}()
	}
	for i := 0; i < b.workers; i++ {
		<-done
	}
	return nil
}

func (b *Bootstrap) worker(ctx context.Context) {
	const claimBatch = 8
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		relPaths, err := b.store.ClaimNextPending(claimBatch)
		if err != nil {
			log.Printf("[bootstrap] claim failed: %v", err)
			return
		}
		if len(relPaths) == 0 {
			return
		}

		for _, relPath := range relPaths {
			absPath := b.resolveAbsPath(relPath)
			if err := b.indexer.IndexPath(ctx, absPath); err != nil {
				log.Printf("[bootstrap] %s failed: %v", relPath, err)
				if err := b.store.MarkBootstrapFailed(relPath); err != nil {
					log.Printf("[bootstrap] marking %s failed: %v", relPath, err)
				}
				continue
			}
			if err := b.store.MarkBootstrapDone(relPath); err != nil {
				log.Printf("[bootstrap] marking %s done: %v", relPath, err)
			}
		}
	}
}

// resolveAbsPath finds which watch root relPath actually lives under,
// since EnqueueBootstrapPaths only recorded the relative path. Falls
// back to the first watch root if none of them currently have the file
// (e.g. it was deleted between enqueue and claim).
func (b *Bootstrap) resolveAbsPath(relPath string) string {
	roots := b.policy.WatchRoots()
	for _, root := range roots {
		candidate := filepath.Join(root, filepath.FromSlash(relPath))
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	if len(roots) > 0 {
		return filepath.Join(roots[0], filepath.FromSlash(relPath))
	}
	return relPath
}

// Status reports current PENDING/IN_PROGRESS/DONE/FAILED counts.
func (b *Bootstrap) Status() (Progress, error) {
	counts, err := b.store.BootstrapCounts()
	if err != nil {
		return Progress{}, err
	}
	return Progress{
		Pending:    counts[model.BootstrapPending],
		InProgress: counts[model.BootstrapInProgress],
		Done:       counts[model.BootstrapDone],
		Failed:     counts[model.BootstrapFailed],
	}, nil
}
