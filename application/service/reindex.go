package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/cosolvent/cosolvent/domain/profile"
)

// DefaultReindexWorkers is the reindex pool size.
const DefaultReindexWorkers = 4

// ReindexResult summarizes a reindex run.
type ReindexResult struct {
	Indexed int
	Skipped int
	Failed  int
}

// Reindex re-embeds every approved profile. It reconciles vectors produced
// by the fallback once a provider becomes available.
type Reindex struct {
	profiles profile.Store
	indexing *Indexing
	workers  int
	logger   *slog.Logger
}

// NewReindex creates a Reindex with the given pool size.
func NewReindex(profiles profile.Store, indexing *Indexing, workers int, logger *slog.Logger) (*Reindex, error) {
	if profiles == nil {
		return nil, fmt.Errorf("NewReindex: nil profile store")
	}
	if indexing == nil {
		return nil, fmt.Errorf("NewReindex: nil indexing")
	}
	if workers < 1 {
		workers = DefaultReindexWorkers
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reindex{profiles: profiles, indexing: indexing, workers: workers, logger: logger}, nil
}

// Run indexes every profile with an active detail. Failures are collected
// and returned together after all profiles were attempted.
func (r *Reindex) Run(ctx context.Context) (ReindexResult, error) {
	all, err := r.profiles.Find(ctx)
	if err != nil {
		return ReindexResult{}, fmt.Errorf("list profiles: %w", err)
	}

	pool, err := ants.NewPool(r.workers)
	if err != nil {
		return ReindexResult{}, fmt.Errorf("create reindex pool: %w", err)
	}
	defer pool.Release()

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		result  ReindexResult
		errs    []error
		skipped int
	)
	record := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			result.Failed++
			errs = append(errs, err)
			return
		}
		result.Indexed++
	}

	for _, p := range all {
		if !p.HasActive() {
			skipped++
			continue
		}
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			record(r.indexing.IndexProfile(ctx, "", p))
		}); err != nil {
			wg.Done()
			record(fmt.Errorf("submit %s: %w", p.UserID(), err))
		}
	}
	wg.Wait()
	result.Skipped = skipped

	r.logger.InfoContext(ctx, "reindex finished",
		slog.Int("indexed", result.Indexed),
		slog.Int("skipped", result.Skipped),
		slog.Int("failed", result.Failed),
	)

	if ctx.Err() != nil {
		errs = append(errs, ctx.Err())
	}
	return result, errors.Join(errs...)
}
