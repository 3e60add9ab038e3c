package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"

	"github.com/louiscrc/trakt-to-letterboxd/models"
)

var (
	// ErrFetch marks transient failures at the remote fetch boundary. The
	// engine's own computation is pure and never retried.
	ErrFetch = errors.New("fetch failed")
	// ErrPersistence marks an unreadable or unwritable history store. Fatal;
	// the run aborts before any import is attempted.
	ErrPersistence = errors.New("persistence failed")
)

// Fetcher supplies the full remote watch history and ratings list. Both
// calls must fully enumerate all pages before returning.
type Fetcher interface {
	FetchWatchHistory(ctx context.Context) ([]models.WatchEvent, error)
	FetchRatings(ctx context.Context) ([]models.RatingEvent, error)
}

// Store is the durable mapping from previous-sync state to merged history,
// plus the per-run CSV artifacts.
type Store interface {
	Load() (*models.MergedHistory, error)
	Save(*models.MergedHistory) error
	WriteExport([]models.WatchRecord) error
	WriteRatingsSnapshot([]models.RatingEvent) error
	WriteWatchedSnapshot([]models.WatchEvent) error
}

// Importer performs the destination-side import of the new-record subset.
// Partial failure is reported per record and never rolls back the already
// saved reconciliation.
type Importer interface {
	ImportRecords(ctx context.Context, records []models.WatchRecord) ([]models.ImportResult, error)
}

// RunSummary describes one completed (or failed) pipeline run.
type RunSummary struct {
	RunID          string    `json:"runId"`
	StartedAt      time.Time `json:"startedAt"`
	FinishedAt     time.Time `json:"finishedAt"`
	WatchEvents    int       `json:"watchEvents"`
	RatingEvents   int       `json:"ratingEvents"`
	TotalMovies    int       `json:"totalMovies"`
	NewRecords     int       `json:"newRecords"`
	Imported       int       `json:"imported"`
	ImportFailed   int       `json:"importFailed"`
	ImportSkipped  bool      `json:"importSkipped"`
	Error          string    `json:"error,omitempty"`
	FailedIMDBIDs  []string  `json:"failedImdbIds,omitempty"`
}

// Pipeline orchestrates one sync run: fetch, reconcile, persist, import.
// It owns the single load/save lifecycle; the engine itself is stateless.
type Pipeline struct {
	fetcher       Fetcher
	store         Store
	importer      Importer // nil disables the import step
	engine        *Engine
	fetchAttempts uint
}

// NewPipeline wires a sync pipeline. A nil importer skips the destination
// upload and leaves export.csv for a manual import.
func NewPipeline(fetcher Fetcher, store Store, importer Importer, engine *Engine, fetchAttempts int) *Pipeline {
	if fetchAttempts <= 0 {
		fetchAttempts = 3
	}
	return &Pipeline{
		fetcher:       fetcher,
		store:         store,
		importer:      importer,
		engine:        engine,
		fetchAttempts: uint(fetchAttempts),
	}
}

// Run executes one full sync. The merged history is saved before the import
// step runs, so a crash mid-import leaves the reconciliation durably
// recorded and export.csv on disk; the upload alone can then be retried.
func (p *Pipeline) Run(ctx context.Context) (*RunSummary, error) {
	summary := &RunSummary{
		RunID:     uuid.New().String(),
		StartedAt: time.Now().UTC(),
	}
	log.Printf("[sync] run %s started", summary.RunID)

	watches, ratings, err := p.fetch(ctx)
	if err != nil {
		return p.fail(summary, fmt.Errorf("%w: %w", ErrFetch, err))
	}
	summary.WatchEvents = len(watches)
	summary.RatingEvents = len(ratings)
	log.Printf("[sync] fetched %d watch events, %d ratings", len(watches), len(ratings))

	// Raw snapshots are diagnostics only; a failure here should not abort
	// the reconciliation.
	if err := p.store.WriteRatingsSnapshot(ratings); err != nil {
		log.Printf("[sync] warning: ratings snapshot not written: %v", err)
	}
	if err := p.store.WriteWatchedSnapshot(watches); err != nil {
		log.Printf("[sync] warning: watched snapshot not written: %v", err)
	}

	previous, err := p.store.Load()
	if err != nil {
		return p.fail(summary, fmt.Errorf("%w: %w", ErrPersistence, err))
	}

	updated, newRecords, err := p.engine.Reconcile(previous, watches, ratings)
	if err != nil {
		return p.fail(summary, err)
	}
	summary.TotalMovies = updated.Len()
	summary.NewRecords = len(newRecords)
	log.Printf("[sync] reconciled %d movies, %d new records", updated.Len(), len(newRecords))

	// Persist before handing anything to the importer.
	if err := p.store.Save(updated); err != nil {
		return p.fail(summary, fmt.Errorf("%w: %w", ErrPersistence, err))
	}
	if err := p.store.WriteExport(newRecords); err != nil {
		return p.fail(summary, fmt.Errorf("%w: %w", ErrPersistence, err))
	}

	p.runImport(ctx, summary, newRecords)

	summary.FinishedAt = time.Now().UTC()
	log.Printf("[sync] run %s finished in %s", summary.RunID, summary.FinishedAt.Sub(summary.StartedAt).Round(time.Millisecond))
	return summary, nil
}

// fetch retrieves history and ratings concurrently, each behind a bounded
// retry with backoff. Reconciliation only starts once both have fully
// returned.
func (p *Pipeline) fetch(ctx context.Context) ([]models.WatchEvent, []models.RatingEvent, error) {
	var (
		watches []models.WatchEvent
		ratings []models.RatingEvent
	)

	grp := pool.New().WithErrors().WithContext(ctx)
	grp.Go(func(ctx context.Context) error {
		return p.withRetry(ctx, "watch history", func() error {
			var err error
			watches, err = p.fetcher.FetchWatchHistory(ctx)
			return err
		})
	})
	grp.Go(func(ctx context.Context) error {
		return p.withRetry(ctx, "ratings", func() error {
			var err error
			ratings, err = p.fetcher.FetchRatings(ctx)
			return err
		})
	})
	if err := grp.Wait(); err != nil {
		return nil, nil, err
	}
	return watches, ratings, nil
}

func (p *Pipeline) withRetry(ctx context.Context, what string, fn func() error) error {
	return retry.Do(fn,
		retry.Context(ctx),
		retry.Attempts(p.fetchAttempts),
		retry.Delay(2*time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Printf("[sync] fetch %s attempt %d failed: %v", what, n+1, err)
		}),
	)
}

func (p *Pipeline) runImport(ctx context.Context, summary *RunSummary, newRecords []models.WatchRecord) {
	if p.importer == nil || len(newRecords) == 0 {
		summary.ImportSkipped = true
		return
	}

	results, err := p.importer.ImportRecords(ctx, newRecords)
	if err != nil {
		// The reconciliation is already saved and export.csv is on disk, so
		// the upload can be retried standalone. Logged, not fatal.
		log.Printf("[sync] import failed: %v", err)
	}
	for _, res := range results {
		if res.Err != nil {
			summary.ImportFailed++
			summary.FailedIMDBIDs = append(summary.FailedIMDBIDs, res.IMDBID)
			log.Printf("[sync] import failed for %s (%s): %v", res.IMDBID, res.Title, res.Err)
		} else {
			summary.Imported++
		}
	}
}

func (p *Pipeline) fail(summary *RunSummary, err error) (*RunSummary, error) {
	summary.FinishedAt = time.Now().UTC()
	summary.Error = err.Error()
	log.Printf("[sync] run %s failed: %v", summary.RunID, err)
	return summary, err
}
