package sync

import (
	"sort"
	"time"

	"github.com/louiscrc/trakt-to-letterboxd/models"
)

// Options configures reconciliation behavior.
type Options struct {
	// CollapseSameDayDuplicates folds multiple watches of the same movie on
	// the same calendar day into the earliest one. The source cannot
	// disambiguate them, so either policy is defensible; this makes the
	// choice explicit.
	CollapseSameDayDuplicates bool
}

// Engine reconciles a freshly fetched history against previously persisted
// state. It is a pure function over explicit inputs: it never mutates the
// previous history and holds no state between runs.
type Engine struct {
	converter Converter
	opts      Options
}

// NewEngine creates a reconciliation engine.
func NewEngine(converter Converter, opts Options) *Engine {
	return &Engine{converter: converter, opts: opts}
}

// Reconcile joins raw watch history with raw ratings, merges the result into
// the previous history, and returns the updated history plus the records that
// were not known before. New records carry destination-scale ratings; the
// updated history keeps the raw source scale. On error the previous history
// is left untouched and no partial update is returned.
func (e *Engine) Reconcile(previous *models.MergedHistory, watches []models.WatchEvent, ratings []models.RatingEvent) (*models.MergedHistory, []models.WatchRecord, error) {
	if previous == nil {
		previous = models.NewMergedHistory()
	}

	if err := validate(watches, ratings); err != nil {
		return nil, nil, err
	}

	groups, groupOrder := groupWatches(watches, e.opts.CollapseSameDayDuplicates)
	ratingsByID := groupRatings(ratings)

	updated := previous.Clone()
	var newRecords []models.WatchRecord

	for _, id := range groupOrder {
		group := groups[id]
		available := ratingsByID[id]

		prevEntry, prevExists := previous.Get(id)

		// The chronologically earliest watch for this movie across both the
		// previous state and the current fetch; everything later is a rewatch.
		earliest := group[0].WatchedAt
		if prevExists && prevEntry.FirstWatchedAt().Before(earliest) {
			earliest = prevEntry.FirstWatchedAt()
		}

		for _, event := range group {
			record := models.WatchRecord{
				IMDBID:    event.IMDBID,
				Title:     event.Title,
				Year:      event.Year,
				Rating:    takeClosestRating(&available, event.WatchedAt),
				WatchedAt: event.WatchedAt,
				Rewatch:   !event.WatchedAt.Equal(earliest) || prevExists,
			}

			if entry, ok := updated.Get(id); ok {
				updated.Set(models.Merge(entry, record))
			} else {
				updated.Set(models.NewEntry(record))
			}

			// A record is new when the movie was never synced before, or when
			// this watch is strictly newer than anything previously known for
			// it. A timestamp equal to a known one is a duplicate fetch, not
			// a rewatch.
			if !prevExists || record.WatchedAt.After(prevEntry.LastWatchedAt()) {
				newRecords = append(newRecords, record)
			}
		}
	}

	models.SortRecords(newRecords)
	for i := range newRecords {
		if newRecords[i].Rating != nil {
			converted := e.converter.Convert(*newRecords[i].Rating)
			newRecords[i].Rating = &converted
		}
	}

	return updated, newRecords, nil
}

func validate(watches []models.WatchEvent, ratings []models.RatingEvent) error {
	for i, w := range watches {
		if w.IMDBID == "" {
			return &models.MalformedRecordError{Kind: "watch", Index: i, Field: "imdbId"}
		}
		if w.WatchedAt.IsZero() {
			return &models.MalformedRecordError{Kind: "watch", Index: i, Field: "watchedAt"}
		}
	}
	for i, r := range ratings {
		if r.IMDBID == "" {
			return &models.MalformedRecordError{Kind: "rating", Index: i, Field: "imdbId"}
		}
	}
	return nil
}

// groupWatches groups events by movie in first-seen order, sorts each group
// chronologically, and drops duplicate timestamps (plus same-day duplicates
// when collapsing is enabled).
func groupWatches(watches []models.WatchEvent, collapseSameDay bool) (map[string][]models.WatchEvent, []string) {
	groups := make(map[string][]models.WatchEvent)
	var order []string
	for _, w := range watches {
		if _, ok := groups[w.IMDBID]; !ok {
			order = append(order, w.IMDBID)
		}
		groups[w.IMDBID] = append(groups[w.IMDBID], w)
	}

	for id, group := range groups {
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].WatchedAt.Before(group[j].WatchedAt)
		})

		kept := group[:0]
		for _, event := range group {
			if len(kept) > 0 {
				last := kept[len(kept)-1].WatchedAt
				if event.WatchedAt.Equal(last) {
					continue
				}
				if collapseSameDay && sameDay(event.WatchedAt, last) {
					continue
				}
			}
			kept = append(kept, event)
		}
		groups[id] = kept
	}

	return groups, order
}

func groupRatings(ratings []models.RatingEvent) map[string][]models.RatingEvent {
	byID := make(map[string][]models.RatingEvent)
	for _, r := range ratings {
		byID[r.IMDBID] = append(byID[r.IMDBID], r)
	}
	for id := range byID {
		sort.SliceStable(byID[id], func(i, j int) bool {
			return byID[id][i].RatedAt.Before(byID[id][j].RatedAt)
		})
	}
	return byID
}

// takeClosestRating assigns the unconsumed rating whose rated-at timestamp is
// nearest to the watch date and removes it from the pool, so a title rated
// several times over the years matches each rating to its own viewing. With a
// single rating per title this is a plain join.
func takeClosestRating(available *[]models.RatingEvent, watchedAt time.Time) *int {
	if len(*available) == 0 {
		return nil
	}

	best := 0
	var bestDiff time.Duration = -1
	for i, r := range *available {
		if r.RatedAt.IsZero() {
			continue
		}
		diff := watchedAt.Sub(r.RatedAt)
		if diff < 0 {
			diff = -diff
		}
		if bestDiff < 0 || diff < bestDiff {
			bestDiff = diff
			best = i
		}
	}

	rating := (*available)[best].Rating
	*available = append((*available)[:best], (*available)[best+1:]...)
	return &rating
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
