package models

import (
	"fmt"
	"sort"
	"time"
)

// WatchEvent is one raw watch-history entry as fetched from the source service.
type WatchEvent struct {
	IMDBID    string    `json:"imdbId"`
	Title     string    `json:"title"`
	Year      int       `json:"year,omitempty"`
	WatchedAt time.Time `json:"watchedAt"`
}

// RatingEvent is one raw rating as fetched from the source service. Ratings
// are per-title on the source, not per-viewing.
type RatingEvent struct {
	IMDBID  string    `json:"imdbId"`
	Rating  int       `json:"rating"` // source scale, 0-10
	RatedAt time.Time `json:"ratedAt,omitempty"`
}

// WatchRecord is one canonical watch/rating event. Two records with the same
// IMDBID refer to the same movie regardless of metadata drift; identity for
// de-duplication is the (IMDBID, WatchedAt) pair.
type WatchRecord struct {
	IMDBID    string    `json:"imdbId"`
	Title     string    `json:"title"`
	Year      int       `json:"year,omitempty"`
	Rating    *int      `json:"rating,omitempty"` // nil when the watch has no rating
	WatchedAt time.Time `json:"watchedAt"`
	Rewatch   bool      `json:"rewatch"`
}

// SameMovie reports whether two records refer to the same title.
func (r WatchRecord) SameMovie(other WatchRecord) bool {
	return r.IMDBID == other.IMDBID
}

// Less orders records by watch time ascending, ties broken by IMDBID so the
// order is deterministic.
func (r WatchRecord) Less(other WatchRecord) bool {
	if !r.WatchedAt.Equal(other.WatchedAt) {
		return r.WatchedAt.Before(other.WatchedAt)
	}
	return r.IMDBID < other.IMDBID
}

// SortRecords sorts records in place by watch time ascending, ties by IMDBID.
func SortRecords(records []WatchRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Less(records[j])
	})
}

// MergedEntry is the single canonical entry for a movie in the merged
// history: most recent watch metadata plus the union of all known watch
// timestamps, so rewatch state stays derivable after merges.
type MergedEntry struct {
	IMDBID       string      `json:"imdbId"`
	Title        string      `json:"title"`
	Year         int         `json:"year,omitempty"`
	Rating       *int        `json:"rating,omitempty"` // raw source scale, 0-10
	WatchedAt    time.Time   `json:"watchedAt"`        // most recent processed watch
	WatchedDates []time.Time `json:"watchedDates"`     // ascending, unique
	// PriorRewatch carries a rewatch flag loaded from persisted state, where
	// only the canonical timestamp survives and the full date list is gone.
	PriorRewatch bool `json:"priorRewatch,omitempty"`
}

// Rewatch reports whether this movie has been watched more than once. It is
// recomputed from the known timestamps rather than stored as a mutable bit.
func (e MergedEntry) Rewatch() bool {
	return e.PriorRewatch || len(e.WatchedDates) > 1
}

// FirstWatchedAt returns the earliest known watch timestamp.
func (e MergedEntry) FirstWatchedAt() time.Time {
	if len(e.WatchedDates) == 0 {
		return e.WatchedAt
	}
	return e.WatchedDates[0]
}

// LastWatchedAt returns the latest known watch timestamp.
func (e MergedEntry) LastWatchedAt() time.Time {
	if len(e.WatchedDates) == 0 {
		return e.WatchedAt
	}
	return e.WatchedDates[len(e.WatchedDates)-1]
}

// clone returns a deep copy so callers can never alias the timestamp slice.
func (e MergedEntry) clone() MergedEntry {
	out := e
	out.WatchedDates = append([]time.Time(nil), e.WatchedDates...)
	if e.Rating != nil {
		v := *e.Rating
		out.Rating = &v
	}
	return out
}

// Merge folds an incoming watch event into an existing entry and returns a
// new value. The earliest timestamp stays canonical for first-watch
// detection; the incoming event's metadata becomes current only when its
// watch time is newer than everything already known. Timestamps equal to an
// already-known instant are dropped rather than duplicated.
func Merge(existing MergedEntry, incoming WatchRecord) MergedEntry {
	out := existing.clone()

	known := false
	for _, ts := range out.WatchedDates {
		if ts.Equal(incoming.WatchedAt) {
			known = true
			break
		}
	}
	if !known {
		out.WatchedDates = append(out.WatchedDates, incoming.WatchedAt)
		sort.Slice(out.WatchedDates, func(i, j int) bool {
			return out.WatchedDates[i].Before(out.WatchedDates[j])
		})
	}

	if incoming.WatchedAt.After(existing.WatchedAt) || existing.WatchedAt.IsZero() {
		out.WatchedAt = incoming.WatchedAt
		out.Title = incoming.Title
		out.Year = incoming.Year
		if incoming.Rating != nil {
			v := *incoming.Rating
			out.Rating = &v
		}
	} else if out.Rating == nil && incoming.Rating != nil {
		v := *incoming.Rating
		out.Rating = &v
	}

	return out
}

// NewEntry builds a fresh merged entry from a first watch event.
func NewEntry(incoming WatchRecord) MergedEntry {
	entry := MergedEntry{
		IMDBID:       incoming.IMDBID,
		Title:        incoming.Title,
		Year:         incoming.Year,
		WatchedAt:    incoming.WatchedAt,
		WatchedDates: []time.Time{incoming.WatchedAt},
	}
	if incoming.Rating != nil {
		v := *incoming.Rating
		entry.Rating = &v
	}
	return entry
}

// MergedHistory is the full set of movies the user has ever watched, keyed by
// IMDBID. Entry order is preserved so persisted rows keep insertion/merge
// order across runs.
type MergedHistory struct {
	entries map[string]MergedEntry
	order   []string
}

// NewMergedHistory returns an empty history.
func NewMergedHistory() *MergedHistory {
	return &MergedHistory{entries: make(map[string]MergedEntry)}
}

// Len returns the number of movies in the history.
func (h *MergedHistory) Len() int {
	return len(h.entries)
}

// Contains reports whether the history already knows the given movie.
func (h *MergedHistory) Contains(imdbID string) bool {
	_, ok := h.entries[imdbID]
	return ok
}

// Get returns the entry for a movie and whether it exists.
func (h *MergedHistory) Get(imdbID string) (MergedEntry, bool) {
	entry, ok := h.entries[imdbID]
	if !ok {
		return MergedEntry{}, false
	}
	return entry.clone(), true
}

// Set inserts or replaces an entry, preserving first-insertion order.
func (h *MergedHistory) Set(entry MergedEntry) {
	if _, ok := h.entries[entry.IMDBID]; !ok {
		h.order = append(h.order, entry.IMDBID)
	}
	h.entries[entry.IMDBID] = entry.clone()
}

// Entries returns all entries in insertion order.
func (h *MergedHistory) Entries() []MergedEntry {
	out := make([]MergedEntry, 0, len(h.order))
	for _, id := range h.order {
		out = append(out, h.entries[id].clone())
	}
	return out
}

// Clone returns a deep copy. Reconciliation always works on a clone so the
// caller's previous state survives a failed run untouched.
func (h *MergedHistory) Clone() *MergedHistory {
	out := NewMergedHistory()
	for _, id := range h.order {
		out.Set(h.entries[id])
	}
	return out
}

// SyncState is a derived view over a merged history: the set of already-known
// ids and the newest timestamp seen. It is never persisted separately, so it
// cannot diverge from the history it was derived from.
type SyncState struct {
	KnownIDs   map[string]struct{}
	LastSyncAt time.Time
}

// State derives the sync state for the current history contents.
func (h *MergedHistory) State() SyncState {
	state := SyncState{KnownIDs: make(map[string]struct{}, len(h.entries))}
	for id, entry := range h.entries {
		state.KnownIDs[id] = struct{}{}
		if last := entry.LastWatchedAt(); last.After(state.LastSyncAt) {
			state.LastSyncAt = last
		}
	}
	return state
}

// MalformedRecordError reports a raw fetched record that is missing a
// required field. The whole run aborts; malformed input is never silently
// dropped.
type MalformedRecordError struct {
	Kind  string // "watch" or "rating"
	Index int    // position in the fetched sequence
	Field string // missing field
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("malformed %s record at index %d: missing %s", e.Kind, e.Index, e.Field)
}

// ImportResult reports the destination-side outcome for one exported record.
type ImportResult struct {
	IMDBID string `json:"imdbId"`
	Title  string `json:"title"`
	Err    error  `json:"-"`
}
