package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/louiscrc/trakt-to-letterboxd/models"
	"github.com/louiscrc/trakt-to-letterboxd/services/scheduler"
)

// SchedulerService is the scheduler surface the handlers need.
type SchedulerService interface {
	Status() scheduler.Status
	Trigger() error
}

// HistoryStore reads the persisted merged history for display.
type HistoryStore interface {
	Load() (*models.MergedHistory, error)
}

// SyncHandler exposes the sync status API used in scheduled mode.
type SyncHandler struct {
	scheduler SchedulerService
	store     HistoryStore
}

// NewSyncHandler creates a sync status handler.
func NewSyncHandler(schedulerService SchedulerService, store HistoryStore) *SyncHandler {
	return &SyncHandler{
		scheduler: schedulerService,
		store:     store,
	}
}

// GetStatus returns the last run summary and whether a run is active
// GET /api/status
func (h *SyncHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.scheduler.Status())
}

// GetHistory returns the full merged watch history
// GET /api/history
func (h *SyncHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.store.Load()
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": "Failed to load history: " + err.Error(),
		})
		return
	}

	entries := history.Entries()
	type entryResponse struct {
		IMDBID    string `json:"imdbId"`
		Title     string `json:"title"`
		Year      int    `json:"year,omitempty"`
		Rating    *int   `json:"rating,omitempty"`
		WatchedAt string `json:"watchedAt"`
		Rewatch   bool   `json:"rewatch"`
	}
	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryResponse{
			IMDBID:    e.IMDBID,
			Title:     e.Title,
			Year:      e.Year,
			Rating:    e.Rating,
			WatchedAt: e.WatchedAt.UTC().Format(time.RFC3339),
			Rewatch:   e.Rewatch(),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"movies": out,
		"total":  len(out),
	})
}

// TriggerSync starts a sync run now
// POST /api/sync
func (h *SyncHandler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	if err := h.scheduler.Trigger(); err != nil {
		w.Header().Set("Content-Type", "application/json")
		if errors.Is(err, scheduler.ErrSyncInProgress) {
			w.WriteHeader(http.StatusConflict)
		} else {
			w.WriteHeader(http.StatusInternalServerError)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "started",
	})
}
