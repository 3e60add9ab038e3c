package history

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/louiscrc/trakt-to-letterboxd/models"
)

var ErrStorageDirRequired = errors.New("storage directory not provided")

const (
	mergedFile  = "merged.csv"
	exportFile  = "export.csv"
	ratingsFile = "ratings.csv"
	watchedFile = "watched.csv"

	// Letterboxd's CSV import expects bare dates.
	dateLayout = "2006-01-02"
)

// mergedTimeLayout keeps full timestamps in the persisted history so a
// reload does not flatten watches to day granularity and misread refetched
// events as new.
const mergedTimeLayout = time.RFC3339

var csvHeader = []string{"Title", "Year", "Rating10", "Rewatch", "imdbID", "WatchedDate"}

// Store persists the merged watch history and the per-run CSV artifacts to a
// directory of flat files. It assumes a single writer; concurrent pipeline
// runs are serialized by the caller, not locked here.
type Store struct {
	fs  afero.Fs
	dir string
}

// NewStore creates a store rooted at dir, creating the directory if needed.
func NewStore(fsys afero.Fs, dir string) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, ErrStorageDirRequired
	}
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create csv dir: %w", err)
	}
	return &Store{fs: fsys, dir: dir}, nil
}

// MergedPath returns the path of the persisted history file.
func (s *Store) MergedPath() string {
	return filepath.Join(s.dir, mergedFile)
}

// ExportPath returns the path of the incremental export file.
func (s *Store) ExportPath() string {
	return filepath.Join(s.dir, exportFile)
}

// Load reads the persisted merged history. A missing file is a valid first
// run and yields an empty history, not an error.
func (s *Store) Load() (*models.MergedHistory, error) {
	f, err := s.fs.Open(s.MergedPath())
	if errors.Is(err, fs.ErrNotExist) {
		return models.NewMergedHistory(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("open merged history: %w", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read merged history: %w", err)
	}

	history := models.NewMergedHistory()
	for i, row := range rows {
		if i == 0 || len(row) < 6 {
			continue
		}
		entry, err := entryFromRow(row)
		if err != nil {
			return nil, fmt.Errorf("merged history row %d: %w", i, err)
		}
		history.Set(entry)
	}
	return history, nil
}

// Save writes the merged history atomically: either the new file is fully
// visible on the next Load or the previous one remains.
func (s *Store) Save(history *models.MergedHistory) error {
	rows := make([][]string, 0, history.Len())
	for _, entry := range history.Entries() {
		rows = append(rows, []string{
			entry.Title,
			strconv.Itoa(entry.Year),
			ratingField(entry.Rating),
			strconv.FormatBool(entry.Rewatch()),
			entry.IMDBID,
			entry.WatchedAt.UTC().Format(mergedTimeLayout),
		})
	}
	return s.writeAtomic(s.MergedPath(), rows)
}

// WriteExport writes the incremental record set for the import step. Ratings
// here are already on the destination scale.
func (s *Store) WriteExport(records []models.WatchRecord) error {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{
			r.Title,
			strconv.Itoa(r.Year),
			ratingField(r.Rating),
			strconv.FormatBool(r.Rewatch),
			r.IMDBID,
			r.WatchedAt.UTC().Format(dateLayout),
		})
	}
	return s.writeAtomic(s.ExportPath(), rows)
}

// LoadExport reads back the last written export file, for re-running the
// import step without a fresh sync.
func (s *Store) LoadExport() ([]models.WatchRecord, error) {
	f, err := s.fs.Open(s.ExportPath())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open export: %w", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read export: %w", err)
	}

	var records []models.WatchRecord
	for i, row := range rows {
		if i == 0 || len(row) < 6 || row[4] == "" {
			continue
		}
		watchedAt, err := time.Parse(dateLayout, row[5])
		if err != nil {
			return nil, fmt.Errorf("export row %d: parse WatchedDate: %w", i, err)
		}
		year, _ := strconv.Atoi(row[1])
		rewatch, _ := strconv.ParseBool(row[3])
		record := models.WatchRecord{
			IMDBID:    row[4],
			Title:     row[0],
			Year:      year,
			WatchedAt: watchedAt,
			Rewatch:   rewatch,
		}
		if row[2] != "" {
			rating, err := strconv.Atoi(row[2])
			if err != nil {
				return nil, fmt.Errorf("export row %d: parse Rating10: %w", i, err)
			}
			record.Rating = &rating
		}
		records = append(records, record)
	}
	return records, nil
}

// WriteRatingsSnapshot writes the raw ratings view. Write-only diagnostics;
// never read back by the engine.
func (s *Store) WriteRatingsSnapshot(ratings []models.RatingEvent) error {
	rows := [][]string{{"imdbID", "Rating10", "RatingDate"}}
	for _, r := range ratings {
		ratedAt := ""
		if !r.RatedAt.IsZero() {
			ratedAt = r.RatedAt.UTC().Format(dateLayout)
		}
		rows = append(rows, []string{r.IMDBID, strconv.Itoa(r.Rating), ratedAt})
	}
	return s.writeRawAtomic(filepath.Join(s.dir, ratingsFile), rows)
}

// WriteWatchedSnapshot writes the raw watch-history view. Write-only
// diagnostics; never read back by the engine.
func (s *Store) WriteWatchedSnapshot(watches []models.WatchEvent) error {
	rows := [][]string{{"Title", "Year", "imdbID", "WatchedDate"}}
	for _, w := range watches {
		rows = append(rows, []string{
			w.Title,
			strconv.Itoa(w.Year),
			w.IMDBID,
			w.WatchedAt.UTC().Format(dateLayout),
		})
	}
	return s.writeRawAtomic(filepath.Join(s.dir, watchedFile), rows)
}

func (s *Store) writeAtomic(path string, rows [][]string) error {
	all := make([][]string, 0, len(rows)+1)
	all = append(all, csvHeader)
	all = append(all, rows...)
	return s.writeRawAtomic(path, all)
}

func (s *Store) writeRawAtomic(path string, rows [][]string) error {
	tmp := path + ".tmp"
	f, err := s.fs.Create(tmp)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}

	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("sync %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("close %s: %w", tmp, err)
	}
	return s.fs.Rename(tmp, path)
}

func entryFromRow(row []string) (models.MergedEntry, error) {
	year, _ := strconv.Atoi(row[1])
	rewatch, _ := strconv.ParseBool(row[3])

	if row[4] == "" {
		return models.MergedEntry{}, errors.New("missing imdbID")
	}
	watchedAt, err := time.Parse(mergedTimeLayout, row[5])
	if err != nil {
		// Histories written by the original exporter carry bare dates.
		watchedAt, err = time.Parse(dateLayout, row[5])
		if err != nil {
			return models.MergedEntry{}, fmt.Errorf("parse WatchedDate: %w", err)
		}
	}

	entry := models.MergedEntry{
		IMDBID:       row[4],
		Title:        row[0],
		Year:         year,
		WatchedAt:    watchedAt,
		WatchedDates: []time.Time{watchedAt},
		PriorRewatch: rewatch,
	}
	if row[2] != "" {
		rating, err := strconv.Atoi(row[2])
		if err != nil {
			return models.MergedEntry{}, fmt.Errorf("parse Rating10: %w", err)
		}
		entry.Rating = &rating
	}
	return entry, nil
}

func ratingField(rating *int) string {
	if rating == nil {
		return ""
	}
	return strconv.Itoa(*rating)
}
