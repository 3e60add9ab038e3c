package letterboxd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/louiscrc/trakt-to-letterboxd/models"
)

const (
	signInURL = "https://letterboxd.com/sign-in/"
	importURL = "https://letterboxd.com/import/"
)

var (
	ErrPasswordRequired = errors.New("letterboxd password not configured")
	ErrLoginFailed      = errors.New("letterboxd login failed")
)

// Importer uploads the export CSV to Letterboxd through a headless browser.
// It is the only component that touches the destination site; the engine and
// its tests never depend on it.
type Importer struct {
	username string
	password string
	headless bool
	csvPath  string
	timeout  time.Duration
}

// NewImporter creates a browser importer for the given account. csvPath is
// the export file written by the store for the current run.
func NewImporter(username, password string, headless bool, csvPath string) *Importer {
	return &Importer{
		username: username,
		password: password,
		headless: headless,
		csvPath:  csvPath,
		timeout:  3 * time.Minute,
	}
}

// ImportRecords uploads the export file containing the given records. The
// upload is a single file submission, so one browser failure marks every
// record failed; Letterboxd itself de-duplicates re-imported rows.
func (i *Importer) ImportRecords(ctx context.Context, records []models.WatchRecord) ([]models.ImportResult, error) {
	if len(records) == 0 {
		return nil, nil
	}
	if i.password == "" {
		return i.failAll(records, ErrPasswordRequired), ErrPasswordRequired
	}

	err := i.upload(ctx)
	if err != nil {
		return i.failAll(records, err), err
	}

	results := make([]models.ImportResult, 0, len(records))
	for _, r := range records {
		results = append(results, models.ImportResult{IMDBID: r.IMDBID, Title: r.Title})
	}
	return results, nil
}

func (i *Importer) upload(ctx context.Context) error {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", i.headless),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	runCtx, cancelRun := context.WithTimeout(browserCtx, i.timeout)
	defer cancelRun()

	if err := i.login(runCtx); err != nil {
		return err
	}
	return i.submitCSV(runCtx)
}

func (i *Importer) login(ctx context.Context) error {
	log.Printf("[letterboxd] logging in as %s", i.username)

	var currentURL string
	err := chromedp.Run(ctx,
		chromedp.Navigate(signInURL),
		chromedp.WaitVisible(`#field-username`, chromedp.ByID),
		chromedp.SendKeys(`#field-username`, i.username, chromedp.ByID),
		chromedp.SendKeys(`#field-password`, i.password, chromedp.ByID),
		chromedp.Click(`button[type="submit"]`, chromedp.ByQuery),
		chromedp.Sleep(3*time.Second),
		chromedp.Location(&currentURL),
	)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}

	// Still sitting on the sign-in page means the credentials were rejected.
	if strings.Contains(currentURL, "sign-in") {
		return ErrLoginFailed
	}

	log.Printf("[letterboxd] login succeeded")
	return nil
}

func (i *Importer) submitCSV(ctx context.Context) error {
	log.Printf("[letterboxd] uploading %s", i.csvPath)

	err := chromedp.Run(ctx,
		chromedp.Navigate(importURL),
		chromedp.WaitVisible(`input[type="file"]`, chromedp.ByQuery),
		chromedp.SetUploadFiles(`input[type="file"]`, []string{i.csvPath}, chromedp.ByQuery),
		// Letterboxd matches the uploaded rows before the import button
		// becomes clickable.
		chromedp.WaitVisible(`input[type="submit"][value="Import"]`, chromedp.ByQuery),
		chromedp.Click(`input[type="submit"][value="Import"]`, chromedp.ByQuery),
		chromedp.Sleep(5*time.Second),
	)
	if err != nil {
		return fmt.Errorf("upload csv: %w", err)
	}

	log.Printf("[letterboxd] import submitted")
	return nil
}

func (i *Importer) failAll(records []models.WatchRecord, err error) []models.ImportResult {
	results := make([]models.ImportResult, 0, len(records))
	for _, r := range records {
		results = append(results, models.ImportResult{IMDBID: r.IMDBID, Title: r.Title, Err: err})
	}
	return results
}
