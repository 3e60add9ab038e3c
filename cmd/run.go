package cmd

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/louiscrc/trakt-to-letterboxd/config"
	"github.com/louiscrc/trakt-to-letterboxd/services/history"
	"github.com/louiscrc/trakt-to-letterboxd/services/letterboxd"
	syncsvc "github.com/louiscrc/trakt-to-letterboxd/services/sync"
	"github.com/louiscrc/trakt-to-letterboxd/services/trakt"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one sync from Trakt to Letterboxd",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgManager, settings, err := loadSettings()
		if err != nil {
			return err
		}

		pipeline, _, err := buildPipeline(cfgManager, settings)
		if err != nil {
			return err
		}

		summary, err := pipeline.Run(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("Synced %d movies, %d new, %d imported (%d failed)\n",
			summary.TotalMovies, summary.NewRecords, summary.Imported, summary.ImportFailed)
		return nil
	},
}

func init() {
	RootCmd.AddCommand(runCmd)
}

// buildPipeline wires the fetcher, store, engine, and importer from settings.
// The store is also returned for callers that read history back out.
func buildPipeline(cfgManager *config.Manager, settings config.Settings) (*syncsvc.Pipeline, *history.Store, error) {
	if settings.Trakt.ClientID == "" || settings.Trakt.ClientSecret == "" {
		return nil, nil, fmt.Errorf("trakt client credentials not configured in %s", cfgManager.Path())
	}

	client := trakt.NewClient(settings.Trakt.ClientID, settings.Trakt.ClientSecret)
	tokens := trakt.NewTokenSource(client, cfgManager)
	fetcher := trakt.NewFetcher(client, tokens)

	store, err := history.NewStore(afero.NewOsFs(), settings.Sync.CSVDirectory)
	if err != nil {
		return nil, nil, err
	}

	engine := syncsvc.NewEngine(
		syncsvc.NewConverter(settings.Sync.RatingScaleMax),
		syncsvc.Options{CollapseSameDayDuplicates: settings.Sync.CollapseSameDayDuplicates},
	)

	var importer syncsvc.Importer
	if !settings.Sync.SkipImport && settings.Letterboxd.Username != "" {
		importer = letterboxd.NewImporter(
			settings.Letterboxd.Username,
			settings.Letterboxd.Password,
			settings.Letterboxd.Headless,
			store.ExportPath(),
		)
	}

	return syncsvc.NewPipeline(fetcher, store, importer, engine, settings.Sync.FetchRetryAttempts), store, nil
}
