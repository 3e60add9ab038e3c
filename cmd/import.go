package cmd

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/louiscrc/trakt-to-letterboxd/services/history"
	"github.com/louiscrc/trakt-to-letterboxd/services/letterboxd"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Re-upload the existing export.csv to Letterboxd",
	Long: `Uploads the export file from the last sync without fetching or
reconciling anything. Useful after a failed import: the reconciliation was
already saved, only the upload needs to be retried.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, settings, err := loadSettings()
		if err != nil {
			return err
		}

		store, err := history.NewStore(afero.NewOsFs(), settings.Sync.CSVDirectory)
		if err != nil {
			return err
		}

		records, err := store.LoadExport()
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("Nothing to import: export.csv is missing or empty")
			return nil
		}

		importer := letterboxd.NewImporter(
			settings.Letterboxd.Username,
			settings.Letterboxd.Password,
			settings.Letterboxd.Headless,
			store.ExportPath(),
		)

		results, err := importer.ImportRecords(cmd.Context(), records)
		if err != nil {
			return err
		}

		imported := 0
		for _, res := range results {
			if res.Err == nil {
				imported++
			}
		}
		fmt.Printf("Imported %d of %d records\n", imported, len(records))
		return nil
	},
}

func init() {
	RootCmd.AddCommand(importCmd)
}
