package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mycosphaera/fungarium/internal/utils"
	"github.com/mycosphaera/fungarium/pkg/dedupe"
	"github.com/mycosphaera/fungarium/pkg/importer"
	"github.com/mycosphaera/fungarium/pkg/observation"
)

// importCmd represents the import command
var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import observations into the fungarium",
	Long: `Fetches matching observations, skips the ones already present in the
destination and imports the rest one by one. A record that fails to import
never stops the batch.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := setupProxy(); err != nil {
			return err
		}
		ctx := cmd.Context()

		store, closeStore, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer closeStore()

		if local, _ := cmd.Flags().GetBool("local"); local {
			dbPath, _ := cmd.Flags().GetString("dbpath")
			lock, err := utils.NewDBLock(dbPath)
			if err != nil {
				return err
			}
			if err := lock.Lock(); err != nil {
				return err
			}
			defer lock.Unlock()
		}

		raws, _, err := fetchObservations(ctx, cmd)
		if err != nil {
			return err
		}
		if len(raws) == 0 {
			fmt.Println("Nothing to import.")
			return nil
		}

		schema, err := store.ResolveSchema(ctx)
		if err != nil {
			return err
		}

		// Skip records already present unless told otherwise.
		force, _ := cmd.Flags().GetBool("force")
		if !force {
			ids := make([]int64, 0, len(raws))
			for _, raw := range raws {
				ids = append(ids, raw.ID)
			}
			dups, err := dedupe.Find(ctx, store, dedupe.DiscoverURLFields(schema), ids)
			if err != nil {
				return err
			}
			kept := raws[:0]
			for _, raw := range raws {
				if dups[raw.ID] {
					utils.Log.Info("already imported, skipping observation ", raw.ID)
					continue
				}
				kept = append(kept, raw)
			}
			raws = kept
		}

		recs := make([]observation.Record, 0, len(raws))
		for _, raw := range raws {
			recs = append(recs, observation.Normalize(raw))
		}

		if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
			for _, rec := range recs {
				fmt.Printf("would import %d\t%s\t%s\n", rec.ID, rec.DisplayDate(), rec.SciName)
			}
			fmt.Printf("%d observations would be imported\n", len(recs))
			return nil
		}

		gpsAsText, _ := cmd.Flags().GetBool("gps-text")
		skipQR, _ := cmd.Flags().GetBool("skip-qr")
		opts := importer.Options{
			GPSAsText:  gpsAsText,
			SkipQRCode: skipQR,
			Progress: func(done, total int) {
				fmt.Fprintf(os.Stderr, "\r%d/%d", done, total)
				if done == total {
					fmt.Fprintln(os.Stderr)
				}
			},
		}

		exec, err := importer.New(store, schema, importer.DefaultFieldMap(), opts)
		if err != nil {
			return err
		}

		report := exec.Run(ctx, recs)
		fmt.Println(report.Summary())
		for _, o := range report.FailedOutcomes() {
			fmt.Printf("  failed %d (%s): %s\n", o.ObservationID, o.SciName, o.FailReason)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
	addQueryFlags(importCmd)
	addStoreFlags(importCmd)
	importCmd.Flags().Bool("force", false, "Import even when a record already exists in the destination")
	importCmd.Flags().Bool("dry-run", false, "List what would be imported without writing anything")
	importCmd.Flags().Bool("gps-text", false, "Write GPS coordinates into text fields instead of number fields")
	importCmd.Flags().Bool("skip-qr", false, "Skip the QR code follow-up write")
}
