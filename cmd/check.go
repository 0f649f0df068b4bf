package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mycosphaera/fungarium/pkg/dedupe"
	"github.com/mycosphaera/fungarium/pkg/observation"
)

// checkCmd represents the check command
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check which observations are already in the fungarium",
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

		raws, _, err := fetchObservations(ctx, cmd)
		if err != nil {
			return err
		}
		if len(raws) == 0 {
			fmt.Println("No observations matched.")
			return nil
		}

		schema, err := store.ResolveSchema(ctx)
		if err != nil {
			return err
		}

		ids := make([]int64, 0, len(raws))
		for _, raw := range raws {
			ids = append(ids, raw.ID)
		}
		dups, err := dedupe.Find(ctx, store, dedupe.DiscoverURLFields(schema), ids)
		if err != nil {
			return err
		}

		found := 0
		for _, raw := range raws {
			rec := observation.Normalize(raw)
			mark := "new"
			if dups[raw.ID] {
				mark = "already imported"
				found++
			}
			fmt.Printf("%d\t%s\t%s\t%s\n", rec.ID, rec.DisplayDate(), rec.SciName, mark)
		}
		fmt.Printf("\n%d of %d observations already in the destination\n", found, len(raws))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
	addQueryFlags(checkCmd)
	addStoreFlags(checkCmd)
}
