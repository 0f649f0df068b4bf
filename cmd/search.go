package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mycosphaera/fungarium/pkg/observation"
)

// searchCmd represents the search command
var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search iNaturalist observations",
	Long:  "Fetches observation records from iNaturalist, merges multi-date results and prints them newest first.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := setupProxy(); err != nil {
			return err
		}

		raws, total, err := fetchObservations(cmd.Context(), cmd)
		if err != nil {
			return err
		}

		urls, _ := cmd.Flags().GetBool("urls")
		if urls {
			for _, raw := range raws {
				fmt.Println(observation.Normalize(raw).SourceURL)
			}
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tDATE\tSPECIES\tOBSERVER\tPLACE")
		for _, raw := range raws {
			rec := observation.Normalize(raw)
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", rec.ID, rec.DisplayDate(), rec.SciName, rec.ObserverName, rec.PlaceText)
		}
		w.Flush()

		fmt.Printf("\n%d observations shown (%d matched on iNaturalist)\n", len(raws), total)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(searchCmd)
	addQueryFlags(searchCmd)
	searchCmd.Flags().Bool("urls", false, "Only print observation URLs, one per line")
}
