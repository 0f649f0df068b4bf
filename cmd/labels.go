package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mycosphaera/fungarium/pkg/labels"
	"github.com/mycosphaera/fungarium/pkg/observation"
)

// labelsCmd represents the labels command
var labelsCmd = &cobra.Command{
	Use:   "labels",
	Short: "Print specimen labels for matching observations",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := setupProxy(); err != nil {
			return err
		}

		raws, _, err := fetchObservations(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		if len(raws) == 0 {
			fmt.Println("No observations matched.")
			return nil
		}

		title, _ := cmd.Flags().GetString("title")
		if title == "" {
			title = viper.GetString("labels.title")
		}
		gps, _ := cmd.Flags().GetBool("gps")

		recs := make([]observation.Record, 0, len(raws))
		for _, raw := range raws {
			recs = append(recs, observation.Normalize(raw))
		}

		out := os.Stdout
		if path, _ := cmd.Flags().GetString("out"); path != "" {
			f, err := os.Create(path)
			if err != nil {
				return err
			}
			defer f.Close()
			out = f
		}

		sheet := labels.Build(recs, labels.Config{Title: title, IncludeCoordinates: gps})
		return labels.TextRenderer{}.Render(out, sheet)
	},
}

func init() {
	rootCmd.AddCommand(labelsCmd)
	addQueryFlags(labelsCmd)
	labelsCmd.Flags().String("title", "", "Label title (defaults to labels.title from the config file)")
	labelsCmd.Flags().Bool("gps", false, "Include GPS coordinates on each label")
	labelsCmd.Flags().StringP("out", "o", "", "Write labels to a file instead of stdout")
}
