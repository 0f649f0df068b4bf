package cmd

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// schemaCmd represents the schema command
var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the destination database schema",
	Long:  "Resolves the destination's fields and types, with the options of every select field. Useful for checking the field names the importer will look for.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := setupProxy(); err != nil {
			return err
		}

		store, closeStore, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer closeStore()

		schema, err := store.ResolveSchema(cmd.Context())
		if err != nil {
			return err
		}

		if schema.Title != "" {
			fmt.Printf("Database: %s\n\n", schema.Title)
		}

		names := make([]string, 0, len(schema.Fields))
		for name := range schema.Fields {
			names = append(names, name)
		}
		sort.Strings(names)

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "FIELD\tTYPE\tOPTIONS")
		for _, name := range names {
			f := schema.Fields[name]
			fmt.Fprintf(w, "%s\t%s\t%s\n", f.Name, f.Type, strings.Join(f.Options, ", "))
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(schemaCmd)
	addStoreFlags(schemaCmd)
}
