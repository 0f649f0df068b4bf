package cmd

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mycosphaera/fungarium/internal/server"
	"github.com/mycosphaera/fungarium/pkg/inat"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the browser UI",
	Long:  "Serves a small web interface for searching observations, reviewing a selection, checking duplicates and running imports. Each browser gets its own selection.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := setupProxy(); err != nil {
			return err
		}

		store, closeStore, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer closeStore()

		user, pass := "", ""
		if auth, _ := cmd.Flags().GetString("auth"); auth != "" {
			parts := strings.SplitN(auth, ":", 2)
			if len(parts) != 2 || parts[0] == "" {
				return errors.New("--auth must be user:password")
			}
			user, pass = parts[0], parts[1]
		}

		listenAddr, _ := cmd.Flags().GetString("listen")
		return server.New(inat.NewClient(), store, user, pass).Start(listenAddr)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	addStoreFlags(serveCmd)
	serveCmd.Flags().String("listen", "127.0.0.1:8080", "HTTP listen address")
	serveCmd.Flags().String("auth", "", "Protect the UI with basic auth (user:password)")
}
