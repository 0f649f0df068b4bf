package cmd

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mycosphaera/fungarium/internal/utils"
	"github.com/mycosphaera/fungarium/pkg/destination"
	"github.com/mycosphaera/fungarium/pkg/inat"
	"github.com/mycosphaera/fungarium/pkg/notion"
	"github.com/mycosphaera/fungarium/pkg/observation"
	"github.com/mycosphaera/fungarium/pkg/storage"
	"github.com/mycosphaera/fungarium/pkg/whttp"
)

// addQueryFlags registers the shared iNaturalist search filters on a command.
func addQueryFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("user", "u", "", "iNaturalist username (defaults to inat.user from the config file)")
	cmd.Flags().StringP("taxon", "t", "", "Taxon ID (47170 = Fungi)")
	cmd.Flags().String("place", "", "Place ID")
	cmd.Flags().String("d1", "", "Start date (YYYY-MM-DD)")
	cmd.Flags().String("d2", "", "End date (YYYY-MM-DD)")
	cmd.Flags().String("on", "", "Exact observation date (YYYY-MM-DD)")
	cmd.Flags().StringSlice("dates", nil, "Specific dates, comma separated; one fetch per date")
	cmd.Flags().StringSlice("ids", nil, "Observation IDs, comma separated (ignores the other filters)")
	cmd.Flags().IntP("max", "m", 200, "Maximum number of observations to fetch")
}

func queryFromFlags(cmd *cobra.Command) (inat.Query, []string, int, error) {
	user, _ := cmd.Flags().GetString("user")
	if user == "" {
		user = viper.GetString("inat.user")
	}

	q := inat.Query{UserID: user}
	q.TaxonID, _ = cmd.Flags().GetString("taxon")
	q.PlaceID, _ = cmd.Flags().GetString("place")
	q.DateFrom, _ = cmd.Flags().GetString("d1")
	q.DateTo, _ = cmd.Flags().GetString("d2")
	q.On, _ = cmd.Flags().GetString("on")

	rawIDs, _ := cmd.Flags().GetStringSlice("ids")
	for _, s := range rawIDs {
		id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return inat.Query{}, nil, 0, errors.New("invalid observation ID: " + s)
		}
		q.IDs = append(q.IDs, id)
	}

	dates, _ := cmd.Flags().GetStringSlice("dates")
	max, _ := cmd.Flags().GetInt("max")

	if user == "" && q.TaxonID == "" && q.PlaceID == "" && len(q.IDs) == 0 {
		return inat.Query{}, nil, 0, errors.New("no search filter given: set -u/--user (or inat.user in the config), --taxon, --place or --ids")
	}
	return q, dates, max, nil
}

// fetchObservations runs the query, merges multi-date results and returns the
// deduplicated, date-sorted batch.
func fetchObservations(ctx context.Context, cmd *cobra.Command) ([]observation.Raw, int, error) {
	q, dates, max, err := queryFromFlags(cmd)
	if err != nil {
		return nil, 0, err
	}

	client := inat.NewClient()
	var (
		raws  []observation.Raw
		total int
	)
	if len(dates) > 0 {
		raws, total, err = client.FetchDates(ctx, q, dates, max)
	} else {
		raws, total, err = client.FetchAll(ctx, q, max)
	}
	if err != nil {
		return nil, 0, err
	}
	return inat.Aggregate(raws), total, nil
}

// addStoreFlags registers the destination selection flags.
func addStoreFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("local", false, "Use the local SQLite fungarium instead of Notion")
	cmd.Flags().String("dbpath", "", "Path to the local SQLite file (default ~/.config/fungarium/fungarium.sqlite)")
	cmd.Flags().String("token", "", "Notion integration token (defaults to notion.token from the config file)")
	cmd.Flags().String("database", "", "Notion database ID or URL (defaults to notion.database from the config file)")
}

// openStore picks the destination from flags/config. The returned closer is
// non-nil for the local store and must run after the command finishes.
func openStore(cmd *cobra.Command) (destination.Store, func(), error) {
	local, _ := cmd.Flags().GetBool("local")
	if local {
		dbPath, _ := cmd.Flags().GetString("dbpath")
		absPath, err := utils.GetAbsDBPath(dbPath)
		if err != nil {
			return nil, nil, err
		}
		if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
			return nil, nil, err
		}
		db, err := storage.Open(absPath)
		if err != nil {
			return nil, nil, err
		}
		return db, func() { db.Close() }, nil
	}

	token, _ := cmd.Flags().GetString("token")
	if token == "" {
		token = viper.GetString("notion.token")
	}
	database, _ := cmd.Flags().GetString("database")
	if database == "" {
		database = viper.GetString("notion.database")
	}
	if token == "" || database == "" {
		return nil, nil, errors.New("Notion is not configured: set notion.token and notion.database in ~/.fungarium.yaml, or pass --token/--database (or use --local)")
	}
	return notion.NewClient(token, database), func() {}, nil
}

// setupProxy applies the global --proxy flag to the shared HTTP client.
func setupProxy() error {
	proxy, _ := rootCmd.PersistentFlags().GetString("proxy")
	if proxy == "" {
		return nil
	}
	return whttp.SetupProxy(proxy)
}
