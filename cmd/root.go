package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/mycosphaera/fungarium/internal/utils"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

var cfgFile string

const (
	LOGO = `	  __                              _
	 / _|_   _ _ __   __ _  __ _ _ __(_)_   _ _ __ ___
	| |_| | | | '_ \ / _` + "`" + ` |/ _` + "`" + ` | '__| | | | | '_ ` + "`" + ` _ \
	|  _| |_| | | | | (_| | (_| | |  | | |_| | | | | | |
	|_|  \__,_|_| |_|\__, |\__,_|_|  |_|\__,_|_| |_| |_|
	                 |___/

`
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "fungarium",
	Short: "Import iNaturalist fungi observations into your fungarium database.",
	Long: LOGO + `fungarium searches iNaturalist observation records, detects the ones already
present in your Notion fungarium (or a local SQLite one), and imports the rest
with photos, GPS data and printable specimen labels.`,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.fungarium.yaml)")

	// Global flags
	rootCmd.PersistentFlags().StringP("proxy", "", "", "HTTP Proxy (Useful for debugging. Example: http://127.0.0.1:8080)")
	rootCmd.PersistentFlags().StringP("loglevel", "l", "info", "Set log level. Available: debug, info, warn, error, fatal")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		viper.AddConfigPath(home)
		viper.SetConfigName(".fungarium")
		viper.SetConfigType("yaml")
	}

	viper.AutomaticEnv()

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; create it with defaults.
			home, _ := homedir.Dir()
			configPath := home + "/.fungarium.yaml"
			if err := viper.SafeWriteConfigAs(configPath); err != nil {
				fmt.Printf("Error creating config file: %s", err)
			}
		}
	}

	// Set default empty values for all keys
	viper.SetDefault("notion.token", "")
	viper.SetDefault("notion.database", "")
	viper.SetDefault("inat.user", "")
	viper.SetDefault("labels.title", "")

	// Init log library
	levelString, _ := rootCmd.PersistentFlags().GetString("loglevel")
	utils.SetLogLevel(levelString)
}
