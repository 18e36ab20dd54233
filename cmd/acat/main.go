package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/franz/audio-catalog/internal/util"
)

var (
	// Version is set at build time
	Version = "dev"

	cfgFile string

	rootCmd = &cobra.Command{
		Use:   "acat",
		Short: "Audio catalog - keep a JSON catalog of a raw music directory in sync",
		Long: `acat (Audio Catalog) maintains one JSON catalog describing every audio file
under a raw music directory. Files are recognized by content hash, so
renames, moves and in-place edits keep their catalog entry, and
byte-identical copies are linked to one canonical track.

Tracks carry tags from a controlled vocabulary, numeric scales and a
human-readable virtual key. Variants of the same piece are grouped in
clusters that can be merged and split.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			util.SetVerbose(viper.GetBool("verbose"))
			util.SetQuiet(viper.GetBool("quiet"))
		},
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./acat.toml or ./configs/acat.toml)")
	rootCmd.PersistentFlags().StringP("raw", "r", "", "raw music directory")
	rootCmd.PersistentFlags().StringP("catalog", "c", "", "catalog JSON file")
	rootCmd.PersistentFlags().String("history", "acat-history.db", "scan history database (empty disables history)")
	rootCmd.PersistentFlags().String("events-dir", "artifacts", "directory for JSONL event logs")
	rootCmd.PersistentFlags().Bool("probe", true, "probe audio durations with ffprobe")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "quiet output (errors only)")

	// Bind flags to viper
	viper.BindPFlag("raw", rootCmd.PersistentFlags().Lookup("raw"))
	viper.BindPFlag("catalog", rootCmd.PersistentFlags().Lookup("catalog"))
	viper.BindPFlag("history", rootCmd.PersistentFlags().Lookup("history"))
	viper.BindPFlag("events_dir", rootCmd.PersistentFlags().Lookup("events-dir"))
	viper.BindPFlag("probe", rootCmd.PersistentFlags().Lookup("probe"))
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
}

func initConfig() {
	// A missing .env is fine
	_ = godotenv.Load()

	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		// Search for config in common locations
		viper.AddConfigPath(".")
		viper.AddConfigPath("./configs")
		viper.SetConfigName("acat")
		viper.SetConfigType("toml")
	}

	// Read in environment variables that match
	viper.SetEnvPrefix("ACAT")
	viper.AllowEmptyEnv(true)
	viper.AutomaticEnv()

	// If a config file is found, read it in
	if err := viper.ReadInConfig(); err == nil && !viper.GetBool("quiet") {
		util.DebugLog("Using config file: %s", viper.ConfigFileUsed())
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}
