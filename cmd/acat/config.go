package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/franz/audio-catalog/internal/util"
)

// GetConfigString retrieves a string config value with proper precedence:
// 1. Command-line flag (if set)
// 2. Environment variable (ACAT_*)
// 3. Config file
// 4. Default value
func GetConfigString(key string, defaultValue string) string {
	val := viper.GetString(key)
	if val == "" {
		return defaultValue
	}
	return val
}

// GetConfigBool retrieves a bool config value
func GetConfigBool(key string) bool {
	return viper.GetBool(key)
}

// fileConfig is the layout of acat.toml
type fileConfig struct {
	Raw       string `toml:"raw"`
	Catalog   string `toml:"catalog"`
	History   string `toml:"history,omitempty"`
	EventsDir string `toml:"events_dir,omitempty"`
	Probe     bool   `toml:"probe"`
}

// exitCode maps error kinds to process exit codes
func exitCode(err error) int {
	switch {
	case errors.Is(err, util.ErrInvalidID):
		return 2
	case errors.Is(err, util.ErrNotFound):
		return 3
	case errors.Is(err, util.ErrConflict):
		return 4
	case errors.Is(err, util.ErrInvalidCatalog):
		return 5
	default:
		return 1
	}
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration utilities",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with the raw directory and catalog paths",
	Long: `Write acat.toml with the two paths every command needs.

Paths are stored as absolute paths. Values not given as flags are taken
from the current configuration (environment, existing config file).`,
	RunE: runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if used := viper.ConfigFileUsed(); used != "" {
			fmt.Fprintf(out, "Config file: %s\n", used)
		} else {
			fmt.Fprintln(out, "Config file: (none)")
		}
		rows := [][]string{
			{"raw", GetConfigString("raw", "")},
			{"catalog", GetConfigString("catalog", "")},
			{"history", GetConfigString("history", "")},
			{"events_dir", GetConfigString("events_dir", "")},
			{"probe", fmt.Sprintf("%v", GetConfigBool("probe"))},
		}
		fmt.Fprintln(out, renderTable([]string{"Key", "Value"}, rows, nil))
		return nil
	},
}

func init() {
	configInitCmd.Flags().StringP("path", "p", "acat.toml", "Destination for the configuration file")
	configInitCmd.Flags().Bool("overwrite", false, "Overwrite existing configuration if present")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	target, _ := cmd.Flags().GetString("path")
	overwrite, _ := cmd.Flags().GetBool("overwrite")

	cfg := fileConfig{
		Raw:       GetConfigString("raw", ""),
		Catalog:   GetConfigString("catalog", ""),
		History:   GetConfigString("history", ""),
		EventsDir: GetConfigString("events_dir", ""),
		Probe:     GetConfigBool("probe"),
	}
	if cfg.Raw == "" || cfg.Catalog == "" {
		return fmt.Errorf("%w: both --raw and --catalog are required", util.ErrInvalidID)
	}
	for _, p := range []*string{&cfg.Raw, &cfg.Catalog} {
		abs, err := filepath.Abs(*p)
		if err != nil {
			return fmt.Errorf("resolve path %q: %w", *p, err)
		}
		*p = abs
	}

	if !overwrite {
		if _, err := os.Stat(target); err == nil {
			return fmt.Errorf("config file already exists at %s (use --overwrite to replace it): %w", target, util.ErrConflict)
		}
	}

	if err := writeConfig(target, &cfg); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Wrote configuration to %s\n", target)
	return nil
}

// writeConfig encodes cfg as TOML and replaces path atomically
func writeConfig(path string, cfg *fileConfig) error {
	var sb strings.Builder
	sb.WriteString("# acat configuration\n")
	enc := toml.NewEncoder(&sb)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config directory %q: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.WriteString(sb.String()); err != nil {
		tmp.Close()
		return fmt.Errorf("write config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close config: %w", err)
	}
	return util.RetryableRename(tmpName, path, util.DefaultRetryConfig())
}

// readConfig decodes a config file written by writeConfig
func readConfig(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg fileConfig
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &cfg, nil
}
