package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/franz/audio-catalog/internal/catalog"
	"github.com/franz/audio-catalog/internal/history"
	"github.com/franz/audio-catalog/internal/store"
	"github.com/franz/audio-catalog/internal/util"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks on the environment and configuration",
	Long: `Run diagnostic checks to ensure acat can operate correctly.

This command checks:
- ffprobe (optional, needed for track durations)
- SQLite version
- Config file syntax
- Raw music directory readability
- Catalog file parsing and schema validation
- History database integrity

Nothing is modified.`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

type checkResult struct {
	name    string
	message string
	error   bool
	warning bool
}

func runDoctor(cmd *cobra.Command, args []string) error {
	util.InfoLog("=== acat doctor ===")
	util.InfoLog("")

	results := []checkResult{
		checkFFprobe(),
		checkSQLite(),
	}
	if used := viper.ConfigFileUsed(); used != "" {
		results = append(results, checkConfigFile(used))
	}
	results = append(results,
		checkRawDirectory(GetConfigString("raw", "")),
		checkCatalog(GetConfigString("catalog", "")),
		checkHistory(GetConfigString("history", "")),
	)

	hasErrors := false
	hasWarnings := false

	for _, r := range results {
		symbol := "✓"
		if r.error {
			symbol = "✗"
			hasErrors = true
		} else if r.warning {
			symbol = "⚠"
			hasWarnings = true
		}

		line := fmt.Sprintf("[%s] %s", symbol, r.name)
		if r.message != "" {
			line += fmt.Sprintf(": %s", r.message)
		}

		if r.error {
			util.ErrorLog("%s", line)
		} else if r.warning {
			util.WarnLog("%s", line)
		} else {
			util.SuccessLog("%s", line)
		}
	}

	util.InfoLog("")
	if hasErrors {
		util.ErrorLog("Some checks failed. Resolve them before running acat.")
		return fmt.Errorf("system diagnostics failed")
	} else if hasWarnings {
		util.WarnLog("Some checks produced warnings.")
	} else {
		util.SuccessLog("All checks passed.")
	}
	return nil
}

// checkFFprobe reports the ffprobe version. Without it durations stay
// unknown, so a missing binary is only a warning.
func checkFFprobe() checkResult {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	output, err := exec.CommandContext(ctx, "ffprobe", "-version").CombinedOutput()
	if err != nil {
		return checkResult{
			name:    "ffprobe",
			warning: true,
			message: "not found (track durations will be unknown)",
		}
	}

	version := "unknown"
	if lines := strings.Split(string(output), "\n"); len(lines) > 0 {
		if parts := strings.Fields(lines[0]); len(parts) >= 3 {
			version = parts[2]
		}
	}
	return checkResult{
		name:    "ffprobe",
		message: fmt.Sprintf("version %s", version),
	}
}

func checkSQLite() checkResult {
	version := history.SQLiteVersion()
	if version == "" {
		return checkResult{
			name:    "SQLite",
			error:   true,
			message: "unable to determine version",
		}
	}
	return checkResult{
		name:    "SQLite",
		message: fmt.Sprintf("version %s (built-in)", version),
	}
}

// checkConfigFile verifies a TOML config file decodes
func checkConfigFile(path string) checkResult {
	if !strings.EqualFold(filepath.Ext(path), ".toml") {
		return checkResult{name: "Config file", message: path}
	}
	cfg, err := readConfig(path)
	if err != nil {
		return checkResult{
			name:    "Config file",
			error:   true,
			message: err.Error(),
		}
	}
	if cfg.Raw == "" || cfg.Catalog == "" {
		return checkResult{
			name:    "Config file",
			warning: true,
			message: fmt.Sprintf("%s does not set both raw and catalog", path),
		}
	}
	return checkResult{name: "Config file", message: path}
}

// checkRawDirectory verifies the raw music directory is readable
func checkRawDirectory(path string) checkResult {
	if path == "" {
		return checkResult{
			name:    "Raw directory",
			error:   true,
			message: "not configured (use --raw/-r, ACAT_RAW or acat.toml)",
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		return checkResult{
			name:    "Raw directory",
			error:   true,
			message: fmt.Sprintf("cannot access %s: %v", path, err),
		}
	}
	if !info.IsDir() {
		return checkResult{
			name:    "Raw directory",
			error:   true,
			message: fmt.Sprintf("%s is not a directory", path),
		}
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return checkResult{
			name:    "Raw directory",
			error:   true,
			message: fmt.Sprintf("cannot read %s: %v", path, err),
		}
	}
	return checkResult{
		name:    "Raw directory",
		message: fmt.Sprintf("%s (%d entries)", path, len(entries)),
	}
}

// checkCatalog parses and validates the catalog file without upgrading or
// saving it
func checkCatalog(path string) checkResult {
	if path == "" {
		return checkResult{
			name:    "Catalog",
			error:   true,
			message: "not configured (use --catalog/-c, ACAT_CATALOG or acat.toml)",
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return checkResult{
				name:    "Catalog",
				message: fmt.Sprintf("%s (will be created on first scan)", path),
			}
		}
		return checkResult{
			name:    "Catalog",
			error:   true,
			message: fmt.Sprintf("cannot read %s: %v", path, err),
		}
	}

	c, err := store.Decode(data)
	if err != nil {
		return checkResult{
			name:    "Catalog",
			error:   true,
			message: err.Error(),
		}
	}

	missing := 0
	for _, t := range c.Tracks {
		if t.MissingFile {
			missing++
		}
	}
	msg := fmt.Sprintf("%s (%s, schema %d, %d tracks, %d clusters)",
		path, humanize.IBytes(uint64(len(data))), c.SchemaVersion, len(c.Tracks), len(c.Clusters))
	var problems []string
	if dups := catalog.DuplicateKeys(c); dups > 0 {
		problems = append(problems, fmt.Sprintf("%d tracks with a duplicate virtual_key (re-keyed on next load)", dups))
	}
	if missing > 0 {
		problems = append(problems, fmt.Sprintf("%d tracks missing their file", missing))
	}
	if len(problems) > 0 {
		return checkResult{
			name:    "Catalog",
			warning: true,
			message: msg + ", " + strings.Join(problems, ", "),
		}
	}
	return checkResult{name: "Catalog", message: msg}
}

// checkHistory verifies the history database opens and passes an integrity
// check
func checkHistory(path string) checkResult {
	if path == "" {
		return checkResult{
			name:    "History",
			warning: true,
			message: "disabled",
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return checkResult{
				name:    "History",
				message: fmt.Sprintf("%s (will be created on first run)", path),
			}
		}
		return checkResult{
			name:    "History",
			error:   true,
			message: fmt.Sprintf("cannot access %s: %v", path, err),
		}
	}
	if !info.Mode().IsRegular() {
		return checkResult{
			name:    "History",
			error:   true,
			message: fmt.Sprintf("%s is not a regular file", path),
		}
	}

	ledger, err := history.Open(path)
	if err != nil {
		return checkResult{
			name:    "History",
			error:   true,
			message: fmt.Sprintf("cannot open %s: %v", path, err),
		}
	}
	defer ledger.Close()

	if err := ledger.CheckIntegrity(); err != nil {
		return checkResult{
			name:    "History",
			error:   true,
			message: fmt.Sprintf("integrity check failed: %v", err),
		}
	}

	runs, _ := ledger.RecentRuns(1)
	last := "no runs yet"
	if len(runs) > 0 {
		last = "last run " + humanize.Time(runs[0].StartedAt)
	}
	return checkResult{
		name:    "History",
		message: fmt.Sprintf("%s (%s, %s)", path, humanize.IBytes(uint64(info.Size())), last),
	}
}
