package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/viper"

	"github.com/franz/audio-catalog/internal/catalog"
	"github.com/franz/audio-catalog/internal/history"
	"github.com/franz/audio-catalog/internal/probe"
	"github.com/franz/audio-catalog/internal/report"
	"github.com/franz/audio-catalog/internal/scan"
	"github.com/franz/audio-catalog/internal/session"
	"github.com/franz/audio-catalog/internal/store"
	"github.com/franz/audio-catalog/internal/util"
)

// requirePaths returns the configured raw directory and catalog file
func requirePaths() (raw, catalogPath string, err error) {
	raw = GetConfigString("raw", "")
	catalogPath = GetConfigString("catalog", "")
	if raw == "" {
		return "", "", fmt.Errorf("%w: raw music directory is required (use --raw/-r, ACAT_RAW or set raw in acat.toml)", util.ErrInvalidID)
	}
	if catalogPath == "" {
		return "", "", fmt.Errorf("%w: catalog file is required (use --catalog/-c, ACAT_CATALOG or set catalog in acat.toml)", util.ErrInvalidID)
	}
	return raw, catalogPath, nil
}

// openStore builds the catalog store from configuration
func openStore() (*store.Store, error) {
	raw, catalogPath, err := requirePaths()
	if err != nil {
		return nil, err
	}

	return store.New(&store.Config{
		Path:     catalogPath,
		RawRoot:  raw,
		Probe:    probeFunc(),
		Progress: !viper.GetBool("quiet"),
	})
}

// probeFunc returns the ffprobe duration probe unless probing is disabled
func probeFunc() scan.ProbeFunc {
	if !GetConfigBool("probe") {
		return nil
	}
	return probe.DurationProbe()
}

// openSession opens the catalog with the configured ledger and event log.
// The catalog is created from a first scan when it does not exist.
func openSession(ctx context.Context) (*session.Session, error) {
	st, err := openStore()
	if err != nil {
		return nil, err
	}

	var ledger *history.Ledger
	if path := GetConfigString("history", ""); path != "" {
		ledger, err = history.Open(path)
		if err != nil {
			util.WarnLog("History disabled: %v", err)
			ledger = nil
		}
	}

	events := report.NullLogger()
	if dir := GetConfigString("events_dir", ""); dir != "" {
		logLevel := report.LevelInfo
		if viper.GetBool("quiet") {
			logLevel = report.LevelWarning
		} else if viper.GetBool("verbose") {
			logLevel = report.LevelDebug
		}
		if l, err := report.NewEventLogger(dir, logLevel); err != nil {
			util.WarnLog("Failed to create event logger: %v", err)
		} else {
			events = l
			util.DebugLog("Event log: %s", l.Path())
		}
	}

	s, err := session.Open(ctx, &session.Config{
		Store:  st,
		Ledger: ledger,
		Events: events,
		Probe:  probeFunc(),
	})
	if err != nil {
		if ledger != nil {
			ledger.Close()
		}
		events.Close()
		return nil, err
	}
	return s, nil
}

// parseIDs parses track or cluster identifiers
func parseIDs(args []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(args))
	for _, a := range args {
		id, err := catalog.ParseID(a)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := 0; i < columns; i++ {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	columnConfigs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		columnConfigs = append(columnConfigs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(columnConfigs)

	return tw.Render()
}

// shortID returns the first block of a uuid for table display
func shortID(id fmt.Stringer) string {
	s := id.String()
	if i := strings.IndexByte(s, '-'); i > 0 {
		return s[:i]
	}
	return s
}
