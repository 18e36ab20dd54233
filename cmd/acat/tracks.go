package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/franz/audio-catalog/internal/catalog"
	"github.com/franz/audio-catalog/internal/probe"
	"github.com/franz/audio-catalog/internal/util"
)

var tracksCmd = &cobra.Command{
	Use:     "tracks",
	Aliases: []string{"track"},
	Short:   "List, inspect and edit catalog tracks",
}

var tracksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracks",
	RunE:  runTracksList,
}

var tracksShowCmd = &cobra.Command{
	Use:   "show <track-id>",
	Short: "Print one track record as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runTracksShow,
}

var tracksUpdateCmd = &cobra.Command{
	Use:   "update <track-id>",
	Short: "Replace a track record with a JSON document",
	Long: `Replace a track record with a JSON document read from --file or stdin.

The track id cannot change. The virtual key must be non-empty and unique.
Tags and scales are normalized against the vocabulary before saving.`,
	Args: cobra.ExactArgs(1),
	RunE: runTracksUpdate,
}

var tracksSetKeyCmd = &cobra.Command{
	Use:   "set-key <track-id> <virtual-key>",
	Short: "Assign an explicit virtual key",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := catalog.ParseID(args[0])
		if err != nil {
			return err
		}
		return editTrackKey(cmd, id, func(ctx context.Context, sess keyEditor) (*catalog.Track, error) {
			return sess.SetVirtualKey(id, args[1])
		})
	},
}

var tracksRebuildKeyCmd = &cobra.Command{
	Use:   "rebuild-key <track-id>",
	Short: "Derive a fresh virtual key from the track's identity tags",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := catalog.ParseID(args[0])
		if err != nil {
			return err
		}
		return editTrackKey(cmd, id, func(ctx context.Context, sess keyEditor) (*catalog.Track, error) {
			return sess.RebuildVirtualKey(id)
		})
	},
}

var tracksDeleteCmd = &cobra.Command{
	Use:   "delete <track-id>",
	Short: "Remove a track from the catalog",
	Long: `Remove a track record. The audio file itself is never touched.

Tracks marked as duplicates of the removed track lose their link. An
emptied cluster is kept.`,
	Args: cobra.ExactArgs(1),
	RunE: runTracksDelete,
}

var tracksLocateCmd = &cobra.Command{
	Use:   "locate <track-id> <path>",
	Short: "Relink a track to a file by hand",
	Long: `Point a track at a file under the raw music directory.

The path may be absolute or relative to the raw directory. It must exist,
stay inside the raw directory and not belong to another track. The
fingerprint, format and duration are recomputed.`,
	Args: cobra.ExactArgs(2),
	RunE: runTracksLocate,
}

var tracksInspectCmd = &cobra.Command{
	Use:   "inspect <track-id>",
	Short: "Show the tags embedded in a track's audio file",
	Args:  cobra.ExactArgs(1),
	RunE:  runTracksInspect,
}

func init() {
	tracksListCmd.Flags().Bool("missing", false, "Only tracks whose file is missing")
	tracksListCmd.Flags().Bool("duplicates", false, "Only tracks that duplicate another track")
	tracksListCmd.Flags().String("cluster", "", "Only tracks of this cluster")
	tracksListCmd.Flags().Bool("json", false, "Print records as JSON")

	tracksUpdateCmd.Flags().StringP("file", "f", "", "Read the record from this file instead of stdin")

	tracksCmd.AddCommand(tracksListCmd)
	tracksCmd.AddCommand(tracksShowCmd)
	tracksCmd.AddCommand(tracksUpdateCmd)
	tracksCmd.AddCommand(tracksSetKeyCmd)
	tracksCmd.AddCommand(tracksRebuildKeyCmd)
	tracksCmd.AddCommand(tracksDeleteCmd)
	tracksCmd.AddCommand(tracksLocateCmd)
	tracksCmd.AddCommand(tracksInspectCmd)
	rootCmd.AddCommand(tracksCmd)
}

// trackFilter selects tracks for listing
type trackFilter struct {
	missing    bool
	duplicates bool
	cluster    uuid.UUID
}

func (f trackFilter) match(t *catalog.Track) bool {
	if f.missing && !t.MissingFile {
		return false
	}
	if f.duplicates && t.DuplicateOf == nil {
		return false
	}
	if f.cluster != uuid.Nil && t.ClusterID != f.cluster {
		return false
	}
	return true
}

// selectTracks returns matching tracks sorted by virtual key
func selectTracks(c *catalog.Catalog, f trackFilter) []*catalog.Track {
	var out []*catalog.Track
	for _, t := range c.Tracks {
		if f.match(t) {
			out = append(out, t)
		}
	}
	slices.SortFunc(out, func(a, b *catalog.Track) int {
		return strings.Compare(a.VirtualKey, b.VirtualKey)
	})
	return out
}

func runTracksList(cmd *cobra.Command, args []string) error {
	var f trackFilter
	f.missing, _ = cmd.Flags().GetBool("missing")
	f.duplicates, _ = cmd.Flags().GetBool("duplicates")
	asJSON, _ := cmd.Flags().GetBool("json")
	if raw, _ := cmd.Flags().GetString("cluster"); raw != "" {
		id, err := catalog.ParseID(raw)
		if err != nil {
			return err
		}
		f.cluster = id
	}

	s, err := openSession(context.Background())
	if err != nil {
		return err
	}
	defer s.Close()

	out := cmd.OutOrStdout()
	return s.View(func(c *catalog.Catalog) error {
		tracks := selectTracks(c, f)
		if asJSON {
			if tracks == nil {
				tracks = []*catalog.Track{}
			}
			return writeJSON(out, tracks)
		}
		if len(tracks) == 0 {
			util.InfoLog("No tracks match")
			return nil
		}

		rows := make([][]string, 0, len(tracks))
		for _, t := range tracks {
			rows = append(rows, []string{
				t.TrackID.String(),
				t.VirtualKey,
				t.OriginalPath,
				trackState(t),
			})
		}
		fmt.Fprintln(out, renderTable([]string{"ID", "Virtual Key", "Path", "State"}, rows, nil))
		fmt.Fprintf(out, "%d of %d tracks\n", len(tracks), len(c.Tracks))
		return nil
	})
}

func trackState(t *catalog.Track) string {
	var parts []string
	if t.MissingFile {
		parts = append(parts, "missing")
	}
	if t.DuplicateOf != nil {
		parts = append(parts, "dup of "+shortID(t.DuplicateOf))
	}
	if len(parts) == 0 {
		return "ok"
	}
	return strings.Join(parts, ", ")
}

func runTracksShow(cmd *cobra.Command, args []string) error {
	id, err := catalog.ParseID(args[0])
	if err != nil {
		return err
	}

	s, err := openSession(context.Background())
	if err != nil {
		return err
	}
	defer s.Close()

	t, err := s.Track(id)
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), t)
}

func runTracksUpdate(cmd *cobra.Command, args []string) error {
	id, err := catalog.ParseID(args[0])
	if err != nil {
		return err
	}

	var doc []byte
	if path, _ := cmd.Flags().GetString("file"); path != "" {
		doc, err = os.ReadFile(path)
	} else {
		doc, err = io.ReadAll(cmd.InOrStdin())
	}
	if err != nil {
		return fmt.Errorf("read track record: %w", err)
	}

	s, err := openSession(context.Background())
	if err != nil {
		return err
	}
	defer s.Close()

	t, err := s.ReplaceTrack(id, doc)
	if err != nil {
		return err
	}
	util.SuccessLog("Updated %s", t.VirtualKey)
	return writeJSON(cmd.OutOrStdout(), t)
}

// keyEditor is the part of a session that edits virtual keys
type keyEditor interface {
	SetVirtualKey(id uuid.UUID, key string) (*catalog.Track, error)
	RebuildVirtualKey(id uuid.UUID) (*catalog.Track, error)
}

func editTrackKey(cmd *cobra.Command, id uuid.UUID, edit func(ctx context.Context, sess keyEditor) (*catalog.Track, error)) error {
	ctx := context.Background()
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	before, err := s.Track(id)
	if err != nil {
		return err
	}
	t, err := edit(ctx, s)
	if err != nil {
		return err
	}
	if before.VirtualKey == t.VirtualKey {
		util.InfoLog("Virtual key unchanged: %s", t.VirtualKey)
	} else {
		util.SuccessLog("Virtual key %s -> %s", before.VirtualKey, t.VirtualKey)
	}
	fmt.Fprintln(cmd.OutOrStdout(), t.VirtualKey)
	return nil
}

func runTracksDelete(cmd *cobra.Command, args []string) error {
	id, err := catalog.ParseID(args[0])
	if err != nil {
		return err
	}

	s, err := openSession(context.Background())
	if err != nil {
		return err
	}
	defer s.Close()

	removed, cleared, err := s.DeleteTrack(id)
	if err != nil {
		return err
	}
	util.SuccessLog("Deleted %s (%s)", removed.VirtualKey, removed.OriginalPath)
	if cleared > 0 {
		util.InfoLog("Cleared %d duplicate links", cleared)
	}
	return nil
}

func runTracksLocate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	id, err := catalog.ParseID(args[0])
	if err != nil {
		return err
	}

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	t, err := s.Locate(ctx, id, args[1])
	if err != nil {
		return err
	}
	util.SuccessLog("Relinked %s to %s", t.VirtualKey, t.OriginalPath)
	return writeJSON(cmd.OutOrStdout(), t)
}

func runTracksInspect(cmd *cobra.Command, args []string) error {
	id, err := catalog.ParseID(args[0])
	if err != nil {
		return err
	}

	s, err := openSession(context.Background())
	if err != nil {
		return err
	}
	defer s.Close()

	t, err := s.Track(id)
	if err != nil {
		return err
	}
	path, err := s.ResolvePath(id)
	if err != nil {
		return err
	}
	if t.MissingFile {
		return fmt.Errorf("file of %s is missing: %s: %w", t.VirtualKey, t.OriginalPath, util.ErrNotFound)
	}

	tags, err := probe.ReadTags(path)
	if err != nil {
		return err
	}

	rows := [][]string{
		{"Track", t.VirtualKey},
		{"Path", t.OriginalPath},
		{"Format", tags.Format},
		{"File type", tags.FileType},
		{"Title", tags.Title},
		{"Artist", tags.Artist},
		{"Album", tags.Album},
		{"Album artist", tags.AlbumArtist},
		{"Composer", tags.Composer},
		{"Genre", tags.Genre},
	}
	if tags.Year > 0 {
		rows = append(rows, []string{"Year", fmt.Sprint(tags.Year)})
	}
	if tags.Track > 0 {
		rows = append(rows, []string{"Track no.", fmt.Sprintf("%d/%d", tags.Track, tags.TrackTotal)})
	}
	if tags.Comment != "" {
		rows = append(rows, []string{"Comment", tags.Comment})
	}
	if t.LengthSec != nil {
		rows = append(rows, []string{"Length", (time.Duration(*t.LengthSec * float64(time.Second))).Round(time.Second).String()})
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Field", "Value"}, rows, nil))
	return nil
}
