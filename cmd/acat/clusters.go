package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/franz/audio-catalog/internal/catalog"
	"github.com/franz/audio-catalog/internal/util"
)

var clustersCmd = &cobra.Command{
	Use:     "clusters",
	Aliases: []string{"cluster"},
	Short:   "List, merge and split clusters of track variants",
}

var clustersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List clusters with their size and representative identity",
	RunE:  runClustersList,
}

var clustersMergeCmd = &cobra.Command{
	Use:   "merge <target-cluster> <source-cluster>",
	Short: "Move every track of the source cluster into the target",
	Long: `Merge the source cluster into the target cluster.

Moved tracks take tempo, scales, tags and licensing from the target's first
track. Every track of the target is then given a virtual key with the same
mood/context/instrument/style prefix. The source cluster is removed.`,
	Args: cobra.ExactArgs(2),
	RunE: runClustersMerge,
}

var clustersSplitCmd = &cobra.Command{
	Use:   "split <source-cluster> <track-id>...",
	Short: "Move some tracks of a cluster into a new cluster",
	Long: `Split the given tracks off into a new cluster. At least one track must
stay in the source cluster. Virtual keys are not changed.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runClustersSplit,
}

func init() {
	clustersListCmd.Flags().Bool("json", false, "Print clusters as JSON")
	clustersSplitCmd.Flags().StringP("name", "n", "", "Name of the new cluster (default \"<source name> (split)\")")

	clustersCmd.AddCommand(clustersListCmd)
	clustersCmd.AddCommand(clustersMergeCmd)
	clustersCmd.AddCommand(clustersSplitCmd)
	rootCmd.AddCommand(clustersCmd)
}

func runClustersList(cmd *cobra.Command, args []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")

	s, err := openSession(context.Background())
	if err != nil {
		return err
	}
	defer s.Close()

	infos, err := s.Clusters()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON {
		return writeJSON(out, infos)
	}

	rows := make([][]string, 0, len(infos))
	for _, info := range infos {
		rows = append(rows, []string{
			info.ClusterID.String(),
			info.Name,
			fmt.Sprint(info.TrackCount),
			info.Mood,
			info.Context,
			info.Instrument,
			info.Style,
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"ID", "Name", "Tracks", "Mood", "Context", "Instrument", "Style"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight},
	))
	return nil
}

func runClustersMerge(cmd *cobra.Command, args []string) error {
	ids, err := parseIDs(args)
	if err != nil {
		return err
	}

	s, err := openSession(context.Background())
	if err != nil {
		return err
	}
	defer s.Close()

	moved, err := s.Merge(ids[0], ids[1])
	if err != nil {
		return err
	}
	if moved == 0 {
		util.SuccessLog("Removed empty cluster %s", ids[1])
		return nil
	}
	util.SuccessLog("Merged %d tracks into %s", moved, ids[0])
	return nil
}

func runClustersSplit(cmd *cobra.Command, args []string) error {
	ids, err := parseIDs(args)
	if err != nil {
		return err
	}
	name, _ := cmd.Flags().GetString("name")

	s, err := openSession(context.Background())
	if err != nil {
		return err
	}
	defer s.Close()

	res, err := s.Split(ids[0], ids[1:], name)
	if err != nil {
		return err
	}

	var created string
	_ = s.View(func(c *catalog.Catalog) error {
		if cl := c.Cluster(res.ClusterID); cl != nil {
			created = cl.Name
		}
		return nil
	})
	util.SuccessLog("Moved %d tracks into %q", res.Moved, created)
	fmt.Fprintln(cmd.OutOrStdout(), res.ClusterID)
	return nil
}
