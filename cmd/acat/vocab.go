package main

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/franz/audio-catalog/internal/catalog"
	"github.com/franz/audio-catalog/internal/session"
	"github.com/franz/audio-catalog/internal/util"
)

var vocabCmd = &cobra.Command{
	Use:   "vocab",
	Short: "Show and edit the tag vocabulary, scales and aliases",
}

var vocabShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show roles, tag groups, scales and aliases",
	RunE:  runVocabShow,
}

var vocabRoleCmd = &cobra.Command{
	Use:   "role",
	Short: "Primary roles",
}

var vocabTagCmd = &cobra.Command{
	Use:   "tag",
	Short: "Tag values",
}

var vocabGroupCmd = &cobra.Command{
	Use:   "group",
	Short: "Tag groups",
}

var vocabScaleCmd = &cobra.Command{
	Use:   "scale",
	Short: "Numeric scales",
}

var vocabAliasCmd = &cobra.Command{
	Use:   "alias",
	Short: "Tag aliases",
}

func init() {
	vocabShowCmd.Flags().Bool("json", false, "Print the vocabulary as JSON")

	vocabRoleCmd.AddCommand(&cobra.Command{
		Use:   "add <role>",
		Short: "Add a primary role",
		Args:  cobra.ExactArgs(1),
		RunE: withSession(func(cmd *cobra.Command, s *session.Session, args []string) error {
			added, err := s.AddPrimaryRole(args[0])
			if err != nil {
				return err
			}
			reportAdded(added, "role", args[0])
			return nil
		}),
	})

	vocabTagCmd.AddCommand(&cobra.Command{
		Use:   "add <group> <value>",
		Short: "Add a value to a tag group, creating the group if needed",
		Args:  cobra.ExactArgs(2),
		RunE: withSession(func(cmd *cobra.Command, s *session.Session, args []string) error {
			added, err := s.AddTagValue(args[0], args[1])
			if err != nil {
				return err
			}
			reportAdded(added, "tag", args[0]+"/"+args[1])
			return nil
		}),
	})
	vocabTagCmd.AddCommand(&cobra.Command{
		Use:   "delete <group> <value>",
		Short: "Remove a value from a tag group and from every track",
		Args:  cobra.ExactArgs(2),
		RunE: withSession(func(cmd *cobra.Command, s *session.Session, args []string) error {
			fromVocab, fromTracks, err := s.DeleteTagValue(args[0], args[1])
			if err != nil {
				return err
			}
			if fromVocab == 0 && fromTracks == 0 {
				util.InfoLog("Tag %s/%s not in use", args[0], args[1])
				return nil
			}
			util.SuccessLog("Removed %s/%s (vocabulary: %d, tracks: %d)", args[0], args[1], fromVocab, fromTracks)
			return nil
		}),
	})

	vocabGroupCmd.AddCommand(&cobra.Command{
		Use:   "add <group>",
		Short: "Add an empty tag group",
		Args:  cobra.ExactArgs(1),
		RunE: withSession(func(cmd *cobra.Command, s *session.Session, args []string) error {
			added, err := s.AddTagGroup(args[0])
			if err != nil {
				return err
			}
			reportAdded(added, "group", args[0])
			return nil
		}),
	})
	vocabGroupCmd.AddCommand(&cobra.Command{
		Use:   "delete <group>",
		Short: "Delete a tag group and its assignments",
		Args:  cobra.ExactArgs(1),
		RunE: withSession(func(cmd *cobra.Command, s *session.Session, args []string) error {
			n, err := s.DeleteTagGroup(args[0])
			if err != nil {
				return err
			}
			util.SuccessLog("Deleted group %s (%d tracks had assignments)", args[0], n)
			return nil
		}),
	})

	scaleAddCmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Define a scale; every track is clamped into it",
		Args:  cobra.ExactArgs(1),
		RunE: withSession(func(cmd *cobra.Command, s *session.Session, args []string) error {
			lo, _ := cmd.Flags().GetInt("min")
			hi, _ := cmd.Flags().GetInt("max")
			def := intFlag(cmd, "default")
			if err := s.AddScale(args[0], lo, hi, def); err != nil {
				return err
			}
			util.SuccessLog("Scale %s ready", args[0])
			return nil
		}),
	}
	scaleAddCmd.Flags().Int("min", 0, "Lowest value")
	scaleAddCmd.Flags().Int("max", 5, "Highest value")
	scaleAddCmd.Flags().Int("default", 0, "Value for tracks without one (default min)")

	scaleUpdateCmd := &cobra.Command{
		Use:   "update <name>",
		Short: "Change the bounds or default of a scale",
		Args:  cobra.ExactArgs(1),
		RunE: withSession(func(cmd *cobra.Command, s *session.Session, args []string) error {
			upd := catalog.ScaleUpdate{
				Min:     intFlag(cmd, "min"),
				Max:     intFlag(cmd, "max"),
				Default: intFlag(cmd, "default"),
			}
			if upd.Min == nil && upd.Max == nil && upd.Default == nil {
				return fmt.Errorf("%w: nothing to update (use --min, --max or --default)", util.ErrInvalidID)
			}
			if err := s.UpdateScale(args[0], upd); err != nil {
				return err
			}
			util.SuccessLog("Scale %s updated", args[0])
			return nil
		}),
	}
	scaleUpdateCmd.Flags().Int("min", 0, "Lowest value")
	scaleUpdateCmd.Flags().Int("max", 0, "Highest value")
	scaleUpdateCmd.Flags().Int("default", 0, "Default value")

	vocabScaleCmd.AddCommand(scaleAddCmd)
	vocabScaleCmd.AddCommand(scaleUpdateCmd)
	vocabScaleCmd.AddCommand(&cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a scale and its values on every track",
		Args:  cobra.ExactArgs(1),
		RunE: withSession(func(cmd *cobra.Command, s *session.Session, args []string) error {
			n, err := s.DeleteScale(args[0])
			if err != nil {
				return err
			}
			util.SuccessLog("Deleted scale %s (%d tracks had values)", args[0], n)
			return nil
		}),
	})

	vocabAliasCmd.AddCommand(&cobra.Command{
		Use:   "set <alias> <canonical>",
		Short: "Map a tag token to its canonical value",
		Args:  cobra.ExactArgs(2),
		RunE: withSession(func(cmd *cobra.Command, s *session.Session, args []string) error {
			if err := s.SetAlias(args[0], args[1]); err != nil {
				return err
			}
			util.SuccessLog("Alias %s -> %s", strings.ToLower(strings.TrimSpace(args[0])), strings.TrimSpace(args[1]))
			return nil
		}),
	})

	vocabCmd.AddCommand(vocabShowCmd)
	vocabCmd.AddCommand(vocabRoleCmd)
	vocabCmd.AddCommand(vocabTagCmd)
	vocabCmd.AddCommand(vocabGroupCmd)
	vocabCmd.AddCommand(vocabScaleCmd)
	vocabCmd.AddCommand(vocabAliasCmd)
	rootCmd.AddCommand(vocabCmd)
}

// withSession opens a session around a command body
func withSession(fn func(cmd *cobra.Command, s *session.Session, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		s, err := openSession(context.Background())
		if err != nil {
			return err
		}
		defer s.Close()
		return fn(cmd, s, args)
	}
}

// intFlag returns the flag value only when it was given
func intFlag(cmd *cobra.Command, name string) *int {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, _ := cmd.Flags().GetInt(name)
	return &v
}

func reportAdded(added bool, kind, name string) {
	if added {
		util.SuccessLog("Added %s %s", kind, name)
	} else {
		util.InfoLog("%s %s already exists", strings.ToUpper(kind[:1])+kind[1:], name)
	}
}

func runVocabShow(cmd *cobra.Command, args []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")

	s, err := openSession(context.Background())
	if err != nil {
		return err
	}
	defer s.Close()

	v, aliases, err := s.Vocab()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON {
		return writeJSON(out, struct {
			Vocab   catalog.Vocab     `json:"vocab"`
			Aliases map[string]string `json:"aliases"`
		}{v, aliases})
	}

	fmt.Fprintf(out, "Primary roles: %s\n\n", strings.Join(v.PrimaryRoles, ", "))

	groupRows := make([][]string, 0, len(v.TagVocab))
	for _, g := range v.Groups() {
		name := g
		if catalog.IsProtectedGroup(g) {
			name += " *"
		}
		groupRows = append(groupRows, []string{name, fmt.Sprint(len(v.TagVocab[g])), strings.Join(v.TagVocab[g], ", ")})
	}
	fmt.Fprintln(out, renderTable([]string{"Group", "Values", "Allowed"}, groupRows, []columnAlignment{alignLeft, alignRight}))
	fmt.Fprintln(out, "* protected, used by virtual keys")
	fmt.Fprintln(out)

	scaleRows := make([][]string, 0, len(v.ScaleDefs))
	for _, name := range v.OrderedScales() {
		d := v.ScaleDefs[name]
		lo, hi := d.Bounds()
		scaleRows = append(scaleRows, []string{name, fmt.Sprint(lo), fmt.Sprint(hi), fmt.Sprint(d.Default)})
	}
	fmt.Fprintln(out, renderTable([]string{"Scale", "Min", "Max", "Default"}, scaleRows, []columnAlignment{alignLeft, alignRight, alignRight, alignRight}))

	if len(aliases) > 0 {
		fmt.Fprintln(out)
		keys := make([]string, 0, len(aliases))
		for k := range aliases {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		aliasRows := make([][]string, 0, len(keys))
		for _, k := range keys {
			aliasRows = append(aliasRows, []string{k, aliases[k]})
		}
		fmt.Fprintln(out, renderTable([]string{"Alias", "Canonical"}, aliasRows, nil))
	}
	return nil
}
