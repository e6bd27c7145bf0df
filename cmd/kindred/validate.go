package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chazu/kindred/manifest"
)

var validateCmd = &cobra.Command{
	Use:   "validate [dir]",
	Short: "Validate a kindred.toml manifest and report what it builds",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := "."
		if len(args) == 1 {
			dir = args[0]
		}

		m, err := manifest.FindAndLoad(dir)
		if err != nil {
			return err
		}
		if m == nil {
			return fmt.Errorf("no %s found at or above %s", manifest.ManifestFile, dir)
		}

		e, err := manifest.Build(m)
		if err != nil {
			return err
		}

		fmt.Printf("%s: ok\n", m.Dir)
		fmt.Printf("  project:    %s %s\n", m.Project.Name, m.Project.Version)
		fmt.Printf("  tags:       %d\n", len(m.Tags))
		fmt.Printf("  edges:      %d\n", len(e.HierarchyEdges()))
		fmt.Printf("  unify:      %d\n", len(e.UnifyPairs()))
		fmt.Printf("  fills:      %d\n", len(e.FillTags()))
		return nil
	},
}
