package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chazu/kindred/manifest"
	"github.com/chazu/kindred/wire"
)

var snapshotOut string

func init() {
	snapshotCmd.Flags().StringVarP(&snapshotOut, "out", "o", "", "write CBOR snapshot to file instead of printing")
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot [dir]",
	Short: "Capture the registry snapshot of a manifest-built engine",
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
		s := wire.CaptureSnapshot(e)

		if snapshotOut != "" {
			data, err := wire.MarshalSnapshot(s)
			if err != nil {
				return err
			}
			return os.WriteFile(snapshotOut, data, 0o644)
		}

		for _, edge := range s.Edges {
			fmt.Printf("edge    %s -> %s\n", edge.Child, edge.Parent)
		}
		for _, p := range s.UnifyPairs {
			fmt.Printf("unify   (%s, %s)\n", p.A, p.B)
		}
		for _, p := range s.ConvertPairs {
			fmt.Printf("convert (%s, %s)\n", p.A, p.B)
		}
		for _, tag := range s.Fills {
			fmt.Printf("fill    %s\n", tag)
		}
		return nil
	},
}
