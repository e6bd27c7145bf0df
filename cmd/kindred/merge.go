package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chazu/kindred/dispatch"
	"github.com/chazu/kindred/manifest"
	"github.com/chazu/kindred/wire"
)

var (
	mergeManifestDir string
	mergeOut         string
)

func init() {
	mergeCmd.Flags().StringVarP(&mergeManifestDir, "manifest", "m", ".", "directory to search for kindred.toml")
	mergeCmd.Flags().StringVarP(&mergeOut, "out", "o", "", "write merged record to file instead of printing a summary")
}

var mergeCmd = &cobra.Command{
	Use:   "merge <record-a.cbor> <record-b.cbor>",
	Short: "Reconcile two CBOR record files under a manifest's type system",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := manifest.FindAndLoad(mergeManifestDir)
		if err != nil {
			return err
		}
		if m == nil {
			return fmt.Errorf("no %s found at or above %s", manifest.ManifestFile, mergeManifestDir)
		}
		e, err := manifest.Build(m)
		if err != nil {
			return err
		}

		ra, err := readRecord(args[0])
		if err != nil {
			return err
		}
		rb, err := readRecord(args[1])
		if err != nil {
			return err
		}

		merged, err := e.Reconcile(ra, rb)
		if err != nil {
			return err
		}

		if mergeOut != "" {
			data, err := wire.MarshalRecord(merged)
			if err != nil {
				return err
			}
			return os.WriteFile(mergeOut, data, 0o644)
		}

		fmt.Printf("merged: %d fields, %d rows\n", len(merged.Fields), merged.Rows())
		for _, f := range merged.Fields {
			fmt.Printf("  %-12s %s\n", f.Name, f.Chain)
		}
		return nil
	},
}

func readRecord(path string) (*dispatch.StructuredRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	rec, err := wire.UnmarshalRecord(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rec, nil
}
