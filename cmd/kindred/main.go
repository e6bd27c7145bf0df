// Kindred CLI - validate typesystem manifests and work with stored records.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"

	_ "github.com/tliron/commonlog/simple"
)

var verbosity int

var rootCmd = &cobra.Command{
	Use:   "kindred",
	Short: "Polymorphic dispatch and type-coercion toolkit",
	Long: `Kindred works with typesystem manifests (kindred.toml) and the
structured records they govern: validating manifests, snapshotting the
registries they build, and reconciling records against each other.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		commonlog.Configure(verbosity, nil)
	},
}

func main() {
	rootCmd.PersistentFlags().IntVarP(&verbosity, "verbose", "v", 0, "log verbosity")
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(mergeCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
