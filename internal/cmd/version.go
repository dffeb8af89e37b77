package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wethinkt/thinkt-live/internal/version"
)

const binaryName = "thinkt-live"

var versionJSON bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if !versionJSON {
			_, err := fmt.Fprintln(out, version.String(binaryName))
			return err
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(version.GetInfo(binaryName))
	},
}

func init() {
	versionCmd.Flags().BoolVar(&versionJSON, "json", false, "print name, version and revision as JSON")
}
