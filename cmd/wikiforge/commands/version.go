package commands

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/forgedocs/wikiforge/version"
)

// VersionCmd prints version information
var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		pterm.Printf("wikiforge %s\n", version.Get())
	},
}
