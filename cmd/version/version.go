package version

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sidkik/replisync/pkg/version"
)

// New creates a new `version` command.
func New() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version of replisync.",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("replisync version: %s\n", version.Version)
		},
	}
}
