package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("lens %s\n", Version)
			fmt.Printf("  build date: %s\n", BuildDate)
			fmt.Printf("  git commit: %s\n", GitCommit)
		},
	}
}
