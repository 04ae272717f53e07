package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/54b3r/pdfrag-go/internal/version"
)

// NewVersionCmd constructs `pdfrag version`.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the pdfrag version, git commit and build date",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}
