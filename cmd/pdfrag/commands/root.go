// Package commands defines the Cobra commands of the pdfrag binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/54b3r/pdfrag-go/internal/audit"
	"github.com/54b3r/pdfrag-go/internal/config"
	"github.com/54b3r/pdfrag-go/internal/logging"
)

// NewRootCmd constructs the root command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "pdfrag",
		Short: "Ask questions about your PDFs",
		Long: `pdfrag indexes PDF documents into a vector store and answers questions
about them with a chat model.

Two pipelines are available:
  simple      embeds raw chunks and answers each question on its own
  contextual  adds a generated summary to every chunk, rewrites follow-up
              questions using the conversation so far, and answers with
              that history

Model and embedding providers are selected with MODEL_PROVIDER and
EMBEDDING_PROVIDER, or a YAML config file (~/.pdfrag/config.yaml).`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			audit.LogCommandStart(log, cmd.Name(), path)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.pdfrag/config.yaml)")

	root.AddCommand(
		NewSimpleCmd(),
		NewContextualCmd(),
		NewServeCmd(),
		NewVersionCmd(),
	)

	return root
}
