package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lexhaven/vecsync/configs"
	"github.com/lexhaven/vecsync/internal/config"
)

func newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a sample configuration file",
		Long: `Write a commented vecsync.yaml into the current directory.

The sample documents every section: corpus source, chunking, embedding
provider, index provider, registry backend, pass tuning, eval, and
logging. Secrets stay out of the file; export PINECONE_API_KEY or
OPENAI_API_KEY in the environment or a .env file next to the config.`,
		Example: `  # Write vecsync.yaml
  vecsync init

  # Overwrite an existing config (the old one is backed up)
  vecsync init --force

  # Write to a different location
  vecsync init --config corpus/vecsync.yaml`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInit(cmd, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config, keeping a backup")

	return cmd
}

func runInit(cmd *cobra.Command, force bool) error {
	path := cfgPath
	if path == "" {
		path = "vecsync.yaml"
	}

	out := cmd.OutOrStdout()

	if fileExists(path) {
		if !force {
			return fmt.Errorf("%s already exists, use --force to overwrite", path)
		}
		backup, err := config.BackupConfig(path)
		if err != nil {
			return fmt.Errorf("failed to back up existing config: %w", err)
		}
		fmt.Fprintf(out, "Backed up existing config to %s\n", backup)
	}

	if err := os.WriteFile(path, []byte(configs.SampleConfig), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	fmt.Fprintf(out, "Wrote %s\n", path)
	fmt.Fprintln(out, "Point corpus.root at your documents, set PINECONE_API_KEY, then run 'vecsync reindex'.")
	return nil
}
