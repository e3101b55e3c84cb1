package cli

import (
	"fmt"

	"github.com/pablasso/phasegate/internal/artifact"
	"github.com/spf13/cobra"
)

type cleanupOptions struct {
	*globalOptions
	maxAgeDays int
	task       string
}

func newCleanupCmd(g *globalOptions) *cobra.Command {
	opts := &cleanupOptions{globalOptions: g, maxAgeDays: -1}

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete validation artifacts that have not been accessed recently",
		Long: `Delete artifact files under artifact_dir whose last access is older than the
retention period. Use --task phase/task to limit cleanup to one task.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCleanup(cmd, opts)
		},
	}

	cmd.Flags().IntVar(&opts.maxAgeDays, "max-age-days", -1, "Retention in days (default artifact_max_age_days)")
	cmd.Flags().StringVar(&opts.task, "task", "", "Only clean the artifacts of this phase/task")
	return cmd
}

func runCleanup(cmd *cobra.Command, opts *cleanupOptions) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}

	days := cfg.ArtifactMaxAgeDays
	if cmd.Flags().Changed("max-age-days") {
		if opts.maxAgeDays < 0 {
			return fmt.Errorf("--max-age-days must not be negative")
		}
		days = opts.maxAgeDays
	}

	store := artifact.NewStore(cfg.ArtifactDir)

	var removed int
	if opts.task != "" {
		removed, err = store.Cleanup(opts.task, days)
	} else {
		removed, err = store.CleanupAll(days)
	}
	if err != nil {
		return fmt.Errorf("cleanup failed: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d artifact file(s) older than %d day(s) from %s\n", removed, days, store.Root())
	return nil
}
