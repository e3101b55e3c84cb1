package cli

import (
	"fmt"

	"github.com/pablasso/phasegate/internal/checklist"
	"github.com/pablasso/phasegate/internal/status"
	"github.com/spf13/cobra"
)

type resetOptions struct {
	*globalOptions
	checklist string
}

func newResetCmd(g *globalOptions) *cobra.Command {
	opts := &resetOptions{globalOptions: g}

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Forget the recorded progress of a checklist",
		Long: `Delete the status document of a checklist so the next run starts from the
first phase. Artifacts and the progress journal are kept. Refuses while a run of
the checklist holds its lock.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return resetChecklist(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.checklist, "checklist", "c", "", "Checklist name (file stem inside checklist_dir)")
	_ = cmd.MarkFlagRequired("checklist")
	return cmd
}

func resetChecklist(cmd *cobra.Command, opts *resetOptions) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}

	cl, err := checklist.Load(cfg.ChecklistDir, opts.checklist)
	if err != nil {
		return err
	}

	store := status.NewStore(cfg.StateDir)
	if !store.Exists(cl.ID) {
		fmt.Fprintf(cmd.OutOrStdout(), "No recorded progress for %s\n", cl.ID)
		return nil
	}

	lock := status.NewRunLock(store.Dir(), cl.ID)
	if err := lock.Acquire(); err != nil {
		return err
	}
	defer lock.Release()

	if err := store.Delete(cl.ID); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Reset progress of %s\n", cl.ID)
	return nil
}
