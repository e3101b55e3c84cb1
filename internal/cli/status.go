package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/pablasso/phasegate/internal/checklist"
	"github.com/pablasso/phasegate/internal/display"
	"github.com/pablasso/phasegate/internal/status"
	"github.com/spf13/cobra"
)

type statusOptions struct {
	*globalOptions
	checklist string
	watch     bool
}

func newStatusCmd(g *globalOptions) *cobra.Command {
	opts := &statusOptions{globalOptions: g}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the persisted status of a checklist",
		Long:  `Show every phase and task of a checklist with the status recorded by the last run.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return showStatus(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.checklist, "checklist", "c", "", "Checklist name (file stem inside checklist_dir)")
	cmd.Flags().BoolVarP(&opts.watch, "watch", "w", false, "Re-render whenever the status file changes")
	_ = cmd.MarkFlagRequired("checklist")
	return cmd
}

func showStatus(cmd *cobra.Command, opts *statusOptions) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}

	cl, err := checklist.Load(cfg.ChecklistDir, opts.checklist)
	if err != nil {
		return err
	}

	store := status.NewStore(cfg.StateDir)
	out := cmd.OutOrStdout()

	if err := renderStatus(out, cl, store); err != nil {
		return err
	}
	if !opts.watch {
		return nil
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	return watchStatus(ctx, out, cl, store)
}

func renderStatus(w io.Writer, cl *checklist.Checklist, store *status.Store) error {
	doc, err := store.Load(cl.ID)
	if err != nil {
		return err
	}
	doc.Reconcile(cl)
	_, err = fmt.Fprint(w, display.RenderStatus(cl, doc))
	return err
}

// watchStatus re-renders the report each time the status file is replaced
// or written, until ctx is done. The directory is watched because saves
// replace the file by rename.
func watchStatus(ctx context.Context, w io.Writer, cl *checklist.Checklist, store *status.Store) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	// Before the first run the state directory may not exist yet.
	if err := os.MkdirAll(store.Dir(), 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	if err := watcher.Add(store.Dir()); err != nil {
		return fmt.Errorf("failed to watch %s: %w", store.Dir(), err)
	}

	target := filepath.Clean(store.Path(cl.ID))
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			fmt.Fprint(w, "\033[H\033[2J")
			if err := renderStatus(w, cl, store); err != nil {
				fmt.Fprintf(w, "failed to read status: %v\n", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watch failed: %w", err)
		}
	}
}
