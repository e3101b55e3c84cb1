package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/pablasso/phasegate/internal/artifact"
	"github.com/pablasso/phasegate/internal/assistant"
	"github.com/pablasso/phasegate/internal/blocker"
	"github.com/pablasso/phasegate/internal/checklist"
	"github.com/pablasso/phasegate/internal/config"
	"github.com/pablasso/phasegate/internal/display"
	"github.com/pablasso/phasegate/internal/engine"
	"github.com/pablasso/phasegate/internal/logging"
	"github.com/pablasso/phasegate/internal/metrics"
	"github.com/pablasso/phasegate/internal/proc"
	"github.com/pablasso/phasegate/internal/status"
	"github.com/pablasso/phasegate/internal/tui"
	"github.com/pablasso/phasegate/internal/validation"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// tuiLogFile receives logs while the full-screen monitor owns the terminal.
const tuiLogFile = "phasegate.log"

type runOptions struct {
	*globalOptions
	checklist     string
	useTUI        bool
	blockedPolicy string
	metricsFile   string
}

func newRunCmd(g *globalOptions) *cobra.Command {
	opts := &runOptions{globalOptions: g}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a checklist (resumes unfinished phases)",
		Long: `Run every unfinished phase of a checklist in order. Completed tasks from a
previous run are skipped; anything left unfinished starts over. A phase that
failed its success gate runs all of its tasks again.

Exit status is 0 when the checklist completes and 1 when a task fails, a task is
blocked or the run is interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChecklist(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.checklist, "checklist", "c", "", "Checklist name (file stem inside checklist_dir)")
	cmd.Flags().BoolVar(&opts.useTUI, "tui", false, "Show the full-screen run monitor")
	cmd.Flags().StringVar(&opts.blockedPolicy, "blocked-policy", "", "What a blocked task does to the run: halt or continue")
	cmd.Flags().StringVar(&opts.metricsFile, "metrics-file", "", "Write Prometheus metrics for the run to this file")
	_ = cmd.MarkFlagRequired("checklist")
	return cmd
}

func runChecklist(cmd *cobra.Command, opts *runOptions) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}

	policyName := cfg.BlockedPolicy
	if opts.blockedPolicy != "" {
		policyName = opts.blockedPolicy
	}
	policy, err := engine.ParseBlockedPolicy(policyName)
	if err != nil {
		return err
	}

	cl, err := checklist.Load(cfg.ChecklistDir, opts.checklist)
	if err != nil {
		return err
	}

	logOut := cmd.ErrOrStderr()
	if opts.useTUI {
		f, err := openTUILog(cfg.StateDir)
		if err != nil {
			return err
		}
		defer f.Close()
		logOut = f
	}
	log, err := newLogger(cfg, logOut)
	if err != nil {
		return err
	}
	defer log.Sync()

	rc, err := buildRunContext(cfg, log)
	if err != nil {
		return err
	}

	var collector *metrics.Collector
	if opts.metricsFile != "" {
		collector = metrics.NewCollector()
	}

	execute := func(ctx context.Context, events engine.Events) (engine.Outcome, error) {
		sinks := engine.MultiEvents{events}
		if collector != nil {
			sinks = append(sinks, collector)
		}
		rc.Events = sinks

		eng, err := engine.New(rc, engine.Options{BlockedPolicy: policy})
		if err != nil {
			return engine.Outcome{}, err
		}
		if err := eng.Load(cl); err != nil {
			return engine.Outcome{}, err
		}
		return eng.Execute(ctx)
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var outcome engine.Outcome
	if opts.useTUI {
		doc, loadErr := rc.Status.Load(cl.ID)
		if loadErr != nil {
			doc = status.NewDocument(cl)
		}
		outcome, err = tui.Run(ctx, cl, doc, execute)
	} else {
		d := display.New(cmd.OutOrStdout())
		d.Start()
		outcome, err = execute(ctx, d)
		d.Stop()
	}

	if collector != nil {
		if werr := collector.WriteTextfile(opts.metricsFile); werr != nil {
			log.Warn(ctx, "failed to write metrics", zap.String("path", opts.metricsFile), zap.Error(werr))
		}
	}

	// Errors that left no outcome mean the run never started.
	if err != nil && outcome.Result == "" {
		return err
	}
	if code := outcome.ExitCode(); code != 0 {
		return &ExitError{Code: code}
	}
	return nil
}

// buildRunContext creates every collaborator of a run from the configuration.
func buildRunContext(cfg *config.Config, log *logging.Logger) (engine.RunContext, error) {
	a, err := assistant.New(cfg.Assistant)
	if err != nil {
		return engine.RunContext{}, err
	}

	runner := proc.New(cfg.ProcessTimeout)
	artifacts := artifact.NewStore(cfg.ArtifactDir)

	return engine.RunContext{
		Status:     status.NewStore(cfg.StateDir),
		Artifacts:  artifacts,
		Blockers:   blocker.NewResolver(runner, a, log.Named("blocker")),
		Validation: validation.NewPipeline(runner, artifacts, log.Named("validation")),
		Runner:     runner,
		Log:        log.Named("engine"),
	}, nil
}

func openTUILog(stateDir string) (io.WriteCloser, error) {
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	path := filepath.Join(stateDir, tuiLogFile)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return f, nil
}
