// Package cli wires the phasegate commands.
package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/pablasso/phasegate/internal/config"
	"github.com/pablasso/phasegate/internal/logging"
	"github.com/pablasso/phasegate/internal/version"
	"github.com/spf13/cobra"
)

// ExitError carries a process exit status. Message may be empty when the
// command already reported the problem.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Message
}

// ExitCode maps an Execute error to a process exit status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return 1
}

// globalOptions holds the persistent flags shared by every command.
type globalOptions struct {
	configPath string
	logLevel   string
	logFormat  string
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "phasegate",
		Short: "Phase-gated checklist runner",
		Long: `Phasegate runs a checklist of phases and tasks in order. Each task may run a
command, check its blockers and validate its outcome. Progress is persisted so an
interrupted run resumes where it stopped.`,
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "Config file (default ./"+config.DefaultFile+" when present)")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flags.StringVar(&opts.logFormat, "log-format", "", "Log format: console or json")

	rootCmd.AddCommand(
		newRunCmd(opts),
		newStatusCmd(opts),
		newCleanupCmd(opts),
		newResetCmd(opts),
	)
	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// loadConfig reads the configuration and applies the global flag overrides.
func (o *globalOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Log.Format = o.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the process logger. Logs go to w, never to the writer
// used for command output.
func newLogger(cfg *config.Config, w io.Writer) (*logging.Logger, error) {
	log, err := logging.New(&cfg.Log, w)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return log, nil
}
