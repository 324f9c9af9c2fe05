// Package cli provides the command-line interface
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kokjohn0824/detach/internal/config"
	"github.com/kokjohn0824/detach/internal/detach"
	"github.com/kokjohn0824/detach/internal/i18n"
	"github.com/kokjohn0824/detach/internal/lifecycle"
	"github.com/kokjohn0824/detach/internal/logging"
	"github.com/kokjohn0824/detach/internal/store"
	"github.com/kokjohn0824/detach/internal/ui"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"

	// Global flags
	cfgFile      string
	stateDir     string
	verbose      bool
	debug        bool
	quiet        bool
	outputFormat string

	// Global config
	cfg *config.Config

	logger   = logging.Nop()
	closeLog = func() {}

	// ctrl is built once the configuration is loaded
	ctrl *lifecycle.Controller
)

// commands that run without configuration or a state directory
var skipSetup = map[string]bool{
	"version":    true,
	"help":       true,
	"completion": true,
	"init":       true,
	shimCommand:  true,
}

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:           "detach",
	Short:         i18n.CmdRootShort,
	Long:          i18n.CmdRootLong,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if skipSetup[cmd.Name()] {
			return nil
		}
		if err := validateOutput(outputFormat); err != nil {
			return err
		}
		return setup()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
		closeLog()
	},
}

// setup loads the configuration, applies flag overrides, builds the
// logger and the controller.
func setup() error {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf(i18n.ErrLoadConfigFailed, err)
	}

	// Override with flags
	if stateDir != "" {
		if cfg.StateDir, err = filepath.Abs(stateDir); err != nil {
			return err
		}
	}
	switch {
	case debug:
		cfg.Log.Level = "debug"
	case verbose:
		cfg.Log.Level = "info"
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf(i18n.ErrLoadConfigFailed, err)
	}

	if logger, closeLog, err = logging.New(cfg.Log); err != nil {
		return err
	}

	ctrl, err = newController(cfg, logger)
	return err
}

// newController wires the store, the detacher and the lifecycle options
// from cfg.
func newController(cfg *config.Config, logger *zap.Logger) (*lifecycle.Controller, error) {
	st := store.New(cfg.StateDir, store.WithRetention(cfg.Retention))
	if err := st.Init(); err != nil {
		return nil, fmt.Errorf(i18n.ErrInitStoreFailed, err)
	}

	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf(i18n.ErrExecutablePath, err)
	}
	d := &detach.Detacher{
		Executable: exe,
		Args:       shimArgs(cfg),
		Retry:      detach.Retry{Attempts: cfg.SpawnRetries, Delay: cfg.SpawnRetryDelay},
		Logger:     logger,
	}

	opts := lifecycle.Options{
		StartupTimeout:  cfg.StartupTimeout,
		Grace:           cfg.GracePeriod,
		ForceWait:       cfg.ForceWait,
		PollInterval:    cfg.PollInterval,
		PollMaxInterval: cfg.PollMaxInterval,
		FlushInterval:   cfg.FlushInterval,
		CaptureLimit:    cfg.CaptureLimit,
		StopSignal:      cfg.StopSignal,
		Supervise:       cfg.Supervise,
	}
	return lifecycle.New(st, d, opts, logger), nil
}

// exitCodeError ends the process with a specific exit code and no message
type exitCodeError struct {
	code int
}

func (e *exitCodeError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// Execute runs the root command
func Execute() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	var exit *exitCodeError
	if errors.As(err, &exit) {
		return exit.code
	}
	if errors.Is(err, context.Canceled) {
		ui.PrintWarning(rootCmd.ErrOrStderr(), i18n.MsgCancelled)
		return 130
	}
	ui.PrintError(rootCmd.ErrOrStderr(), err.Error())
	return 1
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", i18n.FlagConfig)
	rootCmd.PersistentFlags().StringVar(&stateDir, "state-dir", "", i18n.FlagState)
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, i18n.FlagVerbose)
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, i18n.FlagDebug)
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, i18n.FlagQuiet)
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", outputText, i18n.FlagOutput)

	rootCmd.AddCommand(versionCmd)
}

// versionCmd shows version information
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: i18n.CmdVersionShort,
	Run: func(cmd *cobra.Command, args []string) {
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "detach %s\n", Version)
		fmt.Fprintf(w, "  Commit: %s\n", Commit)
		fmt.Fprintf(w, "  Built:  %s\n", BuildDate)
	},
}
