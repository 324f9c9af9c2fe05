package cli

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kokjohn0824/detach/internal/config"
	"github.com/kokjohn0824/detach/internal/detach"
	"github.com/kokjohn0824/detach/internal/i18n"
	"github.com/kokjohn0824/detach/internal/logging"
)

const shimCommand = "__shim"

var shimLog logging.Config

// shimCmd is the intermediate process of every launch. It is started by
// the detacher with the handshake pipes on fds 3 and 4, never by users.
var shimCmd = &cobra.Command{
	Use:    shimCommand,
	Short:  i18n.CmdShimShort,
	Hidden: true,
	Args:   cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		logger, closeFn, err := logging.New(shimLog)
		if err != nil {
			logger, closeFn = logging.Nop(), func() {}
		}
		code := detach.RunShim(logger)
		_ = logger.Sync()
		closeFn()
		os.Exit(code)
	},
}

// shimArgs returns the arguments that make this executable run the shim
// with the logging settings of cfg.
func shimArgs(cfg *config.Config) []string {
	args := []string{shimCommand, "--log-file", cfg.ShimLogPath()}
	if cfg.Log.Level != "" {
		args = append(args, "--log-level", cfg.Log.Level)
	}
	if cfg.Log.Format != "" {
		args = append(args, "--log-format", cfg.Log.Format)
	}
	return args
}

func init() {
	shimCmd.Flags().StringVar(&shimLog.File, "log-file", filepath.Join(os.TempDir(), "detach-shim.log"), "shim log file")
	shimCmd.Flags().StringVar(&shimLog.Level, "log-level", "warn", "shim log level")
	shimCmd.Flags().StringVar(&shimLog.Format, "log-format", logging.FormatConsole, "shim log format")

	rootCmd.AddCommand(shimCmd)
}
