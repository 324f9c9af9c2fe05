package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kokjohn0824/detach/internal/config"
	"github.com/kokjohn0824/detach/internal/i18n"
	"github.com/kokjohn0824/detach/internal/ui"
)

var configInitForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: i18n.CmdConfigShort,
	Long: `Show or manage the detach configuration.

Examples:
  detach config           # show the effective configuration
  detach config init      # write a default configuration file
  detach config path      # show the configuration file path`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: i18n.CmdConfigShowShort,
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: i18n.CmdConfigInitShort,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the configuration file path",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if cfg != nil && cfg.File != "" {
			fmt.Fprintln(cmd.OutOrStdout(), cfg.File)
			return
		}
		fmt.Fprintln(cmd.OutOrStdout(), config.GetConfigFilePath())
	},
}

func init() {
	configInitCmd.Flags().BoolVarP(&configInitForce, "force", "f", false, "overwrite an existing file")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)

	// Default subcommand is show
	configCmd.RunE = configShowCmd.RunE

	rootCmd.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	w := cmd.OutOrStdout()

	if outputFormat == outputJSON {
		return printData(w, cfg.Settings())
	}
	if outputFormat == outputYAML || quiet {
		// text output of the configuration is its file form
		prev := outputFormat
		outputFormat = outputYAML
		defer func() { outputFormat = prev }()
		return printData(w, cfg.Settings())
	}

	ui.PrintHeader(w, i18n.UIConfigHeader)
	settings := cfg.Settings()
	table := ui.NewTable("KEY", "VALUE")
	for _, key := range configKeys {
		table.AddRow(key, fmt.Sprint(settings[key]))
	}
	table.Render(w)

	fmt.Fprintln(w)
	source := cfg.File
	if source == "" {
		source = ui.StyleMuted.Render("(defaults and environment)")
	}
	ui.PrintInfo(w, "Config file: "+source)
	return nil
}

// configKeys orders the keys of the text view
var configKeys = []string{
	"state_dir",
	"startup_timeout",
	"grace_period",
	"force_wait",
	"poll_interval",
	"poll_max_interval",
	"capture_limit",
	"flush_interval",
	"retention",
	"spawn_retries",
	"spawn_retry_delay",
	"stop_signal",
	"supervise",
	"log_level",
	"log_file",
	"log_format",
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	w := cmd.OutOrStdout()

	path := ".detach.yaml"
	if len(args) == 1 {
		path = args[0]
	}

	if _, err := os.Stat(path); err == nil && !configInitForce {
		prompt := ui.NewPrompt(os.Stdin, cmd.ErrOrStderr())
		if !prompt.Interactive() {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		ok, err := prompt.Confirm(fmt.Sprintf("%s already exists. Overwrite?", path), false)
		if err != nil {
			return err
		}
		if !ok {
			ui.PrintInfo(w, i18n.MsgCancelled)
			return nil
		}
	}

	if err := config.GenerateDefaultConfigFile(path); err != nil {
		return err
	}
	ui.PrintSuccess(w, fmt.Sprintf(i18n.MsgConfigWritten, path))
	return nil
}
