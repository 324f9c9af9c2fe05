package cli

import (
	"github.com/spf13/cobra"

	"github.com/kokjohn0824/detach/internal/i18n"
)

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: i18n.CmdCompletionShort,
	Long: `Generate the completion script for the given shell.

Bash:
  detach completion bash > /etc/bash_completion.d/detach

Zsh:
  # enable completion first if needed:
  echo "autoload -U compinit; compinit" >> ~/.zshrc

  detach completion zsh > "${fpath[1]}/_detach"

Fish:
  detach completion fish > ~/.config/fish/completions/detach.fish

PowerShell:
  detach completion powershell > detach.ps1
  # then source the file from your PowerShell profile`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		w := cmd.OutOrStdout()
		switch args[0] {
		case "bash":
			return cmd.Root().GenBashCompletionV2(w, true)
		case "zsh":
			return cmd.Root().GenZshCompletion(w)
		case "fish":
			return cmd.Root().GenFishCompletion(w, true)
		default:
			return cmd.Root().GenPowerShellCompletionWithDesc(w)
		}
	},
}

func init() {
	rootCmd.AddCommand(completionCmd)
}
