package main

import (
	"github.com/spf13/cobra"
)

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate completion script for your shell",
	Long: `To load completions:

Bash:
  $ source <(locksy completion bash)

  # To load for each session (Linux):
  $ locksy completion bash > ~/.local/share/bash-completion/completions/locksy

  # To load for each session (macOS with Homebrew):
  $ locksy completion bash > $(brew --prefix)/etc/bash_completion.d/locksy

Zsh:
  # Ensure completion is enabled:
  $ echo "autoload -U compinit; compinit" >> ~/.zshrc

  # Generate completion:
  $ locksy completion zsh > ~/.zsh/completions/_locksy
  # (create ~/.zsh/completions if needed, add to fpath in .zshrc)

Fish:
  $ locksy completion fish > ~/.config/fish/completions/locksy.fish

PowerShell:
  PS> locksy completion powershell >> $PROFILE

Dynamic completion (entry names):
  Set LOCKSY_COMPLETION_ENABLED=1 to complete entry names. Completion never
  prompts, so it also needs LOCKSY_EMAIL and LOCKSY_PASSWORD in the
  environment; it logs in and out on every key press.
`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	// Completion scripts need no configuration.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		switch args[0] {
		case "bash":
			return cmd.Root().GenBashCompletion(out)
		case "zsh":
			return cmd.Root().GenZshCompletion(out)
		case "fish":
			return cmd.Root().GenFishCompletion(out, true)
		case "powershell":
			return cmd.Root().GenPowerShellCompletionWithDesc(out)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(completionCmd)

	// Register dynamic completion functions for commands
	registerCompletionFunctions()
}
