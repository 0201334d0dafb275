package cli

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func newCompletionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion <shell>",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for kpsport.

To load completions:

Bash:
  $ source <(kpsport completion bash)

  # To load completions for each session, execute once:
  # Linux:
  $ kpsport completion bash > /etc/bash_completion.d/kpsport

Zsh:
  # If shell completion is not already enabled in your environment,
  # you will need to enable it. Execute once:
  $ echo "autoload -U compinit; compinit" >> ~/.zshrc

  # To load completions for each session, execute once:
  $ kpsport completion zsh > "${fpath[1]}/_kpsport"

Fish:
  $ kpsport completion fish > ~/.config/fish/completions/kpsport.fish

PowerShell:
  PS> kpsport completion powershell | Out-String | Invoke-Expression

  # To load completions for every new session, run:
  PS> kpsport completion powershell > kpsport.ps1
  # and source this file from your PowerShell profile.
`,
		// Completion needs no config.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Args:              cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs:         []string{"bash", "zsh", "fish", "powershell"},
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()

			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletionV2(w, true)
			case "zsh":
				return cmd.Root().GenZshCompletion(w)
			case "fish":
				return cmd.Root().GenFishCompletion(w, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(w)
			}

			return nil
		},
	}

	return cmd
}

// flagChoices lists the fixed values of enumerated flags.
var flagChoices = map[string][]string{
	"log-level":      {"debug", "info", "warn", "error"},
	"log-format":     {"text", "json"},
	"renderer":       {"exec", "engine"},
	"dashboard-mode": {"text", "structural"},
	"job-match":      {"substring", "selector"},
	"guide-format":   {"markdown", "html", "asciidoc"},
	"stage":          {stageDashboards, stageRules},
}

// registerFlagCompletions walks the command tree and offers the fixed
// choices of enumerated flags to shell completion.
func registerFlagCompletions(cmd *cobra.Command) {
	for _, fs := range []*pflag.FlagSet{cmd.Flags(), cmd.PersistentFlags()} {
		fs.VisitAll(func(f *pflag.Flag) {
			choices, ok := flagChoices[f.Name]
			if !ok {
				return
			}

			_ = cmd.RegisterFlagCompletionFunc(f.Name, cobra.FixedCompletions(choices, cobra.ShellCompDirectiveNoFileComp))
		})
	}

	for _, sub := range cmd.Commands() {
		registerFlagCompletions(sub)
	}
}
