package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/kilupskalvis/aliasmig/internal/config"
	"github.com/kilupskalvis/aliasmig/internal/store"
)

func init() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion script",
		Long: `Generate shell completion script for aliasmig.

Bash:
  $ source <(aliasmig completion bash)

Zsh:
  $ aliasmig completion zsh > "${fpath[1]}/_aliasmig"

Fish:
  $ aliasmig completion fish > ~/.config/fish/completions/aliasmig.fish

PowerShell:
  PS> aliasmig completion powershell | Out-String | Invoke-Expression

Alias arguments complete from the stored schema definitions.
`,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		DisableFlagsInUseLine: true,
		Run: func(cmd *cobra.Command, args []string) {
			switch args[0] {
			case "bash":
				rootCmd.GenBashCompletionV2(os.Stdout, true)
			case "zsh":
				rootCmd.GenZshCompletion(os.Stdout)
			case "fish":
				rootCmd.GenFishCompletion(os.Stdout, true)
			case "powershell":
				rootCmd.GenPowerShellCompletionWithDesc(os.Stdout)
			}
		},
	})
}

// completeDefinitions offers stored definition names for the first argument.
// It fails quietly outside a project since completion must never print errors.
func completeDefinitions(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	st, err := store.New(cfg.DatabasePath())
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	defer st.Close()

	names, err := st.ListDefinitions()
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return names, cobra.ShellCompDirectiveNoFileComp
}
