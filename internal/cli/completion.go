package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var completionInstall bool

var completionCmd = &cobra.Command{
	Use:   "completion <shell>",
	Short: "Set up shell completions for trackforge",
	Long: `Set up shell tab-completions for trackforge commands, flags, track ids
and task ids.

Supported shells: bash, zsh, fish, powershell

Quick install:

  trackforge completion bash --install
  trackforge completion zsh --install
  trackforge completion fish --install

Or print the script to stdout:

  eval "$(trackforge completion bash)"
  trackforge completion fish | source`,
	ValidArgs: []string{"bash", "zsh", "fish", "powershell"},
	Args:      cobra.MaximumNArgs(1),
	RunE:      runCompletion,
}

// shellCompletion describes how to generate and where to install the
// script for one shell. An empty dir means install is unsupported.
type shellCompletion struct {
	generate func(io.Writer) error
	dir      []string
	file     string
	hint     string
}

func shellCompletions() map[string]shellCompletion {
	return map[string]shellCompletion{
		"bash": {
			generate: func(w io.Writer) error { return rootCmd.GenBashCompletionV2(w, true) },
			dir:      []string{".local", "share", "bash-completion", "completions"},
			file:     "trackforge",
			hint:     "Restart your shell or run: source %s",
		},
		"zsh": {
			generate: rootCmd.GenZshCompletion,
			dir:      []string{".local", "share", "zsh", "site-functions"},
			file:     "_trackforge",
			hint:     "Ensure the directory of %s is in your fpath, then run: autoload -Uz compinit && compinit",
		},
		"fish": {
			generate: func(w io.Writer) error { return rootCmd.GenFishCompletion(w, true) },
			dir:      []string{".config", "fish", "completions"},
			file:     "trackforge.fish",
			hint:     "%s is loaded by new fish sessions automatically.",
		},
		"powershell": {
			generate: rootCmd.GenPowerShellCompletionWithDesc,
		},
	}
}

func runCompletion(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return cmd.Help()
	}
	shell, ok := shellCompletions()[args[0]]
	if !ok {
		return fmt.Errorf("unsupported shell %q (supported: bash, zsh, fish, powershell)", args[0])
	}
	if !completionInstall {
		return shell.generate(cmd.OutOrStdout())
	}
	if len(shell.dir) == 0 {
		return fmt.Errorf("automatic install is not supported for %s; add the output of 'trackforge completion %s' to your profile", args[0], args[0])
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("detecting home directory: %w", err)
	}
	target, err := installCompletion(home, shell)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Completions installed to %s\n", target)
	fmt.Fprintf(cmd.OutOrStdout(), shell.hint+"\n", target)
	return nil
}

// installCompletion writes the script under home and returns its path.
func installCompletion(home string, shell shellCompletion) (string, error) {
	dir := filepath.Join(append([]string{home}, shell.dir...)...)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("creating completion directory: %w", err)
	}
	target := filepath.Join(dir, shell.file)

	f, err := os.Create(target)
	if err != nil {
		return "", fmt.Errorf("creating completion file %s: %w", target, err)
	}
	writeErr := shell.generate(f)
	closeErr := f.Close()
	if writeErr != nil {
		return "", writeErr
	}
	if closeErr != nil {
		return "", fmt.Errorf("closing completion file %s: %w", target, closeErr)
	}
	return target, nil
}

func init() {
	completionCmd.Flags().BoolVar(&completionInstall, "install", false, "Install completions under your home directory")

	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.AddCommand(completionCmd)
}
