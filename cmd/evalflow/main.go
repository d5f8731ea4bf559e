package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "evalflow",
		Short: "Batch LLM inference, evaluation and augmentation over tabular data",
		Long: "evalflow runs a completion backend over every row of a table: it answers\n" +
			"prompts (inference), grades rows (evaluate) and generates paraphrased\n" +
			"variants (augment). Use 'serve' for the HTTP API or 'run' for one file.",
		SilenceUsage: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
	}
	root.AddCommand(
		newServeCmd(),
		newRunCmd(),
		newVersionCmd(),
		newHealthCmd(),
	)
	root.Version = Version
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
