package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/BaSui01/evalflow/api"
	"github.com/BaSui01/evalflow/pipeline"
	"github.com/BaSui01/evalflow/types"
)

// runOptions holds the flags of the run command.
type runOptions struct {
	configPath   string
	action       string
	input        string
	output       string
	systemColumn string
	userColumn   string
	factor       int
	prompt       string
	concurrency  int
}

func newRunCmd() *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one action over a JSON rows file",
		Example: `  evalflow run --action inference --input rows.json --system-column system --user-column user
  evalflow run --action augment --input rows.json --factor 3 --prompt "Paraphrase:" -o out.json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			if opts.output != "" && opts.output != "-" {
				f, err := os.Create(opts.output)
				if err != nil {
					return fmt.Errorf("create output: %w", err)
				}
				defer f.Close()
				out = f
			}
			return runOnce(ctx, opts, cmd.Flags().Changed("factor"), cmd.Flags().Changed("prompt"), out)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.configPath, "config", "c", "", "path to YAML config file")
	f.StringVarP(&opts.action, "action", "a", "", "inference, evaluate or augment")
	f.StringVarP(&opts.input, "input", "i", "", "JSON file holding an array of rows")
	f.StringVarP(&opts.output, "output", "o", "", "output file (default stdout)")
	f.StringVar(&opts.systemColumn, "system-column", "", "column holding the system prompt (inference)")
	f.StringVar(&opts.userColumn, "user-column", "", "column holding the user input (inference)")
	f.IntVar(&opts.factor, "factor", 0, "variants per row (augment)")
	f.StringVar(&opts.prompt, "prompt", "", "augmentation instruction (augment)")
	f.IntVar(&opts.concurrency, "concurrency", 0, "rows processed in parallel (overrides config)")
	_ = cmd.MarkFlagRequired("action")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

// runOnce dispatches a single action and writes {result, headers} JSON to out.
func runOnce(ctx context.Context, opts runOptions, factorSet, promptSet bool, out io.Writer) error {
	cfg, _, err := loadConfig(opts.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if opts.concurrency > 0 {
		cfg.Pipeline.Concurrency = opts.concurrency
	}
	// 结果写 stdout 时日志只能走 stderr
	cfg.Log.OutputPaths = []string{"stderr"}

	logger, _ := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	data, err := os.ReadFile(opts.input)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	columns, rows, err := types.DecodeRows(data)
	if err != nil {
		return err
	}

	client := buildClient(cfg.Backend, nil, logger)
	orch, err := buildOrchestrator(cfg, client, nil, logger)
	if err != nil {
		return err
	}

	params := pipeline.Params{
		SystemColumn: opts.systemColumn,
		UserColumn:   opts.userColumn,
	}
	if factorSet {
		params.AugmentationFactor = &opts.factor
	}
	if promptSet {
		params.AugmentationPrompt = &opts.prompt
	}

	outcome, err := orch.Dispatch(ctx, pipeline.Action(opts.action), types.NewTable(columns, rows), params)
	if err != nil {
		return err
	}
	logger.Info("run finished",
		zap.String("run_id", outcome.RunID),
		zap.String("action", opts.action),
		zap.Int("rows", outcome.Report.Rows),
		zap.Int("failed", outcome.Report.Failed),
		zap.Duration("duration", outcome.Duration),
	)

	result := make([]map[string]string, len(outcome.Table.Rows))
	for i, r := range outcome.Table.Rows {
		result[i] = r
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(api.LLMResponse{
		Result:  result,
		Headers: outcome.Table.Columns,
		RunID:   outcome.RunID,
	})
}
