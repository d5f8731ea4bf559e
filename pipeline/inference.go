package pipeline

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/BaSui01/evalflow/llm"
	"github.com/BaSui01/evalflow/types"
)

// InferenceErrorPrefix starts the marker written to a row whose inference failed.
const InferenceErrorPrefix = "Error occurred during inference: "

// Inferencer generates an assistant answer for every row.
type Inferencer struct {
	client   llm.Client
	sampling llm.SamplingConfig
	opts     Options
	logger   *zap.Logger
	rec      Recorder
}

// NewInferencer creates an inference stage using DefaultInferenceSampling.
func NewInferencer(client llm.Client, opts Options, logger *zap.Logger) *Inferencer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Inferencer{
		client:   client,
		sampling: llm.DefaultInferenceSampling(),
		opts:     opts.normalized(),
		logger:   logger.With(zap.String("component", "inference")),
		rec:      NopRecorder(),
	}
}

// WithSampling overrides the sampling parameters.
func (s *Inferencer) WithSampling(sampling llm.SamplingConfig) *Inferencer {
	s.sampling = sampling
	return s
}

// WithRecorder sets the metrics recorder.
func (s *Inferencer) WithRecorder(rec Recorder) *Inferencer {
	if rec != nil {
		s.rec = rec
	}
	return s
}

// Infer writes the generated text into the assistant column of every row.
//
// The system and user messages come from systemColumn and userColumn; an
// absent column or cell contributes "". A row whose call fails gets an error
// marker instead and the batch continues. Rows are updated in place and keep
// their order.
func (s *Inferencer) Infer(ctx context.Context, table types.Table, systemColumn, userColumn string) (types.Table, Report, error) {
	report := Report{Action: ActionInference, Rows: table.Len()}
	if table.Len() == 0 {
		return types.Table{}, report, types.NewEmptyInputError("inference")
	}

	ctx, span := startSpan(ctx, "pipeline.inference",
		attribute.Int("rows", table.Len()),
		attribute.String("system_column", systemColumn),
		attribute.String("user_column", userColumn))
	defer span.End()

	call := completion{client: s.client, timeout: s.opts.CallTimeout, logger: s.logger, rec: s.rec}
	results := runIndexed(ctx, table.Len(), s.opts.Concurrency, func(ctx context.Context, i int) (string, error) {
		row := table.Rows[i]
		req := llm.NewCompletionRequest(row.Get(systemColumn), row.Get(userColumn), s.sampling)
		return call.run(ctx, req)
	})

	for _, r := range results {
		if table.Rows[r.Index] == nil {
			table.Rows[r.Index] = types.Row{}
		}
		row := table.Rows[r.Index]
		if r.Err != nil {
			report.Failed++
			s.logger.Warn("inference failed for row",
				zap.Int("row", r.Index),
				zap.Error(r.Err))
			row[types.ColumnAssistant] = fmt.Sprintf("%s%v", InferenceErrorPrefix, r.Err)
			continue
		}
		report.Succeeded++
		row[types.ColumnAssistant] = r.Value
	}

	span.SetAttributes(attribute.Int("failed", report.Failed))
	recordReport(s.rec, report)
	s.logger.Info("inference completed",
		zap.Int("rows", report.Rows),
		zap.Int("failed", report.Failed))

	return types.Table{Columns: table.WithColumn(types.ColumnAssistant), Rows: table.Rows}, report, nil
}
