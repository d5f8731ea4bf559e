package pipeline

import (
	"context"
	"fmt"
	"math"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/BaSui01/evalflow/llm"
	"github.com/BaSui01/evalflow/types"
)

// Augmenter expands a dataset with backend-generated variants of each row.
type Augmenter struct {
	client   llm.Client
	sampling llm.SamplingConfig
	opts     Options
	logger   *zap.Logger
	rec      Recorder
}

// NewAugmenter creates an augmentation stage using DefaultAugmentationSampling.
func NewAugmenter(client llm.Client, opts Options, logger *zap.Logger) *Augmenter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Augmenter{
		client:   client,
		sampling: llm.DefaultAugmentationSampling(),
		opts:     opts.normalized(),
		logger:   logger.With(zap.String("component", "augmentation")),
		rec:      NopRecorder(),
	}
}

// WithSampling overrides the sampling parameters.
func (s *Augmenter) WithSampling(sampling llm.SamplingConfig) *Augmenter {
	s.sampling = sampling
	return s
}

// WithRecorder sets the metrics recorder.
func (s *Augmenter) WithRecorder(rec Recorder) *Augmenter {
	if rec != nil {
		s.rec = rec
	}
	return s
}

type variantKey struct {
	row     int
	variant int
}

// Augment returns each original row followed by up to factor-1 variants.
//
// Originals are tagged is_augmented=No. A variant copies its original, is
// tagged is_augmented=Yes, and has its first non-empty column (in column
// order) replaced by text generated from prompt and the row's source text.
// A variant whose call fails is logged and left out.
func (s *Augmenter) Augment(ctx context.Context, table types.Table, factor int, prompt string) (types.Table, Report, error) {
	report := Report{Action: ActionAugment, Rows: table.Len()}
	if table.Len() == 0 {
		return types.Table{}, report, types.NewEmptyInputError("augmentation")
	}
	if err := s.checkFactor(table.Len(), factor); err != nil {
		return types.Table{}, report, err
	}

	ctx, span := startSpan(ctx, "pipeline.augment",
		attribute.Int("rows", table.Len()),
		attribute.Int("factor", factor))
	defer span.End()

	columns := dataColumns(table.Headers())
	sources := make([]string, table.Len())
	for i, row := range table.Rows {
		if row == nil {
			row = types.Row{}
			table.Rows[i] = row
		}
		sources[i] = row.SourceText(columns)
		row[types.ColumnIsAugmented] = types.AugmentedNo
	}

	perRow := factor - 1
	var results []Result[types.Row]
	if perRow > 0 {
		call := completion{client: s.client, timeout: s.opts.CallTimeout, logger: s.logger, rec: s.rec}
		results = runIndexed(ctx, table.Len()*perRow, s.opts.Concurrency, func(ctx context.Context, k int) (types.Row, error) {
			key := variantKey{row: k / perRow, variant: k % perRow}
			text, err := call.run(ctx, llm.NewCompletionRequest(prompt, sources[key.row], s.sampling))
			if err != nil {
				return nil, err
			}
			return makeVariant(table.Rows[key.row], columns, text), nil
		})
	}

	out := make(types.Dataset, 0, table.Len()*factor)
	for i, row := range table.Rows {
		out = append(out, row)
		for v := 0; v < perRow; v++ {
			r := results[i*perRow+v]
			if r.Err != nil {
				report.Failed++
				s.logger.Warn("augmentation variant failed",
					zap.Int("row", i),
					zap.Int("variant", v+1),
					zap.Error(r.Err))
				continue
			}
			report.Variants++
			out = append(out, r.Value)
		}
		report.Succeeded++
	}

	span.SetAttributes(attribute.Int("variants", report.Variants), attribute.Int("failed", report.Failed))
	recordReport(s.rec, report)
	s.logger.Info("augmentation completed",
		zap.Int("rows", report.Rows),
		zap.Int("variants", report.Variants),
		zap.Int("failed", report.Failed))

	return types.Table{Columns: table.WithLeadingColumn(types.ColumnIsAugmented), Rows: out}, report, nil
}

// checkFactor rejects a factor below 1, above the configured maximum, or one
// whose output size rows*factor would overflow int.
func (s *Augmenter) checkFactor(rows, factor int) error {
	if factor < 1 {
		return types.NewMissingParameterError("augmentationFactor")
	}
	if limit := s.opts.MaxAugmentationFactor; factor > limit {
		return types.NewError(types.ErrCodeMissingParameter,
			fmt.Sprintf("augmentationFactor %d exceeds maximum %d", factor, limit))
	}
	if rows > 0 && factor > math.MaxInt/rows {
		return types.NewError(types.ErrCodeMissingParameter,
			fmt.Sprintf("augmentationFactor %d too large for %d rows", factor, rows))
	}
	return nil
}

// makeVariant copies original and replaces its first populated data column.
func makeVariant(original types.Row, columns []string, text string) types.Row {
	variant := original.Clone()
	variant[types.ColumnIsAugmented] = types.AugmentedYes
	if col, ok := original.FirstPopulated(columns); ok {
		variant[col] = text
	}
	return variant
}

func dataColumns(headers []string) []string {
	out := make([]string, 0, len(headers))
	for _, h := range headers {
		if h != types.ColumnIsAugmented {
			out = append(out, h)
		}
	}
	return out
}
