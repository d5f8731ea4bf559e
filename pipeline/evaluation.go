package pipeline

import (
	"context"
	"fmt"
	"math/rand/v2"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/BaSui01/evalflow/llm"
	"github.com/BaSui01/evalflow/types"
)

// EvaluationErrorPrefix starts the marker written to a row whose scoring failed.
const EvaluationErrorPrefix = "Error occurred during evaluation: "

// Score bounds.
const (
	MinScore = 1
	MaxScore = 7
)

// Scorer produces a score for one row.
type Scorer interface {
	Score(ctx context.Context, row types.Row) (string, error)
}

// ScorerFunc adapts a function to Scorer.
type ScorerFunc func(ctx context.Context, row types.Row) (string, error)

// Score implements Scorer.
func (f ScorerFunc) Score(ctx context.Context, row types.Row) (string, error) { return f(ctx, row) }

// RandomScorer draws a uniform integer in [MinScore, MaxScore]. It makes no
// backend call and stands in until a real scoring model is configured.
type RandomScorer struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomScorer creates a scorer over src. A nil src is seeded randomly.
func NewRandomScorer(src rand.Source) *RandomScorer {
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	return &RandomScorer{rng: rand.New(src)}
}

// Score implements Scorer.
func (s *RandomScorer) Score(_ context.Context, _ types.Row) (string, error) {
	s.mu.Lock()
	n := s.rng.IntN(MaxScore-MinScore+1) + MinScore
	s.mu.Unlock()
	return strconv.Itoa(n), nil
}

// DefaultRubricPrompt instructs the backend to grade an answer.
const DefaultRubricPrompt = "You are a strict grader. Rate how well the assistant answer serves the user on a scale " +
	"from 1 (useless) to 7 (excellent). Reply with the number only."

var scorePattern = regexp.MustCompile(`\d+`)

// CompletionScorer asks the completion backend to rate a row's answer.
type CompletionScorer struct {
	client   llm.Client
	rubric   string
	sampling llm.SamplingConfig
	logger   *zap.Logger
}

// NewCompletionScorer creates a backend-graded scorer. An empty rubric selects
// DefaultRubricPrompt.
func NewCompletionScorer(client llm.Client, rubric string, logger *zap.Logger) *CompletionScorer {
	if strings.TrimSpace(rubric) == "" {
		rubric = DefaultRubricPrompt
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	sampling := llm.DefaultInferenceSampling()
	sampling.MaxTokens = 16
	sampling.Temperature = 0
	return &CompletionScorer{
		client:   client,
		rubric:   rubric,
		sampling: sampling,
		logger:   logger.With(zap.String("component", "completion_scorer")),
	}
}

// Score implements Scorer. The first integer in the reply must lie in
// [MinScore, MaxScore]. The call is bounded by ctx only; Evaluator applies
// the configured call timeout.
func (s *CompletionScorer) Score(ctx context.Context, row types.Row) (string, error) {
	req := llm.NewCompletionRequest(s.rubric, gradingInput(row), s.sampling)
	text, err := completion{client: s.client, logger: s.logger, rec: NopRecorder()}.run(ctx, req)
	if err != nil {
		return "", err
	}
	return ParseScore(text)
}

// ParseScore extracts the first integer from text and checks its range.
func ParseScore(text string) (string, error) {
	m := scorePattern.FindString(text)
	if m == "" {
		return "", fmt.Errorf("no score in reply %q", text)
	}
	n, err := strconv.Atoi(m)
	if err != nil || n < MinScore || n > MaxScore {
		return "", fmt.Errorf("score %s out of range [%d,%d]", m, MinScore, MaxScore)
	}
	return strconv.Itoa(n), nil
}

// gradingInput lists the row as "column: value" lines with the answer last.
func gradingInput(row types.Row) string {
	keys := make([]string, 0, len(row))
	for k := range row {
		if k == types.ColumnLLMEval || k == types.ColumnAssistant || k == types.ColumnIsAugmented {
			continue
		}
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var sb strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&sb, "%s: %s\n", k, row[k])
	}
	fmt.Fprintf(&sb, "%s: %s", types.ColumnAssistant, row.Get(types.ColumnAssistant))
	return sb.String()
}

// Evaluator assigns one LLM_Eval value to every row.
type Evaluator struct {
	scorer Scorer
	opts   Options
	logger *zap.Logger
	rec    Recorder
}

// NewEvaluator creates an evaluation stage. A nil scorer selects RandomScorer.
func NewEvaluator(scorer Scorer, opts Options, logger *zap.Logger) *Evaluator {
	if scorer == nil {
		scorer = NewRandomScorer(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{
		scorer: scorer,
		opts:   opts.normalized(),
		logger: logger.With(zap.String("component", "evaluation")),
		rec:    NopRecorder(),
	}
}

// WithRecorder sets the metrics recorder.
func (s *Evaluator) WithRecorder(rec Recorder) *Evaluator {
	if rec != nil {
		s.rec = rec
	}
	return s
}

// Evaluate writes a score into the LLM_Eval column of every row. A scorer
// error on a row becomes an error marker on that row only.
func (s *Evaluator) Evaluate(ctx context.Context, table types.Table) (types.Table, Report, error) {
	report := Report{Action: ActionEvaluate, Rows: table.Len()}
	if table.Len() == 0 {
		return types.Table{}, report, types.NewEmptyInputError("evaluation")
	}

	ctx, span := startSpan(ctx, "pipeline.evaluate", attribute.Int("rows", table.Len()))
	defer span.End()

	results := runIndexed(ctx, table.Len(), s.opts.Concurrency, func(ctx context.Context, i int) (string, error) {
		callCtx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
		defer cancel()
		return s.scorer.Score(callCtx, table.Rows[i])
	})

	for _, r := range results {
		if table.Rows[r.Index] == nil {
			table.Rows[r.Index] = types.Row{}
		}
		row := table.Rows[r.Index]
		if r.Err != nil {
			report.Failed++
			s.logger.Warn("evaluation failed for row",
				zap.Int("row", r.Index),
				zap.Error(r.Err))
			row[types.ColumnLLMEval] = fmt.Sprintf("%s%v", EvaluationErrorPrefix, r.Err)
			continue
		}
		report.Succeeded++
		row[types.ColumnLLMEval] = r.Value
	}

	recordReport(s.rec, report)
	s.logger.Info("evaluation completed",
		zap.Int("rows", report.Rows),
		zap.Int("failed", report.Failed))

	return types.Table{Columns: table.WithColumn(types.ColumnLLMEval), Rows: table.Rows}, report, nil
}
