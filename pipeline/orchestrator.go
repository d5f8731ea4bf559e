package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/BaSui01/evalflow/types"
)

// Action names a dataset operation.
type Action string

// 支持的操作
const (
	ActionInference Action = "inference"
	ActionEvaluate  Action = "evaluate"
	ActionAugment   Action = "augment"
)

// ParseAction validates an action name.
func ParseAction(s string) (Action, error) {
	switch a := Action(s); a {
	case ActionInference, ActionEvaluate, ActionAugment:
		return a, nil
	default:
		return "", types.NewUnsupportedActionError(s)
	}
}

// Params carries the per-action parameters of a dispatch.
type Params struct {
	// SystemColumn and UserColumn name the columns feeding inference.
	SystemColumn string
	UserColumn   string

	AugmentationFactor *int
	AugmentationPrompt *string
}

// Outcome is the result of a successful dispatch.
type Outcome struct {
	RunID    string        `json:"run_id"`
	Table    types.Table   `json:"table"`
	Report   Report        `json:"report"`
	Duration time.Duration `json:"duration"`
}

// RunRecord describes one dispatch for run history.
type RunRecord struct {
	ID        string
	Action    Action
	Status    string
	Error     string
	Report    Report
	StartedAt time.Time
	Duration  time.Duration
}

// Run statuses.
const (
	RunStatusSucceeded = "succeeded"
	RunStatusFailed    = "failed"
)

// RunSink persists run records. internal/runstore implements it.
type RunSink interface {
	SaveRun(ctx context.Context, rec RunRecord) error
}

// Orchestrator validates a request and routes it to a stage.
type Orchestrator struct {
	inferencer *Inferencer
	evaluator  *Evaluator
	augmenter  *Augmenter

	sink   RunSink
	rec    Recorder
	logger *zap.Logger
}

// NewOrchestrator wires the three stages.
func NewOrchestrator(inf *Inferencer, eval *Evaluator, aug *Augmenter, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		inferencer: inf,
		evaluator:  eval,
		augmenter:  aug,
		rec:        NopRecorder(),
		logger:     logger.With(zap.String("component", "orchestrator")),
	}
}

// WithRunSink records every dispatch in sink.
func (o *Orchestrator) WithRunSink(sink RunSink) *Orchestrator {
	o.sink = sink
	return o
}

// WithRecorder sets the metrics recorder for dispatches.
func (o *Orchestrator) WithRecorder(rec Recorder) *Orchestrator {
	if rec != nil {
		o.rec = rec
	}
	return o
}

// Dispatch runs action over table.
//
// Validation happens before any backend call: an empty table fails with
// EMPTY_INPUT, an unknown action with UNSUPPORTED_ACTION, and augment without
// a factor in [1, MaxAugmentationFactor] or a non-blank prompt with
// MISSING_PARAMETER. Nothing is
// retried at this level.
func (o *Orchestrator) Dispatch(ctx context.Context, action Action, table types.Table, params Params) (*Outcome, error) {
	started := time.Now()
	runID := uuid.NewString()

	ctx, span := startSpan(ctx, "pipeline.dispatch",
		attribute.String("action", string(action)),
		attribute.String("run_id", runID),
		attribute.Int("rows", table.Len()))
	defer span.End()

	out, report, err := o.dispatch(ctx, action, table, params)
	elapsed := time.Since(started)

	status := RunStatusSucceeded
	if err != nil {
		status = RunStatusFailed
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	o.rec.RecordStage(string(action), status, elapsed)
	o.save(ctx, RunRecord{
		ID:        runID,
		Action:    action,
		Status:    status,
		Error:     errString(err),
		Report:    report,
		StartedAt: started,
		Duration:  elapsed,
	})

	if err != nil {
		o.logger.Warn("dispatch failed",
			zap.String("run_id", runID),
			zap.String("action", string(action)),
			zap.Error(err))
		return nil, err
	}
	o.logger.Info("dispatch completed",
		zap.String("run_id", runID),
		zap.String("action", string(action)),
		zap.Int("rows_out", out.Len()),
		zap.Duration("duration", elapsed))
	return &Outcome{RunID: runID, Table: out, Report: report, Duration: elapsed}, nil
}

func (o *Orchestrator) dispatch(ctx context.Context, action Action, table types.Table, params Params) (types.Table, Report, error) {
	report := Report{Action: action, Rows: table.Len()}
	if table.Len() == 0 {
		return types.Table{}, report, types.NewEmptyInputError(string(action))
	}
	if _, err := ParseAction(string(action)); err != nil {
		return types.Table{}, report, err
	}

	var (
		out types.Table
		err error
	)
	switch action {
	case ActionInference:
		out, report, err = o.inferencer.Infer(ctx, table, params.SystemColumn, params.UserColumn)
	case ActionEvaluate:
		out, report, err = o.evaluator.Evaluate(ctx, table)
	case ActionAugment:
		if params.AugmentationFactor == nil {
			return types.Table{}, report, types.NewMissingParameterError("augmentationFactor")
		}
		if err := o.augmenter.checkFactor(table.Len(), *params.AugmentationFactor); err != nil {
			return types.Table{}, report, err
		}
		if params.AugmentationPrompt == nil || strings.TrimSpace(*params.AugmentationPrompt) == "" {
			return types.Table{}, report, types.NewMissingParameterError("augmentationPrompt")
		}
		out, report, err = o.augmenter.Augment(ctx, table, *params.AugmentationFactor, *params.AugmentationPrompt)
	}
	if err != nil {
		return types.Table{}, report, err
	}
	if out.Rows == nil {
		return types.Table{}, report, types.NewError(types.ErrCodeOperationFailed, "Operation failed")
	}
	return out, report, nil
}

func (o *Orchestrator) save(ctx context.Context, rec RunRecord) {
	if o.sink == nil {
		return
	}
	// 记录失败不影响调度结果
	if err := o.sink.SaveRun(context.WithoutCancel(ctx), rec); err != nil {
		o.logger.Warn("failed to save run record",
			zap.String("run_id", rec.ID),
			zap.Error(err))
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	var e *types.Error
	if errors.As(err, &e) {
		return string(e.Code) + ": " + e.Message
	}
	return err.Error()
}
