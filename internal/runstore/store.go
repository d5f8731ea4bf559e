package runstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/evalflow/config"
	"github.com/BaSui01/evalflow/internal/database"
	"github.com/BaSui01/evalflow/pipeline"
	"github.com/BaSui01/evalflow/types"
)

// List limits.
const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// saveRetries bounds retries of a run insert on lock contention.
const saveRetries = 3

// QueryRecorder receives per-query latencies (implemented by metrics.Collector).
type QueryRecorder interface {
	RecordDBQuery(database, operation string, duration time.Duration)
}

// runModel is the persisted form of a pipeline.RunRecord.
type runModel struct {
	ID         string    `gorm:"primaryKey;size:36"`
	Action     string    `gorm:"size:16;index;not null"`
	Status     string    `gorm:"size:16;not null"`
	Error      string    `gorm:"type:text"`
	Rows       int       `gorm:"not null"`
	Succeeded  int       `gorm:"not null"`
	Failed     int       `gorm:"not null"`
	Variants   int       `gorm:"not null"`
	StartedAt  time.Time `gorm:"index;not null"`
	DurationMS int64     `gorm:"not null"`
}

func (runModel) TableName() string { return "evalflow_runs" }

func toModel(r pipeline.RunRecord) runModel {
	return runModel{
		ID:         r.ID,
		Action:     string(r.Action),
		Status:     r.Status,
		Error:      r.Error,
		Rows:       r.Report.Rows,
		Succeeded:  r.Report.Succeeded,
		Failed:     r.Report.Failed,
		Variants:   r.Report.Variants,
		StartedAt:  r.StartedAt.UTC(),
		DurationMS: r.Duration.Milliseconds(),
	}
}

func (m runModel) record() pipeline.RunRecord {
	action := pipeline.Action(m.Action)
	return pipeline.RunRecord{
		ID:     m.ID,
		Action: action,
		Status: m.Status,
		Error:  m.Error,
		Report: pipeline.Report{
			Action:    action,
			Rows:      m.Rows,
			Succeeded: m.Succeeded,
			Failed:    m.Failed,
			Variants:  m.Variants,
		},
		StartedAt: m.StartedAt,
		Duration:  time.Duration(m.DurationMS) * time.Millisecond,
	}
}

// Store persists dispatch history. It implements pipeline.RunSink.
type Store struct {
	pool     *database.PoolManager
	recorder QueryRecorder
	logger   *zap.Logger
}

var _ pipeline.RunSink = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithQueryRecorder reports query latencies.
func WithQueryRecorder(r QueryRecorder) Option {
	return func(s *Store) { s.recorder = r }
}

// New wraps an open pool and migrates the schema.
func New(ctx context.Context, pool *database.PoolManager, logger *zap.Logger, opts ...Option) (*Store, error) {
	if pool == nil {
		return nil, errors.New("runstore: pool is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{pool: pool, logger: logger.With(zap.String("component", "runstore"))}
	for _, opt := range opts {
		opt(s)
	}
	if err := pool.DB().WithContext(ctx).AutoMigrate(&runModel{}); err != nil {
		return nil, fmt.Errorf("failed to auto migrate runs: %w", err)
	}
	return s, nil
}

// Open connects using cfg and returns a ready store. The caller owns Close.
func Open(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger, stats database.StatsRecorder, opts ...Option) (*Store, error) {
	db, err := database.Open(cfg.Driver, cfg.DSN, logger)
	if err != nil {
		return nil, err
	}

	poolCfg := database.DefaultPoolConfig()
	if cfg.MaxOpenConns > 0 {
		poolCfg.MaxOpenConns = cfg.MaxOpenConns
	}
	if cfg.MaxIdleConns > 0 {
		poolCfg.MaxIdleConns = min(cfg.MaxIdleConns, poolCfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolCfg.ConnMaxLifetime = cfg.ConnMaxLifetime
	}

	var poolOpts []database.PoolOption
	if stats != nil {
		poolOpts = append(poolOpts, database.WithStatsRecorder(stats))
	}
	pool, err := database.NewPoolManager(db, poolCfg, logger, poolOpts...)
	if err != nil {
		return nil, err
	}

	s, err := New(ctx, pool, logger, opts...)
	if err != nil {
		_ = pool.Close()
		return nil, err
	}
	s.logger.Info("run store ready", zap.String("driver", cfg.Driver))
	return s, nil
}

// SaveRun inserts one run.
func (s *Store) SaveRun(ctx context.Context, r pipeline.RunRecord) error {
	defer s.observe("insert", time.Now())

	m := toModel(r)
	return s.pool.WithTransactionRetry(ctx, saveRetries, func(tx *gorm.DB) error {
		return tx.Create(&m).Error
	})
}

// ListRuns returns the most recent runs, newest first. A non-positive limit
// selects DefaultListLimit; larger values are capped at MaxListLimit.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]pipeline.RunRecord, error) {
	defer s.observe("list", time.Now())

	if limit <= 0 {
		limit = DefaultListLimit
	}
	limit = min(limit, MaxListLimit)

	var models []runModel
	err := s.pool.DB().WithContext(ctx).
		Order("started_at DESC").
		Order("id").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}

	out := make([]pipeline.RunRecord, len(models))
	for i, m := range models {
		out[i] = m.record()
	}
	return out, nil
}

// GetRun loads one run by ID. A missing run yields types.ErrNotFound.
func (s *Store) GetRun(ctx context.Context, id string) (pipeline.RunRecord, error) {
	defer s.observe("get", time.Now())

	var m runModel
	err := s.pool.DB().WithContext(ctx).Where("id = ?", id).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pipeline.RunRecord{}, types.NewError(types.ErrCodeNotFound, fmt.Sprintf("run %s not found", id))
	}
	if err != nil {
		return pipeline.RunRecord{}, fmt.Errorf("loading run %s: %w", id, err)
	}
	return m.record(), nil
}

// Ping checks the underlying connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

func (s *Store) observe(op string, start time.Time) {
	if s.recorder != nil {
		s.recorder.RecordDBQuery(s.pool.Name(), op, time.Since(start))
	}
}
