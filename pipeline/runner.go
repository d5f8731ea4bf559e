package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/evalflow/llm"
	"github.com/BaSui01/evalflow/llm/streaming"
)

// 默认值
const (
	DefaultConcurrency           = 1
	DefaultCallTimeout           = 60 * time.Second
	DefaultMaxAugmentationFactor = 100
)

// Options controls how a stage fans out its backend calls.
type Options struct {
	// Concurrency bounds in-flight items. 1 processes rows one after another.
	Concurrency int `yaml:"concurrency" json:"concurrency"`

	// CallTimeout bounds one completion call, including draining its stream.
	CallTimeout time.Duration `yaml:"call_timeout" json:"call_timeout"`

	// MaxAugmentationFactor caps the factor accepted by augmentation.
	MaxAugmentationFactor int `yaml:"max_augmentation_factor" json:"max_augmentation_factor"`
}

// DefaultOptions returns sequential processing with a 60s call timeout.
func DefaultOptions() Options {
	return Options{
		Concurrency:           DefaultConcurrency,
		CallTimeout:           DefaultCallTimeout,
		MaxAugmentationFactor: DefaultMaxAugmentationFactor,
	}
}

func (o Options) normalized() Options {
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = DefaultCallTimeout
	}
	if o.MaxAugmentationFactor <= 0 {
		o.MaxAugmentationFactor = DefaultMaxAugmentationFactor
	}
	return o
}

// Result is the outcome of one item, tagged with its input position.
type Result[T any] struct {
	Index int
	Value T
	Err   error
}

// runIndexed runs fn for indices [0, n) with at most limit in flight and
// returns results in index order.
//
// Workers never report errors to the group, so one failing item does not
// cancel its siblings. Once ctx is done no new item is started; items never
// started carry ctx.Err().
func runIndexed[T any](ctx context.Context, n, limit int, fn func(ctx context.Context, i int) (T, error)) []Result[T] {
	results := make([]Result[T], n)
	if n == 0 {
		return results
	}
	if limit <= 0 {
		limit = 1
	}

	var g errgroup.Group
	g.SetLimit(limit)

	for i := 0; i < n; i++ {
		results[i].Index = i
		if err := ctx.Err(); err != nil {
			results[i].Err = err
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i].Err = err
				return nil
			}
			v, err := fn(ctx, i)
			results[i].Value = v
			results[i].Err = err
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// completion 执行一次补全调用并将流折叠为文本。超时覆盖整个流读取过程；
// timeout 为 0 时沿用调用方 ctx 的截止时间。
type completion struct {
	client  llm.Client
	timeout time.Duration
	logger  *zap.Logger
	rec     Recorder
}

func (c completion) run(ctx context.Context, req llm.CompletionRequest) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	stream, err := c.client.Execute(ctx, req)
	if err != nil {
		return "", err
	}
	text, stats, err := streaming.Collect(stream, c.logger)
	if stats.Warnings > 0 {
		c.rec.RecordDecodeWarnings(stats.Warnings)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("reading completion stream: %w", ctxErr)
		}
		return "", fmt.Errorf("reading completion stream: %w", err)
	}
	return text, nil
}
