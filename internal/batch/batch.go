package batch

import (
	"context"
	"fmt"
	"sync"

	"github.com/sourcegraph/conc/pool"

	"github.com/Iron-Ham/overseer/internal/logging"
)

// Status of a finished batch.
type Status string

const (
	// StatusCompleted means every item succeeded (or the batch was empty).
	StatusCompleted Status = "completed"

	// StatusPartialFailure means some items succeeded and some failed.
	StatusPartialFailure Status = "partial_failure"

	// StatusFailed means no item succeeded.
	StatusFailed Status = "failed"
)

// Item is a single unit of batch work.
type Item[T any] struct {
	ID      string
	Payload T
}

// Result is the outcome of processing one item.
type Result[R any] struct {
	ItemID    string
	Succeeded bool
	Output    R
	Err       error
}

// Summary aggregates a finished batch. Results keeps submission order.
type Summary[R any] struct {
	Status    Status
	Total     int
	Succeeded int
	Failed    int
	Results   []Result[R]
}

// SuccessRate is the fraction of items that succeeded, 0 for an empty batch.
func (s Summary[R]) SuccessRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Succeeded) / float64(s.Total)
}

// Handler processes one item.
type Handler[T, R any] func(ctx context.Context, item Item[T]) (R, error)

// CompleteFunc observes each item result as it lands.
type CompleteFunc[R any] func(Result[R])

// Processor fans a batch of items out over a bounded worker set.
type Processor[T, R any] struct {
	maxConcurrency int
	log            *logging.Logger
}

// New creates a Processor. maxConcurrency below 1 is treated as 1.
func New[T, R any](maxConcurrency int, log *logging.Logger) *Processor[T, R] {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	if log == nil {
		log = logging.NopLogger()
	}
	return &Processor[T, R]{
		maxConcurrency: maxConcurrency,
		log:            log.WithComponent("batch"),
	}
}

// Execute runs the handler over every item with bounded concurrency. One
// item's failure (error or panic) is recorded without aborting the rest.
// onComplete, when non-nil, runs after each item; its panics are swallowed
// and logged so an observer bug never taints the summary.
func (p *Processor[T, R]) Execute(ctx context.Context, items []Item[T], handler Handler[T, R], onComplete CompleteFunc[R]) Summary[R] {
	results := make([]Result[R], len(items))

	var mu sync.Mutex
	workers := pool.New().WithMaxGoroutines(p.maxConcurrency)
	for i, item := range items {
		workers.Go(func() {
			res := p.runOne(ctx, item, handler)

			mu.Lock()
			results[i] = res
			mu.Unlock()

			if onComplete != nil {
				p.notify(onComplete, res)
			}
		})
	}
	workers.Wait()

	succeeded := 0
	for _, r := range results {
		if r.Succeeded {
			succeeded++
		}
	}
	failed := len(items) - succeeded

	status := StatusCompleted
	if failed > 0 {
		status = StatusPartialFailure
		if succeeded == 0 {
			status = StatusFailed
		}
	}

	p.log.Info("batch finished", "total", len(items), "succeeded", succeeded, "failed", failed)
	return Summary[R]{
		Status:    status,
		Total:     len(items),
		Succeeded: succeeded,
		Failed:    failed,
		Results:   results,
	}
}

func (p *Processor[T, R]) runOne(ctx context.Context, item Item[T], handler Handler[T, R]) (res Result[R]) {
	res.ItemID = item.ID
	defer func() {
		if r := recover(); r != nil {
			res.Succeeded = false
			res.Err = fmt.Errorf("handler panic: %v", r)
			p.log.Warn("batch item panicked", "item_id", item.ID, "panic", r)
		}
	}()

	out, err := handler(ctx, item)
	if err != nil {
		res.Err = err
		p.log.Warn("batch item failed", "item_id", item.ID, "error", err)
		return res
	}
	res.Succeeded = true
	res.Output = out
	return res
}

func (p *Processor[T, R]) notify(onComplete CompleteFunc[R], res Result[R]) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Warn("completion callback panicked", "item_id", res.ItemID, "panic", r)
		}
	}()
	onComplete(res)
}
