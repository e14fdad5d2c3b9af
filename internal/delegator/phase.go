package delegator

import (
	"context"
	"fmt"

	"github.com/Iron-Ham/overseer/internal/batch"
	"github.com/Iron-Ham/overseer/internal/plan"
)

// DelegatePhase delegates every pending task in a phase with bounded
// concurrency. Each task is an independent batch item: a lock conflict or
// delegation error is recorded as that item's failure and never aborts the
// rest. Tasks whose file sets overlap contend on the atomic acquire, so one
// wins and the others report the conflict for a later retry.
func (d *Delegator) DelegatePhase(ctx context.Context, planID string, phase, maxConcurrency int) (batch.Summary[*Task], error) {
	p, err := d.store.Get(ctx, planID, 0)
	if err != nil {
		return batch.Summary[*Task]{}, err
	}
	if phase < 0 || phase >= len(p.Phases) {
		return batch.Summary[*Task]{}, fmt.Errorf("%w: phase %d of plan %s", plan.ErrTaskIndex, phase, planID)
	}

	var items []batch.Item[int]
	for i, t := range p.Phases[phase].Tasks {
		if t.Status == plan.TaskPending {
			items = append(items, batch.Item[int]{
				ID:      fmt.Sprintf("%s/%d/%d", planID, phase, i),
				Payload: i,
			})
		}
	}

	proc := batch.New[int, *Task](maxConcurrency, d.log)
	summary := proc.Execute(ctx, items, func(ctx context.Context, item batch.Item[int]) (*Task, error) {
		return d.Delegate(ctx, planID, phase, item.Payload)
	}, nil)

	d.log.Info("phase delegated", "plan_id", planID, "phase", phase,
		"delegated", summary.Succeeded, "conflicted", summary.Failed)
	return summary, nil
}
