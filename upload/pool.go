package upload

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"vidsync/reconcile"
)

// Uploader uploads one task. *Executor implements it.
type Uploader interface {
	Upload(ctx context.Context, task reconcile.UploadTask) (*Result, error)
}

// Outcome is the result of one task in a pool run.
type Outcome struct {
	Task   reconcile.UploadTask
	Result *Result
	// Err is a *TaskError when the upload failed, or context.Canceled when
	// the task was never started because the run stopped early.
	Err error
}

// Pool runs upload tasks with bounded concurrency. Each task keeps its own
// retry state; a failure only affects its own task unless FailFast is set.
type Pool struct {
	uploader    Uploader
	concurrency int
	failFast    bool

	// OnOutcome, when set, is called as each task finishes. Calls are
	// serialized.
	OnOutcome func(Outcome)
}

// NewPool creates a pool. Concurrency below 1 means sequential uploads.
func NewPool(uploader Uploader, concurrency int, failFast bool) *Pool {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Pool{
		uploader:    uploader,
		concurrency: concurrency,
		failFast:    failFast,
	}
}

// Run uploads every task and returns their outcomes in task order. With
// FailFast, the first failure stops dispatch: uploads already running are
// left to finish and tasks not yet started are reported with
// context.Canceled. Canceling ctx stops dispatch the same way.
func (p *Pool) Run(ctx context.Context, tasks []reconcile.UploadTask) []Outcome {
	dispatch, stop := context.WithCancel(ctx)
	defer stop()

	outcomes := make([]Outcome, len(tasks))
	var mu sync.Mutex

	// Task errors stay in outcomes; the group only bounds concurrency.
	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for i, task := range tasks {
		if dispatch.Err() != nil {
			outcomes[i] = Outcome{Task: task, Err: context.Canceled}
			continue
		}
		g.Go(func() error {
			if dispatch.Err() != nil {
				outcomes[i] = Outcome{Task: task, Err: context.Canceled}
				return nil
			}

			res, err := p.uploader.Upload(ctx, task)
			if err != nil && p.failFast {
				stop()
			}

			mu.Lock()
			defer mu.Unlock()
			outcomes[i] = Outcome{Task: task, Result: res, Err: err}
			if p.OnOutcome != nil {
				p.OnOutcome(outcomes[i])
			}
			return nil
		})
	}
	g.Wait()
	return outcomes
}

// Failed returns the outcomes that did not complete.
func Failed(outcomes []Outcome) []Outcome {
	var failed []Outcome
	for _, o := range outcomes {
		if o.Err != nil {
			failed = append(failed, o)
		}
	}
	return failed
}
