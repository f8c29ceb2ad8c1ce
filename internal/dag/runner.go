package dag

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BartekS5/storefront-etl/pkg/logger"
	"golang.org/x/sync/errgroup"
)

type State string

const (
	StatePending   State = "pending"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateSkipped   State = "skipped"
)

// Result is the outcome of one task.
type Result struct {
	Name     string
	State    State
	Attempts int
	Err      error
	Duration time.Duration
}

// Report holds one Result per task in execution order.
type Report struct {
	Results []Result
}

// Failed reports whether any task did not succeed.
func (r *Report) Failed() bool {
	for _, res := range r.Results {
		if res.State != StateSucceeded {
			return true
		}
	}
	return false
}

// Err joins the errors of failed tasks.
func (r *Report) Err() error {
	var errs []error
	for _, res := range r.Results {
		if res.State == StateFailed {
			errs = append(errs, fmt.Errorf("%s: %w", res.Name, res.Err))
		}
	}
	return errors.Join(errs...)
}

func (r *Report) Get(name string) (Result, bool) {
	for _, res := range r.Results {
		if res.Name == name {
			return res, true
		}
	}
	return Result{}, false
}

// Runner executes a Graph.
type Runner struct {
	// Retries is the number of extra attempts after a failure. There is no
	// backoff between attempts.
	Retries int
	// Parallel runs the tasks of one level concurrently.
	Parallel bool
	// Retryable decides whether a failed attempt is worth repeating. Nil
	// means every error is retried.
	Retryable func(error) bool
	// Label prefixes log lines, e.g. a run id.
	Label string
}

// Run executes g level by level. A task whose DependsOn did not succeed is
// skipped; After edges only order the run. Run only returns once every task has a final state.
func (r *Runner) Run(ctx context.Context, g *Graph) *Report {
	results := make([]Result, len(g.tasks))
	for i, t := range g.tasks {
		results[i] = Result{Name: t.Name, State: StatePending}
	}

	for _, level := range g.levels {
		if r.Parallel && len(level) > 1 {
			var eg errgroup.Group
			for _, n := range level {
				n := n
				eg.Go(func() error {
					results[n] = r.runTask(ctx, g, n, results)
					return nil
				})
			}
			_ = eg.Wait()
			continue
		}
		for _, n := range level {
			results[n] = r.runTask(ctx, g, n, results)
		}
	}

	report := &Report{}
	for _, level := range g.levels {
		for _, n := range level {
			report.Results = append(report.Results, results[n])
		}
	}
	return report
}

// runTask only reads results of earlier levels, which are final by now.
func (r *Runner) runTask(ctx context.Context, g *Graph, n int, results []Result) Result {
	t := g.tasks[n]
	res := Result{Name: t.Name}

	for _, dep := range t.DependsOn {
		if st := results[g.index[dep]].State; st != StateSucceeded {
			logger.Warnf("%sSkipping task %s: upstream %s %s", r.prefix(), t.Name, dep, st)
			res.State = StateSkipped
			res.Err = fmt.Errorf("%w: upstream %s %s", ErrSkipped, dep, st)
			return res
		}
	}

	start := time.Now()
	maxAttempts := 1 + r.Retries
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	for res.Attempts < maxAttempts {
		if err := ctx.Err(); err != nil {
			if res.Attempts == 0 {
				res.State = StateSkipped
				res.Err = fmt.Errorf("%w: %v", ErrSkipped, err)
				return res
			}
			break
		}
		res.Attempts++
		logger.Infof("%sRunning task %s (attempt %d/%d)", r.prefix(), t.Name, res.Attempts, maxAttempts)
		res.Err = safeRun(ctx, t)
		if res.Err == nil {
			break
		}
		logger.Errorf("%sTask %s failed on attempt %d: %v", r.prefix(), t.Name, res.Attempts, res.Err)
		if r.Retryable != nil && !r.Retryable(res.Err) {
			logger.Warnf("%sNot retrying task %s: error is not retryable", r.prefix(), t.Name)
			break
		}
	}
	res.Duration = time.Since(start)

	if res.Err != nil {
		res.State = StateFailed
		return res
	}
	res.State = StateSucceeded
	logger.Infof("%sTask %s succeeded in %s", r.prefix(), t.Name, res.Duration.Round(time.Millisecond))
	return res
}

func (r *Runner) prefix() string {
	if r.Label == "" {
		return ""
	}
	return "[" + r.Label + "] "
}

func safeRun(ctx context.Context, t Task) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("task %s panicked: %v", t.Name, p)
		}
	}()
	return t.Run(ctx)
}
