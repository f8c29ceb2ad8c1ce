package etl

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/BartekS5/storefront-etl/internal/dag"
	"github.com/BartekS5/storefront-etl/pkg/logger"
	"github.com/BartekS5/storefront-etl/pkg/models"
	"github.com/google/uuid"
)

// TableTarget is where and how one entity is loaded.
type TableTarget struct {
	TableID string
	Options LoadOptions
}

type PipelineOptions struct {
	// Sources are fetched in this order. Defaults to every known entity.
	Sources []string
	// Entities get a transform and a load task. Defaults to products.
	Entities []models.Entity
	// ParallelFetch makes the fetches independent siblings instead of a chain.
	ParallelFetch bool
	Retries       int
	CSVDir        string
	Tables        map[models.Entity]TableTarget
}

// Pipeline wires the three stages into a task graph.
type Pipeline struct {
	Fetcher     *Fetcher
	Transformer *Transformer
	Loader      *Loader
	Options     PipelineOptions
}

func NewPipeline(f *Fetcher, t *Transformer, l *Loader, opts PipelineOptions) *Pipeline {
	if len(opts.Sources) == 0 {
		for _, e := range models.Entities {
			opts.Sources = append(opts.Sources, e.String())
		}
	}
	if len(opts.Entities) == 0 {
		opts.Entities = []models.Entity{models.Products}
	}
	if opts.CSVDir == "" {
		opts.CSVDir = "."
	}
	return &Pipeline{Fetcher: f, Transformer: t, Loader: l, Options: opts}
}

// CSVPath is the local file the transform of e writes and its load reads.
func (p *Pipeline) CSVPath(e models.Entity) string {
	return filepath.Join(p.Options.CSVDir, e.String()+".csv")
}

// Graph builds fetch_<source>, transform_<entity> and load_<entity> tasks.
// Sequential graphs order the fetches one after another; with ParallelFetch
// they are independent siblings. A fetch failure only skips the transform of
// its own entity: the other fetches and transforms are ordered after it but
// still run.
func (p *Pipeline) Graph() (*dag.Graph, error) {
	var tasks []dag.Task
	var fetchNames []string
	for i, src := range p.Options.Sources {
		src := src
		t := dag.Task{
			Name: fetchTask(src),
			Run: func(ctx context.Context) error {
				_, err := p.Fetcher.Fetch(ctx, src)
				return err
			},
		}
		if !p.Options.ParallelFetch && i > 0 {
			t.After = []string{fetchNames[i-1]}
		}
		tasks = append(tasks, t)
		fetchNames = append(fetchNames, t.Name)
	}

	for _, e := range p.Options.Entities {
		e := e
		target, ok := p.Options.Tables[e]
		if !ok || target.TableID == "" {
			return nil, errorf(KindConfiguration, "build pipeline", "no destination table for %s", e)
		}
		csvPath := p.CSVPath(e)
		transform := dag.Task{
			Name: "transform_" + e.String(),
			Run: func(ctx context.Context) error {
				_, err := p.Transformer.TransformToCSV(ctx, e, models.RawPath(e.String()), csvPath)
				return err
			},
		}
		transform.DependsOn, transform.After = p.transformUpstream(e, fetchNames)
		load := dag.Task{
			Name:      "load_" + e.String(),
			DependsOn: []string{transform.Name},
			Run: func(ctx context.Context) error {
				_, err := p.Loader.Load(ctx, csvPath, target.TableID, target.Options)
				return err
			},
		}
		tasks = append(tasks, transform, load)
	}
	return dag.New(tasks)
}

func fetchTask(src string) string { return "fetch_" + src }

// transformUpstream hard-depends on the entity's own fetch and is only
// ordered after the rest: the last fetch of a sequential chain, or every
// sibling fetch in parallel mode.
func (p *Pipeline) transformUpstream(e models.Entity, fetchNames []string) (dependsOn, after []string) {
	own := fetchTask(e.String())
	candidates := fetchNames
	if !p.Options.ParallelFetch && len(fetchNames) > 0 {
		candidates = fetchNames[len(fetchNames)-1:]
	}
	for _, name := range fetchNames {
		if name == own {
			dependsOn = append(dependsOn, name)
		}
	}
	for _, name := range candidates {
		if name != own {
			after = append(after, name)
		}
	}
	return dependsOn, after
}

// RunResult summarises one orchestrated run.
type RunResult struct {
	RunID    string
	Report   *dag.Report
	Duration time.Duration
}

// Run executes the graph once. The returned error is only set when the
// graph itself is invalid; task failures are in the report.
func (p *Pipeline) Run(ctx context.Context) (*RunResult, error) {
	g, err := p.Graph()
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	mode := "sequential"
	if p.Options.ParallelFetch {
		mode = "parallel-fetch"
	}
	logger.Infof("Starting run %s (%s): %v", runID, mode, g.Levels())

	start := time.Now()
	runner := &dag.Runner{
		Retries:   p.Options.Retries,
		Parallel:  p.Options.ParallelFetch,
		Retryable: Retryable,
		Label:     runID,
	}
	report := runner.Run(ctx, g)
	res := &RunResult{RunID: runID, Report: report, Duration: time.Since(start)}

	for _, r := range report.Results {
		line := fmt.Sprintf("%-22s %-9s attempts=%d", r.Name, r.State, r.Attempts)
		if r.Err != nil {
			logger.Errorf("[%s] %s err=%v", runID, line, r.Err)
		} else {
			logger.Infof("[%s] %s", runID, line)
		}
	}
	if report.Failed() {
		logger.Errorf("Run %s finished with failures in %s", runID, res.Duration.Round(time.Millisecond))
	} else {
		logger.Infof("Run %s finished successfully in %s", runID, res.Duration.Round(time.Millisecond))
	}
	return res, nil
}
