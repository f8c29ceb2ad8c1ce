package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/BartekS5/storefront-etl/internal/dag"
	"github.com/BartekS5/storefront-etl/internal/etl"
	"github.com/BartekS5/storefront-etl/pkg/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type runOptions struct {
	Entities      string
	ParallelFetch bool
	Retries       int
	SchemaMode    string
	Disposition   string
	UploadLogs    bool
}

func (o *runOptions) bind(fs *pflag.FlagSet) {
	fs.StringVarP(&o.Entities, "entities", "e", "products", "Comma-separated entities to transform and load")
	fs.BoolVar(&o.ParallelFetch, "parallel-fetch", false, "Fetch all sources concurrently instead of one after another")
	fs.IntVarP(&o.Retries, "retries", "r", 1, "Extra attempts per failed task")
	fs.StringVar(&o.SchemaMode, "schema-mode", "", "explicit, header or autodetect (overrides the pipeline file)")
	fs.StringVar(&o.Disposition, "disposition", "", "truncate or append (overrides the pipeline file)")
	fs.BoolVar(&o.UploadLogs, "upload-logs", false, "Copy the log file to logs/execution_logs.txt in the artifact store after each run")
}

func newRunCmd(root *RootOptions) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run fetch, transform and load once as a task graph",
		RunE: func(c *cobra.Command, args []string) error {
			a, err := newApp(root)
			if err != nil {
				return err
			}
			defer a.Close()

			p, err := a.pipeline(c.Context(), opts)
			if err != nil {
				return err
			}
			_, err = runOnce(c.Context(), p)
			if opts.UploadLogs {
				err = errors.Join(err, a.uploadLogs(c.Context(), p))
			}
			return err
		},
	}
	opts.bind(cmd.Flags())
	return cmd
}

// runOnce returns an error when any task did not succeed.
func runOnce(ctx context.Context, p *etl.Pipeline) (*etl.RunResult, error) {
	res, err := p.Run(ctx)
	if err != nil {
		return nil, err
	}
	if res.Report.Failed() {
		failed := 0
		for _, r := range res.Report.Results {
			if r.State != dag.StateSucceeded {
				failed++
			}
		}
		return res, fmt.Errorf("run %s: %d of %d tasks did not succeed", res.RunID, failed, len(res.Report.Results))
	}
	return res, nil
}

// uploadLogs runs after the pipeline, whatever its outcome.
func (a *app) uploadLogs(ctx context.Context, p *etl.Pipeline) error {
	if err := etl.UploadLogs(ctx, p.Fetcher.Store, a.cfg.LogFile); err != nil {
		logger.Errorf("Could not upload logs: %v", err)
		return err
	}
	return nil
}
