package cli

import (
	"context"
	"fmt"
	"sync"

	"github.com/BartekS5/storefront-etl/pkg/logger"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
)

func newScheduleCmd(root *RootOptions) *cobra.Command {
	opts := &runOptions{}
	var spec string
	var runNow bool

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the pipeline on a cron schedule until interrupted",
		Example: `  storefront-etl schedule --cron "@daily"
  storefront-etl schedule --cron "*/30 * * * *" --entities products,carts --parallel-fetch`,
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
			return schedule(c.Context(), spec, runNow, func(ctx context.Context) {
				if _, err := runOnce(ctx, p); err != nil {
					logger.Errorf("Scheduled run failed: %v", err)
				}
				if opts.UploadLogs {
					a.uploadLogs(ctx, p)
				}
			})
		},
	}
	opts.bind(cmd.Flags())
	cmd.Flags().StringVar(&spec, "cron", "@daily", "Cron expression (5 fields or a descriptor such as @hourly)")
	cmd.Flags().BoolVar(&runNow, "run-now", false, "Also run once immediately")
	return cmd
}

// schedule calls job on every tick of spec until ctx is done. A tick that
// arrives while the previous job is still running is skipped.
func schedule(ctx context.Context, spec string, runNow bool, job func(context.Context)) error {
	c := cron.New(
		cron.WithLogger(cron.PrintfLogger(logger.InfoLog)),
		cron.WithChain(cron.Recover(cron.PrintfLogger(logger.ErrorLog)), cron.SkipIfStillRunning(cron.PrintfLogger(logger.WarnLog))),
	)
	id, err := c.AddFunc(spec, func() { job(ctx) })
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", spec, err)
	}

	c.Start()
	logger.Infof("Scheduled pipeline with %q, next run at %s", spec, c.Entry(id).Next.Format("2006-01-02 15:04:05"))
	var immediate sync.WaitGroup
	if runNow {
		// through the wrapped job so the skip guard also covers it
		immediate.Add(1)
		go func() {
			defer immediate.Done()
			c.Entry(id).WrappedJob.Run()
		}()
	}

	<-ctx.Done()
	logger.Infof("Stopping scheduler, waiting for a running pipeline to finish...")
	<-c.Stop().Done()
	immediate.Wait()
	return nil
}
