package cli

import (
	"context"

	"github.com/BartekS5/storefront-etl/internal/config"
	"github.com/BartekS5/storefront-etl/pkg/logger"
	"github.com/spf13/cobra"
)

// RootOptions are the flags shared by every command.
type RootOptions struct {
	PipelineFile string
	LogFile      string
	LogLevel     string

	// cfg is loaded once before any command runs, with the log flags applied.
	cfg *config.Config
}

func NewRootCmd() *cobra.Command {
	opts := &RootOptions{}

	rootCmd := &cobra.Command{
		Use:   "storefront-etl",
		Short: "storefront-etl - fetch, transform and load storefront data",
		Long: `storefront-etl pulls users, products and carts from HTTP endpoints, keeps the raw
payloads in an artifact store, flattens them into CSV and bulk-loads the CSV into a warehouse
table (BigQuery or a SQL database).`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			if opts.LogFile != "" {
				cfg.LogFile = opts.LogFile
			}
			if opts.LogLevel != "" {
				cfg.LogLevel = opts.LogLevel
			}
			opts.cfg = cfg
			return logger.InitLogger(cfg.LogFile, logger.ParseLevel(cfg.LogLevel))
		},
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.PipelineFile, "pipeline", "p", "", "Path to the pipeline JSON file (endpoints, tables, schemas)")
	rootCmd.PersistentFlags().StringVar(&opts.LogFile, "log-file", "", "Also write logs to this file (default $LOG_FILE)")
	rootCmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "info or debug (default $LOG_LEVEL)")

	rootCmd.AddCommand(
		newRunCmd(opts),
		newScheduleCmd(opts),
		newFetchCmd(opts),
		newTransformCmd(opts),
		newLoadCmd(opts),
		newEntitiesCmd(opts),
	)

	return rootCmd
}

// Execute runs cmd and closes the log file afterwards, whether or not the
// command failed.
func Execute(ctx context.Context, cmd *cobra.Command) error {
	defer logger.Close()
	return cmd.ExecuteContext(ctx)
}
