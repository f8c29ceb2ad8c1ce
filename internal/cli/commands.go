// Package cli handles the command-line interface logic
// using the Cobra library.
package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/BartekS5/storefront-etl/internal/config"
	"github.com/BartekS5/storefront-etl/internal/etl"
	"github.com/BartekS5/storefront-etl/pkg/models"
	"github.com/spf13/cobra"
)

// newFetchCmd fetches sources without transforming them.
func newFetchCmd(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "fetch [source...]",
		Short: "Fetch raw JSON from the configured endpoints into the artifact store",
		Long:  "Fetch every configured endpoint, or only the named ones, and store raw/{source}_raw.json.",
		RunE: func(c *cobra.Command, args []string) error {
			a, err := newApp(root)
			if err != nil {
				return err
			}
			defer a.Close()

			f, err := a.fetcher(c.Context())
			if err != nil {
				return err
			}

			var failed map[string]error
			if len(args) == 0 {
				failed = f.FetchAll(c.Context())
			} else {
				failed = make(map[string]error)
				for _, name := range args {
					if _, err := f.Fetch(c.Context(), name); err != nil {
						failed[name] = err
					}
				}
			}
			if len(failed) > 0 {
				names := make([]string, 0, len(failed))
				for n := range failed {
					names = append(names, n)
				}
				sort.Strings(names)
				return fmt.Errorf("fetch failed for %s", strings.Join(names, ", "))
			}
			return nil
		},
	}
}

func newTransformCmd(root *RootOptions) *cobra.Command {
	var source, out string

	cmd := &cobra.Command{
		Use:       "transform <entity>",
		Short:     "Transform a raw artifact into CSV",
		Args:      cobra.ExactArgs(1),
		ValidArgs: entityNames(),
		RunE: func(c *cobra.Command, args []string) error {
			e := models.Entity(strings.ToLower(args[0]))
			if !e.Valid() {
				return fmt.Errorf("unknown entity %q (want one of %s)", args[0], strings.Join(entityNames(), ", "))
			}
			a, err := newApp(root)
			if err != nil {
				return err
			}
			defer a.Close()

			s, err := a.store(c.Context())
			if err != nil {
				return err
			}
			if source == "" {
				source = models.RawPath(e.String())
			}
			if out == "" {
				out = a.csvPath(e)
			}
			_, err = etl.NewTransformer(s).TransformToCSV(c.Context(), e, source, out)
			return err
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "Artifact path to read (default raw/<entity>_raw.json)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "CSV file to write (default $CSV_DIR/<entity>.csv)")
	return cmd
}

func newLoadCmd(root *RootOptions) *cobra.Command {
	var csvPath string
	var over config.Overrides

	cmd := &cobra.Command{
		Use:       "load <entity>",
		Short:     "Bulk-load a transformed CSV into the warehouse",
		Args:      cobra.ExactArgs(1),
		ValidArgs: entityNames(),
		RunE: func(c *cobra.Command, args []string) error {
			e := models.Entity(strings.ToLower(args[0]))
			if !e.Valid() {
				return fmt.Errorf("unknown entity %q (want one of %s)", args[0], strings.Join(entityNames(), ", "))
			}
			a, err := newApp(root)
			if err != nil {
				return err
			}
			defer a.Close()

			target, err := config.ResolveTable(a.cfg, a.file, e, over)
			if err != nil {
				return err
			}
			w, err := a.warehouse(c.Context())
			if err != nil {
				return err
			}
			if csvPath == "" {
				csvPath = a.csvPath(e)
			}
			res, err := etl.NewLoader(w).Load(c.Context(), csvPath, target.TableID, target.Options)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.OutOrStdout(), "%s: %d rows, %d columns\n", res.Table, res.Rows, res.Columns)
			return nil
		},
	}
	cmd.Flags().StringVar(&csvPath, "csv", "", "CSV file to load (default $CSV_DIR/<entity>.csv)")
	cmd.Flags().StringVarP(&over.TableID, "table", "t", "", "Destination table as project.dataset.table")
	cmd.Flags().StringVar(&over.SchemaMode, "schema-mode", "", "explicit, header or autodetect")
	cmd.Flags().StringVar(&over.Disposition, "disposition", "", "truncate or append")
	return cmd
}

// newEntitiesCmd prints the resolved endpoint, table and columns per entity.
func newEntitiesCmd(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "entities",
		Short: "List entities with their endpoint and destination table",
		RunE: func(c *cobra.Command, args []string) error {
			a, err := newApp(root)
			if err != nil {
				return err
			}
			endpoints := config.Endpoints(a.file)
			w := c.OutOrStdout()
			for _, e := range models.Entities {
				target, err := config.ResolveTable(a.cfg, a.file, e, config.Overrides{})
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%s\n  endpoint: %s\n  table:    %s (%s, %s)\n", e, endpoints[e.String()],
					target.TableID, target.Options.Mode, target.Options.Disposition)
				if len(target.Options.Schema) > 0 {
					fmt.Fprintf(w, "  columns:  %s\n", strings.Join(target.Options.Schema.Names(), ", "))
				}
			}
			return nil
		},
	}
}

func entityNames() []string {
	names := make([]string, len(models.Entities))
	for i, e := range models.Entities {
		names[i] = e.String()
	}
	return names
}
