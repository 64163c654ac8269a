package main

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/c360studio/otrank/export"
	"github.com/c360studio/otrank/storage"
)

func reportsCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reports",
		Short: "Browse reports kept in the NATS KV bucket",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stored reports, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, flags, func(ctx context.Context, app *App, store *storage.Store) error {
				reports, err := store.List(ctx)
				if err != nil {
					return err
				}

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				_, _ = fmt.Fprintln(tw, "RUN ID\tDATASET\tSTATUS\tCREATED\tRANKING")
				for _, r := range reports {
					_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
						r.RunID, r.Dataset, r.Status, r.CreatedAt.Format("2006-01-02 15:04:05"), r.Order)
				}
				return tw.Flush()
			})
		},
	})

	var cid string
	show := &cobra.Command{
		Use:   "show [run-id]",
		Short: "Render a stored report",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (len(args) == 1) == (cid != "") {
				return errors.New("give either a run ID or --cid")
			}
			return withStore(cmd, flags, func(ctx context.Context, app *App, store *storage.Store) error {
				var (
					r   *export.Report
					err error
				)
				if cid != "" {
					r, err = store.FindByCID(ctx, cid, app.cfg.Rank.MarkednessBias)
				} else {
					r, err = store.Get(ctx, args[0])
				}
				if err != nil {
					return err
				}
				return export.Write(cmd.OutOrStdout(), r, app.format)
			})
		},
	}
	show.Flags().StringVar(&cid, "cid", "", "Show the latest report for this dataset fingerprint")
	cmd.AddCommand(show)

	return cmd
}

// withStore runs fn with a connected report store.
func withStore(cmd *cobra.Command, flags *globalFlags, fn func(ctx context.Context, app *App, store *storage.Store) error) error {
	app, err := newApp(cmd, flags)
	if err != nil {
		return err
	}
	if app.cfg.NATS.URL == "" || app.cfg.NATS.Bucket == "" {
		return errors.New("reports need nats.url and nats.bucket to be configured")
	}

	ctx := cmd.Context()
	if err := app.Start(ctx); err != nil {
		return err
	}
	defer app.Shutdown()

	return fn(ctx, app, app.Store())
}
