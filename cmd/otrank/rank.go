package main

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/c360studio/otrank/dataset"
	"github.com/c360studio/otrank/export"
	"github.com/c360studio/otrank/rcd"
)

func rankCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "rank <tableau-file>",
		Short: "Rank the constraints of one tableau file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd, flags)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := app.Start(ctx); err != nil {
				return err
			}
			defer app.Shutdown()

			r, runErr := app.Rank(args[0])
			return errors.Join(runErr, app.Deliver(ctx, r))
		},
	}
}

func batchCmd(flags *globalFlags) *cobra.Command {
	var (
		workers int
		reuse   bool
	)

	cmd := &cobra.Command{
		Use:   "batch <path-or-glob>...",
		Short: "Rank many tableau files concurrently",
		Long: `Rank every tableau file matched by the given paths, directories and glob
patterns ("**" matches any number of directories). Reports are written in
the order the files were resolved.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd, flags)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("workers") {
				app.cfg.Batch.Workers = workers
			}

			paths, err := dataset.Resolve(args)
			if err != nil {
				return err
			}
			if err := app.checkOutputNames(paths); err != nil {
				return err
			}

			ctx := cmd.Context()
			if err := app.Start(ctx); err != nil {
				return err
			}
			defer app.Shutdown()

			return app.Batch(ctx, paths, reuse)
		},
	}

	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "Concurrent rankings (0 = number of CPUs)")
	cmd.Flags().BoolVar(&reuse, "reuse", false, "Reuse stored reports for unchanged datasets (needs nats.bucket)")
	return cmd
}

// Batch ranks paths with bounded concurrency and delivers the reports in
// path order. Unrankable datasets yield an error wrapping
// rcd.ErrUnrankable; any other failure takes precedence.
func (a *App) Batch(ctx context.Context, paths []string, reuse bool) error {
	workers := a.cfg.Batch.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	reports := make([]*export.Report, len(paths))
	errs := make([]error, len(paths))
	reused := make([]bool, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if reuse {
				if r, err := a.storedReport(gctx, path); err == nil {
					reports[i], errs[i], reused[i] = r, reportError(r), true
					return nil
				}
			}
			reports[i], errs[i] = a.Rank(path)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var failed, unrankable []string
	var firstErr, firstUnrankable error
	for i, r := range reports {
		var err error
		if reused[i] {
			err = a.write(r)
		} else {
			err = a.Deliver(ctx, r)
		}
		if err != nil {
			return err
		}

		switch {
		case errs[i] == nil:
		case errors.Is(errs[i], rcd.ErrUnrankable):
			unrankable = append(unrankable, r.Dataset)
			if firstUnrankable == nil {
				firstUnrankable = errs[i]
			}
		default:
			failed = append(failed, r.Dataset)
			if firstErr == nil {
				firstErr = errs[i]
			}
		}
	}

	a.logger.Info("Batch complete",
		"datasets", len(paths),
		"failed", len(failed),
		"unrankable", len(unrankable))

	switch {
	case firstErr != nil:
		return fmt.Errorf("%d of %d datasets failed (%s): %w", len(failed), len(paths), strings.Join(failed, ", "), firstErr)
	case firstUnrankable != nil:
		return fmt.Errorf("%d of %d datasets unrankable (%s): %w", len(unrankable), len(paths), strings.Join(unrankable, ", "), firstUnrankable)
	}
	return nil
}

// checkOutputNames rejects batches whose reports would overwrite each other
// in the output directory.
func (a *App) checkOutputNames(paths []string) error {
	if a.cfg.Output.Dir == "" {
		return nil
	}
	seen := make(map[string]string)
	var clashes []string
	for _, p := range paths {
		out := a.OutputPath(p)
		if prev, ok := seen[out]; ok {
			clashes = append(clashes, fmt.Sprintf("%s and %s", prev, p))
			continue
		}
		seen[out] = p
	}
	if len(clashes) > 0 {
		sort.Strings(clashes)
		return fmt.Errorf("datasets share a report file name: %s", strings.Join(clashes, "; "))
	}
	return nil
}
