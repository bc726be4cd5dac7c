package main

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/regbench/internal/entity"
	"github.com/joseph-ayodele/regbench/internal/pipeline"
)

func newRootCmd() *cobra.Command {
	o := &options{}
	root := &cobra.Command{
		Use:   "regbench",
		Short: "Benchmark regulations across jurisdictions",
		Long: `regbench derives a shared set of benchmarking dimensions from segmented
regulatory documents, maps every logical unit onto them until coverage closes,
and writes a comparative analysis workbook.

Typical use:
  regbench run ./segmented        # import, define, analyze and report
  regbench define --resume        # continue an interrupted closure loop`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&o.configFile, "config", "", "YAML config file")
	pf.StringVar(&o.envFile, "env-file", "", "dotenv file (default .env if present)")
	pf.StringVar(&o.logLevel, "log-level", "info", "debug, info, warn or error")
	pf.StringVar(&o.logFormat, "log-format", "text", "text or json")
	pf.StringVar(&o.store, "store", "local", "local, s3, sqlite or postgres")
	pf.IntVar(&o.workers, "workers", 4, "concurrent oracle calls")
	pf.StringVar(&o.metricsFile, "metrics-file", "", "write prometheus metrics to this textfile on exit")

	root.AddCommand(
		newImportCmd(o),
		newDefineCmd(o),
		newAnalyzeCmd(o),
		newReportCmd(o),
		newRunCmd(o),
		newHealthCmd(o),
	)
	return root
}

func newImportCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "import <dir>",
		Short: "Import segmented JSON documents into the store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, o, false, func(ctx context.Context, a *app) error {
				results, stats, err := a.proc.Import(ctx, args[0])
				for _, r := range results {
					switch {
					case r.Err != "":
						a.printf("FAIL  %s: %s\n", r.SourcePath, r.Err)
					case r.Deduplicated:
						a.printf("SAME  %s (%s)\n", r.SourcePath, r.Tag)
					default:
						a.printf("OK    %s -> %s (%d units)\n", r.SourcePath, r.Tag, r.Units)
					}
				}
				a.printf("imported %d, unchanged %d, failed %d\n", stats.Succeeded-stats.Deduplicated, stats.Deduplicated, stats.Failed)
				return err
			})
		},
	}
}

func newDefineCmd(o *options) *cobra.Command {
	var resume bool
	cmd := &cobra.Command{
		Use:   "define",
		Short: "Build the dimension framework and map every unit onto it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, o, true, func(ctx context.Context, a *app) error {
				res, err := a.proc.Define.Run(ctx, resume)
				if err != nil {
					return err
				}
				a.printf("dimensions: %d\noutcome: %s after %d iterations\n",
					res.Framework.Len(), res.Closure.Outcome, res.Closure.Iterations)
				printUnconverged(a, res.Closure.Unconverged)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&resume, "resume", false, "reuse the stored framework and mapping")
	return cmd
}

func newAnalyzeCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze",
		Short: "Run the comparative analysis over the stored mapping",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, o, true, func(ctx context.Context, a *app) error {
				out, err := a.proc.Analyze.Run(ctx)
				if err != nil {
					return err
				}
				a.printf("analyzed %d dimensions (non-core %d, failed %d)\n",
					len(out.Dimensions), len(out.NonCore), len(out.Failed))
				if len(out.Failed) > 0 {
					a.printf("failed: %s\n", strings.Join(out.Failed, ", "))
				}
				return nil
			})
		},
	}
}

func newReportCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Write the Excel workbook for the stored run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, o, false, func(ctx context.Context, a *app) error {
				key, err := a.proc.Report(ctx)
				if err != nil {
					return err
				}
				a.printf("report: %s\n", filepath.Join(a.cfg.OutputDir, key))
				return nil
			})
		},
	}
}

func newRunCmd(o *options) *cobra.Command {
	var resume bool
	cmd := &cobra.Command{
		Use:   "run [dir]",
		Short: "Import, define, analyze and report in one go",
		Long:  "Without a directory, run benchmarks the documents already in the store.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := ""
			if len(args) == 1 {
				dir = args[0]
			}
			return run(cmd, o, true, func(ctx context.Context, a *app) error {
				sum, err := a.proc.Run(ctx, dir, pipeline.RunOptions{Resume: resume})
				if err != nil {
					return err
				}
				a.printf("dimensions: %d\noutcome: %s after %d iterations\n",
					sum.Define.Framework.Len(), sum.Define.Closure.Outcome, sum.Define.Closure.Iterations)
				printUnconverged(a, sum.Define.Closure.Unconverged)
				a.printf("report: %s\n", filepath.Join(a.cfg.OutputDir, sum.Report))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&resume, "resume", false, "reuse the stored framework and mapping")
	return cmd
}

func newHealthCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the configured store is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, o, false, func(ctx context.Context, a *app) error {
				if err := a.repo.Health(ctx); err != nil {
					return err
				}
				a.printf("ok (%s)\n", a.cfg.Store.Backend)
				return nil
			})
		},
	}
}

func printUnconverged(a *app, refs []entity.UnitRef) {
	if len(refs) == 0 {
		return
	}
	names := make([]string, len(refs))
	for i, r := range refs {
		names[i] = r.String()
	}
	a.printf("unconverged (%d): %s\n", len(refs), strings.Join(names, ", "))
}
