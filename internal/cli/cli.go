// Package cli wires flags, configuration, and the execution engine into the
// taskforge command.
package cli

import (
	"context"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"taskforge/internal/cache"
	"taskforge/internal/dag"
	"taskforge/internal/fileset"
	"taskforge/internal/log"
	"taskforge/internal/runner"
	"taskforge/internal/shell"
	"taskforge/internal/task"
)

type options struct {
	file              string
	verbose           bool
	removeOutputs     bool
	workers           int
	timeout           string
	dryRun            bool
	continueOnFailure bool
	output            string
}

// NewRootCommand builds the taskforge CLI.
func NewRootCommand() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "taskforge [task]",
		Short: "Incremental task runner with content-addressed caching",
		Long: `taskforge runs a declarative graph of shell tasks, executing only the
tasks whose inputs changed since the last successful run. Independent tasks
run concurrently; dependency order is always respected.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			target := ""
			if len(args) == 1 {
				target = args[0]
			}
			return run(cmd.Context(), opts, target)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.file, "file", "f", "taskforge.toml", "task configuration file")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging and dependency analysis")
	flags.BoolVar(&opts.removeOutputs, "rm", false, "remove task outputs after successful runs")
	flags.IntVarP(&opts.workers, "workers", "w", 0, "maximum concurrent tasks (0 = number of CPUs)")
	flags.StringVarP(&opts.timeout, "timeout", "t", "", "default per-task timeout, e.g. 30s or 5m")
	flags.BoolVar(&opts.dryRun, "dry-run", false, "show what would run without executing anything")
	flags.BoolVarP(&opts.continueOnFailure, "continue-on-failure", "k", false, "keep executing later levels after a failure")
	flags.StringVarP(&opts.output, "output", "o", "stream", "task output mode: stream or group")

	return cmd
}

func run(ctx context.Context, opts *options, target string) error {
	logger := log.New(opts.verbose)
	defer func() { _ = logger.Sync() }()

	mode := runner.OutputMode(opts.output)
	if mode != runner.OutputStream && mode != runner.OutputGroup {
		return errors.Errorf("invalid output mode '%s' (want stream or group)", opts.output)
	}

	cfg, err := task.Load(opts.file, logger)
	if err != nil {
		return err
	}

	graph, err := dag.New(cfg.Tasks)
	if err != nil {
		return err
	}
	if opts.verbose {
		graph.LogRelationships(logger)
	}

	ids, err := targetClosure(graph, target, cfg.Settings.Default)
	if err != nil {
		return err
	}
	levels := graph.Levels(ids)

	cachePath := cache.Path(cfg.Settings.CacheDir, cfg.Path)
	store := cache.Load(cachePath, logger)
	logger.Debug("cache loaded",
		zap.String("path", cachePath), zap.Int("entries", store.Len()))

	resolver := fileset.NewResolver(logger)
	console := shell.NewConsole()

	workers := opts.workers
	if workers <= 0 {
		workers = cfg.Settings.Workers
	}

	defaultTimeout := cfg.Settings.DefaultTimeout
	if opts.timeout != "" {
		if d := task.ParseTimeout(opts.timeout, logger); d != nil {
			defaultTimeout = *d
		}
	}

	sched := &runner.Scheduler{
		Graph:    graph,
		Cache:    store,
		Detector: &runner.Detector{Cache: store, Resolver: resolver, Log: logger},
		Runner: &shell.Executor{
			Console: console,
			Stream:  mode == runner.OutputStream,
			Log:     logger,
		},
		Resolver:          resolver,
		Console:           console,
		Log:               logger,
		Workers:           workers,
		DefaultTimeout:    defaultTimeout,
		ContinueOnFailure: opts.continueOnFailure,
		RemoveOutputs:     opts.removeOutputs,
		Mode:              mode,
	}

	if opts.dryRun {
		sched.DryRun(levels)
		return nil
	}

	summary, runErr := sched.Run(ctx, levels)

	if summary.CacheChanged {
		store.Save(cachePath, logger)
	} else {
		logger.Debug("no changes detected, cache not saved")
	}

	logger.Info("run complete",
		zap.Int("executed", summary.Executed),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", len(summary.Failed)),
		zap.Duration("duration", summary.Duration))

	return runErr
}

// targetClosure picks the task IDs for this run: the explicit target's
// closure, else the configured default task's closure, else the whole graph.
func targetClosure(graph *dag.Graph, target, defaultTask string) ([]string, error) {
	switch {
	case target != "":
		return graph.RequiredTasks(target)
	case defaultTask != "":
		ids, err := graph.RequiredTasks(defaultTask)
		return ids, errors.Wrapf(err, "resolving default task '%s'", defaultTask)
	default:
		return graph.TopologicalOrder(), nil
	}
}
