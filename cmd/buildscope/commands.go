package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aristath/buildscope/internal/config"
	"github.com/aristath/buildscope/internal/graph"
)

func newCriticalPathCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "critical-path BUILD",
		Short: "Show the longest chain of dependent tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := a.load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			path, err := a.engine.CriticalPath(cmd.Context(), g)
			if err != nil {
				return err
			}
			return a.emit(g, path, func() {
				a.printer.Summary(g)
				a.printer.CriticalPath(path)
			})
		},
	}
}

func newTraceCmd(a *app, use string, dir graph.Direction, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " BUILD TASK",
		Short: short,
		Long:  short + ". TASK is a task id or a task name that occurs once in the build.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := a.load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			res, err := a.engine.Trace(cmd.Context(), g, args[1], dir)
			if err != nil {
				return err
			}
			return a.emit(g, res, func() { a.printer.Trace(res) })
		},
	}
}

func newDiffCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "diff BASELINE CURRENT",
		Short: "Compare two builds task by task",
		Long: `Compare two builds task by task. Tasks are matched by name; a task counts as
changed when its status, input or output sets differ, or its duration moved by
more than diff.duration_tolerance.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.engine.DiffPaths(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return a.emit(nil, res, func() { a.printer.Diff(res) })
		},
	}
}

func newCyclesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "cycles BUILD",
		Short: "List dependency cycles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := a.load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			cycles, err := a.engine.FindCycles(cmd.Context(), g)
			if err != nil {
				return err
			}
			if cycles == nil {
				cycles = []graph.Cycle{}
			}
			return a.emit(g, cycles, func() { a.printer.Cycles(cycles) })
		},
	}
}

func newOrderCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "order BUILD",
		Short: "Print task ids with dependencies before dependents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := a.load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			ids, err := a.engine.TopologicalOrder(cmd.Context(), g)
			if err != nil {
				return err
			}
			return a.emit(g, ids, func() { a.printer.Order(ids) })
		},
	}
}

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage buildscope configuration",
		// Existing config files are not loaded here, so a broken one can be
		// overwritten with config init --force.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	}

	var global, force bool
	initCmd := &cobra.Command{
		Use:   "init [PATH]",
		Short: "Write the default configuration",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			globalPath, projectPath, err := config.DefaultPaths()
			if err != nil {
				return err
			}
			path := projectPath
			switch {
			case len(args) == 1:
				path = args[0]
			case global:
				path = globalPath
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := config.Save(config.DefaultConfig(), path); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&global, "global", false, "write ~/.buildscope/config.json instead of the project config")
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	cmd.AddCommand(initCmd)
	return cmd
}
