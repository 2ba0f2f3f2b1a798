package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/spf13/cobra"

	"github.com/aristath/buildscope/internal/config"
	"github.com/aristath/buildscope/internal/events"
	"github.com/aristath/buildscope/internal/graph"
	"github.com/aristath/buildscope/internal/logging"
	"github.com/aristath/buildscope/internal/query"
	"github.com/aristath/buildscope/internal/report"
)

// app is the state shared by all subcommands of one invocation.
type app struct {
	stdout, stderr io.Writer

	configPath string
	logLevel   string
	jsonOut    bool
	progress   bool

	cfg     *config.Config
	logger  *slog.Logger
	engine  *query.Engine
	printer *report.Printer

	bus          *events.EventBus
	progressDone chan struct{}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "buildscope",
		Short: "Explain what a build did from its execution database",
		Long: `buildscope reads the task records a build engine persisted (a SQLite build
database or a JSON-lines export) and answers questions about them: which chain
of tasks bounded the build, why a task ran, what a change would re-run, where
the dependency graph has cycles, and what changed between two builds.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default: ~/.buildscope/config.json merged with .buildscope/config.json)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&a.jsonOut, "json", false, "write results as JSON")
	root.PersistentFlags().BoolVar(&a.progress, "progress", false, "report load progress and timings on stderr")

	root.AddCommand(
		newCriticalPathCmd(a),
		newTraceCmd(a, "why", graph.Ancestors, "Show every task TASK waited on"),
		newTraceCmd(a, "impact", graph.Descendants, "Show every task that would re-run if TASK changed"),
		newDiffCmd(a),
		newCyclesCmd(a),
		newOrderCmd(a),
		newConfigCmd(a),
	)
	return root
}

// setup loads configuration and builds the logger and query engine.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	var err error
	if a.configPath != "" {
		if _, statErr := os.Stat(a.configPath); statErr != nil {
			return fmt.Errorf("config file: %w", statErr)
		}
		a.cfg, err = config.Load("", a.configPath)
	} else {
		a.cfg, err = config.LoadDefault()
	}
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		a.cfg.Logging.Level = a.logLevel
	}
	if err := a.cfg.Validate(); err != nil {
		return err
	}

	a.logger = logging.New(a.cfg.Logging.Level, a.cfg.Logging.Format, a.stderr)
	cmd.SetContext(logging.WithLogger(cmd.Context(), a.logger))
	if a.progress {
		a.startProgress()
	}
	a.engine = query.New(query.Options{Config: a.cfg, Logger: a.logger, Bus: a.bus})
	a.printer = report.NewPrinter(a.stdout, a.cfg.Report.Color && !a.jsonOut)
	return nil
}

// startProgress creates the event bus and renders its events on stderr
// until stopProgress closes it.
func (a *app) startProgress() {
	a.bus = events.NewEventBus()
	ch := a.bus.SubscribeAll(0)
	a.progressDone = make(chan struct{})
	printer := report.NewPrinter(a.stderr, a.cfg.Report.Color)

	go func() {
		defer close(a.progressDone)
		for ev := range ch {
			printer.Event(ev)
		}
	}()
}

// stopProgress closes the bus and waits for pending events to be printed.
func (a *app) stopProgress() {
	if a.bus == nil {
		return
	}
	a.bus.Close()
	<-a.progressDone
	if n := a.bus.Dropped(); n > 0 {
		a.logger.Debug("progress events dropped", "count", n)
	}
}

// load builds the graph for path and reports its diagnostics on stderr.
func (a *app) load(ctx context.Context, path string) (*graph.Graph, error) {
	g, err := a.engine.LoadPath(ctx, path)
	if err != nil {
		return nil, err
	}
	if !a.jsonOut {
		report.NewPrinter(a.stderr, false).Diagnostics(g.Diagnostics())
	}
	return g, nil
}

// output is the JSON envelope of every command.
type output struct {
	Source      string             `json:"source,omitempty"`
	Diagnostics []graph.Diagnostic `json:"diagnostics,omitempty"`
	Result      any                `json:"result"`
}

func (a *app) emit(g *graph.Graph, result any, text func()) error {
	if !a.jsonOut {
		text()
		return nil
	}
	out := output{Result: result}
	if g != nil {
		out.Source = g.Source()
		out.Diagnostics = g.Diagnostics()
	}
	return report.JSON(a.stdout, out)
}

// run executes the CLI and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	// Progress lines are written from a second goroutine.
	stderr = &lockedWriter{w: stderr}
	a := &app{stdout: stdout, stderr: stderr}
	root := newRootCmd(a)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	a.stopProgress()
	if err == nil {
		return query.ExitOK
	}

	var qerr *query.Error
	if !errors.As(err, &qerr) {
		fmt.Fprintln(stderr, "Error:", err)
		return query.ExitInternal
	}
	if a.jsonOut {
		_ = report.JSON(stderr, map[string]any{"error": qerr})
	} else {
		report.NewPrinter(stderr, false).Error(qerr)
	}
	return query.ExitCode(qerr)
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
