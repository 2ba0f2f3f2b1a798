// Package query is the entry point for callers that analyse build records.
//
// An Engine holds only read-only settings. Every call receives the graphs it
// works on explicitly, so independent graphs can be analysed concurrently.
// All returned errors are *Error values carrying a stable Code.
package query

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/buildscope/internal/config"
	"github.com/aristath/buildscope/internal/diff"
	"github.com/aristath/buildscope/internal/events"
	"github.com/aristath/buildscope/internal/graph"
	"github.com/aristath/buildscope/internal/logging"
	"github.com/aristath/buildscope/internal/records"
)

const defaultProgressEvery = 10000

// Options configures an Engine. Zero values select defaults.
type Options struct {
	Config *config.Config
	Logger *slog.Logger
	// Bus receives progress and completion events. nil disables events.
	Bus *events.EventBus
	// ProgressEvery is the number of records between LoadProgress events.
	ProgressEvery int
}

// Engine dispatches queries to the loader, graph algorithms and diff engine.
type Engine struct {
	tolerance     time.Duration
	traceLimit    int
	logger        *slog.Logger
	bus           *events.EventBus
	progressEvery int
}

// New creates an Engine.
func New(opts Options) *Engine {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	e := &Engine{
		tolerance:     cfg.Diff.DurationTolerance.Std(),
		traceLimit:    cfg.Trace.Limit,
		logger:        opts.Logger,
		bus:           opts.Bus,
		progressEvery: opts.ProgressEvery,
	}
	if e.progressEvery <= 0 {
		e.progressEvery = defaultProgressEvery
	}
	return e
}

// log returns the configured logger, or the one carried by ctx.
func (e *Engine) log(ctx context.Context) *slog.Logger {
	if e.logger != nil {
		return e.logger
	}
	return logging.FromContext(ctx)
}

// run is the bookkeeping for one façade call.
type run struct {
	id     string
	op     string
	source string
	start  time.Time
}

func (e *Engine) begin(op, source string) *run {
	return &run{id: uuid.NewString(), op: op, source: source, start: time.Now()}
}

// end classifies err, logs and publishes the outcome.
func (e *Engine) end(ctx context.Context, r *run, err error) error {
	qerr := classify(err)
	elapsed := time.Since(r.start)
	e.bus.Publish(events.AnalysisCompletedEvent{
		Run:       r.id,
		Operation: r.op,
		Source:    r.source,
		Elapsed:   elapsed,
		Err:       errOrNil(qerr),
		Timestamp: time.Now(),
	})

	logger := e.log(ctx).With("run", r.id, "op", r.op, "source", r.source)
	if qerr != nil {
		logger.Debug("query failed", "code", qerr.Code, "elapsed", elapsed, "error", qerr)
		return qerr
	}
	logger.Debug("query finished", "elapsed", elapsed)
	return nil
}

func errOrNil(e *Error) error {
	if e == nil {
		return nil
	}
	return e
}

// LoadAndBuild streams every record of src into a new Graph. Diagnostics are
// logged at debug level and remain available on the graph for the caller to
// report.
func (e *Engine) LoadAndBuild(ctx context.Context, src records.Source) (*graph.Graph, error) {
	r := e.begin("load", src.Describe())
	g, err := e.build(ctx, r, src)
	if err := e.end(ctx, r, err); err != nil {
		return nil, err
	}
	return g, nil
}

func (e *Engine) build(ctx context.Context, r *run, src records.Source) (*graph.Graph, error) {
	logger := e.log(ctx).With("run", r.id, "source", r.source)
	logger.Debug("loading build record")

	g, err := graph.Build(ctx, r.source, e.counted(r, records.Load(ctx, src)))
	if err != nil {
		return nil, err
	}

	diags := g.Diagnostics()
	for _, d := range diags {
		logger.Debug("build record inconsistency", "kind", d.Kind, "node", d.NodeID, "ref", d.Ref, "offset", d.Offset)
	}
	logger.Info("graph built", "nodes", g.Len(), "edges", g.EdgeCount(), "diagnostics", len(diags),
		"elapsed", time.Since(r.start))
	e.bus.Publish(events.GraphBuiltEvent{
		Run:         r.id,
		Source:      r.source,
		Nodes:       g.Len(),
		Edges:       g.EdgeCount(),
		Diagnostics: len(diags),
		Elapsed:     time.Since(r.start),
		Timestamp:   time.Now(),
	})
	return g, nil
}

// counted passes seq through, publishing a LoadProgress event every
// progressEvery records.
func (e *Engine) counted(r *run, seq iter.Seq2[records.TaskRecord, error]) iter.Seq2[records.TaskRecord, error] {
	if e.bus == nil {
		return seq
	}
	return func(yield func(records.TaskRecord, error) bool) {
		n := 0
		for rec, err := range seq {
			if err == nil {
				n++
				if n%e.progressEvery == 0 {
					e.bus.Publish(events.LoadProgressEvent{Run: r.id, Source: r.source, Records: n, Timestamp: time.Now()})
				}
			}
			if !yield(rec, err) {
				return
			}
		}
	}
}

// LoadPath opens the build record at path, builds its graph and closes the store.
func (e *Engine) LoadPath(ctx context.Context, path string) (*graph.Graph, error) {
	src, closeFn, err := OpenPath(ctx, path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := closeFn(); cerr != nil {
			e.log(ctx).Warn("closing build record", "source", path, "error", cerr)
		}
	}()
	return e.LoadAndBuild(ctx, src)
}

// FindCycles lists every dependency cycle and marks the nodes on them.
// Cycles are a finding, not an error.
func (e *Engine) FindCycles(ctx context.Context, g *graph.Graph) ([]graph.Cycle, error) {
	r := e.begin("cycles", g.Source())
	cycles, err := g.DetectCycles(ctx)
	if err := e.end(ctx, r, err); err != nil {
		return nil, err
	}
	return cycles, nil
}

// CriticalPath returns the longest dependency chain. A graph already known to
// be cyclic is rejected without running detection again.
func (e *Engine) CriticalPath(ctx context.Context, g *graph.Graph) (*graph.CriticalPath, error) {
	r := e.begin("critical_path", g.Source())
	if known, cyclic := g.CyclesKnown(); known && cyclic {
		cycles, err := g.DetectCycles(ctx)
		if err != nil {
			return nil, e.end(ctx, r, err)
		}
		qerr := &Error{Code: GraphCyclic, Message: "critical path is undefined on a cyclic graph"}
		qerr.with("cycles", cycles)
		return nil, e.end(ctx, r, qerr)
	}
	path, err := g.CriticalPath(ctx)
	if err := e.end(ctx, r, err); err != nil {
		return nil, err
	}
	return path, nil
}

// TopologicalOrder returns node ids with dependencies first.
func (e *Engine) TopologicalOrder(ctx context.Context, g *graph.Graph) ([]string, error) {
	r := e.begin("order", g.Source())
	order, err := g.TopologicalOrder(ctx)
	if err := e.end(ctx, r, err); err != nil {
		return nil, err
	}
	return order, nil
}

// TraceEntry is one node reached by a trace.
type TraceEntry struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Status   records.Status `json:"status"`
	Duration time.Duration  `json:"duration_ns"`
	Depth    int            `json:"depth"`
	Via      string         `json:"via"`
}

// TraceResult is the outcome of a causality trace.
type TraceResult struct {
	Origin    string       `json:"origin"`
	Direction string       `json:"direction"`
	Entries   []TraceEntry `json:"entries"`
	Truncated bool         `json:"truncated,omitempty"`
}

// Trace walks ancestors or descendants of the node named by ref, which may be
// an id or a unique task name. At most the configured trace limit of entries
// is returned.
func (e *Engine) Trace(ctx context.Context, g *graph.Graph, ref string, dir graph.Direction) (*TraceResult, error) {
	r := e.begin("trace", g.Source())
	res, err := e.trace(ctx, g, ref, dir)
	if err := e.end(ctx, r, err); err != nil {
		return nil, err
	}
	return res, nil
}

func (e *Engine) trace(ctx context.Context, g *graph.Graph, ref string, dir graph.Direction) (*TraceResult, error) {
	origin, err := resolve(g, ref)
	if err != nil {
		return nil, err
	}
	seq, err := g.Trace(ctx, origin.ID, dir)
	if err != nil {
		return nil, err
	}

	res := &TraceResult{Origin: origin.ID, Direction: dir.String()}
	for step, err := range seq {
		if err != nil {
			return nil, err
		}
		if e.traceLimit > 0 && len(res.Entries) == e.traceLimit {
			res.Truncated = true
			break
		}
		res.Entries = append(res.Entries, TraceEntry{
			ID:       step.Node.ID,
			Name:     step.Node.Name,
			Status:   step.Node.Status,
			Duration: step.Node.Duration(),
			Depth:    step.Depth,
			Via:      step.Via,
		})
	}
	return res, nil
}

// Resolve finds the node named by ref: an exact id first, then a task name
// that occurs exactly once.
func (e *Engine) Resolve(g *graph.Graph, ref string) (*graph.Node, error) {
	n, err := resolve(g, ref)
	return n, errOrNil(classify(err))
}

func resolve(g *graph.Graph, ref string) (*graph.Node, error) {
	if n, ok := g.Node(ref); ok {
		return n, nil
	}
	ids := g.ByName(ref)
	switch len(ids) {
	case 0:
		qerr := &Error{Code: QueryUnknownNode, Message: fmt.Sprintf("no task with id or name %q in %s", ref, g.Source())}
		return nil, qerr.with("ref", ref)
	case 1:
		n, _ := g.Node(ids[0])
		return n, nil
	default:
		qerr := &Error{Code: QueryUnknownNode, Message: fmt.Sprintf("task name %q is ambiguous in %s; use an id", ref, g.Source())}
		return nil, qerr.with("ref", ref).with("candidates", ids)
	}
}

// Diff compares two graphs using the configured duration tolerance.
func (e *Engine) Diff(ctx context.Context, baseline, current *graph.Graph) (*diff.Result, error) {
	r := e.begin("diff", baseline.Source()+" -> "+current.Source())
	res, err := diff.Compare(ctx, baseline, current, diff.Options{DurationTolerance: e.tolerance})
	if err := e.end(ctx, r, err); err != nil {
		return nil, err
	}
	return res, nil
}

// DiffSources loads both sources concurrently, each into its own graph, and
// compares them.
func (e *Engine) DiffSources(ctx context.Context, baseline, current records.Source) (*diff.Result, error) {
	graphs, err := e.loadBoth(ctx, func(ctx context.Context, i int) (*graph.Graph, error) {
		return e.LoadAndBuild(ctx, []records.Source{baseline, current}[i])
	})
	if err != nil {
		return nil, err
	}
	return e.Diff(ctx, graphs[0], graphs[1])
}

// DiffPaths is DiffSources for two build records on disk.
func (e *Engine) DiffPaths(ctx context.Context, baseline, current string) (*diff.Result, error) {
	graphs, err := e.loadBoth(ctx, func(ctx context.Context, i int) (*graph.Graph, error) {
		return e.LoadPath(ctx, []string{baseline, current}[i])
	})
	if err != nil {
		return nil, err
	}
	return e.Diff(ctx, graphs[0], graphs[1])
}

func (e *Engine) loadBoth(ctx context.Context, load func(context.Context, int) (*graph.Graph, error)) ([2]*graph.Graph, error) {
	var graphs [2]*graph.Graph
	eg, egctx := errgroup.WithContext(ctx)
	for i := range graphs {
		eg.Go(func() error {
			g, err := load(egctx, i)
			graphs[i] = g
			return err
		})
	}
	if err := eg.Wait(); err != nil {
		return graphs, err
	}
	return graphs, nil
}
