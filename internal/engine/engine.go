// Package engine compiles standalone graph documents on a bounded worker pool.
// The template catalog can be swapped while compilations are in flight.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/gyaneshwarpardhi/flowcode/internal/codegen"
	"github.com/gyaneshwarpardhi/flowcode/internal/config"
	"github.com/gyaneshwarpardhi/flowcode/internal/dag"
	"github.com/gyaneshwarpardhi/flowcode/internal/metrics"
	"github.com/gyaneshwarpardhi/flowcode/internal/nodespec"
)

// ErrQueueFull is returned when the compile queue has no room.
var ErrQueueFull = errors.New("compile queue full")

// DefaultEditorID prefixes variable names of standalone compilations.
const DefaultEditorID = "main"

// Request is one standalone compilation.
type Request struct {
	Name       string    `json:"name,omitempty"`
	EditorID   string    `json:"editorId,omitempty"`
	Graph      dag.Graph `json:"graph"`
	Instrument bool      `json:"instrument,omitempty"`
	// Select restricts generation to nodes whose spec name matches the glob, plus
	// their descendants, as an incremental run would.
	Select string `json:"select,omitempty"`
}

// Result is the outcome of one compilation.
type Result struct {
	Name        string               `json:"name,omitempty"`
	Digest      string               `json:"digest"`
	Code        string               `json:"code"`
	Generated   int                  `json:"generated"`
	Diagnostics []codegen.Diagnostic `json:"diagnostics,omitempty"`
	DurationMs  int64                `json:"duration_ms"`
	Error       string               `json:"error,omitempty"`
}

// Compiler runs compilations against the current catalog.
type Compiler struct {
	catalog atomic.Pointer[nodespec.Catalog]
	lang    codegen.Language
	pool    *workerPool[*Request, *Result]
	conf    config.CompilerConf
	logger  *slog.Logger
}

// New creates a Compiler using conf and starts its workers. Workers stop when ctx is
// cancelled or Shutdown is called.
func New(ctx context.Context, catalog *nodespec.Catalog, lang codegen.Language, conf config.CompilerConf, logger *slog.Logger) *Compiler {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Compiler{lang: lang, conf: conf, logger: logger}
	c.catalog.Store(catalog)
	c.pool = newWorkerPool[*Request, *Result](ctx, conf.Workers, conf.QueueDepth,
		func(ctx context.Context, r *Request) (*Result, error) {
			return c.compile(r), nil
		})
	return c
}

// SwapCatalog atomically replaces the template catalog (used on hot-reload).
func (c *Compiler) SwapCatalog(cat *nodespec.Catalog) {
	c.catalog.Store(cat)
}

// Catalog returns the catalog new compilations will use.
func (c *Compiler) Catalog() *nodespec.Catalog {
	return c.catalog.Load()
}

// Language returns the target language.
func (c *Compiler) Language() codegen.Language { return c.lang }

// Generator returns a code generator bound to the current catalog.
func (c *Compiler) Generator() *codegen.Generator {
	return codegen.New(c.catalog.Load(), c.lang, codegen.WithLogger(c.logger))
}

// Compile runs req on the pool and waits for the result.
// It fails fast with ErrQueueFull and gives up after the configured timeout.
func (c *Compiler) Compile(ctx context.Context, req *Request) (*Result, error) {
	resultC := make(chan *Result, 1)
	if !c.submit(req, resultC) {
		return nil, fmt.Errorf("%w (capacity %d)", ErrQueueFull, c.pool.QueueCap())
	}

	timeout := c.conf.Timeout()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case res := <-resultC:
		return res, nil
	case <-timer.C:
		return nil, fmt.Errorf("compile timeout after %v", timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// CompileBatch compiles every request concurrently and returns results in request
// order. Requests that cannot be queued or time out carry an Error.
func (c *Compiler) CompileBatch(ctx context.Context, reqs []*Request) []*Result {
	chans := make([]chan *Result, len(reqs))
	out := make([]*Result, len(reqs))
	for i, r := range reqs {
		chans[i] = make(chan *Result, 1)
		if !c.submit(r, chans[i]) {
			out[i] = &Result{Name: r.Name, Error: ErrQueueFull.Error()}
			chans[i] = nil
		}
	}

	timer := time.NewTimer(c.conf.Timeout())
	defer timer.Stop()
	expired := false
	for i, ch := range chans {
		if ch == nil {
			continue
		}
		if expired {
			select {
			case out[i] = <-ch:
			default:
				out[i] = &Result{Name: reqs[i].Name, Error: "compile timeout"}
			}
			continue
		}
		select {
		case out[i] = <-ch:
		case <-timer.C:
			expired = true
			out[i] = &Result{Name: reqs[i].Name, Error: "compile timeout"}
		case <-ctx.Done():
			expired = true
			out[i] = &Result{Name: reqs[i].Name, Error: ctx.Err().Error()}
		}
	}
	return out
}

func (c *Compiler) submit(req *Request, resultC chan<- *Result) bool {
	ok := c.pool.Submit(req, func(r *Result, _ error) { resultC <- r })
	metrics.CompileQueueUtilization.Set(c.QueueUtilization())
	if !ok {
		metrics.CompileJobsDropped.Inc()
	}
	return ok
}

// QueueUtilization returns queue used / capacity (0–1).
func (c *Compiler) QueueUtilization() float64 {
	if c.pool.QueueCap() == 0 {
		return 0
	}
	return float64(c.pool.QueueLen()) / float64(c.pool.QueueCap())
}

func (c *Compiler) compile(req *Request) *Result {
	start := time.Now()
	res := &Result{Name: req.Name}
	defer func() {
		res.DurationMs = time.Since(start).Milliseconds()
		metrics.GenerationDuration.Observe(float64(time.Since(start).Microseconds()) / 1000)
	}()

	mode := metrics.ModeFull
	if req.Select != "" {
		mode = metrics.ModeIncremental
	}
	fail := func(err error) *Result {
		res.Error = err.Error()
		metrics.CodeGenerations.WithLabelValues(mode, "error").Inc()
		c.logger.Warn("compile failed", "name", req.Name, "err", err)
		return res
	}

	if err := dag.Validate(req.Graph); err != nil {
		return fail(err)
	}
	digest, err := dag.Digest(req.Graph)
	if err != nil {
		return fail(err)
	}
	res.Digest = digest

	g := req.Graph
	if req.Select != "" {
		sub, err := selectGraph(g, req.Select)
		if err != nil {
			return fail(err)
		}
		g = sub
	}

	editorID := req.EditorID
	if editorID == "" {
		editorID = DefaultEditorID
	}
	if !dag.ValidID(editorID) {
		return fail(fmt.Errorf("editor id %q must contain only letters and digits", editorID))
	}
	p, err := c.Generator().CodeFromGraph(editorID, g, req.Instrument)
	if err != nil {
		return fail(err)
	}
	res.Code = p.Code
	res.Generated = p.Generated
	res.Diagnostics = p.Diagnostics
	metrics.CodeGenerations.WithLabelValues(mode, "ok").Inc()
	metrics.ObserveProgram(p.Generated, len(p.Diagnostics))
	return res
}

// selectGraph keeps the nodes whose spec name matches pattern and everything
// downstream of them.
func selectGraph(g dag.Graph, pattern string) (dag.Graph, error) {
	if !doublestar.ValidatePattern(pattern) {
		return dag.Graph{}, fmt.Errorf("select: bad pattern %q", pattern)
	}
	var seeds []string
	for _, n := range g.Nodes {
		if ok, _ := doublestar.Match(pattern, n.Data.SpecName); ok {
			seeds = append(seeds, n.ID)
		}
	}
	sub, _ := dag.ConnectedSubgraph(g, seeds, true, nil)
	return sub, nil
}

// Shutdown drains the pool gracefully.
func (c *Compiler) Shutdown() {
	c.pool.Drain()
}
