// Package pipeline orchestrates the three analysis stages (spec
// component C10): parse → decompose (log-call identification) → analyze
// (coverage calculation), each bounded by a queue so a slow downstream
// stage applies back-pressure rather than letting memory grow unbounded.
package pipeline

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dlogcover/dlogcover/internal/astmodel"
	"github.com/dlogcover/dlogcover/internal/astparse"
	"github.com/dlogcover/dlogcover/internal/cache"
	"github.com/dlogcover/dlogcover/internal/compiledb"
	"github.com/dlogcover/dlogcover/internal/coverage"
	"github.com/dlogcover/dlogcover/internal/debug"
	"github.com/dlogcover/dlogcover/internal/logident"
	"github.com/dlogcover/dlogcover/internal/pool"
	"github.com/dlogcover/dlogcover/internal/source"
)

// StageStats carries one stage's running counters. All fields are
// updated via atomics so Snapshot can be read from any goroutine.
type StageStats struct {
	FilesProcessed int64
	Errors         int64
	CacheHits      int64
	QueueDepth     int64
}

// Snapshot is an immutable copy of StageStats for reporting.
type Snapshot struct {
	FilesProcessed int64
	Errors         int64
	CacheHits      int64
	QueueDepth     int64
}

func (s *StageStats) snapshot() Snapshot {
	return Snapshot{
		FilesProcessed: atomic.LoadInt64(&s.FilesProcessed),
		Errors:         atomic.LoadInt64(&s.Errors),
		CacheHits:      atomic.LoadInt64(&s.CacheHits),
		QueueDepth:     atomic.LoadInt64(&s.QueueDepth),
	}
}

// FileResult is the terminal per-file outcome: parsed tree, identified
// log calls, and computed coverage stats. Files that failed to parse
// carry Err set and zero Stats.
type FileResult struct {
	RelPath     string
	Tree        *astparse.Result
	LogCalls    []*logident.LogCall
	Stats       coverage.Stats
	Suggestions []coverage.Suggestion
	Functions   []FunctionResult
	Err         error
}

// FunctionTask is one top-level function/method awaiting analysis,
// tagged with a complexity estimate (the number of branch, loop and
// try/catch nodes in it; plain statements are not counted) so the
// analyze stage can process the riskiest functions first instead of in
// arbitrary tree order.
type FunctionTask struct {
	Node       *astmodel.Node
	Name       string
	Complexity int
	Trivial    bool // at most one branch/loop/try/catch node, e.g. a getter/setter
}

// FunctionResult is one function's computed coverage contribution,
// carried alongside its FileResult in the same complexity-first order
// FunctionTask established.
type FunctionResult struct {
	Name        string
	Complexity  int
	Stats       coverage.Stats
	Suggestions []coverage.Suggestion
}

// complexityKinds are the structural elements counted toward a
// function's complexity estimate.
var complexityKinds = []astmodel.NodeKind{
	astmodel.KindIf, astmodel.KindElse, astmodel.KindSwitch, astmodel.KindCase,
	astmodel.KindFor, astmodel.KindWhile, astmodel.KindDo,
	astmodel.KindTry, astmodel.KindCatch, astmodel.KindStatement,
}

// decomposeFunctions collects every top-level function/method in tree
// and sorts them complexity-descending, with trivial functions (at most
// one branch/loop/try/catch node) pushed to the end, per the "complex
// functions first, trivial getters/setters last" priority policy.
func decomposeFunctions(tree *astmodel.Node) []FunctionTask {
	nodes := tree.Collect(astmodel.KindFunction, astmodel.KindMethod)
	tasks := make([]FunctionTask, len(nodes))
	for i, n := range nodes {
		complexity := n.Count(complexityKinds...)
		tasks[i] = FunctionTask{Node: n, Name: n.Name, Complexity: complexity, Trivial: complexity <= 1}
	}
	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].Trivial != tasks[j].Trivial {
			return !tasks[i].Trivial
		}
		return tasks[i].Complexity > tasks[j].Complexity
	})
	return tasks
}

// functionStats computes one function's own coverage contribution by
// running coverage.Calculate on fn itself: Collect includes the node it
// starts from, so fn counts as exactly one function, keeping the sum over
// every function's Stats equal to the whole file's Stats.
func functionStats(fn *astmodel.Node, cfg coverage.Config) (coverage.Stats, []coverage.Suggestion) {
	return coverage.Calculate(fn.Begin.File, fn, cfg)
}

// Config wires the pipeline's collaborators and tuning knobs.
type Config struct {
	Driver      *astparse.Driver
	Cache       *cache.Cache
	CompileDB   *compiledb.DB
	Tables      *logident.Tables
	Coverage    coverage.Config
	QueueDepth  int // bounded channel capacity between stages
	Concurrency int // worker pool size driving the parse stage
	OnResult    func(FileResult)

	// ExtraIncludes are appended to every file's compile args, after
	// whatever the compile database or heuristic defaults produce —
	// the CLI's -I/--include-path flag surfaces here.
	ExtraIncludes []string

	// DisableWarmup skips the pool warm-up pass entirely (the CLI's
	// --disable-io-opt flag), trading a slower first wave of parses for
	// zero warm-up overhead.
	DisableWarmup bool
}

func (c Config) normalized() Config {
	if c.QueueDepth <= 0 {
		c.QueueDepth = 64
	}
	return c
}

// Pipeline runs the three bounded-queue stages over a source.Set. The
// parse stage fans work out across a work-stealing pool sized by
// cfg.Concurrency so CPU-bound parsing of many files overlaps; the
// decompose and analyze stages stay single-goroutine since they are
// cheap relative to parsing and must preserve per-file ordering against
// the channels feeding them.
type Pipeline struct {
	cfg  Config
	pool *pool.Pool

	parseStats     StageStats
	decomposeStats StageStats
	analyzeStats   StageStats

	results []FileResult
}

// New constructs a pipeline ready to Run over a file set.
func New(cfg Config) *Pipeline {
	cfg = cfg.normalized()
	return &Pipeline{cfg: cfg, pool: pool.New(cfg.Concurrency)}
}

// Run drives every file in set through parse → decompose → analyze,
// respecting ctx cancellation between tasks (never mid-task), and
// returns once every file has been processed or the context is
// cancelled. Gather() retrieves the accumulated results afterward.
func (p *Pipeline) Run(ctx context.Context, set *source.Set) error {
	if !p.cfg.DisableWarmup {
		p.warmUp(ctx)
	}

	parsed := make(chan parsedFile, p.cfg.QueueDepth)
	decomposed := make(chan decomposedFile, p.cfg.QueueDepth)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(parsed)
		return p.parseStage(gctx, set, parsed)
	})

	g.Go(func() error {
		defer close(decomposed)
		return p.decomposeStage(gctx, parsed, decomposed)
	})

	g.Go(func() error {
		return p.analyzeStage(gctx, decomposed)
	})

	err := g.Wait()
	p.pool.Shutdown()
	return err
}

// warmUp pre-constructs one parser per pool worker, bounding how many
// build concurrently via the pool's warm-up semaphore, so the parse
// stage's first wave of tasks doesn't all pay tree-sitter setup cost at
// once.
func (p *Pipeline) warmUp(ctx context.Context) {
	workers := p.pool.Workers()
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			if err := p.pool.AcquireWarmup(ctx); err != nil {
				return
			}
			defer p.pool.ReleaseWarmup()
			p.cfg.Driver.Prime()
		}()
	}
	wg.Wait()
}

type parsedFile struct {
	file source.File
	tree *astparse.Result
	err  error
}

type decomposedFile struct {
	file      source.File
	tree      *astparse.Result
	logCalls  []*logident.LogCall
	functions []FunctionTask
	err       error
}

// parseStage farms one task per file out to the worker pool so parsing
// of independent files overlaps; completed files are forwarded to out
// as their task finishes; Submit order is preserved only as a queue
// assignment, not a completion guarantee, so downstream stages must not
// assume parse order matches set.Files order.
func (p *Pipeline) parseStage(ctx context.Context, set *source.Set, out chan<- parsedFile) error {
	futures := make([]*pool.Future, 0, len(set.Files))
	for _, f := range set.Files {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		file := f
		future, err := p.pool.Submit(func(_ context.Context) {
			result, cacheHit, parseErr := p.parseOne(ctx, file)
			if cacheHit {
				atomic.AddInt64(&p.parseStats.CacheHits, 1)
			}
			if parseErr != nil {
				atomic.AddInt64(&p.parseStats.Errors, 1)
			}
			atomic.AddInt64(&p.parseStats.FilesProcessed, 1)
			atomic.StoreInt64(&p.parseStats.QueueDepth, int64(len(out)))

			select {
			case out <- parsedFile{file: file, tree: result, err: parseErr}:
			case <-ctx.Done():
			}
		})
		if err != nil {
			return err
		}
		futures = append(futures, future)
	}

	for _, future := range futures {
		if err := future.Wait(); err != nil {
			atomic.AddInt64(&p.parseStats.Errors, 1)
		}
	}
	return ctx.Err()
}

func (p *Pipeline) parseOne(ctx context.Context, f source.File) (*astparse.Result, bool, error) {
	var info compiledb.CompileInfo
	if p.cfg.CompileDB != nil {
		// ArgsFor degrades to heuristic project-include defaults when the
		// database has no entry for this file, rather than parsing with
		// no compiler context at all.
		info = p.cfg.CompileDB.ArgsFor(f.AbsPath)
	}
	for _, inc := range p.cfg.ExtraIncludes {
		info.IncludePaths = append(info.IncludePaths, inc)
		info.Arguments = append(info.Arguments, "-I"+inc)
	}

	if p.cfg.Cache != nil {
		key := cache.Key{Path: f.AbsPath, Size: f.Size, ModTime: timeFromUnixNano(f.ModTime)}
		if tree, ok := p.cfg.Cache.Get(key, f.Content); ok {
			debug.LogParse("cache hit for %s", f.RelPath)
			return &astparse.Result{Tree: tree}, true, nil
		}
	}

	result, err := p.cfg.Driver.Parse(ctx, f.AbsPath, f.Content, info)
	if err != nil {
		return nil, false, err
	}

	if p.cfg.Cache != nil {
		key := cache.Key{Path: f.AbsPath, Size: f.Size, ModTime: timeFromUnixNano(f.ModTime)}
		p.cfg.Cache.Put(key, f.Content, result.Tree)
	}

	return result, false, nil
}

func (p *Pipeline) decomposeStage(ctx context.Context, in <-chan parsedFile, out chan<- decomposedFile) error {
	for pf := range in {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		var calls []*logident.LogCall
		var functions []FunctionTask
		if pf.err == nil && pf.tree != nil {
			calls = logident.Identify(pf.tree.Tree, p.cfg.Tables)
			functions = decomposeFunctions(pf.tree.Tree)
		}
		atomic.AddInt64(&p.decomposeStats.FilesProcessed, 1)
		if pf.err != nil {
			atomic.AddInt64(&p.decomposeStats.Errors, 1)
		}
		atomic.StoreInt64(&p.decomposeStats.QueueDepth, int64(len(out)))

		select {
		case out <- decomposedFile{file: pf.file, tree: pf.tree, logCalls: calls, functions: functions, err: pf.err}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (p *Pipeline) analyzeStage(ctx context.Context, in <-chan decomposedFile) error {
	for df := range in {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		result := FileResult{RelPath: df.file.RelPath, Tree: df.tree, LogCalls: df.logCalls, Err: df.err}
		if df.err == nil && df.tree != nil {
			result.Stats, result.Suggestions = coverage.Calculate(df.file.RelPath, df.tree.Tree, p.cfg.Coverage)
			// Functions are analyzed in df.functions' complexity-first
			// priority order: the riskiest functions surface before
			// trivial getters/setters, even though every function's
			// Stats still folds into the same file-level result above.
			result.Functions = make([]FunctionResult, len(df.functions))
			for i, fn := range df.functions {
				stats, suggestions := functionStats(fn.Node, p.cfg.Coverage)
				result.Functions[i] = FunctionResult{
					Name: fn.Name, Complexity: fn.Complexity, Stats: stats, Suggestions: suggestions,
				}
			}
		}

		atomic.AddInt64(&p.analyzeStats.FilesProcessed, 1)
		if df.err != nil {
			atomic.AddInt64(&p.analyzeStats.Errors, 1)
		}

		p.results = append(p.results, result)
		if p.cfg.OnResult != nil {
			p.cfg.OnResult(result)
		}
	}
	return nil
}

// Gather returns every file's terminal result, in the order the analyze
// stage finished them. Call after Run returns.
func (p *Pipeline) Gather() []FileResult {
	return p.results
}

// ParseStats, DecomposeStats, and AnalyzeStats return a point-in-time
// snapshot of each stage's counters.
func (p *Pipeline) ParseStats() Snapshot     { return p.parseStats.snapshot() }
func (p *Pipeline) DecomposeStats() Snapshot { return p.decomposeStats.snapshot() }
func (p *Pipeline) AnalyzeStats() Snapshot   { return p.analyzeStats.snapshot() }

func timeFromUnixNano(n int64) time.Time {
	return time.Unix(0, n)
}
