// Package scheduler implements the dependency & priority scheduler
// (spec §4.1): suites become eligible to run the moment their own
// `depends` edges resolve — not once an entire topological level has
// finished — tie-breaks suites that become eligible at the same instant
// by priority weight, estimated duration, and discovery index, detects
// and drops cyclic edges, and drives suites through a pending -> ready ->
// executing -> resolved/failed/skipped state machine via an injected
// SuiteRunner.
//
// The reactive ready-queue is grounded on the teacher's internal/engine
// Graph.TopologicalSort (Kahn's algorithm over step dependencies): the
// same indegree-decrement mechanics drive readiness here, except a node
// is released as soon as its own indegree reaches zero instead of
// waiting for every node at the same BFS depth to finish (spec.md §8
// Scenario A requires the former: D becomes eligible the moment its
// sole dependency B resolves, independent of whether sibling suite A —
// unrelated to B — has finished yet).
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/alexisbeaulieu97/flowtest/internal/model"
)

// DefaultMaxParallel is the default bound on suites executing concurrently
// across the whole run (spec §5 "Parallel across suites").
const DefaultMaxParallel = 5

// SuiteRunner executes one suite and returns its result. It is the seam
// between the scheduler and the suite executor (internal/executor).
type SuiteRunner func(ctx context.Context, suite model.DiscoveredSuite) model.SuiteResult

// ResultCache is consulted before running a suite; a hit on a resolved
// result short-circuits execution with the cached SuiteResult. A hit does
// not restore the suite's exported variables to any registry.
type ResultCache interface {
	// Get returns a cached result for the given identity key, if any.
	Get(key string) (model.SuiteResult, bool)
	// Put stores a successful result under key.
	Put(key string, result model.SuiteResult)
}

// ProgressFunc receives lifecycle notifications as the scheduler advances
// suites through their state machine. Any of the fields may be zero-valued
// depending on the event.
type ProgressFunc func(event string, suite model.DiscoveredSuite)

// Warning is emitted for non-fatal scheduling anomalies (dropped cycle
// edges, missing dependencies) so the caller can log them.
type Warning struct {
	Message string
	Err     error
}

// Scheduler orders and drives suite execution.
type Scheduler struct {
	cache       ResultCache
	identity    func(model.DiscoveredSuite) string
	warnings    []Warning
	maxParallel int64
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithResultCache installs a ResultCache consulted for every suite.
func WithResultCache(cache ResultCache) Option {
	return func(s *Scheduler) { s.cache = cache }
}

// WithMaxParallel bounds how many suites may execute concurrently (the
// number of workers draining the ready queue). n <= 0 is treated as DefaultMaxParallel; 1 makes Execute
// effectively sequential, which callers use when any discovered suite
// contains an interactive input step (spec §5).
func WithMaxParallel(n int) Option {
	return func(s *Scheduler) {
		if n <= 0 {
			n = DefaultMaxParallel
		}
		s.maxParallel = int64(n)
	}
}

// New creates a Scheduler. Suite identity defaults to
// "node_id@content_hash", falling back to node_id alone when no hash was
// discovered (spec §4.1 caching).
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		maxParallel: DefaultMaxParallel,
		identity: func(suite model.DiscoveredSuite) string {
			if suite.ContentHash != "" {
				return suite.NodeID + "@" + suite.ContentHash
			}
			return suite.NodeID
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Warnings returns the non-fatal anomalies recorded by the most recent Execute call.
func (s *Scheduler) Warnings() []Warning {
	return s.warnings
}

// Execute runs every suite to completion. A suite becomes eligible the
// instant its own dependencies resolve (spec §4.1/§8 Scenario A); ties
// among suites that become eligible at the same reactive instant are
// broken by priority weight, estimated duration, then discovery index
// (orderLevel). The returned results are ordered by dispatch sequence —
// the order the scheduler decided to launch each suite — not by which
// suite's run happened to finish first in wall-clock time, so identical
// inputs always produce an identical result order (Testable Property #3)
// regardless of how many suites run concurrently.
func (s *Scheduler) Execute(ctx context.Context, suites []model.DiscoveredSuite, run SuiteRunner, onProgress ProgressFunc) []model.SuiteResult {
	s.warnings = nil

	g := newGraph(suites)
	g.dropMissingDependencies(s.recordWarning)
	g.dropCycles(s.recordWarning)

	rs := &runState{
		g:          g,
		status:     make(map[string]model.SuiteStatus, len(suites)),
		indegree:   make(map[string]int, len(suites)),
		dependents: make(map[string][]string, len(suites)),
	}
	for _, suite := range suites {
		rs.status[suite.NodeID] = model.SuiteStatusPending
	}
	for nodeID, deps := range g.edges {
		rs.indegree[nodeID] = len(deps)
		for _, dep := range deps {
			rs.dependents[dep] = append(rs.dependents[dep], nodeID)
		}
	}

	rs.seqOf = make(map[string]int, len(suites))

	var initial []string
	for _, nodeID := range g.order {
		if rs.indegree[nodeID] == 0 {
			initial = append(initial, nodeID)
		}
	}
	rs.enqueue(g.orderLevel(initial))

	numWorkers := int(s.maxParallel)
	if numWorkers < 1 {
		numWorkers = 1
	}

	cond := sync.NewCond(&rs.mu)
	eg, ctx := errgroup.WithContext(ctx)
	for i := 0; i < numWorkers; i++ {
		eg.Go(func() error {
			for {
				rs.mu.Lock()
				for len(rs.queue) == 0 && rs.inFlight > 0 {
					cond.Wait()
				}
				if len(rs.queue) == 0 {
					rs.mu.Unlock()
					cond.Broadcast()
					return nil
				}

				nodeID := rs.queue[0]
				rs.queue = rs.queue[1:]
				suite := g.byID[nodeID]

				if rs.haltRequired {
					rs.finalizeLocked(suite, model.SuiteResult{
						NodeID:     suite.NodeID,
						Name:       suite.Name,
						Status:     model.SuiteStatusSkipped,
						SkipReason: "halted: a required dependency or predecessor failed",
					}, onProgress)
					rs.mu.Unlock()
					cond.Broadcast()
					continue
				}

				rs.status[nodeID] = model.SuiteStatusReady
				rs.inFlight++
				rs.mu.Unlock()

				result := s.executeOne(ctx, suite, run, onProgress)

				rs.mu.Lock()
				rs.inFlight--
				rs.finalizeLocked(suite, result, onProgress)
				rs.mu.Unlock()
				cond.Broadcast()
			}
		})
	}
	_ = eg.Wait()

	sort.SliceStable(rs.results, func(i, j int) bool { return rs.results[i].seq < rs.results[j].seq })
	out := make([]model.SuiteResult, len(rs.results))
	for i, r := range rs.results {
		out[i] = r.result
	}
	return out
}

// runState is the mutable bookkeeping for one Execute call: the reactive
// ready queue, per-node status and indegree, and the sequence numbers
// that fix result order to dispatch order (the order orderLevel placed
// suites on the queue) rather than to however long each suite's run()
// happens to take in wall-clock time. All fields except g (read-only
// after construction) are guarded by mu.
type runState struct {
	mu           sync.Mutex
	g            *graph
	status       map[string]model.SuiteStatus
	indegree     map[string]int
	dependents   map[string][]string
	queue        []string
	seqOf        map[string]int
	nextSeq      int
	inFlight     int
	haltRequired bool
	results      []seqResult
}

type seqResult struct {
	seq    int
	result model.SuiteResult
}

// enqueue appends nodeIDs (already ordered by the caller, e.g. via
// orderLevel) to the ready queue and fixes each one's place in the final
// result order at the moment it joins the queue. Must be called with
// rs.mu held.
func (rs *runState) enqueue(nodeIDs []string) {
	for _, nodeID := range nodeIDs {
		rs.seqOf[nodeID] = rs.nextSeq
		rs.nextSeq++
	}
	rs.queue = append(rs.queue, nodeIDs...)
}

// finalizeLocked records suite's outcome, decrements its dependents'
// indegree, and — for every dependent that becomes eligible as a
// result — either skips it immediately (halted, or blocked by a
// dependency that didn't resolve) or enqueues it for dispatch. Must be
// called with rs.mu held; recurses synchronously through skip chains
// since a skip never blocks on an external run().
func (rs *runState) finalizeLocked(suite model.DiscoveredSuite, result model.SuiteResult, onProgress ProgressFunc) {
	if rs.status[suite.NodeID] != model.SuiteStatusPending && rs.status[suite.NodeID] != model.SuiteStatusReady {
		return
	}

	rs.status[suite.NodeID] = result.Status
	rs.results = append(rs.results, seqResult{seq: rs.seqOf[suite.NodeID], result: result})

	if result.Status == model.SuiteStatusFailed && suite.Priority.Required() {
		rs.haltRequired = true
	}

	var newlyReady []string
	for _, dependent := range rs.dependents[suite.NodeID] {
		rs.indegree[dependent]--
		if rs.indegree[dependent] > 0 {
			continue
		}
		depSuite := rs.g.byID[dependent]
		rs.seqOf[dependent] = rs.nextSeq
		rs.nextSeq++

		if rs.haltRequired {
			rs.finalizeLocked(depSuite, model.SuiteResult{
				NodeID:     depSuite.NodeID,
				Name:       depSuite.Name,
				Status:     model.SuiteStatusSkipped,
				SkipReason: "halted: a required dependency or predecessor failed",
			}, onProgress)
			continue
		}
		if depID := rs.g.blockedByFailedDependency(depSuite, rs.status); depID != "" {
			rs.finalizeLocked(depSuite, model.SuiteResult{
				NodeID:     depSuite.NodeID,
				Name:       depSuite.Name,
				Status:     model.SuiteStatusSkipped,
				SkipReason: fmt.Sprintf("dependency %s did not resolve", depID),
			}, onProgress)
			continue
		}
		newlyReady = append(newlyReady, dependent)
	}

	if len(newlyReady) > 0 {
		rs.enqueue(rs.g.orderLevel(newlyReady))
	}
}

func (s *Scheduler) executeOne(ctx context.Context, suite model.DiscoveredSuite, run SuiteRunner, onProgress ProgressFunc) model.SuiteResult {
	key := s.identity(suite)
	if s.cache != nil {
		if cached, ok := s.cache.Get(key); ok && cached.Status == model.SuiteStatusResolved {
			cached.Cached = true
			cached.DurationMs = 0
			return cached
		}
	}

	if onProgress != nil {
		onProgress("suite.executing", suite)
	}

	result := run(ctx, suite)

	if result.Status == model.SuiteStatusResolved && s.cache != nil {
		s.cache.Put(key, result)
	}

	if onProgress != nil {
		onProgress("suite.done", suite)
	}

	return result
}

func (s *Scheduler) recordWarning(w Warning) {
	s.warnings = append(s.warnings, w)
}

// graph holds the suite dependency DAG and a per-node set of (retained)
// incoming edges used for Kahn's algorithm.
type graph struct {
	byID    map[string]model.DiscoveredSuite
	edges   map[string][]string // nodeID -> list of dependency node IDs (retained)
	order   []string            // discovery order, for deterministic iteration
}

func newGraph(suites []model.DiscoveredSuite) *graph {
	g := &graph{
		byID:  make(map[string]model.DiscoveredSuite, len(suites)),
		edges: make(map[string][]string, len(suites)),
	}
	for _, suite := range suites {
		g.byID[suite.NodeID] = suite
		g.edges[suite.NodeID] = append([]string(nil), suite.Depends...)
		g.order = append(g.order, suite.NodeID)
	}
	return g
}

// dropMissingDependencies removes edges to node IDs that were never
// discovered, logging a warning for each (spec §4.1).
func (g *graph) dropMissingDependencies(warn func(Warning)) {
	for nodeID, deps := range g.edges {
		kept := deps[:0:0]
		for _, dep := range deps {
			if _, ok := g.byID[dep]; !ok {
				warn(Warning{Message: fmt.Sprintf("suite %s depends on unknown suite %s; ignoring", nodeID, dep)})
				continue
			}
			kept = append(kept, dep)
		}
		g.edges[nodeID] = kept
	}
}

// dropCycles runs DFS with colour marks over the dependency graph. When a
// back-edge is found the edge that entered the cycle later (in discovery
// order) is dropped; ties resolve by preserving the edge that appeared
// first among the node's dependency list.
func (g *graph) dropCycles(warn func(Warning)) {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	colour := make(map[string]int, len(g.byID))
	var path []string

	var visit func(node string)
	visit = func(node string) {
		colour[node] = gray
		path = append(path, node)

		deps := g.edges[node]
		kept := deps[:0:0]
		for _, dep := range deps {
			switch colour[dep] {
			case white:
				kept = append(kept, dep)
				visit(dep)
			case gray:
				cycle := cyclePath(path, dep)
				warn(Warning{Message: fmt.Sprintf("dependency cycle detected, dropping edge %s -> %s", node, dep), Err: fmt.Errorf("cycle: %v", cycle)})
			case black:
				kept = append(kept, dep)
			}
		}
		g.edges[node] = kept

		path = path[:len(path)-1]
		colour[node] = black
	}

	for _, nodeID := range g.order {
		if colour[nodeID] == white {
			visit(nodeID)
		}
	}
}

func cyclePath(path []string, back string) []string {
	for i, n := range path {
		if n == back {
			return append(append([]string(nil), path[i:]...), back)
		}
	}
	return path
}

// orderLevel sorts a ready level by priority weight (desc), then estimated
// duration (asc), then discovery index (asc).
func (g *graph) orderLevel(level []string) []string {
	ordered := append([]string(nil), level...)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := g.byID[ordered[i]], g.byID[ordered[j]]
		if a.Priority.Weight() != b.Priority.Weight() {
			return a.Priority.Weight() > b.Priority.Weight()
		}
		if a.EstimatedDuration != b.EstimatedDuration {
			return a.EstimatedDuration < b.EstimatedDuration
		}
		return a.DiscoveryIndex < b.DiscoveryIndex
	})
	return ordered
}

// blockedByFailedDependency returns the first dependency node_id that did
// not resolve, or "" if every dependency resolved (or the suite has none).
func (g *graph) blockedByFailedDependency(suite model.DiscoveredSuite, status map[string]model.SuiteStatus) string {
	for _, dep := range g.edges[suite.NodeID] {
		if status[dep] != model.SuiteStatusResolved {
			return dep
		}
	}
	return ""
}
