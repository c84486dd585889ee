package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/flowtest/internal/model"
)

func discovered(id string, depends []string, priority model.Priority, idx int) model.DiscoveredSuite {
	return model.DiscoveredSuite{
		NodeID:         id,
		Name:           id,
		Depends:        depends,
		Priority:       priority,
		DiscoveryIndex: idx,
	}
}

func successRunner(t *testing.T) SuiteRunner {
	return func(ctx context.Context, suite model.DiscoveredSuite) model.SuiteResult {
		return model.SuiteResult{NodeID: suite.NodeID, Name: suite.Name, Status: model.SuiteStatusResolved}
	}
}

func TestExecuteRespectsDependencyOrder(t *testing.T) {
	t.Parallel()

	suites := []model.DiscoveredSuite{
		discovered("b", []string{"a"}, model.PriorityMedium, 1),
		discovered("a", nil, model.PriorityMedium, 0),
	}

	var order []string
	s := New()
	results := s.Execute(context.Background(), suites, func(ctx context.Context, suite model.DiscoveredSuite) model.SuiteResult {
		order = append(order, suite.NodeID)
		return model.SuiteResult{NodeID: suite.NodeID, Status: model.SuiteStatusResolved}
	}, nil)

	require.Len(t, results, 2)
	require.Equal(t, []string{"a", "b"}, order)
}

func TestExecuteSkipsDependentsOfFailedRequiredSuite(t *testing.T) {
	t.Parallel()

	suites := []model.DiscoveredSuite{
		discovered("critical_suite", nil, model.PriorityCritical, 0),
		discovered("dependent_suite", []string{"critical_suite"}, model.PriorityMedium, 1),
	}

	s := New()
	results := s.Execute(context.Background(), suites, func(ctx context.Context, suite model.DiscoveredSuite) model.SuiteResult {
		if suite.NodeID == "critical_suite" {
			return model.SuiteResult{NodeID: suite.NodeID, Status: model.SuiteStatusFailed, ErrorMessage: "boom"}
		}
		return model.SuiteResult{NodeID: suite.NodeID, Status: model.SuiteStatusResolved}
	}, nil)

	byID := make(map[string]model.SuiteResult, len(results))
	for _, r := range results {
		byID[r.NodeID] = r
	}
	require.Equal(t, model.SuiteStatusFailed, byID["critical_suite"].Status)
	require.Equal(t, model.SuiteStatusSkipped, byID["dependent_suite"].Status)
}

func TestExecuteDropsMissingDependencyAndWarns(t *testing.T) {
	t.Parallel()

	suites := []model.DiscoveredSuite{
		discovered("orphan", []string{"ghost"}, model.PriorityMedium, 0),
	}

	s := New()
	results := s.Execute(context.Background(), suites, successRunner(t), nil)
	require.Len(t, results, 1)
	require.Equal(t, model.SuiteStatusResolved, results[0].Status)
	require.NotEmpty(t, s.Warnings())
}

func TestExecuteDropsCycleAndWarns(t *testing.T) {
	t.Parallel()

	suites := []model.DiscoveredSuite{
		discovered("a", []string{"b"}, model.PriorityMedium, 0),
		discovered("b", []string{"a"}, model.PriorityMedium, 1),
	}

	s := New()
	results := s.Execute(context.Background(), suites, successRunner(t), nil)
	require.Len(t, results, 2)
	for _, r := range results {
		require.Equal(t, model.SuiteStatusResolved, r.Status)
	}
	require.NotEmpty(t, s.Warnings())
}

func TestExecuteOrdersReadyLevelByPriorityThenDuration(t *testing.T) {
	t.Parallel()

	suites := []model.DiscoveredSuite{
		{NodeID: "low", Priority: model.PriorityLow, DiscoveryIndex: 0},
		{NodeID: "critical_slow", Priority: model.PriorityCritical, EstimatedDuration: 5 * time.Second, DiscoveryIndex: 1},
		{NodeID: "critical_fast", Priority: model.PriorityCritical, EstimatedDuration: 1 * time.Second, DiscoveryIndex: 2},
	}

	g := newGraph(suites)
	ordered := g.orderLevel([]string{"low", "critical_slow", "critical_fast"})
	require.Equal(t, []string{"critical_fast", "critical_slow", "low"}, ordered)
}

func TestExecuteReactivelyReleasesDependentsByPriorityScenario(t *testing.T) {
	t.Parallel()

	suites := []model.DiscoveredSuite{
		discovered("A", nil, model.PriorityMedium, 0),
		discovered("B", nil, model.PriorityCritical, 1),
		discovered("C", []string{"A"}, model.PriorityHigh, 2),
		discovered("D", []string{"B"}, model.PriorityLow, 3),
	}

	var mu sync.Mutex
	var order []string
	s := New(WithMaxParallel(1))
	results := s.Execute(context.Background(), suites, func(ctx context.Context, suite model.DiscoveredSuite) model.SuiteResult {
		mu.Lock()
		order = append(order, suite.NodeID)
		mu.Unlock()
		return model.SuiteResult{NodeID: suite.NodeID, Name: suite.Name, Status: model.SuiteStatusResolved}
	}, nil)

	require.Equal(t, []string{"B", "A", "D", "C"}, order)

	resultOrder := make([]string, len(results))
	for i, r := range results {
		resultOrder[i] = r.NodeID
	}
	require.Equal(t, []string{"B", "A", "D", "C"}, resultOrder)
}

func TestExecuteResultOrderIsDeterministicAcrossConcurrentCompletionTimes(t *testing.T) {
	t.Parallel()

	suites := []model.DiscoveredSuite{
		discovered("A", nil, model.PriorityMedium, 0),
		discovered("B", nil, model.PriorityCritical, 1),
		discovered("C", []string{"A"}, model.PriorityHigh, 2),
		discovered("D", []string{"B"}, model.PriorityLow, 3),
	}

	// Each suite sleeps an amount that inverts its natural finish order
	// relative to dispatch order, so a result list built from completion
	// time (rather than dispatch/finalize sequence) would come out wrong.
	delay := map[string]time.Duration{
		"A": 30 * time.Millisecond,
		"B": 1 * time.Millisecond,
		"C": 1 * time.Millisecond,
		"D": 20 * time.Millisecond,
	}

	run := func(ctx context.Context, suite model.DiscoveredSuite) model.SuiteResult {
		time.Sleep(delay[suite.NodeID])
		return model.SuiteResult{NodeID: suite.NodeID, Name: suite.Name, Status: model.SuiteStatusResolved}
	}

	for i := 0; i < 5; i++ {
		s := New(WithMaxParallel(4))
		results := s.Execute(context.Background(), suites, run, nil)

		resultOrder := make([]string, len(results))
		for j, r := range results {
			resultOrder[j] = r.NodeID
		}
		require.Equal(t, []string{"B", "A", "D", "C"}, resultOrder)
	}
}

type memCache struct {
	data map[string]model.SuiteResult
}

func (m *memCache) Get(key string) (model.SuiteResult, bool) {
	r, ok := m.data[key]
	return r, ok
}

func (m *memCache) Put(key string, result model.SuiteResult) {
	m.data[key] = result
}

func TestExecuteUsesCacheOnHit(t *testing.T) {
	t.Parallel()

	cache := &memCache{data: map[string]model.SuiteResult{
		"cached_suite": {NodeID: "cached_suite", Status: model.SuiteStatusResolved},
	}}
	s := New(WithResultCache(cache))

	calls := 0
	suites := []model.DiscoveredSuite{{NodeID: "cached_suite"}}
	results := s.Execute(context.Background(), suites, func(ctx context.Context, suite model.DiscoveredSuite) model.SuiteResult {
		calls++
		return model.SuiteResult{NodeID: suite.NodeID, Status: model.SuiteStatusResolved}
	}, nil)

	require.Equal(t, 0, calls)
	require.True(t, results[0].Cached)
	require.Zero(t, results[0].DurationMs)
}
