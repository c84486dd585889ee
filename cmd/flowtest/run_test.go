package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/flowtest/internal/model"
)

func TestFilterDiscoveredNoFiltersReturnsAll(t *testing.T) {
	suites := []model.DiscoveredSuite{
		{NodeID: "a", Name: "A", Priority: model.PriorityHigh},
		{NodeID: "b", Name: "B", Priority: model.PriorityLow},
	}
	out := filterDiscovered(suites, nil, nil)
	require.Equal(t, suites, out)
}

func TestFilterDiscoveredByPriority(t *testing.T) {
	suites := []model.DiscoveredSuite{
		{NodeID: "a", Name: "A", Priority: model.PriorityHigh},
		{NodeID: "b", Name: "B", Priority: model.PriorityLow},
	}
	out := filterDiscovered(suites, []string{"high"}, nil)
	require.Len(t, out, 1)
	require.Equal(t, "a", out[0].NodeID)
}

func TestFilterDiscoveredBySuiteNameMatchesNodeIDOrName(t *testing.T) {
	suites := []model.DiscoveredSuite{
		{NodeID: "a", Name: "Friendly A", Priority: model.PriorityHigh},
		{NodeID: "b", Name: "Friendly B", Priority: model.PriorityLow},
	}
	byNodeID := filterDiscovered(suites, nil, []string{"a"})
	require.Len(t, byNodeID, 1)
	require.Equal(t, "a", byNodeID[0].NodeID)

	byName := filterDiscovered(suites, nil, []string{"Friendly B"})
	require.Len(t, byName, 1)
	require.Equal(t, "b", byName[0].NodeID)
}

func TestFilterDiscoveredCombinesPriorityAndSuiteName(t *testing.T) {
	suites := []model.DiscoveredSuite{
		{NodeID: "a", Name: "A", Priority: model.PriorityHigh},
		{NodeID: "b", Name: "B", Priority: model.PriorityHigh},
	}
	out := filterDiscovered(suites, []string{"high"}, []string{"b"})
	require.Len(t, out, 1)
	require.Equal(t, "b", out[0].NodeID)
}

func TestRenderRunJSONReportsFailureWithoutClobberingOutput(t *testing.T) {
	results := []model.SuiteResult{
		{NodeID: "a", Status: model.SuiteStatusResolved},
		{NodeID: "b", Status: model.SuiteStatusFailed, ErrorMessage: "boom"},
	}

	cmd := newRootCmd(&AppContext{})
	var buf bytes.Buffer
	cmd.SetOut(&buf)

	err := renderRunJSON(cmd, results)
	require.Error(t, err)

	var decoded []model.SuiteResult
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 2)
	require.Equal(t, "b", decoded[1].NodeID)
}

func TestRenderRunTableCountsFailures(t *testing.T) {
	results := []model.SuiteResult{
		{NodeID: "a", Status: model.SuiteStatusResolved},
	}

	cmd := newRootCmd(&AppContext{})
	var buf bytes.Buffer
	cmd.SetOut(&buf)

	require.NoError(t, renderRunTable(cmd, results))
	require.Contains(t, buf.String(), "NODE_ID")
	require.Contains(t, buf.String(), "a")
}
