package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const fixtureSuiteA = `
node_id: suite_a
suite_name: Suite A
steps:
  - name: ping
    request:
      method: GET
      url: /ping
`

const fixtureSuiteB = `
node_id: suite_b
suite_name: Suite B
depends: [suite_a]
steps:
  - name: prompt_name
    input:
      prompts:
        - name: username
          type: text
`

func writeSuite(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDiscoverSuitesWalksDirectoryInLexicalOrder(t *testing.T) {
	dir := t.TempDir()
	writeSuite(t, dir, "a.yaml", fixtureSuiteA)
	writeSuite(t, dir, "b.yaml", fixtureSuiteB)

	cat, err := discoverSuites(dir)
	require.NoError(t, err)
	require.Len(t, cat.discovered, 2)
	require.Equal(t, "suite_a", cat.discovered[0].NodeID)
	require.Equal(t, "suite_b", cat.discovered[1].NodeID)
	require.Equal(t, []string{"suite_a"}, cat.discovered[1].Depends)
}

func TestDiscoverSuitesRejectsDuplicateNodeID(t *testing.T) {
	dir := t.TempDir()
	writeSuite(t, dir, "a.yaml", fixtureSuiteA)
	writeSuite(t, dir, "a_copy.yaml", fixtureSuiteA)

	_, err := discoverSuites(dir)
	require.Error(t, err)
	require.Contains(t, err.Error(), "duplicate node_id")
}

func TestCatalogHasInputStepDetectsInteractivePrompts(t *testing.T) {
	dir := t.TempDir()
	writeSuite(t, dir, "a.yaml", fixtureSuiteA)
	writeSuite(t, dir, "b.yaml", fixtureSuiteB)

	cat, err := discoverSuites(dir)
	require.NoError(t, err)
	require.True(t, cat.hasInputStep())
}

func TestCatalogHasInputStepFalseWhenNoneInteractive(t *testing.T) {
	dir := t.TempDir()
	writeSuite(t, dir, "a.yaml", fixtureSuiteA)

	cat, err := discoverSuites(dir)
	require.NoError(t, err)
	require.False(t, cat.hasInputStep())
}

func TestCatalogLoaderResolvesByPathAndNodeID(t *testing.T) {
	dir := t.TempDir()
	writeSuite(t, dir, "a.yaml", fixtureSuiteA)

	cat, err := discoverSuites(dir)
	require.NoError(t, err)

	byNodeID, err := cat.loader("suite_a")
	require.NoError(t, err)
	require.Equal(t, "suite_a", byNodeID.NodeID)

	byRelPath, err := cat.loader("a.yaml")
	require.NoError(t, err)
	require.Equal(t, "suite_a", byRelPath.NodeID)

	_, err = cat.loader("missing")
	require.Error(t, err)
}
