package main

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/alexisbeaulieu97/flowtest/internal/config"
	"github.com/alexisbeaulieu97/flowtest/internal/model"
)

// suiteCatalog holds every suite discovered under a root directory, indexed
// both by its file path (for the call strategy's SuiteLoader) and by
// node_id (for duplicate detection and scheduling).
type suiteCatalog struct {
	root       string
	byPath     map[string]*config.Suite
	byNodeID   map[string]*config.Suite
	discovered []model.DiscoveredSuite
}

// discoverSuites walks root for *.yaml/*.yml files, parsing and validating
// each into a config.Suite. Discovery order (and therefore DiscoveryIndex)
// is the lexically sorted list of matching paths, which is the tie-break of
// last resort within a scheduler level (spec §4.1).
func discoverSuites(root string) (*suiteCatalog, error) {
	cat := &suiteCatalog{
		root:     root,
		byPath:   make(map[string]*config.Suite),
		byNodeID: make(map[string]*config.Suite),
	}

	var paths []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discover suites under %s: %w", root, err)
	}
	sort.Strings(paths)

	for idx, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		suite, err := config.ParseSuite(data, path)
		if err != nil {
			return nil, err
		}

		if existing, dup := cat.byNodeID[suite.NodeID]; dup {
			return nil, fmt.Errorf("duplicate node_id %q in %s and %s", suite.NodeID, path, pathOf(cat, existing))
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			rel = path
		}
		cat.byPath[path] = suite
		cat.byPath[rel] = suite
		cat.byNodeID[suite.NodeID] = suite

		cat.discovered = append(cat.discovered, model.DiscoveredSuite{
			NodeID:         suite.NodeID,
			Name:           suite.Name,
			Path:           path,
			Depends:        suite.Depends,
			Priority:       suite.Metadata.Priority,
			DiscoveryIndex: idx,
			ContentHash:    contentHash(data),
		})
	}

	return cat, nil
}

func pathOf(cat *suiteCatalog, suite *config.Suite) string {
	for path, s := range cat.byPath {
		if s == suite {
			return path
		}
	}
	return suite.NodeID
}

// hasInputStep reports whether any discovered suite contains an interactive
// input step, which forces the scheduler into sequential mode (spec §5):
// a prompt can't safely run concurrently with other suites sharing the
// terminal.
func (c *suiteCatalog) hasInputStep() bool {
	for _, suite := range c.byNodeID {
		for _, step := range suite.Steps {
			if step.Input != nil {
				return true
			}
		}
	}
	return false
}

// loader resolves a call strategy's `test` reference, tried first as a
// discovered path (as walked, or relative to the catalog root), then joined
// onto the catalog root, then as a node_id.
func (c *suiteCatalog) loader(testRef string) (*config.Suite, error) {
	if suite, ok := c.byPath[testRef]; ok {
		return suite, nil
	}
	joined := filepath.Join(c.root, testRef)
	if suite, ok := c.byPath[joined]; ok {
		return suite, nil
	}
	if suite, ok := c.byNodeID[testRef]; ok {
		return suite, nil
	}
	return nil, fmt.Errorf("suite %q not found under %s", testRef, c.root)
}

func contentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
