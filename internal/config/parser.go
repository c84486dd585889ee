package config

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	flowtesterrors "github.com/alexisbeaulieu97/flowtest/pkg/errors"
)

var yamlLineRegex = regexp.MustCompile(`line (\d+)`)

// ParseSuite decodes and validates a single YAML suite document already read
// into memory. Suite *discovery* (walking a directory for YAML files) is an
// external collaborator per spec §1; this function only turns bytes the
// caller already has into a validated Suite.
func ParseSuite(data []byte, path string) (*Suite, error) {
	var suite Suite
	if err := yaml.Unmarshal(data, &suite); err != nil {
		return nil, flowtesterrors.NewParseError(path, extractLine(err), err)
	}

	if err := ValidateSuite(&suite); err != nil {
		return nil, err
	}

	return &suite, nil
}

// ParseSuiteFile reads path from disk and parses it via ParseSuite. It is a
// convenience for collaborators that already know the suite's file path.
func ParseSuiteFile(path string) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, flowtesterrors.NewParseError(path, 0, err)
	}
	return ParseSuite(data, path)
}

func extractLine(err error) int {
	if err == nil {
		return 0
	}

	matches := yamlLineRegex.FindStringSubmatch(err.Error())
	if len(matches) != 2 {
		return 0
	}

	var line int
	_, scanErr := fmt.Sscanf(matches[1], "%d", &line)
	if scanErr != nil {
		return 0
	}

	return line
}
