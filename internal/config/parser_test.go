package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	flowtesterrors "github.com/alexisbeaulieu97/flowtest/pkg/errors"
)

const validSuiteYAML = `
node_id: login_suite
suite_name: Login flow
base_url: "{{env_base_url}}"
exports: [token]
metadata:
  priority: high
steps:
  - name: Authenticate
    step_id: login
    request:
      method: POST
      url: /v1/login
      body: { user: alice }
    capture:
      token: body.token
    assertions:
      status_code: 200
`

func TestParseSuiteValid(t *testing.T) {
	t.Parallel()

	suite, err := ParseSuite([]byte(validSuiteYAML), "login.yaml")
	require.NoError(t, err)
	require.Equal(t, "login_suite", suite.NodeID)
	require.Equal(t, "Login flow", suite.Name)
	require.Len(t, suite.Steps, 1)
	require.Equal(t, "login", suite.Steps[0].StepID)
	require.NotNil(t, suite.Steps[0].Request)
}

func TestParseSuiteInvalidYAML(t *testing.T) {
	t.Parallel()

	_, err := ParseSuite([]byte("node_id: [broken"), "bad.yaml")
	require.Error(t, err)

	var parseErr *flowtesterrors.ParseError
	require.ErrorAs(t, err, &parseErr)
}

func TestParseSuiteMissingRequiredFields(t *testing.T) {
	t.Parallel()

	_, err := ParseSuite([]byte("suite_name: No node id\n"), "missing.yaml")
	require.Error(t, err)

	var validationErr *flowtesterrors.ValidationError
	require.ErrorAs(t, err, &validationErr)
}

func TestParseSuiteStepMissingVariant(t *testing.T) {
	t.Parallel()

	yamlDoc := `
node_id: s
suite_name: S
steps:
  - name: empty step
`
	_, err := ParseSuite([]byte(yamlDoc), "s.yaml")
	require.Error(t, err)
	require.Contains(t, err.Error(), "must declare one of")
}

func TestParseSuiteFileReadsFromDisk(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "suite.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validSuiteYAML), 0o644))

	suite, err := ParseSuiteFile(path)
	require.NoError(t, err)
	require.Equal(t, "login_suite", suite.NodeID)
}

func TestParseSuiteFileMissing(t *testing.T) {
	t.Parallel()

	_, err := ParseSuiteFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
