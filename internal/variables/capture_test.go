package variables

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/flowtest/internal/registry"
)

func TestCaptureExtractsAndInstallsIntoRuntime(t *testing.T) {
	t.Parallel()

	ctx := New(registry.New())
	ctxObject := map[string]interface{}{
		"body": map[string]interface{}{"token": "abc123"},
	}

	captured, warnings := ctx.Capture(map[string]string{"token": "body.token"}, ctxObject)
	require.Empty(t, warnings)
	require.Equal(t, "abc123", captured["token"])
	require.Equal(t, "abc123", ctx.Runtime["token"])
}

func TestCaptureSetsUndefinedOnExtractionError(t *testing.T) {
	t.Parallel()

	ctx := New(registry.New())
	captured, warnings := ctx.Capture(map[string]string{"bad": "body.["}, map[string]interface{}{})
	require.NotEmpty(t, warnings)
	require.Nil(t, captured["bad"])
}
