package variables

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/flowtest/internal/registry"
)

func TestGetRespectsScopePrecedence(t *testing.T) {
	t.Parallel()

	ctx := New(registry.New())
	ctx.Environment["name"] = "env"
	ctx.Imported["name"] = "imported"
	ctx.Suite["name"] = "suite"
	ctx.Runtime["name"] = "runtime"

	v, ok := ctx.Get("name")
	require.True(t, ok)
	require.Equal(t, "runtime", v)
}

func TestGetFallsBackThroughScopes(t *testing.T) {
	t.Parallel()

	ctx := New(registry.New())
	ctx.Environment["base_url"] = "https://env.example.com"

	v, ok := ctx.Get("base_url")
	require.True(t, ok)
	require.Equal(t, "https://env.example.com", v)
}

func TestGetResolvesQualifiedRegistryName(t *testing.T) {
	t.Parallel()

	reg := registry.New()
	reg.SetExported("login_suite", "token", "abc123")
	ctx := New(reg)

	v, ok := ctx.Get("login_suite.token")
	require.True(t, ok)
	require.Equal(t, "abc123", v)
}

func TestResetScopesPreservesEnvironmentAndRegistry(t *testing.T) {
	t.Parallel()

	reg := registry.New()
	reg.SetExported("login_suite", "token", "abc123")
	ctx := New(reg)
	ctx.Environment["keep"] = "yes"
	ctx.Runtime["gone"] = "yes"

	ctx.ResetScopes()

	_, ok := ctx.Runtime["gone"]
	require.False(t, ok)
	require.Equal(t, "yes", ctx.Environment["keep"])
	v, ok := ctx.Get("login_suite.token")
	require.True(t, ok)
	require.Equal(t, "abc123", v)
}

func TestSnapshotRestoreRoundTripsScopesAndRegistry(t *testing.T) {
	t.Parallel()

	reg := registry.New()
	reg.SetExported("login_suite", "token", "abc123")
	ctx := New(reg)
	ctx.Runtime["count"] = 1

	snap := ctx.Snapshot()

	ctx.Runtime["count"] = 2
	reg.SetExported("login_suite", "token", "mutated")

	ctx.Restore(snap)

	require.Equal(t, 1, ctx.Runtime["count"])
	v, _ := ctx.Get("login_suite.token")
	require.Equal(t, "abc123", v)
}
