package registry

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetAndGetExported(t *testing.T) {
	t.Parallel()

	r := New()
	r.SetExported("login_suite", "token", "abc123")

	v, ok := r.Get("login_suite", "token")
	require.True(t, ok)
	require.Equal(t, "abc123", v)

	_, ok = r.Get("login_suite", "missing")
	require.False(t, ok)
}

func TestGetUnambiguousResolvesSingleSource(t *testing.T) {
	t.Parallel()

	r := New()
	r.SetExported("login_suite", "token", "abc123")

	v, ok := r.GetUnambiguous("token")
	require.True(t, ok)
	require.Equal(t, "abc123", v)
}

func TestGetUnambiguousRejectsCollisions(t *testing.T) {
	t.Parallel()

	r := New()
	r.SetExported("login_suite", "token", "abc123")
	r.SetExported("signup_suite", "token", "def456")

	_, ok := r.GetUnambiguous("token")
	require.False(t, ok)
}

func TestGetAllExportedFlattensByNodeID(t *testing.T) {
	t.Parallel()

	r := New()
	r.SetExported("login_suite", "token", "abc123")
	r.SetExported("signup_suite", "user_id", 42)

	all := r.GetAllExported()
	require.Equal(t, "abc123", all["login_suite.token"])
	require.Equal(t, 42, all["signup_suite.user_id"])
}

func TestSnapshotRestoreRoundTrips(t *testing.T) {
	t.Parallel()

	r := New()
	r.SetExported("login_suite", "token", "abc123")
	snap := r.Snapshot()

	r.SetExported("login_suite", "token", "mutated")
	v, _ := r.Get("login_suite", "token")
	require.Equal(t, "mutated", v)

	r.Restore(snap)
	v, _ = r.Get("login_suite", "token")
	require.Equal(t, "abc123", v)
}

func TestMissingRequiredReportsUnpublishedExports(t *testing.T) {
	t.Parallel()

	r := New()
	r.RegisterExports("login_suite", "Login flow", []string{"token", "user_id"}, nil)
	r.SetExported("login_suite", "token", "abc123")

	missing := r.MissingRequired("login_suite")
	require.Equal(t, []string{"user_id"}, missing)
}
