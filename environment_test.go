package oluacle

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oluacle/oluacle/internal/ocifake"
	"github.com/oluacle/oluacle/oci"
)

func TestEnvironmentIsLazy(t *testing.T) {
	f := ocifake.New()
	env := NewEnvironment(f)
	require.Zero(t, f.Count("EnvCreate"))

	h1, err := env.Handle()
	require.NoError(t, err)
	h2, err := env.Handle()
	require.NoError(t, err)
	require.Equal(t, h1, h2)
	require.Equal(t, 1, f.Count("EnvCreate"))
	require.Equal(t, 1, f.Live(oci.OCI_HTYPE_ENV))
}

func TestEnvironmentRetriesAfterFailure(t *testing.T) {
	f := ocifake.New()
	env := NewEnvironment(f)
	f.FailNext("EnvCreate", oci.OCI_ERROR, 0, "")

	_, err := env.Handle()
	require.True(t, IsKind(err, KindAlloc))

	c, err := Connect(env, "scott", "tiger", "")
	require.NoError(t, err)
	defer c.Close()
	require.Equal(t, 2, f.Count("EnvCreate"))
}

func TestEnvironmentSharedByConnections(t *testing.T) {
	f := ocifake.New()
	env := NewEnvironment(f)
	a, err := Connect(env, "scott", "tiger", "")
	require.NoError(t, err)
	defer a.Close()
	b, err := Connect(env, "scott", "tiger", "")
	require.NoError(t, err)
	defer b.Close()

	require.Same(t, env, a.Environment())
	require.Equal(t, 1, f.Count("EnvCreate"))
	require.NotEqual(t, a.ID(), b.ID())
}
