package es

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// === Helpers ===

type TestingEnv struct {
	*Env
	t *testing.T
}

// StartTestEnv creates an in-memory Env that shuts down with the test.
func StartTestEnv(t *testing.T, opts ...EnvOption) *TestingEnv {
	t.Helper()
	e, err := NewEnv(
		append([]EnvOption{
			WithStore(NewInMemoryStore()),
			WithSnapshotter(NewInMemorySnapshotter()),
		}, opts...)...,
	)
	require.NoError(t, err)
	t.Cleanup(e.Shutdown)
	return &TestingEnv{Env: e, t: t}
}

func (e *TestingEnv) Assert() *TestingEnvAssert { return &TestingEnvAssert{env: e} }

type TestingEnvAssert struct {
	env *TestingEnv
}

// Execute runs cmd and fails the test on error.
func (a *TestingEnvAssert) Execute(ctx context.Context, aggType, aggID string, cmd Command, opts ...LoadOption) *Stream {
	a.env.t.Helper()
	s, err := a.env.Execute(ctx, aggType, aggID, cmd, opts...)
	require.NoError(a.env.t, err)
	return s
}

// State fails the test unless the projected state of aggType/aggID
// contains every key/value of want.
func (a *TestingEnvAssert) State(ctx context.Context, aggType, aggID string, want State) State {
	a.env.t.Helper()
	st, err := a.env.State(ctx, aggType, aggID)
	require.NoError(a.env.t, err)
	for k, v := range want {
		require.Contains(a.env.t, st, k)
		require.EqualValues(a.env.t, v, st[k], "state key %s", k)
	}
	return st
}

// Version fails the test unless aggType/aggID is committed at want.
func (a *TestingEnvAssert) Version(ctx context.Context, aggType, aggID string, want Version) {
	a.env.t.Helper()
	s, err := a.env.Load(ctx, aggType, aggID)
	require.NoError(a.env.t, err)
	require.Equal(a.env.t, want, s.CommittedVersion())
}
