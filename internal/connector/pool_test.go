package connector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubConnector struct {
	kind        string
	connectErr  error
	connectCalls int
}

func (s *stubConnector) Kind() string                                { return s.kind }
func (s *stubConnector) ValidateConfig(map[string]any) error         { return nil }
func (s *stubConnector) Connect(ctx context.Context, _ map[string]any) error {
	s.connectCalls++
	return s.connectErr
}
func (s *stubConnector) Disconnect(ctx context.Context) error   { return nil }
func (s *stubConnector) TestConnection(ctx context.Context) error { return nil }

// TestFingerprint_PermutationInvariant covers testable property 9: map key
// order in the input config must not affect the fingerprint.
func TestFingerprint_PermutationInvariant(t *testing.T) {
	a := map[string]any{"host": "db1", "port": 5432, "user": "svc"}
	b := map[string]any{"user": "svc", "port": 5432, "host": "db1"}

	fpA, err := Fingerprint("postgresql", a, nil)
	require.NoError(t, err)
	fpB, err := Fingerprint("postgresql", b, nil)
	require.NoError(t, err)
	assert.Equal(t, fpA, fpB)
}

func TestFingerprint_ExcludesEphemeralKeys(t *testing.T) {
	base := map[string]any{"host": "db1"}
	withEphemeral := map[string]any{"host": "db1", "connection_id": "conn-123", "ui": true}

	fpBase, err := Fingerprint("postgresql", base, nil)
	require.NoError(t, err)
	fpEphemeral, err := Fingerprint("postgresql", withEphemeral, nil)
	require.NoError(t, err)
	assert.Equal(t, fpBase, fpEphemeral)
}

func TestPool_AcquireReusesEntry(t *testing.T) {
	registry := NewRegistry()
	calls := 0
	registry.Register("stub", func() Connector {
		calls++
		return &stubConnector{kind: "stub"}
	}, nil)

	pool := NewPool(registry)
	config := map[string]any{"host": "db1"}

	c1, err := pool.Acquire(context.Background(), "stub", config, nil)
	require.NoError(t, err)
	c2, err := pool.Acquire(context.Background(), "stub", config, nil)
	require.NoError(t, err)

	assert.Same(t, c1, c2)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, pool.Size())
}

func TestRegistry_UnknownKind(t *testing.T) {
	registry := NewRegistry()
	_, err := registry.Get("does_not_exist")
	require.Error(t, err)
	var unknown ErrUnknownConnectorKind
	assert.ErrorAs(t, err, &unknown)
}

func TestRegistry_ProbeFailureSkipsRegistration(t *testing.T) {
	registry := NewRegistry()
	registry.Register("broken", func() Connector { return &stubConnector{kind: "broken"} }, func() error {
		return assert.AnError
	})
	_, err := registry.Get("broken")
	require.Error(t, err)
}
