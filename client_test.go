package copilot_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	copilot "github.com/telnet2/go-copilot"
	"github.com/telnet2/go-copilot/internal/backendtest"
	"github.com/telnet2/go-copilot/pkg/types"
)

func startClient(t *testing.T) (*copilot.Client, *backendtest.Backend) {
	t.Helper()
	backend := backendtest.New()
	client := copilot.NewClient(copilot.ClientConfig{Transport: backend.Transport()})
	require.NoError(t, client.Start(context.Background()))
	t.Cleanup(func() { client.Stop(context.Background()) })
	return client, backend
}

func TestClientStartAndPing(t *testing.T) {
	client, _ := startClient(t)
	assert.Equal(t, copilot.ClientRunning, client.State())

	result, err := client.Ping(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", result.Message)
	assert.NotZero(t, result.Timestamp)
}

func TestClientOperationsBeforeStart(t *testing.T) {
	backend := backendtest.New()
	client := copilot.NewClient(copilot.ClientConfig{Transport: backend.Transport()})

	_, err := client.Ping(context.Background(), "x")
	assert.ErrorIs(t, err, copilot.ErrClientNotRunning)

	_, err = client.ListModels(context.Background())
	assert.ErrorIs(t, err, copilot.ErrClientNotRunning)

	_, err = client.CreateSession(context.Background(), nil)
	assert.ErrorIs(t, err, copilot.ErrClientNotRunning)
}

func TestClientStatusAndAuthStatus(t *testing.T) {
	client, _ := startClient(t)

	status, err := client.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "backendtest", status.Version)
	assert.NotEmpty(t, status.ProtocolVersion)

	auth, err := client.AuthStatus(context.Background())
	require.NoError(t, err)
	assert.True(t, auth.IsAuthenticated)
}

func TestClientListModels(t *testing.T) {
	client, backend := startClient(t)
	backend.SetModels([]types.Model{
		{ID: "fast", Name: "Fast", ContextWindow: 8000},
		{ID: "smart", Name: "Smart", ContextWindow: 200000},
	})

	models, err := client.ListModels(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 2)
	assert.Equal(t, "fast", models[0].ID)
}

func TestClientListModelsUnauthenticated(t *testing.T) {
	client, backend := startClient(t)
	backend.SetAuthenticated(false)

	_, err := client.ListModels(context.Background())
	assert.ErrorIs(t, err, copilot.ErrAuthenticationRequired)
}

func TestClientStopDisposesSessions(t *testing.T) {
	client, backend := startClient(t)

	s, err := client.CreateSession(context.Background(), nil)
	require.NoError(t, err)

	require.NoError(t, client.Stop(context.Background()))
	assert.Equal(t, copilot.ClientStopped, client.State())
	assert.True(t, backend.SessionDisposed(s.ID()))
	assert.Equal(t, copilot.SessionDisposed, s.State())

	// Idempotent.
	require.NoError(t, client.Stop(context.Background()))
}

func TestClientForceStopSkipsTeardown(t *testing.T) {
	client, backend := startClient(t)

	s, err := client.CreateSession(context.Background(), nil)
	require.NoError(t, err)

	client.ForceStop()
	assert.Equal(t, copilot.ClientStopped, client.State())
	// The backend never heard a dispose; the session is only locally dead.
	assert.False(t, backend.SessionDisposed(s.ID()))
	assert.Equal(t, copilot.SessionDisposed, s.State())
}

func TestClientStartFailsWithoutTransport(t *testing.T) {
	client := copilot.NewClient(copilot.ClientConfig{})
	err := client.Start(context.Background())
	require.Error(t, err)

	var terr *copilot.TransportError
	assert.ErrorAs(t, err, &terr)
	assert.Equal(t, copilot.ClientFaulted, client.State())
}

func TestClientResumeUnknownSession(t *testing.T) {
	client, _ := startClient(t)

	_, err := client.ResumeSession(context.Background(), "no-such-session", nil)
	assert.ErrorIs(t, err, copilot.ErrSessionNotFound)
}

func TestClientPingAfterStop(t *testing.T) {
	client, _ := startClient(t)
	require.NoError(t, client.Stop(context.Background()))

	_, err := client.Ping(context.Background(), "x")
	assert.ErrorIs(t, err, copilot.ErrClientNotRunning)
}

func TestClientCreateSessionValidatesConfig(t *testing.T) {
	client, _ := startClient(t)

	_, err := client.CreateSession(context.Background(), &types.SessionConfig{
		AvailableTools: []string{"a"},
		ExcludedTools:  []string{"b"},
	})
	assert.ErrorIs(t, err, types.ErrConflictingToolFilters)
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 5*time.Second, 10*time.Millisecond, msg)
}
