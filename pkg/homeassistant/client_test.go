package homeassistant

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urmzd/hass-mcp/pkg/config"
	"github.com/urmzd/hass-mcp/pkg/device"
	"github.com/urmzd/hass-mcp/pkg/homeassistant/hatest"
)

func newTestClient(t *testing.T, token string) (*Client, *hatest.Server) {
	t.Helper()
	srv := hatest.NewServer(device.DemoStates()...)
	t.Cleanup(srv.Close)

	client := NewClient(config.HubConnection{
		BaseURL:   srv.URL,
		Token:     token,
		VerifyTLS: true,
		Timeout:   time.Second,
	}, zerolog.Nop())
	return client, srv
}

func TestClient_ListStates(t *testing.T) {
	client, srv := newTestClient(t, hatest.Token)

	states, err := client.ListStates(context.Background())
	require.NoError(t, err)
	assert.Len(t, states, len(device.DemoStates()))

	reqs := srv.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodGet, reqs[0].Method)
	assert.Equal(t, "/api/states", reqs[0].Path)
	assert.Equal(t, "Bearer "+hatest.Token, reqs[0].Authorization)
}

func TestClient_ListStatesSkipsEntitiesWithoutDomain(t *testing.T) {
	client, srv := newTestClient(t, hatest.Token)
	srv.RespondRaw(`[{"entity_id":"light.a","state":"on","attributes":{}},{"entity_id":"broken","state":"on"}]`)

	states, err := client.ListStates(context.Background())
	require.NoError(t, err)
	require.Len(t, states, 1)
	assert.Equal(t, "light.a", states[0].EntityID)
}

func TestClient_GetState(t *testing.T) {
	client, _ := newTestClient(t, hatest.Token)

	state, err := client.GetState(context.Background(), "climate.hallway")
	require.NoError(t, err)
	assert.Equal(t, "heat", state.State)
	assert.Equal(t, "climate", state.Domain())
	assert.Equal(t, 20.5, state.Attributes["temperature"])
}

func TestClient_GetStateNotFound(t *testing.T) {
	client, _ := newTestClient(t, hatest.Token)

	_, err := client.GetState(context.Background(), "light.garage")
	assert.ErrorIs(t, err, device.ErrNotFound)
}

func TestClient_CallService(t *testing.T) {
	client, srv := newTestClient(t, hatest.Token)

	changed, err := client.CallService(context.Background(), "light", "turn_on", map[string]any{
		"entity_id":  "light.living_room",
		"brightness": 128,
	})
	require.NoError(t, err)
	require.Len(t, changed, 1)
	assert.Equal(t, "on", changed[0].State)

	reqs := srv.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodPost, reqs[0].Method)
	assert.Equal(t, "/api/services/light/turn_on", reqs[0].Path)
	assert.Equal(t, float64(128), reqs[0].Body["brightness"])
}

func TestClient_CallServiceNotFoundIsStatusError(t *testing.T) {
	client, srv := newTestClient(t, hatest.Token)
	srv.FailWith(http.StatusNotFound)

	_, err := client.CallService(context.Background(), "light", "blink", map[string]any{
		"entity_id": "light.living_room",
	})
	var statusErr *device.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	assert.False(t, errors.Is(err, device.ErrNotFound))
}

func TestClient_StatusError(t *testing.T) {
	client, srv := newTestClient(t, hatest.Token)
	srv.FailWith(http.StatusInternalServerError)

	_, err := client.ListStates(context.Background())
	var statusErr *device.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
	assert.False(t, errors.Is(err, device.ErrUnreachable))
}

func TestClient_Unauthorized(t *testing.T) {
	client, _ := newTestClient(t, "wrong-token")

	_, err := client.Ping(context.Background())
	var statusErr *device.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.True(t, statusErr.Unauthorized())
	assert.NotContains(t, err.Error(), "wrong-token")
}

func TestClient_Timeout(t *testing.T) {
	client, srv := newTestClient(t, hatest.Token)
	client.http.Timeout = 50 * time.Millisecond
	srv.Delay(time.Second)

	_, err := client.GetState(context.Background(), "light.kitchen")
	require.ErrorIs(t, err, device.ErrUnreachable)
	assert.Contains(t, err.Error(), "timeout")
	assert.NotContains(t, err.Error(), srv.URL)
}

func TestClient_ConnectionRefused(t *testing.T) {
	client, srv := newTestClient(t, hatest.Token)
	srv.Close()

	_, err := client.ListStates(context.Background())
	require.ErrorIs(t, err, device.ErrUnreachable)
	assert.NotContains(t, err.Error(), srv.URL)
}

func TestClient_BadResponse(t *testing.T) {
	client, srv := newTestClient(t, hatest.Token)
	srv.RespondRaw(`<html>not json</html>`)

	_, err := client.ListStates(context.Background())
	assert.ErrorIs(t, err, device.ErrBadResponse)
}

func TestClient_Ping(t *testing.T) {
	client, _ := newTestClient(t, hatest.Token)

	msg, err := client.Ping(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "API running.", msg)
}
