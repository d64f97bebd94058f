package mcp

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urmzd/hass-mcp/pkg/device"
)

func newMemoryServer(t *testing.T) (*Server, *device.MemoryHub) {
	t.Helper()
	hub := device.NewMemoryHub(device.DemoStates()...)
	s, err := NewServer(hub, zerolog.Nop(), "test")
	require.NoError(t, err)
	return s, hub
}

func TestControlSwitch_Toggle(t *testing.T) {
	s, hub := newMemoryServer(t)

	_, res := callTool(t, s, 1, "control_switch", map[string]any{"entity_id": "switch.coffee_maker", "action": "toggle"})
	require.False(t, res.IsError, res.Content[0].Text)

	calls := hub.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, device.ServiceCall{
		Domain:  "switch",
		Service: "toggle",
		Data:    map[string]any{"entity_id": "switch.coffee_maker"},
	}, calls[0])
}

func TestControlSwitch_InvalidAction(t *testing.T) {
	s, hub := newMemoryServer(t)

	for _, action := range []string{"ON", "turn_on", "dim", ""} {
		_, res := callTool(t, s, 1, "control_switch", map[string]any{"entity_id": "switch.coffee_maker", "action": action})
		assert.True(t, res.IsError, action)
	}
	assert.Empty(t, hub.Calls())
}

func TestControlLight_Off(t *testing.T) {
	s, hub := newMemoryServer(t)

	_, res := callTool(t, s, 1, "control_light", map[string]any{"entity_id": "light.kitchen", "action": "off"})
	require.False(t, res.IsError, res.Content[0].Text)

	calls := hub.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "turn_off", calls[0].Service)
}

func TestControlLight_BrightnessWithOffIsRejected(t *testing.T) {
	s, hub := newMemoryServer(t)

	_, res := callTool(t, s, 1, "control_light", map[string]any{"entity_id": "light.kitchen", "action": "off", "brightness": 10})
	assert.True(t, res.IsError)
	assert.Empty(t, hub.Calls())
}

func TestControlLight_RoundsBrightness(t *testing.T) {
	s, hub := newMemoryServer(t)

	_, res := callTool(t, s, 1, "control_light", map[string]any{"entity_id": "light.kitchen", "action": "on", "brightness": 99.6})
	require.False(t, res.IsError, res.Content[0].Text)
	assert.Equal(t, 100, hub.Calls()[0].Data["brightness"])
}

func TestControlLight_WrongDomain(t *testing.T) {
	s, hub := newMemoryServer(t)

	_, res := callTool(t, s, 1, "control_light", map[string]any{"entity_id": "switch.coffee_maker", "action": "on"})
	assert.True(t, res.IsError)
	assert.Contains(t, res.Content[0].Text, "domain mismatch")
	assert.Empty(t, hub.Calls())
}

func TestControlClimate(t *testing.T) {
	cases := []struct {
		name        string
		args        map[string]any
		wantService string
		wantData    map[string]any
	}{
		{
			name:        "temperature only",
			args:        map[string]any{"entity_id": "climate.hallway", "temperature": 21.5},
			wantService: "set_temperature",
			wantData:    map[string]any{"entity_id": "climate.hallway", "temperature": 21.5},
		},
		{
			name:        "mode only",
			args:        map[string]any{"entity_id": "climate.hallway", "mode": "cool"},
			wantService: "set_hvac_mode",
			wantData:    map[string]any{"entity_id": "climate.hallway", "hvac_mode": "cool"},
		},
		{
			name:        "both",
			args:        map[string]any{"entity_id": "climate.hallway", "temperature": 19, "mode": "heat"},
			wantService: "set_temperature",
			wantData:    map[string]any{"entity_id": "climate.hallway", "temperature": float64(19), "hvac_mode": "heat"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, hub := newMemoryServer(t)

			_, res := callTool(t, s, 1, "control_climate", tc.args)
			require.False(t, res.IsError, res.Content[0].Text)

			calls := hub.Calls()
			require.Len(t, calls, 1)
			assert.Equal(t, "climate", calls[0].Domain)
			assert.Equal(t, tc.wantService, calls[0].Service)
			assert.Equal(t, tc.wantData, calls[0].Data)
		})
	}
}

func TestControlClimate_Rejections(t *testing.T) {
	s, hub := newMemoryServer(t)

	for name, args := range map[string]map[string]any{
		"nothing to set": {"entity_id": "climate.hallway"},
		"toggle mode":    {"entity_id": "climate.hallway", "mode": "toggle"},
		"upper case":     {"entity_id": "climate.hallway", "mode": "HEAT"},
		"wrong domain":   {"entity_id": "light.kitchen", "temperature": 20},
		"bad entity id":  {"entity_id": "hallway", "temperature": 20},
	} {
		_, res := callTool(t, s, 1, "control_climate", args)
		assert.True(t, res.IsError, name)
	}
	assert.Empty(t, hub.Calls())
}

func TestGetDevicesByType_CaseSensitive(t *testing.T) {
	s, _ := newMemoryServer(t)

	_, res := callTool(t, s, 1, "get_devices_by_type", map[string]any{"type": "Light"})
	assert.False(t, res.IsError)
	assert.Contains(t, res.Content[0].Text, `"count": 0`)
}

func TestGetDevicesByType_MissingType(t *testing.T) {
	s, _ := newMemoryServer(t)

	_, res := callTool(t, s, 1, "get_devices_by_type", map[string]any{})
	assert.True(t, res.IsError)
	assert.Contains(t, res.Content[0].Text, "type")
}

func TestHubErrorMessages(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{errors.Join(device.ErrUnreachable, errors.New("dial tcp 10.1.1.1:8123")), "hub unreachable"},
		{&device.StatusError{StatusCode: 401}, "hub rejected the access token"},
		{&device.StatusError{StatusCode: 500}, "hub returned HTTP 500"},
		{device.ErrBadResponse, "unexpected response from hub"},
		{&device.UnreachableError{Reason: "connection failed"}, "hub unreachable: connection failed"},
		{context.DeadlineExceeded, "hub unreachable: timeout"},
		{errors.New("Bearer abc http://10.1.1.1:8123/api/states"), "hub request failed"},
	}

	for _, tc := range cases {
		s, hub := newMemoryServer(t)
		hub.FailWith(tc.err)

		_, res := callTool(t, s, 1, "get_all_devices", nil)
		assert.True(t, res.IsError)
		assert.Contains(t, res.Content[0].Text, tc.want)
		assert.NotContains(t, res.Content[0].Text, "Bearer")
		assert.NotContains(t, res.Content[0].Text, "10.1.1.1")
	}
}
