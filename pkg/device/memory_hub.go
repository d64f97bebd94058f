package device

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"
)

// ServiceCall records one CallService invocation against a MemoryHub.
type ServiceCall struct {
	Domain  string
	Service string
	Data    map[string]any
}

// MemoryHub is an in-memory Hub. It backs the demo mode of the server and
// the handler tests; service calls mutate the stored states the way Home
// Assistant would for the light, switch and climate domains.
type MemoryHub struct {
	mu     sync.Mutex
	states map[string]State
	calls  []ServiceCall
	err    error
	now    func() time.Time
}

// NewMemoryHub creates a MemoryHub seeded with states.
func NewMemoryHub(states ...State) *MemoryHub {
	h := &MemoryHub{
		states: make(map[string]State, len(states)),
		now:    time.Now,
	}
	for _, s := range states {
		h.states[s.EntityID] = s
	}
	return h
}

// FailWith makes every subsequent call return err. Pass nil to clear.
func (h *MemoryHub) FailWith(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.err = err
}

// Calls returns the service calls received so far.
func (h *MemoryHub) Calls() []ServiceCall {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]ServiceCall(nil), h.calls...)
}

func (h *MemoryHub) ListStates(ctx context.Context) ([]State, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return nil, h.err
	}

	out := make([]State, 0, len(h.states))
	for _, s := range h.states {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })
	return out, nil
}

func (h *MemoryHub) GetState(ctx context.Context, entityID string) (*State, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return nil, h.err
	}

	s, ok := h.states[entityID]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

func (h *MemoryHub) CallService(ctx context.Context, domain, service string, data map[string]any) ([]State, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return nil, h.err
	}

	h.calls = append(h.calls, ServiceCall{Domain: domain, Service: service, Data: maps.Clone(data)})

	entityID, _ := data["entity_id"].(string)
	s, ok := h.states[entityID]
	if !ok {
		// Home Assistant accepts calls for unknown entities and reports nothing changed.
		return []State{}, nil
	}
	if s.Attributes == nil {
		s.Attributes = map[string]any{}
	} else {
		s.Attributes = maps.Clone(s.Attributes)
	}

	switch service {
	case "turn_on":
		s.State = "on"
		for k, v := range data {
			if k != "entity_id" {
				s.Attributes[k] = v
			}
		}
	case "turn_off":
		s.State = "off"
	case "toggle":
		if s.State == "on" {
			s.State = "off"
		} else {
			s.State = "on"
		}
	case "set_temperature":
		if t, ok := data["temperature"]; ok {
			s.Attributes["temperature"] = t
		}
		if m, ok := data["hvac_mode"].(string); ok {
			s.State = m
		}
	case "set_hvac_mode":
		if m, ok := data["hvac_mode"].(string); ok {
			s.State = m
		}
	default:
		return nil, &StatusError{StatusCode: 400}
	}

	now := h.now().UTC()
	s.LastChanged = now
	s.LastUpdated = now
	h.states[entityID] = s
	return []State{s}, nil
}

// DemoStates returns a small fixed house used by the server's demo mode.
func DemoStates() []State {
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	mk := func(id, state string, attrs map[string]any) State {
		return State{EntityID: id, State: state, Attributes: attrs, LastChanged: at, LastUpdated: at}
	}
	return []State{
		mk("light.living_room", "off", map[string]any{"friendly_name": "Living Room", "supported_color_modes": []any{"color_temp"}}),
		mk("light.kitchen", "on", map[string]any{"friendly_name": "Kitchen", "brightness": float64(180)}),
		mk("switch.coffee_maker", "off", map[string]any{"friendly_name": "Coffee Maker"}),
		mk("climate.hallway", "heat", map[string]any{
			"friendly_name": "Hallway",
			"temperature":   float64(20.5),
			"hvac_modes":    []any{"off", "heat", "cool", "auto"},
		}),
		mk("sensor.outdoor_temperature", "12.3", map[string]any{"unit_of_measurement": "°C"}),
	}
}
