package mcp

import (
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/urmzd/hass-mcp/pkg/device"
)

// Control actions accepted by control_light and control_switch.
const (
	ActionOn     = "on"
	ActionOff    = "off"
	ActionToggle = "toggle"
)

// HVACModes are the modes accepted by control_climate.
var HVACModes = []string{"off", "heat", "cool", "heat_cool", "auto", "dry", "fan_only"}

// --- Protocol ---

// InitializeResult is the result of the initialize method.
type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    Capabilities       `json:"capabilities"`
	ServerInfo      mcp.Implementation `json:"serverInfo"`
	Instructions    string             `json:"instructions,omitempty"`
}

// Capabilities advertises the features this server supports.
type Capabilities struct {
	Tools *ToolsCapability `json:"tools,omitempty"`
}

// ToolsCapability describes tool support.
type ToolsCapability struct {
	ListChanged bool `json:"listChanged"`
}

// --- Discovery Tools ---

// DeviceInfo represents a device in tool outputs.
type DeviceInfo struct {
	EntityID    string         `json:"entity_id"`
	Domain      string         `json:"domain"`
	State       string         `json:"state"`
	Attributes  map[string]any `json:"attributes"`
	LastChanged string         `json:"last_changed,omitempty"`
	LastUpdated string         `json:"last_updated,omitempty"`
}

// ListDevicesOutput is the output for get_all_devices and get_devices_by_type.
type ListDevicesOutput struct {
	Type    string       `json:"type,omitempty"`
	Count   int          `json:"count"`
	Devices []DeviceInfo `json:"devices"`
}

// GetDeviceStateOutput is the output for get_device_state.
type GetDeviceStateOutput struct {
	Device DeviceInfo `json:"device"`
}

// --- Control Tools ---

// ControlOutput is the output for control_light, control_switch and control_climate.
type ControlOutput struct {
	EntityID string         `json:"entity_id"`
	Service  string         `json:"service"`
	Data     map[string]any `json:"data"`
	Changed  []DeviceInfo   `json:"changed"`
}

// --- Helper conversions ---

// StateToInfo converts a device.State to DeviceInfo.
func StateToInfo(s device.State) DeviceInfo {
	attrs := s.Attributes
	if attrs == nil {
		attrs = map[string]any{}
	}
	return DeviceInfo{
		EntityID:    s.EntityID,
		Domain:      s.Domain(),
		State:       s.State,
		Attributes:  attrs,
		LastChanged: formatTime(s.LastChanged),
		LastUpdated: formatTime(s.LastUpdated),
	}
}

// StatesToInfos converts a slice of states, never returning nil.
func StatesToInfos(states []device.State) []DeviceInfo {
	out := make([]DeviceInfo, 0, len(states))
	for _, s := range states {
		out = append(out, StateToInfo(s))
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
