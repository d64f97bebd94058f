package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// ToolHandler runs one tool. Domain failures are returned as error results;
// a non-nil error means the server itself failed.
type ToolHandler func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)

type registeredTool struct {
	tool    mcp.Tool
	handler ToolHandler
}

// entityIDPattern mirrors device.ParseEntityID.
const entityIDPattern = `^[^.\s/]+\.[^\s/]+$`

// registerTools builds the tool table in catalog order and compiles each input schema.
func (s *Server) registerTools() error {
	readOnly := []mcp.ToolOption{
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
	}
	control := []mcp.ToolOption{
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
	}

	entityID := func(desc string) mcp.ToolOption {
		return mcp.WithString("entity_id",
			mcp.Required(),
			mcp.Pattern(entityIDPattern),
			mcp.Description(desc),
		)
	}

	// Get all devices
	s.addTool(
		mcp.NewTool("get_all_devices", append([]mcp.ToolOption{
			mcp.WithDescription("Get a list of all devices and their current states"),
		}, readOnly...)...),
		s.handleGetAllDevices,
	)

	// Get devices by type
	s.addTool(
		mcp.NewTool("get_devices_by_type", append([]mcp.ToolOption{
			mcp.WithDescription("Get devices of a specific type (light, switch, climate, etc.)"),
			mcp.WithString("type",
				mcp.Required(),
				mcp.MinLength(1),
				mcp.Description("Device domain, e.g. 'light', 'switch', 'climate'. Matching is case-sensitive"),
			),
		}, readOnly...)...),
		s.handleGetDevicesByType,
	)

	// Get device state
	s.addTool(
		mcp.NewTool("get_device_state", append([]mcp.ToolOption{
			mcp.WithDescription("Get the current state of a specific device"),
			entityID("Entity ID of the device (e.g., 'light.living_room')"),
		}, readOnly...)...),
		s.handleGetDeviceState,
	)

	// Control light
	s.addTool(
		mcp.NewTool("control_light", append([]mcp.ToolOption{
			mcp.WithDescription("Turn a light on or off, optionally setting brightness and color temperature"),
			entityID("Entity ID of the light (e.g., 'light.kitchen')"),
			mcp.WithString("action",
				mcp.Required(),
				mcp.Enum(ActionOn, ActionOff),
				mcp.Description("Action to perform"),
			),
			mcp.WithNumber("brightness",
				mcp.Min(0),
				mcp.Max(255),
				mcp.Description("Brightness level (0-255), only with action 'on'"),
			),
			mcp.WithNumber("color_temp",
				mcp.Min(150),
				mcp.Max(500),
				mcp.Description("Color temperature in mireds (150-500), only with action 'on'"),
			),
		}, control...)...),
		s.handleControlLight,
	)

	// Control switch
	s.addTool(
		mcp.NewTool("control_switch", append([]mcp.ToolOption{
			mcp.WithDescription("Turn a switch on or off, or toggle it"),
			entityID("Entity ID of the switch (e.g., 'switch.coffee_maker')"),
			mcp.WithString("action",
				mcp.Required(),
				mcp.Enum(ActionOn, ActionOff, ActionToggle),
				mcp.Description("Action to perform"),
			),
		}, control...)...),
		s.handleControlSwitch,
	)

	// Control climate
	s.addTool(
		mcp.NewTool("control_climate", append([]mcp.ToolOption{
			mcp.WithDescription("Set the target temperature and/or HVAC mode of a climate device. At least one of temperature or mode is required"),
			entityID("Entity ID of the climate device (e.g., 'climate.hallway')"),
			mcp.WithNumber("temperature",
				mcp.Description("Target temperature in the hub's configured unit"),
			),
			mcp.WithString("mode",
				mcp.Enum(HVACModes...),
				mcp.Description("HVAC mode"),
			),
		}, control...)...),
		s.handleControlClimate,
	)

	for _, t := range s.tools {
		doc, err := json.Marshal(t.tool.InputSchema)
		if err != nil {
			return fmt.Errorf("failed to encode schema for %s: %w", t.tool.Name, err)
		}
		if err := s.validator.Add(t.tool.Name, doc); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) addTool(tool mcp.Tool, handler ToolHandler) {
	s.index[tool.Name] = len(s.tools)
	s.tools = append(s.tools, registeredTool{tool: tool, handler: handler})
}

func (s *Server) lookup(name string) (registeredTool, bool) {
	i, ok := s.index[name]
	if !ok {
		return registeredTool{}, false
	}
	return s.tools[i], true
}

// Tools returns the tool descriptors in catalog order.
func (s *Server) Tools() []mcp.Tool {
	out := make([]mcp.Tool, len(s.tools))
	for i, t := range s.tools {
		out[i] = t.tool
	}
	return out
}
