package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/urmzd/hass-mcp/pkg/device"
)

func (s *Server) handleGetAllDevices(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	states, err := s.hub.ListStates(ctx)
	if err != nil {
		return s.hubError("list devices", "", err), nil
	}

	out := ListDevicesOutput{
		Count:   len(states),
		Devices: StatesToInfos(states),
	}
	return mcp.NewToolResultText(formatJSON(out)), nil
}

func (s *Server) handleGetDevicesByType(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	domain, err := requiredString(request, "type")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	states, err := s.hub.ListStates(ctx)
	if err != nil {
		return s.hubError("list devices", "", err), nil
	}

	matched := device.FilterByDomain(states, domain)
	out := ListDevicesOutput{
		Type:    domain,
		Count:   len(matched),
		Devices: StatesToInfos(matched),
	}
	return mcp.NewToolResultText(formatJSON(out)), nil
}

func (s *Server) handleGetDeviceState(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	entityID, err := entityArg(request, "")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	state, err := s.hub.GetState(ctx, entityID)
	if err != nil {
		return s.hubError("get device state", entityID, err), nil
	}

	out := GetDeviceStateOutput{Device: StateToInfo(*state)}
	return mcp.NewToolResultText(formatJSON(out)), nil
}

func (s *Server) handleControlLight(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	entityID, err := entityArg(request, device.DomainLight)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	action, err := requiredString(request, "action")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	args := request.GetArguments()
	brightness, hasBrightness := args["brightness"]
	colorTemp, hasColorTemp := args["color_temp"]

	data := map[string]any{"entity_id": entityID}
	var service string
	switch action {
	case ActionOn:
		service = "turn_on"
		if hasBrightness {
			b, ok := brightness.(float64)
			if !ok || b < 0 || b > 255 {
				return mcp.NewToolResultError("brightness must be a number between 0 and 255"), nil
			}
			data["brightness"] = int(math.Round(b))
		}
		if hasColorTemp {
			ct, ok := colorTemp.(float64)
			if !ok {
				return mcp.NewToolResultError("color_temp must be a number"), nil
			}
			data["color_temp"] = int(math.Round(ct))
		}
	case ActionOff:
		if hasBrightness || hasColorTemp {
			return mcp.NewToolResultError(`brightness and color_temp can only be set with action "on"`), nil
		}
		service = "turn_off"
	default:
		return mcp.NewToolResultError(fmt.Sprintf("invalid action %q for control_light (expected %q or %q)", action, ActionOn, ActionOff)), nil
	}

	return s.callService(ctx, device.DomainLight, service, data)
}

func (s *Server) handleControlSwitch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	entityID, err := entityArg(request, device.DomainSwitch)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	action, err := requiredString(request, "action")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var service string
	switch action {
	case ActionOn:
		service = "turn_on"
	case ActionOff:
		service = "turn_off"
	case ActionToggle:
		service = "toggle"
	default:
		return mcp.NewToolResultError(fmt.Sprintf("invalid action %q for control_switch (expected %q, %q or %q)", action, ActionOn, ActionOff, ActionToggle)), nil
	}

	return s.callService(ctx, device.DomainSwitch, service, map[string]any{"entity_id": entityID})
}

func (s *Server) handleControlClimate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	entityID, err := entityArg(request, device.DomainClimate)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	args := request.GetArguments()
	temperature, hasTemperature := args["temperature"]
	mode, hasMode := args["mode"]
	if !hasTemperature && !hasMode {
		return mcp.NewToolResultError("at least one of temperature or mode is required"), nil
	}

	data := map[string]any{"entity_id": entityID}
	if hasMode {
		m, ok := mode.(string)
		if !ok || !validMode(m) {
			return mcp.NewToolResultError(fmt.Sprintf("invalid mode %v", mode)), nil
		}
		data["hvac_mode"] = m
	}

	if !hasTemperature {
		return s.callService(ctx, device.DomainClimate, "set_hvac_mode", data)
	}

	t, ok := temperature.(float64)
	if !ok {
		return mcp.NewToolResultError("temperature must be a number"), nil
	}
	data["temperature"] = t
	return s.callService(ctx, device.DomainClimate, "set_temperature", data)
}

func (s *Server) callService(ctx context.Context, domain, service string, data map[string]any) (*mcp.CallToolResult, error) {
	entityID, _ := data["entity_id"].(string)

	changed, err := s.hub.CallService(ctx, domain, service, data)
	if err != nil {
		return s.hubError("call "+domain+"."+service, entityID, err), nil
	}

	out := ControlOutput{
		EntityID: entityID,
		Service:  domain + "." + service,
		Data:     data,
		Changed:  StatesToInfos(changed),
	}
	return mcp.NewToolResultText(formatJSON(out)), nil
}

// hubError turns a hub failure into a tool error. The message never carries
// the hub URL or the token.
func (s *Server) hubError(action, entityID string, err error) *mcp.CallToolResult {
	s.logger.Warn().Err(err).Str("action", action).Str("entity_id", entityID).Msg("Hub call failed")

	var statusErr *device.StatusError
	var unreachable *device.UnreachableError
	var msg string
	switch {
	case errors.Is(err, device.ErrNotFound):
		msg = "entity not found"
		if entityID != "" {
			msg += ": " + entityID
		}
	case errors.As(err, &unreachable):
		msg = unreachable.Error()
	case errors.Is(err, device.ErrUnreachable):
		msg = device.ErrUnreachable.Error()
	case errors.As(err, &statusErr) && statusErr.Unauthorized():
		msg = "hub rejected the access token"
	case errors.As(err, &statusErr):
		msg = statusErr.Error()
	case errors.Is(err, device.ErrBadResponse):
		msg = device.ErrBadResponse.Error()
	case errors.Is(err, context.DeadlineExceeded):
		msg = device.ErrUnreachable.Error() + ": timeout"
	case errors.Is(err, context.Canceled):
		msg = "request cancelled"
	default:
		msg = "hub request failed"
	}
	return mcp.NewToolResultError(fmt.Sprintf("failed to %s: %s", action, msg))
}

// --- helpers ---

func requiredString(request mcp.CallToolRequest, key string) (string, error) {
	args := request.GetArguments()
	v, ok := args[key]
	if !ok || v == nil {
		return "", fmt.Errorf("required parameter %q is missing", key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("parameter %q must be a non-empty string", key)
	}
	return s, nil
}

// entityArg reads entity_id and, when domain is set, checks that the entity belongs to it.
func entityArg(request mcp.CallToolRequest, domain string) (string, error) {
	entityID, err := requiredString(request, "entity_id")
	if err != nil {
		return "", err
	}

	got, _, err := device.ParseEntityID(entityID)
	if err != nil {
		return "", err
	}
	if domain != "" && got != domain {
		return "", fmt.Errorf("domain mismatch: %s is a %s entity, expected %s", entityID, got, domain)
	}
	return entityID, nil
}

func validMode(mode string) bool {
	for _, m := range HVACModes {
		if m == mode {
			return true
		}
	}
	return false
}

func formatJSON(v any) string {
	b, err := encodeJSON(v)
	if err != nil {
		return fmt.Sprintf(`{"error":"failed to marshal response: %s"}`, err)
	}
	return string(b)
}

func encodeJSON(v any) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}
