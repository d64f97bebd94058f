package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"
	"github.com/urmzd/hass-mcp/pkg/device"
	"github.com/urmzd/hass-mcp/pkg/jsonrpc"
	"github.com/urmzd/hass-mcp/pkg/schema"
)

const (
	// ServerName is reported to clients in the initialize response.
	ServerName = "home-assistant-mcp"

	instructions = "Tools for reading and controlling Home Assistant devices. " +
		"Entity ids have the form <domain>.<object_id>, for example light.kitchen."
)

// Server exposes Home Assistant devices as MCP tools over JSON-RPC.
type Server struct {
	hub        device.Hub
	validator  *schema.Validator
	tools      []registeredTool
	index      map[string]int
	dispatcher *jsonrpc.Dispatcher
	logger     zerolog.Logger
	version    string
}

// NewServer creates a new MCP server backed by hub. The tool registry is
// built here and never changes afterwards.
func NewServer(hub device.Hub, logger zerolog.Logger, version string) (*Server, error) {
	s := &Server{
		hub:       hub,
		validator: schema.NewValidator(),
		index:     make(map[string]int),
		logger:    logger.With().Str("component", "mcp").Logger(),
		version:   version,
	}

	if err := s.registerTools(); err != nil {
		return nil, err
	}

	s.dispatcher = jsonrpc.NewDispatcher(logger)
	s.dispatcher.Handle("initialize", s.handleInitialize)
	s.dispatcher.Handle("ping", s.handlePing)
	s.dispatcher.Handle("tools/list", s.handleListTools)
	s.dispatcher.Handle("tools/call", s.handleCallTool)
	s.dispatcher.Handle("notifications/initialized", s.handleNotification)
	s.dispatcher.Handle("notifications/cancelled", s.handleNotification)

	return s, nil
}

// Serve runs the protocol loop over r and w until r reaches EOF.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	return s.dispatcher.Serve(ctx, r, w)
}

// ServeStdio runs the protocol loop over stdin and stdout.
func (s *Server) ServeStdio(ctx context.Context) error {
	return s.Serve(ctx, os.Stdin, os.Stdout)
}

// HandleMessage processes a single frame; see jsonrpc.Dispatcher.HandleMessage.
func (s *Server) HandleMessage(ctx context.Context, line []byte) *jsonrpc.Response {
	return s.dispatcher.HandleMessage(ctx, line)
}

func (s *Server) handleInitialize(ctx context.Context, params json.RawMessage) (any, error) {
	var p mcp.InitializeParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, jsonrpc.ErrInvalidParams("invalid initialize params: %s", err)
		}
	}

	version := negotiateVersion(p.ProtocolVersion)
	s.logger.Info().
		Str("client", p.ClientInfo.Name).
		Str("client_version", p.ClientInfo.Version).
		Str("protocol_version", version).
		Msg("Client initialized")

	return InitializeResult{
		ProtocolVersion: version,
		Capabilities: Capabilities{
			Tools: &ToolsCapability{ListChanged: false},
		},
		ServerInfo: mcp.Implementation{
			Name:    ServerName,
			Version: s.version,
		},
		Instructions: instructions,
	}, nil
}

func negotiateVersion(requested string) string {
	for _, v := range mcp.ValidProtocolVersions {
		if v == requested {
			return requested
		}
	}
	return mcp.LATEST_PROTOCOL_VERSION
}

func (s *Server) handlePing(ctx context.Context, params json.RawMessage) (any, error) {
	return struct{}{}, nil
}

func (s *Server) handleNotification(ctx context.Context, params json.RawMessage) (any, error) {
	return nil, nil
}

func (s *Server) handleListTools(ctx context.Context, params json.RawMessage) (any, error) {
	return mcp.ListToolsResult{Tools: s.Tools()}, nil
}

// callToolParams is the params object of a tools/call request.
type callToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

func (s *Server) handleCallTool(ctx context.Context, params json.RawMessage) (any, error) {
	var p callToolParams
	if len(params) == 0 {
		return nil, jsonrpc.ErrInvalidParams("tools/call requires params with a tool name")
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, jsonrpc.ErrInvalidParams("invalid tools/call params: expected {name, arguments}")
	}
	if p.Name == "" {
		return nil, jsonrpc.ErrInvalidParams("tool name is required")
	}

	t, ok := s.lookup(p.Name)
	if !ok {
		s.logger.Warn().Str("tool", p.Name).Msg("Unknown tool called")
		return nil, jsonrpc.ErrMethodNotFound("tool not found: %s", p.Name)
	}

	log := s.logger.With().Str("tool", p.Name).Logger()
	log.Info().Msg("Tool called")

	args := map[string]any{}
	if len(p.Arguments) > 0 && string(p.Arguments) != "null" {
		if err := json.Unmarshal(p.Arguments, &args); err != nil {
			log.Warn().Msg("Arguments are not an object")
			return mcp.NewToolResultError("arguments must be a JSON object"), nil
		}
	}

	if err := s.validator.Validate(p.Name, args); err != nil {
		log.Warn().Err(err).Msg("Argument validation failed")
		return mcp.NewToolResultError(err.Error()), nil
	}

	var req mcp.CallToolRequest
	req.Params.Name = p.Name
	req.Params.Arguments = args

	result, err := t.handler(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("tool %s: %w", p.Name, err)
	}
	if result == nil {
		return nil, fmt.Errorf("tool %s returned no result", p.Name)
	}

	log.Debug().Bool("is_error", result.IsError).Msg("Tool completed")
	return result, nil
}
