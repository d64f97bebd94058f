// Package jsonrpc implements a line-delimited JSON-RPC 2.0 endpoint. The
// Dispatcher owns the output stream: method handlers return values and
// never see the writer, so nothing but response frames reaches it.
package jsonrpc

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"runtime/debug"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"
)

// HandlerFunc handles one method. Return a *Error to pick the protocol error
// code; any other error is reported to the client as an internal error.
type HandlerFunc func(ctx context.Context, params json.RawMessage) (any, error)

// Dispatcher routes requests to method handlers. Handlers are registered
// before Serve is called; the method table is read-only afterwards.
type Dispatcher struct {
	handlers map[string]HandlerFunc
	logger   zerolog.Logger
}

// NewDispatcher creates a dispatcher with no methods.
func NewDispatcher(logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[string]HandlerFunc),
		logger:   logger.With().Str("component", "jsonrpc").Logger(),
	}
}

// Handle registers fn for method, replacing any previous handler.
func (d *Dispatcher) Handle(method string, fn HandlerFunc) {
	d.handlers[method] = fn
}

// HandleMessage processes one frame and returns the response to send, or
// nil when the frame was a notification.
func (d *Dispatcher) HandleMessage(ctx context.Context, line []byte) *Response {
	req, perr := decode(line)
	if perr != nil {
		d.logger.Warn().Int("code", perr.Code).Str("error", perr.Message).Msg("Rejected message")
		return errorResponse(req.ID, perr)
	}

	log := d.logger.With().Str("method", req.Method).Str("id", req.ID.String()).Logger()

	handler, ok := d.handlers[req.Method]
	if !ok {
		if req.notification {
			log.Debug().Msg("Ignoring unknown notification")
			return nil
		}
		log.Warn().Msg("Method not found")
		return errorResponse(req.ID, ErrMethodNotFound("method not found: %s", req.Method))
	}

	result, err := d.invoke(ctx, handler, req)
	if req.notification {
		if err != nil {
			log.Error().Err(err).Msg("Notification handler failed")
		}
		return nil
	}

	if err != nil {
		var rpcErr *Error
		if errors.As(err, &rpcErr) {
			log.Warn().Int("code", rpcErr.Code).Str("error", rpcErr.Message).Msg("Request failed")
			return errorResponse(req.ID, rpcErr)
		}
		log.Error().Err(err).Msg("Handler error")
		return errorResponse(req.ID, &Error{Code: mcp.INTERNAL_ERROR, Message: "internal error"})
	}
	return resultResponse(req.ID, result)
}

// invoke runs handler, converting a panic into an error.
func (d *Dispatcher) invoke(ctx context.Context, handler HandlerFunc, req *Request) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error().
				Str("method", req.Method).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("Handler panicked")
			result, err = nil, fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(ctx, req.Params)
}

// Serve reads newline-delimited frames from r until EOF and writes one
// response line per request to w. It returns nil on EOF. Frames are handled
// strictly one at a time, in order.
func (d *Dispatcher) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	reader := bufio.NewReader(r)
	out := &frameWriter{w: bufio.NewWriter(w)}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		line, readErr := reader.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			if resp := d.HandleMessage(ctx, line); resp != nil {
				if err := out.write(resp); err != nil {
					return fmt.Errorf("failed to write response: %w", err)
				}
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				d.logger.Debug().Msg("Input closed")
				return nil
			}
			return fmt.Errorf("failed to read request: %w", readErr)
		}
	}
}

// frameWriter is the only writer of the protocol stream. Serve calls it
// from a single goroutine, so writes need no locking.
type frameWriter struct {
	w *bufio.Writer
}

func (f *frameWriter) write(resp *Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		// A result that cannot be encoded still gets a well-formed reply.
		data, _ = json.Marshal(errorResponse(resp.ID, &Error{Code: mcp.INTERNAL_ERROR, Message: "internal error"}))
	}

	if _, err := f.w.Write(append(data, '\n')); err != nil {
		return err
	}
	return f.w.Flush()
}
