package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// Version is the only protocol version accepted in the envelope.
const Version = mcp.JSONRPC_VERSION

// Request is a decoded JSON-RPC request or notification.
type Request struct {
	ID     mcp.RequestId
	Method string
	Params json.RawMessage

	// notification is true when a valid envelope carried no id member.
	notification bool
}

// IsNotification reports whether the request carried no id.
func (r *Request) IsNotification() bool {
	return r.notification
}

// Response is a JSON-RPC response. Exactly one of Result or Error is set.
type Response struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      mcp.RequestId `json:"id"`
	Result  any           `json:"result,omitempty"`
	Error   *Error        `json:"error,omitempty"`
}

// Error is a protocol-tier JSON-RPC error object. Method handlers return it
// to choose the code; any other error becomes an internal error.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// NewError creates an Error with a formatted message.
func NewError(code int, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// ErrInvalidParams is a convenience for -32602.
func ErrInvalidParams(format string, args ...any) *Error {
	return NewError(mcp.INVALID_PARAMS, format, args...)
}

// ErrMethodNotFound is a convenience for -32601.
func ErrMethodNotFound(format string, args ...any) *Error {
	return NewError(mcp.METHOD_NOT_FOUND, format, args...)
}

func resultResponse(id mcp.RequestId, result any) *Response {
	if result == nil {
		result = struct{}{}
	}
	return &Response{JSONRPC: Version, ID: id, Result: result}
}

func errorResponse(id mcp.RequestId, err *Error) *Response {
	return &Response{JSONRPC: Version, ID: id, Error: err}
}

// decode validates the envelope shape of line. The returned Error, when
// non-nil, must be sent with the returned id. An invalid envelope is never
// a notification, even without an id.
func decode(line []byte) (*Request, *Error) {
	null := mcp.NewRequestId(nil)

	if !json.Valid(line) {
		return &Request{ID: null}, NewError(mcp.PARSE_ERROR, "parse error")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(line, &fields); err != nil || fields == nil {
		return &Request{ID: null}, NewError(mcp.INVALID_REQUEST, "invalid request: expected a JSON object")
	}

	req := &Request{ID: null}
	rawID, hasID := fields["id"]
	if hasID {
		id, err := decodeID(rawID)
		if err != nil {
			return &Request{ID: null}, NewError(mcp.INVALID_REQUEST, "invalid request: id must be a string, number or null")
		}
		req.ID = id
	}

	var version string
	if err := json.Unmarshal(fields["jsonrpc"], &version); err != nil || version != Version {
		return req, NewError(mcp.INVALID_REQUEST, "invalid request: jsonrpc must be %q", Version)
	}

	rawMethod, ok := fields["method"]
	if !ok {
		return req, NewError(mcp.INVALID_REQUEST, "invalid request: method is required")
	}
	if err := json.Unmarshal(rawMethod, &req.Method); err != nil || isNull(rawMethod) {
		return req, NewError(mcp.INVALID_REQUEST, "invalid request: method must be a string")
	}

	if params, ok := fields["params"]; ok && !isNull(params) {
		req.Params = params
	}
	req.notification = !hasID
	return req, nil
}

// decodeID keeps integer ids exact; only fractional ids go through float64.
func decodeID(raw json.RawMessage) (mcp.RequestId, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return mcp.RequestId{}, err
	}
	switch t := v.(type) {
	case nil:
		return mcp.NewRequestId(nil), nil
	case string:
		return mcp.NewRequestId(t), nil
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return mcp.NewRequestId(n), nil
		}
		f, err := t.Float64()
		if err != nil {
			return mcp.RequestId{}, err
		}
		return mcp.NewRequestId(f), nil
	default:
		return mcp.RequestId{}, fmt.Errorf("unsupported id type %T", v)
	}
}

func isNull(raw json.RawMessage) bool {
	return string(raw) == "null"
}
