package device

import "context"

// Hub is the set of operations the tool handlers need from a
// home-automation hub. Every call goes to the hub live; implementations
// must not cache.
type Hub interface {
	// ListStates returns every entity known to the hub
	ListStates(ctx context.Context) ([]State, error)

	// GetState returns a single entity, or ErrNotFound
	GetState(ctx context.Context, entityID string) (*State, error)

	// CallService invokes <domain>.<service> with data and returns the states the hub reports as changed
	CallService(ctx context.Context, domain, service string, data map[string]any) ([]State, error)
}
