package device

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// State is a single entity as reported by the hub. Attributes vary by
// domain, so they are kept as a dynamic map of JSON values.
type State struct {
	EntityID    string         `json:"entity_id"`
	State       string         `json:"state"`
	Attributes  map[string]any `json:"attributes"`
	LastChanged time.Time      `json:"last_changed"`
	LastUpdated time.Time      `json:"last_updated"`
}

// Domain returns the domain prefix of the entity id, or "" when the id is malformed.
func (s State) Domain() string {
	domain, _, err := ParseEntityID(s.EntityID)
	if err != nil {
		return ""
	}
	return domain
}

// Domain constants
const (
	DomainLight        = "light"
	DomainSwitch       = "switch"
	DomainClimate      = "climate"
	DomainSensor       = "sensor"
	DomainBinarySensor = "binary_sensor"
	DomainCover        = "cover"
	DomainFan          = "fan"
	DomainLock         = "lock"
)

// ErrInvalidEntityID indicates an entity id without a "<domain>.<object_id>" shape
var ErrInvalidEntityID = errors.New("invalid entity id")

// ParseEntityID splits an entity id such as "light.kitchen" into its
// domain and object id. Matching is case-sensitive.
func ParseEntityID(id string) (domain, objectID string, err error) {
	domain, objectID, ok := strings.Cut(id, ".")
	if !ok || domain == "" || objectID == "" || strings.ContainsAny(id, " \t\r\n/") {
		return "", "", fmt.Errorf("%w: %q (expected <domain>.<object_id>)", ErrInvalidEntityID, id)
	}
	return domain, objectID, nil
}

// FilterByDomain returns the states whose domain equals domain exactly.
func FilterByDomain(states []State, domain string) []State {
	out := make([]State, 0, len(states))
	for _, s := range states {
		if s.Domain() == domain {
			out = append(out, s)
		}
	}
	return out
}
