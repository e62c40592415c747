package ha

import (
	"encoding/json"
	"strings"
	"time"
)

// Event types the client subscribes to after authenticating
const (
	EventStateChanged          = "state_changed"
	EventEntityRegistryUpdated = "entity_registry_updated"
	EventDeviceRegistryUpdated = "device_registry_updated"
	EventAreaRegistryUpdated   = "area_registry_updated"
	EventFloorRegistryUpdated  = "floor_registry_updated"
)

// registryEvents are the events that invalidate a registry snapshot
var registryEvents = []string{
	EventEntityRegistryUpdated,
	EventDeviceRegistryUpdated,
	EventAreaRegistryUpdated,
	EventFloorRegistryUpdated,
}

// Message represents a base WebSocket message to/from Home Assistant
type Message struct {
	ID      int             `json:"id,omitempty"`
	Type    string          `json:"type"`
	Success *bool           `json:"success,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	Event   *Event          `json:"event,omitempty"`
}

// Error represents an error response from Home Assistant
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// AuthMessage represents authentication request
type AuthMessage struct {
	Type        string `json:"type"`
	AccessToken string `json:"access_token,omitempty"`
}

// Event represents an event message from Home Assistant
type Event struct {
	EventType string          `json:"event_type"`
	Data      json.RawMessage `json:"data"`
	Origin    string          `json:"origin"`
	TimeFired time.Time       `json:"time_fired"`
}

// StateChangedEvent represents a state_changed event
type StateChangedEvent struct {
	EntityID string `json:"entity_id"`
	NewState *State `json:"new_state"`
	OldState *State `json:"old_state"`
}

// State represents an entity state
type State struct {
	EntityID    string                 `json:"entity_id"`
	State       string                 `json:"state"`
	Attributes  map[string]interface{} `json:"attributes"`
	LastChanged time.Time              `json:"last_changed"`
	LastUpdated time.Time              `json:"last_updated"`
	Context     *Context               `json:"context,omitempty"`
}

// Domain returns the part of the entity ID before the first dot
func (s *State) Domain() string {
	return Domain(s.EntityID)
}

// StringAttribute returns a string attribute or "" when absent or not a string
func (s *State) StringAttribute(name string) string {
	if s == nil || s.Attributes == nil {
		return ""
	}
	v, _ := s.Attributes[name].(string)
	return v
}

// FriendlyName returns the friendly_name attribute, falling back to the entity ID
func (s *State) FriendlyName() string {
	if name := s.StringAttribute("friendly_name"); name != "" {
		return name
	}
	return s.EntityID
}

// Domain returns the domain of an entity ID ("sensor" for "sensor.phone_battery")
func Domain(entityID string) string {
	if i := strings.IndexByte(entityID, '.'); i >= 0 {
		return entityID[:i]
	}
	return ""
}

// Context represents the context of a state change
type Context struct {
	ID       string `json:"id"`
	ParentID string `json:"parent_id,omitempty"`
	UserID   string `json:"user_id,omitempty"`
}

// EntityRegistryEntry is one row of config/entity_registry/list
type EntityRegistryEntry struct {
	EntityID   string `json:"entity_id"`
	Platform   string `json:"platform"`
	DeviceID   string `json:"device_id,omitempty"`
	AreaID     string `json:"area_id,omitempty"`
	DisabledBy string `json:"disabled_by,omitempty"`
	HiddenBy   string `json:"hidden_by,omitempty"`
	Name       string `json:"name,omitempty"`
	Icon       string `json:"icon,omitempty"`
}

// DeviceRegistryEntry is one row of config/device_registry/list
type DeviceRegistryEntry struct {
	ID           string `json:"id"`
	Name         string `json:"name,omitempty"`
	NameByUser   string `json:"name_by_user,omitempty"`
	AreaID       string `json:"area_id,omitempty"`
	Manufacturer string `json:"manufacturer,omitempty"`
	Model        string `json:"model,omitempty"`
	DisabledBy   string `json:"disabled_by,omitempty"`
}

// AreaRegistryEntry is one row of config/area_registry/list
type AreaRegistryEntry struct {
	AreaID  string `json:"area_id"`
	Name    string `json:"name"`
	FloorID string `json:"floor_id,omitempty"`
	Icon    string `json:"icon,omitempty"`
}

// FloorRegistryEntry is one row of config/floor_registry/list
type FloorRegistryEntry struct {
	FloorID string `json:"floor_id"`
	Name    string `json:"name"`
	Level   *int   `json:"level,omitempty"`
}

// CommandRequest represents a request that only carries a type, such as
// get_states or config/area_registry/list
type CommandRequest struct {
	ID   int    `json:"id"`
	Type string `json:"type"`
}

// SubscribeEventsRequest represents a subscribe_events request
type SubscribeEventsRequest struct {
	ID        int    `json:"id"`
	Type      string `json:"type"`
	EventType string `json:"event_type,omitempty"`
}

// StateChangeHandler is called when a state change event is received.
// newState is nil when the entity was removed.
type StateChangeHandler func(entityID string, oldState, newState *State)

// RegistryChangeHandler is called when one of the registries changed
type RegistryChangeHandler func(eventType string)

// Subscription represents an active event subscription
type Subscription interface {
	Unsubscribe() error
}

// subscription removes a handler from its subscriberSet
type subscription struct {
	remove func()
}

func (s *subscription) Unsubscribe() error {
	s.remove()
	return nil
}
