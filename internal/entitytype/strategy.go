// Package entitytype classifies Home Assistant entities into the monitored
// categories (battery, contact, light) and evaluates their state.
//
// Each category is a Strategy. The set is closed: Lookup resolves a
// configured entity type to its Strategy once, at setup.
package entitytype

import (
	"devicemonitor/internal/config"
	"devicemonitor/internal/ha"
)

// StateUnavailable is the state Home Assistant reports for unreachable entities
const StateUnavailable = "unavailable"

// Colors shared by the strategies
const (
	ColorRed      = "#f44336"
	ColorOrange   = "#ffa500"
	ColorBlue     = "#2196f3"
	ColorGreen    = "#4caf50"
	ColorMuted    = "#9e9e9e"
	ColorDisabled = "#bdbdbd"
)

// StateInfo is the evaluated state of one entity
type StateInfo struct {
	// Value is the normalized state ("low", "ok", "open", "on", the raw
	// numeric string, ...)
	Value string `json:"value"`
	// DisplayValue is the human readable state
	DisplayValue string `json:"display_value"`
	IsAlert      bool   `json:"is_alert"`
	// NumericValue is set only for numeric battery levels
	NumericValue *float64 `json:"numeric_value"`
	// IsUnavailable is set by the aggregator, not by the strategies
	IsUnavailable bool `json:"is_unavailable"`
	// DeviceClass is the device_class the icon is chosen for ("lock" for
	// lock entities)
	DeviceClass string `json:"device_class,omitempty"`
}

// Formatter renders a localized display string for an entity state.
// It returns "" when it has nothing better than the caller's fallback.
type Formatter func(state *ha.State) string

// format calls f, tolerating a nil Formatter
func (f Formatter) format(state *ha.State) string {
	if f == nil {
		return ""
	}
	return f(state)
}

// Strategy bundles the pure functions specialized for one entity category
type Strategy interface {
	// Type returns the configured entity type this strategy serves
	Type() config.EntityType

	// Detect reports whether the entity belongs to this category
	Detect(entityID string, attributes map[string]interface{}) bool

	// EvaluateState derives StateInfo from the entity state
	EvaluateState(state *ha.State, monitor *config.Monitor, format Formatter) StateInfo

	// Icon returns the mdi icon for an evaluated state
	Icon(info StateInfo) string

	// Color returns the color token for an evaluated state
	Color(info StateInfo) string

	// EmptyMessage is shown when no device needs attention
	EmptyMessage() string

	// DefaultTitle is used when the monitor has no title
	DefaultTitle() string

	// BadgeColor returns the badge color for the number of alerting devices
	BadgeColor(alertCount int) string

	// BadgeIcon returns the badge icon for the number of alerting devices
	BadgeIcon(alertCount int) string
}

var strategies = map[config.EntityType]Strategy{
	config.EntityTypeBattery: Battery{},
	config.EntityTypeContact: Contact{},
	config.EntityTypeLight:   Light{},
}

// Lookup returns the strategy for an entity type
func Lookup(t config.EntityType) (Strategy, bool) {
	s, ok := strategies[t]
	return s, ok
}

func stringAttr(attributes map[string]interface{}, name string) string {
	if attributes == nil {
		return ""
	}
	v, _ := attributes[name].(string)
	return v
}
