package config

import (
	"errors"
	"fmt"
)

// EntityType selects which entities a monitor watches
type EntityType string

const (
	EntityTypeBattery EntityType = "battery"
	EntityTypeContact EntityType = "contact"
	EntityTypeLight   EntityType = "light"
)

// EntityTypes lists every supported entity type
var EntityTypes = []EntityType{EntityTypeBattery, EntityTypeContact, EntityTypeLight}

// Filter selects which devices the card lists
type Filter string

const (
	FilterAlert Filter = "alert"
	FilterAll   Filter = "all"
)

// GroupBy selects how the card partitions devices
type GroupBy string

const (
	GroupByNone  GroupBy = "none"
	GroupByArea  GroupBy = "area"
	GroupByFloor GroupBy = "floor"
)

// SortBy selects the order of devices within a group
type SortBy string

const (
	SortByState       SortBy = "state"
	SortByName        SortBy = "name"
	SortByLastChanged SortBy = "last_changed"
)

// NameSource selects whether rows are labelled by device or entity name
type NameSource string

const (
	NameSourceDevice NameSource = "device"
	NameSourceEntity NameSource = "entity"
)

// Visibility controls when a card or badge is shown
type Visibility string

const (
	VisibilityAlways Visibility = "always"
	VisibilityAlert  Visibility = "alert"
)

// DefaultBatteryThreshold is the level (percent) below which a battery alerts
const DefaultBatteryThreshold = 20.0

// ErrUnknownEntityType is returned when entity_type names no known category
var ErrUnknownEntityType = errors.New("unknown entity_type")

// Action is a badge tap/hold/double-tap action, forwarded to the dashboard
type Action struct {
	Action         string `yaml:"action" json:"action"`
	NavigationPath string `yaml:"navigation_path,omitempty" json:"navigation_path,omitempty"`
	URLPath        string `yaml:"url_path,omitempty" json:"url_path,omitempty"`
}

var validActions = map[string]bool{
	"more-info": true,
	"navigate":  true,
	"url":       true,
	"toggle":    true,
	"none":      true,
}

// Monitor is the configuration of one card/badge pair
type Monitor struct {
	Name             string     `yaml:"name" json:"name"`
	Title            string     `yaml:"title,omitempty" json:"title,omitempty"`
	EntityType       EntityType `yaml:"entity_type" json:"entity_type"`
	Filter           Filter     `yaml:"filter" json:"filter"`
	BatteryThreshold *float64   `yaml:"battery_threshold" json:"battery_threshold"`
	GroupBy          GroupBy    `yaml:"group_by" json:"group_by"`
	SortBy           SortBy     `yaml:"sort_by" json:"sort_by"`
	NameSource       NameSource `yaml:"name_source" json:"name_source"`
	ShowToggle       bool       `yaml:"show_toggle" json:"show_toggle"`
	ShowUnavailable  bool       `yaml:"show_unavailable" json:"show_unavailable"`
	Collapse         *int       `yaml:"collapse,omitempty" json:"collapse,omitempty"`
	CardVisibility   Visibility `yaml:"card_visibility" json:"card_visibility"`
	BadgeVisibility  Visibility `yaml:"badge_visibility" json:"badge_visibility"`
	Language         string     `yaml:"language,omitempty" json:"language,omitempty"`
	TapAction        *Action    `yaml:"tap_action,omitempty" json:"tap_action,omitempty"`
	HoldAction       *Action    `yaml:"hold_action,omitempty" json:"hold_action,omitempty"`
	DoubleTapAction  *Action    `yaml:"double_tap_action,omitempty" json:"double_tap_action,omitempty"`
}

// ApplyDefaults fills every unset field with its default
func (m *Monitor) ApplyDefaults() {
	if m.EntityType == "" {
		m.EntityType = EntityTypeBattery
	}
	if m.Filter == "" {
		m.Filter = FilterAlert
	}
	if m.BatteryThreshold == nil {
		threshold := DefaultBatteryThreshold
		m.BatteryThreshold = &threshold
	}
	if m.GroupBy == "" {
		m.GroupBy = GroupByNone
	}
	if m.SortBy == "" {
		m.SortBy = SortByState
	}
	if m.NameSource == "" {
		m.NameSource = NameSourceDevice
	}
	if m.CardVisibility == "" {
		m.CardVisibility = VisibilityAlways
	}
	if m.BadgeVisibility == "" {
		m.BadgeVisibility = VisibilityAlways
	}
	if m.TapAction == nil {
		m.TapAction = &Action{Action: "more-info"}
	}
}

// Threshold returns the battery threshold, or the default when unset
func (m *Monitor) Threshold() float64 {
	if m.BatteryThreshold == nil {
		return DefaultBatteryThreshold
	}
	return *m.BatteryThreshold
}

// UseEntityName reports whether rows are labelled with entity names
func (m *Monitor) UseEntityName() bool {
	return m.NameSource == NameSourceEntity
}

// CollapseAfter returns how many devices are shown before collapsing, or 0
// when the list never collapses
func (m *Monitor) CollapseAfter() int {
	if m.Collapse == nil {
		return 0
	}
	return *m.Collapse
}

// Validate checks every enumerated field. Unknown entity types wrap
// ErrUnknownEntityType.
func (m *Monitor) Validate() error {
	if !isEntityType(m.EntityType) {
		return fmt.Errorf("monitor %q: %w: %q", m.Name, ErrUnknownEntityType, m.EntityType)
	}

	switch m.Filter {
	case FilterAlert, FilterAll:
	default:
		return fmt.Errorf("monitor %q: invalid filter %q", m.Name, m.Filter)
	}

	switch m.GroupBy {
	case GroupByNone, GroupByArea, GroupByFloor:
	default:
		return fmt.Errorf("monitor %q: invalid group_by %q", m.Name, m.GroupBy)
	}

	switch m.SortBy {
	case SortByState, SortByName, SortByLastChanged:
	default:
		return fmt.Errorf("monitor %q: invalid sort_by %q", m.Name, m.SortBy)
	}

	switch m.NameSource {
	case NameSourceDevice, NameSourceEntity:
	default:
		return fmt.Errorf("monitor %q: invalid name_source %q", m.Name, m.NameSource)
	}

	for field, v := range map[string]Visibility{
		"card_visibility":  m.CardVisibility,
		"badge_visibility": m.BadgeVisibility,
	} {
		if v != VisibilityAlways && v != VisibilityAlert {
			return fmt.Errorf("monitor %q: invalid %s %q", m.Name, field, v)
		}
	}

	if t := m.Threshold(); t < 0 || t > 100 {
		return fmt.Errorf("monitor %q: battery_threshold must be between 0 and 100, got %v", m.Name, t)
	}

	if m.Collapse != nil && *m.Collapse <= 0 {
		return fmt.Errorf("monitor %q: collapse must be a positive integer, got %d", m.Name, *m.Collapse)
	}

	for field, a := range map[string]*Action{
		"tap_action":        m.TapAction,
		"hold_action":       m.HoldAction,
		"double_tap_action": m.DoubleTapAction,
	} {
		if a == nil {
			continue
		}
		if !validActions[a.Action] {
			return fmt.Errorf("monitor %q: invalid %s %q", m.Name, field, a.Action)
		}
		if a.Action == "navigate" && a.NavigationPath == "" {
			return fmt.Errorf("monitor %q: %s navigate requires navigation_path", m.Name, field)
		}
		if a.Action == "url" && a.URLPath == "" {
			return fmt.Errorf("monitor %q: %s url requires url_path", m.Name, field)
		}
	}

	return nil
}

func isEntityType(t EntityType) bool {
	for _, known := range EntityTypes {
		if t == known {
			return true
		}
	}
	return false
}
