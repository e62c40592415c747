package entitytype

import (
	"devicemonitor/internal/config"
	"devicemonitor/internal/ha"
)

// Light monitors lights. A light that is on is the alert state.
type Light struct{}

func (Light) Type() config.EntityType { return config.EntityTypeLight }

func (Light) Detect(entityID string, attributes map[string]interface{}) bool {
	return ha.Domain(entityID) == "light"
}

func (Light) EvaluateState(state *ha.State, monitor *config.Monitor, format Formatter) StateInfo {
	on := state.State == "on"
	info := StateInfo{Value: "off", DisplayValue: "Off", IsAlert: on}
	if on {
		info.Value = "on"
		info.DisplayValue = "On"
	}
	if display := format.format(state); display != "" {
		info.DisplayValue = display
	}
	return info
}

func (Light) Icon(info StateInfo) string {
	if info.IsAlert {
		return "mdi:lightbulb"
	}
	return "mdi:lightbulb-outline"
}

// Color keeps lights that are off neutral; off is not a success state
func (Light) Color(info StateInfo) string {
	if info.IsUnavailable {
		return ColorMuted
	}
	if info.IsAlert {
		return ColorOrange
	}
	return ColorDisabled
}

func (Light) EmptyMessage() string { return "All lights are off" }

func (Light) DefaultTitle() string { return "Lights" }

func (Light) BadgeColor(alertCount int) string {
	if alertCount > 0 {
		return ColorOrange
	}
	return ColorDisabled
}

func (Light) BadgeIcon(alertCount int) string {
	if alertCount > 0 {
		return "mdi:lightbulb-on"
	}
	return "mdi:lightbulb-off"
}
