package entitytype

import (
	"devicemonitor/internal/config"
	"devicemonitor/internal/ha"
)

var contactDeviceClasses = map[string]bool{
	"door":        true,
	"window":      true,
	"garage_door": true,
	"lock":        true,
	"opening":     true,
}

// lockOpenStates are the lock states that count as open
var lockOpenStates = map[string]bool{
	"on":        true,
	"open":      true,
	"opening":   true,
	"unlocked":  true,
	"unlocking": true,
	"jammed":    true,
}

// Contact monitors door, window, garage door and opening sensors as well as
// lock entities. Open (or unlocked) is the alert state.
type Contact struct{}

func (Contact) Type() config.EntityType { return config.EntityTypeContact }

func (Contact) Detect(entityID string, attributes map[string]interface{}) bool {
	switch ha.Domain(entityID) {
	case "lock":
		return true
	case "binary_sensor":
		return contactDeviceClasses[stringAttr(attributes, "device_class")]
	}
	return false
}

func (Contact) EvaluateState(state *ha.State, monitor *config.Monitor, format Formatter) StateInfo {
	if state.Domain() == "lock" {
		open := lockOpenStates[state.State]
		info := StateInfo{Value: "locked", DisplayValue: "Locked", IsAlert: open, DeviceClass: "lock"}
		if open {
			info.Value = "unlocked"
			info.DisplayValue = "Unlocked"
		}
		if state.State == "jammed" {
			info.Value = "jammed"
		}
		if display := format.format(state); display != "" {
			info.DisplayValue = display
		}
		return info
	}

	open := state.State == "on"
	info := StateInfo{
		Value:        "closed",
		DisplayValue: "Closed",
		IsAlert:      open,
		DeviceClass:  state.StringAttribute("device_class"),
	}
	if open {
		info.Value = "open"
		info.DisplayValue = "Open"
	}
	if display := format.format(state); display != "" {
		info.DisplayValue = display
	}
	return info
}

func (Contact) Icon(info StateInfo) string {
	open := info.IsAlert
	switch info.DeviceClass {
	case "window":
		if open {
			return "mdi:window-open"
		}
		return "mdi:window-closed"
	case "garage_door":
		if open {
			return "mdi:garage-open"
		}
		return "mdi:garage"
	case "lock":
		if info.Value == "jammed" {
			return "mdi:lock-alert"
		}
		if open {
			return "mdi:lock-open"
		}
		return "mdi:lock"
	}
	if open {
		return "mdi:door-open"
	}
	return "mdi:door-closed"
}

func (Contact) Color(info StateInfo) string {
	if info.IsUnavailable {
		return ColorMuted
	}
	if info.IsAlert {
		return ColorRed
	}
	return ColorGreen
}

func (Contact) EmptyMessage() string { return "All doors and windows are closed" }

func (Contact) DefaultTitle() string { return "Contact Sensors" }

func (Contact) BadgeColor(alertCount int) string {
	if alertCount > 0 {
		return ColorRed
	}
	return ColorGreen
}

func (Contact) BadgeIcon(alertCount int) string {
	if alertCount > 0 {
		return "mdi:door-open"
	}
	return "mdi:door-closed"
}
