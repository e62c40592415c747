package entitytype

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"devicemonitor/internal/config"
	"devicemonitor/internal/ha"
)

// batteryExcludedSuffixes mark entities that mention "battery" but report
// something other than its level
var batteryExcludedSuffixes = []string{"_state", "_charging", "_charger", "_power", "_health"}

const batteryLowSuffix = "_battery_low"

// Battery monitors battery levels and low-battery binary sensors
type Battery struct{}

func (Battery) Type() config.EntityType { return config.EntityTypeBattery }

func (Battery) Detect(entityID string, attributes map[string]interface{}) bool {
	for _, suffix := range batteryExcludedSuffixes {
		if strings.HasSuffix(entityID, suffix) {
			return false
		}
	}

	deviceClass := stringAttr(attributes, "device_class")
	if deviceClass == "battery" {
		return true
	}

	switch ha.Domain(entityID) {
	case "sensor", "binary_sensor":
	default:
		return false
	}

	return strings.Contains(entityID, "battery") &&
		deviceClass != "power" && deviceClass != "energy"
}

// IsBatteryLowSensor reports whether the entity is a binary_sensor.X_battery_low
func IsBatteryLowSensor(entityID string) bool {
	return strings.HasPrefix(entityID, "binary_sensor.") && strings.HasSuffix(entityID, batteryLowSuffix)
}

// LevelSensorFor returns the sensor.X_battery entity a binary_sensor.X_battery_low
// supersedes, or "" when entityID is not a low-battery binary sensor
func LevelSensorFor(entityID string) string {
	if !IsBatteryLowSensor(entityID) {
		return ""
	}
	prefix := strings.TrimSuffix(strings.TrimPrefix(entityID, "binary_sensor."), batteryLowSuffix)
	return "sensor." + prefix + "_battery"
}

func (Battery) EvaluateState(state *ha.State, monitor *config.Monitor, format Formatter) StateInfo {
	if IsBatteryLowSensor(state.EntityID) {
		low := state.State == "on"
		info := StateInfo{Value: "ok", DisplayValue: "OK", IsAlert: low, DeviceClass: "battery"}
		if low {
			info.Value = "low"
			info.DisplayValue = "Low"
		}
		if display := format.format(state); display != "" {
			info.DisplayValue = display
		}
		return info
	}

	if level, ok := parseLevel(state.State); ok {
		return StateInfo{
			Value:        state.State,
			DisplayValue: strconv.FormatFloat(level, 'f', -1, 64) + "%",
			IsAlert:      level < monitor.Threshold(),
			NumericValue: &level,
			DeviceClass:  "battery",
		}
	}

	display := format.format(state)
	if display == "" {
		display = state.State
	}
	return StateInfo{
		Value:        state.State,
		DisplayValue: display,
		IsAlert:      state.State == "low" || state.State == "Low",
		DeviceClass:  "battery",
	}
}

func parseLevel(s string) (float64, bool) {
	level, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(level) || math.IsInf(level, 0) {
		return 0, false
	}
	return level, true
}

func (Battery) Icon(info StateInfo) string {
	if info.NumericValue != nil {
		return levelIcon(*info.NumericValue)
	}
	if info.IsUnavailable {
		return "mdi:battery-unknown"
	}
	switch strings.ToLower(info.Value) {
	case "low":
		return "mdi:battery-alert"
	case "ok":
		return "mdi:battery"
	}
	return "mdi:battery-unknown"
}

// levelIcon discretizes a level into the mdi battery icons: full at 95 and
// above, then one icon per ten percent band down to 10
func levelIcon(level float64) string {
	switch {
	case level >= 95:
		return "mdi:battery"
	case level >= 10:
		return fmt.Sprintf("mdi:battery-%d", int(level/10)*10)
	case level >= 5:
		return "mdi:battery-outline"
	default:
		return "mdi:battery-alert"
	}
}

func (Battery) Color(info StateInfo) string {
	if info.IsUnavailable {
		return ColorMuted
	}

	if info.NumericValue == nil {
		switch strings.ToLower(info.Value) {
		case "low":
			return ColorRed
		case "ok":
			return ColorBlue
		}
		if info.IsAlert {
			return ColorRed
		}
		return ColorBlue
	}

	switch level := *info.NumericValue; {
	case level < 10:
		return ColorRed
	case level < 20:
		return ColorOrange
	default:
		return ColorBlue
	}
}

func (Battery) EmptyMessage() string { return "All batteries are OK" }

func (Battery) DefaultTitle() string { return "Battery Monitor" }

func (Battery) BadgeColor(alertCount int) string {
	if alertCount > 0 {
		return ColorRed
	}
	return ColorGreen
}

func (Battery) BadgeIcon(alertCount int) string {
	if alertCount > 0 {
		return "mdi:battery-alert"
	}
	return "mdi:battery"
}
