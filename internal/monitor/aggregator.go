// Package monitor turns a registry snapshot into the device lists shown by
// a monitor card and its badge.
package monitor

import (
	"time"

	"devicemonitor/internal/config"
	"devicemonitor/internal/entitytype"
	"devicemonitor/internal/registry"

	"go.uber.org/zap"
)

// Device is one monitorable row: a physical device, or a group entity
// standing in for one
type Device struct {
	DeviceID    string                 `json:"device_id"`
	DeviceName  string                 `json:"device_name"`
	EntityID    string                 `json:"entity_id"`
	EntityName  string                 `json:"entity_name"`
	StateInfo   entitytype.StateInfo   `json:"state_info"`
	LastChanged time.Time              `json:"last_changed"`
	Attributes  map[string]interface{} `json:"attributes,omitempty"`
	AreaID      string                 `json:"area_id,omitempty"`
	AreaName    string                 `json:"area_name,omitempty"`
}

// Result is the outcome of one aggregation pass.
// AlertDevices and NormalDevices partition AllDevices. UnavailableDevices
// overlaps both.
type Result struct {
	AlertDevices       []*Device `json:"alert_devices"`
	NormalDevices      []*Device `json:"normal_devices"`
	UnavailableDevices []*Device `json:"unavailable_devices"`
	AllDevices         []*Device `json:"all_devices"`
	TotalDevices       int       `json:"total_devices"`
}

func emptyResult() *Result {
	return &Result{
		AlertDevices:       []*Device{},
		NormalDevices:      []*Device{},
		UnavailableDevices: []*Device{},
		AllDevices:         []*Device{},
	}
}

// Options tune a single aggregation pass
type Options struct {
	// IncludeArea resolves AreaID and AreaName on every device
	IncludeArea bool
	// Debug logs the reason for every skipped entity
	Debug bool
}

// Aggregator collects devices for a monitor
type Aggregator struct {
	logger *zap.Logger
}

// NewAggregator creates a new aggregator
func NewAggregator(logger *zap.Logger) *Aggregator {
	return &Aggregator{logger: logger.Named("aggregator")}
}

// CollectDevices scans every entity of the snapshot and returns the devices
// the monitor's entity type applies to. It never fails: an unknown entity
// type yields an empty result and entities that cannot be resolved to a
// named device are left out.
func (a *Aggregator) CollectDevices(snap *registry.Snapshot, monitor *config.Monitor, format entitytype.Formatter, opts Options) *Result {
	result := emptyResult()

	strategy, ok := entitytype.Lookup(monitor.EntityType)
	if !ok {
		a.logger.Warn("Unknown entity type, nothing to collect",
			zap.String("monitor", monitor.Name),
			zap.String("entity_type", string(monitor.EntityType)))
		return result
	}

	isBattery := strategy.Type() == config.EntityTypeBattery

	// A binary_sensor.X_battery_low supersedes sensor.X_battery
	excluded := make(map[string]bool)
	if isBattery {
		for _, id := range snap.EntityIDs() {
			if level := entitytype.LevelSensorFor(id); level != "" {
				excluded[level] = true
			}
		}
	}

	skip := func(entityID, reason string) {
		if opts.Debug {
			a.logger.Debug("Skipping entity",
				zap.String("monitor", monitor.Name),
				zap.String("entity_id", entityID),
				zap.String("reason", reason))
		}
	}

	byKey := make(map[string]*Device)
	var order []string

	for _, entityID := range snap.EntityIDs() {
		st := snap.State(entityID)
		if !strategy.Detect(entityID, st.Attributes) {
			continue
		}
		if snap.IsHidden(entityID) {
			skip(entityID, "hidden")
			continue
		}
		if excluded[entityID] {
			skip(entityID, "superseded by battery_low sensor")
			continue
		}

		var deviceID, deviceName string
		if id := snap.DeviceID(entityID); id != "" {
			if !snap.HasDevice(id) {
				skip(entityID, "device not in registry")
				continue
			}
			name := snap.DeviceName(id)
			if name == "" {
				skip(entityID, "device has no name")
				continue
			}
			deviceID, deviceName = id, name
		} else if snap.IsGroupEntity(entityID) {
			deviceID, deviceName = entityID, st.FriendlyName()
		} else {
			skip(entityID, "no device")
			continue
		}

		info := strategy.EvaluateState(st, monitor, format)
		info.IsUnavailable = st.State == entitytype.StateUnavailable

		device := &Device{
			DeviceID:    deviceID,
			DeviceName:  deviceName,
			EntityID:    entityID,
			EntityName:  st.FriendlyName(),
			StateInfo:   info,
			LastChanged: st.LastChanged,
			Attributes:  st.Attributes,
		}
		if opts.IncludeArea {
			device.AreaID = snap.EntityAreaID(entityID)
			device.AreaName = snap.AreaName(device.AreaID)
		}

		key := entityID
		if isBattery {
			key = deviceID
		}

		existing, seen := byKey[key]
		if !seen {
			byKey[key] = device
			order = append(order, key)
			continue
		}
		if isBattery && existing.StateInfo.NumericValue == nil && info.NumericValue != nil {
			byKey[key] = device
			continue
		}
		skip(entityID, "device already represented by "+existing.EntityID)
	}

	for _, key := range order {
		device := byKey[key]
		result.AllDevices = append(result.AllDevices, device)
		if device.StateInfo.IsAlert {
			result.AlertDevices = append(result.AlertDevices, device)
		} else {
			result.NormalDevices = append(result.NormalDevices, device)
		}
		if device.StateInfo.IsUnavailable {
			result.UnavailableDevices = append(result.UnavailableDevices, device)
		}
	}
	result.TotalDevices = len(result.AllDevices)

	return result
}
