package monitor

import (
	"sort"

	"devicemonitor/internal/config"
	"devicemonitor/internal/registry"
)

const (
	NoArea  = "No Area"
	NoFloor = "No Floor"
)

// Item is an element of a grouped device list: a *Device or a Header
type Item interface {
	isItem()
}

// Header starts a named group in a grouped list. It is never a device.
type Header struct {
	Name string `json:"name"`
}

func (Header) isItem() {}

func (*Device) isItem() {}

// Items wraps devices as an ungrouped list
func Items(devices []*Device) []Item {
	items := make([]Item, len(devices))
	for i, d := range devices {
		items[i] = d
	}
	return items
}

// Devices returns the devices of a list, dropping headers
func Devices(items []Item) []*Device {
	devices := make([]*Device, 0, len(items))
	for _, item := range items {
		if d, ok := item.(*Device); ok {
			devices = append(devices, d)
		}
	}
	return devices
}

// GroupDevices partitions devices by area or floor name. Groups are emitted in
// lexicographic order, each preceded by its Header; devices keep their input
// order within a group. GroupByNone returns the devices unchanged.
//
// Devices must carry their area (see Options.IncludeArea). Floors are
// resolved through the area.
func GroupDevices(snap *registry.Snapshot, devices []*Device, groupBy config.GroupBy) []Item {
	if groupBy != config.GroupByArea && groupBy != config.GroupByFloor {
		return Items(devices)
	}

	groups := make(map[string][]*Device)
	for _, d := range devices {
		name := groupName(snap, d, groupBy)
		groups[name] = append(groups[name], d)
	}

	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)

	items := make([]Item, 0, len(devices)+len(names))
	for _, name := range names {
		items = append(items, Header{Name: name})
		for _, d := range groups[name] {
			items = append(items, d)
		}
	}
	return items
}

func groupName(snap *registry.Snapshot, d *Device, groupBy config.GroupBy) string {
	if groupBy == config.GroupByArea {
		if d.AreaName != "" {
			return d.AreaName
		}
		return NoArea
	}

	if d.AreaID == "" {
		return NoArea
	}
	floorID := snap.AreaFloorID(d.AreaID)
	if floorID == "" {
		return NoFloor
	}
	if name := snap.FloorName(floorID); name != "" {
		return name
	}
	return NoFloor
}
