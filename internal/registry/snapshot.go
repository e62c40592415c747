// Package registry holds an immutable view of Home Assistant's entity
// states together with the entity, device, area and floor registries.
//
// Every accessor is a plain map read. Missing keys yield zero values and
// nothing here ever mutates a Snapshot after it was built.
package registry

import (
	"sort"

	"devicemonitor/internal/ha"
)

// Snapshot is a read-only picture of Home Assistant at one point in time
type Snapshot struct {
	states   map[string]*ha.State
	ids      []string
	entities map[string]ha.EntityRegistryEntry
	devices  map[string]ha.DeviceRegistryEntry
	areas    map[string]ha.AreaRegistryEntry
	floors   map[string]ha.FloorRegistryEntry
}

// Sources bundles the raw lists a Snapshot is built from
type Sources struct {
	States   []*ha.State
	Entities []ha.EntityRegistryEntry
	Devices  []ha.DeviceRegistryEntry
	Areas    []ha.AreaRegistryEntry
	Floors   []ha.FloorRegistryEntry
}

// New indexes the given sources. Nil states are ignored.
func New(src Sources) *Snapshot {
	s := &Snapshot{
		states:   make(map[string]*ha.State, len(src.States)),
		entities: make(map[string]ha.EntityRegistryEntry, len(src.Entities)),
		devices:  make(map[string]ha.DeviceRegistryEntry, len(src.Devices)),
		areas:    make(map[string]ha.AreaRegistryEntry, len(src.Areas)),
		floors:   make(map[string]ha.FloorRegistryEntry, len(src.Floors)),
	}

	for _, st := range src.States {
		if st == nil || st.EntityID == "" {
			continue
		}
		s.states[st.EntityID] = st
	}
	for _, e := range src.Entities {
		s.entities[e.EntityID] = e
	}
	for _, d := range src.Devices {
		s.devices[d.ID] = d
	}
	for _, a := range src.Areas {
		s.areas[a.AreaID] = a
	}
	for _, f := range src.Floors {
		s.floors[f.FloorID] = f
	}

	s.ids = sortedKeys(s.states)
	return s
}

// Empty returns a snapshot with no states and no registries
func Empty() *Snapshot {
	return New(Sources{})
}

func sortedKeys(states map[string]*ha.State) []string {
	ids := make([]string, 0, len(states))
	for id := range states {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// WithState returns a copy of the snapshot with one entity state replaced.
// A nil state removes the entity. Registries are shared, not copied.
func (s *Snapshot) WithState(entityID string, st *ha.State) *Snapshot {
	states := make(map[string]*ha.State, len(s.states)+1)
	for id, existing := range s.states {
		states[id] = existing
	}

	ids := s.ids
	if st == nil {
		delete(states, entityID)
		ids = sortedKeys(states)
	} else {
		_, existed := states[entityID]
		states[entityID] = st
		if !existed {
			ids = sortedKeys(states)
		}
	}

	return &Snapshot{
		states:   states,
		ids:      ids,
		entities: s.entities,
		devices:  s.devices,
		areas:    s.areas,
		floors:   s.floors,
	}
}

// EntityIDs returns every entity ID with a state, in lexicographic order.
// The slice is shared and must not be modified.
func (s *Snapshot) EntityIDs() []string {
	return s.ids
}

// Len returns the number of entity states
func (s *Snapshot) Len() int {
	return len(s.states)
}

// State returns the state of an entity, or nil
func (s *Snapshot) State(entityID string) *ha.State {
	return s.states[entityID]
}

// DeviceID returns the registry device of an entity, or ""
func (s *Snapshot) DeviceID(entityID string) string {
	return s.entities[entityID].DeviceID
}

// HasDevice reports whether the device registry knows the device
func (s *Snapshot) HasDevice(deviceID string) bool {
	_, ok := s.devices[deviceID]
	return ok
}

// DeviceName returns the user-assigned device name, falling back to the
// integration-provided name. "" when neither is set or the device is unknown.
func (s *Snapshot) DeviceName(deviceID string) string {
	d, ok := s.devices[deviceID]
	if !ok {
		return ""
	}
	if d.NameByUser != "" {
		return d.NameByUser
	}
	return d.Name
}

// DeviceAreaID returns the area a device is assigned to, or ""
func (s *Snapshot) DeviceAreaID(deviceID string) string {
	return s.devices[deviceID].AreaID
}

// EntityAreaID returns the area of an entity. An area set on the entity
// itself overrides the area of its device.
func (s *Snapshot) EntityAreaID(entityID string) string {
	e := s.entities[entityID]
	if e.AreaID != "" {
		return e.AreaID
	}
	if e.DeviceID != "" {
		return s.DeviceAreaID(e.DeviceID)
	}
	return ""
}

// AreaName returns the name of an area, or ""
func (s *Snapshot) AreaName(areaID string) string {
	return s.areas[areaID].Name
}

// AreaFloorID returns the floor an area belongs to, or ""
func (s *Snapshot) AreaFloorID(areaID string) string {
	return s.areas[areaID].FloorID
}

// FloorName returns the name of a floor, or ""
func (s *Snapshot) FloorName(floorID string) string {
	return s.floors[floorID].Name
}

// IsHidden reports whether the entity was hidden from the UI by a user or
// an integration
func (s *Snapshot) IsHidden(entityID string) bool {
	e, ok := s.entities[entityID]
	if !ok {
		return false
	}
	return e.HiddenBy != ""
}

// groupDomains are the domains whose group helpers are monitored as a unit
var groupDomains = map[string]bool{
	"light":         true,
	"binary_sensor": true,
	"sensor":        true,
	"lock":          true,
}

// IsGroupEntity reports whether the entity is a group helper (a light group,
// a binary_sensor group of doors, a sensor group of batteries) rather than
// a physical entity. Groups expose their members in the entity_id attribute.
func (s *Snapshot) IsGroupEntity(entityID string) bool {
	if !groupDomains[ha.Domain(entityID)] {
		return false
	}

	if s.entities[entityID].Platform == "group" {
		return true
	}

	st := s.states[entityID]
	if st == nil || st.Attributes == nil {
		return false
	}

	switch members := st.Attributes["entity_id"].(type) {
	case []interface{}:
		return len(members) > 0
	case []string:
		return len(members) > 0
	}
	return false
}
