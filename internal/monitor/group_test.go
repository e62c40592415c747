package monitor

import (
	"testing"
	"time"

	"devicemonitor/internal/config"
	"devicemonitor/internal/entitytype"

	"github.com/stretchr/testify/assert"
	"golang.org/x/text/language"
)

func named(deviceName, areaID, areaName string) *Device {
	return &Device{
		DeviceID:   deviceName,
		DeviceName: deviceName,
		EntityID:   "sensor." + deviceName,
		EntityName: deviceName + " entity",
		AreaID:     areaID,
		AreaName:   areaName,
	}
}

func withLevel(d *Device, level float64) *Device {
	d.StateInfo = entitytype.StateInfo{NumericValue: &level}
	return d
}

// labels renders a grouped list as "# header" and device names
func labels(items []Item) []string {
	out := make([]string, len(items))
	for i, item := range items {
		switch it := item.(type) {
		case Header:
			out[i] = "# " + it.Name
		case *Device:
			out[i] = it.DeviceName
		}
	}
	return out
}

func TestGroupDevices_None(t *testing.T) {
	devices := []*Device{named("B", "", ""), named("A", "", "")}
	items := GroupDevices(newFixture().snapshot(), devices, config.GroupByNone)
	assert.Equal(t, []string{"B", "A"}, labels(items))
}

func TestGroupDevices_Area(t *testing.T) {
	devices := []*Device{
		named("B", "", ""),
		named("A", "kitchen", "Kitchen"),
		named("C", "kitchen", "Kitchen"),
		named("D", "attic", "Attic"),
	}

	items := GroupDevices(newFixture().snapshot(), devices, config.GroupByArea)

	assert.Equal(t, []string{"# Attic", "D", "# Kitchen", "A", "C", "# No Area", "B"}, labels(items))
}

func TestGroupDevices_AreaWithMissingArea(t *testing.T) {
	devices := []*Device{named("A", "kitchen", "Kitchen"), named("B", "", "")}
	items := GroupDevices(newFixture().snapshot(), devices, config.GroupByArea)
	assert.Equal(t, []string{"# Kitchen", "A", "# No Area", "B"}, labels(items))
}

func TestGroupDevices_Floor(t *testing.T) {
	snap := newFixture().
		floor("ground", "Ground Floor").
		floor("first", "First Floor").
		area("kitchen", "Kitchen", "ground").
		area("bedroom", "Bedroom", "first").
		area("shed", "Shed", "").
		snapshot()

	devices := []*Device{
		named("Lamp", "bedroom", "Bedroom"),
		named("Fridge", "kitchen", "Kitchen"),
		named("Mower", "shed", "Shed"),
		named("Phone", "", ""),
		named("Oven", "kitchen", "Kitchen"),
	}

	items := GroupDevices(snap, devices, config.GroupByFloor)

	assert.Equal(t, []string{
		"# First Floor", "Lamp",
		"# Ground Floor", "Fridge", "Oven",
		"# No Area", "Phone",
		"# No Floor", "Mower",
	}, labels(items))
}

func TestSort_Name(t *testing.T) {
	s := NewSorter(language.English)
	items := GroupDevices(newFixture().snapshot(), []*Device{
		named("Zed", "kitchen", "Kitchen"),
		named("Ann", "kitchen", "Kitchen"),
		named("Bob", "", ""),
	}, config.GroupByArea)

	sorted := s.Sort(items, config.SortByName, false)

	assert.Equal(t, []string{"# Kitchen", "Ann", "Zed", "# No Area", "Bob"}, labels(sorted))
	assert.Equal(t, []string{"# Kitchen", "Zed", "Ann", "# No Area", "Bob"}, labels(items), "input untouched")
}

func TestSort_NameIsLocaleAware(t *testing.T) {
	s := NewSorter(language.German)
	items := Items([]*Device{named("Zimmer", "", ""), named("Äpfel", "", ""), named("apfel", "", "")})

	sorted := s.Sort(items, config.SortByName, false)

	assert.Equal(t, []string{"apfel", "Äpfel", "Zimmer"}, labels(sorted))
}

func TestSort_EntityName(t *testing.T) {
	s := NewSorter(language.English)
	a := named("A", "", "")
	a.EntityName = "Zulu"
	b := named("B", "", "")
	b.EntityName = "Alpha"

	sorted := s.Sort(Items([]*Device{a, b}), config.SortByName, true)

	assert.Equal(t, []string{"B", "A"}, labels(sorted))
}

func TestSort_LastChanged(t *testing.T) {
	s := NewSorter(language.English)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	old := named("Old", "", "")
	old.LastChanged = base
	recent := named("Recent", "", "")
	recent.LastChanged = base.Add(time.Hour)

	sorted := s.Sort(Items([]*Device{old, recent}), config.SortByLastChanged, false)

	assert.Equal(t, []string{"Recent", "Old"}, labels(sorted))
}

func TestSort_State(t *testing.T) {
	s := NewSorter(language.English)

	t.Run("numeric ascending", func(t *testing.T) {
		items := Items([]*Device{
			withLevel(named("A", "", ""), 80),
			withLevel(named("B", "", ""), 5),
			withLevel(named("C", "", ""), 40),
		})
		sorted := s.Sort(items, config.SortByState, false)
		assert.Equal(t, []string{"B", "C", "A"}, labels(sorted))
	})

	t.Run("symbolic falls back to name", func(t *testing.T) {
		items := Items([]*Device{named("Zed", "", ""), named("Ann", "", "")})
		sorted := s.Sort(items, config.SortByState, false)
		assert.Equal(t, []string{"Ann", "Zed"}, labels(sorted))
	})
}

func TestSort_OrderWithinGroupMatchesUngroupedOrder(t *testing.T) {
	s := NewSorter(language.English)
	snap := newFixture().snapshot()
	devices := []*Device{
		withLevel(named("Remote", "kitchen", "Kitchen"), 50),
		withLevel(named("Phone", "hall", "Hall"), 10),
		withLevel(named("Scale", "kitchen", "Kitchen"), 20),
		withLevel(named("Tablet", "hall", "Hall"), 90),
	}

	flat := Devices(s.Sort(Items(devices), config.SortByState, false))
	grouped := s.Sort(GroupDevices(snap, devices, config.GroupByArea), config.SortByState, false)

	// every group is a subsequence of the flat order
	position := make(map[*Device]int)
	for i, d := range flat {
		position[d] = i
	}
	last := -1
	for _, item := range grouped {
		switch it := item.(type) {
		case Header:
			last = -1
		case *Device:
			assert.Greater(t, position[it], last)
			last = position[it]
		}
	}
	assert.Equal(t, []string{"# Hall", "Phone", "Tablet", "# Kitchen", "Scale", "Remote"}, labels(grouped))
}
