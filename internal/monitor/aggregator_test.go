package monitor

import (
	"testing"
	"time"

	"devicemonitor/internal/config"
	"devicemonitor/internal/ha"
	"devicemonitor/internal/registry"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fixture builds registry snapshots for tests
type fixture struct {
	src registry.Sources
}

func newFixture() *fixture {
	return &fixture{}
}

func (f *fixture) device(id, name, areaID string) *fixture {
	f.src.Devices = append(f.src.Devices, ha.DeviceRegistryEntry{ID: id, Name: name, AreaID: areaID})
	return f
}

func (f *fixture) area(id, name, floorID string) *fixture {
	f.src.Areas = append(f.src.Areas, ha.AreaRegistryEntry{AreaID: id, Name: name, FloorID: floorID})
	return f
}

func (f *fixture) floor(id, name string) *fixture {
	f.src.Floors = append(f.src.Floors, ha.FloorRegistryEntry{FloorID: id, Name: name})
	return f
}

// entity adds a state and, when deviceID is set, a registry entry linking it
func (f *fixture) entity(entityID, state, deviceID string, attrs map[string]interface{}) *fixture {
	return f.entityAt(entityID, state, deviceID, attrs, time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
}

func (f *fixture) entityAt(entityID, state, deviceID string, attrs map[string]interface{}, lastChanged time.Time) *fixture {
	f.src.States = append(f.src.States, &ha.State{
		EntityID:    entityID,
		State:       state,
		Attributes:  attrs,
		LastChanged: lastChanged,
	})
	if deviceID != "" {
		f.src.Entities = append(f.src.Entities, ha.EntityRegistryEntry{EntityID: entityID, DeviceID: deviceID})
	}
	return f
}

func (f *fixture) registryEntry(entry ha.EntityRegistryEntry) *fixture {
	f.src.Entities = append(f.src.Entities, entry)
	return f
}

func (f *fixture) snapshot() *registry.Snapshot {
	return registry.New(f.src)
}

func monitorConfig(entityType config.EntityType) *config.Monitor {
	m := &config.Monitor{Name: "test", EntityType: entityType}
	m.ApplyDefaults()
	return m
}

func collect(t *testing.T, snap *registry.Snapshot, m *config.Monitor) *Result {
	t.Helper()
	a := NewAggregator(zap.NewNop())
	return a.CollectDevices(snap, m, nil, Options{IncludeArea: true, Debug: true})
}

func entityIDs(devices []*Device) []string {
	ids := make([]string, len(devices))
	for i, d := range devices {
		ids[i] = d.EntityID
	}
	return ids
}

func TestCollectDevices_UnknownEntityType(t *testing.T) {
	snap := newFixture().
		device("phone", "Phone", "").
		entity("sensor.phone_battery", "15", "phone", nil).
		snapshot()

	m := monitorConfig(config.EntityTypeBattery)
	m.EntityType = "climate"

	result := collect(t, snap, m)
	assert.Empty(t, result.AllDevices)
	assert.Empty(t, result.AlertDevices)
	assert.Equal(t, 0, result.TotalDevices)
}

func TestCollectDevices_EndToEnd(t *testing.T) {
	snap := newFixture().
		device("phone", "Phone", "").
		entity("sensor.phone_battery", "15", "phone", nil).
		snapshot()

	result := collect(t, snap, monitorConfig(config.EntityTypeBattery))

	require.Len(t, result.AlertDevices, 1)
	d := result.AlertDevices[0]
	assert.Equal(t, "phone", d.DeviceID)
	assert.Equal(t, "Phone", d.DeviceName)
	assert.Equal(t, "15%", d.StateInfo.DisplayValue)
	require.NotNil(t, d.StateInfo.NumericValue)
	assert.Equal(t, 15.0, *d.StateInfo.NumericValue)
	assert.Empty(t, result.NormalDevices)
	assert.Equal(t, 1, result.TotalDevices)
}

func TestCollectDevices_BatteryLowSupersedesLevelSensor(t *testing.T) {
	snap := newFixture().
		device("x", "X", "").
		entity("sensor.x_battery", "80", "x", nil).
		entity("binary_sensor.x_battery_low", "off", "x", nil).
		snapshot()

	result := collect(t, snap, monitorConfig(config.EntityTypeBattery))

	require.Len(t, result.AllDevices, 1)
	assert.Equal(t, "binary_sensor.x_battery_low", result.AllDevices[0].EntityID)
	assert.Equal(t, "ok", result.AllDevices[0].StateInfo.Value)
}

func TestCollectDevices_NumericBeatsSymbolic(t *testing.T) {
	// Either iteration order must end with the numeric reading
	for _, ids := range [][2]string{
		{"sensor.a_battery_level", "sensor.b_battery_status"},
		{"sensor.b_battery_level", "sensor.a_battery_status"},
	} {
		snap := newFixture().
			device("phone", "Phone", "").
			entity(ids[0], "45", "phone", nil).
			entity(ids[1], "low", "phone", nil).
			snapshot()

		result := collect(t, snap, monitorConfig(config.EntityTypeBattery))

		require.Len(t, result.AllDevices, 1, ids)
		require.NotNil(t, result.AllDevices[0].StateInfo.NumericValue, ids)
		assert.Equal(t, 45.0, *result.AllDevices[0].StateInfo.NumericValue)
		assert.False(t, result.AllDevices[0].StateInfo.IsAlert)
	}
}

func TestCollectDevices_FirstNumericWins(t *testing.T) {
	snap := newFixture().
		device("phone", "Phone", "").
		entity("sensor.phone_battery", "45", "phone", nil).
		entity("sensor.phone_battery_level", "10", "phone", nil).
		snapshot()

	result := collect(t, snap, monitorConfig(config.EntityTypeBattery))

	require.Len(t, result.AllDevices, 1)
	assert.Equal(t, "sensor.phone_battery", result.AllDevices[0].EntityID)
}

func TestCollectDevices_NonBatteryKeyedByEntity(t *testing.T) {
	snap := newFixture().
		device("fixture", "Ceiling Fixture", "").
		entity("light.ceiling_1", "on", "fixture", nil).
		entity("light.ceiling_2", "off", "fixture", nil).
		snapshot()

	result := collect(t, snap, monitorConfig(config.EntityTypeLight))

	assert.Equal(t, 2, result.TotalDevices)
	assert.Equal(t, []string{"light.ceiling_1"}, entityIDs(result.AlertDevices))
	assert.Equal(t, []string{"light.ceiling_2"}, entityIDs(result.NormalDevices))
}

func TestCollectDevices_Skips(t *testing.T) {
	snap := newFixture().
		device("named", "Named", "").
		device("unnamed", "", "").
		entity("sensor.hidden_battery", "5", "", nil).
		registryEntry(ha.EntityRegistryEntry{EntityID: "sensor.hidden_battery", DeviceID: "named", HiddenBy: "user"}).
		entity("sensor.unnamed_battery", "5", "unnamed", nil).
		entity("sensor.ghost_battery", "5", "ghost", nil).
		entity("sensor.orphan_battery", "5", "", nil).
		entity("sensor.temperature", "21", "named", nil).
		snapshot()

	result := collect(t, snap, monitorConfig(config.EntityTypeBattery))

	assert.Empty(t, result.AllDevices)
	assert.Equal(t, 0, result.TotalDevices)
}

func TestCollectDevices_GroupEntity(t *testing.T) {
	snap := newFixture().
		entity("light.downstairs", "on", "", map[string]interface{}{
			"friendly_name": "Downstairs Lights",
			"entity_id":     []interface{}{"light.a", "light.b"},
		}).
		snapshot()

	result := collect(t, snap, monitorConfig(config.EntityTypeLight))

	require.Len(t, result.AllDevices, 1)
	d := result.AllDevices[0]
	assert.Equal(t, "light.downstairs", d.DeviceID)
	assert.Equal(t, "Downstairs Lights", d.DeviceName)
	assert.True(t, d.StateInfo.IsAlert)
}

func TestCollectDevices_Unavailable(t *testing.T) {
	snap := newFixture().
		device("door", "Front Door", "").
		device("back", "Back Door", "").
		entity("lock.front", "unavailable", "door", nil).
		entity("lock.back", "unlocked", "back", nil).
		snapshot()

	result := collect(t, snap, monitorConfig(config.EntityTypeContact))

	assert.Equal(t, []string{"lock.front"}, entityIDs(result.UnavailableDevices))
	assert.True(t, result.UnavailableDevices[0].StateInfo.IsUnavailable)
	assert.Equal(t, []string{"lock.back"}, entityIDs(result.AlertDevices))
	assert.Equal(t, []string{"lock.front"}, entityIDs(result.NormalDevices))
}

func TestCollectDevices_AlertPlusNormalIsTotal(t *testing.T) {
	f := newFixture()
	states := []string{"5", "50", "unavailable", "low", "ok", "19.9", "20"}
	for i, s := range states {
		id := string(rune('a' + i))
		f.device(id, "Device "+id, "").entity("sensor."+id+"_battery", s, id, nil)
	}
	f.device("z", "Z", "").entity("binary_sensor.z_battery_low", "on", "z", nil)

	result := collect(t, f.snapshot(), monitorConfig(config.EntityTypeBattery))

	assert.Equal(t, len(states)+1, result.TotalDevices)
	assert.Equal(t, result.TotalDevices, len(result.AlertDevices)+len(result.NormalDevices))
	assert.Len(t, result.UnavailableDevices, 1)
}

func TestCollectDevices_Area(t *testing.T) {
	snap := newFixture().
		area("kitchen", "Kitchen", "").
		area("hall", "Hall", "").
		device("sensor", "Door Sensor", "kitchen").
		entity("binary_sensor.door", "on", "", map[string]interface{}{"device_class": "door"}).
		registryEntry(ha.EntityRegistryEntry{EntityID: "binary_sensor.door", DeviceID: "sensor", AreaID: "hall"}).
		entity("binary_sensor.window", "off", "sensor", map[string]interface{}{"device_class": "window"}).
		snapshot()

	result := collect(t, snap, monitorConfig(config.EntityTypeContact))

	require.Len(t, result.AllDevices, 2)
	assert.Equal(t, "Hall", result.AllDevices[0].AreaName, "entity area overrides device area")
	assert.Equal(t, "Kitchen", result.AllDevices[1].AreaName)
}

func TestCollectDevices_Idempotent(t *testing.T) {
	snap := newFixture().
		area("kitchen", "Kitchen", "").
		device("phone", "Phone", "kitchen").
		device("remote", "Remote", "").
		entity("sensor.phone_battery", "15", "phone", nil).
		entity("sensor.phone_battery_status", "low", "phone", nil).
		entity("binary_sensor.remote_battery_low", "on", "remote", nil).
		entity("sensor.remote_battery", "3", "remote", nil).
		snapshot()
	m := monitorConfig(config.EntityTypeBattery)

	first := collect(t, snap, m)
	second := collect(t, snap, m)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("aggregation is not idempotent (-first +second):\n%s", diff)
	}
}
