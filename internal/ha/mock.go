package ha

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// MockClient implements HAClient interface for testing
type MockClient struct {
	states       map[string]*State
	entities     map[string]EntityRegistryEntry
	devices      map[string]DeviceRegistryEntry
	areas        map[string]AreaRegistryEntry
	floors       map[string]FloorRegistryEntry
	mu           sync.RWMutex
	stateSubs    *subscriberSet[StateChangeHandler]
	registrySubs *subscriberSet[RegistryChangeHandler]
	connected    bool
	connMu       sync.RWMutex

	// StatesErr, when set, is returned by GetAllStates
	StatesErr error
	// FloorRegistryErr, when set, is returned by GetFloorRegistry
	FloorRegistryErr error
}

// NewMockClient creates a new mock HA client
func NewMockClient() *MockClient {
	return &MockClient{
		states:       make(map[string]*State),
		entities:     make(map[string]EntityRegistryEntry),
		devices:      make(map[string]DeviceRegistryEntry),
		areas:        make(map[string]AreaRegistryEntry),
		floors:       make(map[string]FloorRegistryEntry),
		stateSubs:    newSubscriberSet[StateChangeHandler](),
		registrySubs: newSubscriberSet[RegistryChangeHandler](),
	}
}

// Connect simulates connecting to Home Assistant
func (m *MockClient) Connect() error {
	m.connMu.Lock()
	defer m.connMu.Unlock()

	if m.connected {
		return fmt.Errorf("already connected")
	}

	m.connected = true
	return nil
}

// Disconnect simulates disconnecting
func (m *MockClient) Disconnect() error {
	m.connMu.Lock()
	defer m.connMu.Unlock()

	m.connected = false
	m.stateSubs.clear()
	m.registrySubs.clear()
	return nil
}

// IsConnected returns connection status
func (m *MockClient) IsConnected() bool {
	m.connMu.RLock()
	defer m.connMu.RUnlock()
	return m.connected
}

// GetAllStates returns all mock states ordered by entity ID
func (m *MockClient) GetAllStates() ([]*State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.StatesErr != nil {
		return nil, m.StatesErr
	}

	states := make([]*State, 0, len(m.states))
	for _, state := range m.states {
		states = append(states, state)
	}
	sort.Slice(states, func(i, j int) bool { return states[i].EntityID < states[j].EntityID })

	return states, nil
}

// GetEntityRegistry returns the mock entity registry
func (m *MockClient) GetEntityRegistry() ([]EntityRegistryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := make([]EntityRegistryEntry, 0, len(m.entities))
	for _, e := range m.entities {
		entries = append(entries, e)
	}
	return entries, nil
}

// GetDeviceRegistry returns the mock device registry
func (m *MockClient) GetDeviceRegistry() ([]DeviceRegistryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := make([]DeviceRegistryEntry, 0, len(m.devices))
	for _, d := range m.devices {
		entries = append(entries, d)
	}
	return entries, nil
}

// GetAreaRegistry returns the mock area registry
func (m *MockClient) GetAreaRegistry() ([]AreaRegistryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := make([]AreaRegistryEntry, 0, len(m.areas))
	for _, a := range m.areas {
		entries = append(entries, a)
	}
	return entries, nil
}

// GetFloorRegistry returns the mock floor registry
func (m *MockClient) GetFloorRegistry() ([]FloorRegistryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.FloorRegistryErr != nil {
		return nil, m.FloorRegistryErr
	}

	entries := make([]FloorRegistryEntry, 0, len(m.floors))
	for _, f := range m.floors {
		entries = append(entries, f)
	}
	return entries, nil
}

// SubscribeStateChanges subscribes to all state changes
func (m *MockClient) SubscribeStateChanges(handler StateChangeHandler) (Subscription, error) {
	return m.stateSubs.add(handler), nil
}

// SubscribeRegistryChanges subscribes to registry updates
func (m *MockClient) SubscribeRegistryChanges(handler RegistryChangeHandler) (Subscription, error) {
	return m.registrySubs.add(handler), nil
}

// SetState sets a mock state and notifies subscribers
func (m *MockClient) SetState(entityID string, stateValue string, attributes map[string]interface{}) {
	now := time.Now()
	m.putState(&State{
		EntityID:    entityID,
		State:       stateValue,
		Attributes:  attributes,
		LastChanged: now,
		LastUpdated: now,
	})
}

// SetStateAt is SetState with an explicit last_changed timestamp
func (m *MockClient) SetStateAt(entityID string, stateValue string, attributes map[string]interface{}, lastChanged time.Time) {
	m.putState(&State{
		EntityID:    entityID,
		State:       stateValue,
		Attributes:  attributes,
		LastChanged: lastChanged,
		LastUpdated: lastChanged,
	})
}

func (m *MockClient) putState(newState *State) {
	m.mu.Lock()
	oldState := m.states[newState.EntityID]
	m.states[newState.EntityID] = newState
	m.mu.Unlock()

	notifyState(m.stateSubs, newState.EntityID, oldState, newState)
}

// SimulateStateChange changes only the state value, keeping attributes
func (m *MockClient) SimulateStateChange(entityID string, newStateValue string) {
	m.mu.RLock()
	oldState := m.states[entityID]
	m.mu.RUnlock()

	attributes := make(map[string]interface{})
	if oldState != nil {
		attributes = oldState.Attributes
	}
	m.SetState(entityID, newStateValue, attributes)
}

// RemoveState removes an entity and notifies subscribers with a nil new state
func (m *MockClient) RemoveState(entityID string) {
	m.mu.Lock()
	oldState := m.states[entityID]
	delete(m.states, entityID)
	m.mu.Unlock()

	notifyState(m.stateSubs, entityID, oldState, nil)
}

// SetEntity adds or replaces an entity registry entry
func (m *MockClient) SetEntity(entry EntityRegistryEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entities[entry.EntityID] = entry
}

// SetDevice adds or replaces a device registry entry
func (m *MockClient) SetDevice(entry DeviceRegistryEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devices[entry.ID] = entry
}

// SetArea adds or replaces an area registry entry
func (m *MockClient) SetArea(entry AreaRegistryEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.areas[entry.AreaID] = entry
}

// SetFloor adds or replaces a floor registry entry
func (m *MockClient) SetFloor(entry FloorRegistryEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.floors[entry.FloorID] = entry
}

// SimulateRegistryChange notifies registry subscribers
func (m *MockClient) SimulateRegistryChange(eventType string) {
	notifyRegistry(m.registrySubs, eventType)
}
