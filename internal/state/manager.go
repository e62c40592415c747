package state

import (
	"fmt"
	"sync"

	"devicemonitor/internal/ha"
	"devicemonitor/internal/registry"

	"go.uber.org/zap"
)

// SnapshotHandler is called with every new snapshot
type SnapshotHandler func(snap *registry.Snapshot)

// Subscription represents an active snapshot subscription
type Subscription interface {
	Unsubscribe()
}

type subscription struct {
	id      int
	manager *Manager
}

func (s *subscription) Unsubscribe() {
	s.manager.unsubscribe(s.id)
}

// Manager keeps the current registry snapshot in sync with Home Assistant
type Manager struct {
	client ha.HAClient
	logger *zap.Logger

	snap   *registry.Snapshot
	snapMu sync.RWMutex
	// State changes seen while a sync is in flight, re-applied on top of
	// the synced snapshot. nil outside a sync.
	pendingStates map[string]*ha.State

	syncMu    sync.Mutex // Serializes SyncFromHA
	resyncMu  sync.Mutex
	resyncing bool
	dirty     bool

	subscribers map[int]SnapshotHandler
	order       []int
	nextID      int
	subsMu      sync.RWMutex
	notifyMu    sync.Mutex // Keeps deliveries in snapshot order

	haSubs []ha.Subscription
}

// NewManager creates a new state manager. Until SyncFromHA succeeds the
// snapshot is empty.
func NewManager(client ha.HAClient, logger *zap.Logger) *Manager {
	return &Manager{
		client:      client,
		logger:      logger.Named("state"),
		snap:        registry.Empty(),
		subscribers: make(map[int]SnapshotHandler),
	}
}

// Start subscribes to Home Assistant, then syncs. State changes are applied
// one entity at a time, registry changes and reconnects trigger a full resync.
func (m *Manager) Start() error {
	stateSub, err := m.client.SubscribeStateChanges(m.handleStateChange)
	if err != nil {
		return fmt.Errorf("failed to subscribe to state changes: %w", err)
	}

	registrySub, err := m.client.SubscribeRegistryChanges(m.handleRegistryChange)
	if err != nil {
		stateSub.Unsubscribe()
		return fmt.Errorf("failed to subscribe to registry changes: %w", err)
	}

	m.haSubs = []ha.Subscription{stateSub, registrySub}

	if err := m.SyncFromHA(); err != nil {
		m.Stop()
		return err
	}
	return nil
}

// Stop unsubscribes from Home Assistant
func (m *Manager) Stop() {
	for _, sub := range m.haSubs {
		if err := sub.Unsubscribe(); err != nil {
			m.logger.Warn("Failed to unsubscribe", zap.Error(err))
		}
	}
	m.haSubs = nil
}

// SyncFromHA reads every state and registry from Home Assistant and replaces
// the snapshot. State changes delivered while the sync runs are kept.
func (m *Manager) SyncFromHA() error {
	m.syncMu.Lock()
	defer m.syncMu.Unlock()

	m.logger.Info("Syncing state from Home Assistant...")

	m.snapMu.Lock()
	m.pendingStates = make(map[string]*ha.State)
	m.snapMu.Unlock()

	snap, err := m.fetchSnapshot()

	m.snapMu.Lock()
	pending := m.pendingStates
	m.pendingStates = nil
	if err != nil {
		m.snapMu.Unlock()
		return err
	}
	for entityID, st := range pending {
		snap = snap.WithState(entityID, st)
	}
	m.snap = snap
	m.snapMu.Unlock()

	m.logger.Info("State sync complete",
		zap.Int("states", snap.Len()),
		zap.Int("replayed_changes", len(pending)))

	m.notifySubscribers()
	return nil
}

// fetchSnapshot builds a snapshot from the states and registries
func (m *Manager) fetchSnapshot() (*registry.Snapshot, error) {
	states, err := m.client.GetAllStates()
	if err != nil {
		return nil, fmt.Errorf("failed to get states: %w", err)
	}

	entities, err := m.client.GetEntityRegistry()
	if err != nil {
		return nil, fmt.Errorf("failed to get entity registry: %w", err)
	}

	devices, err := m.client.GetDeviceRegistry()
	if err != nil {
		return nil, fmt.Errorf("failed to get device registry: %w", err)
	}

	areas, err := m.client.GetAreaRegistry()
	if err != nil {
		return nil, fmt.Errorf("failed to get area registry: %w", err)
	}

	// Floors arrived in Home Assistant 2024.3; older instances reject the command
	floors, err := m.client.GetFloorRegistry()
	if err != nil {
		m.logger.Warn("Floor registry unavailable, grouping by floor will use defaults",
			zap.Error(err))
		floors = nil
	}

	m.logger.Debug("Fetched registries",
		zap.Int("states", len(states)),
		zap.Int("entities", len(entities)),
		zap.Int("devices", len(devices)),
		zap.Int("areas", len(areas)),
		zap.Int("floors", len(floors)))

	return registry.New(registry.Sources{
		States:   states,
		Entities: entities,
		Devices:  devices,
		Areas:    areas,
		Floors:   floors,
	}), nil
}

// Snapshot returns the current snapshot. It is never nil and never changes.
func (m *Manager) Snapshot() *registry.Snapshot {
	m.snapMu.RLock()
	defer m.snapMu.RUnlock()
	return m.snap
}

func (m *Manager) handleStateChange(entityID string, oldState, newState *ha.State) {
	m.snapMu.Lock()
	if m.pendingStates != nil {
		m.pendingStates[entityID] = newState
	}
	m.snap = m.snap.WithState(entityID, newState)
	m.snapMu.Unlock()

	m.logger.Debug("Entity state changed", zap.String("entity_id", entityID))
	m.notifySubscribers()
}

// handleRegistryChange resyncs. Events arriving while a resync runs mark it
// dirty and are folded into one more resync.
func (m *Manager) handleRegistryChange(eventType string) {
	m.resyncMu.Lock()
	if m.resyncing {
		m.dirty = true
		m.resyncMu.Unlock()
		m.logger.Debug("Resync already running, coalescing", zap.String("event", eventType))
		return
	}
	m.resyncing = true
	m.resyncMu.Unlock()

	for {
		m.logger.Info("Registry changed, resyncing", zap.String("event", eventType))
		if err := m.SyncFromHA(); err != nil {
			m.logger.Error("Failed to resync after registry change",
				zap.String("event", eventType),
				zap.Error(err))
		}

		m.resyncMu.Lock()
		if !m.dirty {
			m.resyncing = false
			m.resyncMu.Unlock()
			return
		}
		m.dirty = false
		m.resyncMu.Unlock()
	}
}

// Subscribe registers a handler called with every new snapshot
func (m *Manager) Subscribe(handler SnapshotHandler) Subscription {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()

	id := m.nextID
	m.nextID++
	m.subscribers[id] = handler
	m.order = append(m.order, id)

	return &subscription{id: id, manager: m}
}

func (m *Manager) unsubscribe(id int) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()

	delete(m.subscribers, id)
	for i, existing := range m.order {
		if existing == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// notifySubscribers calls every handler in subscription order with the
// current snapshot. Deliveries never overlap, so a handler never sees an
// older snapshot after a newer one.
func (m *Manager) notifySubscribers() {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	snap := m.Snapshot()

	m.subsMu.RLock()
	handlers := make([]SnapshotHandler, 0, len(m.order))
	for _, id := range m.order {
		handlers = append(handlers, m.subscribers[id])
	}
	m.subsMu.RUnlock()

	for _, handler := range handlers {
		m.callHandler(handler, snap)
	}
}

// callHandler isolates subscribers from each other's panics
func (m *Manager) callHandler(handler SnapshotHandler, snap *registry.Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Snapshot subscriber panicked", zap.Any("panic", r))
		}
	}()
	handler(snap)
}
