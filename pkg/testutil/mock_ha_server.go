// Package testutil provides a mock Home Assistant WebSocket server for
// end-to-end tests of the device monitor.
package testutil

import (
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"time"

	"devicemonitor/internal/ha"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// connWrapper wraps a WebSocket connection with its write mutex
type connWrapper struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (w *connWrapper) write(msg ha.Message) {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	w.conn.WriteJSON(msg)
}

// MockHAServer simulates the parts of the Home Assistant WebSocket API the
// monitor reads: states, the four registries, and their change events.
type MockHAServer struct {
	server      *httptest.Server
	token       string
	mu          sync.RWMutex
	states      map[string]*ha.State
	entities    map[string]ha.EntityRegistryEntry
	devices     map[string]ha.DeviceRegistryEntry
	areas       map[string]ha.AreaRegistryEntry
	floors      map[string]ha.FloorRegistryEntry
	noFloors    bool
	connections []*connWrapper
	connsMu     sync.Mutex
	commands    map[string]int
}

// NewMockHAServer creates a mock server accepting token
func NewMockHAServer(token string) *MockHAServer {
	return &MockHAServer{
		token:    token,
		states:   make(map[string]*ha.State),
		entities: make(map[string]ha.EntityRegistryEntry),
		devices:  make(map[string]ha.DeviceRegistryEntry),
		areas:    make(map[string]ha.AreaRegistryEntry),
		floors:   make(map[string]ha.FloorRegistryEntry),
		commands: make(map[string]int),
	}
}

// Start serves the mock on a random local port
func (s *MockHAServer) Start() {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/websocket", s.handleWebSocket)
	s.server = httptest.NewServer(mux)
}

// URL is the websocket endpoint clients dial
func (s *MockHAServer) URL() string {
	return "ws" + strings.TrimPrefix(s.server.URL, "http") + "/api/websocket"
}

// Stop closes every connection and the listener
func (s *MockHAServer) Stop() {
	s.connsMu.Lock()
	for _, wrapper := range s.connections {
		wrapper.conn.Close()
	}
	s.connections = nil
	s.connsMu.Unlock()

	if s.server != nil {
		s.server.Close()
	}
}

// DisableFloors makes config/floor_registry/list fail like a pre-2024.4 install
func (s *MockHAServer) DisableFloors() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.noFloors = true
}

// CommandCount reports how often a command type was received
func (s *MockHAServer) CommandCount(commandType string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.commands[commandType]
}

// SetState sets a state and broadcasts a state_changed event
func (s *MockHAServer) SetState(entityID, state string, attributes map[string]interface{}) {
	now := time.Now()
	newState := &ha.State{
		EntityID:    entityID,
		State:       state,
		Attributes:  attributes,
		LastChanged: now,
		LastUpdated: now,
	}

	s.mu.Lock()
	oldState := s.states[entityID]
	s.states[entityID] = newState
	s.mu.Unlock()

	data, _ := json.Marshal(ha.StateChangedEvent{EntityID: entityID, NewState: newState, OldState: oldState})
	s.broadcast(ha.EventStateChanged, data)
}

// SetEntity adds or replaces an entity registry entry without notifying
func (s *MockHAServer) SetEntity(entry ha.EntityRegistryEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entities[entry.EntityID] = entry
}

// SetDevice adds or replaces a device registry entry without notifying
func (s *MockHAServer) SetDevice(entry ha.DeviceRegistryEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices[entry.ID] = entry
}

// SetArea adds or replaces an area registry entry without notifying
func (s *MockHAServer) SetArea(entry ha.AreaRegistryEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.areas[entry.AreaID] = entry
}

// SetFloor adds or replaces a floor registry entry without notifying
func (s *MockHAServer) SetFloor(entry ha.FloorRegistryEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.floors[entry.FloorID] = entry
}

// BroadcastRegistryUpdate sends a registry event such as
// ha.EventAreaRegistryUpdated to every client
func (s *MockHAServer) BroadcastRegistryUpdate(eventType string) {
	s.broadcast(eventType, json.RawMessage(`{"action":"update"}`))
}

func (s *MockHAServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Failed to upgrade connection: %v", err)
		return
	}

	wrapper := &connWrapper{conn: conn}
	defer func() {
		s.connsMu.Lock()
		for i, w := range s.connections {
			if w == wrapper {
				s.connections = append(s.connections[:i], s.connections[i+1:]...)
				break
			}
		}
		s.connsMu.Unlock()
		conn.Close()
	}()

	wrapper.write(ha.Message{Type: "auth_required"})

	var authMsg ha.AuthMessage
	if err := conn.ReadJSON(&authMsg); err != nil {
		return
	}
	if authMsg.AccessToken != s.token {
		wrapper.write(ha.Message{Type: "auth_invalid"})
		return
	}

	// Register before auth_ok so no event sent after the handshake is lost
	s.connsMu.Lock()
	s.connections = append(s.connections, wrapper)
	s.connsMu.Unlock()

	wrapper.write(ha.Message{Type: "auth_ok"})

	for {
		var req struct {
			ID   int    `json:"id"`
			Type string `json:"type"`
		}
		if err := conn.ReadJSON(&req); err != nil {
			return
		}

		s.mu.Lock()
		s.commands[req.Type]++
		s.mu.Unlock()

		if req.Type == "subscribe_events" {
			s.reply(wrapper, req.ID, nil)
			continue
		}

		result, ok := s.result(req.Type)
		if !ok {
			failure := false
			wrapper.write(ha.Message{
				ID:      req.ID,
				Type:    "result",
				Success: &failure,
				Error:   &ha.Error{Code: "unknown_command", Message: "Unknown command."},
			})
			continue
		}
		s.reply(wrapper, req.ID, result)
	}
}

func (s *MockHAServer) reply(wrapper *connWrapper, id int, result interface{}) {
	success := true
	msg := ha.Message{ID: id, Type: "result", Success: &success}
	if result != nil {
		msg.Result, _ = json.Marshal(result)
	}
	wrapper.write(msg)
}

// result builds the payload of a list command, sorted by ID
func (s *MockHAServer) result(commandType string) (interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch commandType {
	case "get_states":
		states := make([]*ha.State, 0, len(s.states))
		for _, id := range sortedKeys(s.states) {
			states = append(states, s.states[id])
		}
		return states, true
	case "config/entity_registry/list":
		entries := make([]ha.EntityRegistryEntry, 0, len(s.entities))
		for _, id := range sortedKeys(s.entities) {
			entries = append(entries, s.entities[id])
		}
		return entries, true
	case "config/device_registry/list":
		entries := make([]ha.DeviceRegistryEntry, 0, len(s.devices))
		for _, id := range sortedKeys(s.devices) {
			entries = append(entries, s.devices[id])
		}
		return entries, true
	case "config/area_registry/list":
		entries := make([]ha.AreaRegistryEntry, 0, len(s.areas))
		for _, id := range sortedKeys(s.areas) {
			entries = append(entries, s.areas[id])
		}
		return entries, true
	case "config/floor_registry/list":
		if s.noFloors {
			return nil, false
		}
		entries := make([]ha.FloorRegistryEntry, 0, len(s.floors))
		for _, id := range sortedKeys(s.floors) {
			entries = append(entries, s.floors[id])
		}
		return entries, true
	}
	return nil, false
}

func (s *MockHAServer) broadcast(eventType string, data json.RawMessage) {
	msg := ha.Message{
		Type: "event",
		Event: &ha.Event{
			EventType: eventType,
			Data:      data,
			Origin:    "LOCAL",
			TimeFired: time.Now(),
		},
	}

	s.connsMu.Lock()
	wrappers := make([]*connWrapper, len(s.connections))
	copy(wrappers, s.connections)
	s.connsMu.Unlock()

	for _, wrapper := range wrappers {
		wrapper.write(msg)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
