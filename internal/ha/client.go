package ha

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// EventReconnected is delivered to registry subscribers after the client
// re-established a lost connection, since any state may have been missed.
const EventReconnected = "reconnected"

// HAClient defines the read-only view of Home Assistant the monitor needs
type HAClient interface {
	Connect() error
	Disconnect() error
	IsConnected() bool
	GetAllStates() ([]*State, error)
	GetEntityRegistry() ([]EntityRegistryEntry, error)
	GetDeviceRegistry() ([]DeviceRegistryEntry, error)
	GetAreaRegistry() ([]AreaRegistryEntry, error)
	GetFloorRegistry() ([]FloorRegistryEntry, error)
	SubscribeStateChanges(handler StateChangeHandler) (Subscription, error)
	SubscribeRegistryChanges(handler RegistryChangeHandler) (Subscription, error)
}

// Client implements HAClient over the Home Assistant WebSocket API
type Client struct {
	url          string
	token        string
	logger       *zap.Logger
	conn         *websocket.Conn
	connected    bool
	connMu       sync.RWMutex
	msgID        int
	msgIDMu      sync.Mutex
	pending      map[int]chan Message
	pendingMu    sync.Mutex
	stateSubs    *subscriberSet[StateChangeHandler]
	registrySubs *subscriberSet[RegistryChangeHandler]
	ctx          context.Context
	cancel       context.CancelFunc
	reconnect    bool
	writeMu      sync.Mutex // Protects websocket writes
	timeout      time.Duration
}

func (c *Client) resetContextLocked() {
	if c.cancel != nil {
		c.cancel()
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
}

// NewClient creates a new Home Assistant WebSocket client
func NewClient(url, token string, logger *zap.Logger) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		url:          url,
		token:        token,
		logger:       logger.Named("ha"),
		pending:      make(map[int]chan Message),
		stateSubs:    newSubscriberSet[StateChangeHandler](),
		registrySubs: newSubscriberSet[RegistryChangeHandler](),
		ctx:          ctx,
		cancel:       cancel,
		reconnect:    true,
		timeout:      10 * time.Second,
	}
}

// Connect establishes WebSocket connection and authenticates
func (c *Client) Connect() error {
	c.connMu.Lock()

	if c.connected {
		c.connMu.Unlock()
		return fmt.Errorf("already connected")
	}

	conn, _, err := websocket.DefaultDialer.Dial(c.url, nil)
	if err != nil {
		c.connMu.Unlock()
		return fmt.Errorf("failed to connect to WebSocket: %w", err)
	}
	c.conn = conn

	if err := c.authenticate(); err != nil {
		c.conn.Close()
		c.conn = nil
		c.connMu.Unlock()
		return err
	}

	c.resetContextLocked()
	c.connected = true
	c.reconnect = true
	c.logger.Info("Connected to Home Assistant")

	go c.receiveMessages(c.ctx, c.conn)

	// Release lock before subscribing, sendMessage takes the read lock
	c.connMu.Unlock()

	if err := c.subscribeEvents(EventStateChanged); err != nil {
		c.logger.Warn("Failed to subscribe to state changes", zap.Error(err))
	}
	for _, eventType := range registryEvents {
		if err := c.subscribeEvents(eventType); err != nil {
			c.logger.Warn("Failed to subscribe to registry events",
				zap.String("event_type", eventType),
				zap.Error(err))
		}
	}

	return nil
}

// authenticate runs the auth_required / auth / auth_ok handshake
func (c *Client) authenticate() error {
	var authRequired Message
	if err := c.conn.ReadJSON(&authRequired); err != nil {
		return fmt.Errorf("failed to read auth_required: %w", err)
	}
	if authRequired.Type != "auth_required" {
		return fmt.Errorf("expected auth_required, got %s", authRequired.Type)
	}

	c.writeMu.Lock()
	err := c.conn.WriteJSON(AuthMessage{Type: "auth", AccessToken: c.token})
	c.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to send auth: %w", err)
	}

	var authResponse Message
	if err := c.conn.ReadJSON(&authResponse); err != nil {
		return fmt.Errorf("failed to read auth response: %w", err)
	}

	switch authResponse.Type {
	case "auth_ok":
		return nil
	case "auth_invalid":
		return fmt.Errorf("authentication failed: invalid token")
	default:
		return fmt.Errorf("expected auth_ok, got %s", authResponse.Type)
	}
}

// Disconnect closes the WebSocket connection
func (c *Client) Disconnect() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	c.reconnect = false
	if !c.connected {
		return nil
	}

	c.cancel()
	c.connected = false

	if c.conn != nil {
		c.writeMu.Lock()
		c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()

		c.conn.Close()
		c.conn = nil
	}

	c.stateSubs.clear()
	c.registrySubs.clear()
	c.logger.Info("Disconnected from Home Assistant")
	return nil
}

// IsConnected returns true if client is connected
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected
}

func (c *Client) nextMsgID() int {
	c.msgIDMu.Lock()
	defer c.msgIDMu.Unlock()
	c.msgID++
	return c.msgID
}

// sendMessage sends a message with the given ID and waits for its result
func (c *Client) sendMessage(msgID int, msg interface{}) (*Message, error) {
	c.connMu.RLock()
	if !c.connected {
		c.connMu.RUnlock()
		return nil, fmt.Errorf("not connected")
	}
	conn := c.conn
	ctx := c.ctx
	c.connMu.RUnlock()

	respChan := make(chan Message, 1)
	c.pendingMu.Lock()
	c.pending[msgID] = respChan
	c.pendingMu.Unlock()

	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, msgID)
		c.pendingMu.Unlock()
	}()

	c.writeMu.Lock()
	err := conn.WriteJSON(msg)
	c.writeMu.Unlock()

	if err != nil {
		return nil, fmt.Errorf("failed to send message: %w", err)
	}

	select {
	case resp := <-respChan:
		if resp.Success != nil && !*resp.Success {
			if resp.Error != nil {
				return nil, fmt.Errorf("HA error: %s - %s", resp.Error.Code, resp.Error.Message)
			}
			return nil, fmt.Errorf("request failed")
		}
		return &resp, nil
	case <-time.After(c.timeout):
		return nil, fmt.Errorf("timeout waiting for response")
	case <-ctx.Done():
		return nil, fmt.Errorf("client disconnected")
	}
}

// receiveMessages handles incoming messages in the background
func (c *Client) receiveMessages(ctx context.Context, conn *websocket.Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if !c.IsConnected() {
				return
			}
			c.logger.Error("Failed to read message", zap.Error(err))
			c.handleDisconnect()
			return
		}

		if msg.Type == "event" {
			c.handleEvent(&msg)
			continue
		}

		if msg.ID > 0 {
			c.pendingMu.Lock()
			if ch, ok := c.pending[msg.ID]; ok {
				select {
				case ch <- msg:
				default:
					c.logger.Warn("Response channel full", zap.Int("msg_id", msg.ID))
				}
			}
			c.pendingMu.Unlock()
		}
	}
}

// handleEvent dispatches state_changed and registry events to subscribers
func (c *Client) handleEvent(msg *Message) {
	if msg.Event == nil {
		return
	}

	switch msg.Event.EventType {
	case EventStateChanged:
		var eventData StateChangedEvent
		if err := json.Unmarshal(msg.Event.Data, &eventData); err != nil {
			c.logger.Error("Failed to unmarshal state_changed event", zap.Error(err))
			return
		}
		notifyState(c.stateSubs, eventData.EntityID, eventData.OldState, eventData.NewState)

	case EventEntityRegistryUpdated, EventDeviceRegistryUpdated,
		EventAreaRegistryUpdated, EventFloorRegistryUpdated:
		c.logger.Debug("Registry updated", zap.String("event_type", msg.Event.EventType))
		// Handlers typically resync, which needs this goroutine to read replies
		go notifyRegistry(c.registrySubs, msg.Event.EventType)
	}
}

// handleDisconnect handles connection loss
func (c *Client) handleDisconnect() {
	c.connMu.Lock()
	c.connected = false
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	reconnect := c.reconnect
	c.connMu.Unlock()

	c.logger.Warn("Connection lost")

	if !reconnect {
		return
	}

	go c.attemptReconnect()
}

// attemptReconnect tries to reconnect with exponential backoff
func (c *Client) attemptReconnect() {
	backoff := time.Second
	maxBackoff := 30 * time.Second

	for {
		c.connMu.RLock()
		reconnect := c.reconnect
		c.connMu.RUnlock()
		if !reconnect {
			return
		}

		time.Sleep(backoff)

		c.logger.Info("Attempting to reconnect...")

		if err := c.Connect(); err != nil {
			c.logger.Error("Reconnection failed", zap.Error(err))
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}

		c.logger.Info("Reconnected successfully")
		notifyRegistry(c.registrySubs, EventReconnected)
		return
	}
}

func (c *Client) subscribeEvents(eventType string) error {
	msgID := c.nextMsgID()
	_, err := c.sendMessage(msgID, &SubscribeEventsRequest{
		ID:        msgID,
		Type:      "subscribe_events",
		EventType: eventType,
	})
	return err
}

// command sends a parameterless command and decodes its result into out
func (c *Client) command(commandType string, out interface{}) error {
	msgID := c.nextMsgID()
	resp, err := c.sendMessage(msgID, &CommandRequest{ID: msgID, Type: commandType})
	if err != nil {
		return fmt.Errorf("%s failed: %w", commandType, err)
	}

	if err := json.Unmarshal(resp.Result, out); err != nil {
		return fmt.Errorf("failed to unmarshal %s result: %w", commandType, err)
	}
	return nil
}

// GetAllStates retrieves all entity states
func (c *Client) GetAllStates() ([]*State, error) {
	var states []*State
	if err := c.command("get_states", &states); err != nil {
		return nil, err
	}
	return states, nil
}

// GetEntityRegistry lists the entity registry
func (c *Client) GetEntityRegistry() ([]EntityRegistryEntry, error) {
	var entries []EntityRegistryEntry
	if err := c.command("config/entity_registry/list", &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// GetDeviceRegistry lists the device registry
func (c *Client) GetDeviceRegistry() ([]DeviceRegistryEntry, error) {
	var entries []DeviceRegistryEntry
	if err := c.command("config/device_registry/list", &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// GetAreaRegistry lists the area registry
func (c *Client) GetAreaRegistry() ([]AreaRegistryEntry, error) {
	var entries []AreaRegistryEntry
	if err := c.command("config/area_registry/list", &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// GetFloorRegistry lists the floor registry. Installations older than
// 2024.4 have no floors and answer with an unknown_command error.
func (c *Client) GetFloorRegistry() ([]FloorRegistryEntry, error) {
	var entries []FloorRegistryEntry
	if err := c.command("config/floor_registry/list", &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// SubscribeStateChanges registers a handler for every state_changed event
func (c *Client) SubscribeStateChanges(handler StateChangeHandler) (Subscription, error) {
	return c.stateSubs.add(handler), nil
}

// SubscribeRegistryChanges registers a handler for registry update events
func (c *Client) SubscribeRegistryChanges(handler RegistryChangeHandler) (Subscription, error) {
	return c.registrySubs.add(handler), nil
}
