package publish

import (
	"fmt"
	"time"

	"devicemonitor/internal/config"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

const (
	offlinePayload = "offline"
	onlinePayload  = "online"

	publishTimeout = 5 * time.Second
)

// Broker delivers payloads to topics
type Broker interface {
	Publish(topic string, payload []byte, retain bool) error
	Close()
}

// MQTTBroker is a Broker backed by an MQTT connection. The status topic
// carries "online" while connected and the broker publishes "offline" as
// the last will.
type MQTTBroker struct {
	client      mqtt.Client
	statusTopic string
	logger      *zap.Logger
}

// ConnectMQTT connects to the broker in settings
func ConnectMQTT(settings config.MQTTSettings, logger *zap.Logger) (*MQTTBroker, error) {
	b := &MQTTBroker{
		statusTopic: StatusTopic(settings.Prefix),
		logger:      logger.Named("mqtt"),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(settings.Broker)
	opts.SetClientID(settings.ClientID)
	opts.SetUsername(settings.Username)
	opts.SetPassword(settings.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetWill(b.statusTopic, offlinePayload, 1, true)
	opts.SetOnConnectHandler(b.onConnect)
	opts.SetConnectionLostHandler(b.onConnectionLost)

	b.client = mqtt.NewClient(opts)

	token := b.client.Connect()
	if !token.WaitTimeout(15 * time.Second) {
		return nil, fmt.Errorf("timed out connecting to MQTT broker %s", settings.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: %w", settings.Broker, err)
	}

	b.logger.Info("Connected to MQTT broker", zap.String("broker", settings.Broker))
	return b, nil
}

// onConnect runs after every (re)connect
func (b *MQTTBroker) onConnect(client mqtt.Client) {
	if err := b.Publish(b.statusTopic, []byte(onlinePayload), true); err != nil {
		b.logger.Error("Failed to publish online status", zap.Error(err))
	}
}

func (b *MQTTBroker) onConnectionLost(client mqtt.Client, err error) {
	b.logger.Warn("MQTT connection lost", zap.Error(err))
}

// Publish sends a payload with QoS 1
func (b *MQTTBroker) Publish(topic string, payload []byte, retain bool) error {
	token := b.client.Publish(topic, 1, retain, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("timed out publishing to %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

// Close marks the service offline and disconnects
func (b *MQTTBroker) Close() {
	if !b.client.IsConnected() {
		return
	}
	if err := b.Publish(b.statusTopic, []byte(offlinePayload), true); err != nil {
		b.logger.Warn("Failed to publish offline status", zap.Error(err))
	}
	b.client.Disconnect(250)
}
