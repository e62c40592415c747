package config

import (
	"fmt"
	"strconv"
	"time"
)

// Settings are the process-level settings read from the environment
type Settings struct {
	HAURL          string
	HAToken        string
	ConfigDir      string
	APIPort        int
	Language       string
	RenderDebounce time.Duration
	MQTT           MQTTSettings
}

// MQTTSettings configure badge publication. Broker "" disables MQTT.
type MQTTSettings struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Prefix   string
}

// Enabled reports whether a broker was configured
func (m MQTTSettings) Enabled() bool {
	return m.Broker != ""
}

// SettingsFromEnv reads Settings from the environment using getenv.
// Pass os.Getenv in production.
func SettingsFromEnv(getenv func(string) string) (*Settings, error) {
	s := &Settings{
		HAURL:          getenv("HA_URL"),
		HAToken:        getenv("HA_TOKEN"),
		ConfigDir:      orDefault(getenv("CONFIG_DIR"), "./configs"),
		APIPort:        8082,
		Language:       orDefault(getenv("LANGUAGE"), "en"),
		RenderDebounce: 500 * time.Millisecond,
		MQTT: MQTTSettings{
			Broker:   getenv("MQTT_BROKER"),
			ClientID: orDefault(getenv("MQTT_CLIENT_ID"), "device-monitor"),
			Username: getenv("MQTT_USERNAME"),
			Password: getenv("MQTT_PASSWORD"),
			Prefix:   orDefault(getenv("MQTT_PREFIX"), "device_monitor"),
		},
	}

	if s.HAURL == "" || s.HAToken == "" {
		return nil, fmt.Errorf("HA_URL and HA_TOKEN environment variables must be set")
	}

	if v := getenv("API_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			return nil, fmt.Errorf("invalid API_PORT %q", v)
		}
		s.APIPort = port
	}

	if v := getenv("RENDER_DEBOUNCE"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return nil, fmt.Errorf("invalid RENDER_DEBOUNCE %q", v)
		}
		s.RenderDebounce = d
	}

	return s, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
