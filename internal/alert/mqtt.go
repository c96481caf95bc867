// Package alert delivers error-severity log events to an MQTT topic so
// operators hear about ingestion problems independently of the batch's own
// exit status.
package alert

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"

	"github.com/rocasol/solarmon/internal/config"
)

// Hook is a logrus hook that publishes error and fatal entries to an MQTT
// topic. Publish failures are swallowed: the alert channel must never take
// down the run it is reporting on.
type Hook struct {
	client mqtt.Client
	topic  string
}

// NewHook connects to the broker and returns the hook ready to register
// with logrus.
func NewHook(cfg config.AlertConfig) (*Hook, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("MQTT broker address is required when alerts are enabled")
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", cfg.Broker))
	opts.SetClientID("solarmon")
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(10 * time.Second)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connecting to MQTT broker: %w", token.Error())
	}

	return &Hook{client: client, topic: cfg.Topic}, nil
}

// Levels registers the hook for error severity and above.
func (h *Hook) Levels() []log.Level {
	return []log.Level{log.PanicLevel, log.FatalLevel, log.ErrorLevel}
}

// alertPayload is the JSON message published per alert.
type alertPayload struct {
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
	Timestamp string         `json:"timestamp"`
}

// Fire publishes the entry. Always returns nil; a lost alert is not worth
// failing the collection run for.
func (h *Hook) Fire(entry *log.Entry) error {
	fields := make(map[string]any, len(entry.Data))
	for k, v := range entry.Data {
		if err, ok := v.(error); ok {
			fields[k] = err.Error()
			continue
		}
		fields[k] = v
	}

	payload, err := json.Marshal(alertPayload{
		Level:     entry.Level.String(),
		Message:   entry.Message,
		Fields:    fields,
		Timestamp: entry.Time.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil
	}

	h.client.Publish(h.topic, 1, false, payload)
	return nil
}

// Close disconnects from the broker.
func (h *Hook) Close() {
	if h.client != nil && h.client.IsConnected() {
		h.client.Disconnect(250)
	}
}
