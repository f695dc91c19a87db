package broadcast

import (
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// MQTTOptions configures the MQTT mirror
type MQTTOptions struct {
	Broker      string
	ClientID    string
	TopicPrefix string
	QoS         byte
}

// MQTTSink mirrors broadcasts to an MQTT broker under <prefix>/<topic>.
// Snapshots are retained so late subscribers get the current state.
type MQTTSink struct {
	client mqtt.Client
	prefix string
	qos    byte
	logger zerolog.Logger
}

// NewMQTTSink connects to the broker
func NewMQTTSink(opts MQTTOptions, logger zerolog.Logger) (*MQTTSink, error) {
	clientOpts := mqtt.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetMaxReconnectInterval(60 * time.Second)

	client := mqtt.NewClient(clientOpts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connecting to MQTT broker %s: timeout", opts.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connecting to MQTT broker %s: %w", opts.Broker, err)
	}

	return &MQTTSink{
		client: client,
		prefix: opts.TopicPrefix,
		qos:    opts.QoS,
		logger: logger.With().Str("component", "mqtt_sink").Logger(),
	}, nil
}

// Publish hands the payload to paho without waiting for delivery
func (s *MQTTSink) Publish(topic string, payload []byte) {
	full := s.prefix + "/" + topic
	retained := topic != TopicCallEvent
	token := s.client.Publish(full, s.qos, retained, payload)
	go func() {
		if token.WaitTimeout(5*time.Second) && token.Error() != nil {
			s.logger.Warn().Err(token.Error()).Str("topic", full).Msg("mqtt publish failed")
		}
	}()
}

// Close disconnects from the broker
func (s *MQTTSink) Close() error {
	s.client.Disconnect(1000)
	return nil
}
