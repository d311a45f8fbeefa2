package messaging

import (
	"context"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// qosAtLeastOnce makes the broker acknowledge every notification.
const qosAtLeastOnce byte = 1

// MQTTPublisher sends each queue as an MQTT topic of the same name.
type MQTTPublisher struct {
	client mqtt.Client
	logger zerolog.Logger
}

func NewMQTTPublisher(broker, clientID string, logger zerolog.Logger) (*MQTTPublisher, error) {
	if broker == "" {
		return nil, fmt.Errorf("mqtt broker is required")
	}
	log := logger.With().Str("component", "mqtt").Logger()

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Msg("mqtt connection lost")
	})
	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		log.Info().Str("broker", broker).Msg("mqtt connected")
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(healthTimeout) {
		return nil, fmt.Errorf("mqtt connect to %s timed out", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	return &MQTTPublisher{client: client, logger: log}, nil
}

func (p *MQTTPublisher) Publish(ctx context.Context, queue string, payload []byte) error {
	token := p.client.Publish(queue, qosAtLeastOnce, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt publish %s: %w", queue, err)
	}
	return nil
}

func (p *MQTTPublisher) Connected() bool {
	return p.client.IsConnectionOpen()
}

func (p *MQTTPublisher) Close() error {
	p.client.Disconnect(250)
	return nil
}
