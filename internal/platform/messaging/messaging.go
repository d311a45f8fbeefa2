// Package messaging carries finished triage notifications to doctor-facing
// consumers over Redis lists, MQTT, Kafka or the in-process websocket hub.
package messaging

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/triage/internal/platform/websocket"
)

const (
	DriverRedis     = "redis"
	DriverMQTT      = "mqtt"
	DriverKafka     = "kafka"
	DriverWebsocket = "websocket"
	DriverMemory    = "memory"
)

// healthTimeout bounds the broker round trip made by Connected.
const healthTimeout = 2 * time.Second

// Publisher hands a payload to a named queue. Connected reports whether the
// broker is reachable right now.
type Publisher interface {
	Publish(ctx context.Context, queue string, payload []byte) error
	Connected() bool
	Close() error
}

// Consumer pulls payloads off a queue until ctx is done.
type Consumer interface {
	Consume(ctx context.Context, queue string, handle func(payload []byte)) error
}

type Config struct {
	Driver       string
	RedisURL     string
	MQTTBroker   string
	MQTTClientID string
	KafkaBrokers []string
	ClientID     string
}

// New connects the configured driver. The websocket driver publishes
// straight into hub; the others also need a broker to be reachable.
func New(cfg Config, hub *websocket.Hub, logger zerolog.Logger) (Publisher, error) {
	switch strings.ToLower(cfg.Driver) {
	case DriverRedis:
		return NewRedisQueue(cfg.RedisURL, logger)
	case DriverMQTT:
		return NewMQTTPublisher(cfg.MQTTBroker, cfg.MQTTClientID, logger)
	case DriverKafka:
		return NewKafkaPublisher(cfg.KafkaBrokers, cfg.ClientID, logger)
	case DriverWebsocket, "":
		if hub == nil {
			return nil, fmt.Errorf("websocket driver requires a hub")
		}
		return NewHubPublisher(hub), nil
	case DriverMemory:
		return NewMemoryPublisher(), nil
	default:
		return nil, fmt.Errorf("unknown messaging driver %q", cfg.Driver)
	}
}
