package messaging

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/ehr/triage/internal/platform/websocket"
)

// Relay forwards every payload consumed from queue to the dashboard clients
// subscribed to it. It returns when ctx is done or the consumer fails.
func Relay(ctx context.Context, src Consumer, queue string, hub *websocket.Hub, logger zerolog.Logger) error {
	log := logger.With().Str("component", "relay").Str("queue", queue).Logger()
	log.Info().Msg("relaying queue to websocket clients")

	return src.Consume(ctx, queue, func(payload []byte) {
		n := hub.Broadcast(queue, eventFor(queue, payload))
		log.Debug().Int("clients", n).Str("patient_id", patientKey(payload)).Msg("notification relayed")
	})
}
