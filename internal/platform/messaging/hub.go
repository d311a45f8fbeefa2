package messaging

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ehr/triage/internal/platform/websocket"
)

// envelope is the subset of a notification payload the transports route on.
type envelope struct {
	EventType string `json:"eventType"`
	PatientID string `json:"patientId"`
}

func peek(payload []byte) envelope {
	var env envelope
	_ = json.Unmarshal(payload, &env)
	return env
}

func patientKey(payload []byte) string {
	return peek(payload).PatientID
}

// eventFor wraps a raw notification payload for dashboard clients.
func eventFor(queue string, payload []byte) websocket.Event {
	typ := peek(payload).EventType
	if typ == "" {
		typ = "notification"
	}
	ev := websocket.Event{Type: typ, Topic: queue, Timestamp: time.Now().UTC()}
	if json.Valid(payload) {
		ev.Data = json.RawMessage(payload)
	}
	return ev
}

// HubPublisher delivers notifications straight to connected dashboards. It
// is always connected; a queue with no listeners simply drops the event.
type HubPublisher struct {
	hub *websocket.Hub
}

func NewHubPublisher(hub *websocket.Hub) *HubPublisher {
	return &HubPublisher{hub: hub}
}

func (p *HubPublisher) Publish(_ context.Context, queue string, payload []byte) error {
	p.hub.Broadcast(queue, eventFor(queue, payload))
	return nil
}

func (p *HubPublisher) Connected() bool { return true }

func (p *HubPublisher) Close() error { return nil }
