// Package notify delivers dispatcher progress events to observers.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// EventName is the channel every progress event is published under
const EventName = "disparador:progresso"

// Progress event types
const (
	TypeWaiting   = "aguardando"
	TypeSuccess   = "sucesso"
	TypeError     = "erro"
	TypeCritical  = "erro_critico"
	TypeAutoPause = "pausa_automatica"
	TypeCompleted = "concluida"
)

// Reasons carried by waiting and auto-pause events
const (
	ReasonHourlyLimit  = "limite_hora"
	ReasonMessageLimit = "limite_mensagens"
)

// Event is one progress notification for a campaign run
type Event struct {
	CampaignID int64
	RunID      string
	Type       string
	Timestamp  time.Time
	Payload    map[string]any
}

// Envelope is the wire shape shared by every sink
type Envelope struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data"`
}

// Envelope flattens the event into its wire shape. Payload keys never
// override the identifying fields.
func (e Event) Envelope() Envelope {
	data := make(map[string]any, len(e.Payload)+4)
	for k, v := range e.Payload {
		data[k] = v
	}

	data["campaignId"] = e.CampaignID
	data["timestamp"] = e.Timestamp.UnixMilli()
	data["type"] = e.Type
	if e.RunID != "" {
		data["runId"] = e.RunID
	}

	return Envelope{Event: EventName, Data: data}
}

// Marshal encodes the event envelope as JSON
func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e.Envelope())
}

// Notifier pushes progress events to observers.
// Implementations must be safe for concurrent use.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// Multi fans an event out to every notifier and joins their errors
type Multi []Notifier

// Notify delivers the event to every notifier, even when some fail
func (m Multi) Notify(ctx context.Context, event Event) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards every event
type Nop struct{}

// Notify does nothing
func (Nop) Notify(context.Context, Event) error { return nil }
