package events

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go"
)

// subjectPrefix is the NATS subject root; the action name is appended,
// e.g. mint.positions.open_position.
const subjectPrefix = "mint.positions."

// NATSPublisher publishes position events to a NATS subject per action.
type NATSPublisher struct {
	nc *nats.Conn
}

func NewNATSPublisher(nc *nats.Conn) *NATSPublisher {
	return &NATSPublisher{nc: nc}
}

// Publish sends the event to mint.positions.<action>. Errors are logged
// and swallowed so a broker outage cannot reject ledger operations.
func (p *NATSPublisher) Publish(_ context.Context, ev PositionEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Error("event marshal failed", "event_id", ev.ID, "err", err)
		return
	}
	subject := subjectPrefix + ev.Action
	if err := p.nc.Publish(subject, data); err != nil {
		slog.Warn("event publish failed", "subject", subject, "event_id", ev.ID, "err", err)
	}
}
