// Package events fans position lifecycle events out to downstream
// consumers over NATS and WebSocket. Delivery is best effort: a failed
// publish is logged and never fails the operation that produced it.
package events

import (
	"context"
	"time"

	"github.com/synthos/mint-engine/internal/contract"
	"github.com/synthos/mint-engine/internal/model"
)

// PositionEvent describes one committed ledger mutation.
type PositionEvent struct {
	ID           string                 `json:"id"`     // unique event id
	Action       string                 `json:"action"` // open_position, deposit, withdraw, mint
	PositionIdx  uint64                 `json:"position_idx"`
	Owner        string                 `json:"owner"`
	Attributes   []model.Attribute      `json:"attributes"`
	Instructions []contract.Instruction `json:"instructions,omitempty"`
	Timestamp    time.Time              `json:"timestamp"`
}

// Publisher delivers committed events to one downstream channel.
type Publisher interface {
	Publish(ctx context.Context, ev PositionEvent)
}

// Fanout publishes each event to every member in order.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, ev PositionEvent) {
	for _, p := range f {
		p.Publish(ctx, ev)
	}
}
