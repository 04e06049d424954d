// Package notify fans transfer events out to the configured sinks after the write has committed.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/baharkarakas/transferflow/internal/models"
	"github.com/baharkarakas/transferflow/internal/sanitize"
)

type EventType string

const (
	EventCreated EventType = "transfer_created"
	EventUpdate  EventType = "transfer_update"
)

// Event is the payload every sink receives. Transfer has the same shape as HTTP and poll responses.
type Event struct {
	Type      EventType             `json:"type"`
	Transfer  sanitize.WireTransfer `json:"transfer"`
	Message   string                `json:"message"`
	Timestamp string                `json:"timestamp"`
}

// ErrNoSubscribers is returned by a sink that has nobody to deliver to. It is not a failure.
var ErrNoSubscribers = errors.New("no live subscribers")

type Notifier interface {
	Notify(ctx context.Context, ownerID string, ev Event) error
}

var messages = map[models.TransferStatus]string{
	models.TransferPending:    "Your transfer is awaiting approval",
	models.TransferProcessing: "Your transfer has been approved and is being processed",
	models.TransferCompleted:  "Your transfer has been completed",
	models.TransferFailed:     "Your transfer could not be completed",
	models.TransferRejected:   "Your transfer was rejected",
}

// Message is the user-facing line for a status.
func Message(s models.TransferStatus) string {
	if m, ok := messages[s]; ok {
		return m
	}
	return "Your transfer status changed"
}

func NewEvent(typ EventType, t models.Transfer, at time.Time) Event {
	return Event{
		Type:      typ,
		Transfer:  sanitize.Transfer(t),
		Message:   Message(t.Status),
		Timestamp: sanitize.Timestamp(at),
	}
}
