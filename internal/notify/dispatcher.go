package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/baharkarakas/transferflow/internal/metrics"
	"github.com/baharkarakas/transferflow/internal/models"
)

// Submitter runs a job asynchronously and reports false when it could not be queued.
type Submitter interface {
	Submit(func()) bool
}

type Sink struct {
	Name     string
	Notifier Notifier
}

// Dispatcher never blocks the caller and never reports delivery problems back to it:
// every outcome ends up in logs and metrics only.
type Dispatcher struct {
	sinks   []Sink
	pool    Submitter
	timeout time.Duration
	log     *slog.Logger
	now     func() time.Time
}

func NewDispatcher(pool Submitter, log *slog.Logger, timeout time.Duration, sinks ...Sink) *Dispatcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{sinks: sinks, pool: pool, timeout: timeout, log: log, now: time.Now}
}

func (d *Dispatcher) EmitCreated(ownerID string, t models.Transfer) {
	d.emit(ownerID, NewEvent(EventCreated, t, d.now()))
}

func (d *Dispatcher) EmitTransition(ownerID string, t models.Transfer) {
	d.emit(ownerID, NewEvent(EventUpdate, t, d.now()))
}

func (d *Dispatcher) emit(ownerID string, ev Event) {
	for _, s := range d.sinks {
		s := s
		queued := d.pool.Submit(func() { d.deliver(s, ownerID, ev) })
		if !queued {
			metrics.Notifications.WithLabelValues(string(ev.Type), s.Name, "dropped").Inc()
			d.log.Warn("notification dropped, worker queue full",
				"sink", s.Name, "event", ev.Type, "transfer_id", ev.Transfer.ID)
		}
	}
}

func (d *Dispatcher) deliver(s Sink, ownerID string, ev Event) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	defer func() {
		if rec := recover(); rec != nil {
			metrics.Notifications.WithLabelValues(string(ev.Type), s.Name, "failed").Inc()
			d.log.Error("notification sink panicked",
				"sink", s.Name, "event", ev.Type, "owner_id", ownerID, "transfer_id", ev.Transfer.ID, "err", rec)
		}
	}()

	err := s.Notifier.Notify(ctx, ownerID, ev)
	outcome := "delivered"
	switch {
	case err == nil:
	case errors.Is(err, ErrNoSubscribers):
		outcome = "no_subscribers"
		d.log.Debug("no live channel, client will reconcile by polling",
			"sink", s.Name, "owner_id", ownerID, "transfer_id", ev.Transfer.ID)
	default:
		outcome = "failed"
		d.log.Error("notification failed",
			"sink", s.Name, "event", ev.Type, "owner_id", ownerID, "transfer_id", ev.Transfer.ID, "err", err)
	}
	metrics.Notifications.WithLabelValues(string(ev.Type), s.Name, outcome).Inc()
}
