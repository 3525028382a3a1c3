package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/crediflow/bankbridge/internal/app/ports"
)

// Dispatcher routes an authenticated event to its workflow and owns the
// event's acknowledgment lifecycle. Exactly one terminal status out of
// PROCESSED, ERROR and FAILED is reported per event, after workflow
// completion.
type Dispatcher struct {
	acks ports.EventAcknowledger
	link *LinkWorkflow
	sync *SyncWorkflow
	log  *slog.Logger

	wg sync.WaitGroup
}

// NewDispatcher constructs a dispatcher over the two workflows.
func NewDispatcher(acks ports.EventAcknowledger, link *LinkWorkflow, syncWorkflow *SyncWorkflow, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{acks: acks, link: link, sync: syncWorkflow, log: log}
}

// Dispatch starts processing the event in its own goroutine so the webhook
// response never waits on workflow completion. There is no cooperative
// cancellation: once accepted, an event runs to its terminal status.
func (d *Dispatcher) Dispatch(event InboundEvent, subscription ports.Subscription, account ports.ServiceAccount) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.process(context.Background(), event, subscription, account)
	}()
}

// Drain waits for all in-flight events. Used on shutdown and by tests.
func (d *Dispatcher) Drain() {
	d.wg.Wait()
}

func (d *Dispatcher) process(ctx context.Context, event InboundEvent, subscription ports.Subscription, account ports.ServiceAccount) {
	parsed, err := ParseEvent(event)
	if err != nil {
		if errors.Is(err, ErrUnknownEventName) {
			d.log.Warn("unroutable event", "event_id", event.ID, "event_name", event.Name, "subscription_id", subscription.ID)
			d.acknowledge(ctx, account, event, ports.AckFailed)
			return
		}
		d.log.Error("event processing failed", "event_id", event.ID, "event_name", event.Name, "subscription_id", subscription.ID, "error", err)
		d.acknowledge(ctx, account, event, ports.AckError)
		return
	}

	switch v := parsed.(type) {
	case LinkRequiredEvent:
		err = d.link.Run(ctx, account, v.CustomerID)
	case BankDetailsRequiredEvent:
		err = d.sync.Run(ctx, account, v.CustomerID, v.AnalysisID)
	}

	if err != nil {
		d.log.Error("event processing failed", "event_id", event.ID, "event_name", event.Name, "subscription_id", subscription.ID, "error", err)
		d.acknowledge(ctx, account, event, ports.AckError)
		return
	}
	d.acknowledge(ctx, account, event, ports.AckProcessed)
}

// acknowledge is fire-and-forget: a failed acknowledgment is logged, never
// retried or escalated.
func (d *Dispatcher) acknowledge(ctx context.Context, account ports.ServiceAccount, event InboundEvent, status ports.AckStatus) {
	if err := d.acks.UpdateEvent(ctx, account, event.ID, status); err != nil {
		d.log.Error("event acknowledgment failed", "event_id", event.ID, "status", string(status), "error", err)
	}
}
