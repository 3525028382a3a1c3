package services

import (
	"encoding/json"
	"errors"
	"fmt"
)

const (
	// EventLinkRequired asks for a bank-link redirect URL.
	EventLinkRequired = "AGGREGATOR_LINK_REQUIRED"
	// EventBankDetailsRequired asks for a full bank-data synchronization.
	EventBankDetailsRequired = "BANK_DETAILS_REQUIRED"
)

// ErrUnknownEventName indicates an event name outside the recognized set.
// Upstream validation should make this unreachable; such events are marked
// FAILED and never retried.
var ErrUnknownEventName = errors.New("unknown event name")

// InboundEvent is one delivery from the lending platform's event bus,
// immutable once received.
type InboundEvent struct {
	ID             string
	SubscriptionID string
	Name           string
	Payload        json.RawMessage
}

// WorkflowEvent is the closed set of routable event variants.
type WorkflowEvent interface {
	isWorkflowEvent()
}

// LinkRequiredEvent carries the payload of an AGGREGATOR_LINK_REQUIRED event.
type LinkRequiredEvent struct {
	CustomerID string
}

// BankDetailsRequiredEvent carries the payload of a BANK_DETAILS_REQUIRED
// event.
type BankDetailsRequiredEvent struct {
	CustomerID string
	AnalysisID string
}

func (LinkRequiredEvent) isWorkflowEvent()        {}
func (BankDetailsRequiredEvent) isWorkflowEvent() {}

// ParseEvent decodes an inbound event into its typed variant. Unrecognized
// names return ErrUnknownEventName.
func ParseEvent(event InboundEvent) (WorkflowEvent, error) {
	switch event.Name {
	case EventLinkRequired:
		var payload struct {
			CustomerID string `json:"customerId"`
		}
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", event.Name, err)
		}
		return LinkRequiredEvent{CustomerID: payload.CustomerID}, nil
	case EventBankDetailsRequired:
		var payload struct {
			CustomerID string `json:"customerId"`
			AnalysisID string `json:"analysisId"`
		}
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", event.Name, err)
		}
		return BankDetailsRequiredEvent{CustomerID: payload.CustomerID, AnalysisID: payload.AnalysisID}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventName, event.Name)
	}
}
