package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventType identifies a lifecycle event on a research call.
type EventType string

const (
	EventCreated              EventType = "CREATED"
	EventUpdated              EventType = "UPDATED"
	EventSubmittedForApproval EventType = "SUBMITTED_FOR_APPROVAL"
	EventApproved             EventType = "APPROVED"
	EventRejected             EventType = "REJECTED"
	EventPublished            EventType = "PUBLISHED"
	EventTarget1Hit           EventType = "TARGET_1_HIT"
	EventTarget2Hit           EventType = "TARGET_2_HIT"
	EventTarget3Hit           EventType = "TARGET_3_HIT"
	EventStopLossHit          EventType = "STOP_LOSS_HIT"
	EventManuallyExited       EventType = "MANUALLY_EXITED"
	EventExpired              EventType = "EXPIRED"
	EventClosed               EventType = "CLOSED"
)

// ResearchCallEvent is an append-only fact about a call's lifecycle. Events
// are never mutated or deleted; they form the audit trail and the trigger
// source for notification fan-out.
type ResearchCallEvent struct {
	ID           int64               `json:"id"`
	CallID       int64               `json:"call_id"`
	EventType    EventType           `json:"event_type"`
	PriceAtEvent decimal.NullDecimal `json:"price_at_event,omitempty"`
	Notes        string              `json:"notes,omitempty"`
	TriggeredBy  int64               `json:"triggered_by,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
}
