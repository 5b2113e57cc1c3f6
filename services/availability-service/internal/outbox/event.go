package outbox

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event is the domain event envelope written to the outbox table.
// The Kafka topic name equals EventType, one topic per event.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

const (
	AggregateRule            = "availability_rule"
	AggregateException       = "availability_exception"
	AggregateCalendarAccount = "calendar_account"
)

const (
	EventRuleCreated         = "availability.rule.created.v1"
	EventRuleUpdated         = "availability.rule.updated.v1"
	EventRuleDeleted         = "availability.rule.deleted.v1"
	EventExceptionCreated    = "availability.exception.created.v1"
	EventExceptionDeleted    = "availability.exception.deleted.v1"
	EventCalendarSyncRequest = "calendar.sync.requested.v1"
	EventCalendarUpdated     = "calendar.account.updated.v1"
	EventCalendarDeleted     = "calendar.account.deleted.v1"
)

// ChangePayload is the body of rule, exception and calendar account change events. Consumers only need the mentor
// to invalidate their view; the record id is carried for tracing.
type ChangePayload struct {
	MentorID   string    `json:"mentor_id"`
	RecordID   string    `json:"record_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// SyncRequestPayload asks the calendar sync collaborator to refresh one account.
type SyncRequestPayload struct {
	AccountID    string     `json:"account_id"`
	MentorID     string     `json:"mentor_id"`
	Provider     string     `json:"provider"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
	RequestedAt  time.Time  `json:"requested_at"`
}

func NewEvent(aggregateType, aggregateID, eventType string, payload any) (Event, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Event{AggregateType: aggregateType, AggregateID: aggregateID, EventType: eventType, Payload: b}, nil
}
