package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event kinds, also used as routing keys.
const (
	KindDuesCreated     = "dues.created"
	KindCashRecorded    = "cash.recorded"
	KindAttendanceAlert = "attendance.alert"
	KindDuesOverdue     = "dues.overdue"
)

// Kinds lists every event kind the queue is bound to.
var Kinds = []string{KindDuesCreated, KindCashRecorded, KindAttendanceAlert, KindDuesOverdue}

// LedgerEvent is the envelope of every message on the exchange.
type LedgerEvent struct {
	ID         string          `json:"id"`
	Kind       string          `json:"kind"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

type DuesCreatedPayload struct {
	MemberID    int64   `json:"member_id"`
	Year        int     `json:"year"`
	Months      []int   `json:"months"`
	Status      string  `json:"status"`
	AmountCents int64   `json:"amount_cents"`
	DuesIDs     []int64 `json:"dues_ids"`
}

type CashRecordedPayload struct {
	MovementID  int64  `json:"movement_id"`
	Type        string `json:"type"`
	Category    string `json:"category"`
	AmountCents int64  `json:"amount_cents"`
	Month       int    `json:"month"`
	Year        int    `json:"year"`
}

type AttendanceAlertPayload struct {
	MemberID      int64  `json:"member_id"`
	Name          string `json:"name"`
	DaysSince     int    `json:"days_since"`
	Severity      string `json:"severity"`
	NeverAttended bool   `json:"never_attended"`
}

type DuesOverduePayload struct {
	MemberID   int64    `json:"member_id"`
	Name       string   `json:"name"`
	Months     []string `json:"months"` // YYYY-MM
	Count      int      `json:"count"`
	TotalCents int64    `json:"total_cents"`
	Critical   bool     `json:"critical"`
}

// NewLedgerEvent wraps payload in an envelope with a fresh id.
func NewLedgerEvent(kind string, payload any) (*LedgerEvent, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", kind, err)
	}
	return &LedgerEvent{
		ID:         uuid.NewString(),
		Kind:       kind,
		OccurredAt: time.Now().UTC(),
		Payload:    raw,
	}, nil
}

// ToJSON converts the message to JSON bytes
func (e *LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// Decode unmarshals the payload into v.
func (e *LedgerEvent) Decode(v any) error {
	return json.Unmarshal(e.Payload, v)
}

// LedgerEventFromJSON creates an event from JSON bytes. Envelopes without
// a kind are rejected.
func LedgerEventFromJSON(data []byte) (*LedgerEvent, error) {
	var ev LedgerEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	if ev.Kind == "" {
		return nil, fmt.Errorf("event %q has no kind", ev.ID)
	}
	return &ev, nil
}
