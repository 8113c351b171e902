package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const EventUpdate = "UPDATE"

// Row-level change from the change feed (shape of realtime postgres_changes data)
type ChangeEvent struct {
	Type            string          `json:"type"` // INSERT|UPDATE|DELETE
	Schema          string          `json:"schema"`
	Table           string          `json:"table"`
	CommitTimestamp string          `json:"commit_timestamp,omitempty"`
	Record          json.RawMessage `json:"record"`               // new row
	OldRecord       json.RawMessage `json:"old_record,omitempty"` // may hold only the PK
}

// Columns of teams the relay cares about
type TeamRow struct {
	ContactPerson    string `json:"contact_person"`
	Name             string `json:"name"`
	ApprovedInSanity *bool  `json:"approved_in_sanity"`
}

func (r *TeamRow) Approved() bool {
	return r.ApprovedInSanity != nil && *r.ApprovedInSanity
}

// Decode new and old rows; old row is zero if absent
func (e *ChangeEvent) Teams() (newRow, oldRow TeamRow, err error) {
	if len(e.Record) == 0 {
		return newRow, oldRow, fmt.Errorf("change event has no record")
	}
	if err = json.Unmarshal(e.Record, &newRow); err != nil {
		return newRow, oldRow, fmt.Errorf("decode record: %w", err)
	}

	if len(e.OldRecord) > 0 && string(e.OldRecord) != "null" {
		if err = json.Unmarshal(e.OldRecord, &oldRow); err != nil {
			return newRow, oldRow, fmt.Errorf("decode old_record: %w", err)
		}
	}

	return newRow, oldRow, nil
}

type Status string

const (
	StatusSent       Status = "sent"
	StatusFailed     Status = "failed"
	StatusSuppressed Status = "suppressed"
)

// One notify attempt; audit only, never read back for dedup
type NotificationRecord struct {
	ID        uuid.UUID `json:"id"`
	Recipient string    `json:"recipient"`
	TeamName  string    `json:"team_name"`
	Status    Status    `json:"status"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}

func NewNotificationRecord(recipient, teamName string, status Status, at time.Time) NotificationRecord {
	return NotificationRecord{
		ID:        uuid.New(),
		Recipient: recipient,
		TeamName:  teamName,
		Status:    status,
		At:        at.UTC(),
	}
}
