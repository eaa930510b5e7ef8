package models

import (
	"time"

	"gorm.io/datatypes"
)

type EventKind string

const (
	EventCreate      EventKind = "create"
	EventSubmit      EventKind = "submit"
	EventAck         EventKind = "ack"
	EventReject      EventKind = "reject"
	EventFill        EventKind = "fill"
	EventSLTrigger   EventKind = "sl_trigger"
	EventCancel      EventKind = "cancel"
	EventError       EventKind = "error"
	EventResumeCheck EventKind = "resume_check"
)

// ExecEvent is an append-only audit record. FromStatus is empty only for the
// creation event.
type ExecEvent struct {
	ID         uint64         `gorm:"primaryKey;autoIncrement" json:"id"`
	PlanID     string         `gorm:"type:varchar(64);not null;index:idx_exec_events_plan_at,priority:1" json:"plan_id"`
	At         time.Time      `gorm:"not null;index:idx_exec_events_plan_at,priority:2" json:"at"`
	FromStatus PlanStatus     `gorm:"type:varchar(20);not null;default:''" json:"from_status"`
	ToStatus   PlanStatus     `gorm:"type:varchar(20);not null" json:"to_status"`
	Event      EventKind      `gorm:"type:varchar(20);not null;index" json:"event"`
	Reason     string         `gorm:"type:text" json:"reason,omitempty"`
	Receipt    datatypes.JSON `json:"receipt,omitempty"`
}

func (ExecEvent) TableName() string {
	return "exec_events"
}
