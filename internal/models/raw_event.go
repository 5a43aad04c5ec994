package models

import (
	"time"

	"gorm.io/datatypes"
)

// RawEvent is one inbound websocket frame kept for debugging and replay.
type RawEvent struct {
	ID         uint64         `gorm:"primaryKey;autoIncrement"`
	Channel    string         `gorm:"type:text;index"`
	EventType  string         `gorm:"type:text;not null"`
	ReceivedAt time.Time      `gorm:"type:timestamptz;not null;index"`
	Payload    datatypes.JSON `gorm:"type:jsonb;not null"`
}

func (RawEvent) TableName() string {
	return "raw_events"
}
