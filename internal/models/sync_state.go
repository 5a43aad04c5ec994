package models

import "time"

// SyncState tracks the last event seen per channel, so a restart knows how
// stale each region was when the process went down.
type SyncState struct {
	Channel     string    `gorm:"primaryKey;type:text"`
	LastEvent   string    `gorm:"type:text"`
	LastEventAt time.Time `gorm:"type:timestamptz;not null"`
	UpdatedAt   time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (SyncState) TableName() string {
	return "sync_states"
}
