// internal/storage/models/config.go
package models

import "time"

// RunConfig stores the last used field values of a task.
type RunConfig struct {
	TaskKey   string            `gorm:"primaryKey;type:varchar(100)"`
	Values    map[string]string `gorm:"column:field_values;serializer:json"`
	UpdatedAt time.Time
}

// FieldHistory is one remembered input value for autocomplete.
type FieldHistory struct {
	ID       uint      `gorm:"primarykey"`
	TaskKey  string    `gorm:"not null;uniqueIndex:idx_history_value,priority:1;type:varchar(100)"`
	Field    string    `gorm:"not null;uniqueIndex:idx_history_value,priority:2;type:varchar(100)"`
	Value    string    `gorm:"not null;uniqueIndex:idx_history_value,priority:3"`
	LastUsed time.Time `gorm:"not null;index"`
}
