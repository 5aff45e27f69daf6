// internal/storage/models/run.go
package models

import (
	"time"

	"github.com/nregabot/nregabot/internal/domain"
)

// RunRecord is the history entry of one finished run.
type RunRecord struct {
	BaseModel
	RunID        string    `gorm:"not null;uniqueIndex;type:varchar(36)"`
	TaskKey      string    `gorm:"not null;index;type:varchar(100)"`
	State        string    `gorm:"not null;type:varchar(20)"`
	Status       string    `gorm:"type:text"`
	Error        string    `gorm:"type:text"`
	StartedAt    time.Time `gorm:"index"`
	FinishedAt   time.Time
	SuccessCount int   `gorm:"default:0"`
	FailedCount  int   `gorm:"default:0"`
	SkippedCount int   `gorm:"default:0"`
	ElapsedMS    int64 `gorm:"default:0"`
}

// RunFromEvent builds the history entry for a finished run.
func RunFromEvent(ev domain.FinishedEvent) *RunRecord {
	r := &RunRecord{
		RunID:        ev.RunID,
		TaskKey:      string(ev.Key),
		State:        ev.State.String(),
		Status:       ev.Message,
		StartedAt:    ev.Timestamp.Add(-ev.Elapsed),
		FinishedAt:   ev.Timestamp,
		SuccessCount: ev.Tally.Success,
		FailedCount:  ev.Tally.Failed,
		SkippedCount: ev.Tally.Skipped,
		ElapsedMS:    ev.Elapsed.Milliseconds(),
	}
	if ev.Err != nil {
		r.Error = ev.Err.Error()
	}
	return r
}

func (r *RunRecord) Tally() domain.Tally {
	return domain.Tally{Success: r.SuccessCount, Failed: r.FailedCount, Skipped: r.SkippedCount}
}

func (r *RunRecord) Elapsed() time.Duration {
	return time.Duration(r.ElapsedMS) * time.Millisecond
}

// ResultRow is one persisted result record. Seq keeps the reporting order.
type ResultRow struct {
	ID        uint      `gorm:"primarykey"`
	RunID     string    `gorm:"not null;index:idx_result_run_seq,priority:1;type:varchar(36)"`
	Seq       int       `gorm:"not null;index:idx_result_run_seq,priority:2"`
	TaskKey   string    `gorm:"not null;type:varchar(100)"`
	Item      string    `gorm:"not null"`
	Outcome   string    `gorm:"not null;type:varchar(20)"`
	Detail    string    `gorm:"type:text"`
	Timestamp time.Time `gorm:"not null"`
}

func NewResultRow(seq int, rec domain.ResultRecord) ResultRow {
	return ResultRow{
		RunID:     rec.RunID,
		Seq:       seq,
		TaskKey:   string(rec.Key),
		Item:      rec.Item,
		Outcome:   string(rec.Outcome),
		Detail:    rec.Detail,
		Timestamp: rec.Timestamp,
	}
}

func (r ResultRow) Record() domain.ResultRecord {
	return domain.ResultRecord{
		RunID:     r.RunID,
		Key:       domain.Key(r.TaskKey),
		Item:      r.Item,
		Outcome:   domain.Outcome(r.Outcome),
		Detail:    r.Detail,
		Timestamp: r.Timestamp,
	}
}
