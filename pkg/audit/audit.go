package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	EventExecute     = "execute"
	EventCallback    = "callback"
	EventPoolSpawn   = "pool_spawn"
	EventPoolRecycle = "pool_recycle"
	EventCredSet     = "credential_set"
	EventCredDel     = "credential_del"
)

type Entry struct {
	ID        string    `gorm:"primaryKey;column:id"`
	Timestamp time.Time `gorm:"column:timestamp;not null;index:idx_audit_timestamp"`
	EventType string    `gorm:"column:event_type;not null"`
	RequestID string    `gorm:"column:request_id;not null;default:''"`
	Operation string    `gorm:"column:operation;not null;default:''"`
	Outcome   string    `gorm:"column:outcome;not null;default:''"`
	Detail    string    `gorm:"column:detail;not null;default:''"`
}

func (Entry) TableName() string {
	return "audit_log"
}

type Logger struct {
	db *gorm.DB
}

func New(db *gorm.DB) (*Logger, error) {
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("audit: running migrations: %w", err)
	}

	return &Logger{db: db}, nil
}

func (l *Logger) Log(ctx context.Context, eventType, requestID, operation, outcome string, detail any) error {
	var detailStr string
	switch v := detail.(type) {
	case string:
		detailStr = v
	case nil:
	default:
		b, err := json.Marshal(v)
		if err != nil {
			detailStr = fmt.Sprintf("%v", v)
		} else {
			detailStr = string(b)
		}
	}

	entry := &Entry{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		RequestID: requestID,
		Operation: operation,
		Outcome:   outcome,
		Detail:    detailStr,
	}

	return l.db.WithContext(ctx).Create(entry).Error
}

type Filter struct {
	EventType string
	RequestID string
	Operation string
	Since     time.Time
	Until     time.Time
	Limit     int
}

func (l *Logger) Query(ctx context.Context, f Filter) ([]Entry, error) {
	q := l.db.WithContext(ctx)

	if f.EventType != "" {
		q = q.Where("event_type = ?", f.EventType)
	}
	if f.RequestID != "" {
		q = q.Where("request_id = ?", f.RequestID)
	}
	if f.Operation != "" {
		q = q.Where("operation = ?", f.Operation)
	}
	if !f.Since.IsZero() {
		q = q.Where("timestamp >= ?", f.Since)
	}
	if !f.Until.IsZero() {
		q = q.Where("timestamp <= ?", f.Until)
	}

	q = q.Order("timestamp DESC")

	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	var entries []Entry
	err := q.Find(&entries).Error
	return entries, err
}
