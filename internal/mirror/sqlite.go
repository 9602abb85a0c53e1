// Package mirror provides the durable local snapshot of the session list used
// for offline continuity. Two backends are available: an embedded SQLite file
// (default) and Redis. Both hold a full snapshot plus the last-selected
// session id, with no expiry.
package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"aiva-chat-client/internal/chat"
)

// sessionRecord stores one mirrored session. The session body is kept as an
// opaque JSON payload so the mirror never lags behind model changes; Position
// preserves the snapshot ordering.
type sessionRecord struct {
	ID        uint64         `gorm:"primaryKey;autoIncrement"`
	UserID    string         `gorm:"type:varchar(64);index:idx_mirror_user_pos,priority:1;not null"`
	SessionID string         `gorm:"type:varchar(64);uniqueIndex;not null"`
	Position  int            `gorm:"index:idx_mirror_user_pos,priority:2;not null"`
	Payload   datatypes.JSON `gorm:"not null"`
	UpdatedAt time.Time
}

func (sessionRecord) TableName() string { return "mirror_sessions" }

type stateRecord struct {
	UserID           string `gorm:"primaryKey;type:varchar(64)"`
	CurrentSessionID string `gorm:"type:varchar(64)"`
	UpdatedAt        time.Time
}

func (stateRecord) TableName() string { return "mirror_state" }

// SQLite is the embedded-file mirror backend.
type SQLite struct {
	db *gorm.DB
}

// OpenSQLite opens (and migrates) the mirror database at path. Use
// "file::memory:?cache=shared" for an in-memory mirror.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	return NewSQLite(db)
}

// NewSQLite wraps an existing gorm handle; it migrates the mirror tables.
func NewSQLite(db *gorm.DB) (*SQLite, error) {
	if err := db.AutoMigrate(&sessionRecord{}, &stateRecord{}); err != nil {
		return nil, err
	}
	return &SQLite{db: db}, nil
}

// SaveSnapshot replaces the stored snapshot for userID in one transaction.
func (m *SQLite) SaveSnapshot(ctx context.Context, userID string, sessions []*chat.Session) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).Delete(&sessionRecord{}).Error; err != nil {
			return err
		}
		for i, s := range sessions {
			payload, err := json.Marshal(s)
			if err != nil {
				return err
			}
			rec := sessionRecord{
				UserID:    userID,
				SessionID: s.ID,
				Position:  i,
				Payload:   datatypes.JSON(payload),
			}
			if err := tx.Create(&rec).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadSnapshot returns the last stored snapshot in its original order. A user
// with no snapshot gets an empty list, not an error.
func (m *SQLite) LoadSnapshot(ctx context.Context, userID string) ([]*chat.Session, error) {
	var recs []sessionRecord
	if err := m.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("position ASC").
		Find(&recs).Error; err != nil {
		return nil, err
	}
	sessions := make([]*chat.Session, 0, len(recs))
	for i := range recs {
		var s chat.Session
		if err := json.Unmarshal(recs[i].Payload, &s); err != nil {
			return nil, err
		}
		sessions = append(sessions, &s)
	}
	return sessions, nil
}

func (m *SQLite) SaveCurrentSession(ctx context.Context, userID, sessionID string) error {
	rec := stateRecord{UserID: userID, CurrentSessionID: sessionID}
	return m.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"current_session_id", "updated_at"}),
	}).Create(&rec).Error
}

// CurrentSession returns the last-selected session id, or "" when none was
// ever recorded.
func (m *SQLite) CurrentSession(ctx context.Context, userID string) (string, error) {
	var rec stateRecord
	err := m.db.WithContext(ctx).First(&rec, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return rec.CurrentSessionID, nil
}
