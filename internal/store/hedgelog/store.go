// Package hedgelog persists hedge alerts to SQLite so order history
// survives restarts. Hedger run state deliberately does not persist;
// every hedger is STOPPED on process start.
package hedgelog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"hedgerd/internal/hedger"
	"hedgerd/internal/logger"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	_ "modernc.org/sqlite"
)

// Store implements hedger.Sink over Gorm + SQLite.
type Store struct {
	db *gorm.DB
}

func NewStore(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("hedgelog: store path cannot be empty")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Dialector{DriverName: "sqlite", DSN: dsn}, &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, fmt.Errorf("hedgelog: opening %s: %w", path, err)
	}
	if err := db.AutoMigrate(&AlertModel{}); err != nil {
		return nil, fmt.Errorf("hedgelog: migrating: %w", err)
	}
	return &Store{db: db}, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// Record upserts one alert state by alert ID. Store failures must not
// disturb the hedge loop, so they are logged and swallowed.
func (s *Store) Record(a hedger.Alert) {
	if s == nil || s.db == nil {
		return
	}
	now := time.Now().Unix()
	detail, err := json.Marshal(map[string]string{"detail": a.Detail})
	if err != nil {
		detail = []byte("{}")
	}
	model := AlertModel{
		AlertID:       a.ID,
		PositionKey:   a.Key,
		Instrument:    a.Instrument,
		Action:        string(a.Action),
		Quantity:      a.Quantity,
		OrderType:     a.OrderType,
		Status:        string(a.Status),
		FillPrice:     a.FillPrice,
		Detail:        detail,
		TimestampUnix: a.Timestamp.Unix(),
		CreatedAtUnix: now,
		UpdatedAtUnix: now,
	}
	err = s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "alert_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"status", "fill_price", "detail", "updated_at",
		}),
	}).Create(&model).Error
	if err != nil {
		logger.Warnf("hedgelog: persisting alert %s failed: %v", a.ID, err)
	}
}

// Recent returns up to limit alerts ordered newest first.
func (s *Store) Recent(limit int) ([]AlertModel, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows []AlertModel
	err := s.db.Order("ts DESC, id DESC").Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("hedgelog: listing alerts: %w", err)
	}
	return rows, nil
}

// RecentForKey narrows Recent to one position key.
func (s *Store) RecentForKey(key string, limit int) ([]AlertModel, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows []AlertModel
	err := s.db.Where("position_key = ?", key).
		Order("ts DESC, id DESC").Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("hedgelog: listing alerts for %s: %w", key, err)
	}
	return rows, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
