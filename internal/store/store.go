// Package store is an optional durable diagnostics sink: it persists
// Gate Pipeline rejections and AlertEvaluator verdicts for offline
// analysis. It is never read back into process state — the detector's
// own logic stays entirely in-memory (spec.md Non-goals) — this package
// exists purely for operators reviewing history after the fact.
//
// Grounded on the teacher's internal/db.MySQLRecorder: same
// gorm.Open/AutoMigrate/Create shape, renamed from asset-snapshot
// accounting records to rejection/alert diagnostics records.
package store

import (
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// RejectionRecord is the database model for one Gate Pipeline rejection.
type RejectionRecord struct {
	ID         uint      `gorm:"primaryKey;autoIncrement"`
	Timestamp  time.Time `gorm:"index;not null"`
	Chain      string    `gorm:"index;not null"`
	MarketType string    `gorm:"not null"`
	Address    string    `gorm:"index;not null"`
	Reason     string    `gorm:"not null"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
}

// TableName specifies the table name for GORM.
func (RejectionRecord) TableName() string {
	return "rejections"
}

// AlertRecord is the database model for one dispatched alert.
type AlertRecord struct {
	ID           uint      `gorm:"primaryKey;autoIncrement"`
	AlertID      string    `gorm:"index;not null"`
	Timestamp    time.Time `gorm:"index;not null"`
	Chain        string    `gorm:"index;not null"`
	MarketType   string    `gorm:"not null"`
	Address      string    `gorm:"index;not null"`
	Verdict      string    `gorm:"not null"`
	Score        int       `gorm:"not null"`
	LastTradeUsd float64   `gorm:"not null"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
}

// TableName specifies the table name for GORM.
func (AlertRecord) TableName() string {
	return "alerts"
}

// Recorder persists diagnostics records using GORM and MySQL.
type Recorder struct {
	db *gorm.DB
}

// NewRecorder opens a MySQL connection at dsn and migrates the schema.
// dsn format: "user:password@tcp(host:port)/dbname?charset=utf8mb4&parseTime=True&loc=Local".
func NewRecorder(dsn string) (*Recorder, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("store: connect to MySQL: %w", err)
	}
	return NewRecorderWithDB(db)
}

// NewRecorderWithDB wraps an existing GORM DB instance; NewRecorder calls
// it with the MySQL connection it opens.
func NewRecorderWithDB(db *gorm.DB) (*Recorder, error) {
	if err := db.AutoMigrate(&RejectionRecord{}, &AlertRecord{}); err != nil {
		return nil, fmt.Errorf("store: migrate schema: %w", err)
	}
	return &Recorder{db: db}, nil
}

// RecordRejection persists one Gate Pipeline rejection.
func (r *Recorder) RecordRejection(chain, marketType, address, reason string) error {
	rec := RejectionRecord{
		Timestamp:  time.Now(),
		Chain:      chain,
		MarketType: marketType,
		Address:    address,
		Reason:     reason,
	}
	if result := r.db.Create(&rec); result.Error != nil {
		return fmt.Errorf("store: record rejection: %w", result.Error)
	}
	return nil
}

// RecordAlert persists one dispatched alert verdict.
func (r *Recorder) RecordAlert(alertID, chain, marketType, address, verdict string, score int, lastTradeUsd float64) error {
	rec := AlertRecord{
		AlertID:      alertID,
		Timestamp:    time.Now(),
		Chain:        chain,
		MarketType:   marketType,
		Address:      address,
		Verdict:      verdict,
		Score:        score,
		LastTradeUsd: lastTradeUsd,
	}
	if result := r.db.Create(&rec); result.Error != nil {
		return fmt.Errorf("store: record alert: %w", result.Error)
	}
	return nil
}

// RejectionCountByReason returns the number of rejections recorded for
// reason. Nothing in the running pipeline calls it.
func (r *Recorder) RejectionCountByReason(reason string) (int64, error) {
	var count int64
	result := r.db.Model(&RejectionRecord{}).Where("reason = ?", reason).Count(&count)
	if result.Error != nil {
		return 0, fmt.Errorf("store: count rejections: %w", result.Error)
	}
	return count, nil
}

// Close closes the underlying database connection.
func (r *Recorder) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("store: underlying DB: %w", err)
	}
	return sqlDB.Close()
}
