package store

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Database wraps the GORM DB handle and exposes repository helpers.
type Database struct {
	gorm *gorm.DB
	mu   sync.Mutex
}

// Open initializes the SQLite-backed database at the provided path.
func Open(path string, silent bool) (*Database, error) {
	cfg := &gorm.Config{}
	if silent {
		cfg.Logger = logger.Default.LogMode(logger.Silent)
	}
	db, err := gorm.Open(sqlite.Open(path), cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.AutoMigrate(&CheckpointRecord{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	if err := db.Exec("PRAGMA journal_mode=WAL").Error; err != nil {
		logrus.WithError(err).Warn("enable WAL mode")
	}
	if err := db.Exec("PRAGMA synchronous=NORMAL").Error; err != nil {
		logrus.WithError(err).Warn("set synchronous pragma")
	}
	if err := applyIndexes(db); err != nil {
		return nil, fmt.Errorf("apply indexes: %w", err)
	}
	return &Database{gorm: db}, nil
}

// Close closes the underlying database connection.
func (d *Database) Close() error {
	if d == nil {
		return nil
	}
	sqlDB, err := d.gorm.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveCheckpoint inserts an audit row, assigning an ID when none is set.
func (d *Database) SaveCheckpoint(record *CheckpointRecord) error {
	if d == nil {
		return errors.New("database is nil")
	}
	if record == nil {
		return errors.New("checkpoint record is nil")
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	record.CheckpointName = strings.TrimSpace(record.CheckpointName)
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gorm.Create(record).Error
}

// GetCheckpoint returns a single audit row by ID.
func (d *Database) GetCheckpoint(id string) (*CheckpointRecord, error) {
	if d == nil {
		return nil, errors.New("database is nil")
	}
	var record CheckpointRecord
	if err := d.gorm.First(&record, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// ListCheckpoints returns audit rows, newest first, applying optional filters.
func (d *Database) ListCheckpoints(opts CheckpointQuery) ([]CheckpointRecord, int64, error) {
	if d == nil {
		return nil, 0, errors.New("database is nil")
	}
	base := d.gorm.Model(&CheckpointRecord{})
	if name := strings.TrimSpace(opts.CheckpointName); name != "" {
		base = base.Where("checkpoint_name = ?", name)
	}
	if decision := strings.TrimSpace(opts.Decision); decision != "" {
		base = base.Where("decision = ?", strings.ToUpper(decision))
	}
	if user := strings.TrimSpace(opts.UserID); user != "" {
		base = base.Where("user_id = ?", user)
	}

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query := base.Order("created_at DESC").Offset(opts.Offset)
	if opts.Limit > 0 {
		query = query.Limit(opts.Limit)
	}
	var rows []CheckpointRecord
	if err := query.Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// CountByDecision aggregates audit rows per decision.
func (d *Database) CountByDecision() ([]DecisionCount, error) {
	if d == nil {
		return nil, errors.New("database is nil")
	}
	var rows []DecisionCount
	err := d.gorm.Model(&CheckpointRecord{}).
		Select("decision, COUNT(*) AS total").
		Group("decision").
		Order("decision ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("count by decision: %w", err)
	}
	return rows, nil
}

func applyIndexes(db *gorm.DB) error {
	stmts := []string{
		"CREATE INDEX IF NOT EXISTS idx_checkpoint_records_name_created ON checkpoint_records(checkpoint_name, created_at)",
		"CREATE INDEX IF NOT EXISTS idx_checkpoint_records_decision_created ON checkpoint_records(decision, created_at)",
	}
	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}
