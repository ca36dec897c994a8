package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gmsas95/medwatch/internal/config"
	_ "github.com/glebarez/go-sqlite" // Pure Go SQLite driver
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrLogExists is returned by CreateMedicationLog when the occurrence is already logged.
	ErrLogExists = errors.New("store: medication log already exists")
)

// Store provides access to the patient documents (gorm) and run history (BadgerDB)
type Store struct {
	db         *gorm.DB
	badger     *badger.DB
	historyTTL time.Duration
	now        func() time.Time
}

// New opens the configured relational database and the run history store
func New(cfg *config.Config) (*Store, error) {
	db, err := openDB(&cfg.Storage)
	if err != nil {
		return nil, err
	}

	badgerPath := cfg.Storage.BadgerPath
	if badgerPath == "" {
		badgerPath = filepath.Join(cfg.Storage.DataDir, "badger")
	}
	badgerOpts := badger.DefaultOptions(badgerPath).
		WithLogger(nil).
		WithNumVersionsToKeep(1).
		WithCompactL0OnClose(true).
		WithValueLogFileSize(16 << 20).
		WithMemTableSize(16 << 20)

	kv, err := badger.Open(badgerOpts)
	if err != nil {
		closeDB(db)
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}

	s, err := Open(db, kv, cfg.RunHistoryTTL())
	if err != nil {
		_ = kv.Close()
		closeDB(db)
		return nil, err
	}
	return s, nil
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// Open wraps already opened handles and migrates the schema. On error the
// handles are left open for the caller to close.
func Open(db *gorm.DB, kv *badger.DB, historyTTL time.Duration) (*Store, error) {
	if err := db.AutoMigrate(
		&User{},
		&PatientGroup{},
		&Tablet{},
		&MedicationLog{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return &Store{
		db:         db,
		badger:     kv,
		historyTTL: historyTTL,
		now:        time.Now,
	}, nil
}

func openDB(cfg *config.StorageConfig) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
		PrepareStmt:            true,
	}

	if cfg.Driver == "postgres" {
		db, err := gorm.Open(postgres.Open(cfg.PostgresDSN), gormCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres: %w", err)
		}
		return db, nil
	}

	sqlitePath := cfg.SQLitePath
	if sqlitePath == "" {
		sqlitePath = filepath.Join(cfg.DataDir, "medwatch.db")
	}
	return OpenSQLite(sqlitePath, gormCfg)
}

// OpenSQLite opens a SQLite file through the pure Go driver.
func OpenSQLite(path string, gormCfg *gorm.Config) (*gorm.DB, error) {
	sqliteDB, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	sqliteDB.SetMaxOpenConns(10)
	sqliteDB.SetMaxIdleConns(5)
	sqliteDB.SetConnMaxLifetime(time.Hour)

	if gormCfg == nil {
		gormCfg = &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
	}
	db, err := gorm.Open(sqlite.Dialector{Conn: sqliteDB}, gormCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	return db, nil
}

// Close closes all database connections
func (s *Store) Close() error {
	var errs []error
	if s.badger != nil {
		errs = append(errs, s.badger.Close())
	}
	if sqlDB, err := s.db.DB(); err == nil {
		errs = append(errs, sqlDB.Close())
	}
	return errors.Join(errs...)
}

// Ping checks the relational database connection.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// ==================== Read Methods ====================

// ListPatientGroups returns every patient group
func (s *Store) ListPatientGroups(ctx context.Context) ([]PatientGroup, error) {
	var groups []PatientGroup
	err := s.db.WithContext(ctx).Order("id ASC").Find(&groups).Error
	return groups, err
}

// GetPatientGroup retrieves a patient group by ID
func (s *Store) GetPatientGroup(ctx context.Context, id string) (*PatientGroup, error) {
	var group PatientGroup
	if err := s.db.WithContext(ctx).First(&group, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &group, nil
}

// ListTablets returns the tablets of a patient group
func (s *Store) ListTablets(ctx context.Context, groupID string) ([]Tablet, error) {
	var tablets []Tablet
	err := s.db.WithContext(ctx).
		Where("patient_group_id = ?", groupID).
		Order("id ASC").
		Find(&tablets).Error
	return tablets, err
}

// GetUser retrieves a user by ID
func (s *Store) GetUser(ctx context.Context, id string) (*User, error) {
	var user User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

// ==================== Medication Log Methods ====================

// MedicationLogExists reports whether a log with the given ID exists in the group
func (s *Store) MedicationLogExists(ctx context.Context, groupID, logID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&MedicationLog{}).
		Where("patient_group_id = ? AND id = ?", groupID, logID).
		Count(&count).Error
	return count > 0, err
}

// GetMedicationLog retrieves one log
func (s *Store) GetMedicationLog(ctx context.Context, groupID, logID string) (*MedicationLog, error) {
	var log MedicationLog
	err := s.db.WithContext(ctx).
		First(&log, "patient_group_id = ? AND id = ?", groupID, logID).Error
	if err != nil {
		return nil, translate(err)
	}
	return &log, nil
}

// CreateMedicationLog inserts a new log and stamps CreatedAt with the store's
// clock. An existing log is never overwritten; ErrLogExists is returned instead.
func (s *Store) CreateMedicationLog(ctx context.Context, log *MedicationLog) error {
	log.CreatedAt = s.now()

	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(log)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrLogExists
	}
	return nil
}

// ListMedicationLogs returns a group's logs, optionally restricted to one date
func (s *Store) ListMedicationLogs(ctx context.Context, groupID, date string) ([]MedicationLog, error) {
	query := s.db.WithContext(ctx).Where("patient_group_id = ?", groupID)
	if date != "" {
		query = query.Where("date = ?", date)
	}

	var logs []MedicationLog
	err := query.Order("date ASC, created_at ASC").Find(&logs).Error
	return logs, err
}

// ==================== Write Methods (client data) ====================

// SaveUser creates or replaces a user
func (s *Store) SaveUser(ctx context.Context, user *User) error {
	return s.db.WithContext(ctx).Save(user).Error
}

// SavePatientGroup creates or replaces a patient group
func (s *Store) SavePatientGroup(ctx context.Context, group *PatientGroup) error {
	return s.db.WithContext(ctx).Save(group).Error
}

// SaveTablet creates or replaces a tablet
func (s *Store) SaveTablet(ctx context.Context, tablet *Tablet) error {
	return s.db.WithContext(ctx).Save(tablet).Error
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
