// internal/storage/sqlite/sqlite.go
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/nregabot/nregabot/internal/domain"
	"github.com/nregabot/nregabot/internal/storage"
	"github.com/nregabot/nregabot/internal/storage/models"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// sqliteStorage implements storage.Storage on a local database file.
type sqliteStorage struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewStorage opens (creating if needed) the database at path and migrates it.
func NewStorage(path string, zapLogger *zap.Logger) (storage.Storage, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	level := logger.Warn
	if zapLogger.Core().Enabled(zap.DebugLevel) {
		level = logger.Info
	}

	dsn := path + "?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: newGormLogger(zapLogger.Named("gorm"), level),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	// sqlite allows a single writer
	sqlDB.SetMaxOpenConns(1)

	s := &sqliteStorage{db: db, logger: zapLogger}
	if err := s.RunMigrations(); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	zapLogger.Debug("Storage opened", zap.String("path", path))
	return s, nil
}

func (s *sqliteStorage) RunMigrations() error {
	err := s.db.AutoMigrate(
		&models.RunRecord{},
		&models.ResultRow{},
		&models.RunConfig{},
		&models.FieldHistory{},
	)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

func (s *sqliteStorage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, storage.ErrNotFound)
	}
	return err
}

// SaveRun stores a finished run and its result log in one transaction.
func (s *sqliteStorage) SaveRun(ctx context.Context, run *models.RunRecord, results []domain.ResultRecord) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(run).Error; err != nil {
			return fmt.Errorf("save run: %w", err)
		}
		if len(results) == 0 {
			return nil
		}
		rows := make([]models.ResultRow, len(results))
		for i, rec := range results {
			rows[i] = models.NewResultRow(i, rec)
		}
		if err := tx.CreateInBatches(rows, 200).Error; err != nil {
			return fmt.Errorf("save results: %w", err)
		}
		return nil
	})
}

func (s *sqliteStorage) GetRun(ctx context.Context, runID string) (*models.RunRecord, error) {
	var run models.RunRecord
	err := s.db.WithContext(ctx).Where("run_id = ?", runID).First(&run).Error
	if err != nil {
		return nil, notFound(err, "run "+runID)
	}
	return &run, nil
}

func (s *sqliteStorage) FindRun(ctx context.Context, prefix string) (*models.RunRecord, error) {
	if prefix == "" {
		return nil, fmt.Errorf("empty run id: %w", storage.ErrNotFound)
	}
	var runs []models.RunRecord
	err := s.db.WithContext(ctx).
		Where("run_id LIKE ?", prefix+"%").
		Limit(2).
		Find(&runs).Error
	if err != nil {
		return nil, err
	}
	switch len(runs) {
	case 0:
		return nil, fmt.Errorf("run %s: %w", prefix, storage.ErrNotFound)
	case 1:
		return &runs[0], nil
	default:
		return nil, fmt.Errorf("run id prefix %q is ambiguous", prefix)
	}
}

// ListRuns returns the newest runs first. An empty key lists every task.
func (s *sqliteStorage) ListRuns(ctx context.Context, key domain.Key, limit int) ([]*models.RunRecord, error) {
	q := s.db.WithContext(ctx).Order("started_at desc")
	if key != "" {
		q = q.Where("task_key = ?", string(key))
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var runs []*models.RunRecord
	err := q.Find(&runs).Error
	return runs, err
}

func (s *sqliteStorage) RunResults(ctx context.Context, runID string) ([]domain.ResultRecord, error) {
	var rows []models.ResultRow
	err := s.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("seq asc").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.ResultRecord, len(rows))
	for i, r := range rows {
		out[i] = r.Record()
	}
	return out, nil
}

func (s *sqliteStorage) LoadConfig(ctx context.Context, key domain.Key) (map[string]string, error) {
	var cfg models.RunConfig
	err := s.db.WithContext(ctx).Where("task_key = ?", string(key)).First(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}
	if cfg.Values == nil {
		cfg.Values = map[string]string{}
	}
	return cfg.Values, nil
}

func (s *sqliteStorage) SaveConfig(ctx context.Context, key domain.Key, values map[string]string) error {
	cfg := models.RunConfig{TaskKey: string(key), Values: values}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "task_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"field_values", "updated_at"}),
	}).Create(&cfg).Error
}

// AddHistory records values and trims the field to the most recently used
// storage.HistoryLimit entries.
func (s *sqliteStorage) AddHistory(ctx context.Context, key domain.Key, field string, values []string) error {
	if len(values) == 0 {
		return nil
	}
	now := time.Now().UTC()
	rows := make([]models.FieldHistory, 0, len(values))
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		rows = append(rows, models.FieldHistory{TaskKey: string(key), Field: field, Value: v, LastUsed: now})
	}
	if len(rows) == 0 {
		return nil
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "task_key"}, {Name: "field"}, {Name: "value"}},
			DoUpdates: clause.AssignmentColumns([]string{"last_used"}),
		}).Create(&rows).Error
		if err != nil {
			return err
		}

		keep := tx.Model(&models.FieldHistory{}).
			Select("id").
			Where("task_key = ? AND field = ?", string(key), field).
			Order("last_used desc, id desc").
			Limit(storage.HistoryLimit)
		return tx.Where("task_key = ? AND field = ? AND id NOT IN (?)", string(key), field, keep).
			Delete(&models.FieldHistory{}).Error
	})
}

// History returns the remembered values of a field in sorted order.
func (s *sqliteStorage) History(ctx context.Context, key domain.Key, field string) ([]string, error) {
	var values []string
	err := s.db.WithContext(ctx).Model(&models.FieldHistory{}).
		Where("task_key = ? AND field = ?", string(key), field).
		Pluck("value", &values).Error
	if err != nil {
		return nil, err
	}
	sort.Strings(values)
	return values, nil
}
