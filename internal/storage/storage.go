// internal/storage/storage.go
package storage

import (
	"context"
	"errors"

	"github.com/nregabot/nregabot/internal/domain"
	"github.com/nregabot/nregabot/internal/storage/models"
)

var ErrNotFound = errors.New("not found")

// HistoryLimit caps the remembered values per task field.
const HistoryLimit = 50

// Storage defines the local persistence used by the application
type Storage interface {
	// Runs
	SaveRun(ctx context.Context, run *models.RunRecord, results []domain.ResultRecord) error
	GetRun(ctx context.Context, runID string) (*models.RunRecord, error)
	// FindRun resolves a full run id or a unique prefix of one.
	FindRun(ctx context.Context, prefix string) (*models.RunRecord, error)
	ListRuns(ctx context.Context, key domain.Key, limit int) ([]*models.RunRecord, error)
	RunResults(ctx context.Context, runID string) ([]domain.ResultRecord, error)

	// Run configurations
	LoadConfig(ctx context.Context, key domain.Key) (map[string]string, error)
	SaveConfig(ctx context.Context, key domain.Key, values map[string]string) error

	// Field history
	AddHistory(ctx context.Context, key domain.Key, field string, values []string) error
	History(ctx context.Context, key domain.Key, field string) ([]string, error)

	RunMigrations() error
	Close() error
}
