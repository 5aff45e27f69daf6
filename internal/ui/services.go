package ui

import (
	"context"

	"github.com/nregabot/nregabot/internal/domain"
	"github.com/nregabot/nregabot/internal/export"
	"github.com/nregabot/nregabot/internal/logger"
	"github.com/nregabot/nregabot/internal/runconfig"
	"github.com/nregabot/nregabot/internal/storage/models"
	"github.com/nregabot/nregabot/internal/workflow"
	"go.uber.org/zap"
)

// Services is everything the screens need from the application.
type Services interface {
	Tasks() []*workflow.Definition
	RunConfig(ctx context.Context, key domain.Key) (*runconfig.RunConfiguration, error)
	Start(ctx context.Context, rc *runconfig.RunConfiguration) (string, error)
	RequestStop(key domain.Key) bool
	Suggestions(ctx context.Context, key domain.Key, field string) []string

	ListRuns(ctx context.Context, key domain.Key, limit int) ([]*models.RunRecord, error)
	RunResults(ctx context.Context, runID string) ([]domain.ResultRecord, error)
	ExportResults(key domain.Key, runID string, records []domain.ResultRecord, format export.ExportFormat, filter export.Filter) (string, error)

	LogBuffer() *logger.LogBuffer
	GetLogger() *zap.Logger
	GetContext() context.Context
}
