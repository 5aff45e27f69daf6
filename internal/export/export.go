package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nregabot/nregabot/internal/domain"
	"github.com/nregabot/nregabot/internal/logger"
	"go.uber.org/zap"
)

// ExportFormat represents the export file format
type ExportFormat string

const (
	FormatCSV  ExportFormat = "csv"
	FormatJSON ExportFormat = "json"
)

func ParseFormat(s string) (ExportFormat, error) {
	switch f := ExportFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatJSON:
		return f, nil
	case "":
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("unsupported format: %s", s)
	}
}

// Filter selects which outcomes are exported.
type Filter string

const (
	FilterAll     Filter = "all"
	FilterSuccess Filter = "success"
	FilterFailed  Filter = "failed"
	FilterSkipped Filter = "skipped"
)

var filterCycle = []Filter{FilterAll, FilterSuccess, FilterFailed, FilterSkipped}

func ParseFilter(s string) (Filter, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return FilterAll, nil
	}
	for _, f := range filterCycle {
		if string(f) == s {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown filter %q (want all, success, failed or skipped)", s)
}

// Next returns the filter after f, wrapping around.
func (f Filter) Next() Filter {
	for i, c := range filterCycle {
		if c == f {
			return filterCycle[(i+1)%len(filterCycle)]
		}
	}
	return FilterAll
}

func (f Filter) Match(o domain.Outcome) bool {
	return f == FilterAll || f == "" || string(f) == string(o)
}

// Apply returns the records that pass f, in their original order.
func (f Filter) Apply(records []domain.ResultRecord) []domain.ResultRecord {
	var out []domain.ResultRecord
	for _, r := range records {
		if f.Match(r.Outcome) {
			out = append(out, r)
		}
	}
	return out
}

// ExportOptions configures the export behavior
type ExportOptions struct {
	Format    ExportFormat
	Filter    Filter
	Task      domain.Key
	RunID     string
	OutputDir string
}

// ResultExporter writes result logs to files.
type ResultExporter struct {
	logger *zap.Logger
	now    func() time.Time
}

func NewResultExporter(logger *zap.Logger) *ResultExporter {
	return &ResultExporter{
		logger: logger,
		now:    time.Now,
	}
}

// ExportResults writes the filtered records and returns the file path.
func (re *ResultExporter) ExportResults(records []domain.ResultRecord, options ExportOptions) (string, error) {
	filtered := options.Filter.Apply(records)
	if len(filtered) == 0 {
		return "", fmt.Errorf("no results match the export criteria")
	}

	if err := os.MkdirAll(options.OutputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	outputPath := filepath.Join(options.OutputDir, re.generateFilename(options))

	var err error
	switch options.Format {
	case FormatCSV, "":
		err = re.exportToCSV(filtered, outputPath)
	case FormatJSON:
		err = re.exportToJSON(filtered, options, outputPath)
	default:
		err = fmt.Errorf("unsupported format: %s", options.Format)
	}
	if err != nil {
		return "", err
	}

	re.logger.Info("Results exported",
		zap.String("file", outputPath),
		zap.Int("count", len(filtered)),
		zap.String("format", string(options.Format)),
		zap.String("filter", string(options.Filter)))

	return outputPath, nil
}

// generateFilename builds <task>_<runid8>_<timestamp>.<ext>.
func (re *ResultExporter) generateFilename(options ExportOptions) string {
	task := string(options.Task)
	if task == "" {
		task = "results"
	}
	run := options.RunID
	if len(run) > 8 {
		run = run[:8]
	}
	if run == "" {
		run = "norun"
	}
	ext := options.Format
	if ext == "" {
		ext = FormatCSV
	}
	name := fmt.Sprintf("%s_%s", task, run)
	if options.Filter != "" && options.Filter != FilterAll {
		name += "_" + string(options.Filter)
	}
	return fmt.Sprintf("%s_%s.%s", name, re.now().Format("20060102_150405"), ext)
}

func (re *ResultExporter) exportToCSV(records []domain.ResultRecord, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(logger.ResultHeader); err != nil {
		return fmt.Errorf("failed to write CSV headers: %w", err)
	}
	for _, rec := range records {
		if err := writer.Write(logger.ResultRow(rec)); err != nil {
			return fmt.Errorf("failed to write result: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

func (re *ResultExporter) exportToJSON(records []domain.ResultRecord, options ExportOptions, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create JSON file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")

	exportData := struct {
		ExportTime  time.Time             `json:"export_time"`
		Task        domain.Key            `json:"task"`
		RunID       string                `json:"run_id"`
		Filter      Filter                `json:"filter"`
		ResultCount int                   `json:"result_count"`
		Summary     ExportSummary         `json:"summary"`
		Results     []domain.ResultRecord `json:"results"`
	}{
		ExportTime:  re.now(),
		Task:        options.Task,
		RunID:       options.RunID,
		Filter:      options.Filter,
		ResultCount: len(records),
		Summary:     CalculateSummary(records),
		Results:     records,
	}

	if err := encoder.Encode(exportData); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

// ExportSummary contains summary statistics for exported results
type ExportSummary struct {
	Total       int       `json:"total"`
	Success     int       `json:"success"`
	Failed      int       `json:"failed"`
	Skipped     int       `json:"skipped"`
	UniqueItems int       `json:"unique_items"`
	SuccessRate float64   `json:"success_rate"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
}

func CalculateSummary(records []domain.ResultRecord) ExportSummary {
	tally := domain.CountOutcomes(records)
	summary := ExportSummary{
		Total:   len(records),
		Success: tally.Success,
		Failed:  tally.Failed,
		Skipped: tally.Skipped,
	}
	if len(records) == 0 {
		return summary
	}

	items := make(map[string]bool, len(records))
	summary.StartTime = records[0].Timestamp
	summary.EndTime = records[0].Timestamp
	for _, r := range records {
		items[r.Item] = true
		if r.Timestamp.Before(summary.StartTime) {
			summary.StartTime = r.Timestamp
		}
		if r.Timestamp.After(summary.EndTime) {
			summary.EndTime = r.Timestamp
		}
	}
	summary.UniqueItems = len(items)
	summary.SuccessRate = float64(tally.Success) / float64(len(records)) * 100
	return summary
}
