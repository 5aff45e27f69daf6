package export

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nregabot/nregabot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func generateTestResults() []domain.ResultRecord {
	base := time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)
	outcomes := []domain.Outcome{domain.OutcomeSuccess, domain.OutcomeFailed, domain.OutcomeSuccess, domain.OutcomeSkipped}
	var out []domain.ResultRecord
	for i, o := range outcomes {
		out = append(out, domain.ResultRecord{
			RunID:     "3f9a1c2e-aaaa-bbbb-cccc-000000000000",
			Key:       "msr",
			Item:      "34" + strings.Repeat("0", i) + "1",
			Outcome:   o,
			Detail:    "detail, with comma",
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		})
	}
	return out
}

func newTestExporter() *ResultExporter {
	re := NewResultExporter(zap.NewNop())
	re.now = func() time.Time { return time.Date(2025, 3, 4, 12, 30, 0, 0, time.UTC) }
	return re
}

func TestResultExportCSV(t *testing.T) {
	dir := t.TempDir()
	path, err := newTestExporter().ExportResults(generateTestResults(), ExportOptions{
		Format:    FormatCSV,
		Filter:    FilterAll,
		Task:      "msr",
		RunID:     "3f9a1c2e-aaaa-bbbb-cccc-000000000000",
		OutputDir: dir,
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "msr_3f9a1c2e_20250304_123000.csv"), path)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, "outcome", rows[0][4])
	assert.Equal(t, "detail, with comma", rows[1][5])
	assert.Equal(t, "failed", rows[2][4])
}

func TestResultExportJSONFiltered(t *testing.T) {
	dir := t.TempDir()
	path, err := newTestExporter().ExportResults(generateTestResults(), ExportOptions{
		Format:    FormatJSON,
		Filter:    FilterSuccess,
		Task:      "msr",
		RunID:     "3f9a1c2e",
		OutputDir: dir,
	})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, "msr_3f9a1c2e_success_20250304_123000.json"))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc struct {
		ResultCount int                   `json:"result_count"`
		Summary     ExportSummary         `json:"summary"`
		Results     []domain.ResultRecord `json:"results"`
	}
	require.NoError(t, json.Unmarshal(content, &doc))
	assert.Equal(t, 2, doc.ResultCount)
	assert.Equal(t, 2, doc.Summary.Success)
	assert.Equal(t, float64(100), doc.Summary.SuccessRate)
	for _, r := range doc.Results {
		assert.Equal(t, domain.OutcomeSuccess, r.Outcome)
	}
}

func TestExportNothingToWrite(t *testing.T) {
	_, err := newTestExporter().ExportResults(generateTestResults()[:1], ExportOptions{
		Format:    FormatCSV,
		Filter:    FilterSkipped,
		OutputDir: t.TempDir(),
	})
	assert.Error(t, err)
}

func TestUnsupportedFormat(t *testing.T) {
	_, err := newTestExporter().ExportResults(generateTestResults(), ExportOptions{
		Format:    "xlsx",
		OutputDir: t.TempDir(),
	})
	assert.Error(t, err)

	_, err = ParseFormat("xlsx")
	assert.Error(t, err)
	f, err := ParseFormat(" JSON ")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)
}

func TestFilterCycleAndParse(t *testing.T) {
	assert.Equal(t, FilterSuccess, FilterAll.Next())
	assert.Equal(t, FilterAll, FilterSkipped.Next())

	f, err := ParseFilter("Failed")
	require.NoError(t, err)
	assert.Equal(t, FilterFailed, f)
	_, err = ParseFilter("rejected")
	assert.Error(t, err)

	assert.Len(t, FilterFailed.Apply(generateTestResults()), 1)
	assert.Len(t, Filter("").Apply(generateTestResults()), 4)
}

func TestCalculateSummary(t *testing.T) {
	s := CalculateSummary(generateTestResults())
	assert.Equal(t, 4, s.Total)
	assert.Equal(t, 4, s.UniqueItems)
	assert.Equal(t, float64(50), s.SuccessRate)
	assert.Equal(t, 3*time.Minute, s.EndTime.Sub(s.StartTime))

	assert.Equal(t, ExportSummary{}, CalculateSummary(nil))
}
