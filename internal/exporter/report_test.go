package exporter

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/actiomidia/projeto-bot-whatsapp/internal/shared/testutil"
	"github.com/actiomidia/projeto-bot-whatsapp/pkg/contracts/events"
)

func TestWriteBulkReport(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	dir := t.TempDir()
	reports := NewBulkReports(dir, logger)

	sentAt := time.Date(2026, 3, 14, 9, 30, 0, 0, time.Local)
	summary := events.BulkSummary{
		JobID: uuid.New().String(),
		Results: []events.BulkResult{
			{Target: "11911111111", Success: true, MessageID: "m1", Timestamp: sentAt},
			{Target: "120363@g.us", Name: "Vendas", Error: "not a participant"},
		},
	}

	name, err := reports.WriteBulkReport(context.Background(), summary)
	require.NoError(t, err)
	assert.Equal(t, ReportName(summary.JobID), name)

	_, records := readCSV(t, filepath.Join(dir, name))
	assert.Equal(t, [][]string{
		BulkReportHeaders,
		{"1", "11911111111", "", "sent", "m1", "", "2026-03-14 09:30:00"},
		{"2", "120363@g.us", "Vendas", "failed", "", "not a participant", ""},
	}, records)
}

func TestBulkReportsPath(t *testing.T) {
	reports := NewBulkReports(t.TempDir(), nil)
	jobID := uuid.New().String()

	_, err := reports.Path(jobID)
	assert.ErrorIs(t, err, ErrReportNotFound)

	_, err = reports.WriteBulkReport(context.Background(), events.BulkSummary{JobID: jobID})
	require.NoError(t, err)

	path, err := reports.Path(jobID)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(reports.dir, ReportName(jobID)), path)

	for _, bad := range []string{"", "latest", "../" + jobID, jobID + "/x"} {
		_, err := reports.Path(bad)
		assert.ErrorIs(t, err, ErrReportNotFound, bad)
	}
}

func TestBulkReportsLatest(t *testing.T) {
	reports := NewBulkReports(t.TempDir(), nil)

	_, err := reports.Latest()
	assert.ErrorIs(t, err, ErrReportNotFound)

	older, newer := uuid.New().String(), uuid.New().String()
	for _, id := range []string{older, newer} {
		_, err := reports.WriteBulkReport(context.Background(), events.BulkSummary{JobID: id})
		require.NoError(t, err)
	}
	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(reports.dir, ReportName(older)), past, past))

	latest, err := reports.Latest()
	require.NoError(t, err)
	assert.Equal(t, ReportName(newer), filepath.Base(latest))
}
