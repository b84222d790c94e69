package exporter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"

	"github.com/actiomidia/projeto-bot-whatsapp/pkg/contracts/events"
)

const (
	bulkReportPrefix = "bulk-"
	bulkReportExt    = ".csv"
	reportTimeLayout = "2006-01-02 15:04:05"
)

// BulkReportHeaders are the columns of a bulk job report.
var BulkReportHeaders = []string{"index", "target", "name", "status", "message_id", "error", "sent_at"}

// ErrReportNotFound is returned for unknown or malformed job IDs.
var ErrReportNotFound = errors.New("report not found")

// BulkReports keeps one CSV file per finished bulk job.
type BulkReports struct {
	csv    *CSVWriter
	dir    string
	logger *slog.Logger
}

// NewBulkReports stores reports in dir.
func NewBulkReports(dir string, logger *slog.Logger) *BulkReports {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "bulk_reports"))
	return &BulkReports{
		csv:    NewCSVWriter(dir, logger),
		dir:    dir,
		logger: logger,
	}
}

// ReportName is the file name of jobID's report.
func ReportName(jobID string) string {
	return bulkReportPrefix + jobID + bulkReportExt
}

// WriteBulkReport writes one row per attempted target and returns the file
// name.
func (r *BulkReports) WriteBulkReport(ctx context.Context, summary events.BulkSummary) (string, error) {
	rows := make([][]string, 0, len(summary.Results))
	for i, res := range summary.Results {
		rows = append(rows, bulkRow(i+1, res))
	}

	name := ReportName(summary.JobID)
	if err := r.csv.WriteSimpleCSV(name, BulkReportHeaders, rows); err != nil {
		return "", fmt.Errorf("write bulk report: %w", err)
	}

	r.logger.InfoContext(ctx, "bulk report written",
		slog.String("job_id", summary.JobID),
		slog.String("file", name),
		slog.Int("rows", len(rows)))
	return name, nil
}

// Path returns the report file of jobID.
func (r *BulkReports) Path(jobID string) (string, error) {
	if _, err := uuid.Parse(jobID); err != nil {
		return "", ErrReportNotFound
	}
	path := filepath.Join(r.dir, ReportName(jobID))
	if _, err := os.Stat(path); err != nil {
		return "", ErrReportNotFound
	}
	return path, nil
}

// Latest returns the most recently written report.
func (r *BulkReports) Latest() (string, error) {
	matches, err := filepath.Glob(filepath.Join(r.dir, bulkReportPrefix+"*"+bulkReportExt))
	if err != nil {
		return "", err
	}

	var (
		latest string
		newest int64
	)
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || info.IsDir() {
			continue
		}
		if mod := info.ModTime().UnixNano(); latest == "" || mod > newest {
			latest, newest = m, mod
		}
	}
	if latest == "" {
		return "", ErrReportNotFound
	}
	return latest, nil
}

func bulkRow(index int, res events.BulkResult) []string {
	status := "failed"
	if res.Success {
		status = "sent"
	}
	var sentAt string
	if !res.Timestamp.IsZero() {
		sentAt = res.Timestamp.Format(reportTimeLayout)
	}
	return []string{
		strconv.Itoa(index),
		res.Target,
		res.Name,
		status,
		res.MessageID,
		res.Error,
		sentAt,
	}
}
