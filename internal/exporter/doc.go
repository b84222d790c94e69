// Package exporter writes CSV files for operators.
//
// CSVWriter is the low-level writer: files live in a single directory, are
// optionally prefixed with a UTF-8 BOM so Excel detects the encoding, and
// can be appended to.
//
// BulkReports builds on it to keep one report per finished bulk job, with a
// row per attempted target:
//
//	reports := exporter.NewBulkReports(cfg.Messaging.ReportsDir, logger)
//	name, err := reports.WriteBulkReport(ctx, summary)
//
// Reports are looked up by job ID or as the latest one written.
package exporter
