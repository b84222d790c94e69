package license

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// Transition is one audited change of the license verdict.
type Transition struct {
	At           time.Time `json:"at"`
	KeyPrefix    string    `json:"key_prefix"`
	From         string    `json:"from"`
	To           string    `json:"to"`
	Reason       Reason    `json:"reason"`
	Status       string    `json:"status,omitempty"`
	FailureCount int       `json:"failure_count"`
	Trigger      string    `json:"trigger"`
	TraceID      string    `json:"trace_id,omitempty"`
}

// AuditSink receives verdict transitions.
type AuditSink interface {
	RecordTransition(ctx context.Context, t Transition) error
}

// FileAuditLog appends transitions to a JSON-lines file.
type FileAuditLog struct {
	path string
	mu   sync.Mutex
}

// NewFileAuditLog creates the audit log directory if needed.
func NewFileAuditLog(path string) (*FileAuditLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}
	return &FileAuditLog{path: path}, nil
}

// RecordTransition appends t as one JSON line.
func (a *FileAuditLog) RecordTransition(_ context.Context, t Transition) error {
	line, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal transition: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	f, err := os.OpenFile(a.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

// SheetsAuditLog mirrors transitions into a Google Sheets range.
type SheetsAuditLog struct {
	service       *sheets.Service
	spreadsheetID string
	sheetRange    string
}

// NewSheetsAuditLog connects to the Sheets API with a service account
// credentials file.
func NewSheetsAuditLog(ctx context.Context, spreadsheetID, sheetName, credentialsFile string) (*SheetsAuditLog, error) {
	if spreadsheetID == "" {
		return nil, fmt.Errorf("spreadsheet id is required")
	}
	if sheetName == "" {
		sheetName = "LicenseAudit"
	}
	svc, err := sheets.NewService(ctx, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}
	return &SheetsAuditLog{
		service:       svc,
		spreadsheetID: spreadsheetID,
		sheetRange:    sheetName + "!A:I",
	}, nil
}

// RecordTransition appends t as a spreadsheet row.
func (s *SheetsAuditLog) RecordTransition(ctx context.Context, t Transition) error {
	row := &sheets.ValueRange{Values: [][]interface{}{transitionRow(t)}}
	_, err := s.service.Spreadsheets.Values.Append(s.spreadsheetID, s.sheetRange, row).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to append audit row: %w", err)
	}
	return nil
}

func transitionRow(t Transition) []interface{} {
	return []interface{}{
		t.At.Format(time.RFC3339),
		t.KeyPrefix,
		t.From,
		t.To,
		string(t.Reason),
		t.Status,
		t.FailureCount,
		t.Trigger,
		t.TraceID,
	}
}

// MultiAudit fans a transition out to several sinks and returns the first
// error after trying all of them.
type MultiAudit []AuditSink

func (m MultiAudit) RecordTransition(ctx context.Context, t Transition) error {
	var first error
	for _, sink := range m {
		if err := sink.RecordTransition(ctx, t); err != nil && first == nil {
			first = err
		}
	}
	return first
}
