package messaging

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	apierrors "github.com/actiomidia/projeto-bot-whatsapp/internal/errors"
)

// Recipients is the result of reading a recipients workbook.
type Recipients struct {
	Sheet   string
	Numbers []string
	// Rejected holds cells from the first column that are not phone
	// numbers, header included.
	Rejected []string
	// Duplicates counts repeated numbers that were dropped.
	Duplicates int
}

// ReadRecipientsXLSX reads phone numbers from the first column of the first
// sheet. Each number is normalised; invalid cells are reported, not fatal,
// and duplicates keep their first position.
func ReadRecipientsXLSX(r io.Reader) (*Recipients, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apierrors.ErrUnsupportedDocument, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: workbook has no sheets", apierrors.ErrUnsupportedDocument)
	}
	sheet := sheets[0]

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}

	out := &Recipients{Sheet: sheet}
	seen := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell := strings.TrimSpace(row[0])
		if cell == "" {
			continue
		}
		digits, _, err := NormalizeNumber(cell)
		if err != nil || !looksNumeric(cell) {
			out.Rejected = append(out.Rejected, cell)
			continue
		}
		if _, dup := seen[digits]; dup {
			out.Duplicates++
			continue
		}
		seen[digits] = struct{}{}
		out.Numbers = append(out.Numbers, digits)
	}

	if len(out.Numbers) == 0 {
		return out, fmt.Errorf("%w: no phone numbers in the first column of %q", apierrors.ErrRecipientInvalid, sheet)
	}
	return out, nil
}

// looksNumeric rejects header cells such as "Telefone 1" whose digits alone
// would pass normalisation.
func looksNumeric(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case strings.ContainsRune("+-() .", r):
		default:
			return false
		}
	}
	return true
}
