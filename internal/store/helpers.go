package store

import (
	"database/sql"
	"fmt"

	"github.com/nxtoffice/checkinbot/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// scanReceipts scans all receipt rows from a query result.
func scanReceipts(rows *sql.Rows) ([]models.Receipt, error) {
	var out []models.Receipt
	for rows.Next() {
		var r models.Receipt
		var status string
		var detail sql.NullString
		if err := rows.Scan(&r.ID, &r.UserID, &status, &detail, &r.Time); err != nil {
			return nil, fmt.Errorf("scan receipt failed: %w", err)
		}
		r.Status = models.ReceiptStatus(status)
		r.Detail = detail.String
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate receipts failed: %w", err)
	}
	return out, nil
}
