package db

import (
	"context"
	"fmt"
	"slices"
)

// auditQueries lists the exported tables in sheet order. Each query fixes the
// column order of its sheet; customer contact details stay in the export since
// the workbook is the operator's offline record.
var auditQueries = []struct {
	table string
	query string
}{
	{"bookings", `SELECT id, reference, customer_name, email, phone, booking_date, time_slot,
		display_time, period, rate, status, created_at, updated_at
		FROM bookings ORDER BY booking_date, time_slot, created_at`},
	{"transactions", `SELECT id, booking_id, provider_reference, external_transaction_id, amount,
		status, failure_reason, payment_method, payment_date, created_at, updated_at
		FROM transactions ORDER BY created_at`},
}

// GetTableNames returns the tables included in audit exports.
func (db *DB) GetTableNames(_ context.Context) ([]string, error) {
	names := make([]string, 0, len(auditQueries))
	for _, q := range auditQueries {
		names = append(names, q.table)
	}
	return names, nil
}

// GetTableData returns the rows of an exported table keyed by column name,
// along with the column order.
func (db *DB) GetTableData(ctx context.Context, tableName string) ([]map[string]any, []string, error) {
	i := slices.IndexFunc(auditQueries, func(q struct{ table, query string }) bool { return q.table == tableName })
	if i < 0 {
		return nil, nil, fmt.Errorf("table %q is not exported", tableName)
	}

	rows, err := db.QueryContext(ctx, auditQueries[i].query)
	if err != nil {
		return nil, nil, fmt.Errorf("export %s: %w", tableName, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}

	var data []map[string]any
	for rows.Next() {
		values := make([]any, len(columns))
		dest := make([]any, len(columns))
		for j := range values {
			dest[j] = &values[j]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, nil, fmt.Errorf("export %s: %w", tableName, err)
		}

		record := make(map[string]any, len(columns))
		for j, col := range columns {
			// TEXT columns come back as []byte from the driver.
			if b, ok := values[j].([]byte); ok {
				record[col] = string(b)
			} else {
				record[col] = values[j]
			}
		}
		data = append(data, record)
	}
	return data, columns, rows.Err()
}
