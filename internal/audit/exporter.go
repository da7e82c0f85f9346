// Package audit exports the booking and payment tables to xlsx workbooks.
package audit

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// TableSource provides the tables to export. *db.DB satisfies it.
type TableSource interface {
	GetTableNames(ctx context.Context) ([]string, error)
	GetTableData(ctx context.Context, tableName string) ([]map[string]any, []string, error)
}

// Exporter writes audit workbooks on demand and on a schedule.
type Exporter struct {
	source    TableSource
	newWriter func() Writer
	dir       string
	logger    zerolog.Logger
}

// NewExporter returns an exporter that stores scheduled exports in dir.
func NewExporter(source TableSource, dir string, logger *zerolog.Logger) *Exporter {
	return &Exporter{
		source:    source,
		newWriter: NewExcelizeWriter,
		dir:       dir,
		logger:    logger.With().Str("component", "audit").Logger(),
	}
}

// Filename returns the export file name for t, e.g. courtbook_audit_2025-06-01_0830.xlsx.
func Filename(t time.Time) string {
	return fmt.Sprintf("courtbook_audit_%s.xlsx", t.Format("2006-01-02_1504"))
}

// Export writes a workbook with one sheet per table to out.
func (e *Exporter) Export(ctx context.Context, out io.Writer) error {
	tables, err := e.source.GetTableNames(ctx)
	if err != nil {
		return fmt.Errorf("get table names: %w", err)
	}

	wb := e.newWriter()
	defer wb.Close()

	for _, table := range tables {
		data, columns, err := e.source.GetTableData(ctx, table)
		if err != nil {
			return fmt.Errorf("read %s: %w", table, err)
		}
		if err := wb.AddSheet(table); err != nil {
			return err
		}
		if err := wb.WriteHeader(columns); err != nil {
			return fmt.Errorf("write %s header: %w", table, err)
		}
		for _, row := range data {
			values := make([]any, len(columns))
			for i, col := range columns {
				values[i] = row[col]
			}
			if err := wb.WriteRow(values); err != nil {
				return fmt.Errorf("write %s row: %w", table, err)
			}
		}
		e.logger.Debug().Str("table", table).Int("rows", len(data)).Msg("exported table")
	}

	if err := wb.Save(out); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

// ExportToFile writes a timestamped workbook into the export directory and returns its path.
func (e *Exporter) ExportToFile(ctx context.Context, now time.Time) (string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("create audit directory: %w", err)
	}
	path := filepath.Join(e.dir, Filename(now))
	tmp := path + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return "", err
	}
	if err := e.Export(ctx, f); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return "", err
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", err
	}
	return path, nil
}

// Run exports every interval until ctx is done.
func (e *Exporter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			path, err := e.ExportToFile(ctx, time.Now())
			if err != nil {
				e.logger.Error().Err(err).Msg("audit export failed")
				continue
			}
			e.logger.Info().Str("file", path).Msg("audit export written")
		}
	}
}
