package audit

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type MockSource struct {
	mock.Mock
}

func (m *MockSource) GetTableNames(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockSource) GetTableData(ctx context.Context, table string) ([]map[string]any, []string, error) {
	args := m.Called(ctx, table)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).([]map[string]any), args.Get(1).([]string), args.Error(2)
}

func newSource() *MockSource {
	src := new(MockSource)
	created := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	src.On("GetTableNames", mock.Anything).Return([]string{"bookings", "transactions"}, nil)
	src.On("GetTableData", mock.Anything, "bookings").Return(
		[]map[string]any{
			{"id": "b1", "reference": "WS-ABCDEFGH1", "status": "confirmed", "rate": 500.0, "created_at": created},
		},
		[]string{"id", "reference", "status", "rate", "created_at"},
		nil,
	)
	src.On("GetTableData", mock.Anything, "transactions").Return(
		[]map[string]any{
			{"id": "t1", "booking_id": "b1", "status": "success", "payment_date": nil},
		},
		[]string{"id", "booking_id", "status", "payment_date"},
		nil,
	)
	return src
}

func TestExport_WritesOneSheetPerTable(t *testing.T) {
	logger := zerolog.Nop()
	e := NewExporter(newSource(), t.TempDir(), &logger)

	var buf bytes.Buffer
	require.NoError(t, e.Export(context.Background(), &buf))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"bookings", "transactions"}, f.GetSheetList())

	rows, err := f.GetRows("bookings")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"id", "reference", "status", "rate", "created_at"}, rows[0])
	assert.Equal(t, "WS-ABCDEFGH1", rows[1][1])
	assert.Equal(t, "2025-06-01T08:00:00Z", rows[1][4])

	rows, err = f.GetRows("transactions")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "t1", rows[1][0])
}

func TestExport_SourceError(t *testing.T) {
	logger := zerolog.Nop()
	src := new(MockSource)
	src.On("GetTableNames", mock.Anything).Return([]string{"bookings"}, nil)
	src.On("GetTableData", mock.Anything, "bookings").Return(nil, nil, errors.New("disk I/O error"))

	e := NewExporter(src, t.TempDir(), &logger)
	err := e.Export(context.Background(), &bytes.Buffer{})
	assert.ErrorContains(t, err, "disk I/O error")
}

func TestExportToFile(t *testing.T) {
	logger := zerolog.Nop()
	dir := t.TempDir()
	e := NewExporter(newSource(), dir, &logger)

	now := time.Date(2025, 6, 1, 8, 30, 0, 0, time.UTC)
	path, err := e.ExportToFile(context.Background(), now)
	require.NoError(t, err)
	assert.Contains(t, path, "courtbook_audit_2025-06-01_0830.xlsx")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}
