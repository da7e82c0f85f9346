package model

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "canonical", input: "2025-03-14", want: "2025-03-14"},
		{name: "leap day", input: "2024-02-29", want: "2024-02-29"},
		{name: "not a leap year", input: "2025-02-29", wantErr: true},
		{name: "timestamp", input: "2025-03-14T10:00:00Z", wantErr: true},
		{name: "short form", input: "2025-3-14", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDate(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrValidation))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDateOf(t *testing.T) {
	manila := time.FixedZone("PHT", 8*60*60)
	ts := time.Date(2025, 3, 14, 23, 30, 0, 0, manila)
	assert.Equal(t, "2025-03-14", DateOf(ts))
	assert.Equal(t, "2025-03-14", DateOf(ts.UTC()))
}

func TestStatusValid(t *testing.T) {
	assert.True(t, StatusPending.Valid())
	assert.True(t, StatusConfirmed.Valid())
	assert.True(t, StatusCancelled.Valid())
	assert.False(t, BookingStatus("paid").Valid())
	assert.False(t, BookingStatus("").Valid())

	assert.True(t, PeriodAfternoon.Valid())
	assert.False(t, Period("night").Valid())
}

func TestTransactionIsFinal(t *testing.T) {
	assert.False(t, (&Transaction{Status: TxInitiated}).IsFinal())
	assert.True(t, (&Transaction{Status: TxSuccess}).IsFinal())
	assert.True(t, (&Transaction{Status: TxFailed}).IsFinal())
}
