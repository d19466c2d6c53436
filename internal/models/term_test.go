package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTermDeadlinesAreInclusiveCalendarDates(t *testing.T) {
	term := &Term{
		AddDropDeadline:    time.Date(2025, 9, 10, 0, 0, 0, 0, time.UTC),
		WithdrawalDeadline: time.Date(2025, 10, 15, 0, 0, 0, 0, time.UTC),
	}

	assert.True(t, term.WithinAddDrop(time.Date(2025, 9, 1, 8, 0, 0, 0, time.UTC)))
	assert.True(t, term.WithinAddDrop(time.Date(2025, 9, 10, 23, 59, 59, 0, time.UTC)))
	assert.False(t, term.WithinAddDrop(time.Date(2025, 9, 11, 0, 0, 1, 0, time.UTC)))

	assert.True(t, term.WithinWithdrawal(time.Date(2025, 10, 15, 12, 0, 0, 0, time.UTC)))
	assert.False(t, term.WithinWithdrawal(time.Date(2025, 10, 16, 0, 0, 0, 0, time.UTC)))
}

func TestTermDeadlineComparesInUTC(t *testing.T) {
	term := &Term{AddDropDeadline: time.Date(2025, 9, 10, 0, 0, 0, 0, time.UTC)}

	// 2025-09-10 22:00 in UTC-5 is already 2025-09-11 in UTC.
	est := time.FixedZone("EST", -5*3600)
	assert.False(t, term.WithinAddDrop(time.Date(2025, 9, 10, 22, 0, 0, 0, est)))
}
