package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRowCommitLifecycle(t *testing.T) {
	empty := Row[PaymentRow]{ID: "p1"}
	assert.False(t, empty.Commit().Locked(), "empty draft must not lock")

	filled := Row[PaymentRow]{ID: "p2", Data: PaymentRow{Amount: "500"}}
	committed := filled.Commit()
	assert.True(t, committed.Locked(), "filled draft locks on commit")
	assert.False(t, filled.Locked(), "commit must not mutate the receiver")

	_, err := committed.Edit(PaymentRow{Amount: "600"})
	assert.ErrorIs(t, err, ErrRowLocked)
	assert.Equal(t, Committed, committed.Commit().State, "committed rows stay committed")
}

func TestEditRow(t *testing.T) {
	rows := []Row[WorkRow]{
		{ID: "w1", Data: WorkRow{Task: "audit"}, State: Committed},
		{ID: "w2"},
	}

	_, err := EditRow(rows, 0, WorkRow{Task: "changed"})
	assert.ErrorIs(t, err, ErrRowLocked)
	_, err = EditRow(rows, 5, WorkRow{})
	assert.ErrorIs(t, err, ErrRowIndex)

	out, err := EditRow(rows, 1, WorkRow{Task: "filing", Hours: "2"})
	require.NoError(t, err)
	assert.Equal(t, "filing", out[1].Data.Task)
	assert.Empty(t, rows[1].Data.Task, "edit must copy")
}

func TestAppendAndCommitAll(t *testing.T) {
	var rows []Row[PaymentRow]
	rows = AppendRow(rows, "a", PaymentRow{Amount: "100", Date: "01/01/2024"})
	rows = AppendRow(rows, "b", PaymentRow{})

	out := CommitAll(rows)
	assert.True(t, out[0].Locked())
	assert.False(t, out[1].Locked())
	assert.False(t, rows[0].Locked(), "CommitAll must not mutate input")
}

func TestValidatePayment(t *testing.T) {
	assert.Nil(t, ValidatePayment(PaymentRow{Date: "15/03/2024", Amount: "₹1,200", Mode: "upi"}))

	errs := ValidatePayment(PaymentRow{Date: "someday", Mode: "barter"})
	assert.Equal(t, "is required", errs["amount"])
	assert.Equal(t, "must be a valid date", errs["date"])
	assert.Contains(t, errs, "mode")

	errs = ValidatePayment(PaymentRow{Date: "2024-01-01", Amount: "abc"})
	assert.Equal(t, "must be a positive amount", errs["amount"])
}

func TestValidateWork(t *testing.T) {
	errs := ValidateWork(WorkRow{Date: "2024-01-01", Hours: "3"})
	assert.Equal(t, FieldErrors{"task": "is required"}, errs)
}
