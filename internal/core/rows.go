package core

import (
	"slices"
	"strings"
)

// RowState is the lifecycle of a ledger row. The only transition is
// Draft -> Committed.
type RowState uint8

const (
	Draft RowState = iota
	Committed
)

func (s RowState) String() string {
	if s == Committed {
		return "committed"
	}
	return "draft"
}

func (s RowState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *RowState) UnmarshalText(b []byte) error {
	*s = Draft
	if string(b) == Committed.String() {
		*s = Committed
	}
	return nil
}

// Valued is implemented by row payloads that can tell whether the user
// has filled anything in.
type Valued interface {
	HasAnyValue() bool
}

// Row is one entry of a staff payments or work ledger.
type Row[T Valued] struct {
	ID    string   `json:"id"`
	Data  T        `json:"data"`
	State RowState `json:"state"`
}

// PaymentRow is a payment made to a staff member.
type PaymentRow struct {
	Date   string `json:"date" validate:"required,flexdate"`
	Amount string `json:"amount" validate:"required,amount"`
	Mode   string `json:"mode" validate:"omitempty,oneof=cash upi bank cheque"`
	Note   string `json:"note" validate:"max=500"`
}

// WorkRow is a unit of work logged against a staff member.
type WorkRow struct {
	Date  string `json:"date" validate:"required,flexdate"`
	Hours string `json:"hours" validate:"required,amount"`
	Task  string `json:"task" validate:"required,max=200"`
	Note  string `json:"note" validate:"max=500"`
}

func (p PaymentRow) HasAnyValue() bool {
	return anyNonBlank(p.Date, p.Amount, p.Mode, p.Note)
}

func (w WorkRow) HasAnyValue() bool {
	return anyNonBlank(w.Date, w.Hours, w.Task, w.Note)
}

func anyNonBlank(values ...string) bool {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return true
		}
	}
	return false
}

// Locked reports whether the row can no longer be edited in place.
func (r Row[T]) Locked() bool {
	return r.State == Committed
}

// Edit replaces the payload of a draft row.
func (r Row[T]) Edit(data T) (Row[T], error) {
	if r.Locked() {
		return r, ErrRowLocked
	}
	r.Data = data
	return r, nil
}

// Commit locks the row once it carries any value. Empty drafts stay drafts.
func (r Row[T]) Commit() Row[T] {
	if r.State == Draft && r.Data.HasAnyValue() {
		r.State = Committed
	}
	return r
}

// CommitAll returns a copy of rows with every non-empty draft committed.
func CommitAll[T Valued](rows []Row[T]) []Row[T] {
	out := make([]Row[T], len(rows))
	for i, r := range rows {
		out[i] = r.Commit()
	}
	return out
}

// AppendRow returns a copy of rows with a new draft at the end.
func AppendRow[T Valued](rows []Row[T], id string, data T) []Row[T] {
	out := slices.Clone(rows)
	return append(out, Row[T]{ID: id, Data: data, State: Draft})
}

// EditRow returns a copy of rows with row i edited. Locked rows are
// rejected with ErrRowLocked and rows is left untouched.
func EditRow[T Valued](rows []Row[T], i int, data T) ([]Row[T], error) {
	if i < 0 || i >= len(rows) {
		return rows, ErrRowIndex
	}
	edited, err := rows[i].Edit(data)
	if err != nil {
		return rows, err
	}
	out := slices.Clone(rows)
	out[i] = edited
	return out, nil
}
