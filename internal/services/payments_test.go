package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"opsconsole/internal/core"
	"opsconsole/internal/normalize"
	"opsconsole/internal/store"
	"opsconsole/internal/store/memory"
)

func newService(t *testing.T) (*PaymentService, *memory.Store) {
	t.Helper()
	st, err := memory.New(map[string]any{
		"Staff": map[string]any{"s1": map[string]any{"name": "Asha", "designation": "Cook"}},
	}, nil)
	if err != nil {
		t.Fatalf("memory store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	svc := NewPaymentService(st, nil)
	tick := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time {
		tick = tick.Add(time.Minute)
		return tick
	}
	return svc, st
}

var validPayment = core.PaymentRow{Date: "15/03/2024", Amount: "₹1,200", Mode: "upi"}

func TestAddPaymentCommitsAndPersists(t *testing.T) {
	ctx := context.Background()
	svc, st := newService(t)

	row, err := svc.AddPayment(ctx, "s1", validPayment)
	if err != nil {
		t.Fatalf("AddPayment: %v", err)
	}
	if row.State != core.Committed {
		t.Fatalf("row state = %v, want committed", row.State)
	}

	v, err := st.ReadOnce(ctx, "Staff/s1/payments/"+row.ID)
	if err != nil || v == nil {
		t.Fatalf("row not persisted: %v %v", v, err)
	}
	doc := v.(map[string]any)
	if doc["amount"] != "₹1,200" || doc["state"] != "committed" {
		t.Fatalf("unexpected stored doc: %v", doc)
	}

	// the ledger reads as ordinary records
	node, _ := st.ReadOnce(ctx, "Staff/s1/payments")
	recs := normalize.Records(node, "Staff/s1/payments")
	if len(recs) != 1 || recs[0].AmountNum != 1200 {
		t.Fatalf("unexpected records from ledger: %+v", recs)
	}
}

func TestCommittedRowIsLocked(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	row, err := svc.AddPayment(ctx, "s1", validPayment)
	if err != nil {
		t.Fatalf("AddPayment: %v", err)
	}
	_, err = svc.EditPayment(ctx, "s1", row.ID, core.PaymentRow{Date: "2024-03-16", Amount: "1"})
	if !errors.Is(err, core.ErrRowLocked) {
		t.Fatalf("expected ErrRowLocked, got %v", err)
	}
}

func TestSavedRowCannotBeEdited(t *testing.T) {
	ctx := context.Background()
	svc, st := newService(t)

	first, err := svc.AddWork(ctx, "s1", core.WorkRow{Date: "2024-03-01", Hours: "4", Task: "Cleaning"})
	if err != nil {
		t.Fatalf("AddWork: %v", err)
	}
	second, err := svc.AddWork(ctx, "s1", core.WorkRow{Date: "2024-03-02", Hours: "2", Task: "Cooking"})
	if err != nil {
		t.Fatalf("AddWork: %v", err)
	}
	if first.State != core.Committed || second.State != core.Committed {
		t.Fatalf("added rows not committed: %+v %+v", first, second)
	}

	if _, err := svc.EditWork(ctx, "s1", first.ID, core.WorkRow{Date: "2024-03-01", Hours: "99", Task: "Cleaning"}); !errors.Is(err, core.ErrRowLocked) {
		t.Fatalf("expected ErrRowLocked, got %v", err)
	}

	v, _ := st.ReadOnce(ctx, "Staff/s1/work/"+first.ID)
	doc := v.(map[string]any)
	if doc["hours"] != "4" || doc["state"] != "committed" {
		t.Fatalf("stored row changed: %v", doc)
	}

	listed, err := svc.ListWork(ctx, "s1")
	if err != nil {
		t.Fatalf("ListWork: %v", err)
	}
	if len(listed) != 2 || listed[0].ID != first.ID || listed[1].ID != second.ID {
		t.Fatalf("unexpected order: %+v", listed)
	}
}

func TestEmptyDraftIsFilledOnceThenLocked(t *testing.T) {
	ctx := context.Background()
	svc, st := newService(t)

	placeholder := map[string]any{"rowId": "pay-open", "state": "draft", "createdAt": "2024-03-01T08:00:00Z"}
	if err := st.Write(ctx, "Staff/s1/payments/pay-open", placeholder); err != nil {
		t.Fatalf("write placeholder: %v", err)
	}

	filled, err := svc.EditPayment(ctx, "s1", "pay-open", validPayment)
	if err != nil {
		t.Fatalf("EditPayment: %v", err)
	}
	if filled.State != core.Committed || filled.Data.Amount != "₹1,200" {
		t.Fatalf("unexpected filled row: %+v", filled)
	}
	v, _ := st.ReadOnce(ctx, "Staff/s1/payments/pay-open/state")
	if v != "committed" {
		t.Fatalf("stored state = %v, want committed", v)
	}

	if _, err := svc.EditPayment(ctx, "s1", "pay-open", core.PaymentRow{Date: "2024-03-16", Amount: "99999"}); !errors.Is(err, core.ErrRowLocked) {
		t.Fatalf("expected ErrRowLocked on second edit, got %v", err)
	}
}

func TestStoredDraftWithValuesIsLocked(t *testing.T) {
	ctx := context.Background()
	svc, st := newService(t)

	stale := map[string]any{"rowId": "pay-old", "state": "draft", "createdAt": "2024-03-01T08:00:00Z", "date": "2024-03-01", "amount": "500"}
	if err := st.Write(ctx, "Staff/s1/payments/pay-old", stale); err != nil {
		t.Fatalf("write row: %v", err)
	}

	listed, err := svc.ListPayments(ctx, "s1")
	if err != nil {
		t.Fatalf("ListPayments: %v", err)
	}
	if len(listed) != 1 || listed[0].State != core.Committed {
		t.Fatalf("row with values should read as committed: %+v", listed)
	}
	if _, err := svc.EditPayment(ctx, "s1", "pay-old", validPayment); !errors.Is(err, core.ErrRowLocked) {
		t.Fatalf("expected ErrRowLocked, got %v", err)
	}

	if _, err := svc.CommitPayments(ctx, "s1"); err != nil {
		t.Fatalf("CommitPayments: %v", err)
	}
	v, _ := st.ReadOnce(ctx, "Staff/s1/payments/pay-old")
	doc := v.(map[string]any)
	if doc["state"] != "committed" || doc["amount"] != "500" {
		t.Fatalf("commit did not rewrite stored state: %v", doc)
	}
}

func TestAddPaymentValidation(t *testing.T) {
	ctx := context.Background()
	svc, st := newService(t)

	_, err := svc.AddPayment(ctx, "s1", core.PaymentRow{Date: "not a date", Amount: "0", Mode: "barter"})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	for _, f := range []string{"date", "amount", "mode"} {
		if verr.Fields[f] == "" {
			t.Errorf("missing error for %s in %v", f, verr.Fields)
		}
	}

	if v, _ := st.ReadOnce(ctx, "Staff/s1/payments"); v != nil {
		t.Fatalf("invalid row was persisted: %v", v)
	}
}

func TestUnknownStaffAndRows(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	if _, err := svc.AddPayment(ctx, "ghost", validPayment); !errors.Is(err, ErrStaffNotFound) {
		t.Fatalf("expected ErrStaffNotFound, got %v", err)
	}
	if _, err := svc.EditPayment(ctx, "s1", "pay-missing", validPayment); !errors.Is(err, ErrRowNotFound) {
		t.Fatalf("expected ErrRowNotFound, got %v", err)
	}
	if _, err := svc.ListPayments(ctx, "a/b"); !errors.Is(err, store.ErrInvalidPath) {
		t.Fatalf("expected ErrInvalidPath, got %v", err)
	}
}
