// Package services holds the write-side operations of the console: staff
// payment and work ledgers with append-only, lockable rows.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"opsconsole/internal/core"
	applog "opsconsole/internal/log"
	"opsconsole/internal/store"
)

var (
	ErrStaffNotFound = errors.New("staff member not found")
	ErrRowNotFound   = errors.New("ledger row not found")
)

// ValidationError carries per-field problems for a rejected row.
type ValidationError struct {
	Fields core.FieldErrors
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+" "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Ledger names under Staff/<id>.
const (
	LedgerPayments = "payments"
	LedgerWork     = "work"
)

type ledgerStore interface {
	store.Reader
	store.Writer
}

// PaymentService keeps the payments and work ledgers of staff members.
type PaymentService struct {
	store  ledgerStore
	logger *applog.Logger
	now    func() time.Time
}

func NewPaymentService(st ledgerStore, logger *applog.Logger) *PaymentService {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &PaymentService{store: st, logger: logger.WithComponent(applog.ComponentPayments), now: time.Now}
}

// AddPayment appends a payment row. A saved row always carries values,
// so it is committed and can no longer be edited.
func (s *PaymentService) AddPayment(ctx context.Context, staffID string, p core.PaymentRow) (core.Row[core.PaymentRow], error) {
	return addRow(ctx, s, staffID, LedgerPayments, p, core.ValidatePayment)
}

// AddWork appends a work row, committed like payments.
func (s *PaymentService) AddWork(ctx context.Context, staffID string, w core.WorkRow) (core.Row[core.WorkRow], error) {
	return addRow(ctx, s, staffID, LedgerWork, w, core.ValidateWork)
}

// EditPayment fills an empty draft payment stored in the ledger and
// commits it. Rows that already carry values yield core.ErrRowLocked.
func (s *PaymentService) EditPayment(ctx context.Context, staffID, rowID string, p core.PaymentRow) (core.Row[core.PaymentRow], error) {
	return editRow(ctx, s, staffID, LedgerPayments, rowID, p, core.ValidatePayment)
}

// EditWork fills an empty draft work row and commits it.
func (s *PaymentService) EditWork(ctx context.Context, staffID, rowID string, w core.WorkRow) (core.Row[core.WorkRow], error) {
	return editRow(ctx, s, staffID, LedgerWork, rowID, w, core.ValidateWork)
}

// CommitPayments locks every non-empty draft payment.
func (s *PaymentService) CommitPayments(ctx context.Context, staffID string) ([]core.Row[core.PaymentRow], error) {
	return commitRows[core.PaymentRow](ctx, s, staffID, LedgerPayments)
}

// CommitWork locks every non-empty draft work row.
func (s *PaymentService) CommitWork(ctx context.Context, staffID string) ([]core.Row[core.WorkRow], error) {
	return commitRows[core.WorkRow](ctx, s, staffID, LedgerWork)
}

func (s *PaymentService) ListPayments(ctx context.Context, staffID string) ([]core.Row[core.PaymentRow], error) {
	return listRows[core.PaymentRow](ctx, s, staffID, LedgerPayments)
}

func (s *PaymentService) ListWork(ctx context.Context, staffID string) ([]core.Row[core.WorkRow], error) {
	return listRows[core.WorkRow](ctx, s, staffID, LedgerWork)
}

func staffPath(staffID string) (string, error) {
	id := strings.TrimSpace(staffID)
	p := store.JoinPath("Staff", id)
	if _, err := store.SplitPath(p); err != nil || id == "" || strings.Contains(id, "/") {
		return "", fmt.Errorf("staff id %q: %w", staffID, store.ErrInvalidPath)
	}
	return p, nil
}

func (s *PaymentService) requireStaff(ctx context.Context, staffID string) (string, error) {
	p, err := staffPath(staffID)
	if err != nil {
		return "", err
	}
	v, err := s.store.ReadOnce(ctx, p)
	if err != nil {
		return "", fmt.Errorf("read staff %s: %w", staffID, err)
	}
	if v == nil {
		return "", fmt.Errorf("%s: %w", staffID, ErrStaffNotFound)
	}
	return p, nil
}

func addRow[T core.Valued](ctx context.Context, s *PaymentService, staffID, ledger string, data T, check func(T) core.FieldErrors) (core.Row[T], error) {
	if errs := check(data); len(errs) > 0 {
		return core.Row[T]{}, &ValidationError{Fields: errs}
	}
	base, err := s.requireStaff(ctx, staffID)
	if err != nil {
		return core.Row[T]{}, err
	}

	rows := core.AppendRow[T](nil, newRowID(ledger), data)
	row := rows[0].Commit()

	if err := saveRow(ctx, s, base, ledger, row, s.now()); err != nil {
		return core.Row[T]{}, err
	}
	s.logger.InfoContext(ctx, "Ledger row added",
		applog.FieldOperation, applog.OpAdd,
		applog.FieldStaffID, staffID,
		applog.FieldRowID, row.ID,
		"ledger", ledger,
		"state", row.State.String())
	return row, nil
}

func editRow[T core.Valued](ctx context.Context, s *PaymentService, staffID, ledger, rowID string, data T, check func(T) core.FieldErrors) (core.Row[T], error) {
	base, err := s.requireStaff(ctx, staffID)
	if err != nil {
		return core.Row[T]{}, err
	}
	rows, meta, err := loadRows[T](ctx, s.store, base, ledger)
	if err != nil {
		return core.Row[T]{}, err
	}
	idx := indexOf(rows, rowID)
	if idx < 0 {
		return core.Row[T]{}, fmt.Errorf("%s/%s: %w", ledger, rowID, ErrRowNotFound)
	}
	if rows[idx].Locked() {
		return core.Row[T]{}, fmt.Errorf("%s/%s: %w", ledger, rowID, core.ErrRowLocked)
	}
	if errs := check(data); len(errs) > 0 {
		return core.Row[T]{}, &ValidationError{Fields: errs}
	}

	rows, err = core.EditRow(rows, idx, data)
	if err != nil {
		return core.Row[T]{}, err
	}
	row := rows[idx].Commit()
	if err := saveRow(ctx, s, base, ledger, row, meta[rowID].created); err != nil {
		return core.Row[T]{}, err
	}
	s.logger.InfoContext(ctx, "Ledger row edited",
		applog.FieldOperation, applog.OpEdit,
		applog.FieldStaffID, staffID,
		applog.FieldRowID, rowID,
		"ledger", ledger,
		"state", row.State.String())
	return row, nil
}

func commitRows[T core.Valued](ctx context.Context, s *PaymentService, staffID, ledger string) ([]core.Row[T], error) {
	base, err := s.requireStaff(ctx, staffID)
	if err != nil {
		return nil, err
	}
	rows, meta, err := loadRows[T](ctx, s.store, base, ledger)
	if err != nil {
		return nil, err
	}

	// Rows read back are already committed when they carry values; rewrite
	// the ones whose stored state still says draft.
	committed := core.CommitAll(rows)
	partial := map[string]any{}
	for _, r := range committed {
		if m := meta[r.ID]; r.State.String() != m.state {
			doc, err := encodeRow(r, m.created)
			if err != nil {
				return nil, err
			}
			partial[ledger+"/"+r.ID] = doc
		}
	}
	if len(partial) > 0 {
		if err := s.store.Update(ctx, base, partial); err != nil {
			return nil, fmt.Errorf("commit %s: %w", ledger, err)
		}
	}
	s.logger.InfoContext(ctx, "Ledger committed",
		applog.FieldOperation, applog.OpCommit,
		applog.FieldStaffID, staffID,
		"ledger", ledger,
		"rows", len(partial))
	return committed, nil
}

func listRows[T core.Valued](ctx context.Context, s *PaymentService, staffID, ledger string) ([]core.Row[T], error) {
	base, err := s.requireStaff(ctx, staffID)
	if err != nil {
		return nil, err
	}
	rows, _, err := loadRows[T](ctx, s.store, base, ledger)
	return rows, err
}

func saveRow[T core.Valued](ctx context.Context, s *PaymentService, base, ledger string, row core.Row[T], created time.Time) error {
	doc, err := encodeRow(row, created)
	if err != nil {
		return err
	}
	if err := s.store.Update(ctx, base, map[string]any{ledger + "/" + row.ID: doc}); err != nil {
		return fmt.Errorf("save %s row: %w", ledger, err)
	}
	return nil
}

// rowMeta is stored next to the row's own fields so the ledgers read as
// ordinary records in views and search.
type rowMeta struct {
	RowID     string `json:"rowId"`
	State     string `json:"state"`
	CreatedAt string `json:"createdAt"`
}

func encodeRow[T core.Valued](row core.Row[T], created time.Time) (map[string]any, error) {
	b, err := json.Marshal(row.Data)
	if err != nil {
		return nil, fmt.Errorf("encode row: %w", err)
	}
	doc := map[string]any{}
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("encode row: %w", err)
	}
	doc["rowId"] = row.ID
	doc["state"] = row.State.String()
	doc["createdAt"] = created.UTC().Format(time.RFC3339Nano)
	return doc, nil
}

// storedMeta is what loadRows reports about a row as persisted.
type storedMeta struct {
	created time.Time
	state   string
}

// loadRows reads a ledger in creation order. A saved row that carries
// values is committed whatever its stored state says.
func loadRows[T core.Valued](ctx context.Context, r store.Reader, base, ledger string) ([]core.Row[T], map[string]storedMeta, error) {
	v, err := r.ReadOnce(ctx, base+"/"+ledger)
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", ledger, err)
	}
	docs, _ := v.(map[string]any)

	type loaded struct {
		row  core.Row[T]
		meta storedMeta
	}
	items := make([]loaded, 0, len(docs))
	for key, doc := range docs {
		b, err := json.Marshal(doc)
		if err != nil {
			return nil, nil, fmt.Errorf("decode %s/%s: %w", ledger, key, err)
		}
		var data T
		var meta rowMeta
		if err := json.Unmarshal(b, &data); err != nil {
			return nil, nil, fmt.Errorf("decode %s/%s: %w", ledger, key, err)
		}
		if err := json.Unmarshal(b, &meta); err != nil {
			return nil, nil, fmt.Errorf("decode %s/%s: %w", ledger, key, err)
		}
		state := core.Draft
		if meta.State == core.Committed.String() {
			state = core.Committed
		}
		created, _ := time.Parse(time.RFC3339Nano, meta.CreatedAt)
		row := core.Row[T]{ID: key, Data: data, State: state}.Commit()
		items = append(items, loaded{row: row, meta: storedMeta{created: created, state: state.String()}})
	}

	sort.Slice(items, func(i, j int) bool {
		if !items[i].meta.created.Equal(items[j].meta.created) {
			return items[i].meta.created.Before(items[j].meta.created)
		}
		return items[i].row.ID < items[j].row.ID
	})

	rows := make([]core.Row[T], len(items))
	meta := make(map[string]storedMeta, len(items))
	for i, it := range items {
		rows[i] = it.row
		meta[it.row.ID] = it.meta
	}
	return rows, meta, nil
}

func indexOf[T core.Valued](rows []core.Row[T], id string) int {
	for i, r := range rows {
		if r.ID == id {
			return i
		}
	}
	return -1
}

func newRowID(ledger string) string {
	prefix := "pay"
	if ledger == LedgerWork {
		prefix = "wrk"
	}
	return prefix + "-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
