package http

import (
	"context"
	"net/http"

	"opsconsole/internal/core"
	applog "opsconsole/internal/log"
	"opsconsole/internal/search"
)

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if s.opts.Reader == nil || len(s.opts.SearchPaths) == 0 {
		ErrorResponse(http.StatusNotImplemented, "search is not configured").Write(w)
		return
	}
	depth, err := parseDepthParam(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	if depth == 0 {
		depth = s.opts.SearchMaxDepth
	}
	q := sanitizeInput(r.URL.Query().Get("q"))

	matches := search.SearchPaths(r.Context(), s.opts.Reader, s.opts.SearchPaths, q,
		search.Options{MaxDepth: depth}, applog.FromContext(r.Context()).Slog())
	if matches == nil {
		matches = []search.Match{}
	}
	NewResponse().Body(map[string]any{"query": q, "results": matches}).Write(w)
}

// ledgerHandlers holds the per-ledger service calls so payments and work
// share one set of handlers.
type ledgerHandlers[T core.Valued] struct {
	list     func(ctx context.Context, staffID string) ([]core.Row[T], error)
	add      func(ctx context.Context, staffID string, data T) (core.Row[T], error)
	edit     func(ctx context.Context, staffID, rowID string, data T) (core.Row[T], error)
	commit   func(ctx context.Context, staffID string) ([]core.Row[T], error)
	sanitize func(T) T
}

func (h ledgerHandlers[T]) handleList(w http.ResponseWriter, r *http.Request) {
	rows, err := h.list(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	NewResponse().Body(map[string]any{"rows": nonNil(rows)}).Write(w)
}

func (h ledgerHandlers[T]) handleAdd(w http.ResponseWriter, r *http.Request) {
	var req rowRequest[T]
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	row, err := h.add(r.Context(), r.PathValue("id"), h.sanitize(req.Data))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	NewResponse().Status(http.StatusCreated).Body(row).Write(w)
}

func (h ledgerHandlers[T]) handleEdit(w http.ResponseWriter, r *http.Request) {
	var req rowRequest[T]
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	row, err := h.edit(r.Context(), r.PathValue("id"), r.PathValue("row"), h.sanitize(req.Data))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	NewResponse().Body(row).Write(w)
}

func (h ledgerHandlers[T]) handleCommit(w http.ResponseWriter, r *http.Request) {
	rows, err := h.commit(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	NewResponse().Body(map[string]any{"rows": nonNil(rows)}).Write(w)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func (s *Server) payments() ledgerHandlers[core.PaymentRow] {
	return ledgerHandlers[core.PaymentRow]{
		list:     s.opts.Ledger.ListPayments,
		add:      s.opts.Ledger.AddPayment,
		edit:     s.opts.Ledger.EditPayment,
		commit:   s.opts.Ledger.CommitPayments,
		sanitize: sanitizePayment,
	}
}

func (s *Server) work() ledgerHandlers[core.WorkRow] {
	return ledgerHandlers[core.WorkRow]{
		list:     s.opts.Ledger.ListWork,
		add:      s.opts.Ledger.AddWork,
		edit:     s.opts.Ledger.EditWork,
		commit:   s.opts.Ledger.CommitWork,
		sanitize: sanitizeWork,
	}
}

// routeLedger registers the list, add, edit and commit endpoints of one
// ledger below base.
func routeLedger[T core.Valued](mux *http.ServeMux, base string, h ledgerHandlers[T]) {
	mux.HandleFunc("GET "+base, h.handleList)
	mux.HandleFunc("POST "+base, h.handleAdd)
	mux.HandleFunc("PUT "+base+"/{row}", h.handleEdit)
	mux.HandleFunc("POST "+base+"/commit", h.handleCommit)
}

func notConfigured(what string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusNotImplemented, what+" is not configured").Write(w)
	}
}
