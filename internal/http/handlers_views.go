package http

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"opsconsole/internal/aggregate"
	"opsconsole/internal/core"
	"opsconsole/internal/export"
	"opsconsole/internal/export/sheets"
	applog "opsconsole/internal/log"
	"opsconsole/internal/search"
	"opsconsole/internal/view"
)

// recordJSON is the API shape of a normalized record.
type recordJSON struct {
	ID            string        `json:"id"`
	IDSynthesized bool          `json:"idSynthesized,omitempty"`
	Date          string        `json:"date,omitempty"`
	DateRaw       any           `json:"dateRaw,omitempty"`
	Amount        float64       `json:"amount"`
	Category      core.Category `json:"category"`
	CategoryRaw   string        `json:"categoryRaw,omitempty"`
	Approved      bool          `json:"approved"`
	Asset         bool          `json:"asset"`
	Description   string        `json:"description,omitempty"`
	Vendor        string        `json:"vendor,omitempty"`
	Receipt       string        `json:"receipt,omitempty"`
	Origin        string        `json:"origin"`
}

func toRecordJSON(rec core.NormalizedRecord) recordJSON {
	return recordJSON{
		ID:            rec.ID,
		IDSynthesized: rec.IDSynthesized,
		Date:          rec.DateParsed.ISO(),
		DateRaw:       rec.DateRaw,
		Amount:        rec.AmountNum,
		Category:      rec.Category,
		CategoryRaw:   rec.CategoryNormalized,
		Approved:      rec.Approval == core.Approved,
		Asset:         rec.Asset,
		Description:   rec.Description,
		Vendor:        rec.Vendor,
		Receipt:       rec.Receipt,
		Origin:        rec.Origin,
	}
}

// viewSummary describes a view without its records.
type viewSummary struct {
	Name      string            `json:"name"`
	Paths     []string          `json:"paths"`
	Filter    view.Filter       `json:"filter"`
	Version   uint64            `json:"version"`
	Records   int               `json:"records"`
	Total     float64           `json:"total"`
	Errors    map[string]string `json:"errors,omitempty"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

func summarize(def view.Definition, snap view.Snapshot) viewSummary {
	total := decimal.Zero
	for _, rec := range snap.Records {
		total = total.Add(decimal.NewFromFloat(rec.AmountNum))
	}
	return viewSummary{
		Name:      def.Name,
		Paths:     def.Paths,
		Filter:    def.Filter,
		Version:   snap.Version,
		Records:   len(snap.Records),
		Total:     total.InexactFloat64(),
		Errors:    snap.Errors,
		UpdatedAt: snap.UpdatedAt,
	}
}

func (s *Server) handleListViews(w http.ResponseWriter, r *http.Request) {
	names := s.opts.Views.Names()
	out := make([]viewSummary, 0, len(names))
	for _, name := range names {
		def, _ := s.opts.Views.Definition(name)
		snap, _ := s.opts.Views.Snapshot(name)
		out = append(out, summarize(def, snap))
	}
	NewResponse().Body(map[string]any{"views": out}).Write(w)
}

func (s *Server) handleViewSummary(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}
	def, _ := s.opts.Views.Definition(snap.View)
	NewResponse().Body(summarize(def, snap)).Write(w)
}

// filterRecords applies the optional year, category and q query filters.
func filterRecords(r *http.Request, recs []core.NormalizedRecord) ([]core.NormalizedRecord, error) {
	year, err := parseYearParam(r)
	if err != nil {
		return nil, err
	}
	var category core.Category
	if c := strings.TrimSpace(r.URL.Query().Get("category")); c != "" {
		parsed, ok := core.ParseCategory(c)
		if !ok {
			return nil, fmt.Errorf("unknown category %q", c)
		}
		category = parsed
	}
	q := strings.TrimSpace(r.URL.Query().Get("q"))

	if year == "" && category == "" && q == "" {
		return recs, nil
	}
	out := make([]core.NormalizedRecord, 0, len(recs))
	for _, rec := range recs {
		if year != "" && rec.DateParsed.YearKey() != year {
			continue
		}
		if category != "" && rec.Category != category {
			continue
		}
		if q != "" && !search.Matches(rec.Raw, q) {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}
	recs, err := filterRecords(r, snap.Records)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	out := make([]recordJSON, len(recs))
	for i, rec := range recs {
		out[i] = toRecordJSON(rec)
	}
	NewResponse().
		Header("ETag", etag(snap)).
		Body(map[string]any{"view": snap.View, "version": snap.Version, "records": out}).
		Write(w)
}

func (s *Server) handleYears(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}
	b := s.bucketsFor(snap)
	type yearJSON struct {
		Year   string   `json:"year"`
		Total  float64  `json:"total"`
		Count  int      `json:"count"`
		Months []string `json:"months"`
	}
	years := b.SortedYears()
	out := make([]yearJSON, 0, len(years))
	for _, y := range years {
		yb := b.Years[y]
		out = append(out, yearJSON{Year: y, Total: yb.Total.InexactFloat64(), Count: yb.Count, Months: b.SortedMonths(y)})
	}
	NewResponse().Body(map[string]any{"view": snap.View, "version": snap.Version, "years": out}).Write(w)
}

// matrixFor resolves the year query and returns the cached matrix.
func (s *Server) matrixFor(w http.ResponseWriter, r *http.Request) (view.Snapshot, aggregate.Matrix, bool) {
	snap, ok := s.snapshot(w, r)
	if !ok {
		return snap, aggregate.Matrix{}, false
	}
	requested, err := parseYearParam(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return snap, aggregate.Matrix{}, false
	}
	b := s.bucketsFor(snap)
	return snap, b.Matrix(b.ResolveYear(requested, time.Now()), s.opts.Categories), true
}

func (s *Server) handleMatrix(w http.ResponseWriter, r *http.Request) {
	snap, m, ok := s.matrixFor(w, r)
	if !ok {
		return
	}
	NewResponse().
		Header("ETag", etag(snap)).
		Body(map[string]any{
			"view":        snap.View,
			"version":     snap.Version,
			"matrix":      m,
			"monthTotals": m.MonthTotals(),
		}).
		Write(w)
}

func (s *Server) handleRecordsCSV(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}
	recs, err := filterRecords(r, snap.Records)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	writeCSV(w, r, snap.View+"-records.csv", export.RecordsTable(recs))
}

func (s *Server) handleMatrixCSV(w http.ResponseWriter, r *http.Request) {
	snap, m, ok := s.matrixFor(w, r)
	if !ok {
		return
	}
	writeCSV(w, r, snap.View+"-"+m.Year+".csv", export.MatrixTable(m))
}

func writeCSV(w http.ResponseWriter, r *http.Request, filename string, t export.Table) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if err := export.WriteCSV(w, t); err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "CSV export failed",
			applog.FieldOperation, applog.OpExport,
			applog.FieldError, err)
	}
}

// handleExportSheets writes the view's records and the chosen year's
// matrix to the configured workbook.
func (s *Server) handleExportSheets(w http.ResponseWriter, r *http.Request) {
	if s.opts.Sheets == nil {
		ErrorResponse(http.StatusNotImplemented, "spreadsheet export is not configured").Write(w)
		return
	}
	snap, m, ok := s.matrixFor(w, r)
	if !ok {
		return
	}

	recordsTab := sheets.TabName(snap.View, "records")
	matrixTab := sheets.TabName(snap.View, m.Year)
	ctx := r.Context()
	if err := s.opts.Sheets.WriteTable(ctx, recordsTab, export.RecordsTable(snap.Records)); err != nil {
		s.exportFailed(w, r, snap, err)
		return
	}
	if err := s.opts.Sheets.WriteTable(ctx, matrixTab, export.MatrixTable(m)); err != nil {
		s.exportFailed(w, r, snap, err)
		return
	}

	applog.FromContext(ctx).InfoContext(ctx, "View exported",
		applog.NewFields().
			WithOperation(applog.OpExport).
			WithView(snap.View, snap.Version).
			WithYear(m.Year).
			ToSlice()...)
	NewResponse().Body(map[string]any{
		"view":    snap.View,
		"version": snap.Version,
		"tabs":    []string{recordsTab, matrixTab},
	}).Write(w)
}

func (s *Server) exportFailed(w http.ResponseWriter, r *http.Request, snap view.Snapshot, err error) {
	applog.FromContext(r.Context()).ErrorContext(r.Context(), "Spreadsheet export failed",
		applog.NewFields().
			WithOperation(applog.OpExport).
			WithView(snap.View, snap.Version).
			WithError(err).
			ToSlice()...)
	ErrorResponse(http.StatusBadGateway, "spreadsheet export failed").Write(w)
}

func etag(snap view.Snapshot) string {
	return fmt.Sprintf(`W/"%s-%d"`, snap.View, snap.Version)
}
