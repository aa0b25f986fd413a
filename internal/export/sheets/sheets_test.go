package sheets

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"opsconsole/internal/export"
)

func TestYearPrefixedName(t *testing.T) {
	tests := []struct {
		base string
		year int
		want string
	}{
		{"pettycash", 2024, "2024 pettycash"},
		{"2023 pettycash", 2024, "2023 pettycash"},
		{"  assets ", 2025, "2025 assets"},
		{"", 2024, ""},
	}
	for _, tt := range tests {
		if got := yearPrefixedName(tt.base, tt.year); got != tt.want {
			t.Errorf("yearPrefixedName(%q, %d) = %q, want %q", tt.base, tt.year, got, tt.want)
		}
	}
}

func TestTabName(t *testing.T) {
	if got := TabName("pettycash", "2024"); got != "2024 pettycash" {
		t.Fatalf("TabName = %q", got)
	}
	if got := TabName("pettycash", "Unknown"); got != "pettycash Unknown" {
		t.Fatalf("TabName = %q", got)
	}
}

func TestNewRequiresSpreadsheetAndCredentials(t *testing.T) {
	if _, err := New(context.Background(), "", Credentials{}, nil); err == nil {
		t.Fatal("expected error for missing spreadsheet id")
	}

	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")
	_, err := New(context.Background(), "sid", Credentials{}, nil)
	if err == nil || !strings.Contains(err.Error(), "missing service account credentials") {
		t.Fatalf("expected credentials error, got %v", err)
	}

	_, err = New(context.Background(), "sid", Credentials{File: "/does/not/exist.json"}, nil)
	if err == nil || !strings.Contains(err.Error(), "read service account file") {
		t.Fatalf("expected file error, got %v", err)
	}
}

type fakeSheetsAPI struct {
	mu       sync.Mutex
	tabs     []string
	added    []string
	cleared  []string
	written  [][]any
	writeRng string
	inputOpt string
}

func (f *fakeSheetsAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := r.URL.Path
	body, _ := io.ReadAll(r.Body)
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodGet:
		var sheets []map[string]any
		for _, t := range f.tabs {
			sheets = append(sheets, map[string]any{"properties": map[string]any{"title": t}})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"sheets": sheets})
	case strings.HasSuffix(path, ":batchUpdate"):
		var req gsheet.BatchUpdateSpreadsheetRequest
		_ = json.Unmarshal(body, &req)
		for _, rq := range req.Requests {
			f.added = append(f.added, rq.AddSheet.Properties.Title)
			f.tabs = append(f.tabs, rq.AddSheet.Properties.Title)
		}
		_, _ = io.WriteString(w, `{}`)
	case strings.HasSuffix(path, ":clear"):
		f.cleared = append(f.cleared, path)
		_, _ = io.WriteString(w, `{}`)
	case r.Method == http.MethodPut:
		var vr struct {
			Values [][]any `json:"values"`
		}
		_ = json.Unmarshal(body, &vr)
		f.written = vr.Values
		f.writeRng = path
		f.inputOpt = r.URL.Query().Get("valueInputOption")
		_, _ = io.WriteString(w, `{}`)
	default:
		http.Error(w, "unexpected request "+r.Method+" "+path, http.StatusNotFound)
	}
}

func TestWriteTableCreatesTabAndWritesValues(t *testing.T) {
	api := &fakeSheetsAPI{tabs: []string{"2023 pettycash"}}
	srv := httptest.NewServer(api)
	defer srv.Close()

	ctx := context.Background()
	svc, err := gsheet.NewService(ctx, goption.WithEndpoint(srv.URL+"/"), goption.WithoutAuthentication())
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	e := NewWithService(svc, "sid", nil)

	tbl := export.Table{Header: []string{"Category", "Total", "Note"}, Rows: [][]string{{"Food", "₹1,200", "=SUM(A1:A9)"}}}
	if err := e.WriteTable(ctx, "2024 pettycash", tbl); err != nil {
		t.Fatalf("WriteTable: %v", err)
	}

	api.mu.Lock()
	defer api.mu.Unlock()
	if len(api.added) != 1 || api.added[0] != "2024 pettycash" {
		t.Fatalf("added tabs = %v", api.added)
	}
	if len(api.cleared) != 1 {
		t.Fatalf("expected one clear, got %v", api.cleared)
	}
	if len(api.written) != 2 || api.written[1][1] != "₹1,200" || api.written[1][2] != "=SUM(A1:A9)" {
		t.Fatalf("written = %v", api.written)
	}
	// Cells keep the displayed text; the workbook must not reparse them
	// into numbers, dates or formulas.
	if api.inputOpt != "RAW" {
		t.Fatalf("valueInputOption = %q, want RAW", api.inputOpt)
	}

	// second export to an existing tab does not add it again
	api.mu.Unlock()
	err = e.WriteTable(ctx, "2024 pettycash", tbl)
	api.mu.Lock()
	if err != nil {
		t.Fatalf("WriteTable: %v", err)
	}
	if len(api.added) != 1 {
		t.Fatalf("tab added twice: %v", api.added)
	}
}
