package commands

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opsconsole/internal/export"
)

const dump = `{
  "PettyCash": {
    "p1": {"amount": 100, "date": "2024-02-01", "category": "Food", "description": "team lunch"},
    "p2": {"amount": "₹2,500", "date": "05/03/2024", "category": "IT Assets", "description": "monitor", "status": "approved"},
    "p3": {"amount": 40, "date": "2023-12-30", "category": "Travel", "description": "auto fare"}
  },
  "Staff": {
    "s1": {"name": "Asha", "designation": "Cook"},
    "s2": {"name": "Ravi", "designation": "Driver"}
  }
}`

// isolate clears the settings a developer shell might export.
func isolate(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"VIEWS_FILE", "SEARCH_PATHS", "SEARCH_MAX_DEPTH", "DATA_BACKEND", "DATA_DIR",
		"GOOGLE_SPREADSHEET_ID", "LOG_LEVEL", "LOG_FORMAT", "AMQP_URL",
	} {
		t.Setenv(k, "")
	}
}

func writeDump(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tree.json")
	require.NoError(t, os.WriteFile(path, []byte(dump), 0o644))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	isolate(t)
	var out, errOut bytes.Buffer
	root := NewRootCommand()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"--env-file", "", "--log-level", "error"}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestViewsCommand(t *testing.T) {
	out, err := run(t, "--data", writeDump(t), "views")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 5)
	assert.True(t, strings.HasPrefix(lines[0], "VIEW"))

	counts := map[string]string{}
	for _, l := range lines[1:] {
		fields := strings.Fields(l)
		counts[fields[0]] = fields[1]
	}
	assert.Equal(t, map[string]string{
		"pettycash":       "3",
		"assets":          "1",
		"approved":        "1",
		"deleted-workers": "0",
	}, counts)
}

func TestMatrixCommandCSV(t *testing.T) {
	out, err := run(t, "--data", writeDump(t), "matrix", "--view", "pettycash")
	require.NoError(t, err)

	rows, err := csv.NewReader(strings.NewReader(out)).ReadAll()
	require.NoError(t, err)
	require.NotEmpty(t, rows)
	assert.Equal(t, "Category", rows[0][0])
	assert.Len(t, rows[0], 14)

	byCat := map[string][]string{}
	for _, r := range rows[1:] {
		byCat[r[0]] = r
	}
	require.Contains(t, byCat, "Food")
	assert.Equal(t, "₹100", byCat["Food"][2])
	assert.Equal(t, "₹2,500", byCat["Assets"][3])
	// Travel only has a 2023 record; the default year is 2024.
	require.Contains(t, byCat, "Travel")
	assert.Equal(t, "₹0", byCat["Travel"][13])
	assert.Equal(t, "₹2,600", byCat["Total"][13])
}

func TestMatrixCommandJSON(t *testing.T) {
	out, err := run(t, "--data", writeDump(t), "matrix", "--year", "2023", "--format", "json")
	require.NoError(t, err)

	var got struct {
		Matrix struct {
			Year      string  `json:"year"`
			YearTotal float64 `json:"yearTotal"`
			YearCount int     `json:"yearCount"`
		} `json:"matrix"`
		MonthTotals [12]float64 `json:"monthTotals"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "2023", got.Matrix.Year)
	assert.Equal(t, 40.0, got.Matrix.YearTotal)
	assert.Equal(t, 1, got.Matrix.YearCount)
	assert.Equal(t, 40.0, got.MonthTotals[11])
}

func TestMatrixCommandErrors(t *testing.T) {
	_, err := run(t, "--data", writeDump(t), "matrix", "--view", "nope")
	assert.ErrorContains(t, err, `unknown view "nope"`)

	_, err = run(t, "--data", writeDump(t), "matrix", "--format", "xml")
	assert.ErrorContains(t, err, "unknown format")

	_, err = run(t, "--data", filepath.Join(t.TempDir(), "missing.json"), "matrix")
	assert.ErrorContains(t, err, "read data file")
}

func TestSearchCommand(t *testing.T) {
	out, err := run(t, "--data", writeDump(t), "search", "asha", "--path", "Staff")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 1)

	var m struct {
		Path   string         `json:"path"`
		Fields map[string]any `json:"fields"`
	}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &m))
	assert.Equal(t, "Staff/s1", m.Path)
	assert.Equal(t, "Asha", m.Fields["name"])
}

func TestSearchCommandRejectsDepth(t *testing.T) {
	_, err := run(t, "--data", writeDump(t), "search", "x", "--depth", "40")
	assert.ErrorContains(t, err, "invalid depth")
}

func TestExportRecordsCSVToFile(t *testing.T) {
	target := filepath.Join(t.TempDir(), "assets.csv")
	_, err := run(t, "--data", writeDump(t), "export", "--view", "assets", "-o", target)
	require.NoError(t, err)

	b, err := os.ReadFile(target)
	require.NoError(t, err)
	rows, err := csv.NewReader(bytes.NewReader(b)).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Date", rows[0][0])
	assert.Contains(t, rows[1], "monitor")
}

type recordingSheets struct {
	tabs map[string]export.Table
	err  error
}

func (r *recordingSheets) WriteTable(ctx context.Context, tab string, t export.Table) error {
	if r.err != nil {
		return r.err
	}
	r.tabs[tab] = t
	return nil
}

func TestExportMatrixToSheets(t *testing.T) {
	rec := &recordingSheets{tabs: map[string]export.Table{}}
	orig := newSheetsWriter
	newSheetsWriter = func(ctx context.Context, a *app) (sheetsWriter, error) { return rec, nil }
	t.Cleanup(func() { newSheetsWriter = orig })

	out, err := run(t, "--data", writeDump(t), "export", "--kind", "matrix", "--to", "sheets")
	require.NoError(t, err)
	assert.Contains(t, out, `"2024 pettycash"`)
	require.Contains(t, rec.tabs, "2024 pettycash")

	rec.err = errors.New("quota exceeded")
	_, err = run(t, "--data", writeDump(t), "export", "--to", "sheets")
	assert.ErrorContains(t, err, "quota exceeded")
}

func TestExportSheetsRequiresSpreadsheet(t *testing.T) {
	_, err := run(t, "--data", writeDump(t), "export", "--to", "sheets")
	assert.ErrorContains(t, err, "GOOGLE_SPREADSHEET_ID")
}

func TestViewsFileFlag(t *testing.T) {
	path := filepath.Join(t.TempDir(), "views.yaml")
	require.NoError(t, os.WriteFile(path, []byte("views:\n  - name: team\n    paths: [Staff]\n"), 0o644))

	out, err := run(t, "--data", writeDump(t), "--views", path, "views")
	require.NoError(t, err)
	assert.Contains(t, out, "team")
	assert.NotContains(t, out, "pettycash")
}
