package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"unicode"

	"opsconsole/internal/core"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 64 << 10

// decodeJSON reads a single JSON object from the body into dst. Unknown
// fields are rejected.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return fmt.Errorf("request body larger than %d bytes", maxErr.Limit)
		}
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if dec.More() {
		return errors.New("request body must hold a single JSON object")
	}
	return nil
}

// rowRequest is the body of the ledger add and edit endpoints.
type rowRequest[T any] struct {
	Data T `json:"data"`
}

// sanitizePayment trims every field and strips control characters.
func sanitizePayment(p core.PaymentRow) core.PaymentRow {
	return core.PaymentRow{
		Date:   sanitizeInput(p.Date),
		Amount: sanitizeInput(p.Amount),
		Mode:   strings.ToLower(sanitizeInput(p.Mode)),
		Note:   sanitizeInput(p.Note),
	}
}

func sanitizeWork(wr core.WorkRow) core.WorkRow {
	return core.WorkRow{
		Date:  sanitizeInput(wr.Date),
		Hours: sanitizeInput(wr.Hours),
		Task:  sanitizeInput(wr.Task),
		Note:  sanitizeInput(wr.Note),
	}
}

// sanitizeInput removes control characters except tab and newlines, then
// trims whitespace.
func sanitizeInput(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}

// parseYearParam returns the "year" query value. It must be a four digit
// year or core.UnknownBucket; "" means not given.
func parseYearParam(r *http.Request) (string, error) {
	v := strings.TrimSpace(r.URL.Query().Get("year"))
	if v == "" || v == core.UnknownBucket {
		return v, nil
	}
	y, err := strconv.Atoi(v)
	if err != nil || y < 1000 || y > 9999 {
		return "", fmt.Errorf("invalid year %q", v)
	}
	return v, nil
}

// parseDepthParam returns the "depth" query value, 0 when absent.
func parseDepthParam(r *http.Request) (int, error) {
	v := strings.TrimSpace(r.URL.Query().Get("depth"))
	if v == "" {
		return 0, nil
	}
	d, err := strconv.Atoi(v)
	if err != nil || d < 1 || d > 16 {
		return 0, fmt.Errorf("invalid depth %q", v)
	}
	return d, nil
}
