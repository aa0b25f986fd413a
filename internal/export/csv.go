package export

import (
	"encoding/csv"
	"fmt"
	"io"
)

// WriteCSV writes t with RFC 4180 quoting.
func WriteCSV(w io.Writer, t Table) error {
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(t.Values()); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}
