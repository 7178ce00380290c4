package export

import (
	"encoding/csv"
	"fmt"
	"io"
)

// WriteCSV writes the header and rows of t. Quoting of delimiters, quotes
// and newlines is left to encoding/csv.
func WriteCSV(w io.Writer, t Table) error {
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(t.Records()); err != nil {
		return fmt.Errorf("write csv %q: %w", t.Title, err)
	}
	return nil
}
