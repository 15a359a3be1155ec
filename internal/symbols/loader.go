// Package symbols reads the company listing that drives batch runs
package symbols

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
)

// Columns accepted as the symbol column, in order of preference
var Columns = []string{"Symbol", "NASDAQ Symbol"}

// Load returns the first limit symbols of the listing at path in file order.
// A non-positive limit returns every row.
func Load(path string, limit int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open symbol list: %w", err)
	}
	defer f.Close()

	symbols, err := Read(f, limit)
	if err != nil {
		return nil, fmt.Errorf("symbol list %s: %w", path, err)
	}
	return symbols, nil
}

// Read parses a listing from r
func Read(r io.Reader, limit int) ([]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("empty listing")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	col := symbolColumn(header)
	if col < 0 {
		return nil, fmt.Errorf("no %q column in header %v", Columns[0], header)
	}

	var out []string
	// row counts file lines; the header is row 1
	for row := 2; limit <= 0 || len(out) < limit; row++ {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row %d: %w", row, err)
		}
		var s string
		if col < len(rec) {
			s = strings.TrimSpace(rec[col])
		}
		if s == "" {
			log.Warn().Int("row", row).Strs("record", rec).Msg("Listing row without a symbol skipped")
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func symbolColumn(header []string) int {
	for _, want := range Columns {
		for i, h := range header {
			if strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")) == want {
				return i
			}
		}
	}
	return -1
}
