package dataset

import (
	"encoding/csv"
	"os"

	"github.com/go-tabkit/tabkit/pkg/errors"
)

// ReadOption configures CSV parsing.
type ReadOption func(*readConfig)

type readConfig struct {
	comma   rune
	comment rune
}

// WithComma sets the field delimiter (default ',').
func WithComma(comma rune) ReadOption {
	return func(c *readConfig) {
		c.comma = comma
	}
}

// WithComment sets a comment character; lines beginning with it are skipped.
func WithComment(comment rune) ReadOption {
	return func(c *readConfig) {
		c.comment = comment
	}
}

// ReadCSV loads a delimited text file with a header row into a Table.
//
// The first record is taken as column names. Ragged records are a parse
// error, reported by the underlying csv reader with line information. I/O
// and parse errors are wrapped with the file path and propagate unmodified
// otherwise.
func ReadCSV(path string, opts ...ReadOption) (*Table, error) {
	cfg := readConfig{comma: ','}
	for _, opt := range opts {
		opt(&cfg)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open dataset %q", path)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.Comma = cfg.comma
	reader.Comment = cfg.comment

	records, err := reader.ReadAll()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse dataset %q", path)
	}
	if len(records) == 0 {
		return nil, errors.NewModelError("ReadCSV", "missing header row", errors.ErrEmptyData)
	}

	table, err := NewTable(records[0], records[1:])
	if err != nil {
		return nil, errors.Wrapf(err, "invalid dataset %q", path)
	}
	return table, nil
}
