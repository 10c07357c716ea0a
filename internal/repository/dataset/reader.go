package dataset

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"

	"github.com/kailas-cloud/prindex/internal/domain"
)

const readBatch = 256

// columns holds leaf-level indexes of the pull request columns; -1 when absent.
type columns struct {
	id    int
	title int
	body  int
}

// resolveColumns finds the id, title and body columns by name. Other columns are ignored.
func resolveColumns(pf *parquet.File) (columns, error) {
	cols := columns{id: -1, title: -1, body: -1}
	for i, path := range pf.Schema().Columns() {
		if len(path) == 0 {
			continue
		}
		switch path[0] {
		case ColumnID:
			cols.id = i
		case ColumnTitle:
			cols.title = i
		case ColumnBody:
			cols.body = i
		}
	}
	if cols.id < 0 {
		return cols, fmt.Errorf("%w: %s", domain.ErrMissingColumn, ColumnID)
	}
	if cols.title < 0 {
		return cols, fmt.Errorf("%w: %s", domain.ErrMissingColumn, ColumnTitle)
	}
	return cols, nil
}

// toPullRequest extracts a record from a generic row. Nulls and a missing body become "".
func (c columns) toPullRequest(r parquet.Row) domain.PullRequest {
	var pr domain.PullRequest
	for _, v := range r {
		if v.IsNull() {
			continue
		}
		switch v.Column() {
		case c.id:
			pr.ID = v.String()
		case c.title:
			pr.Title = v.String()
		case c.body:
			pr.Body = v.String()
		}
	}
	return pr
}

type rowReader interface {
	ReadRows(rows []parquet.Row) (int, error)
}

// Reader streams pull requests from a parquet file in file order.
// Any file with id and title columns can be read; ids of any primitive type are stringified.
type Reader struct {
	file   *os.File
	pf     *parquet.File
	cols   columns
	groups []parquet.RowGroup
	group  int
	rows   rowReader
	buf    []parquet.Row
	n, pos int
}

// Open opens path for streaming.
func Open(path string) (*Reader, error) {
	cleanPath := filepath.Clean(path)
	f, err := os.Open(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}

	stat, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat: %w", err)
	}

	pf, err := parquet.OpenFile(f, stat.Size())
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("open parquet: %w", err)
	}

	cols, err := resolveColumns(pf)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%s: %w", filepath.Base(cleanPath), err)
	}

	return &Reader{
		file:   f,
		pf:     pf,
		cols:   cols,
		groups: pf.RowGroups(),
		buf:    make([]parquet.Row, readBatch),
	}, nil
}

// Len returns the number of records in the file.
func (r *Reader) Len() int {
	return int(r.pf.NumRows())
}

// Next returns the next record, or io.EOF after the last one.
func (r *Reader) Next() (domain.PullRequest, error) {
	for r.pos >= r.n {
		if err := r.fill(); err != nil {
			return domain.PullRequest{}, err
		}
	}
	pr := r.cols.toPullRequest(r.buf[r.pos])
	r.pos++
	return pr, nil
}

// fill reads the next batch of rows, moving across row groups. Returns io.EOF when done.
func (r *Reader) fill() error {
	r.pos, r.n = 0, 0
	if r.rows == nil {
		if r.group >= len(r.groups) {
			return io.EOF
		}
		r.rows = parquet.NewRowGroupReader(r.groups[r.group])
		r.group++
	}

	n, err := r.rows.ReadRows(r.buf)
	r.n = n
	if err != nil {
		if errors.Is(err, io.EOF) {
			r.rows = nil
			return nil
		}
		return fmt.Errorf("read rows: %w", err)
	}
	return nil
}

// Close releases the underlying file.
func (r *Reader) Close() error {
	return r.file.Close() //nolint:wrapcheck // close error is informational
}

// ReadAll reads every record of path.
func ReadAll(path string) ([]domain.PullRequest, error) {
	r, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()

	out := make([]domain.PullRequest, 0, r.Len())
	for {
		pr, err := r.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, pr)
	}
}
