// Package dataset reads and writes the sampled pull request parquet file.
package dataset

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"

	"github.com/kailas-cloud/prindex/internal/domain"
)

// Column names of the sampled dataset.
const (
	ColumnID    = "id"
	ColumnTitle = "title"
	ColumnBody  = "body"
)

// row is the on-disk schema: id, title, body, all strings.
type row struct {
	ID    string `parquet:"id"`
	Title string `parquet:"title"`
	Body  string `parquet:"body"`
}

// WriteFile writes records to path, creating parent directories.
// Data goes to a temp file in the same directory that is renamed over path,
// so a failed write leaves any existing file untouched.
func WriteFile(path string, records []domain.PullRequest) error {
	cleanPath := filepath.Clean(path)
	dir := filepath.Dir(cleanPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(cleanPath)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	w := parquet.NewGenericWriter[row](tmp, parquet.Compression(&parquet.Snappy))

	rows := make([]row, len(records))
	for i, r := range records {
		rows[i] = row{ID: r.ID, Title: r.Title, Body: r.Body}
	}
	if _, err := w.Write(rows); err != nil {
		return fmt.Errorf("write rows: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close parquet writer: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	if err := os.Rename(tmpPath, cleanPath); err != nil {
		_ = os.Remove(tmpPath)
		committed = true
		return fmt.Errorf("rename: %w", err)
	}
	committed = true
	return nil
}

// FileWriter exposes WriteFile as a value for use behind interfaces.
type FileWriter struct{}

// WriteFile calls the package-level WriteFile.
func (FileWriter) WriteFile(path string, records []domain.PullRequest) error {
	return WriteFile(path, records)
}
