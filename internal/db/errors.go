package db

import "errors"

// Sentinel errors for database operations.
var (
	ErrKeyNotFound   = errors.New("db: key not found")
	ErrIndexNotFound = errors.New("db: index not found")
	ErrIndexExists   = errors.New("db: index already exists")
)

// Op constants name backend operations for error context.
const (
	OpPing        = "PING"
	OpCreateIndex = "indices.create"
	OpDropIndex   = "indices.delete"
	OpIndexExists = "indices.exists"
	OpBulk        = "bulk"
	OpCount       = "count"
	OpGet         = "GET"
	OpSet         = "SET"
)

// Error wraps an underlying error with the operation name for diagnostics.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }
