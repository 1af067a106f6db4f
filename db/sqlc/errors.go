package db

import (
	"errors"

	"github.com/lib/pq"
)

const (
	DuplicateEntry  pq.ErrorCode = "23505"
	CheckViolation  pq.ErrorCode = "23514"
	EntryTooLong    pq.ErrorCode = "22001"
	InvalidTextRepr pq.ErrorCode = "22P02"
)

// ErrorCode returns the postgres error code carried by err, or "" when err
// did not come from the server.
func ErrorCode(err error) pq.ErrorCode {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code
	}
	return ""
}

func IsDuplicateEntry(err error) bool {
	return ErrorCode(err) == DuplicateEntry
}
