// Package backup exports the tag document as a portable, name-keyed file and
// imports such files back.
package backup

import "errors"

var (
	// ErrInvalidFile indicates the payload is not an export file.
	ErrInvalidFile = errors.New("invalid or malformed export file")

	// ErrVersionMismatch indicates the file was written by a newer format.
	ErrVersionMismatch = errors.New("export file version not supported")
)
