package ingestion

import "errors"

var (
	// ErrUnsupportedFormat is returned when an uploaded file is not supported.
	ErrUnsupportedFormat = errors.New("unsupported file format")
	// ErrEmptyFile is returned for uploads without a header or without data rows.
	ErrEmptyFile = errors.New("file is empty")
	// ErrFileTooLarge is returned when an upload exceeds Options.MaxFileBytes.
	ErrFileTooLarge = errors.New("file exceeds maximum upload size")
	// ErrMissingColumns is returned when the header row lacks a mandatory column.
	ErrMissingColumns = errors.New("missing mandatory columns")
	// ErrUnreadableFile is returned when a CSV or workbook cannot be decoded.
	ErrUnreadableFile = errors.New("file could not be read")
	// ErrBatchNotFound is returned when no staged rows carry the batch id.
	ErrBatchNotFound = errors.New("batch not found")
)

// IsFileError reports whether err rejects an upload before anything was staged.
func IsFileError(err error) bool {
	return errors.Is(err, ErrUnsupportedFormat) ||
		errors.Is(err, ErrEmptyFile) ||
		errors.Is(err, ErrFileTooLarge) ||
		errors.Is(err, ErrMissingColumns) ||
		errors.Is(err, ErrUnreadableFile)
}
