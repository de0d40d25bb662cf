package ingestion

import "time"

// Options tunes the ingestion pipeline.
type Options struct {
	// MaxFileBytes rejects uploads larger than this before parsing.
	MaxFileBytes int64
	// StageChunkSize bounds the rows written per staging transaction.
	StageChunkSize int
	// ErrorSampleSize caps the invalid rows echoed back in a report.
	ErrorSampleSize int
	// CommitTimeout bounds a whole commit including its transaction. Zero disables it.
	CommitTimeout time.Duration
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		MaxFileBytes:    10 << 20,
		StageChunkSize:  500,
		ErrorSampleSize: 10,
		CommitTimeout:   time.Minute,
	}
}

func (o Options) withDefaults() Options {
	defaults := DefaultOptions()
	if o.MaxFileBytes <= 0 {
		o.MaxFileBytes = defaults.MaxFileBytes
	}
	if o.StageChunkSize <= 0 {
		o.StageChunkSize = defaults.StageChunkSize
	}
	if o.ErrorSampleSize <= 0 {
		o.ErrorSampleSize = defaults.ErrorSampleSize
	}
	return o
}
