package vector

import "errors"

// Error kinds surfaced by the index. Callers match with errors.Is.
var (
	// ErrValidation covers dimension mismatches, empty queries, and duplicate ids.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound is returned when an id is not in the index.
	ErrNotFound = errors.New("record not found")
	// ErrStorage covers disk I/O failures during snapshot or load.
	ErrStorage = errors.New("index storage failure")
	// ErrBackupUnavailable is returned by rollback when no valid backup exists.
	ErrBackupUnavailable = errors.New("no valid backup available")
	// ErrConcurrency is reserved for future multi-writer deployments.
	ErrConcurrency = errors.New("concurrent writer conflict")
)
