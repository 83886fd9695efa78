package backup

import "errors"

var (
	// ErrBackupCreationFailed wraps dump tool failures, including timeouts.
	ErrBackupCreationFailed = errors.New("backup creation failed")
	// ErrBackupNotFound is returned when the named artifact is absent from
	// every relevant archive.
	ErrBackupNotFound = errors.New("backup not found")
	// ErrRestoreFailed wraps restore tool failures, including timeouts.
	ErrRestoreFailed = errors.New("restore failed")
)
