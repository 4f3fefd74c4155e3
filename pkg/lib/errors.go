package lib

import "errors"

// Command-boundary errors. Start and Stop wrap these, so callers match with errors.Is.
var (
	ErrInvalidConfig         = errors.New("invalid crawl config")
	ErrAlreadyRunning        = errors.New("a crawl is already running")
	ErrNotRunning            = errors.New("no crawl is currently running")
	ErrDirectoryCreateFailed = errors.New("failed to create crawl directory")
	ErrSpawnFailed           = errors.New("failed to start crawl process")
	ErrStopFailed            = errors.New("failed to stop crawl process")
	ErrClosed                = errors.New("supervisor is closed")
)
