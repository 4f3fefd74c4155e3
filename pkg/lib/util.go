package lib

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewID generates a run identifier (UUID v4).
func NewID() string {
	return uuid.NewString()
}

// RunDirName names the per-run output directory, e.g. "crawl-2024-05-01T10-20-30-123Z".
// Names sort in start order.
func RunDirName(t time.Time) string {
	stamp := t.UTC().Format("2006-01-02T15:04:05.000Z")
	return "crawl-" + strings.NewReplacer(":", "-", ".", "-").Replace(stamp)
}
