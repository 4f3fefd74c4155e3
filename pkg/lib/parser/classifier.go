package parser

import (
	"strings"

	"github.com/SanjoDeundiak/crawl-runner/pkg/lib"
)

var successWords = []string{"success", "completed", "finished"}

// Classify tags a cleaned line. The checks run in a fixed order, so a line
// mentioning both an error and a success is an error.
func Classify(line string) lib.Severity {
	lower := strings.ToLower(line)
	if strings.Contains(lower, "error") {
		return lib.SeverityError
	}
	if strings.Contains(lower, "warning") {
		return lib.SeverityWarning
	}
	for _, w := range successWords {
		if strings.Contains(lower, w) {
			return lib.SeveritySuccess
		}
	}
	return lib.SeverityInfo
}
