package walker

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// isExcluded checks if a relative path matches any exclude pattern. Directory
// markers are matched without their trailing slash.
func isExcluded(path string, excludes []string) bool {
	path = strings.TrimSuffix(path, "/")
	if path == "" {
		return false
	}
	for _, pattern := range excludes {
		if dirPattern, ok := strings.CutSuffix(pattern, "/"); ok {
			// The path itself or any of its parents may match.
			parts := strings.Split(path, "/")
			for i := 1; i <= len(parts); i++ {
				if matched, _ := doublestar.Match(dirPattern, strings.Join(parts[:i], "/")); matched {
					return true
				}
			}
			continue
		}
		if matched, _ := doublestar.Match(pattern, path); matched {
			return true
		}
	}
	return false
}

// ValidateExcludes reports the first malformed pattern.
func ValidateExcludes(excludes []string) error {
	for _, pattern := range excludes {
		if !doublestar.ValidatePattern(strings.TrimSuffix(pattern, "/")) {
			return &PatternError{Pattern: pattern}
		}
	}
	return nil
}

type PatternError struct {
	Pattern string
}

func (e *PatternError) Error() string {
	return "invalid exclude pattern: " + e.Pattern
}
