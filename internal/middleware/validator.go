package middleware

import (
	"fmt"
	"regexp"
	"strings"
)

// owner/repo#number for GitHub; other hosts use plain tokens
var changeSetPattern = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_.-]*(/[A-Za-z0-9_][A-Za-z0-9_.-]*#[0-9]+)?$`)

// ValidateChangeSetID validates the pull request identifier taken from the URL
func ValidateChangeSetID(id string) error {
	if id == "" {
		return fmt.Errorf("pr id cannot be empty")
	}
	if len(id) > 200 || !changeSetPattern.MatchString(id) {
		return fmt.Errorf("invalid pr id %q (want <owner>/<repo>#<number>)", id)
	}
	return nil
}

// ValidateID validates run and suggestion ids
func ValidateID(id string) error {
	if len(id) == 0 || len(id) > 64 {
		return fmt.Errorf("invalid id length")
	}
	for _, r := range id {
		if !(r == '-' || r == '_' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			return fmt.Errorf("invalid id format")
		}
	}
	return nil
}

// SanitizeString removes dangerous characters from strings
func SanitizeString(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")

	var result strings.Builder
	for _, r := range input {
		if r >= 32 || r == '\t' || r == '\n' {
			result.WriteRune(r)
		}
	}
	return strings.TrimSpace(result.String())
}

// ValidateLimit validates pagination limit
func ValidateLimit(limit int) int {
	if limit <= 0 {
		return 20 // default
	}
	if limit > 100 {
		return 100 // max limit
	}
	return limit
}
