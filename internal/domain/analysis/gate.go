package analysis

import "strings"

// DefaultMaxChangedLines is the changed-line threshold above which a file is skipped.
const DefaultMaxChangedLines = 1000

// DefaultIgnoreSuffixes covers minified assets, lockfiles, source maps and binary media.
var DefaultIgnoreSuffixes = []string{
	".min.js", ".min.css", ".lock", ".map",
	".jpg", ".png", ".gif", ".svg", ".ico",
	".pdf", ".doc", ".docx", ".zip",
	"package-lock.json", "yarn.lock", ".pyc",
}

// FileGate decides whether a changed file is worth sending to inference.
type FileGate struct {
	MaxChangedLines int
	IgnoreSuffixes  []string
}

// NewFileGate builds a gate; zero/nil arguments fall back to the defaults.
func NewFileGate(maxChangedLines int, ignoreSuffixes []string) FileGate {
	if maxChangedLines <= 0 {
		maxChangedLines = DefaultMaxChangedLines
	}
	if ignoreSuffixes == nil {
		ignoreSuffixes = DefaultIgnoreSuffixes
	}
	lowered := make([]string, 0, len(ignoreSuffixes))
	for _, s := range ignoreSuffixes {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			lowered = append(lowered, s)
		}
	}
	return FileGate{MaxChangedLines: maxChangedLines, IgnoreSuffixes: lowered}
}

// IsEligible is pure: removed, binary, oversized and ignored-suffix files are rejected.
func (g FileGate) IsEligible(f ChangedFile) bool {
	if f.ChangeStatus == "removed" || f.IsBinary {
		return false
	}
	if f.ChangedLines > g.MaxChangedLines {
		return false
	}
	name := strings.ToLower(f.Path)
	for _, suffix := range g.IgnoreSuffixes {
		if strings.HasSuffix(name, suffix) {
			return false
		}
	}
	return true
}
