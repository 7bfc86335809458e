// Package diffctx renders hunk patches with new-file line numbers so the model
// can cite line_start/line_end against the current file.
package diffctx

import (
	"fmt"
	"strings"

	"github.com/bluekeyes/go-gitdiff/gitdiff"

	"github.com/bryanwahyu/automaton-review/internal/domain/analysis"
)

var _ analysis.DiffAnnotator = Annotator{}

// Annotator implements analysis.DiffAnnotator with go-gitdiff.
type Annotator struct{}

// Annotate parses a hunk-only patch (as returned by the GitHub files API) and
// prefixes each line with its line number in the new file. Deleted lines get
// no number.
func (Annotator) Annotate(path, patch string) (string, error) {
	if strings.TrimSpace(patch) == "" {
		return "", fmt.Errorf("empty patch for %s", path)
	}

	// the files API strips the file header; go-gitdiff needs one
	var src strings.Builder
	fmt.Fprintf(&src, "diff --git a/%s b/%s\n--- a/%s\n+++ b/%s\n", path, path, path, path)
	src.WriteString(patch)
	if !strings.HasSuffix(patch, "\n") {
		src.WriteByte('\n')
	}

	files, _, err := gitdiff.Parse(strings.NewReader(src.String()))
	if err != nil {
		return "", fmt.Errorf("parsing patch for %s: %w", path, err)
	}
	if len(files) != 1 {
		return "", fmt.Errorf("parsing patch for %s: got %d files", path, len(files))
	}

	var b strings.Builder
	for _, frag := range files[0].TextFragments {
		writeFragment(&b, frag)
	}
	return b.String(), nil
}

func writeFragment(b *strings.Builder, frag *gitdiff.TextFragment) {
	fmt.Fprintf(b, "@@ -%d,%d +%d,%d @@", frag.OldPosition, frag.OldLines, frag.NewPosition, frag.NewLines)
	if frag.Comment != "" {
		b.WriteString(" " + frag.Comment)
	}
	b.WriteByte('\n')

	newLine := frag.NewPosition
	for _, l := range frag.Lines {
		switch l.Op {
		case gitdiff.OpContext:
			fmt.Fprintf(b, "%5d  %s", newLine, l.Line)
			newLine++
		case gitdiff.OpAdd:
			fmt.Fprintf(b, "%5d +%s", newLine, l.Line)
			newLine++
		case gitdiff.OpDelete:
			fmt.Fprintf(b, "%5s -%s", "", l.Line)
		}
		if !strings.HasSuffix(l.Line, "\n") {
			b.WriteByte('\n')
		}
	}
}
