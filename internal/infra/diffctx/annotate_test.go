package diffctx_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/automaton-review/internal/infra/diffctx"
)

func TestAnnotate_NumbersNewLines(t *testing.T) {
	t.Parallel()

	patch := "@@ -10,3 +10,4 @@ func main() {\n" +
		" \ta := 1\n" +
		"-\tb := 2\n" +
		"+\tb := 3\n" +
		"+\tc := 4\n" +
		" \treturn\n"

	out, err := diffctx.Annotator{}.Annotate("cmd/main.go", patch)
	require.NoError(t, err)

	want := "@@ -10,3 +10,4 @@ func main() {\n" +
		"   10  \ta := 1\n" +
		"      -\tb := 2\n" +
		"   11 +\tb := 3\n" +
		"   12 +\tc := 4\n" +
		"   13  \treturn\n"
	assert.Equal(t, want, out)
}

func TestAnnotate_MissingTrailingNewline(t *testing.T) {
	t.Parallel()

	out, err := diffctx.Annotator{}.Annotate("a.txt", "@@ -1,1 +1,2 @@\n one\n+two")
	require.NoError(t, err)
	assert.Equal(t, "@@ -1,1 +1,2 @@\n    1  one\n    2 +two\n", out)
}

func TestAnnotate_Errors(t *testing.T) {
	t.Parallel()

	_, err := diffctx.Annotator{}.Annotate("a.go", "")
	assert.Error(t, err)

	// hunk header promises more lines than it carries
	_, err = diffctx.Annotator{}.Annotate("a.go", "@@ -1,5 +1,5 @@\n a\n")
	assert.Error(t, err)
}
