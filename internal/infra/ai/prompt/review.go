package prompt

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bryanwahyu/automaton-review/internal/domain/analysis"
)

// MaxContentChars caps the file body sent to the model.
const MaxContentChars = 60000

// GetSystemPrompt provides strict directions and schema for JSON output.
func GetSystemPrompt() string {
	return `You are an expert code reviewer with deep knowledge of software engineering best practices, security, and performance optimization. Review the provided file and the changes made to it in a pull request.

Requirements:
- Output must be a single JSON object, no markdown, no commentary, no code fences.
- Only report issues you can point to in the file. Prefer issues on changed lines.
- "type" is one of: improvement, security, performance, style.
- "line_start" and "line_end" are line numbers in the new version of the file. Lines of the diff are prefixed with their new line number.
- "confidence" is a number between 0 and 1.
- If there is nothing worth reporting, return {"suggestions": []}.

Schema:
{
  "suggestions": [
    {
      "type": "improvement|security|performance|style",
      "message": "<brief description of the issue>",
      "line_start": 1,
      "line_end": 1,
      "original_code": "<the problematic code>",
      "suggested_code": "<the improved code>",
      "explanation": "<why the change matters>",
      "confidence": 0.0
    }
  ]
}`
}

// GetUserPrompt builds the user message for one file.
func GetUserPrompt(req analysis.InferenceRequest) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Review the following code from %s", req.Path)
	if lang := language(req.Path); lang != "" {
		fmt.Fprintf(&b, " (%s)", lang)
	}
	b.WriteString(":\n\n--- BEGIN FILE ---\n")
	content := req.Content
	if len(content) > MaxContentChars {
		content = content[:MaxContentChars] + "\n[... truncated ...]"
	}
	b.WriteString(content)
	b.WriteString("\n--- END FILE ---\n")

	if req.Diff != "" {
		b.WriteString("\nChanges made in this pull request:\n\n--- BEGIN DIFF ---\n")
		b.WriteString(req.Diff)
		b.WriteString("\n--- END DIFF ---\n")
	}
	b.WriteString("\nRespond with the JSON object per schema.")
	return b.String()
}

var languages = map[string]string{
	".go":   "Go",
	".py":   "Python",
	".js":   "JavaScript",
	".jsx":  "JavaScript",
	".ts":   "TypeScript",
	".tsx":  "TypeScript",
	".java": "Java",
	".kt":   "Kotlin",
	".rb":   "Ruby",
	".rs":   "Rust",
	".php":  "PHP",
	".cs":   "C#",
	".c":    "C",
	".h":    "C",
	".cpp":  "C++",
	".sql":  "SQL",
	".sh":   "Shell",
	".yaml": "YAML",
	".yml":  "YAML",
}

func language(path string) string {
	return languages[strings.ToLower(filepath.Ext(path))]
}
