// Package refs resolves symbolic placeholders in operation payloads
// before dispatch: file::key references to uploaded file contents, and
// draft/tool identity references.
package refs

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// filePattern matches file::<key> where the key runs until whitespace,
// a comma, or a closing bracket/quote. This syntax is part of the agent
// prompt contract; do not change it.
var filePattern = regexp.MustCompile(`file::([^\s,"'\)\]\}]+)`)

// Options controls substitution behavior.
type Options struct {
	// StringifyObjects coerces non-string file contents to pretty-printed
	// JSON even when a field is exactly one placeholder. Operations whose
	// backend fields are string-typed set this.
	StringifyObjects bool
}

// MissingFilesError lists every unresolved file key in the payload,
// collected in a single pass so the agent can fix all of them at once.
type MissingFilesError struct {
	Missing   []string
	Available []string
}

func (e *MissingFilesError) Error() string {
	msg := fmt.Sprintf("unresolved file reference(s): %s", strings.Join(e.Missing, ", "))
	if len(e.Available) > 0 {
		msg += fmt.Sprintf(" (available: %s)", strings.Join(e.Available, ", "))
	} else {
		msg += " (no files uploaded)"
	}
	return msg
}

func (e *MissingFilesError) Suggestion() string {
	if len(e.Available) == 0 {
		return "upload the file first, then reference it as file::<key>"
	}
	return "reference one of the available file keys, or upload the missing file"
}

// ResolveFiles replaces file::key placeholders in string fields of an
// arbitrarily nested payload with the uploaded file contents. The input
// payload is never mutated; on failure nothing is substituted.
//
// A string that is exactly one placeholder becomes the raw file value,
// preserving non-string types unless Options.StringifyObjects is set.
// A string that embeds placeholders among other text is replaced by the
// referenced contents joined with a blank line; the surrounding literal
// text is discarded. That join is long-standing observable behavior the
// agent prompt relies on.
func ResolveFiles(payload any, files map[string]any, opts Options) (any, error) {
	missing := make(map[string]struct{})
	collectMissing(payload, files, missing)
	if len(missing) > 0 {
		keys := make([]string, 0, len(missing))
		for k := range missing {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		available := make([]string, 0, len(files))
		for k := range files {
			available = append(available, k)
		}
		sort.Strings(available)
		return nil, &MissingFilesError{Missing: keys, Available: available}
	}
	return substitute(payload, files, opts), nil
}

func collectMissing(node any, files map[string]any, missing map[string]struct{}) {
	switch v := node.(type) {
	case string:
		for _, m := range filePattern.FindAllStringSubmatch(v, -1) {
			if _, ok := files[m[1]]; !ok {
				missing[m[1]] = struct{}{}
			}
		}
	case map[string]any:
		for _, child := range v {
			collectMissing(child, files, missing)
		}
	case []any:
		for _, child := range v {
			collectMissing(child, files, missing)
		}
	}
}

func substitute(node any, files map[string]any, opts Options) any {
	switch v := node.(type) {
	case string:
		return resolveString(v, files, opts)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, child := range v {
			out[k] = substitute(child, files, opts)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, child := range v {
			out[i] = substitute(child, files, opts)
		}
		return out
	default:
		return node
	}
}

func resolveString(s string, files map[string]any, opts Options) any {
	matches := filePattern.FindAllStringSubmatch(s, -1)
	if len(matches) == 0 {
		return s
	}

	// Exact single placeholder: substitute the raw value so parsed JSON
	// objects survive as objects.
	if len(matches) == 1 && matches[0][0] == s {
		content := files[matches[0][1]]
		if opts.StringifyObjects {
			return stringifyContent(content)
		}
		return content
	}

	// Embedded placeholder(s): concatenate every referenced file and
	// replace the whole field.
	parts := make([]string, 0, len(matches))
	for _, m := range matches {
		parts = append(parts, stringifyContent(files[m[1]]))
	}
	return strings.Join(parts, "\n\n")
}

func stringifyContent(content any) string {
	if s, ok := content.(string); ok {
		return s
	}
	buf, err := json.MarshalIndent(content, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", content)
	}
	return string(buf)
}
