package domain

import (
	"strings"

	m "github.com/mouse-blink/storyteller/internal/model"
)

const ignoreDirective = "storyteller:ignore"

// ignoreRule suppresses speculative side effects, either all of them or only
// the named kinds.
type ignoreRule struct {
	all   bool
	kinds map[m.SideEffectKind]struct{}
}

func (r ignoreRule) ignores(kind m.SideEffectKind) bool {
	if r.all {
		return true
	}

	_, ok := r.kinds[kind]

	return ok
}

func (r ignoreRule) empty() bool {
	return !r.all && len(r.kinds) == 0
}

func mergeIgnoreRule(dst *ignoreRule, src ignoreRule) {
	if src.all {
		dst.all = true
		dst.kinds = nil

		return
	}

	if dst.all || len(src.kinds) == 0 {
		return
	}

	if dst.kinds == nil {
		dst.kinds = make(map[m.SideEffectKind]struct{}, len(src.kinds))
	}

	for kind := range src.kinds {
		dst.kinds[kind] = struct{}{}
	}
}

// parseIgnoreDirective reads "storyteller:ignore [kind, ...]" out of one
// comment. Line comments may start with // or #.
func parseIgnoreDirective(commentText string) (ignoreRule, bool) {
	s := strings.TrimSpace(commentText)

	switch {
	case strings.HasPrefix(s, "//"):
		s = strings.TrimSpace(strings.TrimPrefix(s, "//"))
	case strings.HasPrefix(s, "#"):
		s = strings.TrimSpace(strings.TrimPrefix(s, "#"))
	case strings.HasPrefix(s, "/*"):
		s = strings.TrimSpace(strings.TrimPrefix(s, "/*"))
		s = strings.TrimSpace(strings.TrimSuffix(s, "*/"))
	}

	if !strings.HasPrefix(s, ignoreDirective) {
		return ignoreRule{}, false
	}

	rest := strings.TrimSpace(strings.TrimPrefix(s, ignoreDirective))
	if rest == "" {
		return ignoreRule{all: true}, true
	}

	parts := strings.Split(rest, ",")
	rule := ignoreRule{kinds: make(map[m.SideEffectKind]struct{}, len(parts))}

	for _, part := range parts {
		kind := strings.ToLower(strings.TrimSpace(part))
		if kind == "" {
			continue
		}

		rule.kinds[m.SideEffectKind(kind)] = struct{}{}
	}

	if len(rule.kinds) == 0 {
		return ignoreRule{all: true}, true
	}

	return rule, true
}

// ignoreIndex maps 0-based lines to the rules covering them.
type ignoreIndex struct {
	file ignoreRule
	line map[int]ignoreRule
}

func (idx ignoreIndex) ignores(line int, kind m.SideEffectKind) bool {
	if idx.file.ignores(kind) {
		return true
	}

	rule, ok := idx.line[line]

	return ok && rule.ignores(kind)
}

// buildIgnoreIndex finds every directive in doc. Directives in the comment
// block opening the file, up to the first blank line, cover the whole file.
// A directive alone on its line covers the next line, or the whole function
// when the next line declares one. A trailing directive covers its own line.
func buildIgnoreIndex(doc m.Document) ignoreIndex {
	idx := ignoreIndex{line: make(map[int]ignoreRule)}
	lines := doc.Lines()

	var bodyEnds map[int]int

	header, seen := true, false

	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			if seen {
				header = false
			}

			continue
		}

		seen = true

		comment, leading := findComment(line)
		if !leading {
			header = false
		}

		rule, ok := parseIgnoreDirective(comment)
		if !ok {
			continue
		}

		if header {
			mergeIgnoreRule(&idx.file, rule)

			continue
		}

		if !leading {
			idx.add(i, rule)

			continue
		}

		if bodyEnds == nil {
			bodyEnds = functionExtents(doc)
		}

		end, isFunction := bodyEnds[i+1]
		if !isFunction {
			end = i + 1
		}

		for target := i + 1; target <= end; target++ {
			idx.add(target, rule)
		}
	}

	return idx
}

func (idx ignoreIndex) add(line int, rule ignoreRule) {
	current := idx.line[line]
	mergeIgnoreRule(&current, rule)

	if !current.empty() {
		idx.line[line] = current
	}
}

// findComment returns the comment text on line and whether the line holds
// nothing but that comment.
func findComment(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)

	for _, marker := range []string{"//", "/*", "#"} {
		if strings.HasPrefix(trimmed, marker) {
			return trimmed, true
		}
	}

	for _, marker := range []string{"//", "/*", "#"} {
		if at := strings.Index(line, marker); at >= 0 {
			return line[at:], false
		}
	}

	return "", false
}

// functionExtents maps each declaration header line to the last line of its body.
func functionExtents(doc m.Document) map[int]int {
	extents := make(map[int]int)

	for _, s := range scanScopes(doc) {
		if !s.hasBody {
			continue
		}

		if end, ok := extents[s.headerLine]; !ok || s.bodyEnd.Line > end {
			extents[s.headerLine] = s.bodyEnd.Line
		}
	}

	return extents
}
