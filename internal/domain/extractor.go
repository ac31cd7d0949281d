// Package domain holds the storyteller trackers: extractors, the call graph,
// variable history and side-effect models, the what-if runner and the debug
// message dispatcher.
package domain

import (
	"regexp"
	"strings"

	m "github.com/mouse-blink/storyteller/internal/model"
)

// Extractor finds function declarations and call sites in a document.
// Extraction is best effort and never fails on malformed input.
type Extractor interface {
	Functions(doc m.Document) []m.FunctionDecl
	Calls(doc m.Document) []m.CallSite
}

var (
	ecmaDeclPattern = regexp.MustCompile(
		`(?:function\s+([a-zA-Z_$][a-zA-Z0-9_$]*)|([a-zA-Z_$][a-zA-Z0-9_$]*)\s*(?:=\s*(?:async\s+)?(?:function|\([^)]*\)\s*=>)|:\s*(?:async\s+)?(?:function|\([^)]*\)\s*=>)))`)
	pythonDeclPattern  = regexp.MustCompile(`def\s+([a-zA-Z_][a-zA-Z0-9_]*)\s*\(`)
	typedDeclPattern   = regexp.MustCompile(`(?:public|private|protected|static)?\s*(?:\w+\s+)*([a-zA-Z_][a-zA-Z0-9_]*)\s*\(`)
	defaultDeclPattern = regexp.MustCompile(`function\s+([a-zA-Z_$][a-zA-Z0-9_$]*)`)
	callPattern        = regexp.MustCompile(`([a-zA-Z_$][a-zA-Z0-9_$]*)\s*\(`)
)

func declPattern(lang m.Language) *regexp.Regexp {
	switch {
	case lang.IsECMAScript():
		return ecmaDeclPattern
	case lang == m.LanguagePython:
		return pythonDeclPattern
	case lang == m.LanguageJava, lang == m.LanguageCpp, lang == m.LanguageC, lang == m.LanguageCSharp:
		return typedDeclPattern
	default:
		return defaultDeclPattern
	}
}

type lexicalExtractor struct{}

// NewLexicalExtractor returns the line-oriented regular expression extractor.
// Matches never span a line break. False positives such as `if (` showing up
// as call sites are expected.
func NewLexicalExtractor() Extractor {
	return &lexicalExtractor{}
}

func (le *lexicalExtractor) Functions(doc m.Document) []m.FunctionDecl {
	scopes := scanScopes(doc)
	decls := make([]m.FunctionDecl, 0, len(scopes))

	for _, s := range scopes {
		decls = append(decls, m.FunctionDecl{Name: s.name, Position: s.position})
	}

	return decls
}

func (le *lexicalExtractor) Calls(doc m.Document) []m.CallSite {
	lines := doc.Lines()
	scopes := scanScopes(doc)

	var calls []m.CallSite

	for i, line := range lines {
		for _, loc := range callPattern.FindAllStringSubmatchIndex(line, -1) {
			pos := m.NewPosition(i, loc[2])
			if inHeader(scopes, pos) {
				continue
			}

			calls = append(calls, m.CallSite{
				Name:     line[loc[2]:loc[3]],
				Position: pos,
				Caller:   innermostCaller(scopes, pos),
			})
		}
	}

	return calls
}

// scope is a declaration together with the extent of its body.
type scope struct {
	name        string
	position    m.Position
	headerLine  int
	headerStart int
	headerEnd   int
	hasBody     bool
	bodyStart   m.Position
	bodyEnd     m.Position
}

func (s scope) contains(pos m.Position) bool {
	return s.hasBody && after(pos, s.bodyStart) && !after(pos, s.bodyEnd)
}

func after(a, b m.Position) bool {
	if a.Line != b.Line {
		return a.Line > b.Line
	}

	return a.Column > b.Column
}

func scanScopes(doc m.Document) []scope {
	lines := doc.Lines()
	pattern := declPattern(doc.Language)

	var scopes []scope

	for i, line := range lines {
		for _, loc := range pattern.FindAllStringSubmatchIndex(line, -1) {
			nameStart, nameEnd := firstGroup(loc)
			if nameStart < 0 {
				continue
			}

			s := scope{
				name:        line[nameStart:nameEnd],
				position:    m.NewPosition(i, nameStart),
				headerLine:  i,
				headerStart: loc[0],
				headerEnd:   loc[1],
			}

			if doc.Language == m.LanguagePython {
				s.bodyStart, s.bodyEnd, s.hasBody = indentedBody(lines, i, loc[1])
			} else {
				s.bodyStart, s.bodyEnd, s.hasBody = bracedBody(lines, i, loc[1])
			}

			scopes = append(scopes, s)
		}
	}

	return scopes
}

func firstGroup(loc []int) (int, int) {
	for g := 2; g+1 < len(loc); g += 2 {
		if loc[g] >= 0 {
			return loc[g], loc[g+1]
		}
	}

	return -1, -1
}

// bracedBody finds the first `{` after the header on the same line, or at the
// start of the next line, and its matching `}`. Strings and comments are not
// skipped. An unmatched body runs to the end of the document.
func bracedBody(lines []string, line, col int) (m.Position, m.Position, bool) {
	open, ok := openingBrace(lines, line, col)
	if !ok {
		return m.Position{}, m.Position{}, false
	}

	depth := 0
	for i := open.Line; i < len(lines); i++ {
		start := 0
		if i == open.Line {
			start = open.Column
		}

		for j := start; j < len(lines[i]); j++ {
			switch lines[i][j] {
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					return open, m.NewPosition(i, j), true
				}
			}
		}
	}

	last := len(lines) - 1

	return open, m.NewPosition(last, len(lines[last])), true
}

func openingBrace(lines []string, line, col int) (m.Position, bool) {
	rest := lines[line][col:]

	brace := strings.IndexByte(rest, '{')
	semi := strings.IndexByte(rest, ';')

	if brace >= 0 && (semi < 0 || brace < semi) {
		return m.NewPosition(line, col+brace), true
	}

	if semi >= 0 || line+1 >= len(lines) {
		return m.Position{}, false
	}

	next := lines[line+1]
	trimmed := strings.TrimLeft(next, " \t")

	if strings.HasPrefix(trimmed, "{") {
		return m.NewPosition(line+1, len(next)-len(trimmed)), true
	}

	return m.Position{}, false
}

// indentedBody covers the rest of the def line plus every following line that
// is blank or indented deeper than the def.
func indentedBody(lines []string, line, col int) (m.Position, m.Position, bool) {
	indent := indentation(lines[line])
	end := line

	for i := line + 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "" {
			continue
		}

		if indentation(lines[i]) <= indent {
			break
		}

		end = i
	}

	return m.NewPosition(line, col), m.NewPosition(end, len(lines[end])), true
}

func indentation(line string) int {
	return len(line) - len(strings.TrimLeft(line, " \t"))
}

func inHeader(scopes []scope, pos m.Position) bool {
	for _, s := range scopes {
		if s.headerLine == pos.Line && pos.Column >= s.headerStart && pos.Column < s.headerEnd {
			return true
		}
	}

	return false
}

// innermostCaller returns the enclosing declaration whose body starts last.
func innermostCaller(scopes []scope, pos m.Position) string {
	var (
		best  string
		start m.Position
		found bool
	)

	for _, s := range scopes {
		if !s.contains(pos) {
			continue
		}

		if !found || after(s.bodyStart, start) {
			best, start, found = s.name, s.bodyStart, true
		}
	}

	return best
}
