// Package model defines the data structures shared by the storyteller trackers.
package model

import "strings"

// Path represents a file system path.
type Path string

// Language identifies the source language of a document.
type Language string

const (
	// LanguageJavaScript is plain JavaScript.
	LanguageJavaScript Language = "javascript"
	// LanguageTypeScript is TypeScript.
	LanguageTypeScript Language = "typescript"
	// LanguageJavaScriptReact is JSX.
	LanguageJavaScriptReact Language = "javascriptreact"
	// LanguageTypeScriptReact is TSX.
	LanguageTypeScriptReact Language = "typescriptreact"
	// LanguagePython is Python.
	LanguagePython Language = "python"
	// LanguageJava is Java.
	LanguageJava Language = "java"
	// LanguageCpp is C++.
	LanguageCpp Language = "cpp"
	// LanguageC is C.
	LanguageC Language = "c"
	// LanguageCSharp is C#.
	LanguageCSharp Language = "csharp"
	// LanguagePlainText is used when the language could not be detected.
	LanguagePlainText Language = "plaintext"
)

// IsECMAScript reports whether the language belongs to the JavaScript family.
func (l Language) IsECMAScript() bool {
	switch l {
	case LanguageJavaScript, LanguageTypeScript, LanguageJavaScriptReact, LanguageTypeScriptReact:
		return true
	default:
		return false
	}
}

// Document is the full text of one source file together with its language.
type Document struct {
	Path     Path     `json:"path" yaml:"path"`
	Language Language `json:"language" yaml:"language"`
	Text     string   `json:"-" yaml:"-"`
}

// Lines splits the document text into lines. Line breaks are never part of a line.
func (d Document) Lines() []string {
	return strings.Split(d.Text, "\n")
}

// LineCount returns the number of lines in the document.
func (d Document) LineCount() int {
	return len(d.Lines())
}
