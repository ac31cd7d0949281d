package domain

import (
	"regexp"

	m "github.com/mouse-blink/storyteller/internal/model"
)

// Instrumenter rewrites source text so the sandbox can observe function returns.
type Instrumenter interface {
	Instrument(source string) string
}

// InstrumenterFor returns the rewriting strategy for lang. Only JavaScript and
// TypeScript are rewritten; everything else runs as written.
func InstrumenterFor(lang m.Language) Instrumenter {
	switch lang {
	case m.LanguageJavaScript, m.LanguageTypeScript:
		return ecmaScriptInstrumenter{}
	default:
		return passthroughInstrumenter{}
	}
}

type passthroughInstrumenter struct{}

func (passthroughInstrumenter) Instrument(source string) string {
	return source
}

var (
	functionHeaderPattern = regexp.MustCompile(`function\s+([a-zA-Z_$][a-zA-Z0-9_$]*)\s*\([^)]*\)\s*\{`)
	returnPattern         = regexp.MustCompile(`\breturn\s+([^;]+);`)
)

// trackingPrelude gives returns outside a named function something to report.
// It is kept on the first line so line numbers do not shift.
const trackingPrelude = `var __currentFunction = "anonymous", __originalArgs = [], __startTime = Date.now(); `

const functionEntry = `${0} const __startTime = Date.now(); const __originalArgs = Array.prototype.slice.call(arguments); ` +
	`const __currentFunction = "${1}";`

const trackedReturn = `{ const __result = (${1}); ` +
	`__trackFunction(__currentFunction, __originalArgs, __result, Date.now() - __startTime); return __result; }`

// ecmaScriptInstrumenter is a textual rewrite: multi-line signatures and
// returns whose expression contains a semicolon are not handled.
type ecmaScriptInstrumenter struct{}

func (ecmaScriptInstrumenter) Instrument(source string) string {
	out := functionHeaderPattern.ReplaceAllString(source, functionEntry)
	out = returnPattern.ReplaceAllString(out, trackedReturn)

	return trackingPrelude + out
}
