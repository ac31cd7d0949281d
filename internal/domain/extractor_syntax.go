package domain

import (
	"context"
	"log/slog"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	m "github.com/mouse-blink/storyteller/internal/model"
)

type syntaxExtractor struct {
	fallback Extractor
	logger   *slog.Logger
}

// NewSyntaxExtractor returns a tree-sitter backed Extractor for ECMAScript and
// Python documents. Other languages, and sources that do not parse cleanly,
// are handed to the lexical extractor.
func NewSyntaxExtractor(logger *slog.Logger) Extractor {
	return &syntaxExtractor{
		fallback: NewLexicalExtractor(),
		logger:   logger,
	}
}

func (se *syntaxExtractor) Functions(doc m.Document) []m.FunctionDecl {
	facts, ok := se.extract(doc)
	if !ok {
		return se.fallback.Functions(doc)
	}

	return facts.decls
}

func (se *syntaxExtractor) Calls(doc m.Document) []m.CallSite {
	facts, ok := se.extract(doc)
	if !ok {
		return se.fallback.Calls(doc)
	}

	return facts.calls
}

type syntaxFacts struct {
	decls []m.FunctionDecl
	calls []m.CallSite
}

func grammarFor(lang m.Language) *sitter.Language {
	switch lang {
	case m.LanguageJavaScript, m.LanguageJavaScriptReact:
		return javascript.GetLanguage()
	case m.LanguageTypeScript:
		return typescript.GetLanguage()
	case m.LanguageTypeScriptReact:
		return tsx.GetLanguage()
	case m.LanguagePython:
		return python.GetLanguage()
	default:
		return nil
	}
}

func (se *syntaxExtractor) extract(doc m.Document) (syntaxFacts, bool) {
	grammar := grammarFor(doc.Language)
	if grammar == nil {
		return syntaxFacts{}, false
	}

	parser := sitter.NewParser()
	parser.SetLanguage(grammar)

	src := []byte(doc.Text)

	tree, err := parser.ParseCtx(context.Background(), nil, src)
	if err != nil {
		se.logger.Debug("syntax extraction failed, using lexical patterns", "path", doc.Path, "error", err)

		return syntaxFacts{}, false
	}

	root := tree.RootNode()
	if root.HasError() {
		se.logger.Debug("source has syntax errors, using lexical patterns", "path", doc.Path)

		return syntaxFacts{}, false
	}

	var facts syntaxFacts
	collectFacts(root, src, "", &facts)

	return facts, true
}

func collectFacts(node *sitter.Node, src []byte, caller string, facts *syntaxFacts) {
	if nameNode := declaredName(node); nameNode != nil {
		caller = nameNode.Content(src)
		facts.decls = append(facts.decls, m.FunctionDecl{
			Name:     caller,
			Position: pointPosition(nameNode.StartPoint()),
		})
	}

	if nameNode := calledName(node); nameNode != nil {
		facts.calls = append(facts.calls, m.CallSite{
			Name:     nameNode.Content(src),
			Position: pointPosition(nameNode.StartPoint()),
			Caller:   caller,
		})
	}

	for i := 0; i < int(node.NamedChildCount()); i++ {
		collectFacts(node.NamedChild(i), src, caller, facts)
	}
}

func declaredName(node *sitter.Node) *sitter.Node {
	switch node.Type() {
	case "function_declaration", "generator_function_declaration", "method_definition", "function_definition":
		return node.ChildByFieldName("name")
	case "variable_declarator":
		if isFunctionValue(node.ChildByFieldName("value")) {
			return node.ChildByFieldName("name")
		}
	case "pair":
		if isFunctionValue(node.ChildByFieldName("value")) {
			return node.ChildByFieldName("key")
		}
	}

	return nil
}

func isFunctionValue(node *sitter.Node) bool {
	if node == nil {
		return false
	}

	switch node.Type() {
	case "arrow_function", "function", "function_expression", "generator_function":
		return true
	default:
		return false
	}
}

func calledName(node *sitter.Node) *sitter.Node {
	if node.Type() != "call_expression" && node.Type() != "call" {
		return nil
	}

	fn := node.ChildByFieldName("function")
	if fn == nil {
		return nil
	}

	switch fn.Type() {
	case "identifier":
		return fn
	case "member_expression":
		return fn.ChildByFieldName("property")
	case "attribute":
		return fn.ChildByFieldName("attribute")
	default:
		return nil
	}
}

func pointPosition(p sitter.Point) m.Position {
	return m.NewPosition(int(p.Row), int(p.Column))
}
