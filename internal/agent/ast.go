package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_go "github.com/tree-sitter/tree-sitter-go/bindings/go"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
	tree_sitter_rust "github.com/tree-sitter/tree-sitter-rust/bindings/go"
	tree_sitter_typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"

	"github.com/hkjang/codelens/internal/analysis"
)

// Structural limits. Findings fire strictly above each limit.
const (
	maxFunctionLines = 60
	maxNestingDepth  = 4
	maxParameters    = 5
	maxFileLines     = 400
)

// Structural rule IDs.
const (
	ruleSyntaxError  = "STR000"
	ruleLongFunction = "STR001"
	ruleDeepNesting  = "STR002"
	ruleManyParams   = "STR003"
	ruleLongFile     = "STR004"
)

// langStructure describes which node kinds define functions and which
// increase nesting depth for one grammar.
type langStructure struct {
	functionKinds map[string]string // node kind -> label used in messages
	nestingKinds  map[string]bool
}

var goStructure = langStructure{
	functionKinds: map[string]string{
		"function_declaration": "function",
		"method_declaration":   "method",
		"func_literal":         "function literal",
	},
	nestingKinds: map[string]bool{
		"if_statement":                true,
		"for_statement":               true,
		"expression_switch_statement": true,
		"type_switch_statement":       true,
		"select_statement":            true,
	},
}

var tsStructure = langStructure{
	functionKinds: map[string]string{
		"function_declaration":           "function",
		"generator_function_declaration": "function",
		"method_definition":              "method",
		"arrow_function":                 "arrow function",
		"function_expression":            "function expression",
	},
	nestingKinds: map[string]bool{
		"if_statement":     true,
		"for_statement":    true,
		"for_in_statement": true,
		"while_statement":  true,
		"do_statement":     true,
		"switch_statement": true,
		"try_statement":    true,
	},
}

var pyStructure = langStructure{
	functionKinds: map[string]string{
		"function_definition": "function",
	},
	nestingKinds: map[string]bool{
		"if_statement":    true,
		"for_statement":   true,
		"while_statement": true,
		"with_statement":  true,
		"try_statement":   true,
		"match_statement": true,
	},
}

var rsStructure = langStructure{
	functionKinds: map[string]string{
		"function_item":      "function",
		"closure_expression": "closure",
	},
	nestingKinds: map[string]bool{
		"if_expression":    true,
		"for_expression":   true,
		"while_expression": true,
		"loop_expression":  true,
		"match_expression": true,
	},
}

var structureByLanguage = map[analysis.Language]langStructure{
	analysis.LangGo:         goStructure,
	analysis.LangTypeScript: tsStructure,
	analysis.LangJavaScript: tsStructure,
	analysis.LangPython:     pyStructure,
	analysis.LangRust:       rsStructure,
}

// newGrammars registers the supported tree-sitter grammars. JavaScript is
// parsed with the TypeScript grammar, which accepts it as a subset.
func newGrammars() map[analysis.Language]*tree_sitter.Language {
	ts := tree_sitter.NewLanguage(tree_sitter_typescript.LanguageTypescript())
	return map[analysis.Language]*tree_sitter.Language{
		analysis.LangGo:         tree_sitter.NewLanguage(tree_sitter_go.Language()),
		analysis.LangTypeScript: ts,
		analysis.LangJavaScript: ts,
		analysis.LangPython:     tree_sitter.NewLanguage(tree_sitter_python.Language()),
		analysis.LangRust:       tree_sitter.NewLanguage(tree_sitter_rust.Language()),
	}
}

// parseTree parses source with the given grammar. The caller must Close the
// returned tree. A new tree-sitter parser is created per call, so calls are
// safe from concurrent goroutines.
func parseTree(lang *tree_sitter.Language, source []byte) (*tree_sitter.Tree, error) {
	parser := tree_sitter.NewParser()
	defer parser.Close()

	if err := parser.SetLanguage(lang); err != nil {
		return nil, fmt.Errorf("set language: %w", err)
	}
	tree := parser.Parse(source, nil)
	if tree == nil {
		return nil, fmt.Errorf("tree-sitter returned nil tree")
	}
	return tree, nil
}

// firstErrorLine locates the first ERROR or MISSING node under node.
func firstErrorLine(node *tree_sitter.Node) int {
	if node.IsError() || node.IsMissing() {
		return int(node.StartPosition().Row) + 1
	}
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child == nil || !child.HasError() {
			continue
		}
		if line := firstErrorLine(child); line > 0 {
			return line
		}
	}
	return int(node.StartPosition().Row) + 1
}

func syntaxErrorFinding(f analysis.SourceFile, line int) analysis.RawFinding {
	return analysis.RawFinding{
		Agent:      analysis.AgentAST,
		RuleID:     ruleSyntaxError,
		Category:   "parse-error",
		Severity:   analysis.SeverityMedium,
		FilePath:   f.Path,
		LineStart:  line,
		LineEnd:    line,
		Language:   f.Language,
		Message:    fmt.Sprintf("syntax error near line %d prevents full analysis", line),
		Suggestion: "fix the syntax error so the file can be parsed",
		Confidence: 1,
	}
}

// --- Syntax checker (parse pass) ---

// SyntaxChecker parses every supported file once and reports files that do
// not parse cleanly. The pipeline runs it ahead of the analyzers so broken
// files surface as findings instead of failing structural analysis.
type SyntaxChecker struct {
	languages map[analysis.Language]*tree_sitter.Language
}

// NewSyntaxChecker creates a SyntaxChecker with all supported grammars.
func NewSyntaxChecker() *SyntaxChecker {
	return &SyntaxChecker{languages: newGrammars()}
}

// Check splits files into cleanly parsed ones and parse-error findings.
// Files without a registered grammar (manifests, plain text) pass through
// untouched.
func (c *SyntaxChecker) Check(ctx context.Context, files []analysis.SourceFile) ([]analysis.SourceFile, []analysis.RawFinding, error) {
	parsed := make([]analysis.SourceFile, 0, len(files))
	var findings []analysis.RawFinding

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		lang, ok := c.languages[f.Language]
		if !ok {
			parsed = append(parsed, f)
			continue
		}

		tree, err := parseTree(lang, f.Content)
		if err != nil {
			findings = append(findings, syntaxErrorFinding(f, 1))
			continue
		}
		root := tree.RootNode()
		if root.HasError() {
			findings = append(findings, syntaxErrorFinding(f, firstErrorLine(root)))
			tree.Close()
			continue
		}
		tree.Close()
		parsed = append(parsed, f)
	}
	return parsed, findings, nil
}

// --- Structural analyzer ---

// StructuralAnalyzer walks tree-sitter ASTs and reports shape problems:
// oversized functions, deep nesting, long parameter lists, and oversized
// files. Files that fail to parse yield a syntax-error finding rather than
// failing the whole run.
type StructuralAnalyzer struct {
	languages map[analysis.Language]*tree_sitter.Language
	log       *slog.Logger
}

var _ analysis.Analyzer = (*StructuralAnalyzer)(nil)

// NewStructuralAnalyzer creates a StructuralAnalyzer with all supported
// grammars registered.
func NewStructuralAnalyzer(logger *slog.Logger) *StructuralAnalyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &StructuralAnalyzer{languages: newGrammars(), log: logger}
}

// Type implements analysis.Analyzer.
func (a *StructuralAnalyzer) Type() analysis.AgentType { return analysis.AgentAST }

// MaxDurationHint implements analysis.Analyzer.
func (a *StructuralAnalyzer) MaxDurationHint() time.Duration { return 30 * time.Second }

// Execute implements analysis.Analyzer.
func (a *StructuralAnalyzer) Execute(ctx context.Context, in analysis.AgentInput) ([]analysis.RawFinding, error) {
	var findings []analysis.RawFinding
	for _, f := range in.Files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		lang, ok := a.languages[f.Language]
		if !ok {
			continue
		}
		spec := structureByLanguage[f.Language]

		fileFindings, err := a.analyzeFile(lang, spec, f)
		if err != nil {
			a.log.Debug("structural analysis skipped file", "path", f.Path, "error", err)
			continue
		}
		findings = append(findings, fileFindings...)
	}
	return findings, nil
}

func (a *StructuralAnalyzer) analyzeFile(lang *tree_sitter.Language, spec langStructure, f analysis.SourceFile) ([]analysis.RawFinding, error) {
	tree, err := parseTree(lang, f.Content)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return []analysis.RawFinding{syntaxErrorFinding(f, firstErrorLine(root))}, nil
	}

	var findings []analysis.RawFinding
	if f.Lines > maxFileLines {
		findings = append(findings, analysis.RawFinding{
			Agent:      analysis.AgentAST,
			RuleID:     ruleLongFile,
			Category:   "structure",
			Severity:   analysis.SeverityLow,
			FilePath:   f.Path,
			LineStart:  1,
			LineEnd:    f.Lines,
			Language:   f.Language,
			Message:    fmt.Sprintf("file spans %d lines (limit %d)", f.Lines, maxFileLines),
			Suggestion: "split the file along responsibility boundaries",
			Confidence: 1,
			Metadata:   map[string]any{"lines": f.Lines, "limit": maxFileLines},
		})
	}

	cursor := root.Walk()
	defer cursor.Close()
	a.walk(cursor, f, spec, &findings)
	return findings, nil
}

func (a *StructuralAnalyzer) walk(cursor *tree_sitter.TreeCursor, f analysis.SourceFile, spec langStructure, findings *[]analysis.RawFinding) {
	node := cursor.Node()
	if label, ok := spec.functionKinds[node.Kind()]; ok {
		a.checkFunction(node, f, spec, label, findings)
	}

	if cursor.GotoFirstChild() {
		a.walk(cursor, f, spec, findings)
		for cursor.GotoNextSibling() {
			a.walk(cursor, f, spec, findings)
		}
		cursor.GotoParent()
	}
}

func (a *StructuralAnalyzer) checkFunction(node *tree_sitter.Node, f analysis.SourceFile, spec langStructure, label string, findings *[]analysis.RawFinding) {
	start := int(node.StartPosition().Row) + 1
	end := int(node.EndPosition().Row) + 1
	name := functionName(node, f.Content)

	if lines := end - start + 1; lines > maxFunctionLines {
		*findings = append(*findings, structuralFinding(f, ruleLongFunction, analysis.SeverityMedium, start, end,
			fmt.Sprintf("%s %q spans %d lines (limit %d)", label, name, lines, maxFunctionLines),
			"split the body into smaller, focused functions",
			map[string]any{"lines": lines, "limit": maxFunctionLines}))
	}

	if params := countParameters(node); params > maxParameters {
		*findings = append(*findings, structuralFinding(f, ruleManyParams, analysis.SeverityLow, start, start,
			fmt.Sprintf("%s %q takes %d parameters (limit %d)", label, name, params, maxParameters),
			"group related parameters into a struct or options type",
			map[string]any{"parameters": params, "limit": maxParameters}))
	}

	if depth := nestingDepth(node, spec, 0); depth > maxNestingDepth {
		*findings = append(*findings, structuralFinding(f, ruleDeepNesting, analysis.SeverityMedium, start, end,
			fmt.Sprintf("%s %q nests control flow %d levels deep (limit %d)", label, name, depth, maxNestingDepth),
			"flatten with early returns or extract the inner levels",
			map[string]any{"depth": depth, "limit": maxNestingDepth}))
	}
}

func structuralFinding(f analysis.SourceFile, ruleID string, sev analysis.Severity, lineStart, lineEnd int, msg, suggestion string, meta map[string]any) analysis.RawFinding {
	return analysis.RawFinding{
		Agent:      analysis.AgentAST,
		RuleID:     ruleID,
		Category:   "complexity",
		Severity:   sev,
		FilePath:   f.Path,
		LineStart:  lineStart,
		LineEnd:    lineEnd,
		Language:   f.Language,
		Message:    msg,
		Suggestion: suggestion,
		Confidence: 1,
		Metadata:   meta,
	}
}

// functionName returns the declared name, or "(anonymous)" for literals,
// arrow functions, and closures.
func functionName(node *tree_sitter.Node, source []byte) string {
	if nameNode := node.ChildByFieldName("name"); nameNode != nil {
		return nameNode.Utf8Text(source)
	}
	return "(anonymous)"
}

// countParameters counts named children of the "parameters" field. Grouped
// declarations such as Go's (a, b int) count once.
func countParameters(node *tree_sitter.Node) int {
	params := node.ChildByFieldName("parameters")
	if params == nil {
		return 0
	}
	n := 0
	for i := uint(0); i < params.NamedChildCount(); i++ {
		child := params.NamedChild(i)
		if child == nil || child.Kind() == "comment" {
			continue
		}
		n++
	}
	return n
}

// nestingDepth finds the deepest chain of nesting kinds under node. Nested
// function definitions are skipped; they are measured on their own.
func nestingDepth(node *tree_sitter.Node, spec langStructure, depth int) int {
	deepest := depth
	for i := uint(0); i < node.NamedChildCount(); i++ {
		child := node.NamedChild(i)
		if child == nil {
			continue
		}
		if _, isFunc := spec.functionKinds[child.Kind()]; isFunc {
			continue
		}
		d := depth
		if spec.nestingKinds[child.Kind()] {
			d++
		}
		if m := nestingDepth(child, spec, d); m > deepest {
			deepest = m
		}
	}
	return deepest
}
