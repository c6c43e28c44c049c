// Package normalize maps raw agent findings onto the closed result taxonomy,
// deduplicates them, and orders the surviving results deterministically.
package normalize

import "github.com/hkjang/codelens/internal/analysis"

// Category is one cell of the closed taxonomy: a main category plus the
// finer-grained sub category.
type Category struct {
	Main analysis.MainCategory
	Sub  string
}

// categoryTable maps the raw category labels agents emit onto the taxonomy.
// The raw vocabulary is open; everything unlisted falls back to
// QUALITY/GENERAL with a confidence penalty.
var categoryTable = map[string]Category{
	"security":    {analysis.CategorySecurity, "GENERAL"},
	"secret":      {analysis.CategorySecurity, "SECRET"},
	"injection":   {analysis.CategorySecurity, "INJECTION"},
	"transport":   {analysis.CategorySecurity, "TRANSPORT"},
	"crypto":      {analysis.CategorySecurity, "CRYPTO"},
	"complexity":  {analysis.CategoryQuality, "COMPLEXITY"},
	"smell":       {analysis.CategoryQuality, "CODE_SMELL"},
	"debug":       {analysis.CategoryQuality, "DEBUG_CODE"},
	"structure":   {analysis.CategoryStructure, "SHAPE"},
	"parse-error": {analysis.CategoryStructure, "SYNTAX"},
	"style":       {analysis.CategoryStandards, "STYLE"},
	"naming":      {analysis.CategoryStandards, "NAMING"},
	"docs":        {analysis.CategoryStandards, "DOCUMENTATION"},
	"dependency":  {analysis.CategoryOperations, "DEPENDENCY"},
	"build":       {analysis.CategoryOperations, "BUILD"},
	"test":        {analysis.CategoryTest, "COVERAGE"},
	"ai":          {analysis.CategoryQuality, "AI_REVIEW"},
}

// fallback is used for raw categories outside the table.
var fallback = Category{analysis.CategoryQuality, "GENERAL"}

// unknownCategoryPenalty scales confidence when the raw category had to be
// guessed into the fallback cell.
const unknownCategoryPenalty = 0.8

// MapCategory resolves a raw category label. The second return reports
// whether the label was known.
func MapCategory(raw string) (Category, bool) {
	if c, ok := categoryTable[raw]; ok {
		return c, true
	}
	return fallback, false
}
