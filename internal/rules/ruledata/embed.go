// Package ruledata embeds the builtin ruleset shipped inside the codelens
// binary. The embedded filesystem contains rules.yaml at its root.
package ruledata

import "embed"

// FS contains the embedded builtin ruleset.
//
//go:embed rules.yaml
var FS embed.FS
