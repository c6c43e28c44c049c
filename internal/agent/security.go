package agent

import (
	"bytes"
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/hkjang/codelens/internal/analysis"
)

// securityPattern is one compiled scanner rule. An empty languages slice
// applies the pattern to every file, manifests included.
type securityPattern struct {
	id         string
	category   string
	severity   analysis.Severity
	re         *regexp.Regexp
	message    string
	suggestion string
	languages  []analysis.Language
}

func (p securityPattern) appliesTo(lang analysis.Language) bool {
	if len(p.languages) == 0 {
		return true
	}
	for _, l := range p.languages {
		if l == lang {
			return true
		}
	}
	return false
}

// securityPatterns is the built-in scanner table. Patterns stay RE2-safe;
// exclusions that would need lookahead (local http URLs) are handled in
// code instead.
var securityPatterns = []securityPattern{
	{
		id:         "SEC001",
		category:   "secret",
		severity:   analysis.SeverityCritical,
		re:         regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`),
		message:    "hardcoded AWS access key ID",
		suggestion: "revoke the key and load credentials from the environment or a secret manager",
	},
	{
		id:         "SEC002",
		category:   "secret",
		severity:   analysis.SeverityHigh,
		re:         regexp.MustCompile(`(?i)(password|passwd|secret|api[_-]?key|auth[_-]?token|access[_-]?token)["']?\s*[:=]\s*["'][^"']{8,}["']`),
		message:    "credential assigned from a string literal",
		suggestion: "read the value from the environment or a secret manager",
	},
	{
		id:         "SEC003",
		category:   "secret",
		severity:   analysis.SeverityCritical,
		re:         regexp.MustCompile(`-----BEGIN (RSA |EC |DSA |OPENSSH )?PRIVATE KEY-----`),
		message:    "private key material committed to source",
		suggestion: "remove the key from the repository and rotate it",
	},
	{
		id:         "SEC004",
		category:   "crypto",
		severity:   analysis.SeverityMedium,
		re:         regexp.MustCompile(`(?i)(hashlib\.(md5|sha1)\b|createhash\(\s*["'](md5|sha1)["']|crypto/(md5|sha1)|\b(md5|sha1)\.(new|sum)\b)`),
		message:    "weak hash algorithm (md5/sha1)",
		suggestion: "use SHA-256 or stronger for anything security sensitive",
	},
	{
		id:         "SEC005",
		category:   "transport",
		severity:   analysis.SeverityLow,
		re:         regexp.MustCompile(`\bhttp://[^\s"'<>)]+`),
		message:    "plain http:// URL",
		suggestion: "use https:// for external endpoints",
	},
	{
		id:         "SEC006",
		category:   "injection",
		severity:   analysis.SeverityHigh,
		re:         regexp.MustCompile(`\b(eval|exec)\s*\(`),
		message:    "dynamic code execution sink",
		suggestion: "avoid eval/exec; dispatch on explicit values instead",
		languages: []analysis.Language{
			analysis.LangTypeScript, analysis.LangJavaScript, analysis.LangPython,
		},
	},
	{
		id:         "SEC007",
		category:   "injection",
		severity:   analysis.SeverityHigh,
		re:         regexp.MustCompile(`(?i)["'](SELECT|INSERT|UPDATE|DELETE)\b[^"']*["']\s*\+`),
		message:    "SQL statement built by string concatenation",
		suggestion: "use parameterized queries",
	},
}

// localHosts are http:// targets that SEC005 leaves alone.
var localHosts = []string{"http://localhost", "http://127.0.0.1", "http://0.0.0.0", "http://[::1]"}

func isLocalURL(match string) bool {
	lower := strings.ToLower(match)
	for _, h := range localHosts {
		if strings.HasPrefix(lower, h) {
			return true
		}
	}
	return false
}

// SecurityAnalyzer scans file contents line by line against the built-in
// pattern table. It inspects every collected file, so secrets in manifests
// and config files are caught too.
type SecurityAnalyzer struct {
	patterns []securityPattern
}

var _ analysis.Analyzer = (*SecurityAnalyzer)(nil)

// NewSecurityAnalyzer creates a SecurityAnalyzer with the built-in table.
func NewSecurityAnalyzer() *SecurityAnalyzer {
	return &SecurityAnalyzer{patterns: securityPatterns}
}

// Type implements analysis.Analyzer.
func (a *SecurityAnalyzer) Type() analysis.AgentType { return analysis.AgentSecurity }

// MaxDurationHint implements analysis.Analyzer.
func (a *SecurityAnalyzer) MaxDurationHint() time.Duration { return 20 * time.Second }

// Execute implements analysis.Analyzer.
func (a *SecurityAnalyzer) Execute(ctx context.Context, in analysis.AgentInput) ([]analysis.RawFinding, error) {
	var findings []analysis.RawFinding
	for _, f := range in.Files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		findings = append(findings, a.scanFile(f)...)
	}
	return findings, nil
}

func (a *SecurityAnalyzer) scanFile(f analysis.SourceFile) []analysis.RawFinding {
	var findings []analysis.RawFinding
	lines := bytes.Split(f.Content, []byte("\n"))

	for _, p := range a.patterns {
		if !p.appliesTo(f.Language) {
			continue
		}
		for i, line := range lines {
			match := p.re.Find(line)
			if match == nil {
				continue
			}
			if p.id == "SEC005" && isLocalURL(string(match)) {
				continue
			}
			findings = append(findings, analysis.RawFinding{
				Agent:      analysis.AgentSecurity,
				RuleID:     p.id,
				Category:   p.category,
				Severity:   p.severity,
				FilePath:   f.Path,
				LineStart:  i + 1,
				LineEnd:    i + 1,
				Language:   f.Language,
				Message:    p.message,
				Suggestion: p.suggestion,
				Confidence: 1,
			})
		}
	}
	return findings
}
