package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"slices"
	"sort"
	"strings"
	"time"

	"golang.org/x/mod/modfile"
	"golang.org/x/mod/module"
	"golang.org/x/mod/semver"

	"github.com/hkjang/codelens/internal/analysis"
)

// Dependency rule IDs.
const (
	ruleBadManifest    = "DEP000"
	ruleUnpinnedNPM    = "DEP001"
	ruleNonRegistryNPM = "DEP002"
	ruleCompromisedNPM = "DEP003"
	ruleLooseRangeNPM  = "DEP004"
	rulePrereleaseGo   = "DEP005"
	ruleLocalReplaceGo = "DEP006"
	ruleUnpinnedPy     = "DEP007"
)

// knownBadNPM maps package names to published releases that were later
// pulled for carrying malicious code.
var knownBadNPM = map[string][]string{
	"event-stream":   {"3.3.6"},
	"flatmap-stream": {"0.1.0", "0.1.1", "0.1.2"},
	"ua-parser-js":   {"0.7.29", "0.8.0", "1.0.0"},
	"node-ipc":       {"10.1.1", "10.1.2"},
	"coa":            {"2.0.3", "2.0.4", "2.1.1", "2.1.3", "3.0.1", "3.1.3"},
	"rc":             {"1.2.9", "1.3.9", "2.3.9"},
}

var nonRegistryPrefixes = []string{"git+", "git://", "github:", "file:", "link:", "http://", "https://"}

var cargoWildcardRe = regexp.MustCompile(`^\s*([A-Za-z0-9_-]+)\s*=\s*"\*"`)

type npmManifest struct {
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
}

// DependencyAnalyzer inspects dependency manifests: package.json, go.mod,
// requirements.txt, and Cargo.toml.
type DependencyAnalyzer struct {
	log *slog.Logger
}

var _ analysis.Analyzer = (*DependencyAnalyzer)(nil)

// NewDependencyAnalyzer creates a DependencyAnalyzer.
func NewDependencyAnalyzer(logger *slog.Logger) *DependencyAnalyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &DependencyAnalyzer{log: logger}
}

// Type implements analysis.Analyzer.
func (a *DependencyAnalyzer) Type() analysis.AgentType { return analysis.AgentDependency }

// MaxDurationHint implements analysis.Analyzer.
func (a *DependencyAnalyzer) MaxDurationHint() time.Duration { return 10 * time.Second }

// Execute implements analysis.Analyzer.
func (a *DependencyAnalyzer) Execute(ctx context.Context, in analysis.AgentInput) ([]analysis.RawFinding, error) {
	var findings []analysis.RawFinding
	for _, f := range in.Files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		switch filepath.Base(f.Path) {
		case "package.json":
			findings = append(findings, a.scanPackageJSON(f)...)
		case "go.mod":
			findings = append(findings, a.scanGoMod(f)...)
		case "requirements.txt":
			findings = append(findings, a.scanRequirements(f)...)
		case "Cargo.toml":
			findings = append(findings, a.scanCargoToml(f)...)
		}
	}
	return findings, nil
}

func (a *DependencyAnalyzer) scanPackageJSON(f analysis.SourceFile) []analysis.RawFinding {
	var manifest npmManifest
	if err := json.Unmarshal(f.Content, &manifest); err != nil {
		a.log.Debug("unparsable manifest", "path", f.Path, "error", err)
		return []analysis.RawFinding{unparsableManifest(f, err)}
	}

	var findings []analysis.RawFinding
	for _, deps := range []map[string]string{manifest.Dependencies, manifest.DevDependencies} {
		names := make([]string, 0, len(deps))
		for name := range deps {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			if finding, ok := classifyNPMDep(f, name, deps[name]); ok {
				findings = append(findings, finding)
			}
		}
	}
	return findings
}

// classifyNPMDep checks a single dependency entry, most severe check first.
func classifyNPMDep(f analysis.SourceFile, name, spec string) (analysis.RawFinding, bool) {
	line := lineOfKey(f.Content, name)

	exact := strings.TrimLeft(spec, "^~=v")
	if bad, ok := knownBadNPM[name]; ok && slices.Contains(bad, exact) {
		return depFinding(f, ruleCompromisedNPM, analysis.SeverityCritical, line,
			fmt.Sprintf("%s@%s is a known compromised release", name, exact),
			"upgrade to a patched release immediately"), true
	}
	for _, p := range nonRegistryPrefixes {
		if strings.HasPrefix(spec, p) {
			return depFinding(f, ruleNonRegistryNPM, analysis.SeverityHigh, line,
				fmt.Sprintf("dependency %q resolves outside the package registry (%s)", name, spec),
				"pin a registry release so installs are reproducible and auditable"), true
		}
	}
	switch spec {
	case "", "*", "latest", "x":
		return depFinding(f, ruleUnpinnedNPM, analysis.SeverityMedium, line,
			fmt.Sprintf("dependency %q accepts any published version (%q)", name, spec),
			"pin an exact version or a narrow range"), true
	}
	if strings.Contains(spec, ">=") || strings.HasSuffix(spec, ".x") ||
		strings.Contains(spec, " - ") || strings.Contains(spec, "||") {
		return depFinding(f, ruleLooseRangeNPM, analysis.SeverityLow, line,
			fmt.Sprintf("dependency %q uses a loose version range (%q)", name, spec),
			"narrow the range to avoid surprise upgrades"), true
	}
	return analysis.RawFinding{}, false
}

func (a *DependencyAnalyzer) scanGoMod(f analysis.SourceFile) []analysis.RawFinding {
	mf, err := modfile.Parse(f.Path, f.Content, nil)
	if err != nil {
		a.log.Debug("unparsable manifest", "path", f.Path, "error", err)
		return []analysis.RawFinding{unparsableManifest(f, err)}
	}

	var findings []analysis.RawFinding
	for _, req := range mf.Require {
		if req.Indirect {
			continue
		}
		v := req.Mod.Version
		switch {
		case module.IsPseudoVersion(v):
			findings = append(findings, depFinding(f, rulePrereleaseGo, analysis.SeverityLow, lineOfSyntax(req.Syntax),
				fmt.Sprintf("%s pins pseudo-version %s (untagged commit)", req.Mod.Path, v),
				"require a tagged release"))
		case semver.Prerelease(v) != "":
			findings = append(findings, depFinding(f, rulePrereleaseGo, analysis.SeverityLow, lineOfSyntax(req.Syntax),
				fmt.Sprintf("%s pins pre-release version %s", req.Mod.Path, v),
				"require a stable release"))
		}
	}
	for _, rep := range mf.Replace {
		if rep.New.Version != "" {
			continue
		}
		findings = append(findings, depFinding(f, ruleLocalReplaceGo, analysis.SeverityMedium, lineOfSyntax(rep.Syntax),
			fmt.Sprintf("replace directive points %s at local path %s", rep.Old.Path, rep.New.Path),
			"drop the local replace before release"))
	}
	return findings
}

func (a *DependencyAnalyzer) scanRequirements(f analysis.SourceFile) []analysis.RawFinding {
	var findings []analysis.RawFinding
	for i, raw := range strings.Split(string(f.Content), "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "-") {
			continue
		}
		// Strip environment markers and trailing comments.
		if j := strings.IndexAny(line, ";#"); j >= 0 {
			line = strings.TrimSpace(line[:j])
		}
		if line == "" || strings.Contains(line, "==") {
			continue
		}
		name := line
		if j := strings.IndexAny(name, " <>=~![@"); j >= 0 {
			name = name[:j]
		}
		findings = append(findings, depFinding(f, ruleUnpinnedPy, analysis.SeverityMedium, i+1,
			fmt.Sprintf("requirement %q is not pinned to an exact version", name),
			"pin with == so installs are reproducible"))
	}
	return findings
}

func (a *DependencyAnalyzer) scanCargoToml(f analysis.SourceFile) []analysis.RawFinding {
	var findings []analysis.RawFinding
	for i, line := range bytes.Split(f.Content, []byte("\n")) {
		m := cargoWildcardRe.FindSubmatch(line)
		if m == nil {
			continue
		}
		findings = append(findings, depFinding(f, ruleUnpinnedNPM, analysis.SeverityMedium, i+1,
			fmt.Sprintf("crate requirement %q accepts any published version", string(m[1])),
			"pin an exact version or a narrow range"))
	}
	return findings
}

func depFinding(f analysis.SourceFile, ruleID string, sev analysis.Severity, line int, msg, suggestion string) analysis.RawFinding {
	return analysis.RawFinding{
		Agent:      analysis.AgentDependency,
		RuleID:     ruleID,
		Category:   "dependency",
		Severity:   sev,
		FilePath:   f.Path,
		LineStart:  line,
		LineEnd:    line,
		Language:   f.Language,
		Message:    msg,
		Suggestion: suggestion,
		Confidence: 1,
	}
}

func unparsableManifest(f analysis.SourceFile, err error) analysis.RawFinding {
	return analysis.RawFinding{
		Agent:      analysis.AgentDependency,
		RuleID:     ruleBadManifest,
		Category:   "build",
		Severity:   analysis.SeverityLow,
		FilePath:   f.Path,
		LineStart:  1,
		LineEnd:    1,
		Language:   f.Language,
		Message:    fmt.Sprintf("manifest does not parse: %v", err),
		Suggestion: "fix the manifest syntax",
		Confidence: 1,
	}
}

// lineOfKey finds the first line containing the quoted key, for manifests
// whose decoder does not report positions.
func lineOfKey(content []byte, key string) int {
	needle := []byte(`"` + key + `"`)
	for i, line := range bytes.Split(content, []byte("\n")) {
		if bytes.Contains(line, needle) {
			return i + 1
		}
	}
	return 1
}

func lineOfSyntax(line *modfile.Line) int {
	if line == nil {
		return 1
	}
	return line.Start.Line
}
