//go:build e2e

package e2e

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hkjang/codelens/internal/analysis"
)

var update = flag.Bool("update", false, "update golden files")

func goldenPath() string {
	return filepath.Join("..", "..", "testdata", "golden", "polyglot_findings.txt")
}

// findingsDigest renders results in a stable text form. IDs are content
// derived and ordering is deterministic, so the digest is identical across
// runs over the same fixture tree.
func findingsDigest(results []analysis.NormalizedResult) string {
	var sb strings.Builder
	for _, r := range results {
		fmt.Fprintf(&sb, "%s %s %s/%s %s:%d %s\n",
			r.ID, r.Severity, r.MainCategory, r.SubCategory, r.FilePath, r.LineStart, r.RuleID)
	}
	return sb.String()
}

// TestGolden_PolyglotFindings compares the normalized findings of the
// polyglot fixture against the golden digest. If the golden file does not
// exist, the test is skipped with a message to run with -update.
func TestGolden_PolyglotFindings(t *testing.T) {
	svc := newFixtureService(t)
	rec, results := runFixturePipeline(t, svc)
	require.Equal(t, analysis.ExecCompleted, rec.Status)

	digest := findingsDigest(results)

	if *update {
		require.NoError(t, os.MkdirAll(filepath.Dir(goldenPath()), 0o755))
		require.NoError(t, os.WriteFile(goldenPath(), []byte(digest), 0o644))
		t.Logf("updated %s", goldenPath())
		return
	}

	golden, err := os.ReadFile(goldenPath())
	if os.IsNotExist(err) {
		t.Skipf("golden file %s not found; run with -update to generate", goldenPath())
		return
	}
	require.NoError(t, err)

	assert.Equal(t, string(golden), digest,
		"fixture findings drifted from the golden digest")
}
