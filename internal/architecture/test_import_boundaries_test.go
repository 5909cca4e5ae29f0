package architecture_test

import (
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// Test files obey the same layer rules as production code: a service
// test that reaches into the api package hides a boundary break just as
// well as production code would. Shared fakes live in testutil, which
// no rule forbids.
func TestTestImportBoundaries(t *testing.T) {
	files, err := collectGoFiles(internalRootDir())
	require.NoError(t, err)

	violations := make([]string, 0)
	for _, file := range files {
		if !isTestFile(file) {
			continue
		}

		sourcePkg := packageImportPath(file)
		rule, ok := findRule(sourcePkg)
		if !ok {
			continue
		}

		for _, importPath := range parseImports(t, file) {
			if !strings.HasPrefix(importPath, modulePath+"/") {
				continue
			}
			if isAllowedViolation(sourcePkg, importPath) {
				continue
			}
			if matchingForbiddenPrefix(importPath, rule.forbidden) == "" {
				continue
			}
			violations = append(violations,
				"test "+sourcePkg+" imports "+importPath+" via "+relToRepoRoot(file)+"; allowed direction: "+rule.hint,
			)
		}
	}

	if len(violations) > 0 {
		sort.Strings(violations)
		t.Fatalf("%s", strings.Join(violations, "\n"))
	}
}
