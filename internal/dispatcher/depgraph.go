// -----------------------------------------------------------------------
// Dependency graph - derived from step config, never stored
// -----------------------------------------------------------------------

package dispatcher

import (
	"regexp"

	"github.com/cryptocrystian/pravado/internal/models"
)

// stepRefPattern matches {{steps.<key>...}} references in input templates.
// Step keys allow alphanumeric characters, hyphens, and underscores.
var stepRefPattern = regexp.MustCompile(`\{\{\s*steps\.([a-zA-Z0-9_-]+)`)

// StepDependencies returns the step keys a step depends on, from the
// explicit dependencies list and from {{steps.<key>...}} references inside
// the input template. Explicit declarations come first, template references
// follow in order of appearance; duplicates are removed. Step authors can
// use either form without duplicating information.
func StepDependencies(step models.Step) []string {
	seen := make(map[string]bool)
	var deps []string

	for _, dep := range step.Config.Dependencies {
		if dep == "" || seen[dep] {
			continue
		}
		seen[dep] = true
		deps = append(deps, dep)
	}

	for _, match := range stepRefPattern.FindAllStringSubmatch(step.Config.Input, -1) {
		key := match[1]
		if seen[key] {
			continue
		}
		seen[key] = true
		deps = append(deps, key)
	}

	return deps
}

// BuildDependencyGraph maps each step key to the keys it depends on
func BuildDependencyGraph(steps []models.Step) map[string][]string {
	graph := make(map[string][]string, len(steps))
	for _, step := range steps {
		graph[step.Key] = StepDependencies(step)
	}
	return graph
}

func dependsOn(deps []string, key string) bool {
	for _, dep := range deps {
		if dep == key {
			return true
		}
	}
	return false
}
