package dag

import (
	"strings"

	zglob "github.com/mattn/go-zglob"
	"go.uber.org/zap"

	"taskforge/internal/fileset"
	"taskforge/internal/task"
)

// LogRelationships reports dependencies that carry no file relationship:
// the dependency declares no output consumed by the dependent's inputs, so
// the edge exists for ordering only. Informational; such edges are valid.
func (g *Graph) LogRelationships(logger *zap.Logger) {
	for _, t := range g.Tasks() {
		for _, depID := range t.Dependencies {
			dep, ok := g.Task(depID)
			if !ok {
				continue
			}
			if !hasFileRelationship(t, dep) {
				logger.Info("dependency is ordering-only",
					zap.String("task", t.ID),
					zap.String("dependency", depID))
			}
		}
	}
}

func hasFileRelationship(t, dep *task.Task) bool {
	if len(dep.Outputs) == 0 || len(t.Inputs) == 0 {
		return false
	}
	for _, out := range dep.Outputs {
		for _, in := range t.Inputs {
			if patternCovers(in, out) {
				return true
			}
		}
	}
	return false
}

// patternCovers reports whether the declared input pattern can name the
// declared output path. This is a static check on the declarations; it never
// touches the filesystem.
func patternCovers(input, output string) bool {
	if input == output {
		return true
	}
	if fileset.IsGlobPattern(input) {
		if ok, err := zglob.Match(input, output); err == nil && ok {
			return true
		}
	}
	if strings.Contains(input, "**") {
		prefix, _, _ := strings.Cut(input, "**")
		if prefix != "" && strings.HasPrefix(output, prefix) {
			return true
		}
	}
	return false
}
