// Package fileset resolves declared path patterns into concrete file sets
// and fingerprints their content.
package fileset

import (
	"os"
	"strings"

	zglob "github.com/mattn/go-zglob"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Resolver expands literal and glob path patterns against the filesystem.
type Resolver struct {
	Log *zap.Logger
}

// NewResolver returns a Resolver that reports warnings through logger.
func NewResolver(logger *zap.Logger) *Resolver {
	return &Resolver{Log: logger}
}

// Resolve expands every pattern and returns a deduplicated list of concrete
// paths.
//
// Glob patterns keep regular-file matches only. Literal paths are kept when
// they exist; missing literals are dropped with a warning, not an error.
// The returned order is the first-seen order across patterns.
func (r *Resolver) Resolve(patterns []string) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string

	keep := func(path string) {
		if _, dup := seen[path]; dup {
			return
		}
		seen[path] = struct{}{}
		out = append(out, path)
	}

	for _, pattern := range patterns {
		if !IsGlobPattern(pattern) {
			if _, err := os.Stat(pattern); err != nil {
				r.Log.Warn("declared path does not exist", zap.String("path", pattern))
				continue
			}
			keep(pattern)
			continue
		}

		matches, err := zglob.Glob(pattern)
		if err != nil {
			if os.IsNotExist(err) {
				// No matches for the pattern.
				continue
			}
			return nil, errors.Wrapf(err, "expanding glob '%s'", pattern)
		}
		for _, match := range matches {
			info, err := os.Stat(match)
			if err != nil || !info.Mode().IsRegular() {
				continue
			}
			keep(match)
		}
	}
	return out, nil
}

// IsGlobPattern reports whether the path contains glob metacharacters.
func IsGlobPattern(path string) bool {
	return strings.ContainsAny(path, "*?[")
}
