package fileset

import (
	"os"

	"go.uber.org/zap"
)

// RemoveOutputs deletes the paths matched by the given output patterns:
// directories recursively, files individually. Individual deletion failures
// are logged and skipped; only pattern resolution can fail.
func (r *Resolver) RemoveOutputs(patterns []string) error {
	if len(patterns) == 0 {
		return nil
	}

	paths, err := r.Resolve(patterns)
	if err != nil {
		return err
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}

		if info.IsDir() {
			err = os.RemoveAll(path)
		} else {
			err = os.Remove(path)
		}
		if err != nil {
			r.Log.Warn("failed to remove output", zap.String("path", path), zap.Error(err))
			continue
		}
		r.Log.Debug("removed output", zap.String("path", path))
	}
	return nil
}
