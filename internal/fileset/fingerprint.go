package fileset

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"sort"

	"go.uber.org/zap"
)

// Fingerprint computes a content-addressed digest over the files matching
// patterns.
//
// The digest depends only on the set of (path, content) pairs, never on
// declaration order or filesystem iteration order: resolved paths are sorted,
// each file is hashed as sha256 over "<len(path)>:<path>" followed by its raw
// content, and the concatenated per-file digests are hashed once more.
//
// Unreadable files are skipped with a warning and excluded from the digest;
// the run proceeds rather than failing. An empty resolved set (or one where
// every read failed) yields the hash of the empty byte sequence.
func (r *Resolver) Fingerprint(patterns []string) (string, error) {
	files, err := r.Resolve(patterns)
	if err != nil {
		return "", err
	}

	sorted := make([]string, len(files))
	copy(sorted, files)
	sort.Strings(sorted)

	digests := make([][]byte, 0, len(sorted))
	for _, path := range sorted {
		content, err := os.ReadFile(path)
		if err != nil {
			r.Log.Warn("could not read file, excluding it from the fingerprint",
				zap.String("path", path), zap.Error(err))
			continue
		}

		h := sha256.New()
		fmt.Fprintf(h, "%d:%s", len(path), path)
		h.Write(content)
		digests = append(digests, h.Sum(nil))
	}

	final := sha256.New()
	for _, d := range digests {
		final.Write(d)
	}
	return hex.EncodeToString(final.Sum(nil)), nil
}
