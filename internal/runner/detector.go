// Package runner decides which tasks are stale and drives level-by-level
// concurrent execution.
package runner

import (
	"os"
	"time"

	"go.uber.org/zap"

	"taskforge/internal/cache"
	"taskforge/internal/fileset"
	"taskforge/internal/task"
)

// Detector implements the change-detection policy: a task runs when its
// declared state gives any reason to believe re-execution could produce a
// different outcome.
type Detector struct {
	Cache    *cache.Cache
	Resolver *fileset.Resolver
	Log      *zap.Logger
}

// Decision is the outcome of a single staleness evaluation.
type Decision struct {
	Run    bool
	Reason string
}

// ShouldRun evaluates the task independently of any other task, short
// circuiting on the first reason to run:
//
//  1. no declared inputs (never cacheable)
//  2. a declared output is missing
//  3. the newest input is newer than the oldest output
//  4. the input fingerprint is not in the cache
//
// Resolution or fingerprinting failures degrade to "must run" with a
// warning; they never fail the run.
func (d *Detector) ShouldRun(t *task.Task) Decision {
	if len(t.Inputs) == 0 {
		return Decision{Run: true, Reason: "no inputs, always runs"}
	}
	if !d.outputsExist(t) {
		return Decision{Run: true, Reason: "outputs missing"}
	}
	if d.outputsOutdated(t) {
		return Decision{Run: true, Reason: "outputs older than inputs"}
	}

	fingerprint, err := d.Resolver.Fingerprint(t.Inputs)
	if err != nil {
		d.Log.Warn("could not fingerprint inputs",
			zap.String("task", t.ID), zap.Error(err))
		return Decision{Run: true, Reason: "inputs unresolvable"}
	}
	if !d.Cache.Contains(fingerprint) {
		return Decision{Run: true, Reason: "input content changed"}
	}

	return Decision{Run: false, Reason: "up to date"}
}

// outputsExist reports whether every declared output pattern resolves to at
// least one existing path. No declared outputs counts as existing.
func (d *Detector) outputsExist(t *task.Task) bool {
	for _, pattern := range t.Outputs {
		if !fileset.IsGlobPattern(pattern) {
			if _, err := os.Stat(pattern); err != nil {
				return false
			}
			continue
		}
		matches, err := d.Resolver.Resolve([]string{pattern})
		if err != nil || len(matches) == 0 {
			return false
		}
	}
	return true
}

// outputsOutdated reports whether the newest input is more recent than the
// oldest output. Undeterminable timestamps fail safe toward re-execution.
func (d *Detector) outputsOutdated(t *task.Task) bool {
	if len(t.Outputs) == 0 {
		return false
	}

	newestInput, ok := d.newestTime(t.Inputs)
	if !ok {
		return true
	}
	oldestOutput, ok := d.oldestTime(t.Outputs)
	if !ok {
		return true
	}
	return newestInput.After(oldestOutput)
}

func (d *Detector) newestTime(patterns []string) (time.Time, bool) {
	var newest time.Time
	found := false
	for _, mod := range d.modTimes(patterns) {
		if !found || mod.After(newest) {
			newest = mod
			found = true
		}
	}
	return newest, found
}

func (d *Detector) oldestTime(patterns []string) (time.Time, bool) {
	var oldest time.Time
	found := false
	for _, mod := range d.modTimes(patterns) {
		if !found || mod.Before(oldest) {
			oldest = mod
			found = true
		}
	}
	return oldest, found
}

func (d *Detector) modTimes(patterns []string) []time.Time {
	paths, err := d.Resolver.Resolve(patterns)
	if err != nil {
		return nil
	}
	times := make([]time.Time, 0, len(paths))
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		times = append(times, info.ModTime())
	}
	return times
}
