package task

import (
	"os"
	"sort"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Settings is the [config] section of a task file.
type Settings struct {
	// Default names the task run when no target is given on the command line.
	Default string

	// CacheDir holds the fingerprint cache, relative to the configuration
	// file's directory unless absolute.
	CacheDir string

	// Workers caps run-wide task concurrency. Zero means use the host's
	// available parallelism.
	Workers int

	// DefaultTimeout applies to tasks without their own timeout.
	DefaultTimeout time.Duration
}

// Configuration is the fully resolved content of a task file: variables have
// been substituted and every task carries its final ID.
type Configuration struct {
	Tasks    []Task
	Settings Settings

	// Path is the configuration file location; the cache directory resolves
	// relative to it.
	Path string
}

type taskDecl struct {
	ID           string   `toml:"id"`
	Command      string   `toml:"command"`
	Dependencies []string `toml:"dependencies"`
	Aliases      []string `toml:"aliases"`
	Inputs       []string `toml:"inputs"`
	Outputs      []string `toml:"outputs"`
	AutoRemove   bool     `toml:"auto_remove"`
	Timeout      string   `toml:"timeout"`
	Retries      uint64   `toml:"retries"`
}

type settingsDecl struct {
	Default        string `toml:"default"`
	CacheDir       string `toml:"cache_dir"`
	Workers        int    `toml:"workers"`
	DefaultTimeout string `toml:"default_timeout"`
}

type fileDecl struct {
	Tasks     map[string]taskDecl `toml:"task"`
	Config    *settingsDecl       `toml:"config"`
	Variables map[string]string   `toml:"variables"`
}

// Load reads, parses, and resolves a task configuration file.
//
// Resolution fills empty task IDs from declaration keys and substitutes
// ${VAR}/$VAR references in commands, inputs, and outputs using the
// [variables] table merged with the built-in variables. Tasks are returned
// in declaration-key order so downstream output is stable.
func Load(path string, logger *zap.Logger) (*Configuration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading configuration %s", path)
	}

	var decl fileDecl
	if err := toml.Unmarshal(data, &decl); err != nil {
		return nil, errors.Wrapf(err, "parsing configuration %s", path)
	}

	vars := decl.Variables
	if vars == nil {
		vars = make(map[string]string)
	}
	addBuiltinVariables(vars)

	names := make([]string, 0, len(decl.Tasks))
	for name := range decl.Tasks {
		names = append(names, name)
	}
	sort.Strings(names)

	tasks := make([]Task, 0, len(names))
	for _, name := range names {
		d := decl.Tasks[name]

		id := d.ID
		if id == "" {
			id = name
		}

		t := Task{
			ID:           id,
			Command:      Expand(d.Command, vars),
			Dependencies: dedupe(d.Dependencies),
			Aliases:      d.Aliases,
			Inputs:       expandAll(d.Inputs, vars),
			Outputs:      expandAll(d.Outputs, vars),
			AutoRemove:   d.AutoRemove,
			Timeout:      ParseTimeout(d.Timeout, logger),
			Retries:      d.Retries,
		}
		tasks = append(tasks, t)
	}

	settings := Settings{}
	if decl.Config != nil {
		settings.Default = decl.Config.Default
		settings.CacheDir = decl.Config.CacheDir
		settings.Workers = decl.Config.Workers
		if d := ParseTimeout(decl.Config.DefaultTimeout, logger); d != nil {
			settings.DefaultTimeout = *d
		}
	}

	return &Configuration{Tasks: tasks, Settings: settings, Path: path}, nil
}

// ParseTimeout parses a duration string like "30s" or "1h30m".
//
// An empty string means unset (nil). "0" explicitly disables the timeout.
// Invalid values are logged and treated as unset rather than failing the load.
func ParseTimeout(s string, logger *zap.Logger) *time.Duration {
	if s == "" {
		return nil
	}
	if s == "0" {
		zero := time.Duration(0)
		return &zero
	}

	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		logger.Warn("invalid timeout format, expected a duration like 30s or 1h30m",
			zap.String("value", s), zap.Error(err))
		return nil
	}
	return &d
}

func expandAll(patterns []string, vars map[string]string) []string {
	if len(patterns) == 0 {
		return nil
	}
	out := make([]string, len(patterns))
	for i, p := range patterns {
		out[i] = Expand(p, vars)
	}
	return out
}

func dedupe(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
