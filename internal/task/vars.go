package task

import (
	"os"
	"regexp"
	"strings"
)

var (
	bracedVar = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)
	bareVar   = regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)\b`)
)

// Expand substitutes ${VAR} and $VAR references in text.
//
// References to unknown variables are left untouched so shell-level
// expansion still gets a chance at them.
func Expand(text string, vars map[string]string) string {
	out := bracedVar.ReplaceAllStringFunc(text, func(match string) string {
		name := match[2 : len(match)-1]
		if v, ok := vars[name]; ok {
			return v
		}
		return match
	})
	out = bareVar.ReplaceAllStringFunc(out, func(match string) string {
		name := match[1:]
		if v, ok := vars[name]; ok {
			return v
		}
		return match
	})
	return out
}

// addBuiltinVariables merges the environment-derived variables into vars,
// overriding user declarations of the same names.
//
// Every environment variable K is exposed as ENV_K; PWD is the process
// working directory.
func addBuiltinVariables(vars map[string]string) {
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		vars["ENV_"+k] = v
	}
	if pwd, err := os.Getwd(); err == nil {
		vars["PWD"] = pwd
	}
}
