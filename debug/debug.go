// Package debug holds env-gated tracing switches for the mutation engine.
// Each switch is read once at startup from MUTATE_DEBUG_* variables.
package debug

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

type debug struct {
	Patch      bool
	Resolve    bool
	Buffer     bool
	Collection bool
	Remote     bool
}

var d *debug

func init() {
	d = &debug{}
	d.Patch = boolEnv("MUTATE_DEBUG_PATCH")
	d.Resolve = boolEnv("MUTATE_DEBUG_RESOLVE")
	d.Buffer = boolEnv("MUTATE_DEBUG_BUFFER")
	d.Collection = boolEnv("MUTATE_DEBUG_COLLECTION")
	d.Remote = boolEnv("MUTATE_DEBUG_REMOTE")
}

func boolEnv(v string) bool {
	x := os.Getenv(v)
	if x == "" {
		return false
	}
	b, _ := strconv.ParseBool(x)
	return b
}

func Patch() bool {
	return d.Patch
}
func Resolve() bool {
	return d.Resolve
}
func Buffer() bool {
	return d.Buffer
}
func Collection() bool {
	return d.Collection
}
func Remote() bool {
	return d.Remote
}

func Logf(msg string, args ...any) {
	for i := range args {
		switch args[i].(type) {
		case map[string]any, []any:
			b, err := json.Marshal(args[i])
			if err != nil {
				args[i] = fmt.Sprintf("%v", args[i])
				continue
			}
			args[i] = string(b)
		}
	}
	fmt.Fprintf(os.Stderr, msg, args...)
}
