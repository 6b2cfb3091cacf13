// Package traverse walks document content and collects the leaves a
// predicate selects.
package traverse

import (
	"log/slog"

	"github.com/roach88/storagepeer/internal/content"
)

// WarningStackSize bounds the work stack. Content has no cycle detection,
// so a stack this large is treated as runaway: traversal stops and returns
// what it has.
const WarningStackSize = 1000

// SelectFunc decides whether a leaf is collected.
type SelectFunc func(content.Value) bool

// IterativeDFS visits every key and value of every Map and every element
// of every List under root, depth-first with an explicit stack, and returns
// the leaves for which selectFn holds. Map keys are offered to selectFn as
// content.String. Text values are skipped entirely.
//
// Results follow stack-pop order; callers must not rely on it.
func IterativeDFS(root content.Value, selectFn SelectFunc) []content.Value {
	return IterativeDFSWithLogger(slog.Default(), root, selectFn)
}

// IterativeDFSWithLogger is IterativeDFS with an explicit logger for the
// runaway warning.
func IterativeDFSWithLogger(logger *slog.Logger, root content.Value, selectFn SelectFunc) []content.Value {
	stack := []content.Value{root}
	var results []content.Value

	for len(stack) > 0 {
		if len(stack) > WarningStackSize {
			logger.Warn("traversal stack size exceeded, returning partial results",
				"stack_size", len(stack),
				"limit", WarningStackSize,
				"root", describe(root))
			return results
		}

		n := len(stack) - 1
		v := stack[n]
		stack[n] = nil
		stack = stack[:n]

		switch val := v.(type) {
		case content.Map:
			for k, child := range val {
				stack = append(stack, content.String(k), child)
			}
		case content.List:
			stack = append(stack, val...)
		case content.Text:
			// opaque
		default:
			if v != nil && selectFn(v) {
				results = append(results, v)
			}
		}
	}
	return results
}

// Strings returns the String leaves under root that selectFn accepts.
func Strings(root content.Value, selectFn func(string) bool) []string {
	found := IterativeDFS(root, func(v content.Value) bool {
		s, ok := v.(content.String)
		return ok && selectFn(string(s))
	})
	out := make([]string, len(found))
	for i, v := range found {
		out[i] = string(v.(content.String))
	}
	return out
}

// describe renders root for logging, truncated.
func describe(root content.Value) string {
	b, err := content.Marshal(root)
	if err != nil {
		return "<unencodable>"
	}
	const limit = 256
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}
