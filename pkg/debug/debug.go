// Package debug provides category-gated debug logging for wingman on
// top of log/slog.
//
// Two orthogonal controls:
//   - WINGMAN_DEBUG selects WHAT to log: a comma-separated category list
//     (providers, pipeline, cache, extract, storage, auth, transport,
//     config) or "all".
//   - WINGMAN_LOG_LEVEL selects HOW MUCH: ERROR, WARN, INFO, DEBUG, or
//     TRACE.
//
// Usage:
//
//	debug.Log("pipeline", "stage done", "kind", kind, "ms", ms)
//	if debug.Enabled("providers") { /* expensive formatting */ }
package debug

import (
	"log/slog"
	"os"
	"strings"
)

// LevelTrace sits below slog.LevelDebug. At TRACE, adapters log
// untruncated request and response bodies.
const LevelTrace = slog.LevelDebug - 4

// categories is the enabled category set. Written only by init and
// Init, both of which run before any concurrent reader.
var categories map[string]bool

func init() {
	categories = parseCategories(os.Getenv("WINGMAN_DEBUG"))
}

// Init installs the default slog handler and re-reads the category set.
// Explicit arguments act as fallbacks; the environment wins.
func Init(fallbackCategories, fallbackLevel string) {
	cats := os.Getenv("WINGMAN_DEBUG")
	if cats == "" {
		cats = fallbackCategories
	}
	categories = parseCategories(cats)

	level := os.Getenv("WINGMAN_LOG_LEVEL")
	if level == "" {
		level = fallbackLevel
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: ParseLevel(level),
	})))
}

// Enabled reports whether the category is selected.
func Enabled(category string) bool {
	return categories["all"] || categories[category]
}

// Log emits a debug-level message when the category is selected.
func Log(category, msg string, args ...any) {
	if !Enabled(category) {
		return
	}
	slog.Debug(msg, append([]any{"debug", category}, args...)...)
}

// Trace emits a trace-level message when the category is selected.
// Visible only with WINGMAN_LOG_LEVEL=TRACE.
func Trace(category, msg string, args ...any) {
	if !Enabled(category) {
		return
	}
	slog.Log(nil, LevelTrace, msg, append([]any{"debug", category}, args...)...)
}

// ParseLevel maps a level name to its slog.Level. Unknown names fall
// back to INFO.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return LevelTrace
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Truncate shortens s to at most n bytes, marking the cut with "...".
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func parseCategories(s string) map[string]bool {
	m := make(map[string]bool)
	for _, cat := range strings.Split(s, ",") {
		cat = strings.TrimSpace(strings.ToLower(cat))
		if cat != "" {
			m[cat] = true
		}
	}
	return m
}
