// Package stacktrace reports the frames of the running goroutine that belong
// to this module, so panic logs stay short.
package stacktrace

import (
	"runtime"
	"strconv"
	"strings"
)

const maxDepth = 64

// Frames returns "internal/<path>.go:<line>" entries for the caller's stack,
// skipping skip frames above Frames itself. Runtime and third-party frames
// are dropped.
func Frames(skip int) []string {
	pcs := make([]uintptr, maxDepth)
	n := runtime.Callers(skip+2, pcs)
	if n == 0 {
		return nil
	}

	frames := runtime.CallersFrames(pcs[:n])
	out := make([]string, 0, n)
	for {
		fr, more := frames.Next()
		if rel, ok := internalPath(fr.File); ok {
			out = append(out, rel+":"+strconv.Itoa(fr.Line))
		}
		if !more {
			break
		}
	}

	return out
}

func internalPath(file string) (string, bool) {
	_, after, found := strings.Cut(file, "/internal/")
	if !found {
		return "", false
	}
	return "internal/" + after, true
}
