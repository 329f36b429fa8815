package report

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
)

// Origin is where an assertion was registered.
type Origin struct {
	File     string
	Line     int
	Function string
	Stack    string
}

// Short returns "file.go:line".
func (o Origin) Short() string {
	if o.File == "" {
		return "unknown"
	}
	return fmt.Sprintf("%s:%d", filepath.Base(o.File), o.Line)
}

// CallSite captures the caller's stack, dropping every frame for which
// skip returns true. The rendered stack starts with "failed expectation"
// and stops at the testing or runtime frames.
func CallSite(skip func(runtime.Frame) bool) Origin {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(2, pcs)
	frames := runtime.CallersFrames(pcs[:n])

	var (
		origin  Origin
		lines   []string
		leading = true
	)
	for {
		frame, more := frames.Next()
		if skip != nil && skip(frame) {
			if !more {
				break
			}
			continue
		}
		if strings.HasPrefix(frame.Function, "testing.") || strings.HasPrefix(frame.Function, "runtime.") {
			break
		}
		if leading {
			origin.File, origin.Line, origin.Function = frame.File, frame.Line, frame.Function
			leading = false
		}
		lines = append(lines, fmt.Sprintf("    at %s (%s:%d)", frame.Function, frame.File, frame.Line))
		if !more {
			break
		}
	}

	if len(lines) > 0 {
		origin.Stack = "failed expectation\n" + strings.Join(lines, "\n")
	}
	return origin
}
