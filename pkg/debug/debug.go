// Package debug provides the debug switches, pipeline stage dumps and the
// annotated dial snapshot.
package debug

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// Enabled turns on per-frame debug lines.
var Enabled bool

// Stages turns on a line per written stage image. Very verbose.
var Stages bool

var (
	outMu  sync.Mutex
	output io.Writer = os.Stderr
)

// SetOutput redirects debug lines and returns the previous writer.
func SetOutput(w io.Writer) io.Writer {
	outMu.Lock()
	defer outMu.Unlock()
	prev := output
	output = w
	return prev
}

func printf(format string, args ...interface{}) {
	outMu.Lock()
	defer outMu.Unlock()
	fmt.Fprintf(output, format, args...)
}

// Log prints a message only if debug mode is enabled
func Log(format string, args ...interface{}) {
	if Enabled {
		printf(format, args...)
	}
}

// StageLog prints a message only if stage logging is enabled
func StageLog(format string, args ...interface{}) {
	if Stages {
		printf(format, args...)
	}
}
