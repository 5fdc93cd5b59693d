// Package shell executes task commands through the platform shell with
// bounded lifetimes and captured output.
package shell

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// Console serializes writes to the real output streams so concurrently
// streaming tasks never interleave mid-chunk.
//
// It is constructed explicitly and injected rather than being ambient global
// state, so tests can substitute in-memory writers.
type Console struct {
	mu  sync.Mutex
	out io.Writer
	err io.Writer
}

// NewConsole returns a console bound to the process stdout/stderr.
func NewConsole() *Console {
	return &Console{out: os.Stdout, err: os.Stderr}
}

// NewConsoleWriters returns a console bound to the given writers.
func NewConsoleWriters(out, err io.Writer) *Console {
	return &Console{out: out, err: err}
}

// WriteOut writes p to the output stream under the console lock.
func (c *Console) WriteOut(p []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = c.out.Write(p)
}

// WriteErr writes p to the error stream under the console lock.
func (c *Console) WriteErr(p []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = c.err.Write(p)
}

// Printf writes a formatted string to the output stream under the console
// lock.
func (c *Console) Printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintf(c.out, format, args...)
}
