package logging

import (
	"io"
	"os"
	"sync/atomic"
)

// sink wraps the writer so atomic.Pointer can swap it.
type sink struct {
	w io.Writer
}

// stderrSink is the shared stderr destination of every logger. Loggers
// hold stderrWriter, so a swap reaches loggers created earlier too.
var stderrSink atomic.Pointer[sink]

func init() {
	stderrSink.Store(&sink{w: os.Stderr})
}

type stderrWriter struct{}

func (stderrWriter) Write(p []byte) (int, error) {
	return stderrSink.Load().w.Write(p)
}

// SetGlobalOutput redirects the stderr sink of every logger. The dashboard
// uses it to keep log lines off the alternate screen.
func SetGlobalOutput(w io.Writer) {
	stderrSink.Store(&sink{w: w})
}

// GetGlobalOutput returns the shared stderr sink.
func GetGlobalOutput() io.Writer {
	return stderrWriter{}
}
