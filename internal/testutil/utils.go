package testutil

import (
	"bytes"
	"log"
	"sync"
	"testing"
)

// testWriter routes log output through t.Log so it only shows for failing
// or verbose runs.
type testWriter struct {
	t *testing.T
}

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Helper()
	w.t.Log(string(bytes.TrimRight(p, "\n")))
	return len(p), nil
}

func TestLogger(t *testing.T) *log.Logger {
	return log.New(testWriter{t: t}, "[test] ", log.LstdFlags)
}

// SafeBuffer is a bytes.Buffer that can be written by a logger on one
// goroutine and read by the test on another.
type SafeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// BufferedLogger returns a logger whose output the test can inspect.
func BufferedLogger() (*log.Logger, *SafeBuffer) {
	buf := &SafeBuffer{}
	return log.New(buf, "[test] ", 0), buf
}
