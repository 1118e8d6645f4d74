package testutil

import (
	"bytes"
	"errors"
	"net/http"
	"sync"
	"time"
)

// ErrSimulated is returned by MockWriter when configured to fail.
var ErrSimulated = errors.New("simulated error")

// MockWriter is a test writer that can simulate various write conditions
// including delays, errors, and write counting.
type MockWriter struct {
	buf         *bytes.Buffer
	mu          sync.Mutex
	writeDelay  time.Duration
	errorOnNth  int
	writeCount  int
	shouldError bool
	err         error
}

// NewMockWriter creates a new MockWriter.
func NewMockWriter() *MockWriter {
	return &MockWriter{
		buf: &bytes.Buffer{},
	}
}

// Write implements io.Writer interface with configurable behavior.
func (mw *MockWriter) Write(p []byte) (int, error) {
	mw.mu.Lock()
	defer mw.mu.Unlock()

	mw.writeCount++

	if mw.writeDelay > 0 {
		time.Sleep(mw.writeDelay)
	}

	if mw.shouldError {
		return 0, mw.err
	}

	if mw.errorOnNth > 0 && mw.writeCount == mw.errorOnNth {
		return 0, ErrSimulated
	}

	return mw.buf.Write(p)
}

// String returns the current buffer contents.
func (mw *MockWriter) String() string {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	return mw.buf.String()
}

// Len returns the current buffer length.
func (mw *MockWriter) Len() int {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	return mw.buf.Len()
}

// WriteCount returns the number of Write calls.
func (mw *MockWriter) WriteCount() int {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	return mw.writeCount
}

// SetWriteDelay configures a delay for each write operation.
func (mw *MockWriter) SetWriteDelay(delay time.Duration) {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	mw.writeDelay = delay
}

// SetErrorOnNth configures the writer to error on the nth write.
func (mw *MockWriter) SetErrorOnNth(n int) {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	mw.errorOnNth = n
}

// SetAlwaysError configures the writer to always return the given error.
func (mw *MockWriter) SetAlwaysError(err error) {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	mw.shouldError = true
	mw.err = err
}

// Reset clears the buffer and resets counters.
func (mw *MockWriter) Reset() {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	mw.buf.Reset()
	mw.writeCount = 0
	mw.shouldError = false
	mw.errorOnNth = 0
	mw.writeDelay = 0
	mw.err = nil
}

// MockResponseWriter is an http.ResponseWriter and http.Flusher backed by a
// MockWriter, so handlers can be driven against failing or slow clients.
type MockResponseWriter struct {
	*MockWriter

	mu      sync.Mutex
	header  http.Header
	status  int
	flushes int
}

// NewMockResponseWriter creates a MockResponseWriter with an empty header.
func NewMockResponseWriter() *MockResponseWriter {
	return &MockResponseWriter{
		MockWriter: NewMockWriter(),
		header:     make(http.Header),
	}
}

// Header implements http.ResponseWriter.
func (rw *MockResponseWriter) Header() http.Header {
	return rw.header
}

// WriteHeader implements http.ResponseWriter.
func (rw *MockResponseWriter) WriteHeader(status int) {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	if rw.status == 0 {
		rw.status = status
	}
}

// Status returns the status code written, or 200 if only the body was written.
func (rw *MockResponseWriter) Status() int {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	if rw.status == 0 {
		return http.StatusOK
	}
	return rw.status
}

// Flush implements http.Flusher.
func (rw *MockResponseWriter) Flush() {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	rw.flushes++
}

// Flushes returns the number of Flush calls.
func (rw *MockResponseWriter) Flushes() int {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	return rw.flushes
}
