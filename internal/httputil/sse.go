package httputil

import "net/http"

var (
	dataPrefix = []byte("data: ")
	eventEnd   = []byte("\n\n")
)

// DoneFrame terminates an OpenAI-style event stream.
var DoneFrame = Frame([]byte("[DONE]"))

// SetSSEHeaders sets the standard headers for a Server-Sent Events response.
func SetSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
}

// Frame encodes payload as a single SSE event: "data: <payload>\n\n".
func Frame(payload []byte) []byte {
	out := make([]byte, 0, len(dataPrefix)+len(payload)+len(eventEnd))
	out = append(out, dataPrefix...)
	out = append(out, payload...)
	return append(out, eventEnd...)
}

// FlushWriter wraps http.ResponseWriter and exposes a Flush method that is a no-op
// when the underlying writer does not implement http.Flusher.
type FlushWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func NewFlushWriter(w http.ResponseWriter) *FlushWriter {
	fw := &FlushWriter{w: w}
	if f, ok := w.(http.Flusher); ok {
		fw.flusher = f
	}
	return fw
}

func (fw *FlushWriter) Header() http.Header        { return fw.w.Header() }
func (fw *FlushWriter) WriteHeader(code int)        { fw.w.WriteHeader(code) }
func (fw *FlushWriter) Write(p []byte) (int, error) { return fw.w.Write(p) }
func (fw *FlushWriter) Flush() {
	if fw.flusher != nil {
		fw.flusher.Flush()
	}
}

// WriteFrame writes one pre-encoded frame and flushes it to the client.
func (fw *FlushWriter) WriteFrame(frame []byte) error {
	if _, err := fw.w.Write(frame); err != nil {
		return err
	}
	fw.Flush()
	return nil
}
