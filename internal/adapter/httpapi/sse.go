package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
)

// sseWriter emits server-sent events as `data: <json>` frames, flushing
// after every event so tokens reach the client as they are produced.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// newSSEWriter prepares the response for SSE. The X-Accel-Buffering header
// stops nginx-style proxies from buffering the stream.
func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("response writer does not support flushing")
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &sseWriter{w: w, flusher: flusher}, nil
}

// Send marshals v and writes it as one SSE data frame. A write error means
// the client went away; the caller stops streaming.
func (s *sseWriter) Send(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}

	if _, err := s.w.Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := s.w.Write(payload); err != nil {
		return err
	}
	if _, err := s.w.Write([]byte("\n\n")); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
