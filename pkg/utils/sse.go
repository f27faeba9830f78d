package utils

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// WriteSSEData writes one `data: <json>\n\n` frame and flushes it. The returned error
// is the first write failure, which usually means the client went away.
func WriteSSEData(w http.ResponseWriter, flusher http.Flusher, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal sse payload: %w", err)
	}

	frame := make([]byte, 0, len(data)+8)
	frame = append(frame, "data: "...)
	frame = append(frame, data...)
	frame = append(frame, "\n\n"...)

	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("write sse frame: %w", err)
	}
	if flusher != nil {
		flusher.Flush()
	}
	return nil
}

// SetupSSEHeaders sets the headers of an event-stream response.
func SetupSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}
