package stream

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sajang-ai/backend/pkg/utils"
)

// Frame types.
const (
	EventStart = "start"
	EventDelta = "delta"
	EventError = "error"
	EventDone  = "done"
)

// Event is one frame sent to the client.
type Event struct {
	Type    string `json:"type"`
	Text    string `json:"text,omitempty"`
	Message string `json:"message,omitempty"`
}

func StartEvent() Event            { return Event{Type: EventStart} }
func DeltaEvent(text string) Event { return Event{Type: EventDelta, Text: text} }
func ErrorEvent(msg string) Event  { return Event{Type: EventError, Message: msg} }
func DoneEvent() Event             { return Event{Type: EventDone} }

// Sink delivers frames to one client. A non-nil error means the client is gone.
type Sink interface {
	Send(Event) error
}

// ErrStreamingUnsupported is returned when the response writer cannot flush.
var ErrStreamingUnsupported = errors.New("streaming unsupported")

// SSESink writes frames as server-sent events.
type SSESink struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
}

// NewSSESink checks that w can stream. Headers are written with the first frame.
func NewSSESink(w http.ResponseWriter) (*SSESink, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}
	return &SSESink{w: w, flusher: flusher}, nil
}

func (s *SSESink) Send(ev Event) error {
	if !s.started {
		utils.SetupSSEHeaders(s.w)
		s.w.WriteHeader(http.StatusOK)
		s.started = true
	}
	return utils.WriteSSEData(s.w, s.flusher, ev)
}

// WSSink writes frames as WebSocket text messages carrying the same JSON objects.
type WSSink struct {
	mu           sync.Mutex
	conn         *websocket.Conn
	writeTimeout time.Duration
}

// NewWSSink wraps conn. A zero timeout means writes never time out.
func NewWSSink(conn *websocket.Conn, writeTimeout time.Duration) *WSSink {
	return &WSSink{conn: conn, writeTimeout: writeTimeout}
}

func (s *WSSink) Send(ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.writeTimeout > 0 {
		if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
			return err
		}
	}
	return s.conn.WriteJSON(ev)
}
