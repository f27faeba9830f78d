package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/sirupsen/logrus"

	"github.com/sajang-ai/backend/internal/logging"
	"github.com/sajang-ai/backend/internal/model/chat"
	"github.com/sajang-ai/backend/internal/model/persona"
	aiService "github.com/sajang-ai/backend/internal/service/ai"
	"github.com/sajang-ai/backend/internal/service/conversation"
)

// Completer opens one upstream completion stream.
type Completer interface {
	StreamReply(ctx context.Context, systemPrompt string, history []chat.Turn) (*schema.StreamReader[*schema.Message], error)
	ModelName() string
}

// Sessions is the in-memory session store.
type Sessions interface {
	GetOrCreate(ctx context.Context, sessionID string) (chat.Session, bool, error)
	Append(ctx context.Context, sessionID string, turns ...chat.Turn) error
	History(ctx context.Context, sessionID string, limit int) ([]chat.Turn, error)
}

// Recorder is the durable side of a completed turn.
type Recorder interface {
	PriorContext(ctx context.Context, userID, personaID string) aiService.PriorContext
	RecordTurnAsync(turn conversation.Turn)
}

// Request is one validated chat message to relay.
type Request struct {
	Persona        *persona.Persona
	SessionID      string
	Messages       []chat.Turn
	FormatMode     string
	ConversationID string
	UserID         string
}

// State is where a relay invocation ended up.
type State int

const (
	StateIdle State = iota
	StateStarted
	StateStreaming
	StateDone
	StateErrored
	// StateAborted means the client went away mid-stream.
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarted:
		return "started"
	case StateStreaming:
		return "streaming"
	case StateDone:
		return "done"
	case StateErrored:
		return "errored"
	case StateAborted:
		return "aborted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Result summarises one relay invocation.
type Result struct {
	State   State
	Content string
	Err     error
}

// Config tunes the relay.
type Config struct {
	HistoryWindow int
}

// Relay streams a completion to a Sink while accumulating the reply.
type Relay struct {
	completer Completer
	sessions  Sessions
	recorder  Recorder
	window    int
	logger    logrus.FieldLogger
}

// NewRelay wires a relay. recorder may be nil when persistence is unavailable.
func NewRelay(completer Completer, sessions Sessions, recorder Recorder, cfg Config, logger logrus.FieldLogger) *Relay {
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = 40
	}
	return &Relay{
		completer: completer,
		sessions:  sessions,
		recorder:  recorder,
		window:    cfg.HistoryWindow,
		logger:    logging.Component(logger, "stream"),
	}
}

// Enabled reports whether an upstream completer is wired.
func (r *Relay) Enabled() bool {
	return r != nil && r.completer != nil
}

// Stream runs one relay invocation: idle -> started -> streaming* -> done | errored.
// Every path that reaches the client ends with exactly one done or error frame.
func (r *Relay) Stream(ctx context.Context, sink Sink, req Request) Result {
	startedAt := time.Now()
	log := r.logger.WithFields(logrus.Fields{
		"session_id": req.SessionID,
		"persona":    personaID(req.Persona),
	})

	if len(req.Messages) == 0 {
		return r.fail(sink, log, StateIdle, errors.New("no messages to relay"))
	}

	history, err := r.loadHistory(ctx, req)
	if err != nil {
		return r.fail(sink, log, StateIdle, err)
	}

	var prior aiService.PriorContext
	if req.UserID != "" && r.recorder != nil {
		prior = r.recorder.PriorContext(ctx, req.UserID, personaID(req.Persona))
	}
	systemPrompt := aiService.BuildSystemPrompt(req.Persona, req.FormatMode, prior)

	if err := sink.Send(StartEvent()); err != nil {
		log.WithError(err).Info("client disconnected before start")
		return Result{State: StateAborted, Err: err}
	}

	upstreamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	reader, err := r.completer.StreamReply(upstreamCtx, systemPrompt, history)
	if err != nil {
		return r.fail(sink, log, StateStarted, err)
	}
	defer reader.Close()

	var reply strings.Builder
	state := StateStarted
	for {
		chunk, err := reader.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				log.WithError(err).Info("client disconnected while streaming")
				return Result{State: StateAborted, Content: reply.String(), Err: err}
			}
			return r.fail(sink, log, state, err)
		}
		// Skip empty chunks, reasoning-only ones included.
		if chunk == nil || chunk.Content == "" {
			continue
		}

		state = StateStreaming
		reply.WriteString(chunk.Content)
		if err := sink.Send(DeltaEvent(chunk.Content)); err != nil {
			cancel()
			log.WithError(err).Info("client disconnected while streaming")
			return Result{State: StateAborted, Content: reply.String(), Err: err}
		}
	}

	content := reply.String()
	if err := sink.Send(DoneEvent()); err != nil {
		log.WithError(err).Info("client disconnected before done")
	}
	r.complete(req, content, log)

	log.WithFields(logrus.Fields{
		"chars":    len(content),
		"duration": time.Since(startedAt).Round(time.Millisecond),
	}).Info("stream completed")
	return Result{State: StateDone, Content: content}
}

// loadHistory records the incoming user turn and returns the outbound window. A fresh
// session is seeded with every message the client sent so a resumed conversation keeps
// its context; an existing one only takes the newest message.
func (r *Relay) loadHistory(ctx context.Context, req Request) ([]chat.Turn, error) {
	_, created, err := r.sessions.GetOrCreate(ctx, req.SessionID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	incoming := req.Messages[len(req.Messages)-1:]
	if created {
		incoming = req.Messages
	}
	if err := r.sessions.Append(ctx, req.SessionID, incoming...); err != nil {
		return nil, fmt.Errorf("append user turn: %w", err)
	}

	return r.sessions.History(ctx, req.SessionID, r.window)
}

func (r *Relay) complete(req Request, content string, log logrus.FieldLogger) {
	if content == "" {
		log.Warn("upstream returned an empty reply")
		return
	}

	assistant := chat.Turn{Role: chat.RoleAssistant, Content: content}
	recording := req.ConversationID != "" && req.UserID != "" && r.recorder != nil

	// The session may have been swept or evicted while streaming; the reply is still
	// delivered and recorded from the messages the client sent.
	ctx := context.Background()
	var history []chat.Turn
	if err := r.sessions.Append(ctx, req.SessionID, assistant); err != nil {
		log.WithError(err).Warn("store assistant turn failed")
	} else if recording {
		if history, err = r.sessions.History(ctx, req.SessionID, 0); err != nil {
			log.WithError(err).Warn("load session history for recording failed")
		}
	}

	if !recording {
		return
	}
	if history == nil {
		history = make([]chat.Turn, 0, len(req.Messages)+1)
		history = append(history, req.Messages...)
		history = append(history, assistant)
	}
	r.recorder.RecordTurnAsync(conversation.Turn{
		UserID:         req.UserID,
		ConversationID: req.ConversationID,
		User:           req.Messages[len(req.Messages)-1].Content,
		Assistant:      content,
		Model:          r.completer.ModelName(),
		History:        history,
	})
}

func (r *Relay) fail(sink Sink, log logrus.FieldLogger, state State, err error) Result {
	category := aiService.Classify(err)
	log.WithError(err).WithFields(logrus.Fields{
		"category": category,
		"state":    state,
	}).Warn("stream failed")

	if sendErr := sink.Send(ErrorEvent(aiService.UserMessage(err))); sendErr != nil {
		return Result{State: StateAborted, Err: err}
	}
	return Result{State: StateErrored, Err: err}
}

func personaID(p *persona.Persona) string {
	if p == nil {
		return ""
	}
	return p.ID
}
