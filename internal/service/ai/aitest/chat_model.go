// Package aitest provides a scripted eino ChatModel for tests.
package aitest

import (
	"context"
	"sync"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// ChatModel replays Chunks for every Stream call and Reply for every Generate call.
type ChatModel struct {
	Chunks []string
	Reply  string
	// Err fails the call before any chunk is produced.
	Err error
	// StreamErr is delivered after the chunks instead of a clean end.
	StreamErr error
	// Endless keeps emitting Chunks until the reader is closed.
	Endless bool
	// Delay holds every Generate call before it answers.
	Delay time.Duration

	mu       sync.Mutex
	inputs   [][]*schema.Message
	released chan struct{}
}

var _ model.ChatModel = (*ChatModel)(nil)

func (m *ChatModel) record(input []*schema.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := make([]*schema.Message, len(input))
	copy(copied, input)
	m.inputs = append(m.inputs, copied)
}

func (m *ChatModel) Generate(ctx context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.record(input)
	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return schema.AssistantMessage(m.Reply, nil), nil
}

func (m *ChatModel) Stream(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	m.record(input)
	if m.Err != nil {
		return nil, m.Err
	}

	released := make(chan struct{})
	m.mu.Lock()
	m.released = released
	m.mu.Unlock()

	sr, sw := schema.Pipe[*schema.Message](0)
	go func() {
		defer close(released)
		defer sw.Close()
		for {
			for _, chunk := range m.Chunks {
				if closed := sw.Send(&schema.Message{Role: schema.Assistant, Content: chunk}, nil); closed {
					return
				}
			}
			if !m.Endless {
				break
			}
		}
		if m.StreamErr != nil {
			sw.Send(nil, m.StreamErr)
		}
	}()
	return sr, nil
}

func (m *ChatModel) BindTools(_ []*schema.ToolInfo) error { return nil }

// Calls reports how many times the model was invoked.
func (m *ChatModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.inputs)
}

// LastInput returns the messages of the most recent call.
func (m *ChatModel) LastInput() []*schema.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.inputs) == 0 {
		return nil
	}
	return m.inputs[len(m.inputs)-1]
}

// WaitReleased blocks until the last stream's producer has exited.
func (m *ChatModel) WaitReleased(timeout time.Duration) bool {
	m.mu.Lock()
	released := m.released
	m.mu.Unlock()
	if released == nil {
		return false
	}
	select {
	case <-released:
		return true
	case <-time.After(timeout):
		return false
	}
}
