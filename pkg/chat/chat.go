// Package chat holds the persistent conversation data model shared by the
// orchestrator, the LLM provider boundary, and the function-tool runtime.
package chat

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Role identifies the speaker of a ChatMessage.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a single function-call request emitted by an assistant message.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // JSON-encoded
}

// Message is one immutable entry in a ChatContext.
//
// Content is nil for an assistant message that carries only tool calls.
// ToolCallID is set on tool-role messages and must reference a ToolCall.ID
// present on a prior assistant message.
type Message struct {
	ID         string     `json:"id"`
	Role       Role       `json:"role"`
	Content    *string    `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// NewMessage builds a Message with a fresh id and string content.
func NewMessage(role Role, content string) Message {
	return Message{ID: uuid.NewString(), Role: role, Content: &content}
}

// NewToolCallMessage builds an assistant message carrying only tool calls.
func NewToolCallMessage(calls []ToolCall) Message {
	return Message{ID: uuid.NewString(), Role: RoleAssistant, ToolCalls: append([]ToolCall(nil), calls...)}
}

// NewToolResultMessage builds a tool-role message replying to a prior tool call.
func NewToolResultMessage(toolCallID, content string) Message {
	return Message{ID: uuid.NewString(), Role: RoleTool, Content: &content, ToolCallID: toolCallID}
}

// Text returns the message's content, or "" if it carries none.
func (m Message) Text() string {
	if m.Content == nil {
		return ""
	}
	return *m.Content
}

// HasToolCalls reports whether this message carries pending tool calls.
func (m Message) HasToolCalls() bool {
	return len(m.ToolCalls) > 0
}

// Context is an ordered sequence of Messages, safe for concurrent use.
// Messages are only added at the end; ReplaceLast and ClearLastContent may
// rewrite the content of the last one. Message ids are unique within a
// Context (Append panics on a duplicate). A tool-role message's ToolCallID
// is expected to reference a ToolCall on a prior assistant message; Append
// does not check that reference.
type Context struct {
	mu       sync.RWMutex
	messages []Message
	ids      map[string]struct{}
}

// New returns an empty Context, optionally seeded with a system message.
func New(systemPrompt string) *Context {
	c := &Context{ids: make(map[string]struct{})}
	if systemPrompt != "" {
		c.Append(NewMessage(RoleSystem, systemPrompt))
	}
	return c
}

// Append adds msg to the end of the context. It panics on a duplicate id
// (an invariant violation per spec.md §3 — "should never happen").
func (c *Context) Append(msg Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.appendLocked(msg)
}

func (c *Context) appendLocked(msg Message) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if _, dup := c.ids[msg.ID]; dup {
		panic(fmt.Sprintf("chat: duplicate message id %q", msg.ID))
	}
	c.ids[msg.ID] = struct{}{}
	c.messages = append(c.messages, msg)
}

// AppendAll appends msgs in order, as a single critical section.
func (c *Context) AppendAll(msgs []Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range msgs {
		c.appendLocked(m)
	}
}

// ReplaceLast replaces the content of the most recent message in place,
// keeping its id, role and tool calls. Used when a tool-calls carrier
// message is later folded into the spoken reply (spec.md §4.2 assistant
// commit rule).
func (c *Context) ReplaceLast(content string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.messages) == 0 {
		return
	}
	c.messages[len(c.messages)-1].Content = &content
}

// ClearLastContent blanks the content of the most recent message without
// touching its tool calls — used when a tool_calls carrier message must be
// superseded by a separate assistant text message (spec.md §4.2).
func (c *Context) ClearLastContent() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.messages) == 0 {
		return
	}
	c.messages[len(c.messages)-1].Content = nil
}

// Last returns the most recent message and true, or the zero value and
// false if the context is empty.
func (c *Context) Last() (Message, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.messages) == 0 {
		return Message{}, false
	}
	return c.messages[len(c.messages)-1], true
}

// Messages returns a snapshot slice of the context's messages in order.
func (c *Context) Messages() []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Len returns the number of messages currently in the context.
func (c *Context) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}

// Copy returns a deep copy of the context: an independent Messages slice
// (each message's ToolCalls slice is also copied) and its own mutex/id set.
func (c *Context) Copy() *Context {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := &Context{
		messages: make([]Message, len(c.messages)),
		ids:      make(map[string]struct{}, len(c.ids)),
	}
	for i, m := range c.messages {
		cp := m
		if m.Content != nil {
			txt := *m.Content
			cp.Content = &txt
		}
		if m.ToolCalls != nil {
			cp.ToolCalls = append([]ToolCall(nil), m.ToolCalls...)
		}
		out.messages[i] = cp
		out.ids[cp.ID] = struct{}{}
	}
	return out
}

// FindToolCallCarrier returns the most recent assistant message that
// carries the given tool-call id, if any.
func (c *Context) FindToolCallCarrier(toolCallID string) (Message, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for i := len(c.messages) - 1; i >= 0; i-- {
		for _, tc := range c.messages[i].ToolCalls {
			if tc.ID == toolCallID {
				return c.messages[i], true
			}
		}
	}
	return Message{}, false
}
