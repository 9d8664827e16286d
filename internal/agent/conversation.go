// internal/agent/conversation.go
package agent

import (
	"sync"
	"time"

	"github.com/quantumagi/agi-sdk-go/internal/action"
)

// conversation is the bounded rolling history of screenshots, user messages
// and executed actions used to construct each inference request. Appends may
// come from the loop or from concurrently-issued user commands, so every
// access is serialized through the mutex. Eviction is FIFO once the entry
// limit is reached.
type conversation struct {
	mu      sync.Mutex
	entries []Message
	limit   int
}

func newConversation(limit int) *conversation {
	if limit <= 0 {
		limit = 20
	}
	return &conversation{limit: limit}
}

func (c *conversation) append(msg Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, msg)
	if over := len(c.entries) - c.limit; over > 0 {
		c.entries = append([]Message(nil), c.entries[over:]...)
	}
}

func (c *conversation) appendText(role, text string) {
	c.append(Message{Role: role, Text: text})
}

func (c *conversation) appendScreenshot(img EncodedImage) {
	c.append(Message{Role: RoleUser, ImageB64: img.Base64})
}

func (c *conversation) appendAction(act action.Action, reasoning string) {
	actCopy := act
	c.append(Message{Role: RoleAssistant, Action: &actCopy, Reasoning: reasoning})
}

// snapshot returns a copy safe to hand to an Inferencer while the loop keeps
// appending.
func (c *conversation) snapshot() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.entries))
	copy(out, c.entries)
	for i := range out {
		if out[i].Action != nil {
			cloned := out[i].Action.Clone()
			out[i].Action = &cloned
		}
	}
	return out
}

func (c *conversation) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = nil
}

func (c *conversation) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
