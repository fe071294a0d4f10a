package session

import (
	"strings"

	"studybuddy/internal/logging"
	"studybuddy/internal/markdown"
)

// StartEdit begins editing the user message at index i and returns its
// text so the host can seed the input buffer. Only user messages are
// editable, and nothing changes until SaveEdit commits.
func (c *Controller) StartEdit(i int) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gen != nil {
		return "", ErrGenerationInFlight
	}
	if i < 0 || i >= len(c.messages) || c.messages[i].Sender != SenderUser {
		return "", ErrNotEditable
	}

	c.editIndex = i
	logging.Session("editing message at index %d", i)
	return c.messages[i].Text, nil
}

// CancelEdit abandons an in-progress edit. The timeline is untouched.
func (c *Controller) CancelEdit() {
	c.mu.Lock()
	c.editIndex = -1
	c.mu.Unlock()
}

// SaveEdit commits the edited text: the message is rewritten in place,
// everything after it is discarded from both the timeline and the
// history mirror, and a fresh generation runs against the revised turn.
// The message keeps its original images.
func (c *Controller) SaveEdit(text string) error {
	text = strings.TrimSpace(text)

	c.mu.Lock()
	if c.editIndex < 0 {
		c.mu.Unlock()
		return ErrNoEditInProgress
	}
	if c.gen != nil {
		c.mu.Unlock()
		return ErrGenerationInFlight
	}
	if text == "" {
		c.mu.Unlock()
		return ErrEmptyEdit
	}

	i := c.editIndex
	c.editIndex = -1

	c.messages[i].Text = text
	c.messages[i].HTML = markdown.Render(text)
	c.history[i].Content = text

	c.truncateAfterLocked(i)
	c.rebuildStoreLocked()

	images := c.messages[i].Images
	c.startGenerationLocked(text, imageRefs(images))
	c.mu.Unlock()

	logging.Session("edit saved at index %d, replaying from there", i)
	c.notify(Event{Kind: EventScrollToEnd})
	c.notify(Event{Kind: EventTypingChanged})
	return nil
}

// Regenerate discards everything after the most recent user message and
// replays it for a fresh reply. A no-op on an empty timeline or while a
// generation is live.
func (c *Controller) Regenerate() {
	c.mu.Lock()
	if c.gen != nil {
		c.mu.Unlock()
		return
	}
	i := c.lastUserIndexLocked()
	if i < 0 {
		c.mu.Unlock()
		return
	}

	c.truncateAfterLocked(i)
	msg := c.messages[i]
	c.startGenerationLocked(msg.Text, imageRefs(msg.Images))
	c.mu.Unlock()

	logging.Session("regenerating from index %d", i)
	c.notify(Event{Kind: EventScrollToEnd})
	c.notify(Event{Kind: EventTypingChanged})
}
