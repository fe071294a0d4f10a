// Package session owns the conversational state: the ordered message
// timeline, its backend-facing history mirror, the staged-image set,
// the input draft, and the single in-flight generation. All mutations
// go through the Controller; the host surface only reads snapshots and
// reacts to emitted hints.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"studybuddy/internal/backend"
	"studybuddy/internal/logging"
	"studybuddy/internal/markdown"
	"studybuddy/internal/staging"
	"studybuddy/internal/store"
)

// Sender identifies who authored a message.
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// SentinelStopped is appended in place of a cancelled generation's reply.
const SentinelStopped = "[Generation stopped by user]"

// Message is one entry in the display timeline. Immutable once
// appended except through SaveEdit.
type Message struct {
	ID        string
	Index     int
	Text      string
	HTML      string // rendered markup for the display boundary
	Sender    Sender
	CreatedAt time.Time
	Images    []staging.Image
	IsVoice   bool
}

// HistoryEntry is the backend-facing mirror of one timeline message.
type HistoryEntry struct {
	Role    string
	Content string
}

// EventKind classifies hints emitted to the host surface.
type EventKind int

const (
	EventScrollToEnd EventKind = iota
	EventFocusInput
	EventTypingChanged
	EventNotice
)

// Event is a post-mutation hint. The mutation is always visible in
// snapshots before its event fires.
type Event struct {
	Kind EventKind
	Text string // set for EventNotice
}

var (
	// ErrGenerationInFlight is returned when an operation requires that
	// no generation is live.
	ErrGenerationInFlight = errors.New("a generation is already in flight")

	// ErrEmptyMessage is returned by Send when there is nothing to send.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrEmptyEdit is returned by SaveEdit for blank edited text.
	ErrEmptyEdit = errors.New("edited text is empty")

	// ErrNotEditable is returned by StartEdit for non-user messages.
	ErrNotEditable = errors.New("only user messages can be edited")

	// ErrNoEditInProgress is returned by SaveEdit without StartEdit.
	ErrNoEditInProgress = errors.New("no edit in progress")
)

// generation is the token for one in-flight backend request. The
// cancelled flag is checked at resolution time, making cancellation
// cooperative rather than preemptive.
type generation struct {
	cancelled bool
}

// Options wires a Controller to its collaborators.
type Options struct {
	Responder backend.Responder
	Store     store.ConversationStore
	Staging   *staging.Manager
	Notify    func(Event)
	Now       func() time.Time
}

// Controller is the conversational session controller.
type Controller struct {
	mu sync.Mutex

	messages []Message
	history  []HistoryEntry

	staged    *staging.Manager
	responder backend.Responder
	store     store.ConversationStore
	notify    func(Event)
	now       func() time.Time

	draft              string
	hasVoiceTranscript bool
	editIndex          int
	typing             bool
	gen                *generation
}

// New builds a Controller and clears the persistence collaborator, per
// the default no-durability policy.
func New(opts Options) *Controller {
	c := &Controller{
		staged:    opts.Staging,
		responder: opts.Responder,
		store:     opts.Store,
		notify:    opts.Notify,
		now:       opts.Now,
		editIndex: -1,
	}
	if c.store == nil {
		c.store = store.NewNoopStore()
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.notify == nil {
		c.notify = func(Event) {}
	}
	if err := c.store.Clear(); err != nil {
		logging.StoreError("failed to clear store on init: %v", err)
	}
	return c
}

// appendLocked inserts a message at the end of the timeline, renders
// its display markup, and mirrors it into history. Callers hold the
// lock and emit the scroll hint after unlocking.
func (c *Controller) appendLocked(text string, sender Sender, images []staging.Image, isVoice bool) Message {
	msg := Message{
		ID:        uuid.NewString(),
		Index:     len(c.messages),
		Text:      text,
		HTML:      markdown.Render(text),
		Sender:    sender,
		CreatedAt: c.now(),
		Images:    images,
		IsVoice:   isVoice,
	}
	c.messages = append(c.messages, msg)
	c.history = append(c.history, HistoryEntry{Role: string(sender), Content: text})

	if err := c.store.SaveMessage(store.Record{
		ID:         msg.ID,
		Index:      msg.Index,
		Sender:     string(sender),
		Text:       text,
		IsVoice:    isVoice,
		ImageCount: len(images),
		CreatedAt:  msg.CreatedAt,
	}); err != nil {
		logging.StoreError("failed to persist message: %v", err)
	}

	logging.SessionDebug("appended %s message at index %d", sender, msg.Index)
	return msg
}

// truncateAfterLocked removes all messages with index > i and slices
// the history mirror to match (i+1 entries).
func (c *Controller) truncateAfterLocked(i int) {
	if i < 0 || i >= len(c.messages)-1 {
		return
	}
	c.messages = c.messages[:i+1]
	c.history = c.history[:i+1]
	c.rebuildStoreLocked()
	logging.Session("timeline truncated to %d messages", i+1)
}

// rebuildStoreLocked resynchronizes the persistence collaborator after
// a truncation or edit.
func (c *Controller) rebuildStoreLocked() {
	if err := c.store.Clear(); err != nil {
		logging.StoreError("failed to clear store: %v", err)
		return
	}
	for _, m := range c.messages {
		if err := c.store.SaveMessage(store.Record{
			ID:         m.ID,
			Index:      m.Index,
			Sender:     string(m.Sender),
			Text:       m.Text,
			IsVoice:    m.IsVoice,
			ImageCount: len(m.Images),
			CreatedAt:  m.CreatedAt,
		}); err != nil {
			logging.StoreError("failed to persist message: %v", err)
		}
	}
}

// lastUserIndexLocked scans backward for the most recent user message.
func (c *Controller) lastUserIndexLocked() int {
	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].Sender == SenderUser {
			return i
		}
	}
	return -1
}

// LastUserIndex returns the index of the most recent user message, or
// -1 when the timeline has none.
func (c *Controller) LastUserIndex() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastUserIndexLocked()
}

// Messages returns a snapshot of the timeline.
func (c *Controller) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// History returns a snapshot of the backend-facing mirror.
func (c *Controller) History() []HistoryEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]HistoryEntry, len(c.history))
	copy(out, c.history)
	return out
}

// Typing reports whether the typing indicator should show.
func (c *Controller) Typing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.typing
}

// InFlight reports whether a generation is live.
func (c *Controller) InFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen != nil
}

// Draft returns the current input draft.
func (c *Controller) Draft() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft
}

// SetDraft replaces the input draft (typed text or live transcript).
func (c *Controller) SetDraft(s string) {
	c.mu.Lock()
	c.draft = s
	c.mu.Unlock()
}

// FinalizeVoice lands a finished voice transcript in the draft. Wired
// to the voice machine's Finalized hook.
func (c *Controller) FinalizeVoice(text string, hasTranscript bool) {
	c.mu.Lock()
	c.draft = text
	c.hasVoiceTranscript = hasTranscript
	c.mu.Unlock()
	c.notify(Event{Kind: EventFocusInput})
}

// DiscardVoice clears the draft and transcript flag without sending.
// Wired to the voice cancel path.
func (c *Controller) DiscardVoice() {
	c.mu.Lock()
	c.draft = ""
	c.hasVoiceTranscript = false
	c.mu.Unlock()
}

// PushNotice forwards a user-facing notice to the host surface.
func (c *Controller) PushNotice(msg string) {
	c.notify(Event{Kind: EventNotice, Text: msg})
}

// Staging exposes the staged-image manager owned by this session.
func (c *Controller) Staging() *staging.Manager {
	return c.staged
}

// Clear resets the conversation: timeline, mirror, draft, staged
// images, and the persistence collaborator.
func (c *Controller) Clear() {
	c.mu.Lock()
	c.messages = nil
	c.history = nil
	c.draft = ""
	c.hasVoiceTranscript = false
	c.editIndex = -1
	c.mu.Unlock()

	if c.staged != nil {
		c.staged.Clear()
	}
	if err := c.store.Clear(); err != nil {
		logging.StoreError("failed to clear store: %v", err)
	}
	logging.Session("conversation cleared")
	c.notify(Event{Kind: EventFocusInput})
}

func imageRefs(images []staging.Image) []string {
	if len(images) == 0 {
		return nil
	}
	refs := make([]string, len(images))
	for i, img := range images {
		refs[i] = img.DataURL
	}
	return refs
}
