// Package staging validates and buffers pending image attachments for
// the next outgoing message. Candidates are checked synchronously
// (type, size, capacity) and encoded asynchronously; only encoded
// images become part of the staged set.
package staging

import (
	"encoding/base64"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"studybuddy/internal/logging"
)

// Reason classifies why a candidate was rejected.
type Reason string

const (
	ReasonWrongType    Reason = "wrong-type"
	ReasonTooLarge     Reason = "too-large"
	ReasonLimitReached Reason = "limit-reached"
)

// ValidationError reports a rejected candidate. No state is mutated
// when one is returned.
type ValidationError struct {
	Name   string
	Reason Reason
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("image %q rejected: %s", e.Name, e.Reason)
}

// Candidate is an image submitted from paste or file-picker events.
type Candidate struct {
	Name string
	MIME string
	Data []byte
}

// Image is a validated, encoded attachment reference.
type Image struct {
	ID      string
	Name    string
	MIME    string
	Size    int64
	DataURL string
}

// Manager owns the staged-image set. The set never exceeds maxImages;
// the check happens before a candidate is accepted, never after.
type Manager struct {
	mu        sync.Mutex
	maxImages int
	maxBytes  int64
	images    []Image
	reserved  int // validated candidates whose encode is still in flight
	preview   bool
	onUpdate  func()

	enc errgroup.Group
}

// NewManager creates a staging manager. onUpdate fires after every
// committed change to the staged set (may be nil).
func NewManager(maxImages int, maxBytes int64, onUpdate func()) *Manager {
	m := &Manager{
		maxImages: maxImages,
		maxBytes:  maxBytes,
		onUpdate:  onUpdate,
	}
	m.enc.SetLimit(4)
	return m
}

// Stage validates one candidate and, on success, schedules its encode.
// The returned error is always a *ValidationError on rejection.
func (m *Manager) Stage(c Candidate) error {
	m.mu.Lock()
	if !strings.HasPrefix(c.MIME, "image/") {
		m.mu.Unlock()
		logging.Staging("rejected %q: mime=%q", c.Name, c.MIME)
		return &ValidationError{Name: c.Name, Reason: ReasonWrongType}
	}
	if int64(len(c.Data)) > m.maxBytes {
		m.mu.Unlock()
		logging.Staging("rejected %q: size=%d limit=%d", c.Name, len(c.Data), m.maxBytes)
		return &ValidationError{Name: c.Name, Reason: ReasonTooLarge}
	}
	if len(m.images)+m.reserved >= m.maxImages {
		m.mu.Unlock()
		logging.Staging("rejected %q: staged set full", c.Name)
		return &ValidationError{Name: c.Name, Reason: ReasonLimitReached}
	}
	// Reserve the slot so a concurrent batch cannot overshoot the cap
	// while this encode is in flight.
	m.reserved++
	m.mu.Unlock()

	m.enc.Go(func() error {
		m.commit(encode(c))
		return nil
	})
	return nil
}

// StageAll validates and stages a batch. Each candidate is handled
// independently: a rejection is recorded and the rest continue.
func (m *Manager) StageAll(candidates []Candidate) []error {
	var rejected []error
	for _, c := range candidates {
		if err := m.Stage(c); err != nil {
			rejected = append(rejected, err)
		}
	}
	return rejected
}

// Wait blocks until all in-flight encodes have committed. Tests and
// the send path use it to observe a settled staged set.
func (m *Manager) Wait() {
	_ = m.enc.Wait()
}

func encode(c Candidate) Image {
	return Image{
		ID:      uuid.NewString(),
		Name:    c.Name,
		MIME:    c.MIME,
		Size:    int64(len(c.Data)),
		DataURL: "data:" + c.MIME + ";base64," + base64.StdEncoding.EncodeToString(c.Data),
	}
}

func (m *Manager) commit(img Image) {
	m.mu.Lock()
	m.reserved--
	m.images = append(m.images, img)
	m.preview = true
	m.mu.Unlock()

	logging.StagingDebug("staged %q (%d bytes)", img.Name, img.Size)
	if m.onUpdate != nil {
		m.onUpdate()
	}
}

// Images returns a snapshot of the staged set in staging order.
func (m *Manager) Images() []Image {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Image, len(m.images))
	copy(out, m.images)
	return out
}

// Count returns the committed staged-image count.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.images)
}

// PreviewVisible reports whether the attachment preview should show.
func (m *Manager) PreviewVisible() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.preview
}

// Remove drops the staged image at index i.
func (m *Manager) Remove(i int) error {
	m.mu.Lock()
	if i < 0 || i >= len(m.images) {
		m.mu.Unlock()
		return fmt.Errorf("no staged image at index %d", i)
	}
	m.images = append(m.images[:i], m.images[i+1:]...)
	if len(m.images) == 0 {
		m.preview = false
	}
	m.mu.Unlock()

	if m.onUpdate != nil {
		m.onUpdate()
	}
	return nil
}

// Clear discards all staged images and hides the preview.
func (m *Manager) Clear() {
	m.mu.Lock()
	m.images = nil
	m.preview = false
	m.mu.Unlock()

	if m.onUpdate != nil {
		m.onUpdate()
	}
}

// TakeAll removes and returns the staged set; the send path calls it
// when attaching images to an outgoing message.
func (m *Manager) TakeAll() []Image {
	m.mu.Lock()
	out := m.images
	m.images = nil
	m.preview = false
	m.mu.Unlock()

	if m.onUpdate != nil && len(out) > 0 {
		m.onUpdate()
	}
	return out
}
