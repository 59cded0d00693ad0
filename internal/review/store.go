package review

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultSendBackNote is appended when a summary is sent back without a note.
	DefaultSendBackNote = "Please review tone."
	// DefaultAuditDateLayout renders the date inside the send-back marker.
	DefaultAuditDateLayout = "1/2/2006"
)

// Option customizes Store construction.
type Option func(*Store)

// WithClock allows tests to control the send-back marker date and event timestamps.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger overrides the default no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithPublisher registers an additional event publisher.
func WithPublisher(p Publisher) Option {
	return func(s *Store) {
		if p != nil {
			s.publishers = append(s.publishers, p)
		}
	}
}

// WithAuditDateLayout sets the time layout used inside send-back markers.
func WithAuditDateLayout(layout string) Option {
	return func(s *Store) {
		if layout = strings.TrimSpace(layout); layout != "" {
			s.dateLayout = layout
		}
	}
}

// WithDefaultNote overrides the note used when SendBack receives none.
func WithDefaultNote(note string) Option {
	return func(s *Store) {
		if note = strings.TrimSpace(note); note != "" {
			s.defaultNote = note
		}
	}
}

// Store owns the review queue and the current selection.
type Store struct {
	mu         sync.RWMutex
	summaries  []Summary
	index      map[string]int
	selectedID string
	revision   uint64

	clock       func() time.Time
	logger      *zap.Logger
	publishers  []Publisher
	dateLayout  string
	defaultNote string
}

// NewStore builds a Store from the upstream seed. The seed is copied; ids must
// be non-empty and unique. The initial selection is the first pending summary,
// else the first summary, else nothing.
func NewStore(seed []Summary, opts ...Option) (*Store, error) {
	s := &Store{
		summaries:   make([]Summary, 0, len(seed)),
		index:       make(map[string]int, len(seed)),
		clock:       time.Now,
		logger:      zap.NewNop(),
		dateLayout:  DefaultAuditDateLayout,
		defaultNote: DefaultSendBackNote,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	for i, item := range seed {
		id := strings.TrimSpace(item.ID)
		if id == "" {
			return nil, fmt.Errorf("review: summaries[%d]: id is required", i)
		}
		if _, dup := s.index[id]; dup {
			return nil, fmt.Errorf("review: summaries[%d]: duplicate id %q", i, id)
		}
		if !item.Status.Valid() {
			return nil, fmt.Errorf("review: summaries[%d]: unknown status %q", i, item.Status)
		}
		if item.EmotionScore < 0 || item.EmotionScore > 100 {
			return nil, fmt.Errorf("review: summaries[%d]: emotion score %d out of range 0..100", i, item.EmotionScore)
		}
		clone := item.Clone()
		clone.ID = id
		s.index[id] = len(s.summaries)
		s.summaries = append(s.summaries, clone)
	}
	s.selectedID = s.initialSelection()
	s.logger.Debug("review queue loaded",
		zap.Int("summaries", len(s.summaries)),
		zap.String("selected", s.selectedID),
	)
	return s, nil
}

func (s *Store) initialSelection() string {
	if id, ok := s.firstPending(""); ok {
		return id
	}
	if len(s.summaries) > 0 {
		return s.summaries[0].ID
	}
	return ""
}

// firstPending returns the first pending id in queue order, skipping exclude.
func (s *Store) firstPending(exclude string) (string, bool) {
	for _, item := range s.summaries {
		if item.Status == StatusPending && item.ID != exclude {
			return item.ID, true
		}
	}
	return "", false
}

// Len returns the number of summaries in the queue.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.summaries)
}

// Revision increases on every mutation and selection change.
func (s *Store) Revision() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision
}

// Summaries returns a copy of the queue in order.
func (s *Store) Summaries() []Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Summary, len(s.summaries))
	for i, item := range s.summaries {
		out[i] = item.Clone()
	}
	return out
}

// Summary returns a copy of the summary with the given id.
func (s *Store) Summary(id string) (Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.index[strings.TrimSpace(id)]
	if !ok {
		return Summary{}, notFound("get", id)
	}
	return s.summaries[idx].Clone(), nil
}

// SelectedID returns the current selection key, or "" when nothing is selected.
func (s *Store) SelectedID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selectedID
}

// Selected resolves the current selection.
func (s *Store) Selected() (Summary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.index[s.selectedID]
	if !ok {
		return Summary{}, false
	}
	return s.summaries[idx].Clone(), true
}

// PendingCount returns the number of summaries awaiting a first decision.
func (s *Store) PendingCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, item := range s.summaries {
		if item.Status == StatusPending {
			count++
		}
	}
	return count
}

// Counts tallies summaries per status.
func (s *Store) Counts() map[Status]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := map[Status]int{
		StatusPending:  0,
		StatusApproved: 0,
		StatusSentBack: 0,
	}
	for _, item := range s.summaries {
		counts[item.Status]++
	}
	return counts
}

// Select makes id the current selection. Any status may be selected.
func (s *Store) Select(id string) error {
	id = strings.TrimSpace(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.index[id]; !ok {
		return notFound("select", id)
	}
	if s.selectedID != id {
		s.selectedID = id
		s.revision++
	}
	return nil
}

// OpenNextPending selects the first pending summary in queue order. It is a
// no-op returning false when nothing is pending.
func (s *Store) OpenNextPending() (Summary, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.firstPending("")
	if !ok {
		return Summary{}, false
	}
	if s.selectedID != id {
		s.selectedID = id
		s.revision++
	}
	return s.summaries[s.index[id]].Clone(), true
}

// Approve marks id approved and moves the selection to the first other
// pending summary, or clears it when none remains. Approved summaries cannot
// be approved again.
func (s *Store) Approve(id string) error {
	id = strings.TrimSpace(id)
	s.mu.Lock()
	idx, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		return notFound("approve", id)
	}
	current := &s.summaries[idx]
	prev := current.Status
	if prev == StatusApproved {
		s.mu.Unlock()
		return invalidTransition("approve", id, prev)
	}
	current.Status = StatusApproved
	next, _ := s.firstPending(id)
	s.selectedID = next
	s.revision++
	evt := newEvent(EventApproved, *current, prev, s.clock())
	evt.MicroTasks = append([]string(nil), current.MicroTasks...)
	s.mu.Unlock()

	s.logger.Info("summary approved",
		zap.String("summary", id),
		zap.String("from", string(prev)),
		zap.String("next", next),
	)
	s.publish(evt)
	return nil
}

// SendBack returns id to the drafting pipeline. The draft is extended with a
// dated marker and the note (or the default note); earlier text is never
// rewritten. Approved summaries cannot be sent back.
func (s *Store) SendBack(id, note string) error {
	id = strings.TrimSpace(id)
	s.mu.Lock()
	idx, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		return notFound("send_back", id)
	}
	current := &s.summaries[idx]
	prev := current.Status
	if prev == StatusApproved {
		s.mu.Unlock()
		return invalidTransition("send_back", id, prev)
	}
	note = strings.TrimSpace(note)
	if note == "" {
		note = s.defaultNote
	}
	now := s.clock()
	current.AIDraft += SendBackMarker(now, s.dateLayout, note)
	current.Status = StatusSentBack
	s.revision++
	evt := newEvent(EventSentBack, *current, prev, now)
	evt.Note = note
	s.mu.Unlock()

	s.logger.Info("summary sent back",
		zap.String("summary", id),
		zap.String("from", string(prev)),
		zap.String("note", note),
	)
	s.publish(evt)
	return nil
}

// FlagHighRisk raises a triage alert for id. Nothing in the queue changes and
// any status may be flagged.
func (s *Store) FlagHighRisk(id string) error {
	id = strings.TrimSpace(id)
	s.mu.RLock()
	idx, ok := s.index[id]
	if !ok {
		s.mu.RUnlock()
		return notFound("flag_high_risk", id)
	}
	current := s.summaries[idx]
	evt := newEvent(EventFlaggedHighRisk, current, current.Status, s.clock())
	s.mu.RUnlock()

	s.logger.Warn("summary flagged high risk",
		zap.String("summary", id),
		zap.String("user", current.UserName),
		zap.String("status", string(current.Status)),
	)
	s.publish(evt)
	return nil
}

func (s *Store) publish(evt Event) {
	for _, p := range s.publishers {
		p.Publish(evt)
	}
}

// SendBackMarker renders the text appended to a draft on send-back.
func SendBackMarker(at time.Time, layout, note string) string {
	if layout == "" {
		layout = DefaultAuditDateLayout
	}
	return fmt.Sprintf("\n\n[SENT BACK: %s] %s", at.Format(layout), note)
}
