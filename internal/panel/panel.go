// Package panel holds the reviewer's working state for the selected summary.
//
// A Panel never mutates the queue. It keeps the editable draft, the
// clinician's private notes, the journal disclosure toggle and the local risk
// level, and forwards the three queue actions (approve, send back, flag high
// risk) to the Queue it was built with. The summary itself is always re-read
// through the Queue by id so the Panel cannot go stale.
package panel

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kingrea/raga-review/internal/review"
)

const (
	// DefaultJournalLimit is how many recent journal entries are shown collapsed.
	DefaultJournalLimit = 7
	// DefaultFeedbackNote is sent when the reviewer sends back with empty notes.
	DefaultFeedbackNote = "Please refine empathy / context."
)

// ErrNoSelection is returned by actions invoked while no summary is open.
var ErrNoSelection = errors.New("panel: no summary selected")

// Queue is the slice of the review Store the panel depends on.
type Queue interface {
	Selected() (review.Summary, bool)
	Summary(id string) (review.Summary, error)
	Approve(id string) error
	SendBack(id, note string) error
	FlagHighRisk(id string) error
}

// RiskLevel is the reviewer's local triage marking for the open summary.
type RiskLevel string

const (
	RiskNone    RiskLevel = "none"
	RiskLow     RiskLevel = "low"
	RiskCheckIn RiskLevel = "check_in"
	RiskHigh    RiskLevel = "high"
)

// Label returns the display form.
func (r RiskLevel) Label() string {
	switch r {
	case RiskLow:
		return "Low"
	case RiskCheckIn:
		return "Recommend check-in"
	case RiskHigh:
		return "High risk"
	}
	return "Not assessed"
}

// Record is the audit snapshot written by SaveReview.
type Record struct {
	SummaryID  string
	UserName   string
	WeekRange  string
	Status     review.Status
	Risk       RiskLevel
	DraftChars int
	Edited     bool
	HasNotes   bool
	SavedAt    time.Time
}

// String renders the record as a single review-trail line.
func (r Record) String() string {
	edited := "unchanged"
	if r.Edited {
		edited = "edited"
	}
	notes := "no notes"
	if r.HasNotes {
		notes = "notes attached"
	}
	return fmt.Sprintf("Review saved · %s (%s, %s) · status %s · risk %s · draft %s, %d chars · %s",
		r.SummaryID, r.UserName, r.WeekRange, r.Status, r.Risk.Label(), edited, r.DraftChars, notes)
}

// Auditor receives saved review records.
type Auditor interface {
	RecordReview(Record) error
}

// Option customizes Panel construction.
type Option func(*Panel)

// WithJournalLimit overrides the collapsed journal count. Values below 1 are ignored.
func WithJournalLimit(limit int) Option {
	return func(p *Panel) {
		if limit > 0 {
			p.journalLimit = limit
		}
	}
}

// WithClearNotesOnSwitch controls whether notes survive a selection change.
func WithClearNotesOnSwitch(clear bool) Option {
	return func(p *Panel) {
		p.clearNotesOnSwitch = clear
	}
}

// WithFeedbackNote overrides the note sent when notes are empty.
func WithFeedbackNote(note string) Option {
	return func(p *Panel) {
		if note = strings.TrimSpace(note); note != "" {
			p.feedbackNote = note
		}
	}
}

// WithAuditor wires SaveReview to an audit sink.
func WithAuditor(a Auditor) Option {
	return func(p *Panel) {
		p.auditor = a
	}
}

// WithClock allows tests to control audit timestamps.
func WithClock(clock func() time.Time) Option {
	return func(p *Panel) {
		if clock != nil {
			p.clock = clock
		}
	}
}

// Panel is the review surface for the currently selected summary.
type Panel struct {
	queue Queue

	summaryID string
	draft     string
	notes     string
	showAll   bool
	risk      RiskLevel

	journalLimit       int
	clearNotesOnSwitch bool
	feedbackNote       string
	auditor            Auditor
	clock              func() time.Time
}

// New creates a panel bound to queue and syncs it to the current selection.
func New(queue Queue, opts ...Option) *Panel {
	p := &Panel{
		queue:              queue,
		risk:               RiskNone,
		journalLimit:       DefaultJournalLimit,
		clearNotesOnSwitch: true,
		feedbackNote:       DefaultFeedbackNote,
		clock:              time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	p.Sync()
	return p
}

// Sync follows the queue's selection. When the selected id changed the draft
// is reloaded from the summary, the journal list collapses, the risk level
// resets and, if configured, notes are cleared. It reports whether the
// selection changed.
func (p *Panel) Sync() bool {
	current, ok := p.queue.Selected()
	id := ""
	if ok {
		id = current.ID
	}
	if id == p.summaryID {
		return false
	}
	p.summaryID = id
	p.draft = current.AIDraft
	p.showAll = false
	p.risk = RiskNone
	if p.clearNotesOnSwitch {
		p.notes = ""
	}
	return true
}

// SummaryID returns the id the panel is bound to, or "".
func (p *Panel) SummaryID() string {
	return p.summaryID
}

// Summary re-reads the bound summary from the queue.
func (p *Panel) Summary() (review.Summary, bool) {
	if p.summaryID == "" {
		return review.Summary{}, false
	}
	s, err := p.queue.Summary(p.summaryID)
	if err != nil {
		return review.Summary{}, false
	}
	return s, true
}

// Draft returns the reviewer's working text.
func (p *Panel) Draft() string { return p.draft }

// SetDraft replaces the working text.
func (p *Panel) SetDraft(text string) { p.draft = text }

// DraftEdited reports whether the working text differs from the summary's draft.
func (p *Panel) DraftEdited() bool {
	s, ok := p.Summary()
	return ok && s.AIDraft != p.draft
}

// ResetDraft restores the working text from the summary's current draft,
// including any send-back markers appended since the panel opened.
func (p *Panel) ResetDraft() {
	if s, ok := p.Summary(); ok {
		p.draft = s.AIDraft
	}
}

// Notes returns the clinician-private notes.
func (p *Panel) Notes() string { return p.notes }

// SetNotes replaces the notes.
func (p *Panel) SetNotes(text string) { p.notes = text }

// ClearNotes empties the notes.
func (p *Panel) ClearNotes() { p.notes = "" }

// Risk returns the local risk marking.
func (p *Panel) Risk() RiskLevel { return p.risk }

// MarkRisk sets a local, advisory risk level. High risk must go through
// FlagHighRisk so triage is notified.
func (p *Panel) MarkRisk(level RiskLevel) {
	if p.summaryID == "" {
		return
	}
	switch level {
	case RiskNone, RiskLow, RiskCheckIn:
		p.risk = level
	}
}

// RecommendCheckIn marks the summary as needing a therapist check-in.
func (p *Panel) RecommendCheckIn() {
	p.MarkRisk(RiskCheckIn)
}

// ShowingAll reports whether the full journal list is disclosed.
func (p *Panel) ShowingAll() bool { return p.showAll }

// ToggleJournals flips between the collapsed and full journal list.
func (p *Panel) ToggleJournals() { p.showAll = !p.showAll }

// JournalLimit returns the collapsed journal count.
func (p *Panel) JournalLimit() int { return p.journalLimit }

// VisibleJournals returns the entries to render and how many are hidden.
// Collapsed, it keeps the most recent entries in chronological order.
func (p *Panel) VisibleJournals() ([]review.JournalEntry, int) {
	s, ok := p.Summary()
	if !ok {
		return nil, 0
	}
	entries := s.Journals
	if p.showAll || len(entries) <= p.journalLimit {
		return entries, 0
	}
	hidden := len(entries) - p.journalLimit
	return entries[hidden:], hidden
}

// CanApprove reports whether approve is currently offered.
func (p *Panel) CanApprove() bool {
	s, ok := p.Summary()
	return ok && s.Status != review.StatusApproved
}

// CanSendBack reports whether send back is currently offered.
func (p *Panel) CanSendBack() bool {
	return p.CanApprove()
}

// CanFlag reports whether a summary is open; any status may be flagged.
func (p *Panel) CanFlag() bool {
	_, ok := p.Summary()
	return ok
}

// Approve approves the open summary and follows the queue to its next selection.
func (p *Panel) Approve() error {
	if p.summaryID == "" {
		return ErrNoSelection
	}
	if err := p.queue.Approve(p.summaryID); err != nil {
		return err
	}
	p.Sync()
	return nil
}

// SendBack returns the open summary with the clinician notes as feedback, or
// the default feedback note when notes are empty.
func (p *Panel) SendBack() error {
	if p.summaryID == "" {
		return ErrNoSelection
	}
	note := strings.TrimSpace(p.notes)
	if note == "" {
		note = p.feedbackNote
	}
	return p.queue.SendBack(p.summaryID, note)
}

// FlagHighRisk raises the triage alert and marks the panel high risk.
func (p *Panel) FlagHighRisk() error {
	if p.summaryID == "" {
		return ErrNoSelection
	}
	if err := p.queue.FlagHighRisk(p.summaryID); err != nil {
		return err
	}
	p.risk = RiskHigh
	return nil
}

// SaveReview writes an audit record of the current panel state. It does not
// touch the queue.
func (p *Panel) SaveReview() (Record, error) {
	s, ok := p.Summary()
	if !ok {
		return Record{}, ErrNoSelection
	}
	rec := Record{
		SummaryID:  s.ID,
		UserName:   s.UserName,
		WeekRange:  s.WeekRange,
		Status:     s.Status,
		Risk:       p.risk,
		DraftChars: len([]rune(p.draft)),
		Edited:     s.AIDraft != p.draft,
		HasNotes:   strings.TrimSpace(p.notes) != "",
		SavedAt:    p.clock().UTC(),
	}
	if p.auditor != nil {
		if err := p.auditor.RecordReview(rec); err != nil {
			return rec, fmt.Errorf("panel: save review: %w", err)
		}
	}
	return rec, nil
}
