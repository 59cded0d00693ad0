// internal/tui/app.go
//
// The review screen. It follows The Elm Architecture that bubbletea uses:
// key presses become messages, Update applies them to the queue and the
// panel, and View renders the result. The queue list lives on the left, the
// open summary on the right, and the review trail underneath.

package tui

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/kingrea/raga-review/internal/logbook"
	"github.com/kingrea/raga-review/internal/panel"
	"github.com/kingrea/raga-review/internal/review"
)

const defaultRefreshInterval = 2 * time.Second

// Queue is the review Store surface the screen drives.
type Queue interface {
	panel.Queue
	Summaries() []review.Summary
	SelectedID() string
	Select(id string) error
	OpenNextPending() (review.Summary, bool)
	PendingCount() int
	Revision() uint64
}

// editMode tracks which text area, if any, owns the keyboard.
type editMode int

const (
	editNone editMode = iota
	editDraft
	editNotes
)

type refreshMsg struct {
	revision uint64
}

// AppOption customizes App construction for tests and alternate runtimes.
type AppOption func(*App)

// WithTrail shows the review trail and records saved reviews to it.
func WithTrail(lb *logbook.Logbook) AppOption {
	return func(a *App) {
		a.trail = lb
	}
}

// WithReviewer sets the name shown in the header.
func WithReviewer(name, title string) AppOption {
	return func(a *App) {
		a.reviewerName = strings.TrimSpace(name)
		a.reviewerTitle = strings.TrimSpace(title)
	}
}

// WithPanelOptions forwards options to the review panel.
func WithPanelOptions(opts ...panel.Option) AppOption {
	return func(a *App) {
		a.panelOpts = append(a.panelOpts, opts...)
	}
}

// WithRefreshInterval sets how often the screen polls for queue changes
// made through the HTTP API.
func WithRefreshInterval(d time.Duration) AppOption {
	return func(a *App) {
		if d > 0 {
			a.refreshInterval = d
		}
	}
}

// App is the main application model.
type App struct {
	queue     Queue
	panel     *panel.Panel
	panelOpts []panel.Option
	trail     *logbook.Logbook

	reviewerName  string
	reviewerTitle string

	queueList list.Model
	editor    textarea.Model
	mode      editMode

	statusMsg       string
	lastRevision    uint64
	refreshInterval time.Duration

	width  int
	height int
}

// summaryItem implements list.Item for the queue list.
type summaryItem struct {
	summary review.Summary
}

func (i summaryItem) Title() string {
	return fmt.Sprintf("%s · %s", i.summary.UserName, i.summary.WeekRange)
}

func (i summaryItem) Description() string {
	return fmt.Sprintf("%s · %s %d", i.summary.Status.Label(), i.summary.DominantEmotion, i.summary.EmotionScore)
}

func (i summaryItem) FilterValue() string { return i.summary.UserName }

// trailAuditor records saved reviews on the review trail.
type trailAuditor struct {
	trail *logbook.Logbook
}

func (t trailAuditor) RecordReview(rec panel.Record) error {
	return t.trail.Write(logbook.LevelInfo, rec.String())
}

// NewApp creates the review screen over queue.
func NewApp(queue Queue, opts ...AppOption) *App {
	queueList := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	queueList.Title = "Review Queue"
	queueList.SetShowStatusBar(false)
	queueList.SetFilteringEnabled(false)
	queueList.SetShowHelp(false)

	editor := textarea.New()
	editor.ShowLineNumbers = false
	editor.CharLimit = 0
	editor.MaxHeight = 0
	editor.SetWidth(60)
	editor.SetHeight(8)

	app := &App{
		queue:           queue,
		reviewerName:    "Reviewer",
		queueList:       queueList,
		editor:          editor,
		refreshInterval: defaultRefreshInterval,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(app)
		}
	}
	panelOpts := append([]panel.Option(nil), app.panelOpts...)
	if app.trail != nil {
		panelOpts = append(panelOpts, panel.WithAuditor(trailAuditor{trail: app.trail}))
	}
	app.panel = panel.New(queue, panelOpts...)
	app.refreshQueue()
	app.logInfo("Session opened · %d pending", queue.PendingCount())
	return app
}

// Panel exposes the review panel, mainly for tests and headless callers.
func (a *App) Panel() *panel.Panel {
	return a.panel
}

// Init is called once when the program starts.
func (a *App) Init() tea.Cmd {
	return a.scheduleRefresh()
}

func (a *App) scheduleRefresh() tea.Cmd {
	queue := a.queue
	return tea.Tick(a.refreshInterval, func(time.Time) tea.Msg {
		return refreshMsg{revision: queue.Revision()}
	})
}

// Update is called when a message is received.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.resize()
		return a, nil

	case refreshMsg:
		if msg.revision != a.lastRevision {
			a.refreshQueue()
		}
		return a, a.scheduleRefresh()

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return a, tea.Quit
		}
		if a.mode != editNone {
			return a.updateEditor(msg)
		}
		if model, cmd, handled := a.handleKey(msg.String()); handled {
			return model, cmd
		}
	}

	if a.mode != editNone {
		var cmd tea.Cmd
		a.editor, cmd = a.editor.Update(msg)
		return a, cmd
	}
	var cmd tea.Cmd
	a.queueList, cmd = a.queueList.Update(msg)
	return a, cmd
}

func (a *App) handleKey(key string) (tea.Model, tea.Cmd, bool) {
	switch key {
	case "q":
		a.logInfo("Session closed")
		return a, tea.Quit, true
	case "enter":
		a.openHighlighted()
	case "n":
		a.openNextPending()
	case "a":
		a.approve()
	case "s":
		a.sendBack()
	case "f":
		a.flagHighRisk()
	case "1":
		a.markRisk(panel.RiskLow)
	case "2":
		a.markRisk(panel.RiskCheckIn)
	case "e":
		return a, a.beginEdit(editDraft), true
	case "o":
		return a, a.beginEdit(editNotes), true
	case "r":
		if a.panel.SummaryID() == "" {
			return a, nil, true
		}
		a.panel.ResetDraft()
		a.statusMsg = "Draft reset to the AI draft"
	case "x":
		a.panel.ClearNotes()
		a.statusMsg = "Notes cleared"
	case "t":
		a.panel.ToggleJournals()
	case "w":
		a.saveReview()
	default:
		return a, nil, false
	}
	return a, nil, true
}

func (a *App) updateEditor(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "esc" {
		a.commitEditor()
		return a, nil
	}
	var cmd tea.Cmd
	a.editor, cmd = a.editor.Update(msg)
	a.storeEditorValue()
	return a, cmd
}

func (a *App) beginEdit(mode editMode) tea.Cmd {
	if a.panel.SummaryID() == "" {
		a.statusMsg = "Open a summary first"
		return nil
	}
	a.mode = mode
	if mode == editDraft {
		a.editor.Placeholder = "Therapist-facing summary"
		a.editor.SetValue(a.panel.Draft())
		a.statusMsg = "Editing draft · esc to stop"
	} else {
		a.editor.Placeholder = "Private notes, sent as feedback on send back"
		a.editor.SetValue(a.panel.Notes())
		a.statusMsg = "Editing notes · esc to stop"
	}
	return a.editor.Focus()
}

func (a *App) storeEditorValue() {
	switch a.mode {
	case editDraft:
		a.panel.SetDraft(a.editor.Value())
	case editNotes:
		a.panel.SetNotes(a.editor.Value())
	}
}

func (a *App) commitEditor() {
	a.storeEditorValue()
	a.mode = editNone
	a.editor.Blur()
	a.statusMsg = ""
}

func (a *App) openHighlighted() {
	item, ok := a.queueList.SelectedItem().(summaryItem)
	if !ok {
		return
	}
	if err := a.queue.Select(item.summary.ID); err != nil {
		a.reportError("Open", err)
		return
	}
	a.refreshQueue()
	a.statusMsg = fmt.Sprintf("Reviewing %s", item.summary.UserName)
}

func (a *App) openNextPending() {
	next, ok := a.queue.OpenNextPending()
	if !ok {
		a.statusMsg = "No pending summaries"
		return
	}
	a.refreshQueue()
	a.statusMsg = fmt.Sprintf("Reviewing %s", next.UserName)
}

func (a *App) approve() {
	current, ok := a.panel.Summary()
	if !ok || !a.panel.CanApprove() {
		a.statusMsg = "Nothing to approve"
		return
	}
	if err := a.panel.Approve(); err != nil {
		a.reportError("Approve", err)
		return
	}
	a.refreshQueue()
	if next, ok := a.panel.Summary(); ok {
		a.statusMsg = fmt.Sprintf("Approved %s · next: %s", current.UserName, next.UserName)
	} else {
		a.statusMsg = fmt.Sprintf("Approved %s · queue clear", current.UserName)
	}
}

func (a *App) sendBack() {
	current, ok := a.panel.Summary()
	if !ok || !a.panel.CanSendBack() {
		a.statusMsg = "Nothing to send back"
		return
	}
	if err := a.panel.SendBack(); err != nil {
		a.reportError("Send back", err)
		return
	}
	a.refreshQueue()
	a.statusMsg = fmt.Sprintf("Sent back %s for refinement", current.UserName)
}

func (a *App) flagHighRisk() {
	current, ok := a.panel.Summary()
	if !ok {
		a.statusMsg = "Open a summary first"
		return
	}
	if err := a.panel.FlagHighRisk(); err != nil {
		a.reportError("Flag", err)
		return
	}
	a.statusMsg = fmt.Sprintf("Flagged %s as high risk · triage notified", current.UserName)
}

func (a *App) markRisk(level panel.RiskLevel) {
	if a.panel.SummaryID() == "" {
		a.statusMsg = "Open a summary first"
		return
	}
	a.panel.MarkRisk(level)
	a.statusMsg = fmt.Sprintf("Risk marked: %s", level.Label())
}

func (a *App) saveReview() {
	rec, err := a.panel.SaveReview()
	if err != nil {
		a.reportError("Save", err)
		return
	}
	a.statusMsg = fmt.Sprintf("Review saved for %s", rec.UserName)
}

func (a *App) reportError(action string, err error) {
	switch {
	case errors.Is(err, panel.ErrNoSelection):
		a.statusMsg = "Open a summary first"
	case errors.Is(err, review.ErrInvalidTransition):
		a.statusMsg = fmt.Sprintf("%s unavailable for this summary", action)
	default:
		a.statusMsg = fmt.Sprintf("%s failed: %v", action, err)
		a.logError("%s failed: %v", action, err)
	}
}

// refreshQueue reloads the list from the queue, follows the queue selection
// and records the revision it saw.
func (a *App) refreshQueue() {
	a.lastRevision = a.queue.Revision()
	summaries := a.queue.Summaries()
	items := make([]list.Item, len(summaries))
	selected := a.queue.SelectedID()
	cursor := -1
	for i, s := range summaries {
		items[i] = summaryItem{summary: s}
		if s.ID == selected {
			cursor = i
		}
	}
	a.queueList.SetItems(items)
	if cursor >= 0 {
		a.queueList.Select(cursor)
	}
	if a.panel.Sync() && a.mode != editNone {
		a.mode = editNone
		a.editor.Blur()
	}
}

func (a *App) resize() {
	leftWidth, rightWidth := a.columnWidths()
	a.queueList.SetSize(max(20, leftWidth-4), max(6, a.height-14))
	a.editor.SetWidth(max(20, rightWidth-6))
}

func (a *App) logInfo(format string, args ...any) {
	if a.trail == nil {
		return
	}
	a.trail.Info(format, args...)
}

func (a *App) logError(format string, args ...any) {
	if a.trail == nil {
		return
	}
	a.trail.Error(format, args...)
}
