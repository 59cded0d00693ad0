package tui

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kingrea/raga-review/internal/logbook"
	"github.com/kingrea/raga-review/internal/panel"
	"github.com/kingrea/raga-review/internal/review"
	"github.com/kingrea/raga-review/internal/seed"
)

var fixedNow = time.Date(2025, time.October, 13, 9, 30, 0, 0, time.UTC)

func newTestStore(t *testing.T, summaries []review.Summary) *review.Store {
	t.Helper()
	store, err := review.NewStore(summaries, review.WithClock(func() time.Time { return fixedNow }))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store
}

func newTestApp(t *testing.T, store *review.Store, opts ...AppOption) *App {
	t.Helper()
	app := NewApp(store, opts...)
	model, _ := app.Update(tea.WindowSizeMsg{Width: 140, Height: 48})
	return model.(*App)
}

func keyMsg(key string) tea.KeyMsg {
	switch key {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "ctrl+c":
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)}
}

func press(t *testing.T, app *App, keys ...string) *App {
	t.Helper()
	for _, key := range keys {
		model, _ := app.Update(keyMsg(key))
		next, ok := model.(*App)
		if !ok {
			t.Fatalf("unexpected model type: %T", model)
		}
		app = next
	}
	return app
}

func mustSummary(t *testing.T, store *review.Store, id string) review.Summary {
	t.Helper()
	s, err := store.Summary(id)
	if err != nil {
		t.Fatalf("summary %s: %v", id, err)
	}
	return s
}

func TestApproveAdvancesToNextPending(t *testing.T) {
	store := newTestStore(t, seed.Demo())
	app := newTestApp(t, store)

	app = press(t, app, "a")
	if got := mustSummary(t, store, "w1").Status; got != review.StatusApproved {
		t.Fatalf("w1 status = %s", got)
	}
	if app.Panel().SummaryID() != "w2" {
		t.Fatalf("expected panel to follow the queue to w2, got %q", app.Panel().SummaryID())
	}
	if !strings.Contains(app.statusMsg, "Approved Priya S. · next: Arjun K.") {
		t.Fatalf("unexpected status %q", app.statusMsg)
	}

	app = press(t, app, "a")
	if store.SelectedID() != "" {
		t.Fatalf("expected empty selection once queue is clear, got %q", store.SelectedID())
	}
	if !strings.Contains(app.statusMsg, "queue clear") {
		t.Fatalf("unexpected status %q", app.statusMsg)
	}

	before := store.Revision()
	app = press(t, app, "a")
	if app.statusMsg != "Nothing to approve" {
		t.Fatalf("unexpected status %q", app.statusMsg)
	}
	if store.Revision() != before {
		t.Fatalf("approve with no selection must not touch the queue")
	}
}

func TestSendBackUsesClinicianNotes(t *testing.T) {
	store := newTestStore(t, seed.Demo())
	app := newTestApp(t, store)

	app = press(t, app, "o", "Be gentler", "a", "esc")
	if got := app.Panel().Notes(); got != "Be gentlera" {
		t.Fatalf("notes = %q", got)
	}
	if mustSummary(t, store, "w1").Status != review.StatusPending {
		t.Fatalf("keys typed while editing must not trigger actions")
	}

	app = press(t, app, "x")
	if app.Panel().Notes() != "" {
		t.Fatalf("expected notes cleared")
	}
	app = press(t, app, "o", "Be gentler", "esc", "s")
	s := mustSummary(t, store, "w1")
	if s.Status != review.StatusSentBack {
		t.Fatalf("w1 status = %s", s.Status)
	}
	if !strings.HasSuffix(s.AIDraft, "[SENT BACK: 10/13/2025] Be gentler") {
		t.Fatalf("draft missing send-back marker: %q", s.AIDraft)
	}
	if store.SelectedID() != "w1" {
		t.Fatalf("send back must keep the selection, got %q", store.SelectedID())
	}
}

func TestSendBackWithoutNotesUsesFeedbackNote(t *testing.T) {
	store := newTestStore(t, seed.Demo())
	app := newTestApp(t, store)
	press(t, app, "s")
	want := "] " + panel.DefaultFeedbackNote
	if s := mustSummary(t, store, "w1"); !strings.HasSuffix(s.AIDraft, want) {
		t.Fatalf("draft %q missing %q", s.AIDraft, want)
	}
}

func TestEditDraftAndReset(t *testing.T) {
	store := newTestStore(t, seed.Demo())
	app := newTestApp(t, store)
	original := app.Panel().Draft()

	app = press(t, app, "e", "!", "esc")
	if got := app.Panel().Draft(); got != original+"!" {
		t.Fatalf("draft = %q", got)
	}
	if !app.Panel().DraftEdited() {
		t.Fatalf("expected edited draft")
	}
	if mustSummary(t, store, "w1").AIDraft != original {
		t.Fatalf("editing must not write to the queue")
	}

	app = press(t, app, "r")
	if app.Panel().Draft() != original {
		t.Fatalf("reset did not restore draft")
	}
}

func TestRiskKeysAndFlag(t *testing.T) {
	store := newTestStore(t, seed.Demo())
	app := newTestApp(t, store)
	revision := store.Revision()

	app = press(t, app, "1")
	if app.Panel().Risk() != panel.RiskLow {
		t.Fatalf("risk = %s", app.Panel().Risk())
	}
	app = press(t, app, "2")
	if app.Panel().Risk() != panel.RiskCheckIn {
		t.Fatalf("risk = %s", app.Panel().Risk())
	}
	app = press(t, app, "f")
	if app.Panel().Risk() != panel.RiskHigh {
		t.Fatalf("risk = %s", app.Panel().Risk())
	}
	if store.Revision() != revision {
		t.Fatalf("flagging must leave the queue unchanged")
	}
	if !strings.Contains(app.statusMsg, "triage notified") {
		t.Fatalf("unexpected status %q", app.statusMsg)
	}
}

func TestOpenHighlightedAndNextPending(t *testing.T) {
	store := newTestStore(t, seed.Demo())
	app := newTestApp(t, store)

	app = press(t, app, "down", "down", "enter")
	if store.SelectedID() != "w3" {
		t.Fatalf("expected w3 selected, got %q", store.SelectedID())
	}
	if app.Panel().CanApprove() || !app.Panel().CanFlag() {
		t.Fatalf("approved summary may be flagged but not approved")
	}

	app = press(t, app, "n")
	if store.SelectedID() != "w1" || app.Panel().SummaryID() != "w1" {
		t.Fatalf("expected next pending w1, got %q", store.SelectedID())
	}
}

func TestSaveReviewWritesTrail(t *testing.T) {
	store := newTestStore(t, seed.Demo())
	lb, err := logbook.New(filepath.Join(t.TempDir(), "logs", "review-trail.log"))
	if err != nil {
		t.Fatalf("logbook: %v", err)
	}
	app := newTestApp(t, store, WithTrail(lb))

	press(t, app, "2", "w")
	lines, total := lb.Tail(10)
	if total != 2 {
		t.Fatalf("expected session line and saved review, got %d: %v", total, lines)
	}
	if !strings.Contains(lines[0], "Session opened · 2 pending") {
		t.Fatalf("unexpected first line %q", lines[0])
	}
	if !strings.Contains(lines[1], "Review saved · w1 (Priya S.") || !strings.Contains(lines[1], "Recommend check-in") {
		t.Fatalf("unexpected review line %q", lines[1])
	}
}

func TestRefreshFollowsExternalChanges(t *testing.T) {
	store := newTestStore(t, seed.Demo())
	app := newTestApp(t, store)
	app = press(t, app, "e", "typing")

	if err := store.Approve("w1"); err != nil {
		t.Fatalf("approve: %v", err)
	}
	model, cmd := app.Update(refreshMsg{revision: store.Revision()})
	app = model.(*App)
	if cmd == nil {
		t.Fatalf("expected the refresh to reschedule")
	}
	if app.Panel().SummaryID() != "w2" {
		t.Fatalf("expected panel on w2, got %q", app.Panel().SummaryID())
	}
	if app.mode != editNone {
		t.Fatalf("switching summaries must end editing")
	}
}

func TestViewShowsCollapsedJournals(t *testing.T) {
	journals := make([]review.JournalEntry, 9)
	for i := range journals {
		journals[i] = review.JournalEntry{
			ID:        fmt.Sprintf("j%d", i),
			Date:      fmt.Sprintf("2025-10-%02d", i+1),
			Content:   fmt.Sprintf("entry %d", i),
			Sentiment: review.SentimentNeutral,
		}
	}
	store := newTestStore(t, []review.Summary{{
		ID: "w1", UserName: "Priya S.", WeekRange: "Oct 1 - Oct 9", DominantEmotion: "Anxiety",
		EmotionScore: 72, Status: review.StatusPending, Journals: journals, AIDraft: "draft",
	}})
	app := newTestApp(t, store, WithReviewer("Dr. Mehta", "Clinical Psychologist"))

	view := app.View()
	for _, want := range []string{"RAGA REVIEW", "Dr. Mehta, Clinical Psychologist", "1 pending", "Priya S.", "+2 earlier"} {
		if !strings.Contains(view, want) {
			t.Fatalf("view missing %q", want)
		}
	}
	if strings.Contains(view, "entry 0") {
		t.Fatalf("oldest entries should be hidden while collapsed")
	}

	app = press(t, app, "t")
	if view := app.View(); !strings.Contains(view, "entry 0") {
		t.Fatalf("expected all journals after toggle")
	}
}

func TestQuitKeys(t *testing.T) {
	app := newTestApp(t, newTestStore(t, seed.Demo()))
	for _, key := range []string{"q", "ctrl+c"} {
		_, cmd := app.Update(keyMsg(key))
		if cmd == nil {
			t.Fatalf("%s: expected quit command", key)
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Fatalf("%s: expected tea.QuitMsg", key)
		}
	}
}
