package tui

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/raga-review/internal/review"
)

var (
	colorAccent = lipgloss.Color("#5B8DEF")
	colorAlert  = lipgloss.Color("#FF6B6B")
	colorWarn   = lipgloss.Color("#F5A623")
	colorCalm   = lipgloss.Color("#4CAF50")
	colorBorder = lipgloss.Color("#444444")
	colorMuted  = lipgloss.Color("#888888")
	colorText   = lipgloss.Color("#AAAAAA")

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1)
	sectionStyle = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	mutedStyle   = lipgloss.NewStyle().Foreground(colorMuted)
)

const keyHelp = "enter review · n next · a approve · s send back · f flag high · 1 low · 2 check-in · e draft · o notes · r reset · x clear · t journals · w save · q quit"

func (a *App) columnWidths() (int, int) {
	width := a.width
	if width <= 0 {
		width = 120
	}
	leftWidth := max(30, width/3)
	rightWidth := width - leftWidth - 4
	if rightWidth < 40 {
		return width - 4, 0
	}
	return leftWidth, rightWidth
}

// View renders the whole screen.
func (a *App) View() string {
	leftWidth, rightWidth := a.columnWidths()
	header := lipgloss.NewStyle().
		Bold(true).
		Foreground(colorAlert).
		MarginBottom(1).
		Render(a.headerLine())

	leftBox := boxStyle.Width(max(20, leftWidth)).Render(a.renderQueue())
	body := leftBox
	if rightWidth > 0 {
		rightBox := boxStyle.Width(max(20, rightWidth)).Render(a.renderDetail(rightWidth - 4))
		body = lipgloss.JoinHorizontal(lipgloss.Top, leftBox, rightBox)
	}
	sections := []string{header, body}
	if logPanel := a.renderLogPanel(); logPanel != "" {
		sections = append(sections, logPanel)
	}
	footer := lipgloss.NewStyle().
		Foreground(colorMuted).
		MarginTop(1).
		Render(strings.TrimSpace(a.statusMsg + "\n" + keyHelp))
	sections = append(sections, footer)
	return strings.Join(sections, "\n")
}

func (a *App) headerLine() string {
	who := a.reviewerName
	if a.reviewerTitle != "" {
		who = fmt.Sprintf("%s, %s", who, a.reviewerTitle)
	}
	return fmt.Sprintf("◉ RAGA REVIEW · %s · %d pending", who, a.queue.PendingCount())
}

func (a *App) renderQueue() string {
	if len(a.queueList.Items()) == 0 {
		return lipgloss.JoinVertical(lipgloss.Left,
			sectionStyle.Render("Review Queue"),
			mutedStyle.Render("No summaries loaded."),
		)
	}
	return a.queueList.View()
}

func (a *App) renderDetail(width int) string {
	s, ok := a.panel.Summary()
	if !ok {
		return mutedStyle.Render("Queue clear. Press n to open the next pending summary.")
	}
	lines := []string{
		lipgloss.NewStyle().Bold(true).Render(fmt.Sprintf("%s · %s", s.UserName, s.WeekRange)),
		fmt.Sprintf("%s · %s · risk: %s",
			emotionStyle(s.EmotionScore).Render(fmt.Sprintf("%s %d/100", s.DominantEmotion, s.EmotionScore)),
			statusStyle(s.Status).Render(s.Status.Label()),
			a.panel.Risk().Label(),
		),
		"",
		sectionStyle.Render("Journals"),
	}
	lines = append(lines, a.renderJournals()...)
	lines = append(lines, "", sectionStyle.Render(a.draftHeading()))
	if a.mode == editDraft {
		lines = append(lines, a.editor.View())
	} else {
		lines = append(lines, wrap(a.panel.Draft(), width))
	}
	if len(s.MicroTasks) > 0 {
		lines = append(lines, "", sectionStyle.Render("Micro-tasks"))
		for _, task := range s.MicroTasks {
			lines = append(lines, "• "+task)
		}
	}
	if raga := s.RagaSuggestion; raga != nil {
		lines = append(lines, "", sectionStyle.Render("Raga"),
			fmt.Sprintf("%s · %s · %s", raga.Name, raga.Time, raga.Duration))
	}
	lines = append(lines, "", sectionStyle.Render("Clinician notes"))
	switch {
	case a.mode == editNotes:
		lines = append(lines, a.editor.View())
	case strings.TrimSpace(a.panel.Notes()) == "":
		lines = append(lines, mutedStyle.Render("(none)"))
	default:
		lines = append(lines, wrap(a.panel.Notes(), width))
	}
	lines = append(lines, "", a.renderActions())
	return lipgloss.NewStyle().Width(max(20, width)).Render(strings.Join(lines, "\n"))
}

func (a *App) draftHeading() string {
	if a.panel.DraftEdited() {
		return "Draft (edited)"
	}
	return "Draft"
}

func (a *App) renderJournals() []string {
	entries, hidden := a.panel.VisibleJournals()
	if len(entries) == 0 {
		return []string{mutedStyle.Render("No journal entries this week.")}
	}
	lines := make([]string, 0, len(entries)+1)
	if hidden > 0 {
		lines = append(lines, mutedStyle.Render(fmt.Sprintf("+%d earlier · t to show all", hidden)))
	}
	for _, entry := range entries {
		tag := ""
		if entry.ShortTag != "" {
			tag = " #" + entry.ShortTag
		}
		lines = append(lines, fmt.Sprintf("%s %s %s%s",
			entry.Date, sentimentMark(entry.Sentiment), entry.Content, mutedStyle.Render(tag)))
	}
	return lines
}

func (a *App) renderActions() string {
	render := func(label string, enabled bool) string {
		if enabled {
			return lipgloss.NewStyle().Foreground(colorAccent).Render(label)
		}
		return mutedStyle.Strikethrough(true).Render(label)
	}
	return strings.Join([]string{
		render("[a] Approve", a.panel.CanApprove()),
		render("[s] Send back", a.panel.CanSendBack()),
		render("[f] Flag high risk", a.panel.CanFlag()),
	}, "  ")
}

func (a *App) renderLogPanel() string {
	if a.trail == nil {
		return ""
	}
	lines, _ := a.trail.Tail(6)
	if len(lines) == 0 {
		return ""
	}
	fileName := filepath.Base(a.trail.Path())
	if fileName == "." || fileName == "" {
		fileName = "trail"
	}
	head := sectionStyle.Render(fmt.Sprintf("TRAIL · %s", fileName))
	body := lipgloss.NewStyle().Foreground(colorText).Render(strings.Join(lines, "\n"))
	return boxStyle.Render(fmt.Sprintf("%s\n%s", head, body))
}

func emotionStyle(score int) lipgloss.Style {
	switch {
	case score >= 70:
		return lipgloss.NewStyle().Foreground(colorAlert)
	case score >= 40:
		return lipgloss.NewStyle().Foreground(colorWarn)
	}
	return lipgloss.NewStyle().Foreground(colorCalm)
}

func statusStyle(status review.Status) lipgloss.Style {
	switch status {
	case review.StatusApproved:
		return lipgloss.NewStyle().Foreground(colorCalm)
	case review.StatusSentBack:
		return lipgloss.NewStyle().Foreground(colorWarn)
	}
	return lipgloss.NewStyle().Foreground(colorAccent)
}

func sentimentMark(s review.Sentiment) string {
	switch s {
	case review.SentimentPositive:
		return "+"
	case review.SentimentNegative:
		return "-"
	}
	return "·"
}

func wrap(text string, width int) string {
	if width <= 0 {
		return text
	}
	return lipgloss.NewStyle().Width(width).Render(text)
}
