package review

import (
	"time"

	"github.com/google/uuid"
)

// EventType names what happened to a summary.
type EventType string

const (
	EventApproved        EventType = "summary.approved"
	EventSentBack        EventType = "summary.sent_back"
	EventFlaggedHighRisk EventType = "summary.flagged_high_risk"
)

// Critical reports whether the event must never be dropped in favour of
// routine traffic.
func (t EventType) Critical() bool {
	return t == EventFlaggedHighRisk
}

// Event is emitted by the Store after a successful operation.
type Event struct {
	ID         string    `json:"event_id"`
	Type       EventType `json:"type"`
	SummaryID  string    `json:"summary_id"`
	UserName   string    `json:"user_name"`
	WeekRange  string    `json:"week_range"`
	Status     Status    `json:"status"`
	PrevStatus Status    `json:"previous_status,omitempty"`
	Note       string    `json:"note,omitempty"`
	MicroTasks []string  `json:"micro_tasks,omitempty"`
	Emotion    string    `json:"dominant_emotion,omitempty"`
	Score      int       `json:"emotion_score"`
	OccurredAt time.Time `json:"occurred_at"`
}

func newEvent(kind EventType, s Summary, prev Status, at time.Time) Event {
	return Event{
		ID:         uuid.New().String(),
		Type:       kind,
		SummaryID:  s.ID,
		UserName:   s.UserName,
		WeekRange:  s.WeekRange,
		Status:     s.Status,
		PrevStatus: prev,
		Emotion:    s.DominantEmotion,
		Score:      s.EmotionScore,
		OccurredAt: at.UTC(),
	}
}

// Publisher receives Store events. Implementations must not block the
// caller on delivery.
type Publisher interface {
	Publish(Event)
}

// PublisherFunc adapts a function into a Publisher.
type PublisherFunc func(Event)

// Publish executes f(evt).
func (f PublisherFunc) Publish(evt Event) {
	if f == nil {
		return
	}
	f(evt)
}
