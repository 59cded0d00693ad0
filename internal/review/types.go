package review

import (
	"strings"
	"time"
)

// Status is the lifecycle state of a Summary.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusSentBack Status = "sent_back"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusSentBack:
		return true
	}
	return false
}

// Label returns the short display form used by the queue views.
func (s Status) Label() string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusApproved:
		return "Approved"
	case StatusSentBack:
		return "Sent back"
	}
	return string(s)
}

// Sentiment classifies a single journal entry.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// JournalEntry is one diary record written by the user during the week.
type JournalEntry struct {
	ID        string    `json:"id" yaml:"id" validate:"required"`
	Date      string    `json:"date" yaml:"date" validate:"required,datetime=2006-01-02"`
	Content   string    `json:"content" yaml:"content"`
	Sentiment Sentiment `json:"sentiment" yaml:"sentiment" validate:"required,oneof=positive neutral negative"`
	ShortTag  string    `json:"short_tag,omitempty" yaml:"short_tag,omitempty"`
}

// Day parses Date as a calendar date. The zero time is returned for
// malformed values.
func (j JournalEntry) Day() time.Time {
	day, err := time.Parse(time.DateOnly, strings.TrimSpace(j.Date))
	if err != nil {
		return time.Time{}
	}
	return day
}

// RagaSuggestion is the music prescription attached to a summary.
type RagaSuggestion struct {
	Name     string `json:"name" yaml:"name" validate:"required"`
	Time     string `json:"time" yaml:"time"`
	Duration string `json:"duration" yaml:"duration"`
}

// Summary is an AI-drafted weekly emotional summary awaiting clinical review.
type Summary struct {
	ID              string          `json:"id" yaml:"id" validate:"required"`
	UserName        string          `json:"user_name" yaml:"user_name" validate:"required"`
	WeekRange       string          `json:"week_range" yaml:"week_range" validate:"required"`
	DominantEmotion string          `json:"dominant_emotion" yaml:"dominant_emotion" validate:"required"`
	EmotionScore    int             `json:"emotion_score" yaml:"emotion_score" validate:"gte=0,lte=100"`
	Status          Status          `json:"status" yaml:"status" validate:"required,oneof=pending approved sent_back"`
	Journals        []JournalEntry  `json:"journals" yaml:"journals" validate:"dive"`
	AIDraft         string          `json:"ai_draft" yaml:"ai_draft"`
	MicroTasks      []string        `json:"micro_tasks" yaml:"micro_tasks"`
	RagaSuggestion  *RagaSuggestion `json:"raga_suggestion,omitempty" yaml:"raga_suggestion,omitempty" validate:"omitempty"`
}

// Clone returns a deep copy so callers never share slices with the Store.
func (s Summary) Clone() Summary {
	out := s
	if s.Journals != nil {
		out.Journals = append([]JournalEntry(nil), s.Journals...)
	}
	if s.MicroTasks != nil {
		out.MicroTasks = append([]string(nil), s.MicroTasks...)
	}
	if s.RagaSuggestion != nil {
		raga := *s.RagaSuggestion
		out.RagaSuggestion = &raga
	}
	return out
}

// IsPending reports whether the summary is still awaiting a first decision.
func (s Summary) IsPending() bool {
	return s.Status == StatusPending
}
