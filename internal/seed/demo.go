package seed

import "github.com/kingrea/raga-review/internal/review"

// Demo returns the built-in queue used when no seed file is configured.
func Demo() []review.Summary {
	return []review.Summary{
		{
			ID:              "w1",
			UserName:        "Priya S.",
			WeekRange:       "Oct 6 - Oct 12",
			DominantEmotion: "Anxiety",
			EmotionScore:    62,
			Status:          review.StatusPending,
			Journals: []review.JournalEntry{
				{ID: "j1", Date: "2025-10-06", Content: "Felt anxious about deadlines.", Sentiment: review.SentimentNegative, ShortTag: "work"},
				{ID: "j2", Date: "2025-10-07", Content: "Sleep poor, mind racing.", Sentiment: review.SentimentNegative, ShortTag: "sleep"},
				{ID: "j3", Date: "2025-10-09", Content: "Managed a tough call better than expected.", Sentiment: review.SentimentPositive, ShortTag: "wins"},
			},
			AIDraft:    "This week Priya reported increased worry about work deadlines. Suggest practicing grounding breaths in the evenings and setting a 5PM cutoff for work notifications.",
			MicroTasks: []string{"5 minutes box-breathing before bed", "Set 5 PM work cutoff"},
			RagaSuggestion: &review.RagaSuggestion{
				Name:     "Darbari Kanada",
				Time:     "Before sleep",
				Duration: "10–20 min",
			},
		},
		{
			ID:              "w2",
			UserName:        "Arjun K.",
			WeekRange:       "Oct 6 - Oct 12",
			DominantEmotion: "Sadness",
			EmotionScore:    54,
			Status:          review.StatusPending,
			Journals: []review.JournalEntry{
				{ID: "j4", Date: "2025-10-06", Content: "Felt low after family call.", Sentiment: review.SentimentNegative, ShortTag: "family"},
				{ID: "j5", Date: "2025-10-10", Content: "Tried walking, felt slightly better.", Sentiment: review.SentimentNeutral, ShortTag: "coping"},
			},
			AIDraft:    "Arjun experienced low mood tied to a family conflict. Recommend brief mood-checks each day and progressive scheduling of small pleasurable activities.",
			MicroTasks: []string{"Daily 10-min walk", "Write down 1 positive from the day"},
		},
		{
			ID:              "w3",
			UserName:        "Maya T.",
			WeekRange:       "Oct 6 - Oct 12",
			DominantEmotion: "Irritability",
			EmotionScore:    45,
			Status:          review.StatusApproved,
			Journals: []review.JournalEntry{
				{ID: "j6", Date: "2025-10-08", Content: "Short temper at meetings today.", Sentiment: review.SentimentNegative, ShortTag: "work"},
			},
			AIDraft:    "Irritability linked with workload. Suggest short breaks and breath interventions.",
			MicroTasks: []string{"2-3 minute pause between meetings"},
		},
	}
}
