package types

import "time"

// AnalyticsRecord is one anonymized row describing a completed AI request.
// It carries counts and classifications only: no post text, URLs, handles
// or DIDs.
type AnalyticsRecord struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Mode      Mode      `json:"mode"`
	Status    Status    `json:"status"`
	Category  Category  `json:"category"`
	Model     string    `json:"model"`
	Cached    bool      `json:"cached"`

	EmotionalTone      string `json:"emotional_tone"`
	ContainsStatistics bool   `json:"contains_statistics"`
	ContainsQuotes     bool   `json:"contains_quotes"`
	ContainsDates      bool   `json:"contains_dates"`
	UsesAbsolutes      bool   `json:"uses_absolutes"`
	CreatesUrgency     bool   `json:"creates_urgency"`
	AppealsToAuthority bool   `json:"appeals_to_authority"`
	PersonalAnecdote   bool   `json:"personal_anecdote"`

	ResponseTimeMs int64 `json:"response_time_ms"`
	ResponseLength int   `json:"response_length"`

	DayOfWeek string `json:"day_of_week"`
	HourOfDay int    `json:"hour_of_day"`
	IsWeekend bool   `json:"is_weekend"`

	HasExternalLinks bool `json:"has_external_links"`
	HasMedia         bool `json:"has_media"`
	MentionCount     int  `json:"mention_count"`
	HashtagCount     int  `json:"hashtag_count"`
	QuestionMarks    int  `json:"question_marks"`
	ExclamationMarks int  `json:"exclamation_marks"`
	AllCapsWords     int  `json:"all_caps_words"`
}
