package types

import "strings"

// Mode selects how a post is evaluated
type Mode string

const (
	ModeAuto      Mode = "auto"
	ModeFactCheck Mode = "factcheck"
	ModeMedia     Mode = "media"
)

// ParseMode parses a user-supplied mode string
func ParseMode(s string) (Mode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return ModeAuto, true
	case "factcheck", "fact-check", "fact_check":
		return ModeFactCheck, true
	case "media", "transcribe":
		return ModeMedia, true
	default:
		return "", false
	}
}

// Status is the verdict or action reported by the AI service
type Status string

const (
	StatusTrue         Status = "TRUE"
	StatusFalse        Status = "FALSE"
	StatusMisleading   Status = "MISLEADING"
	StatusUnverifiable Status = "UNVERIFIABLE"
	StatusNoClaims     Status = "NO_CLAIMS"

	StatusSummarize Status = "SUMMARIZE"
	StatusDescribe  Status = "DESCRIBE"
	StatusReadText  Status = "READ_TEXT"
)

var factCheckStatuses = map[Status]bool{
	StatusTrue:         true,
	StatusFalse:        true,
	StatusMisleading:   true,
	StatusUnverifiable: true,
	StatusNoClaims:     true,
}

var mediaStatuses = map[Status]bool{
	StatusSummarize: true,
	StatusDescribe:  true,
	StatusReadText:  true,
}

// ValidFor reports whether the status belongs to the mode's enumerated set
func (s Status) ValidFor(mode Mode) bool {
	switch mode {
	case ModeFactCheck:
		return factCheckStatuses[s]
	case ModeMedia:
		return mediaStatuses[s]
	default:
		return factCheckStatuses[s] || mediaStatuses[s]
	}
}

// Category is the topical classification of the evaluated post
type Category string

const (
	CategoryPolitics      Category = "POLITICS"
	CategoryHealth        Category = "HEALTH"
	CategoryScience       Category = "SCIENCE"
	CategoryEconomy       Category = "ECONOMY"
	CategoryTechnology    Category = "TECHNOLOGY"
	CategoryEnvironment   Category = "ENVIRONMENT"
	CategoryHistory       Category = "HISTORY"
	CategoryEntertainment Category = "ENTERTAINMENT"
	CategorySports        Category = "SPORTS"
	CategoryOther         Category = "OTHER"
)

var categories = map[Category]bool{
	CategoryPolitics:      true,
	CategoryHealth:        true,
	CategoryScience:       true,
	CategoryEconomy:       true,
	CategoryTechnology:    true,
	CategoryEnvironment:   true,
	CategoryHistory:       true,
	CategoryEntertainment: true,
	CategorySports:        true,
	CategoryOther:         true,
}

// NormalizeCategory maps free-form model output onto the fixed category set.
// Anything unrecognized becomes OTHER.
func NormalizeCategory(s string) Category {
	c := Category(strings.ToUpper(strings.TrimSpace(s)))
	if categories[c] {
		return c
	}
	return CategoryOther
}

// Emotional tones reported in content analysis
const (
	ToneNeutral     = "NEUTRAL"
	ToneAngry       = "ANGRY"
	ToneFearful     = "FEARFUL"
	ToneUrgent      = "URGENT"
	ToneSensational = "SENSATIONAL"
)

// Flag names used in content analysis payloads
const (
	FlagEmotionalTone      = "emotional_tone"
	FlagContainsStatistics = "contains_statistics"
	FlagContainsQuotes     = "contains_quotes"
	FlagContainsDates      = "contains_dates"
	FlagUsesAbsolutes      = "uses_absolutes"
	FlagCreatesUrgency     = "creates_urgency"
	FlagAppealsToAuthority = "appeals_to_authority"
	FlagPersonalAnecdote   = "personal_anecdote"
)

// ContentAnalysis holds classification flags for the evaluated post.
// Present records which flags the AI actually supplied.
type ContentAnalysis struct {
	EmotionalTone      string          `json:"emotional_tone"`
	ContainsStatistics bool            `json:"contains_statistics"`
	ContainsQuotes     bool            `json:"contains_quotes"`
	ContainsDates      bool            `json:"contains_dates"`
	UsesAbsolutes      bool            `json:"uses_absolutes"`
	CreatesUrgency     bool            `json:"creates_urgency"`
	AppealsToAuthority bool            `json:"appeals_to_authority"`
	PersonalAnecdote   bool            `json:"personal_anecdote"`
	Present            map[string]bool `json:"-"`
}

// Has reports whether the named flag was supplied
func (c ContentAnalysis) Has(flag string) bool {
	return c.Present[flag]
}

// AIRequest is the payload sent to the AI service
type AIRequest struct {
	Mode       Mode       `json:"mode"`
	TemplateID string     `json:"templateId"`
	Language   string     `json:"language"`
	Prompt     string     `json:"prompt"`
	Media      *MediaItem `json:"media,omitempty"`
}

// AIResponse is the structured output decoded from the AI service
type AIResponse struct {
	Status          Status          `json:"status"`
	Category        Category        `json:"category"`
	ReplyText       string          `json:"reply_text"`
	Thinking        string          `json:"thinking,omitempty"`
	Sources         []string        `json:"sources,omitempty"`
	ContentAnalysis ContentAnalysis `json:"content_analysis"`
	Mode            Mode            `json:"mode"`
	Model           string          `json:"model,omitempty"`
	Cached          bool            `json:"-"`
}
