package types

import "time"

// PostRef is a strong reference to a post (AT URI + content hash)
type PostRef struct {
	URI string `json:"uri"`
	CID string `json:"cid"`
}

// ReplyRef identifies a reply the bot has posted
type ReplyRef struct {
	URI string `json:"uri"`
	CID string `json:"cid"`
}

// Mention is an inbound notification that references the bot's account
type Mention struct {
	ID              string    `json:"id"` // URI of the post that mentions the bot
	CID             string    `json:"cid"`
	RequesterDID    string    `json:"requesterDid"`
	RequesterHandle string    `json:"requesterHandle"`
	Text            string    `json:"text"`
	Langs           []string  `json:"langs,omitempty"`
	ReceivedAt      time.Time `json:"receivedAt"`
	ReplyParent     *PostRef  `json:"replyParent,omitempty"`
}

// LanguageHint returns the first declared language of the mention, or ""
func (m Mention) LanguageHint() string {
	if len(m.Langs) == 0 {
		return ""
	}
	return m.Langs[0]
}

// MediaKind distinguishes attached media types
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
)

// MediaItem is a piece of media attached to a post
type MediaItem struct {
	Kind     MediaKind `json:"kind"`
	URL      string    `json:"url"`
	MimeType string    `json:"mimeType"`
	Alt      string    `json:"alt,omitempty"`
	Data     []byte    `json:"-"`
}

// PostRole describes why a post appears in a thread context
type PostRole string

const (
	RoleOriginalClaim    PostRole = "original_claim"
	RoleDiscussion       PostRole = "discussion"
	RoleBotPreviousReply PostRole = "bot_previous_reply"
	RoleRequest          PostRole = "fact_check_request"
)

// Post is a single post as seen by the bot
type Post struct {
	Ref          PostRef     `json:"ref"`
	AuthorDID    string      `json:"authorDid"`
	AuthorHandle string      `json:"authorHandle"`
	Text         string      `json:"text"`
	CreatedAt    time.Time   `json:"createdAt"`
	Media        []MediaItem `json:"media,omitempty"`
	ReplyRoot    *PostRef    `json:"replyRoot,omitempty"`
	Role         PostRole    `json:"role,omitempty"`
}

// HasMedia reports whether the post carries any media
func (p Post) HasMedia() bool {
	return len(p.Media) > 0
}

// ThreadContext is everything the pipeline needs to evaluate one post
type ThreadContext struct {
	Target      Post    `json:"target"`
	ParentChain []Post  `json:"parentChain"` // oldest first, target excluded
	Requester   Mention `json:"requester"`
	Language    string  `json:"language"`
}
