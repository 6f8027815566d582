package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/FeelPulse/skyoracle/pkg/types"
)

const (
	notificationPageSize = 50
	maxNotificationPages = 5
)

// notificationReasons are requested server-side so likes, follows and
// reposts never take up page space
var notificationReasons = []string{"mention", "reply"}

// backlogResume remembers where a truncated fetch stopped paging
type backlogResume struct {
	since  time.Time
	cursor string
}

type author struct {
	DID    string `json:"did"`
	Handle string `json:"handle"`
}

type strongRef struct {
	URI string `json:"uri"`
	CID string `json:"cid"`
}

func (r strongRef) postRef() *types.PostRef {
	if r.URI == "" {
		return nil
	}
	return &types.PostRef{URI: r.URI, CID: r.CID}
}

type replyRecord struct {
	Root   strongRef `json:"root"`
	Parent strongRef `json:"parent"`
}

// postRecord is the app.bsky.feed.post record body
type postRecord struct {
	Text      string       `json:"text"`
	CreatedAt string       `json:"createdAt"`
	Langs     []string     `json:"langs,omitempty"`
	Reply     *replyRecord `json:"reply,omitempty"`
}

type notification struct {
	URI       string          `json:"uri"`
	CID       string          `json:"cid"`
	Author    author          `json:"author"`
	Reason    string          `json:"reason"`
	Record    json.RawMessage `json:"record"`
	IsRead    bool            `json:"isRead"`
	IndexedAt string          `json:"indexedAt"`
}

type listNotificationsResponse struct {
	Cursor        string         `json:"cursor"`
	Notifications []notification `json:"notifications"`
}

// FetchNewMentions returns mentions indexed strictly after since, oldest
// first. Replies to the bot that tag its handle count as mentions too.
//
// Paging stops after maxNotificationPages. If since was not reached by then,
// the mentions found so far are returned with ErrBacklogTruncated and the
// next call for the same since resumes below the last page read.
func (c *Client) FetchNewMentions(ctx context.Context, since time.Time) ([]types.Mention, error) {
	_, handle := c.Self()
	var (
		mentions []types.Mention
		cursor   string
		complete bool
	)

	c.backlogMu.Lock()
	if c.backlog.cursor != "" && c.backlog.since.Equal(since) {
		cursor = c.backlog.cursor
		c.log.Info("📚 Resuming notification backlog since %s", since.Format(time.RFC3339))
	}
	c.backlog = backlogResume{}
	c.backlogMu.Unlock()

	for page := 0; page < maxNotificationPages; page++ {
		query := url.Values{}
		query.Set("limit", strconv.Itoa(notificationPageSize))
		query["reasons"] = notificationReasons
		if cursor != "" {
			query.Set("cursor", cursor)
		}

		var resp listNotificationsResponse
		if err := c.call(ctx, http.MethodGet, "app.bsky.notification.listNotifications", query, nil, &resp); err != nil {
			return nil, err
		}

		reachedSince := false
		for _, n := range resp.Notifications {
			indexedAt, err := parseTime(n.IndexedAt)
			if err != nil {
				c.log.Debug("Skipping notification %s with bad indexedAt %q", n.URI, n.IndexedAt)
				continue
			}
			if !indexedAt.After(since) {
				reachedSince = true
				continue
			}

			var rec postRecord
			if len(n.Record) > 0 {
				if err := json.Unmarshal(n.Record, &rec); err != nil {
					c.log.Debug("Skipping notification %s with unreadable record: %v", n.URI, err)
					continue
				}
			}
			if !isMention(n.Reason, rec.Text, handle) {
				continue
			}

			m := types.Mention{
				ID:              n.URI,
				CID:             n.CID,
				RequesterDID:    n.Author.DID,
				RequesterHandle: n.Author.Handle,
				Text:            rec.Text,
				Langs:           rec.Langs,
				ReceivedAt:      indexedAt,
			}
			if rec.Reply != nil {
				m.ReplyParent = rec.Reply.Parent.postRef()
			}
			mentions = append(mentions, m)
		}

		cursor = resp.Cursor
		if reachedSince || resp.Cursor == "" || len(resp.Notifications) == 0 {
			complete = true
			break
		}
	}

	sort.SliceStable(mentions, func(i, j int) bool {
		return mentions[i].ReceivedAt.Before(mentions[j].ReceivedAt)
	})

	if !complete {
		c.backlogMu.Lock()
		c.backlog = backlogResume{since: since, cursor: cursor}
		c.backlogMu.Unlock()
		c.log.Warn("⚠️ Read %d notification pages without reaching %s; older mentions follow on the next poll",
			maxNotificationPages, since.Format(time.RFC3339))
		return mentions, fmt.Errorf("%w: stopped after %d pages", ErrBacklogTruncated, maxNotificationPages)
	}
	return mentions, nil
}

func isMention(reason, text, handle string) bool {
	switch reason {
	case "mention":
		return true
	case "reply":
		return handle != "" && strings.Contains(strings.ToLower(text), "@"+strings.ToLower(handle))
	}
	return false
}

// MarkSeen marks all notifications up to seenAt as read
func (c *Client) MarkSeen(ctx context.Context, seenAt time.Time) error {
	body := map[string]string{"seenAt": seenAt.UTC().Format(time.RFC3339Nano)}
	return c.call(ctx, http.MethodPost, "app.bsky.notification.updateSeen", nil, body, nil)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
