package channel

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/FeelPulse/skyoracle/pkg/types"
)

type feedPost struct {
	Type      string       `json:"$type"`
	Text      string       `json:"text"`
	CreatedAt string       `json:"createdAt"`
	Langs     []string     `json:"langs,omitempty"`
	Reply     *replyRecord `json:"reply,omitempty"`
}

type createRecordRequest struct {
	Repo       string   `json:"repo"`
	Collection string   `json:"collection"`
	Record     feedPost `json:"record"`
}

type getPostsResponse struct {
	Posts []struct {
		URI    string     `json:"uri"`
		CID    string     `json:"cid"`
		Record postRecord `json:"record"`
	} `json:"posts"`
}

func replyKey(parentURI, text string) uint64 {
	h := xxhash.New()
	_, _ = h.WriteString(parentURI)
	_, _ = h.Write([]byte{0})
	_, _ = h.WriteString(text)
	return h.Sum64()
}

// PostReply posts text as a reply to parent. The thread root is taken from
// the parent's own reply reference so the reply lands in the right thread.
func (c *Client) PostReply(ctx context.Context, parent types.PostRef, text string, langs ...string) (*types.ReplyRef, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("refusing to post an empty reply")
	}

	key := replyKey(parent.URI, text)
	c.postedMu.Lock()
	if _, dup := c.posted[key]; dup {
		c.postedMu.Unlock()
		return nil, ErrDuplicateSuppressed
	}
	c.posted[key] = struct{}{}
	c.postedMu.Unlock()

	ref, err := c.postReply(ctx, parent, text, langs)
	if err != nil {
		c.postedMu.Lock()
		delete(c.posted, key)
		c.postedMu.Unlock()
		return nil, err
	}
	return ref, nil
}

func (c *Client) postReply(ctx context.Context, parent types.PostRef, text string, langs []string) (*types.ReplyRef, error) {
	var posts getPostsResponse
	query := url.Values{"uris": {parent.URI}}
	if err := c.call(ctx, http.MethodGet, "app.bsky.feed.getPosts", query, nil, &posts); err != nil {
		return nil, fmt.Errorf("load reply parent: %w", err)
	}
	if len(posts.Posts) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, parent.URI)
	}

	p := posts.Posts[0]
	parentRef := strongRef{URI: p.URI, CID: p.CID}
	rootRef := parentRef
	if p.Record.Reply != nil && p.Record.Reply.Root.URI != "" {
		rootRef = p.Record.Reply.Root
	}

	did, _ := c.Self()
	req := createRecordRequest{
		Repo:       did,
		Collection: postCollection,
		Record: feedPost{
			Type:      postCollection,
			Text:      text,
			CreatedAt: time.Now().UTC().Format(time.RFC3339Nano),
			Langs:     nonEmpty(langs),
			Reply:     &replyRecord{Root: rootRef, Parent: parentRef},
		},
	}

	var out strongRef
	if err := c.call(ctx, http.MethodPost, "com.atproto.repo.createRecord", nil, req, &out); err != nil {
		return nil, fmt.Errorf("create reply: %w", err)
	}
	c.log.Debug("Posted reply %s to %s", out.URI, parent.URI)
	return &types.ReplyRef{URI: out.URI, CID: out.CID}, nil
}

func nonEmpty(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
