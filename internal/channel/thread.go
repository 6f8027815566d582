package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/FeelPulse/skyoracle/pkg/types"
)

const (
	threadParentHeight = 10
	postCollection     = "app.bsky.feed.post"

	typeThreadViewPost = "app.bsky.feed.defs#threadViewPost"
	typeImagesView     = "app.bsky.embed.images#view"
	typeVideoView      = "app.bsky.embed.video#view"
	typeRecordMedia    = "app.bsky.embed.recordWithMedia#view"
)

var postURLPattern = regexp.MustCompile(`^https://bsky\.app/profile/([^/]+)/post/([^/?#]+)`)

// ResolveRef turns a bsky.app post URL or an at:// URI into an at:// URI
func (c *Client) ResolveRef(ctx context.Context, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if strings.HasPrefix(ref, "at://") {
		if !strings.Contains(ref, "/"+postCollection+"/") {
			return "", fmt.Errorf("%w: %s", ErrInvalidRef, ref)
		}
		return ref, nil
	}

	match := postURLPattern.FindStringSubmatch(ref)
	if match == nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidRef, ref)
	}
	actor, rkey := match[1], match[2]

	did := actor
	if !strings.HasPrefix(actor, "did:") {
		var resp struct {
			DID string `json:"did"`
		}
		query := url.Values{"handle": {actor}}
		if err := c.do(ctx, http.MethodGet, "com.atproto.identity.resolveHandle", query, nil, "", &resp); err != nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) && apiErr.Status == http.StatusBadRequest {
				return "", fmt.Errorf("%w: unknown handle %s", ErrNotFound, actor)
			}
			return "", fmt.Errorf("resolve handle %s: %w", actor, err)
		}
		did = resp.DID
	}
	return fmt.Sprintf("at://%s/%s/%s", did, postCollection, rkey), nil
}

// FetchThread loads the post at ref with its ancestors and picks the post to
// evaluate. The mentioning post's parent is the target; when that parent is
// the bot's own earlier reply, the grandparent is the target instead. A
// mention with no parent is its own target.
func (c *Client) FetchThread(ctx context.Context, ref string) (*types.ThreadContext, error) {
	uri, err := c.ResolveRef(ctx, ref)
	if err != nil {
		return nil, err
	}
	botDID, _ := c.Self()
	if botDID == "" {
		if _, err := c.Authenticate(ctx); err != nil {
			return nil, err
		}
		botDID, _ = c.Self()
	}

	query := url.Values{}
	query.Set("uri", uri)
	query.Set("depth", "0")
	query.Set("parentHeight", fmt.Sprint(threadParentHeight))

	var raw json.RawMessage
	if err := c.call(ctx, http.MethodGet, "app.bsky.feed.getPostThread", query, nil, &raw); err != nil {
		return nil, fmt.Errorf("fetch thread %s: %w", uri, err)
	}

	// Newest first: index 0 is the post at uri
	nodes, truncated := collectChain(gjson.GetBytes(raw, "thread"))
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, uri)
	}

	posts := make([]types.Post, len(nodes))
	for i, n := range nodes {
		posts[i] = c.parsePost(n.Get("post"))
	}

	want := 0
	if len(posts) > 1 || truncated {
		want = 1
		if len(posts) > 1 && posts[1].AuthorDID == botDID && (len(posts) > 2 || truncated) {
			want = 2
		}
	}
	if want >= len(posts) {
		return nil, fmt.Errorf("%w: parent of %s is unavailable", ErrNotFound, uri)
	}

	target := posts[want]
	if target.AuthorDID == botDID {
		return nil, fmt.Errorf("%w: %s", ErrSelfTarget, target.Ref.URI)
	}
	target.Role = types.RoleOriginalClaim

	var chain []types.Post
	for i := len(posts) - 1; i > want; i-- {
		p := posts[i]
		p.Role = types.RoleDiscussion
		chain = append(chain, p)
	}
	for i := want - 1; i >= 1; i-- {
		p := posts[i]
		p.Role = types.RoleDiscussion
		if p.AuthorDID == botDID {
			p.Role = types.RoleBotPreviousReply
		}
		chain = append(chain, p)
	}

	requester := mentionFromNode(nodes[0].Get("post"))
	if target.HasMedia() {
		c.attachMedia(ctx, &target.Media[0])
	}

	return &types.ThreadContext{
		Target:      target,
		ParentChain: chain,
		Requester:   requester,
		Language:    requester.LanguageHint(),
	}, nil
}

// collectChain walks parent links from the given node. truncated reports that
// the walk stopped at a deleted or blocked post rather than the thread root.
func collectChain(node gjson.Result) (nodes []gjson.Result, truncated bool) {
	for n := node; n.Exists(); n = n.Get("parent") {
		if !isPostNode(n) {
			return nodes, true
		}
		nodes = append(nodes, n)
		if len(nodes) > threadParentHeight+1 {
			break
		}
	}
	return nodes, false
}

func isPostNode(n gjson.Result) bool {
	t := n.Get("$type").String()
	return (t == typeThreadViewPost || t == "") && n.Get("post.uri").Exists()
}

func (c *Client) parsePost(v gjson.Result) types.Post {
	p := types.Post{
		Ref:          types.PostRef{URI: v.Get("uri").String(), CID: v.Get("cid").String()},
		AuthorDID:    v.Get("author.did").String(),
		AuthorHandle: v.Get("author.handle").String(),
		Text:         v.Get("record.text").String(),
	}
	if t, err := parseTime(v.Get("record.createdAt").String()); err == nil {
		p.CreatedAt = t
	}
	if root := v.Get("record.reply.root"); root.Exists() {
		p.ReplyRoot = &types.PostRef{URI: root.Get("uri").String(), CID: root.Get("cid").String()}
	}
	p.Media = c.mediaFromEmbed(v.Get("embed"), p.AuthorDID)
	return p
}

func mentionFromNode(v gjson.Result) types.Mention {
	m := types.Mention{
		ID:              v.Get("uri").String(),
		CID:             v.Get("cid").String(),
		RequesterDID:    v.Get("author.did").String(),
		RequesterHandle: v.Get("author.handle").String(),
		Text:            v.Get("record.text").String(),
	}
	for _, lang := range v.Get("record.langs").Array() {
		m.Langs = append(m.Langs, lang.String())
	}
	if t, err := parseTime(v.Get("indexedAt").String()); err == nil {
		m.ReceivedAt = t
	}
	if parent := v.Get("record.reply.parent"); parent.Exists() {
		m.ReplyParent = &types.PostRef{URI: parent.Get("uri").String(), CID: parent.Get("cid").String()}
	}
	return m
}

func (c *Client) mediaFromEmbed(embed gjson.Result, authorDID string) []types.MediaItem {
	var items []types.MediaItem
	switch embed.Get("$type").String() {
	case typeImagesView:
		for _, img := range embed.Get("images").Array() {
			items = append(items, types.MediaItem{
				Kind:     types.MediaImage,
				URL:      img.Get("fullsize").String(),
				MimeType: "image/jpeg",
				Alt:      img.Get("alt").String(),
			})
		}
	case typeVideoView:
		items = append(items, types.MediaItem{
			Kind:     types.MediaVideo,
			URL:      c.blobURL(authorDID, embed.Get("cid").String()),
			MimeType: "video/mp4",
			Alt:      embed.Get("alt").String(),
		})
	case typeRecordMedia:
		items = c.mediaFromEmbed(embed.Get("media"), authorDID)
	}
	return items
}

func (c *Client) blobURL(did, cid string) string {
	query := url.Values{"did": {did}, "cid": {cid}}
	return c.baseURL + "/xrpc/com.atproto.sync.getBlob?" + query.Encode()
}

// attachMedia downloads the media bytes. Failures leave Data empty; the
// pipeline decides whether the request can proceed without them.
func (c *Client) attachMedia(ctx context.Context, item *types.MediaItem) {
	data, mime, err := c.download(ctx, item.URL)
	if err != nil {
		c.log.Warn("⚠️ Media download failed for %s: %v", item.URL, err)
		return
	}
	item.Data = data
	if mime != "" && !strings.HasPrefix(mime, "application/octet-stream") {
		item.MimeType = mime
	}
}

func (c *Client) download(ctx context.Context, rawURL string) ([]byte, string, error) {
	if rawURL == "" {
		return nil, "", fmt.Errorf("empty media URL")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("media download returned %d", resp.StatusCode)
	}
	if resp.ContentLength > c.maxMediaBytes {
		return nil, "", fmt.Errorf("media too large: %d bytes", resp.ContentLength)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxMediaBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrTransport, err)
	}
	if int64(len(data)) > c.maxMediaBytes {
		return nil, "", fmt.Errorf("media exceeds %d bytes", c.maxMediaBytes)
	}

	mime := resp.Header.Get("Content-Type")
	if i := strings.Index(mime, ";"); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	return data, mime, nil
}
