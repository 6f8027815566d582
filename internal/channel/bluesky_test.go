package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FeelPulse/skyoracle/internal/logger"
	"github.com/FeelPulse/skyoracle/pkg/types"
)

const (
	botDID    = "did:plc:oracle"
	botHandle = "oracle.test"
	password  = "app-pass"
)

// fakePDS is an in-memory stand-in for the handful of XRPC endpoints the client uses
type fakePDS struct {
	mu  sync.Mutex
	srv *httptest.Server

	sessions      int
	refreshes     int
	access        string
	expireNext    bool
	notifications []map[string]any
	pages         [][]map[string]any // paged listNotifications, cursor "p<N>"
	listQueries   []url.Values
	threads       map[string]map[string]any
	posts         map[string]map[string]any
	created       []map[string]any
	createStatus  int
	seenAt        string
	blobs         map[string][]byte
}

func newFakePDS(t *testing.T) *fakePDS {
	f := &fakePDS{
		threads: make(map[string]map[string]any),
		posts:   make(map[string]map[string]any),
		blobs:   make(map[string][]byte),
	}
	f.srv = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakePDS) client() *Client {
	log := logger.New(&logger.Config{Level: "error", Component: "bluesky"})
	return NewClient(Options{
		Identifier: botHandle,
		Password:   password,
		PDSURL:     f.srv.URL,
		Timeout:    5 * time.Second,
		Logger:     log,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func xrpcError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]string{"error": code, "message": msg})
}

func (f *fakePDS) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if data, ok := f.blobs[r.URL.Path]; ok {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(data)
		return
	}

	nsid := strings.TrimPrefix(r.URL.Path, "/xrpc/")
	switch nsid {
	case "com.atproto.server.createSession":
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["password"] != password {
			xrpcError(w, http.StatusUnauthorized, "AuthenticationRequired", "Invalid identifier or password")
			return
		}
		f.sessions++
		f.access = fmt.Sprintf("access-%d", f.sessions)
		writeJSON(w, http.StatusOK, Session{DID: botDID, Handle: botHandle, AccessJwt: f.access, RefreshJwt: "refresh"})
		return
	case "com.atproto.server.refreshSession":
		if r.Header.Get("Authorization") != "Bearer refresh" {
			xrpcError(w, http.StatusBadRequest, "ExpiredToken", "Token has expired")
			return
		}
		f.refreshes++
		f.access = fmt.Sprintf("access-r%d", f.refreshes)
		writeJSON(w, http.StatusOK, Session{DID: botDID, Handle: botHandle, AccessJwt: f.access, RefreshJwt: "refresh"})
		return
	case "com.atproto.identity.resolveHandle":
		if r.URL.Query().Get("handle") != "alice.test" {
			xrpcError(w, http.StatusBadRequest, "InvalidRequest", "Unable to resolve handle")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"did": "did:plc:alice"})
		return
	}

	if r.Header.Get("Authorization") != "Bearer "+f.access {
		xrpcError(w, http.StatusUnauthorized, "AuthenticationRequired", "Authentication Required")
		return
	}
	if f.expireNext {
		f.expireNext = false
		xrpcError(w, http.StatusBadRequest, "ExpiredToken", "Token has expired")
		return
	}

	switch nsid {
	case "app.bsky.notification.listNotifications":
		f.listQueries = append(f.listQueries, r.URL.Query())
		if f.pages == nil {
			writeJSON(w, http.StatusOK, map[string]any{"notifications": f.notifications})
			return
		}
		page := 0
		if c := r.URL.Query().Get("cursor"); c != "" {
			page, _ = strconv.Atoi(strings.TrimPrefix(c, "p"))
		}
		resp := map[string]any{"notifications": f.pages[page]}
		if page+1 < len(f.pages) {
			resp["cursor"] = fmt.Sprintf("p%d", page+1)
		}
		writeJSON(w, http.StatusOK, resp)
	case "app.bsky.notification.updateSeen":
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.seenAt = body["seenAt"]
		writeJSON(w, http.StatusOK, map[string]any{})
	case "app.bsky.feed.getPostThread":
		uri := r.URL.Query().Get("uri")
		thread, ok := f.threads[uri]
		if !ok {
			xrpcError(w, http.StatusBadRequest, "NotFound", "Post not found: "+uri)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"thread": thread})
	case "app.bsky.feed.getPosts":
		var posts []map[string]any
		for _, uri := range r.URL.Query()["uris"] {
			if p, ok := f.posts[uri]; ok {
				posts = append(posts, p)
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"posts": posts})
	case "com.atproto.repo.createRecord":
		if f.createStatus != 0 {
			xrpcError(w, f.createStatus, "InternalServerError", "try again")
			return
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.created = append(f.created, body)
		writeJSON(w, http.StatusOK, map[string]string{
			"uri": fmt.Sprintf("at://%s/app.bsky.feed.post/reply%d", botDID, len(f.created)),
			"cid": "bafyreply",
		})
	default:
		http.NotFound(w, r)
	}
}

func postURI(did, rkey string) string {
	return fmt.Sprintf("at://%s/app.bsky.feed.post/%s", did, rkey)
}

func postView(uri, did, handle, text string) map[string]any {
	return map[string]any{
		"uri":    uri,
		"cid":    "cid-" + uri[strings.LastIndex(uri, "/")+1:],
		"author": map[string]any{"did": did, "handle": handle},
		"record": map[string]any{
			"$type":     "app.bsky.feed.post",
			"text":      text,
			"createdAt": "2025-06-01T12:00:00.000Z",
		},
		"indexedAt": "2025-06-01T12:00:01.000Z",
	}
}

func threadNode(post map[string]any, parent map[string]any) map[string]any {
	node := map[string]any{"$type": typeThreadViewPost, "post": post}
	if parent != nil {
		node["parent"] = parent
	}
	return node
}

func TestAuthenticate_Idempotent(t *testing.T) {
	pds := newFakePDS(t)
	c := pds.client()

	s1, err := c.Authenticate(context.Background())
	require.NoError(t, err)
	s2, err := c.Authenticate(context.Background())
	require.NoError(t, err)

	assert.Equal(t, botDID, s1.DID)
	assert.Equal(t, s1, s2)
	assert.Equal(t, 1, pds.sessions)

	did, handle := c.Self()
	assert.Equal(t, botDID, did)
	assert.Equal(t, botHandle, handle)
}

func TestAuthenticate_BadCredentials(t *testing.T) {
	pds := newFakePDS(t)
	c := NewClient(Options{Identifier: botHandle, Password: "wrong", PDSURL: pds.srv.URL})

	_, err := c.Authenticate(context.Background())
	assert.ErrorIs(t, err, ErrAuth)
	assert.NotContains(t, err.Error(), "wrong")
}

func TestAuthenticate_MissingCredentials(t *testing.T) {
	c := NewClient(Options{PDSURL: "http://127.0.0.1:1"})
	_, err := c.Authenticate(context.Background())
	assert.ErrorIs(t, err, ErrAuth)
}

func TestCall_RefreshesExpiredToken(t *testing.T) {
	pds := newFakePDS(t)
	c := pds.client()
	_, err := c.Authenticate(context.Background())
	require.NoError(t, err)

	pds.mu.Lock()
	pds.expireNext = true
	pds.mu.Unlock()

	require.NoError(t, c.MarkSeen(context.Background(), time.Now()))
	assert.Equal(t, 1, pds.refreshes)
	assert.Equal(t, 1, pds.sessions)
}

func TestFetchNewMentions(t *testing.T) {
	pds := newFakePDS(t)
	since := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	notif := func(uri, reason, text, indexedAt string) map[string]any {
		return map[string]any{
			"uri":    uri,
			"cid":    "cid",
			"author": map[string]any{"did": "did:plc:alice", "handle": "alice.test"},
			"reason": reason,
			"record": map[string]any{
				"text":  text,
				"langs": []string{"de"},
				"reply": map[string]any{
					"root":   map[string]any{"uri": "at://root", "cid": "r"},
					"parent": map[string]any{"uri": "at://parent", "cid": "p"},
				},
			},
			"indexedAt": indexedAt,
		}
	}
	pds.notifications = []map[string]any{
		notif("at://m3", "mention", "@oracle.test check", "2025-06-01T12:03:00.000Z"),
		notif("at://like", "like", "", "2025-06-01T12:02:30.000Z"),
		notif("at://r1", "reply", "thanks @Oracle.test, and this?", "2025-06-01T12:02:00.000Z"),
		notif("at://r2", "reply", "thanks!", "2025-06-01T12:01:30.000Z"),
		notif("at://m1", "mention", "@oracle.test", "2025-06-01T12:01:00.000Z"),
		notif("at://old", "mention", "@oracle.test", "2025-06-01T12:00:00.000Z"),
	}

	c := pds.client()
	_, err := c.Authenticate(context.Background())
	require.NoError(t, err)

	mentions, err := c.FetchNewMentions(context.Background(), since)
	require.NoError(t, err)
	require.Len(t, mentions, 3)

	assert.Equal(t, "at://m1", mentions[0].ID)
	assert.Equal(t, "at://r1", mentions[1].ID)
	assert.Equal(t, "at://m3", mentions[2].ID)

	m := mentions[0]
	assert.Equal(t, "alice.test", m.RequesterHandle)
	assert.Equal(t, "de", m.LanguageHint())
	require.NotNil(t, m.ReplyParent)
	assert.Equal(t, "at://parent", m.ReplyParent.URI)

	require.Len(t, pds.listQueries, 1)
	assert.ElementsMatch(t, []string{"mention", "reply"}, pds.listQueries[0]["reasons"])
}

func pagedNotification(uri, reason, text string, indexedAt time.Time) map[string]any {
	return map[string]any{
		"uri":       uri,
		"cid":       "cid",
		"author":    map[string]any{"did": "did:plc:alice", "handle": "alice.test"},
		"reason":    reason,
		"record":    map[string]any{"text": text},
		"indexedAt": indexedAt.Format(time.RFC3339Nano),
	}
}

func TestFetchNewMentions_BacklogResumesPastPageLimit(t *testing.T) {
	pds := newFakePDS(t)
	since := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	at := since.Add(12 * time.Hour)

	// five full pages of chatter, then the mention, then history before since
	for p := 0; p < maxNotificationPages; p++ {
		var page []map[string]any
		for i := 0; i < notificationPageSize; i++ {
			at = at.Add(-time.Second)
			page = append(page, pagedNotification(fmt.Sprintf("at://chatter/%d-%d", p, i), "reply", "thanks!", at))
		}
		pds.pages = append(pds.pages, page)
	}
	pds.pages = append(pds.pages, []map[string]any{
		pagedNotification("at://buried", "mention", "@oracle.test check this", since.Add(time.Hour)),
		pagedNotification("at://old", "mention", "@oracle.test", since.Add(-time.Hour)),
	})
	pds.pages[0] = append([]map[string]any{
		pagedNotification("at://newest", "mention", "@oracle.test hi", since.Add(13*time.Hour)),
	}, pds.pages[0]...)

	c := pds.client()
	_, err := c.Authenticate(context.Background())
	require.NoError(t, err)

	mentions, err := c.FetchNewMentions(context.Background(), since)
	require.ErrorIs(t, err, ErrBacklogTruncated)
	require.Len(t, mentions, 1)
	assert.Equal(t, "at://newest", mentions[0].ID)
	assert.Len(t, pds.listQueries, maxNotificationPages)

	// same cursor: pick up below the last page read
	mentions, err = c.FetchNewMentions(context.Background(), since)
	require.NoError(t, err)
	require.Len(t, mentions, 1)
	assert.Equal(t, "at://buried", mentions[0].ID)
	assert.Equal(t, fmt.Sprintf("p%d", maxNotificationPages), pds.listQueries[maxNotificationPages].Get("cursor"))

	// once caught up, paging starts from the top again
	_, _ = c.FetchNewMentions(context.Background(), since.Add(time.Hour))
	assert.Empty(t, pds.listQueries[maxNotificationPages+1].Get("cursor"))
}

func TestFetchNewMentions_BacklogResetsOnNewCursor(t *testing.T) {
	pds := newFakePDS(t)
	since := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for p := 0; p <= maxNotificationPages; p++ {
		pds.pages = append(pds.pages, []map[string]any{
			pagedNotification(fmt.Sprintf("at://m/%d", p), "mention", "@oracle.test", since.Add(time.Duration(10-p)*time.Hour)),
		})
	}

	c := pds.client()
	_, err := c.Authenticate(context.Background())
	require.NoError(t, err)

	_, err = c.FetchNewMentions(context.Background(), since)
	require.ErrorIs(t, err, ErrBacklogTruncated)

	mentions, err := c.FetchNewMentions(context.Background(), since.Add(8*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, pds.listQueries[maxNotificationPages].Get("cursor"))
	require.Len(t, mentions, 2)
	assert.Equal(t, "at://m/1", mentions[0].ID)
	assert.Equal(t, "at://m/0", mentions[1].ID)
}

func TestMarkSeen(t *testing.T) {
	pds := newFakePDS(t)
	c := pds.client()

	at := time.Date(2025, 6, 1, 12, 5, 0, 0, time.UTC)
	require.NoError(t, c.MarkSeen(context.Background(), at))
	assert.Equal(t, "2025-06-01T12:05:00Z", pds.seenAt)
}

func TestResolveRef(t *testing.T) {
	pds := newFakePDS(t)
	c := pds.client()
	ctx := context.Background()

	uri, err := c.ResolveRef(ctx, "https://bsky.app/profile/alice.test/post/3kabc")
	require.NoError(t, err)
	assert.Equal(t, "at://did:plc:alice/app.bsky.feed.post/3kabc", uri)

	uri, err = c.ResolveRef(ctx, "https://bsky.app/profile/did:plc:bob/post/3kxyz?ref=share")
	require.NoError(t, err)
	assert.Equal(t, "at://did:plc:bob/app.bsky.feed.post/3kxyz", uri)

	uri, err = c.ResolveRef(ctx, "at://did:plc:bob/app.bsky.feed.post/1")
	require.NoError(t, err)
	assert.Equal(t, "at://did:plc:bob/app.bsky.feed.post/1", uri)

	_, err = c.ResolveRef(ctx, "https://example.com/post/1")
	assert.ErrorIs(t, err, ErrInvalidRef)

	_, err = c.ResolveRef(ctx, "https://bsky.app/profile/nobody.test/post/1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFetchThread_ParentIsTarget(t *testing.T) {
	pds := newFakePDS(t)
	root := postView(postURI("did:plc:carol", "root"), "did:plc:carol", "carol.test", "Has anyone been to the moon?")
	claim := postView(postURI("did:plc:bob", "claim"), "did:plc:bob", "bob.test", "The moon landing happened in 1969.")
	claim["record"].(map[string]any)["reply"] = map[string]any{
		"root":   map[string]any{"uri": root["uri"], "cid": root["cid"]},
		"parent": map[string]any{"uri": root["uri"], "cid": root["cid"]},
	}
	mention := postView(postURI("did:plc:alice", "m1"), "did:plc:alice", "alice.test", "@oracle.test is this true?")
	mention["record"].(map[string]any)["langs"] = []string{"en"}

	mentionURI := mention["uri"].(string)
	pds.threads[mentionURI] = threadNode(mention, threadNode(claim, threadNode(root, nil)))

	thread, err := pds.client().FetchThread(context.Background(), mentionURI)
	require.NoError(t, err)

	assert.Equal(t, claim["uri"], thread.Target.Ref.URI)
	assert.Equal(t, "The moon landing happened in 1969.", thread.Target.Text)
	assert.Equal(t, types.RoleOriginalClaim, thread.Target.Role)
	require.NotNil(t, thread.Target.ReplyRoot)
	assert.Equal(t, root["uri"], thread.Target.ReplyRoot.URI)

	require.Len(t, thread.ParentChain, 1)
	assert.Equal(t, types.RoleDiscussion, thread.ParentChain[0].Role)
	assert.Equal(t, "alice.test", thread.Requester.RequesterHandle)
	assert.Equal(t, "en", thread.Language)
}

func TestFetchThread_SkipsBotReply(t *testing.T) {
	pds := newFakePDS(t)
	claim := postView(postURI("did:plc:bob", "claim"), "did:plc:bob", "bob.test", "Vaccines contain microchips.")
	botReply := postView(postURI(botDID, "prev"), botDID, botHandle, "FALSE: no evidence supports this.")
	mention := postView(postURI("did:plc:alice", "m2"), "did:plc:alice", "alice.test", "@oracle.test sources?")

	mentionURI := mention["uri"].(string)
	pds.threads[mentionURI] = threadNode(mention, threadNode(botReply, threadNode(claim, nil)))

	thread, err := pds.client().FetchThread(context.Background(), mentionURI)
	require.NoError(t, err)

	assert.Equal(t, claim["uri"], thread.Target.Ref.URI)
	require.Len(t, thread.ParentChain, 1)
	assert.Equal(t, types.RoleBotPreviousReply, thread.ParentChain[0].Role)
}

func TestFetchThread_RootMentionIsOwnTarget(t *testing.T) {
	pds := newFakePDS(t)
	mention := postView(postURI("did:plc:alice", "m3"), "did:plc:alice", "alice.test", "@oracle.test the Great Wall is visible from space")
	mentionURI := mention["uri"].(string)
	pds.threads[mentionURI] = threadNode(mention, nil)

	thread, err := pds.client().FetchThread(context.Background(), mentionURI)
	require.NoError(t, err)
	assert.Equal(t, mentionURI, thread.Target.Ref.URI)
	assert.Empty(t, thread.ParentChain)
}

func TestFetchThread_NotFound(t *testing.T) {
	pds := newFakePDS(t)
	c := pds.client()

	_, err := c.FetchThread(context.Background(), postURI("did:plc:alice", "gone"))
	assert.ErrorIs(t, err, ErrNotFound)

	// Parent deleted after the mention was made
	mention := postView(postURI("did:plc:alice", "m4"), "did:plc:alice", "alice.test", "@oracle.test ?")
	mentionURI := mention["uri"].(string)
	pds.threads[mentionURI] = map[string]any{
		"$type": typeThreadViewPost,
		"post":  mention,
		"parent": map[string]any{
			"$type":    "app.bsky.feed.defs#notFoundPost",
			"uri":      postURI("did:plc:bob", "deleted"),
			"notFound": true,
		},
	}
	_, err = c.FetchThread(context.Background(), mentionURI)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFetchThread_BotPostIsNotTarget(t *testing.T) {
	pds := newFakePDS(t)
	botPost := postView(postURI(botDID, "solo"), botDID, botHandle, "TRUE: confirmed.")
	mention := postView(postURI("did:plc:alice", "m5"), "did:plc:alice", "alice.test", "@oracle.test again")
	mentionURI := mention["uri"].(string)
	pds.threads[mentionURI] = threadNode(mention, threadNode(botPost, nil))

	_, err := pds.client().FetchThread(context.Background(), mentionURI)
	assert.ErrorIs(t, err, ErrSelfTarget)
}

func TestFetchThread_DownloadsFirstImage(t *testing.T) {
	pds := newFakePDS(t)
	pds.blobs["/img/chart.png"] = []byte("\x89PNG fake")

	target := postView(postURI("did:plc:bob", "pic"), "did:plc:bob", "bob.test", "")
	target["embed"] = map[string]any{
		"$type": typeRecordMedia,
		"media": map[string]any{
			"$type": typeImagesView,
			"images": []map[string]any{
				{"fullsize": pds.srv.URL + "/img/chart.png", "thumb": pds.srv.URL + "/img/thumb.png", "alt": "a chart"},
				{"fullsize": pds.srv.URL + "/img/other.png", "alt": ""},
			},
		},
	}
	mention := postView(postURI("did:plc:alice", "m6"), "did:plc:alice", "alice.test", "@oracle.test describe")
	mentionURI := mention["uri"].(string)
	pds.threads[mentionURI] = threadNode(mention, threadNode(target, nil))

	thread, err := pds.client().FetchThread(context.Background(), mentionURI)
	require.NoError(t, err)
	require.Len(t, thread.Target.Media, 2)

	first := thread.Target.Media[0]
	assert.Equal(t, types.MediaImage, first.Kind)
	assert.Equal(t, "a chart", first.Alt)
	assert.Equal(t, "image/png", first.MimeType)
	assert.Equal(t, []byte("\x89PNG fake"), first.Data)
	assert.Nil(t, thread.Target.Media[1].Data)
}

func TestFetchThread_VideoUsesBlobURL(t *testing.T) {
	pds := newFakePDS(t)
	target := postView(postURI("did:plc:bob", "vid"), "did:plc:bob", "bob.test", "watch")
	target["embed"] = map[string]any{"$type": typeVideoView, "cid": "bafyvideo", "playlist": "https://video.test/x.m3u8"}
	mention := postView(postURI("did:plc:alice", "m7"), "did:plc:alice", "alice.test", "@oracle.test transcribe")
	mentionURI := mention["uri"].(string)
	pds.threads[mentionURI] = threadNode(mention, threadNode(target, nil))

	thread, err := pds.client().FetchThread(context.Background(), mentionURI)
	require.NoError(t, err)
	require.Len(t, thread.Target.Media, 1)
	assert.Equal(t, types.MediaVideo, thread.Target.Media[0].Kind)
	assert.Contains(t, thread.Target.Media[0].URL, "com.atproto.sync.getBlob")
	assert.Contains(t, thread.Target.Media[0].URL, "cid=bafyvideo")
}

func TestDownload_SizeCap(t *testing.T) {
	pds := newFakePDS(t)
	pds.blobs["/img/big.png"] = []byte(strings.Repeat("x", 64))

	c := NewClient(Options{PDSURL: pds.srv.URL, MaxMediaBytes: 16})
	_, _, err := c.download(context.Background(), pds.srv.URL+"/img/big.png")
	assert.Error(t, err)
}

func TestPostReply_ThreadsUnderRoot(t *testing.T) {
	pds := newFakePDS(t)
	parentURI := postURI("did:plc:bob", "claim")
	pds.posts[parentURI] = map[string]any{
		"uri": parentURI,
		"cid": "cid-claim",
		"record": map[string]any{
			"text":  "The moon landing happened in 1969.",
			"reply": map[string]any{"root": map[string]any{"uri": "at://root", "cid": "cid-root"}, "parent": map[string]any{"uri": "at://root", "cid": "cid-root"}},
		},
	}

	c := pds.client()
	ref, err := c.PostReply(context.Background(), types.PostRef{URI: parentURI, CID: "cid-claim"}, "TRUE: Apollo 11 landed in July 1969.", "en")
	require.NoError(t, err)
	assert.Equal(t, "bafyreply", ref.CID)

	require.Len(t, pds.created, 1)
	body := pds.created[0]
	assert.Equal(t, botDID, body["repo"])
	assert.Equal(t, postCollection, body["collection"])

	record := body["record"].(map[string]any)
	assert.Equal(t, "TRUE: Apollo 11 landed in July 1969.", record["text"])
	assert.Equal(t, []any{"en"}, record["langs"])
	reply := record["reply"].(map[string]any)
	assert.Equal(t, parentURI, reply["parent"].(map[string]any)["uri"])
	assert.Equal(t, "at://root", reply["root"].(map[string]any)["uri"])
}

func TestPostReply_RootDefaultsToParent(t *testing.T) {
	pds := newFakePDS(t)
	parentURI := postURI("did:plc:bob", "top")
	pds.posts[parentURI] = map[string]any{"uri": parentURI, "cid": "cid-top", "record": map[string]any{"text": "hi"}}

	_, err := pds.client().PostReply(context.Background(), types.PostRef{URI: parentURI}, "reply")
	require.NoError(t, err)

	reply := pds.created[0]["record"].(map[string]any)["reply"].(map[string]any)
	assert.Equal(t, parentURI, reply["root"].(map[string]any)["uri"])
	_, hasLangs := pds.created[0]["record"].(map[string]any)["langs"]
	assert.False(t, hasLangs)
}

func TestPostReply_DuplicateSuppressed(t *testing.T) {
	pds := newFakePDS(t)
	parentURI := postURI("did:plc:bob", "dup")
	pds.posts[parentURI] = map[string]any{"uri": parentURI, "cid": "cid-dup", "record": map[string]any{"text": "x"}}
	c := pds.client()
	parent := types.PostRef{URI: parentURI}

	_, err := c.PostReply(context.Background(), parent, "same text")
	require.NoError(t, err)
	_, err = c.PostReply(context.Background(), parent, "same text")
	assert.ErrorIs(t, err, ErrDuplicateSuppressed)

	_, err = c.PostReply(context.Background(), parent, "different text")
	assert.NoError(t, err)
	assert.Len(t, pds.created, 2)
}

func TestPostReply_TransportErrorAllowsRetry(t *testing.T) {
	pds := newFakePDS(t)
	parentURI := postURI("did:plc:bob", "flaky")
	pds.posts[parentURI] = map[string]any{"uri": parentURI, "cid": "cid-flaky", "record": map[string]any{"text": "x"}}
	pds.createStatus = http.StatusBadGateway
	c := pds.client()
	parent := types.PostRef{URI: parentURI}

	_, err := c.PostReply(context.Background(), parent, "answer")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTransport))

	pds.mu.Lock()
	pds.createStatus = 0
	pds.mu.Unlock()

	_, err = c.PostReply(context.Background(), parent, "answer")
	assert.NoError(t, err)
}

func TestPostReply_RejectsEmpty(t *testing.T) {
	c := NewClient(Options{PDSURL: "http://127.0.0.1:1"})
	_, err := c.PostReply(context.Background(), types.PostRef{URI: "at://x"}, "   ")
	assert.Error(t, err)
}

func TestAPIError_Is(t *testing.T) {
	assert.ErrorIs(t, &APIError{Status: 502}, ErrTransport)
	assert.ErrorIs(t, &APIError{Status: 429}, ErrTransport)
	assert.ErrorIs(t, &APIError{Status: 400, Code: "NotFound"}, ErrNotFound)
	assert.ErrorIs(t, &APIError{Status: 401}, ErrAuth)
	assert.NotErrorIs(t, &APIError{Status: 400, Code: "InvalidRequest", Message: "bad cursor"}, ErrNotFound)
}

func TestNetworkErrorIsTransport(t *testing.T) {
	c := NewClient(Options{Identifier: botHandle, Password: password, PDSURL: "http://127.0.0.1:1", Timeout: time.Second})
	_, err := c.Authenticate(context.Background())
	assert.ErrorIs(t, err, ErrTransport)
}
