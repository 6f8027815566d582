package monitor

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FeelPulse/skyoracle/internal/agent"
	"github.com/FeelPulse/skyoracle/internal/channel"
	"github.com/FeelPulse/skyoracle/internal/pipeline"
	"github.com/FeelPulse/skyoracle/internal/textfit"
	"github.com/FeelPulse/skyoracle/pkg/types"
)

func TestProcess_RepliesToOriginalPost(t *testing.T) {
	social := newFakeSocial()
	mention := social.addMention("at://did:plc:alice/app.bsky.feed.post/m1", "did:plc:alice", "The moon landing happened in 1969.")
	recorder := &fakeRecorder{}
	proc := newTestProcessor(t, social, newScriptedProvider(scriptedResult{raw: moonLandingRaw}), recorder)

	res, err := proc.ProcessMention(context.Background(), mention, ProcessOptions{})
	require.NoError(t, err)

	posts := social.Posts()
	require.Len(t, posts, 1)
	assert.Equal(t, claimURI, posts[0].parent.URI)
	assert.NotEqual(t, mention.ID, posts[0].parent.URI)
	assert.Equal(t, []string{"en"}, posts[0].langs)
	assert.NotRegexp(t, `\[\d+\]`, posts[0].text)
	assert.LessOrEqual(t, textfit.Len(posts[0].text), 250)
	assert.Contains(t, posts[0].text, "Apollo 11")

	assert.Equal(t, types.StatusTrue, res.Response.Status)
	assert.Equal(t, posts[0].text, res.Reply)
	require.NotNil(t, res.Posted)
	assert.Equal(t, 1, recorder.Len())
	assert.Equal(t, "The moon landing happened in 1969.", recorder.records[0].src.Text)
}

func TestProcess_DryRunDoesNotPost(t *testing.T) {
	social := newFakeSocial()
	social.addMention("at://did:plc:alice/app.bsky.feed.post/m1", "did:plc:alice", "The moon landing happened in 1969.")
	proc := newTestProcessor(t, social, newScriptedProvider(scriptedResult{raw: moonLandingRaw}), nil)

	res, err := proc.Process(context.Background(), "at://did:plc:alice/app.bsky.feed.post/m1", ProcessOptions{DryRun: true})
	require.NoError(t, err)

	assert.Empty(t, social.Posts())
	assert.Nil(t, res.Posted)
	assert.NotEmpty(t, res.Reply)
}

func TestProcess_RetriesTransportFailures(t *testing.T) {
	social := newFakeSocial()
	mention := social.addMention("at://did:plc:alice/app.bsky.feed.post/m1", "did:plc:alice", "The moon landing happened in 1969.")
	provider := newScriptedProvider(
		scriptedResult{err: transportErr},
		scriptedResult{err: transportErr},
		scriptedResult{raw: moonLandingRaw},
	)
	proc := newTestProcessor(t, social, provider, nil)

	start := time.Now()
	_, err := proc.ProcessMention(context.Background(), mention, ProcessOptions{})
	elapsed := time.Since(start)
	require.NoError(t, err)

	assert.Equal(t, 3, provider.Calls())
	assert.Len(t, social.Posts(), 1)
	// 20ms then 40ms between the three attempts
	assert.GreaterOrEqual(t, elapsed, 60*time.Millisecond)
}

func TestProcess_GivesUpAfterMaxAttempts(t *testing.T) {
	social := newFakeSocial()
	mention := social.addMention("at://did:plc:alice/app.bsky.feed.post/m1", "did:plc:alice", "The moon landing happened in 1969.")
	provider := newScriptedProvider(scriptedResult{raw: moonLandingRaw})
	proc := newTestProcessor(t, social, provider, nil)
	social.postErrs = []error{
		fmt.Errorf("%w: createRecord: 502", channel.ErrTransport),
		fmt.Errorf("%w: createRecord: 502", channel.ErrTransport),
		fmt.Errorf("%w: createRecord: 502", channel.ErrTransport),
	}

	_, err := proc.ProcessMention(context.Background(), mention, ProcessOptions{})
	require.Error(t, err)

	assert.Equal(t, StagePostReply, StageOf(err))
	assert.True(t, IsTransient(err))
	assert.Equal(t, "transport", ErrorKind(err))
	assert.Empty(t, social.Posts())
}

func TestProcess_MalformedResponseNotRetried(t *testing.T) {
	social := newFakeSocial()
	mention := social.addMention("at://did:plc:alice/app.bsky.feed.post/m1", "did:plc:alice", "Water boils at 50C.")
	provider := newScriptedProvider(scriptedResult{raw: "I think this is probably wrong."})
	proc := newTestProcessor(t, social, provider, nil)

	_, err := proc.ProcessMention(context.Background(), mention, ProcessOptions{})
	require.Error(t, err)

	assert.Equal(t, 1, provider.Calls())
	assert.Equal(t, StageComplete, StageOf(err))
	assert.Equal(t, agent.KindMalformedResponse, agent.KindOf(err))
	assert.Empty(t, social.Posts())
}

func TestProcess_DeletedTarget(t *testing.T) {
	social := newFakeSocial()
	provider := newScriptedProvider(scriptedResult{raw: moonLandingRaw})
	proc := newTestProcessor(t, social, provider, nil)

	_, err := proc.Process(context.Background(), "at://did:plc:alice/app.bsky.feed.post/gone", ProcessOptions{})
	require.Error(t, err)

	assert.True(t, errors.Is(err, channel.ErrNotFound))
	assert.Equal(t, StageFetchThread, StageOf(err))
	assert.Equal(t, "not_found", ErrorKind(err))
	assert.Equal(t, 1, social.FetchCalls())
	assert.Equal(t, 0, provider.Calls())
}

func TestProcess_RetriesFetchTransport(t *testing.T) {
	social := newFakeSocial()
	mention := social.addMention("at://did:plc:alice/app.bsky.feed.post/m1", "did:plc:alice", "The moon landing happened in 1969.")
	social.fetchErrs = []error{fmt.Errorf("%w: getPostThread: 503", channel.ErrTransport)}
	proc := newTestProcessor(t, social, newScriptedProvider(scriptedResult{raw: moonLandingRaw}), nil)

	_, err := proc.ProcessMention(context.Background(), mention, ProcessOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, social.FetchCalls())
}

func TestProcess_MediaUnavailable(t *testing.T) {
	social := newFakeSocial()
	mention := social.addMention("at://did:plc:alice/app.bsky.feed.post/m1", "did:plc:alice", "")
	provider := newScriptedProvider(scriptedResult{raw: moonLandingRaw})
	proc := newTestProcessor(t, social, provider, nil)

	_, err := proc.ProcessMention(context.Background(), mention, ProcessOptions{Mode: types.ModeMedia})
	require.Error(t, err)

	assert.Equal(t, StageBuildRequest, StageOf(err))
	assert.ErrorIs(t, err, pipeline.ErrNoMedia)
	assert.Equal(t, "no_media", ErrorKind(err))
	assert.Equal(t, 0, provider.Calls())
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{channel.ErrSelfTarget, "self_target"},
		{fmt.Errorf("post: %w", channel.ErrDuplicateSuppressed), "duplicate_suppressed"},
		{&channel.APIError{Status: 401, Code: "AuthenticationRequired"}, "auth"},
		{&agent.Error{Kind: agent.KindRateLimited}, "rate_limited"},
		{context.Canceled, "canceled"},
		{errors.New("boom"), "internal"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ErrorKind(tt.err), "%v", tt.err)
	}
}
