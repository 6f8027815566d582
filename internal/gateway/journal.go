package gateway

import (
	"context"
	"time"

	"github.com/FeelPulse/skyoracle/internal/dailylog"
	"github.com/FeelPulse/skyoracle/internal/logger"
	"github.com/FeelPulse/skyoracle/internal/monitor"
	"github.com/FeelPulse/skyoracle/pkg/types"
)

// journaledSocial records every successfully posted reply in the journal.
// Journal failures are logged and never fail the post.
type journaledSocial struct {
	monitor.Social
	journal *dailylog.Writer
	log     *logger.Logger
	now     func() time.Time
}

func (j *journaledSocial) PostReply(ctx context.Context, parent types.PostRef, text string, langs ...string) (*types.ReplyRef, error) {
	ref, err := j.Social.PostReply(ctx, parent, text, langs...)
	if err != nil {
		return nil, err
	}

	entry := dailylog.Entry{Time: j.now(), Target: parent.URI, Text: text}
	if ref != nil {
		entry.Reply = ref.URI
	}
	if len(langs) > 0 {
		entry.Language = langs[0]
	}
	if jerr := j.journal.Log(entry); jerr != nil {
		j.log.Warn("⚠️ Failed to journal reply to %s: %v", parent.URI, jerr)
	}
	return ref, nil
}
