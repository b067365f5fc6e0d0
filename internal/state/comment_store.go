package state

import (
	"context"
	"log/slog"
	"strings"

	"basegraph.app/concierge/internal/model"
)

// CommentStore keeps state inside the bot's comments. Posting the comment is
// the commit, so two runs racing on the same participant can both post; the
// newest comment wins on the next read.
type CommentStore struct{}

func NewCommentStore() *CommentStore {
	return &CommentStore{}
}

// Load scans bot comments newest-first and returns the first state that
// belongs to key.Participant. history must be in ascending creation order.
func (s *CommentStore) Load(ctx context.Context, key Key, history []model.Comment) (*model.ConversationState, error) {
	for i := len(history) - 1; i >= 0; i-- {
		c := history[i]
		if !strings.EqualFold(c.Author, key.BotUsername) {
			continue
		}

		st, ok := Decode(c.Body)
		if !ok {
			continue
		}
		if st.Participant != "" && strings.EqualFold(st.Participant, key.Participant) {
			slog.DebugContext(ctx, "found existing state",
				"comment_id", c.ID,
				"loop_count", st.LoopCount,
				"category", st.Category)
			return st, nil
		}
	}
	return nil, nil
}

func (s *CommentStore) Prepare(_ context.Context, _ Key, body string, next *model.ConversationState) (string, error) {
	return Encode(body, next)
}

func (s *CommentStore) Commit(context.Context, Key, *model.ConversationState, *model.ConversationState) error {
	return nil
}
