package state

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"basegraph.app/concierge/internal/model"
)

// ErrStateConflict means another run committed state for the same participant
// after this run loaded it.
var ErrStateConflict = errors.New("conversation state changed concurrently")

// Key identifies one participant's conversation on one issue.
type Key struct {
	Ref         model.IssueRef
	Participant string
	BotUsername string
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%s:%d:%s", k.Ref.Provider, k.Ref.Repo, k.Ref.Number, strings.ToLower(k.Participant))
}

// Store loads and saves conversation state. A run calls Load once, Prepare on
// the outgoing comment body, posts it, and only then calls Commit.
type Store interface {
	// Load returns the participant's latest state, or nil when there is none.
	Load(ctx context.Context, key Key, history []model.Comment) (*model.ConversationState, error)
	// Prepare returns the body to post for next.
	Prepare(ctx context.Context, key Key, body string, next *model.ConversationState) (string, error)
	// Commit records next after the comment carrying it was posted.
	Commit(ctx context.Context, key Key, prev, next *model.ConversationState) error
}
