package triage

import (
	"context"
	"errors"
	"fmt"

	"basegraph.app/concierge/common/llm"
	"basegraph.app/concierge/internal/service/issue_tracker"
	"basegraph.app/concierge/internal/state"
)

// ErrChecklistMissing means the resolved category has no checklist in the
// spec pack.
var ErrChecklistMissing = errors.New("no checklist for category")

// Stages name the step of a run that failed.
const (
	StageListComments = "list_comments"
	StageLoadState    = "load_state"
	StageClassify     = "classify"
	StageChecklist    = "checklist"
	StageExtract      = "extract"
	StageFollowUps    = "follow_ups"
	StageBrief        = "brief"
	StageRevise       = "revise"
	StagePrepare      = "prepare_state"
	StagePost         = "post_comment"
	StageCommit       = "commit_state"
)

// RunError is a fatal error of one triage run. Nothing was posted unless the
// stage is StageCommit.
type RunError struct {
	Stage     string
	Retryable bool
	Err       error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("triage %s: %v", e.Stage, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether re-running the same event may succeed.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, state.ErrStateConflict) {
		return true
	}
	var runErr *RunError
	if errors.As(err, &runErr) {
		return runErr.Retryable
	}
	return false
}

func trackerError(stage string, err error) error {
	return &RunError{Stage: stage, Retryable: issue_tracker.IsRetryable(err), Err: err}
}

func llmError(ctx context.Context, stage string, err error) error {
	return &RunError{Stage: stage, Retryable: llm.IsRetryable(ctx, err), Err: err}
}

func stateError(stage string, err error) error {
	retryable := errors.Is(err, state.ErrStateConflict) || issue_tracker.IsRetryable(err)
	return &RunError{Stage: stage, Retryable: retryable, Err: err}
}
