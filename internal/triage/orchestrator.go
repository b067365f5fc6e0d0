// Package triage runs one tracker event through the conversation state
// machine: it resolves the participant, loads their state, scores the report
// and posts exactly one comment (or none).
package triage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"basegraph.app/concierge/common/id"
	"basegraph.app/concierge/common/logger"
	"basegraph.app/concierge/internal/agent"
	"basegraph.app/concierge/internal/compose"
	"basegraph.app/concierge/internal/model"
	"basegraph.app/concierge/internal/parser"
	"basegraph.app/concierge/internal/redact"
	"basegraph.app/concierge/internal/scoring"
	"basegraph.app/concierge/internal/service/issue_tracker"
	"basegraph.app/concierge/internal/specpack"
	"basegraph.app/concierge/internal/state"
	"basegraph.app/concierge/internal/validate"
)

const (
	LabelNeedsMaintainer = "needs-maintainer-review"
	LabelIncompleteInfo  = "incomplete-info"

	maxRepoDocs      = 3000
	duplicateLimit   = 3
	duplicateWords   = 3
	minDuplicateWord = 5
)

var repoDocFiles = []string{"README.md", "TROUBLESHOOTING.md"}

type Config struct {
	BotUsername        string
	MaxLoops           int
	MaxBriefIterations int
}

type Orchestrator struct {
	tracker  issue_tracker.IssueTracker
	store    state.Store
	gateway  agent.Gateway
	pack     *specpack.Pack
	redactor *redact.Redactor
	scorer   *scoring.Scorer
	cfg      Config
	limits   Limits
	now      func() time.Time
}

// Outcome describes what a run did. CommentID is set when a comment was posted.
type Outcome struct {
	Action      Action
	Phase       Phase
	Category    string
	Participant string
	Score       *scoring.Result
	CommentID   *int64
}

func New(tracker issue_tracker.IssueTracker, store state.Store, gateway agent.Gateway, pack *specpack.Pack, cfg Config) (*Orchestrator, error) {
	redactor, err := redact.New(pack.Validators.SecretPatterns)
	if err != nil {
		return nil, fmt.Errorf("compiling secret patterns: %w", err)
	}
	validator, err := validate.New(pack.Validators)
	if err != nil {
		return nil, fmt.Errorf("compiling validators: %w", err)
	}

	limits := DefaultLimits()
	if cfg.MaxLoops > 0 {
		limits.MaxLoops = cfg.MaxLoops
	}
	if cfg.MaxBriefIterations > 0 {
		limits.MaxBriefIterations = cfg.MaxBriefIterations
	}

	return &Orchestrator{
		tracker:  tracker,
		store:    store,
		gateway:  gateway,
		pack:     pack,
		redactor: redactor,
		scorer:   scoring.New(validator),
		cfg:      cfg,
		limits:   limits,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// run carries everything one Handle call learns along the way.
type run struct {
	ev          model.Event
	ref         model.IssueRef
	key         state.Key
	participant string
	history     []model.Comment
	prev        *model.ConversationState
	st          *model.ConversationState

	category string
	fields   model.Fields
	result   *scoring.Result
	findings []string
}

func (r *run) outcome(action Action) *Outcome {
	out := &Outcome{
		Action:      action,
		Participant: r.participant,
		Category:    r.category,
		Score:       r.result,
	}
	if r.st != nil {
		out.Phase = r.st.Phase
		if out.Category == "" {
			out.Category = r.st.Category
		}
	}
	return out
}

// Handle processes one event. On error nothing was posted and the stored
// state is unchanged, except for a StageCommit error which follows a post.
func (o *Orchestrator) Handle(ctx context.Context, ev model.Event) (*Outcome, error) {
	ref := ev.Issue.Ref
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Repo:        logger.Ptr(ref.Repo),
		IssueNumber: logger.Ptr(ref.Number),
		EventType:   logger.Ptr(string(ev.Type)),
		RunID:       logger.Ptr(id.New()),
		Component:   "concierge.triage.orchestrator",
	})

	participant, command, ok := o.resolveParticipant(ev)
	if !ok {
		slog.DebugContext(ctx, "event ignored", "action", ev.Action)
		return &Outcome{Action: ActionIgnore}, nil
	}
	ctx = logger.WithLogFields(ctx, logger.LogFields{Participant: logger.Ptr(participant)})

	history, err := o.tracker.ListComments(ctx, ref)
	if err != nil {
		return nil, trackerError(StageListComments, fmt.Errorf("listing comments: %w", err))
	}

	key := state.Key{Ref: ref, Participant: participant, BotUsername: o.cfg.BotUsername}
	prev, err := o.store.Load(ctx, key, history)
	if err != nil {
		return nil, stateError(StageLoadState, fmt.Errorf("loading state: %w", err))
	}

	r := &run{
		ev:          ev,
		ref:         ref,
		key:         key,
		participant: participant,
		history:     history,
		prev:        prev,
		st:          prev.Clone(),
	}

	obs := Observation{Reply: ev.Comment != nil, Command: command}
	if ev.Comment != nil {
		obs.Disagreement = DetectDisagreement(ev.Comment.Body)
	}

	for {
		d := Transition(r.st, obs, o.limits)
		slog.DebugContext(ctx, "transition decided", "action", d.Action, "next_phase", d.Next)

		switch d.Action {
		case ActionOptOut:
			return o.optOut(ctx, r)
		case ActionReactivate:
			r.st.IsFinalized = false
			r.st.FinalizedAt = nil
			r.st.Phase = d.Next
			slog.InfoContext(ctx, "conversation reactivated by /diagnose")
		case ActionScore:
			if err := o.score(ctx, r, &obs); err != nil {
				return nil, err
			}
		case ActionOffTopic:
			return o.offTopic(ctx, r)
		case ActionFinalize:
			return o.finalize(ctx, r)
		case ActionEscalate:
			return o.escalate(ctx, r)
		case ActionAskFollowUps:
			return o.askFollowUps(ctx, r)
		case ActionRevise:
			return o.revise(ctx, r)
		case ActionEscalateRevision:
			return o.escalateRevision(ctx, r)
		default:
			if r.st != nil && r.st.IsFinalized {
				slog.InfoContext(ctx, "conversation already finalized, skipping",
					"phase", r.st.Phase,
					"finalized_at", r.st.FinalizedAt)
			} else {
				slog.InfoContext(ctx, "no new fields to ask")
			}
			return r.outcome(ActionNone), nil
		}
	}
}

// resolveParticipant picks whose conversation the event belongs to. Comments
// from anyone but the issue author only count when they carry a command.
func (o *Orchestrator) resolveParticipant(ev model.Event) (string, Command, bool) {
	switch ev.Type {
	case model.EventIssueOpened:
		return ev.Issue.Author, CommandNone, ev.Issue.Author != ""
	case model.EventCommentCreated:
		if ev.Comment == nil || o.isBot(ev.Comment.Author) {
			return "", CommandNone, false
		}
		command := ParseCommand(ev.Comment.Body)
		if command != CommandNone {
			return ev.Comment.Author, command, true
		}
		if strings.EqualFold(ev.Comment.Author, ev.Issue.Author) {
			return ev.Issue.Author, CommandNone, true
		}
	}
	return "", CommandNone, false
}

func (o *Orchestrator) isBot(author string) bool {
	return o.cfg.BotUsername != "" && strings.EqualFold(author, o.cfg.BotUsername)
}

func (o *Orchestrator) score(ctx context.Context, r *run, obs *Observation) error {
	category, err := o.category(ctx, r)
	if err != nil {
		return err
	}
	r.category = category

	if IsOffTopic(category) {
		obs.OffTopic = true
		return nil
	}

	checklist, ok := o.pack.Checklist(category)
	if !ok {
		return &RunError{Stage: StageChecklist, Err: fmt.Errorf("%w: %s", ErrChecklistMissing, category)}
	}

	fields, err := o.extract(ctx, r, checklist.FieldNames())
	if err != nil {
		return err
	}
	res := o.scorer.Score(fields, checklist)
	r.fields = fields
	r.result = &res

	if r.st == nil {
		r.st = state.NewState(category, r.participant, o.now())
	} else if r.st.Category == "" || r.st.Category == state.UnknownCategory {
		r.st.Category = category
	}

	obs.Scored = true
	obs.Actionable = res.Actionable
	obs.PendingFields = len(pendingFields(res.Missing, r.st.AskedFields))

	slog.InfoContext(ctx, "issue scored",
		"category", category,
		"score", res.Score,
		"threshold", res.Threshold,
		"missing", res.Missing,
		"invalid", res.Invalid)
	return nil
}

// category is sticky: once a state carries one it is reused.
func (o *Orchestrator) category(ctx context.Context, r *run) (string, error) {
	if r.st != nil && r.st.Category != "" && r.st.Category != state.UnknownCategory {
		return r.st.Category, nil
	}

	issue := r.ev.Issue
	if category, source, ok := ResolveCategory(o.pack, issue.Title, issue.Body); ok {
		slog.InfoContext(ctx, "category resolved", "category", category, "source", source)
		return category, nil
	}

	cls, err := o.gateway.ClassifyCategory(ctx, issue.Title, o.redactor.Text(issue.Body), o.pack.CategoryNames())
	if err != nil {
		return "", llmError(ctx, StageClassify, fmt.Errorf("classifying issue: %w", err))
	}
	if cls.Category == "" {
		return state.UnknownCategory, nil
	}
	slog.InfoContext(ctx, "category resolved",
		"category", cls.Category,
		"source", SourceClassifier,
		"confidence", cls.Confidence,
		"degraded", cls.Degraded())
	return cls.Category, nil
}

// extract merges the deterministic parse of the issue body with the model's
// extraction over the body and the participant's comments. Secret findings
// are collected on r for the brief.
func (o *Orchestrator) extract(ctx context.Context, r *run, required []string) (model.Fields, error) {
	body := o.redactor.Redact(r.ev.Issue.Body)
	deterministic := parser.Merge(parser.ParseSections(body.Text), parser.ExtractKeyValueLines(body.Text))

	comments := o.redactor.Redact(strings.Join(r.participantComments(o.cfg.BotUsername), "\n\n---\n\n"))
	r.findings = append(append([]string(nil), body.Findings...), comments.Findings...)

	extracted, err := o.gateway.ExtractFields(ctx, body.Text, comments.Text, required)
	if err != nil {
		return nil, llmError(ctx, StageExtract, fmt.Errorf("extracting fields: %w", err))
	}

	fields := parser.Merge(deterministic, extracted)
	slog.DebugContext(ctx, "fields extracted",
		"deterministic", len(deterministic),
		"model", len(extracted),
		"merged", len(fields))
	return fields, nil
}

func (o *Orchestrator) finalize(ctx context.Context, r *run) (*Outcome, error) {
	issue := r.ev.Issue
	playbook := o.pack.Playbook(r.category)
	docs := o.repoDocs(ctx, r)
	duplicates := o.duplicates(ctx, r)

	brief, err := o.gateway.GenerateBrief(ctx, agent.BriefInput{
		IssueBody:  o.redactor.Text(issue.Body),
		Comments:   o.redactor.Text(strings.Join(r.nonBotComments(o.cfg.BotUsername), "\n\n")),
		Category:   r.category,
		Fields:     r.fields,
		Playbook:   playbook,
		RepoDocs:   docs,
		Duplicates: duplicates,
	})
	if err != nil {
		return nil, llmError(ctx, StageBrief, fmt.Errorf("generating brief: %w", err))
	}

	now := o.now()
	r.st.IsActionable = true
	r.st.CompletenessScore = r.result.Score
	r.st.Finalize(model.PhaseActionable, now)

	body := compose.Brief(brief, *r.result, r.fields, o.secretWarnings(r), r.participant)
	posted, err := o.publish(ctx, r, o.redactor.Text(body), true)
	if err != nil {
		return nil, err
	}

	if route, ok := o.pack.Route(r.category); ok {
		o.applyLabels(ctx, r, route.Labels)
		o.applyAssignees(ctx, r, route.Assignees)
	}

	slog.InfoContext(ctx, "issue finalized as actionable", "score", r.result.Score, "comment_id", posted.ID)
	out := r.outcome(ActionFinalize)
	out.CommentID = &posted.ID
	return out, nil
}

func (o *Orchestrator) escalate(ctx context.Context, r *run) (*Outcome, error) {
	r.st.IsActionable = false
	r.st.CompletenessScore = r.result.Score
	r.st.Finalize(model.PhaseEscalated, o.now())

	body := compose.Escalation(*r.result, o.pack.Routing.EscalationMentions, r.st.LoopCount)
	posted, err := o.publish(ctx, r, body, false)
	if err != nil {
		return nil, err
	}
	o.applyLabels(ctx, r, []string{LabelNeedsMaintainer, LabelIncompleteInfo})

	slog.InfoContext(ctx, "issue escalated after follow-up rounds",
		"loop_count", r.st.LoopCount,
		"score", r.result.Score)
	out := r.outcome(ActionEscalate)
	out.CommentID = &posted.ID
	return out, nil
}

func (o *Orchestrator) askFollowUps(ctx context.Context, r *run) (*Outcome, error) {
	pending := pendingFields(r.result.Missing, r.st.AskedFields)
	questions, err := o.gateway.GenerateFollowUps(ctx, o.redactor.Text(r.ev.Issue.Body), r.category, pending, r.st.AskedFields)
	if err != nil {
		return nil, llmError(ctx, StageFollowUps, fmt.Errorf("generating follow-up questions: %w", err))
	}
	if len(questions) == 0 {
		slog.InfoContext(ctx, "no follow-up questions generated", "pending", pending)
		return r.outcome(ActionNone), nil
	}

	r.st.LoopCount++
	for _, q := range questions {
		if q.Field != "" {
			r.st.AskedFields = append(r.st.AskedFields, q.Field)
		}
	}
	state.Prune(r.st, state.DefaultMaxAsked)
	r.st.CompletenessScore = r.result.Score
	r.st.Phase = model.PhaseLooping
	r.st.LastUpdated = o.now()

	body := compose.FollowUp(questions, r.st.LoopCount, o.limits.MaxLoops, r.participant)
	posted, err := o.publish(ctx, r, body, false)
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "follow-up questions posted",
		"round", r.st.LoopCount,
		"questions", len(questions))
	out := r.outcome(ActionAskFollowUps)
	out.CommentID = &posted.ID
	return out, nil
}

func (o *Orchestrator) offTopic(ctx context.Context, r *run) (*Outcome, error) {
	if r.st == nil {
		r.st = state.NewState(OffTopicCategory, r.participant, o.now())
	}
	r.st.Category = OffTopicCategory
	r.st.Finalize(model.PhaseOffTopicFinal, o.now())

	posted, err := o.publish(ctx, r, compose.OffTopic(r.participant), false)
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "issue finalized as off-topic")
	out := r.outcome(ActionOffTopic)
	out.CommentID = &posted.ID
	return out, nil
}

func (o *Orchestrator) optOut(ctx context.Context, r *run) (*Outcome, error) {
	if r.st == nil {
		r.st = state.NewState(state.UnknownCategory, r.participant, o.now())
	}
	r.st.Finalize(model.PhaseOptedOut, o.now())

	posted, err := o.publish(ctx, r, compose.OptOut(r.participant), false)
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "participant opted out")
	out := r.outcome(ActionOptOut)
	out.CommentID = &posted.ID
	return out, nil
}

// revise regenerates the brief from freshly extracted fields and the
// participant's pushback. A category without a checklist is revised from the
// deterministic fields alone.
func (o *Orchestrator) revise(ctx context.Context, r *run) (*Outcome, error) {
	r.category = r.st.Category
	checklist, _ := o.pack.Checklist(r.category)
	fields, err := o.extract(ctx, r, checklist.FieldNames())
	if err != nil {
		return nil, err
	}
	r.fields = fields

	brief, err := o.gateway.ReviseBrief(ctx, agent.RevisionInput{
		PreviousBrief: o.previousBrief(r),
		Feedback:      o.redactor.Text(r.ev.Comment.Body),
		Category:      r.category,
		Fields:        fields,
		Playbook:      o.pack.Playbook(r.category),
	})
	if err != nil {
		return nil, llmError(ctx, StageRevise, fmt.Errorf("revising brief: %w", err))
	}

	// revisions are only produced for reports already judged actionable
	r.result = &scoring.Result{Category: r.category, Score: 100, Actionable: true, Missing: []string{}}

	r.st.BriefIterationCount++
	r.st.Phase = model.PhaseRevising
	r.st.LastUpdated = o.now()

	body := compose.RevisedBrief(compose.Brief(brief, *r.result, fields, o.secretWarnings(r), r.participant))
	posted, err := o.publish(ctx, r, o.redactor.Text(body), true)
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "revised brief posted", "iteration", r.st.BriefIterationCount)
	out := r.outcome(ActionRevise)
	out.CommentID = &posted.ID
	return out, nil
}

func (o *Orchestrator) escalateRevision(ctx context.Context, r *run) (*Outcome, error) {
	r.st.BriefIterationCount++
	r.st.Finalize(model.PhaseEscalated, o.now())

	posted, err := o.publish(ctx, r, compose.RevisionEscalation(o.pack.Routing.EscalationMentions), false)
	if err != nil {
		return nil, err
	}
	o.applyLabels(ctx, r, []string{LabelNeedsMaintainer})

	slog.InfoContext(ctx, "escalated after brief revisions", "iterations", r.st.BriefIterationCount)
	out := r.outcome(ActionEscalateRevision)
	out.CommentID = &posted.ID
	return out, nil
}

// publish attaches r.st to body, posts it and commits the state. With
// recordBrief the posted comment becomes the conversation's brief.
func (o *Orchestrator) publish(ctx context.Context, r *run, body string, recordBrief bool) (*model.Comment, error) {
	out, err := o.store.Prepare(ctx, r.key, body, r.st)
	if err != nil {
		return nil, stateError(StagePrepare, fmt.Errorf("preparing state: %w", err))
	}

	posted, err := o.tracker.PostComment(ctx, r.ref, out)
	if err != nil {
		return nil, trackerError(StagePost, fmt.Errorf("posting comment: %w", err))
	}
	if posted == nil {
		posted = &model.Comment{}
	}
	if recordBrief && posted.ID != 0 {
		r.st.BriefCommentID = logger.Ptr(posted.ID)
	}

	if err := o.store.Commit(ctx, r.key, r.prev, r.st); err != nil {
		return nil, stateError(StageCommit, fmt.Errorf("committing state: %w", err))
	}
	return posted, nil
}

func (o *Orchestrator) applyLabels(ctx context.Context, r *run, labels []string) {
	if len(labels) == 0 {
		return
	}
	if err := o.tracker.AddLabels(ctx, r.ref, labels); err != nil {
		slog.WarnContext(ctx, "failed to add labels", "labels", labels, "error", err)
	}
}

// applyAssignees skips entries starting with "@", which packs use as
// placeholders for teams.
func (o *Orchestrator) applyAssignees(ctx context.Context, r *run, assignees []string) {
	var valid []string
	for _, a := range assignees {
		a = strings.TrimSpace(a)
		if a == "" || strings.HasPrefix(a, "@") {
			continue
		}
		valid = append(valid, a)
	}
	if len(valid) == 0 {
		return
	}
	if err := o.tracker.AddAssignees(ctx, r.ref, valid); err != nil {
		slog.WarnContext(ctx, "failed to add assignees", "assignees", valid, "error", err)
	}
}

func (o *Orchestrator) repoDocs(ctx context.Context, r *run) string {
	branch := r.ev.Repository.DefaultBranch
	if branch == "" {
		branch = "main"
	}

	var parts []string
	for _, path := range repoDocFiles {
		content, err := o.tracker.GetFile(ctx, r.ref, path, branch)
		if err != nil {
			slog.WarnContext(ctx, "failed to fetch repository doc", "path", path, "error", err)
			continue
		}
		if strings.TrimSpace(content) != "" {
			parts = append(parts, content)
		}
	}

	docs := strings.TrimSpace(strings.Join(parts, "\n\n"))
	if len(docs) > maxRepoDocs {
		docs = strings.ToValidUTF8(docs[:maxRepoDocs], "") + "..."
	}
	return docs
}

// duplicates searches with the first few long words of the error message.
func (o *Orchestrator) duplicates(ctx context.Context, r *run) []model.IssueSummary {
	msg, ok := r.fields.Get("error_message")
	if !ok {
		return nil
	}

	var words []string
	for _, w := range strings.Fields(msg) {
		if utf8.RuneCountInString(w) >= minDuplicateWord {
			words = append(words, w)
		}
		if len(words) == duplicateWords {
			break
		}
	}
	if len(words) == 0 {
		return nil
	}

	hits, err := o.tracker.SearchIssues(ctx, r.ref, strings.Join(words, " "), duplicateLimit)
	if err != nil {
		slog.WarnContext(ctx, "duplicate search failed", "error", err)
		return nil
	}

	var out []model.IssueSummary
	for _, h := range hits {
		if h.Number != r.ref.Number {
			out = append(out, h)
		}
	}
	return out
}

// secretWarnings combines what redaction removed from the inputs with any
// secret still visible in the field values.
func (o *Orchestrator) secretWarnings(r *run) []string {
	found := o.redactor.Redact(strings.Join(r.fields.Values(), "\n")).Findings
	seen := make(map[string]bool)
	var out []string
	for _, f := range append(append([]string(nil), r.findings...), found...) {
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out
}

// previousBrief returns the participant's latest brief. The comment store
// encodes state before the brief is posted, so its markers never carry the
// brief's id; the fallback is the newest bot comment whose state is
// actionable or revising for this participant.
func (o *Orchestrator) previousBrief(r *run) string {
	if r.st.BriefCommentID != nil {
		for _, c := range r.history {
			if c.ID == *r.st.BriefCommentID {
				return state.Strip(c.Body)
			}
		}
	}

	for i := len(r.history) - 1; i >= 0; i-- {
		c := r.history[i]
		if !o.isBot(c.Author) {
			continue
		}
		st, ok := state.Decode(c.Body)
		if !ok || !strings.EqualFold(st.Participant, r.participant) {
			continue
		}
		if st.Phase == model.PhaseActionable || st.Phase == model.PhaseRevising {
			return state.Strip(c.Body)
		}
	}
	return ""
}

func (r *run) participantComments(bot string) []string {
	var out []string
	for _, c := range r.history {
		if strings.EqualFold(c.Author, r.participant) && !strings.EqualFold(c.Author, bot) {
			out = append(out, c.Body)
		}
	}
	return out
}

func (r *run) nonBotComments(bot string) []string {
	var out []string
	for _, c := range r.history {
		if !strings.EqualFold(c.Author, bot) {
			out = append(out, c.Body)
		}
	}
	return out
}

// pendingFields is missing minus asked, compared case-insensitively.
func pendingFields(missing, asked []string) []string {
	seen := make(map[string]bool, len(asked))
	for _, a := range asked {
		seen[strings.ToLower(a)] = true
	}
	pending := []string{}
	for _, m := range missing {
		if !seen[strings.ToLower(m)] {
			pending = append(pending, m)
		}
	}
	return pending
}
