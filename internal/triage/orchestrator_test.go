package triage_test

import (
	"context"
	"errors"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/concierge/internal/agent"
	"basegraph.app/concierge/internal/compose"
	"basegraph.app/concierge/internal/model"
	"basegraph.app/concierge/internal/service/issue_tracker"
	"basegraph.app/concierge/internal/specpack"
	"basegraph.app/concierge/internal/state"
	"basegraph.app/concierge/internal/triage"
)

const (
	runtimeBody    = "### Version\n1.2.3\n\n### Error message\nsegfault inside renderer module"
	incompleteBody = "### Operating system\nUbuntu 22.04"
)

var _ = Describe("Orchestrator", func() {
	var (
		ctx     context.Context
		pack    *specpack.Pack
		tracker *fakeTracker
		gateway *fakeGateway
		orch    *triage.Orchestrator
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		pack, err = specpack.Load("../specpack/testdata/pack")
		Expect(err).NotTo(HaveOccurred())

		tracker = newFakeTracker()
		gateway = &fakeGateway{
			brief: agent.Brief{Summary: "Renderer segfaults on start", NextSteps: []string{"Check the GPU driver"}},
			followUps: []agent.FollowUp{
				{Field: "build_system", Question: "Which build tool are you using?"},
				{Field: "error_message", Question: "What is the exact error?"},
			},
		}
		orch, err = triage.New(tracker, state.NewCommentStore(), gateway, pack, triage.Config{BotUsername: botName})
		Expect(err).NotTo(HaveOccurred())
	})

	priorState := func(st *model.ConversationState) model.Comment {
		body, err := state.Encode("earlier reply", st)
		Expect(err).NotTo(HaveOccurred())
		return tracker.comment(botName, body)
	}

	decodeLast := func() *model.ConversationState {
		st, ok := state.Decode(tracker.lastPost())
		Expect(ok).To(BeTrue())
		return st
	}

	Describe("participant resolution", func() {
		It("ignores comments from other users without a command", func() {
			ev := commentEvent(issueEvent("Crash", runtimeBody), model.Comment{ID: 1, Author: "bob", Body: "same here"})

			out, err := orch.Handle(ctx, ev)
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Action).To(Equal(triage.ActionIgnore))
			Expect(tracker.listCalls).To(Equal(0))
		})

		It("ignores the bot's own comments even though they list the commands", func() {
			ev := commentEvent(issueEvent("Crash", runtimeBody), model.Comment{ID: 1, Author: botName, Body: "Use /stop or /diagnose"})

			out, err := orch.Handle(ctx, ev)
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Action).To(Equal(triage.ActionIgnore))
			Expect(tracker.posted).To(BeEmpty())
		})
	})

	Describe("a complete report", func() {
		BeforeEach(func() {
			tracker.files["README.md"] = "# Widgets\nRun widgets --safe-mode to disable the renderer."
			tracker.searchHits = []model.IssueSummary{
				{Number: 7, Title: "this issue"},
				{Number: 3, Title: "Renderer segfault on Wayland"},
			}
		})

		It("posts a brief, routes it and finalizes as actionable", func() {
			out, err := orch.Handle(ctx, issueEvent("App crashes on launch", runtimeBody))
			Expect(err).NotTo(HaveOccurred())

			Expect(out.Action).To(Equal(triage.ActionFinalize))
			Expect(out.Phase).To(Equal(model.PhaseActionable))
			Expect(out.Category).To(Equal("runtime"))
			Expect(out.Score.Score).To(Equal(100))
			Expect(out.CommentID).NotTo(BeNil())

			body := tracker.lastPost()
			Expect(body).To(HavePrefix("@alice"))
			Expect(body).To(ContainSubstring("Renderer segfaults on start"))
			Expect(body).To(ContainSubstring("**Completeness Score:** 100/100"))
			Expect(hasMarker(body)).To(BeTrue())

			st := decodeLast()
			Expect(st.IsFinalized).To(BeTrue())
			Expect(st.IsActionable).To(BeTrue())
			Expect(st.Phase).To(Equal(model.PhaseActionable))
			Expect(st.Participant).To(Equal("alice"))

			Expect(tracker.labels).To(Equal([][]string{{"area/runtime"}}))
			Expect(tracker.assignees).To(BeEmpty())
			Expect(gateway.classifyCalls).To(Equal(0))
		})

		It("keeps secrets from the report out of the posted brief", func() {
			out, err := orch.Handle(ctx, issueEvent("App crashes on launch", runtimeBody+"\n\ntoken: hunter2pw"))
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Action).To(Equal(triage.ActionFinalize))

			body := tracker.lastPost()
			Expect(body).To(ContainSubstring("Found API Key"))
			Expect(body).NotTo(ContainSubstring("hunter2pw"))
			Expect(body).NotTo(ContainSubstring("hunter"))
			Expect(gateway.briefInputs[0].IssueBody).NotTo(ContainSubstring("hunter2pw"))
		})

		It("hands the posted brief to a later revision", func() {
			_, err := orch.Handle(ctx, issueEvent("App crashes on launch", runtimeBody))
			Expect(err).NotTo(HaveOccurred())

			reply := tracker.comment("alice", "That didn't work")
			out, err := orch.Handle(ctx, commentEvent(issueEvent("App crashes on launch", runtimeBody), reply))
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Action).To(Equal(triage.ActionRevise))

			Expect(gateway.revisionInputs).To(HaveLen(1))
			previous := gateway.revisionInputs[0].PreviousBrief
			Expect(previous).To(ContainSubstring("Renderer segfaults on start"))
			Expect(hasMarker(previous)).To(BeFalse())
		})

		It("feeds docs and duplicates other than the issue itself to the brief", func() {
			_, err := orch.Handle(ctx, issueEvent("App crashes on launch", runtimeBody))
			Expect(err).NotTo(HaveOccurred())

			Expect(tracker.searchQueries).To(Equal([]string{"segfault inside renderer"}))
			Expect(gateway.briefInputs).To(HaveLen(1))
			in := gateway.briefInputs[0]
			Expect(in.Category).To(Equal("runtime"))
			Expect(in.RepoDocs).To(ContainSubstring("--safe-mode"))
			Expect(in.Duplicates).To(ConsistOf(model.IssueSummary{Number: 3, Title: "Renderer segfault on Wayland"}))
		})

		It("skips placeholder assignees", func() {
			body := "### Operating system\nLinux\n\n### Build system\ncmake 3.28\n\n### Error message\nundefined reference to main"
			out, err := orch.Handle(ctx, issueEvent("Build fails at link step", body))
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Category).To(Equal("build"))
			Expect(out.Action).To(Equal(triage.ActionFinalize))
			Expect(tracker.labels).To(Equal([][]string{{"area/build", "triage/ready"}}))
			Expect(tracker.assignees).To(Equal([][]string{{"build-oncall"}}))
		})

		It("does nothing more once finalized", func() {
			_, err := orch.Handle(ctx, issueEvent("App crashes on launch", runtimeBody))
			Expect(err).NotTo(HaveOccurred())
			posts := len(tracker.posted)

			reply := tracker.comment("alice", "Thanks, I'll try that")
			out, err := orch.Handle(ctx, commentEvent(issueEvent("App crashes on launch", runtimeBody), reply))
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Action).To(Equal(triage.ActionNone))
			Expect(tracker.posted).To(HaveLen(posts))
		})
	})

	Describe("an incomplete report", func() {
		It("asks follow-up questions and records them", func() {
			out, err := orch.Handle(ctx, issueEvent("Build fails with linker error", incompleteBody))
			Expect(err).NotTo(HaveOccurred())

			Expect(out.Action).To(Equal(triage.ActionAskFollowUps))
			Expect(gateway.missingAsked[0]).To(ConsistOf("build_system", "error_message", "logs"))

			body := tracker.lastPost()
			Expect(body).To(ContainSubstring("Which build tool are you using?"))
			Expect(body).To(ContainSubstring("follow-up round 1 of 3"))

			st := decodeLast()
			Expect(st.Category).To(Equal("build"))
			Expect(st.LoopCount).To(Equal(1))
			Expect(st.AskedFields).To(Equal([]string{"build_system", "error_message"}))
			Expect(st.Phase).To(Equal(model.PhaseLooping))
			Expect(st.IsFinalized).To(BeFalse())
		})

		It("only asks for fields not asked before", func() {
			priorState(&model.ConversationState{
				Category:    "build",
				LoopCount:   1,
				AskedFields: []string{"build_system", "error_message"},
				Participant: "alice",
				Phase:       model.PhaseLooping,
			})
			reply := tracker.comment("alice", "I don't know")
			gateway.followUps = []agent.FollowUp{{Field: "logs", Question: "Can you attach the build log?"}}

			out, err := orch.Handle(ctx, commentEvent(issueEvent("Build fails with linker error", incompleteBody), reply))
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Action).To(Equal(triage.ActionAskFollowUps))
			Expect(gateway.missingAsked[0]).To(Equal([]string{"logs"}))

			st := decodeLast()
			Expect(st.LoopCount).To(Equal(2))
			Expect(st.AskedFields).To(Equal([]string{"build_system", "error_message", "logs"}))
		})

		It("uses the participant's replies for extraction", func() {
			priorState(&model.ConversationState{Category: "build", LoopCount: 1, Participant: "alice", Phase: model.PhaseLooping})
			tracker.comment("bob", "me too")
			reply := tracker.comment("alice", "Build system: ninja")

			_, err := orch.Handle(ctx, commentEvent(issueEvent("Build fails with linker error", incompleteBody), reply))
			Expect(err).NotTo(HaveOccurred())
			Expect(gateway.extractInputs).To(Equal([]string{"Build system: ninja"}))
		})

		It("posts nothing when no questions come back", func() {
			gateway.followUps = nil
			out, err := orch.Handle(ctx, issueEvent("Build fails with linker error", incompleteBody))
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Action).To(Equal(triage.ActionNone))
			Expect(tracker.posted).To(BeEmpty())
		})

		It("escalates after the last round", func() {
			priorState(&model.ConversationState{
				Category:    "build",
				LoopCount:   3,
				AskedFields: []string{"build_system", "error_message", "logs"},
				Participant: "alice",
				Phase:       model.PhaseLooping,
			})
			reply := tracker.comment("alice", "not sure")

			out, err := orch.Handle(ctx, commentEvent(issueEvent("Build fails with linker error", incompleteBody), reply))
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Action).To(Equal(triage.ActionEscalate))
			Expect(gateway.followUpCalls).To(Equal(0))

			Expect(tracker.lastPost()).To(ContainSubstring("Escalation Notice"))
			Expect(tracker.lastPost()).To(ContainSubstring("@maintainers"))
			Expect(tracker.labels).To(Equal([][]string{{triage.LabelNeedsMaintainer, triage.LabelIncompleteInfo}}))

			st := decodeLast()
			Expect(st.Phase).To(Equal(model.PhaseEscalated))
			Expect(st.IsFinalized).To(BeTrue())
		})
	})

	Describe("off-topic reports", func() {
		It("finalizes without scoring", func() {
			out, err := orch.Handle(ctx, issueEvent("Question about themes", "How do I change the colors? Thanks!"))
			Expect(err).NotTo(HaveOccurred())

			Expect(out.Action).To(Equal(triage.ActionOffTopic))
			Expect(out.Score).To(BeNil())
			Expect(gateway.extractCalls).To(Equal(0))

			st := decodeLast()
			Expect(st.Category).To(Equal(triage.OffTopicCategory))
			Expect(st.Phase).To(Equal(model.PhaseOffTopicFinal))
		})
	})

	Describe("commands", func() {
		It("opts a participant out and creates their state", func() {
			stop := tracker.comment("bob", "/stop please")
			out, err := orch.Handle(ctx, commentEvent(issueEvent("Crash", runtimeBody), stop))
			Expect(err).NotTo(HaveOccurred())

			Expect(out.Action).To(Equal(triage.ActionOptOut))
			Expect(out.Participant).To(Equal("bob"))
			Expect(tracker.lastPost()).To(HavePrefix(compose.OptOut("bob")))
			Expect(gateway.extractCalls).To(Equal(0))

			st := decodeLast()
			Expect(st.Category).To(Equal(state.UnknownCategory))
			Expect(st.Participant).To(Equal("bob"))
			Expect(st.Phase).To(Equal(model.PhaseOptedOut))
		})

		It("opts out even when the category has no checklist", func() {
			priorState(&model.ConversationState{Category: "docs", Participant: "alice", Phase: model.PhaseLooping})
			stop := tracker.comment("alice", "/stop")

			out, err := orch.Handle(ctx, commentEvent(issueEvent("Docs", "typo"), stop))
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Action).To(Equal(triage.ActionOptOut))
			Expect(decodeLast().Category).To(Equal("docs"))
		})

		It("reactivates an opted out participant with /diagnose", func() {
			now := time.Now()
			priorState(&model.ConversationState{
				Category:    state.UnknownCategory,
				Participant: "bob",
				IsFinalized: true,
				FinalizedAt: &now,
				Phase:       model.PhaseOptedOut,
			})
			diagnose := tracker.comment("bob", "/diagnose my build fails too")

			out, err := orch.Handle(ctx, commentEvent(issueEvent("Build fails with linker error", incompleteBody), diagnose))
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Action).To(Equal(triage.ActionAskFollowUps))
			Expect(out.Participant).To(Equal("bob"))

			st := decodeLast()
			Expect(st.Participant).To(Equal("bob"))
			Expect(st.Category).To(Equal("build"))
			Expect(st.IsFinalized).To(BeFalse())
			Expect(st.FinalizedAt).To(BeNil())
		})
	})

	Describe("disagreement with a brief", func() {
		var brief model.Comment

		BeforeEach(func() {
			now := time.Now()
			briefBody, err := state.Encode("**Summary:** first attempt", &model.ConversationState{
				Category:     "runtime",
				Participant:  "alice",
				IsFinalized:  true,
				IsActionable: true,
				FinalizedAt:  &now,
				Phase:        model.PhaseActionable,
			})
			Expect(err).NotTo(HaveOccurred())
			brief = tracker.comment(botName, briefBody)
			gateway.revised = agent.Brief{Summary: "Try disabling the GPU cache"}
		})

		It("posts a revised brief", func() {
			reply := tracker.comment("alice", "That didn't work, token: abc123")
			out, err := orch.Handle(ctx, commentEvent(issueEvent("App crashes on launch", runtimeBody), reply))
			Expect(err).NotTo(HaveOccurred())

			Expect(out.Action).To(Equal(triage.ActionRevise))
			body := tracker.lastPost()
			Expect(body).To(HavePrefix(compose.RevisedBriefPrefix))
			Expect(body).To(ContainSubstring("Try disabling the GPU cache"))
			Expect(body).NotTo(ContainSubstring("abc123"))

			Expect(gateway.revisionInputs).To(HaveLen(1))
			Expect(gateway.revisionInputs[0].Feedback).NotTo(ContainSubstring("abc123"))
			Expect(gateway.revisionInputs[0].PreviousBrief).To(Equal("**Summary:** first attempt"))

			st := decodeLast()
			Expect(st.BriefIterationCount).To(Equal(1))
			Expect(st.Phase).To(Equal(model.PhaseRevising))
			Expect(st.IsFinalized).To(BeTrue())
			Expect(brief.ID).NotTo(BeZero())
		})

		It("escalates on the second disagreement", func() {
			first := tracker.comment("alice", "That didn't work")
			_, err := orch.Handle(ctx, commentEvent(issueEvent("App crashes on launch", runtimeBody), first))
			Expect(err).NotTo(HaveOccurred())

			Expect(gateway.revisionInputs[0].PreviousBrief).To(Equal("**Summary:** first attempt"))

			second := tracker.comment("alice", "Still broken, I disagree")
			out, err := orch.Handle(ctx, commentEvent(issueEvent("App crashes on launch", runtimeBody), second))
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Action).To(Equal(triage.ActionEscalateRevision))
			Expect(tracker.lastPost()).To(ContainSubstring("@maintainers"))
			Expect(tracker.labels).To(ContainElement([]string{triage.LabelNeedsMaintainer}))

			st := decodeLast()
			Expect(st.BriefIterationCount).To(Equal(2))
			Expect(st.Phase).To(Equal(model.PhaseEscalated))

			third := tracker.comment("alice", "didn't work either")
			posts := len(tracker.posted)
			out, err = orch.Handle(ctx, commentEvent(issueEvent("App crashes on launch", runtimeBody), third))
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Action).To(Equal(triage.ActionNone))
			Expect(tracker.posted).To(HaveLen(posts))
		})
	})

	Describe("failures", func() {
		It("reports a missing checklist", func() {
			pack.Categories = append(pack.Categories, specpack.Category{Name: "docs", Keywords: []string{"documentation"}})
			var err error
			orch, err = triage.New(tracker, state.NewCommentStore(), gateway, pack, triage.Config{BotUsername: botName})
			Expect(err).NotTo(HaveOccurred())

			_, err = orch.Handle(ctx, issueEvent("Documentation typo", "the documentation has a typo"))
			Expect(err).To(MatchError(triage.ErrChecklistMissing))
			Expect(triage.IsRetryable(err)).To(BeFalse())
			Expect(tracker.posted).To(BeEmpty())
		})

		It("returns a retryable error when posting is throttled", func() {
			tracker.postErr = &issue_tracker.APIError{StatusCode: http.StatusServiceUnavailable, Method: "POST", Path: "/comments"}

			_, err := orch.Handle(ctx, issueEvent("Build fails with linker error", incompleteBody))
			Expect(err).To(HaveOccurred())
			Expect(triage.IsRetryable(err)).To(BeTrue())

			var runErr *triage.RunError
			Expect(errors.As(err, &runErr)).To(BeTrue())
			Expect(runErr.Stage).To(Equal(triage.StagePost))
		})

		It("does not retry client errors from the tracker", func() {
			tracker.listErr = &issue_tracker.APIError{StatusCode: http.StatusForbidden, Method: "GET", Path: "/comments"}

			_, err := orch.Handle(ctx, issueEvent("Crash", runtimeBody))
			Expect(err).To(HaveOccurred())
			Expect(triage.IsRetryable(err)).To(BeFalse())
		})

		It("treats a state conflict as retryable", func() {
			Expect(triage.IsRetryable(fmtWrap(state.ErrStateConflict))).To(BeTrue())
		})
	})
})

func fmtWrap(err error) error {
	return &triage.RunError{Stage: triage.StageCommit, Err: err}
}
