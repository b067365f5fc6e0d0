package triage

import (
	"basegraph.app/concierge/internal/model"
)

type Phase = model.Phase

// Command is an explicit instruction a participant typed into a comment.
type Command int

const (
	CommandNone Command = iota
	CommandStop
	CommandDiagnose
)

func (c Command) String() string {
	switch c {
	case CommandStop:
		return "stop"
	case CommandDiagnose:
		return "diagnose"
	default:
		return "none"
	}
}

// Action is the side effect the orchestrator performs for a decision.
type Action string

const (
	ActionNone             Action = "none"
	ActionIgnore           Action = "ignore"
	ActionOptOut           Action = "opt_out"
	ActionReactivate       Action = "reactivate"
	ActionOffTopic         Action = "off_topic"
	ActionScore            Action = "score"
	ActionFinalize         Action = "finalize"
	ActionEscalate         Action = "escalate"
	ActionAskFollowUps     Action = "ask_follow_ups"
	ActionRevise           Action = "revise"
	ActionEscalateRevision Action = "escalate_revision"
)

// Observation is what the orchestrator learned about the current event before
// asking for a decision. Scored, Actionable and PendingFields are only
// meaningful after an ActionScore step.
type Observation struct {
	Reply         bool
	Command       Command
	Disagreement  bool
	OffTopic      bool
	Scored        bool
	Actionable    bool
	PendingFields int
}

type Limits struct {
	MaxLoops           int
	MaxBriefIterations int
}

func DefaultLimits() Limits {
	return Limits{MaxLoops: 3, MaxBriefIterations: 2}
}

type Decision struct {
	Next   Phase
	Action Action
}

// Transition decides the next phase and action. It is pure: st is read, never
// written, and a nil st is a conversation that has not started.
func Transition(st *model.ConversationState, obs Observation, limits Limits) Decision {
	current := model.PhaseNew
	var loops, briefs int
	finalized := false
	if st != nil {
		current = phaseOf(st)
		loops = st.LoopCount
		briefs = st.BriefIterationCount
		finalized = st.IsFinalized
	}

	if obs.Command == CommandStop {
		return Decision{Next: model.PhaseOptedOut, Action: ActionOptOut}
	}

	if current == model.PhaseOptedOut && obs.Command == CommandDiagnose {
		return Decision{Next: model.PhaseLooping, Action: ActionReactivate}
	}

	if finalized {
		if obs.Reply && obs.Disagreement && revisable(st) && briefs < limits.MaxBriefIterations {
			if briefs+1 >= limits.MaxBriefIterations {
				return Decision{Next: model.PhaseEscalated, Action: ActionEscalateRevision}
			}
			return Decision{Next: model.PhaseRevising, Action: ActionRevise}
		}
		return Decision{Next: current, Action: ActionNone}
	}

	if obs.OffTopic {
		return Decision{Next: model.PhaseOffTopicFinal, Action: ActionOffTopic}
	}

	if !obs.Scored {
		return Decision{Next: current, Action: ActionScore}
	}

	if obs.Actionable {
		return Decision{Next: model.PhaseActionable, Action: ActionFinalize}
	}

	if loops >= limits.MaxLoops {
		return Decision{Next: model.PhaseEscalated, Action: ActionEscalate}
	}

	if obs.PendingFields == 0 {
		return Decision{Next: model.PhaseLooping, Action: ActionNone}
	}

	return Decision{Next: model.PhaseLooping, Action: ActionAskFollowUps}
}

// phaseOf derives the phase of states written before phases were recorded.
func phaseOf(st *model.ConversationState) Phase {
	if st.Phase != "" {
		return st.Phase
	}
	switch {
	case st.IsFinalized && st.IsActionable:
		return model.PhaseActionable
	case st.IsFinalized:
		return model.PhaseEscalated
	case st.LoopCount > 0:
		return model.PhaseLooping
	default:
		return model.PhaseNew
	}
}

// revisable reports whether a finalized conversation may be reopened by a
// disagreement. Opting out is final until /diagnose.
func revisable(st *model.ConversationState) bool {
	return phaseOf(st) != model.PhaseOptedOut
}
