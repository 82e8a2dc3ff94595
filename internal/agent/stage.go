package agent

import "strings"

type Stage string

const (
	InitialContact   Stage = "INITIAL_CONTACT"
	Analysis         Stage = "ANALYSIS"
	Negotiation      Stage = "NEGOTIATION"
	PendingApproval  Stage = "PENDING_APPROVAL"
	ResumeGeneration Stage = "RESUME_GENERATION"
	Done             Stage = "DONE"
	// Declined ends a thread at analysis without escalation.
	Declined Stage = "DECLINED"
)

// transitions lists every legal move. Moves out of PENDING_APPROVAL and
// RESUME_GENERATION belong to the approval path, never to the model.
var transitions = map[Stage][]Stage{
	InitialContact:   {Analysis},
	Analysis:         {Negotiation, Declined},
	Negotiation:      {PendingApproval},
	PendingApproval:  {ResumeGeneration},
	ResumeGeneration: {Done},
}

var approvalOnly = map[Stage]bool{
	PendingApproval:  true,
	ResumeGeneration: true,
}

// ParseStage accepts stage names case-insensitively. Empty means INITIAL_CONTACT.
func ParseStage(value string) (Stage, bool) {
	value = strings.ToUpper(strings.TrimSpace(value))
	if value == "" {
		return InitialContact, true
	}
	stage := Stage(value)
	switch stage {
	case InitialContact, Analysis, Negotiation, PendingApproval, ResumeGeneration, Done, Declined:
		return stage, true
	}
	return "", false
}

func (s Stage) Terminal() bool {
	return s == Done || s == Declined
}

// CanTransition reports whether to directly follows from.
func CanTransition(from, to Stage) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ModelStages lists the stages the model may move to from the current one.
func ModelStages(from Stage) []Stage {
	if approvalOnly[from] {
		return nil
	}
	return transitions[from]
}

// Advance applies a stage proposed by the model. Only a direct move the model
// owns is accepted; otherwise the thread stays where it is.
func Advance(current, proposed Stage) Stage {
	if proposed == "" || proposed == current || approvalOnly[current] {
		return current
	}
	if !CanTransition(current, proposed) {
		return current
	}
	return proposed
}
