package conversation

// Outcome is the result class of a dispatched command.
type Outcome int

const (
	// Next means the workflow advanced and is waiting for Step.
	Next Outcome = iota
	// Reprompt means the input was rejected; the step is unchanged.
	Reprompt
	// Done means the command or workflow completed and committed.
	Done
	// Aborted means the command ended without any effect; see Reason.
	Aborted
	// Failed means persistence failed. The workflow stays at its last step
	// so the user can retry.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Next:
		return "next"
	case Reprompt:
		return "reprompt"
	case Done:
		return "done"
	case Aborted:
		return "aborted"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

type Reason int

const (
	ReasonNone Reason = iota
	ReasonCancelled
	ReasonSetupRequired
	ReasonNoWorkflow
	ReasonNoActiveWager
	ReasonNotFound
)

type Step int

const (
	StepNone Step = iota
	StepAwaitGoal
	StepAwaitNotifTime
	StepAwaitTimezone
	StepAwaitBookTitle
	StepAwaitPages
	StepAwaitNote
	StepAwaitAmount
)

// Button is a menu entry rendered by the transport.
type Button struct {
	Label  string
	Action Action
}

// Reply is what the transport shows the user. Notices are extra messages
// sent before Text.
type Reply struct {
	Outcome Outcome
	Reason  Reason
	Step    Step
	Text    string
	Notices []string
	Menu    []Button
}
