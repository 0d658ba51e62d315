package conversation

// Command is the closed set of inputs the engine accepts. Dispatch switches
// over every variant; a new command needs a new case there.
type Command interface {
	command()
	User() int64
}

type (
	// Start begins onboarding. ReferralCode is optional.
	Start struct {
		UserID       int64
		DisplayName  string
		ReferralCode string
	}
	SubmitOnboardingStep struct {
		UserID int64
		Text   string
	}
	StartDailyLog struct {
		UserID int64
	}
	SubmitLogStep struct {
		UserID int64
		Text   string
	}
	IssueReferral struct {
		UserID int64
	}
	ViewWagerStatus struct {
		UserID int64
	}
	StartPayment struct {
		UserID int64
	}
	SubmitPaymentAmount struct {
		UserID int64
		Text   string
	}
	StopWager struct {
		UserID int64
	}
	Cancel struct {
		UserID int64
	}
	// SubmitText routes free text to whichever workflow is active.
	SubmitText struct {
		UserID int64
		Text   string
	}
	ShowCommands struct {
		UserID int64
	}
)

func (Start) command()                {}
func (SubmitOnboardingStep) command() {}
func (StartDailyLog) command()        {}
func (SubmitLogStep) command()        {}
func (IssueReferral) command()        {}
func (ViewWagerStatus) command()      {}
func (StartPayment) command()         {}
func (SubmitPaymentAmount) command()  {}
func (StopWager) command()            {}
func (Cancel) command()               {}
func (SubmitText) command()           {}
func (ShowCommands) command()         {}

func (c Start) User() int64                { return c.UserID }
func (c SubmitOnboardingStep) User() int64 { return c.UserID }
func (c StartDailyLog) User() int64        { return c.UserID }
func (c SubmitLogStep) User() int64        { return c.UserID }
func (c IssueReferral) User() int64        { return c.UserID }
func (c ViewWagerStatus) User() int64      { return c.UserID }
func (c StartPayment) User() int64         { return c.UserID }
func (c SubmitPaymentAmount) User() int64  { return c.UserID }
func (c StopWager) User() int64            { return c.UserID }
func (c Cancel) User() int64               { return c.UserID }
func (c SubmitText) User() int64           { return c.UserID }
func (c ShowCommands) User() int64         { return c.UserID }

// Action identifies a menu button. The transport encodes it as callback
// data and decodes it back with ParseAction.
type Action string

const (
	ActionReferral Action = "ref_link"
	ActionStatus   Action = "bet_status"
	ActionDailyLog Action = "daily_log"
)

// ParseAction maps callback data to a command. Unknown data yields false.
func ParseAction(data string, userID int64) (Command, bool) {
	switch Action(data) {
	case ActionReferral:
		return IssueReferral{UserID: userID}, true
	case ActionStatus:
		return ViewWagerStatus{UserID: userID}, true
	case ActionDailyLog:
		return StartDailyLog{UserID: userID}, true
	default:
		return nil, false
	}
}
