// Package messages holds every user-facing text. The catalog is embedded
// YAML so wording can change without touching the engine.
package messages

import (
	_ "embed"
	"fmt"
	"reflect"
	"strings"

	"gopkg.in/yaml.v2"
)

//go:embed messages.yaml
var catalogYAML []byte

type Catalog struct {
	Welcome          string `yaml:"welcome"`
	InvitedBy        string `yaml:"invited_by"`
	ReferralUnknown  string `yaml:"referral_unknown"`
	ReferralSelf     string `yaml:"referral_self"`
	InvalidGoal      string `yaml:"invalid_goal"`
	AskNotifTime     string `yaml:"ask_notif_time"`
	InvalidTime      string `yaml:"invalid_time"`
	AskTimezone      string `yaml:"ask_timezone"`
	InvalidTimezone  string `yaml:"invalid_timezone"`
	AskBook          string `yaml:"ask_book"`
	SetupComplete    string `yaml:"setup_complete"`
	WagerStarted     string `yaml:"wager_started"`
	OperationFailed  string `yaml:"operation_failed"`
	AskPages         string `yaml:"ask_pages"`
	InvalidPages     string `yaml:"invalid_pages"`
	AskNote          string `yaml:"ask_note"`
	LogRecorded      string `yaml:"log_recorded"`
	GoalReached      string `yaml:"goal_reached"`
	GoalMissed       string `yaml:"goal_missed"`
	SetupRequired    string `yaml:"setup_required"`
	NoWorkflow       string `yaml:"no_workflow"`
	Cancelled        string `yaml:"cancelled"`
	NothingToCancel  string `yaml:"nothing_to_cancel"`
	ReferralLink     string `yaml:"referral_link"`
	StatusNone       string `yaml:"status_none"`
	Status           string `yaml:"status"`
	PaymentUnset     string `yaml:"payment_unset"`
	PaymentValue     string `yaml:"payment_value"`
	AskAmount        string `yaml:"ask_amount"`
	InvalidAmount    string `yaml:"invalid_amount"`
	PaymentSet       string `yaml:"payment_set"`
	NoActiveWager    string `yaml:"no_active_wager"`
	WagerStopped     string `yaml:"wager_stopped"`
	Reminder         string `yaml:"reminder"`
	ReminderPlain    string `yaml:"reminder_plain"`
	DefaultBook      string `yaml:"default_book"`
	Menu             string `yaml:"menu"`
	ButtonReferral   string `yaml:"button_referral"`
	ButtonStatus     string `yaml:"button_status"`
	ButtonDailyLog   string `yaml:"button_daily_log"`
}

// Load parses the embedded catalog and checks that no entry is missing.
func Load() (*Catalog, error) {
	var c Catalog
	if err := yaml.UnmarshalStrict(catalogYAML, &c); err != nil {
		return nil, fmt.Errorf("error parsing messages yaml: %w", err)
	}
	if missing := c.missing(); len(missing) > 0 {
		return nil, fmt.Errorf("messages yaml is missing: %s", strings.Join(missing, ", "))
	}
	return &c, nil
}

// MustLoad is Load for package-level wiring and tests.
func MustLoad() *Catalog {
	c, err := Load()
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Catalog) missing() []string {
	var out []string
	v := reflect.ValueOf(c).Elem()
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		if v.Field(i).String() == "" {
			out = append(out, t.Field(i).Tag.Get("yaml"))
		}
	}
	return out
}

// ReminderFor renders the daily reminder. Without a goal it falls back to
// the plain wording.
func (c *Catalog) ReminderFor(book string, goal int) string {
	if goal <= 0 {
		return c.ReminderPlain
	}
	if strings.TrimSpace(book) == "" {
		book = c.DefaultBook
	}
	return fmt.Sprintf(c.Reminder, book, goal)
}
