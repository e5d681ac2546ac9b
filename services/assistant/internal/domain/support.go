package domain

import (
	"regexp"
	"strings"
)

// SupportIssues are the issue chips of the support flow.
var SupportIssues = []string{"Order Issues", "Item Quality", "Payment Issues", "Technical Assistance", "Other"}

var orderNumber = regexp.MustCompile(`\d{6,12}`)

// SupportAnswers is what the support flow has collected.
type SupportAnswers struct {
	Issue       string `json:"issue,omitempty"`
	Description string `json:"description,omitempty"`
	OrderNumber string `json:"order_number,omitempty"`
}

// Support collects an issue, a description and an order number before
// handing the customer over to an agent.
type Support struct {
	step    Step
	answers SupportAnswers
}

// NewSupport starts a support conversation at the issue step.
func NewSupport() *Support {
	return &Support{step: StepIssue}
}

func (f *Support) Kind() FlowKind { return FlowSupport }

func (f *Support) Step() Step { return f.step }

func (f *Support) Done() bool { return f.step == StepHandoff }

func (f *Support) Answers() any { return f.answers }

func (f *Support) Results() []Product { return nil }

func (f *Support) Start() []Message {
	return []Message{
		botSays("Hello! Welcome to Customer Care Service. We will be happy to help you. Please, provide us more details about your issue before we can start."),
		botSays("What's your issue?", SupportIssues...),
	}
}

func (f *Support) Handle(text string) (Transition, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Transition{}, ErrEmptyReply
	}

	t := Transition{From: f.step}
	switch f.step {
	case StepIssue:
		issue, ok := matchChoice(SupportIssues, text)
		if !ok {
			t.Messages = []Message{userSays(text), botSays("Please pick one of the issues below:", SupportIssues...)}
			break
		}
		f.answers.Issue = issue
		f.step = StepDescribe
		t.Messages = []Message{userSays(issue), botSays("Please describe the problem in a few words.")}

	case StepDescribe:
		f.answers.Description = text
		f.step = StepOrder
		t.Messages = []Message{userSays(text), botSays("Thanks. What's the order number? You can find it under My Orders.")}

	case StepOrder:
		number := orderNumber.FindString(strings.ReplaceAll(text, " ", ""))
		if number == "" {
			t.Messages = []Message{userSays(text), botSays("Enter the 6 to 12 digit order number, for example 100234.")}
			break
		}
		f.answers.OrderNumber = number
		f.step = StepHandoff
		t.Messages = []Message{
			userSays(text),
			botSays("Thanks! Connecting you with a Customer Care agent about order #" + number + "."),
		}

	default:
		return Transition{}, ErrFlowFinished
	}

	t.To = f.step
	return t, nil
}
