package domain

import (
	"fmt"
	"net/http"
	"strings"

	apperrors "github.com/Uebook/Luna-sub002/pkg/errors"
	"github.com/Uebook/Luna-sub002/pkg/slug"
)

// Role identifies who wrote a transcript message.
type Role string

const (
	RoleBot  Role = "bot"
	RoleUser Role = "user"
)

// Message is one transcript entry. Chips are quick replies the client can
// offer next to the text.
type Message struct {
	Role  Role     `json:"role"`
	Text  string   `json:"text,omitempty"`
	Chips []string `json:"chips,omitempty"`
}

func botSays(text string, chips ...string) Message {
	return Message{Role: RoleBot, Text: text, Chips: chips}
}

func userSays(text string) Message {
	return Message{Role: RoleUser, Text: text}
}

// FlowKind names a conversation script.
type FlowKind string

const (
	FlowProductSearch FlowKind = "product_search"
	FlowSupport       FlowKind = "support"
)

// ParseFlowKind validates a flow name. An empty name selects product search.
func ParseFlowKind(s string) (FlowKind, error) {
	switch FlowKind(strings.TrimSpace(s)) {
	case "", FlowProductSearch:
		return FlowProductSearch, nil
	case FlowSupport:
		return FlowSupport, nil
	default:
		return "", apperrors.InvalidInput(fmt.Sprintf("unknown flow %q, want %s or %s", s, FlowProductSearch, FlowSupport))
	}
}

// Step is a state of a flow.
type Step string

// Product search steps.
const (
	StepCategory    Step = "category"
	StepSubcategory Step = "subcategory"
	StepBudget      Step = "budget"
	StepResults     Step = "results"
)

// Support steps.
const (
	StepIssue    Step = "issue"
	StepDescribe Step = "describe"
	StepOrder    Step = "order"
	StepHandoff  Step = "handoff"
)

var (
	// ErrFlowFinished is returned for input after the final step.
	ErrFlowFinished = &apperrors.AppError{
		Code:    "FLOW_FINISHED",
		Message: "conversation has finished, start a new session",
		Status:  http.StatusConflict,
		Err:     apperrors.ErrConflict,
	}

	// ErrEmptyReply is returned for blank input.
	ErrEmptyReply = apperrors.InvalidInput("reply text is required")
)

// Transition is the outcome of one user reply. From equals To when the
// input was not accepted and the bot asked again.
type Transition struct {
	From     Step
	To       Step
	Messages []Message
}

// Advanced reports whether the reply moved the flow forward.
func (t Transition) Advanced() bool {
	return t.From != t.To
}

// Flow is a forward-only conversation script. Implementations are not safe
// for concurrent use.
type Flow interface {
	Kind() FlowKind
	Step() Step
	Done() bool
	// Start returns the opening bot messages.
	Start() []Message
	// Handle consumes one user reply.
	Handle(text string) (Transition, error)
	// Answers returns what has been collected so far.
	Answers() any
	// Results returns the products found, nil for flows without results.
	Results() []Product
}

// NewFlow creates a flow of the given kind.
func NewFlow(kind FlowKind, catalog Catalog) (Flow, error) {
	switch kind {
	case FlowProductSearch:
		return NewProductSearch(catalog), nil
	case FlowSupport:
		return NewSupport(), nil
	default:
		return nil, apperrors.InvalidInput(fmt.Sprintf("unknown flow %q", kind))
	}
}

// matchChoice returns the choice that text names, compared by slug so case,
// spacing and punctuation do not matter.
func matchChoice(choices []string, text string) (string, bool) {
	want := slug.Generate(text)
	if want == "" {
		return "", false
	}
	for _, c := range choices {
		if slug.Generate(c) == want {
			return c, true
		}
	}
	return "", false
}
