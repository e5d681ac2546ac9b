package domain

import (
	"slices"
	"time"
)

// Session is one running conversation. It is owned by the session store,
// which serializes access to it.
type Session struct {
	ID         string
	Owner      string
	Flow       Flow
	Transcript []Message
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewSession creates a session whose transcript holds the flow's opening
// messages.
func NewSession(id, owner string, flow Flow, now time.Time) *Session {
	return &Session{
		ID:         id,
		Owner:      owner,
		Flow:       flow,
		Transcript: flow.Start(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Reply feeds text to the flow and appends the resulting messages.
func (s *Session) Reply(text string, now time.Time) (Transition, error) {
	t, err := s.Flow.Handle(text)
	if err != nil {
		return Transition{}, err
	}
	s.Transcript = append(s.Transcript, t.Messages...)
	s.UpdatedAt = now
	return t, nil
}

// SessionView is a read-only snapshot of a session.
type SessionView struct {
	ID          string    `json:"id"`
	Owner       string    `json:"owner,omitempty"`
	Flow        FlowKind  `json:"flow"`
	Step        Step      `json:"step"`
	Done        bool      `json:"done"`
	Answers     any       `json:"answers"`
	ResultCount int       `json:"result_count"`
	Transcript  []Message `json:"transcript"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	results []Product
}

// View copies the session state.
func (s *Session) View() SessionView {
	results := s.Flow.Results()
	return SessionView{
		ID:          s.ID,
		Owner:       s.Owner,
		Flow:        s.Flow.Kind(),
		Step:        s.Flow.Step(),
		Done:        s.Flow.Done(),
		Answers:     s.Flow.Answers(),
		ResultCount: len(results),
		Transcript:  slices.Clone(s.Transcript),
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
		results:     slices.Clone(results),
	}
}

// Results returns the products found by the flow.
func (v SessionView) Results() []Product {
	return v.results
}
