package core

import (
	"strings"
	"time"
	"unicode/utf8"
)

const (
	AppName       = "RecoMate"
	AppUserAgent  = "RecoMate/0.1"
	RepositoryURL = "https://github.com/sandevgo/recomate"
	AppVersion    = "0.1.0"
)

// CategoryUnconstrained is the only category a degraded Intent carries.
const CategoryUnconstrained = "unconstrained"

const maxTitleLength = 60

type TurnStatus string

const (
	TurnResponded TurnStatus = "responded"
	TurnFailed    TurnStatus = "failed"
)

// FailureMessage is returned to the caller for every failed turn.
const FailureMessage = "unable to complete this request"

// Session is a durable conversation thread. Version increments on every
// successful append and is used for compare-and-set by the stores.
type Session struct {
	ID        string            `json:"id"`
	Title     string            `json:"title"`
	Turns     []Turn            `json:"turns"`
	Profile   PreferenceProfile `json:"profile"`
	Version   int64             `json:"version"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

func NewSession(id string) *Session {
	return &Session{
		ID:      id,
		Profile: PreferenceProfile{},
	}
}

// NextSeq returns the sequence number the next appended turn will get.
func (s *Session) NextSeq() int {
	if len(s.Turns) == 0 {
		return 1
	}
	return s.Turns[len(s.Turns)-1].Seq + 1
}

// LastResponded returns the most recent successful turn, or nil.
func (s *Session) LastResponded() *Turn {
	if s == nil {
		return nil
	}
	for i := len(s.Turns) - 1; i >= 0; i-- {
		if s.Turns[i].Status == TurnResponded {
			return &s.Turns[i]
		}
	}
	return nil
}

// TurnBySeq returns the turn with the given sequence number, or nil.
func (s *Session) TurnBySeq(seq int) *Turn {
	if s == nil {
		return nil
	}
	for i := range s.Turns {
		if s.Turns[i].Seq == seq {
			return &s.Turns[i]
		}
	}
	return nil
}

type SessionSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Turns     int       `json:"turns"`
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SessionTitle derives a session title from the first input of the session.
func SessionTitle(input string) string {
	title := strings.Join(strings.Fields(input), " ")
	if utf8.RuneCountInString(title) <= maxTitleLength {
		return title
	}
	runes := []rune(title)
	return strings.TrimSpace(string(runes[:maxTitleLength])) + "..."
}

// Turn is one user input and the system's response. Immutable once stored.
type Turn struct {
	Seq             int               `json:"seq"`
	Input           string            `json:"input"`
	Intent          Intent            `json:"intent"`
	Recommendations RecommendationSet `json:"recommendations"`
	Status          TurnStatus        `json:"status"`
	Failure         string            `json:"failure,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
}

type Recommendation struct {
	ProductID string             `json:"product_id"`
	Score     float64            `json:"score"`
	Rationale []string           `json:"rationale"`
	Signals   map[string]float64 `json:"signals,omitempty"`
}

// RecommendationSet is ordered by descending score.
type RecommendationSet []Recommendation

func (r RecommendationSet) ProductIDs() []string {
	ids := make([]string, 0, len(r))
	for _, rec := range r {
		ids = append(ids, rec.ProductID)
	}
	return ids
}

// TurnResult is what the Orchestrator hands back for one turn.
type TurnResult struct {
	SessionID       string            `json:"session_id"`
	Seq             int               `json:"seq,omitempty"`
	Status          TurnStatus        `json:"status"`
	Recommendations RecommendationSet `json:"recommendations"`
	Message         string            `json:"message,omitempty"`
	Intent          Intent            `json:"intent"`
	// Degraded lists the stages that fell back: "understanding", agent names.
	Degraded []string `json:"degraded,omitempty"`
}
