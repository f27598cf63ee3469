package core

import "context"

// Understander turns raw text into an Intent. It never fails: on timeout or
// unparseable model output it returns a degraded Intent.
type Understander interface {
	Understand(ctx context.Context, text string, session *Session) Intent
}

// Retriever is a retrieval agent. It fills only its own signal and fails
// closed.
type Retriever interface {
	Name() string
	Retrieve(ctx context.Context, intent Intent) RetrievalResult
}

type Fuser interface {
	Fuse(results []RetrievalResult, intent Intent, profile PreferenceProfile) RecommendationSet
}

// TurnHandler runs one turn for a session.
type TurnHandler interface {
	HandleTurn(ctx context.Context, sessionID, text string) (TurnResult, error)
}
