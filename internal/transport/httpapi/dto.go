package httpapi

import "github.com/sandevgo/recomate/internal/core"

// turnRequest is the turn input surface. An empty session id starts a new
// session.
type turnRequest struct {
	SessionID string `json:"sessionId" validate:"omitempty,max=128"`
	Text      string `json:"text" validate:"required,max=4000"`
}

type recommendationDTO struct {
	ProductID string   `json:"productId"`
	Score     float64  `json:"score"`
	Rationale []string `json:"rationale"`
}

// turnResponse is the turn output surface. Intent and degraded stages are
// included for clients that explain their results.
type turnResponse struct {
	SessionID       string              `json:"sessionId"`
	Seq             int                 `json:"seq,omitempty"`
	Status          core.TurnStatus     `json:"status"`
	Recommendations []recommendationDTO `json:"recommendations"`
	Message         string              `json:"message,omitempty"`
	Intent          core.Intent         `json:"intent"`
	Degraded        []string            `json:"degraded,omitempty"`
}

func newTurnResponse(res core.TurnResult) turnResponse {
	recs := make([]recommendationDTO, 0, len(res.Recommendations))
	for _, r := range res.Recommendations {
		rationale := r.Rationale
		if rationale == nil {
			rationale = []string{}
		}
		recs = append(recs, recommendationDTO{
			ProductID: r.ProductID,
			Score:     r.Score,
			Rationale: rationale,
		})
	}
	return turnResponse{
		SessionID:       res.SessionID,
		Seq:             res.Seq,
		Status:          res.Status,
		Recommendations: recs,
		Message:         res.Message,
		Intent:          res.Intent,
		Degraded:        res.Degraded,
	}
}
