package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/sandevgo/recomate/internal/core"
	"github.com/sandevgo/recomate/pkg/log"
	"github.com/sandevgo/recomate/pkg/metrics"
)

const (
	maxSessionIDLength = 128
	minJanitorInterval = time.Second
)

// Conversation is the per-session turn runner the orchestrator dispatches to.
type Conversation interface {
	HandleTurn(ctx context.Context, text string) (core.TurnResult, error)
}

type Factory func(sessionID string) Conversation

type entry struct {
	conv     Conversation
	refs     int
	lastUsed time.Time
}

// Orchestrator keeps exactly one Conversation per session id and evicts
// those left idle for longer than idleTTL. Session state lives in the store,
// so an evicted conversation is simply rebuilt on the next turn.
type Orchestrator struct {
	factory Factory
	idleTTL time.Duration
	now     func() time.Time

	mu       sync.Mutex
	managers map[string]*entry

	stop     chan struct{}
	stopOnce sync.Once
}

func New(factory Factory, idleTTL time.Duration) *Orchestrator {
	return &Orchestrator{
		factory:  factory,
		idleTTL:  idleTTL,
		now:      time.Now,
		managers: make(map[string]*entry),
		stop:     make(chan struct{}),
	}
}

// HandleTurn dispatches one turn. An empty session id starts a new session.
func (o *Orchestrator) HandleTurn(ctx context.Context, sessionID, text string) (core.TurnResult, error) {
	if strings.TrimSpace(text) == "" {
		return core.TurnResult{}, fmt.Errorf("%w: empty input", core.ErrInvalidInput)
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	if err := ValidateSessionID(sessionID); err != nil {
		return core.TurnResult{}, err
	}

	conv := o.checkout(sessionID)
	defer o.checkin(sessionID)

	res, err := conv.HandleTurn(ctx, text)
	if err != nil {
		return core.TurnResult{}, err
	}
	res.SessionID = sessionID
	return res, nil
}

func ValidateSessionID(id string) error {
	if len(id) > maxSessionIDLength {
		return fmt.Errorf("%w: session id longer than %d bytes", core.ErrInvalidInput, maxSessionIDLength)
	}
	for _, r := range id {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return fmt.Errorf("%w: session id contains whitespace", core.ErrInvalidInput)
		}
	}
	return nil
}

func (o *Orchestrator) checkout(sessionID string) Conversation {
	o.mu.Lock()
	defer o.mu.Unlock()

	e, ok := o.managers[sessionID]
	if !ok {
		e = &entry{conv: o.factory(sessionID)}
		o.managers[sessionID] = e
		metrics.ActiveManagers.Set(float64(len(o.managers)))
	}
	e.refs++
	e.lastUsed = o.now()
	return e.conv
}

func (o *Orchestrator) checkin(sessionID string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if e, ok := o.managers[sessionID]; ok {
		e.refs--
		e.lastUsed = o.now()
	}
}

// Evict drops conversations with no turn in flight that have been idle for
// at least idleTTL. It returns how many were dropped.
func (o *Orchestrator) Evict() int {
	o.mu.Lock()
	defer o.mu.Unlock()

	now := o.now()
	evicted := 0
	for id, e := range o.managers {
		if e.refs == 0 && now.Sub(e.lastUsed) >= o.idleTTL {
			delete(o.managers, id)
			evicted++
		}
	}
	metrics.ActiveManagers.Set(float64(len(o.managers)))
	return evicted
}

// Len is the number of resident conversations.
func (o *Orchestrator) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.managers)
}

// Start runs the eviction janitor until ctx is done or Shutdown is called.
func (o *Orchestrator) Start(ctx context.Context) error {
	logger := log.FromCtx(ctx)

	interval := max(o.idleTTL/2, minJanitorInterval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Info().Dur("idle_ttl", o.idleTTL).Msg("conversation janitor started")
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-o.stop:
			return nil
		case <-ticker.C:
			if n := o.Evict(); n > 0 {
				logger.Debug().Int("evicted", n).Int("resident", o.Len()).Msg("evicted idle conversations")
			}
		}
	}
}

func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.stopOnce.Do(func() {
		close(o.stop)
	})
	return nil
}
