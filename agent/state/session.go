package state

import (
	"errors"
	"fmt"
	"strings"
	"time"

	contractx "github.com/shaonidutta/convergeai/agent/contract"
)

var (
	ErrNilState       = errors.New("dialog state is nil")
	ErrEntityConflict = errors.New("entity tracked as both collected and needed")
)

const maxHistoryTurns = 20

// Turn is one utterance in the bounded conversation history.
type Turn struct {
	Role string    `json:"role"` // "user" | "assistant"
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// DialogState is the per-session source of truth for slot filling. It is
// mutated only by the slot-filling orchestrator, between turns, so it needs
// no internal locking.
type DialogState struct {
	SessionID   string `json:"session_id"`
	UserID      string `json:"user_id"`
	ChannelType string `json:"channel_type"`

	ActiveIntent         contractx.Intent                       `json:"active_intent,omitempty"`
	ActiveConfidence     float64                                `json:"active_confidence,omitempty"`
	ActiveMethod         contractx.Method                       `json:"active_method,omitempty"`
	PendingIntents       []contractx.Intent                     `json:"pending_intents,omitempty"`
	Collected            map[contractx.EntityType]string        `json:"collected_entities,omitempty"`
	Needed               []contractx.EntityType                 `json:"needed_entities,omitempty"`
	AwaitingConfirmation bool                                   `json:"awaiting_confirmation"`
	ExpectedEntity       contractx.EntityType                   `json:"expected_entity,omitempty"`
	LastQuestion         string                                 `json:"last_question,omitempty"`
	FailedAttempts       map[contractx.EntityType]int           `json:"failed_attempts,omitempty"`
	TurnCount            int                                    `json:"turn_count"`
	History              []Turn                                 `json:"history,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewDialogState(sessionID, userID, channelType string, now time.Time) *DialogState {
	return &DialogState{
		SessionID:      sessionID,
		UserID:         userID,
		ChannelType:    channelType,
		Collected:      make(map[contractx.EntityType]string, 8),
		FailedAttempts: make(map[contractx.EntityType]int, 4),
		CreatedAt:      now.UTC(),
		UpdatedAt:      now.UTC(),
	}
}

func (s *DialogState) Touch(now time.Time) {
	s.UpdatedAt = now.UTC()
}

func (s *DialogState) EnsureMaps() {
	if s.Collected == nil {
		s.Collected = make(map[contractx.EntityType]string, 8)
	}
	if s.FailedAttempts == nil {
		s.FailedAttempts = make(map[contractx.EntityType]int, 4)
	}
}

// AddEntity records a collected value and drops the type from Needed,
// preserving the invariant that a type lives in at most one of the two.
func (s *DialogState) AddEntity(t contractx.EntityType, value string) {
	s.EnsureMaps()
	s.Collected[t] = value
	s.RemoveNeeded(t)
	delete(s.FailedAttempts, t)
	if s.ExpectedEntity == t {
		s.ExpectedEntity = ""
	}
}

// RemoveNeeded drops an entity type from the outstanding list.
func (s *DialogState) RemoveNeeded(t contractx.EntityType) {
	kept := s.Needed[:0]
	for _, n := range s.Needed {
		if n != t {
			kept = append(kept, n)
		}
	}
	s.Needed = kept
}

// SetNeeded replaces the outstanding list, excluding anything already
// collected. Carryover across intent switches is deliberate: a location
// given earlier is not re-asked.
func (s *DialogState) SetNeeded(types []contractx.EntityType) {
	s.EnsureMaps()
	needed := make([]contractx.EntityType, 0, len(types))
	for _, t := range types {
		if _, ok := s.Collected[t]; ok {
			continue
		}
		needed = append(needed, t)
	}
	s.Needed = needed
}

// NextNeeded returns the first outstanding entity type.
func (s *DialogState) NextNeeded() (contractx.EntityType, bool) {
	if len(s.Needed) == 0 {
		return "", false
	}
	return s.Needed[0], true
}

// DropCollected removes a collected value so it can be re-asked, used when
// the user corrects an entity during confirmation.
func (s *DialogState) DropCollected(t contractx.EntityType) {
	delete(s.Collected, t)
}

// RecordFailure bumps the consecutive extraction-failure counter for an
// entity and returns the new count.
func (s *DialogState) RecordFailure(t contractx.EntityType) int {
	s.EnsureMaps()
	s.FailedAttempts[t]++
	return s.FailedAttempts[t]
}

// AppendTurn pushes an utterance onto the bounded history ring.
func (s *DialogState) AppendTurn(role, text string, now time.Time) {
	s.History = append(s.History, Turn{Role: role, Text: text, At: now.UTC()})
	if len(s.History) > maxHistoryTurns {
		s.History = s.History[len(s.History)-maxHistoryTurns:]
	}
}

// RecentHistory returns up to n most recent turns, oldest first.
func (s *DialogState) RecentHistory(n int) []Turn {
	if n <= 0 || len(s.History) == 0 {
		return nil
	}
	if len(s.History) <= n {
		return s.History
	}
	return s.History[len(s.History)-n:]
}

// ResetIntent clears intent-scoped tracking while keeping collected
// entities for carryover.
func (s *DialogState) ResetIntent() {
	s.ActiveIntent = ""
	s.ActiveConfidence = 0
	s.ActiveMethod = ""
	s.PendingIntents = nil
	s.Needed = nil
	s.AwaitingConfirmation = false
	s.ExpectedEntity = ""
	s.LastQuestion = ""
}

// Snapshot returns a deep copy, used to restore state untouched when a turn
// faults partway through.
func (s *DialogState) Snapshot() *DialogState {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Collected = make(map[contractx.EntityType]string, len(s.Collected))
	for k, v := range s.Collected {
		cp.Collected[k] = v
	}
	cp.FailedAttempts = make(map[contractx.EntityType]int, len(s.FailedAttempts))
	for k, v := range s.FailedAttempts {
		cp.FailedAttempts[k] = v
	}
	cp.Needed = append([]contractx.EntityType(nil), s.Needed...)
	cp.PendingIntents = append([]contractx.Intent(nil), s.PendingIntents...)
	cp.History = append([]Turn(nil), s.History...)
	return &cp
}

func (s *DialogState) Validate() error {
	if s == nil {
		return ErrNilState
	}
	if strings.TrimSpace(s.SessionID) == "" {
		return ErrInvalidSession
	}
	for _, n := range s.Needed {
		if _, ok := s.Collected[n]; ok {
			return fmt.Errorf("%w: %s", ErrEntityConflict, n)
		}
	}
	return nil
}
