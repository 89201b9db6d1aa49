package session

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// Role identifies who produced a turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// Inference statuses recorded after each pass of the dependency chain.
const (
	StatusResolved     = "resolved"
	StatusNoPreference = "no_preference"
	StatusConflict     = "conflict"
)

// Turn is one committed message in a conversation.
type Turn struct {
	ID        string   `json:"id"`
	Role      Role     `json:"role"`
	Content   string   `json:"content"`
	ImageRefs []string `json:"imageRefs,omitempty"`
}

// NewTurn creates a turn with a fresh id.
func NewTurn(role Role, content string, images []string) Turn {
	return Turn{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		ImageRefs: slices.Clone(images),
	}
}

// HasImages reports whether the turn still carries image references.
func (t Turn) HasImages() bool { return len(t.ImageRefs) > 0 }

// Session is the persisted state of one conversation.
type Session struct {
	ID          string      `json:"sessionId"`
	Turns       []Turn      `json:"turns"`
	Summary     string      `json:"summary"`
	Constraints Constraints `json:"constraints"`

	// Outcome of the last inference pass. NodeName is the attribute the chain halted on.
	InferenceStatus string `json:"inferenceStatus,omitempty"`
	NodeName        string `json:"nodeName,omitempty"`
	Reasoning       string `json:"reasoning,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SessionMeta is a lightweight representation for listing.
type SessionMeta struct {
	ID        string    `json:"sessionId"`
	Turns     int       `json:"turns"`
	Summary   string    `json:"summary,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// New creates an empty session. An empty id gets a fresh uuid.
func New(id string) *Session {
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now().UTC()
	return &Session{
		ID:          id,
		Constraints: Constraints{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Clone returns a deep copy. The controller works on a clone for the whole turn.
func (s *Session) Clone() *Session {
	out := *s
	out.Turns = make([]Turn, len(s.Turns))
	for i, t := range s.Turns {
		t.ImageRefs = slices.Clone(t.ImageRefs)
		out.Turns[i] = t
	}
	out.Constraints = s.Constraints.Clone()
	return &out
}

// Append adds a turn at the end of the conversation.
func (s *Session) Append(t Turn) {
	s.Turns = append(s.Turns, t)
	s.UpdatedAt = time.Now().UTC()
}

// LastTurn returns the most recent turn.
func (s *Session) LastTurn() (Turn, bool) {
	if len(s.Turns) == 0 {
		return Turn{}, false
	}
	return s.Turns[len(s.Turns)-1], true
}

// Meta returns the listing view of the session.
func (s *Session) Meta() SessionMeta {
	return SessionMeta{
		ID:        s.ID,
		Turns:     len(s.Turns),
		Summary:   s.Summary,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}
