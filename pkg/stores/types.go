package stores

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smalls/arcs/pkg/types"
)

// ErrNotFound is returned when a store, slot, or archived run does not exist.
var ErrNotFound = errors.New("not found")

// Store is an existing data store a view can be bound to.
type Store struct {
	ID          string      `json:"id"`
	Name        string      `json:"name,omitempty"`
	Type        *types.Type `json:"type"`
	Tags        []string    `json:"tags,omitempty"`
	Description string      `json:"description,omitempty"`

	// Remote stores are owned by another arc and can only be mapped
	// read-only.
	Remote bool `json:"remote,omitempty"`
}

// Validate checks that the store can be registered.
func (s Store) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("store id is required")
	}
	if s.Type == nil {
		return fmt.Errorf("store %s has no type", s.ID)
	}
	return nil
}

// HasTag reports whether the store carries tag. The empty tag matches every
// store.
func (s Store) HasTag(tag string) bool {
	if tag == "" {
		return true
	}
	for _, t := range s.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// RemoteSlot is a slot advertised by another arc that a particle can render
// into.
type RemoteSlot struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	FormFactor string `json:"form_factor,omitempty"`
}

// Validate checks that the slot can be registered.
func (s RemoteSlot) Validate() error {
	if s.ID == "" || s.Name == "" {
		return fmt.Errorf("remote slot requires an id and a name")
	}
	return nil
}

// Registry finds stores and remote slots for the planner's strategies.
type Registry interface {
	// FindByType returns the stores whose type is t and, when tag is not
	// empty, that carry tag. Stores are returned in registration order.
	FindByType(ctx context.Context, t *types.Type, tag string) ([]Store, error)

	// FindByID returns one store or ErrNotFound.
	FindByID(ctx context.Context, id string) (Store, error)

	// RemoteSlots returns the remote slots with the given name.
	RemoteSlots(ctx context.Context, name string) ([]RemoteSlot, error)
}

// RunStatus represents the status of an archived planning run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusTimedOut  RunStatus = "timed_out"
	RunStatusFailed    RunStatus = "failed"
)

// Run is an archived planning run.
type Run struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Status      RunStatus  `json:"status"`
	Generations int        `json:"generations"`
	Resolved    int        `json:"resolved"`
	Error       *string    `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Plan is an archived resolved recipe.
type Plan struct {
	ID         string    `json:"id"`
	RunID      string    `json:"run_id"`
	Hash       string    `json:"hash"`
	Name       string    `json:"name"`
	Text       string    `json:"text"`
	Score      float64   `json:"score"`
	Fitness    float64   `json:"fitness"`
	Generation int       `json:"generation"`
	CreatedAt  time.Time `json:"created_at"`
}
