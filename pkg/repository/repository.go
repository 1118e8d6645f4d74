// Package repository defines the data boundary of goflux services: lookups
// return inert reactive sources that touch the backing store only when
// subscribed.
package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/go-playground/validator/v10"

	gferrors "github.com/vnykmshr/goflux/pkg/common/errors"
	"github.com/vnykmshr/goflux/pkg/streaming/reactive"
)

// Participant is a named attendee.
type Participant struct {
	ID   string `json:"id" validate:"required,max=64"`
	Name string `json:"name" validate:"required,max=256"`
}

// Participants looks up and stores participants. Implementations must not
// perform I/O until the returned source is subscribed, and every subscription
// performs its own round trip.
type Participants interface {
	// FindByID emits the participant with id, or completes empty.
	FindByID(id string) reactive.Single[Participant]

	// FindAll emits every stored participant.
	FindAll() reactive.Many[Participant]

	// Save stores p, replacing any participant with the same ID, and emits it.
	Save(p Participant) reactive.Single[Participant]
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks p before it is written to a store.
func Validate(p Participant) error {
	if err := validate.Struct(p); err != nil {
		return gferrors.NewValidationError("repository", "participant", p.ID, err.Error()).
			WithHint("id and name are required")
	}
	return nil
}

// Memory is an in-process Participants store.
type Memory struct {
	mu   sync.RWMutex
	byID map[string]Participant
}

// NewMemory creates a store seeded with ps.
func NewMemory(ps ...Participant) *Memory {
	m := &Memory{byID: make(map[string]Participant, len(ps))}
	for _, p := range ps {
		m.byID[p.ID] = p
	}
	return m
}

func (m *Memory) FindByID(id string) reactive.Single[Participant] {
	return reactive.Deferred(func(context.Context) (Participant, bool, error) {
		m.mu.RLock()
		defer m.mu.RUnlock()
		p, ok := m.byID[id]
		return p, ok, nil
	})
}

// FindAll emits a snapshot taken at subscription, ordered by ID.
func (m *Memory) FindAll() reactive.Many[Participant] {
	return reactive.FlatMapMany(reactive.Deferred(func(context.Context) ([]Participant, bool, error) {
		m.mu.RLock()
		all := make([]Participant, 0, len(m.byID))
		for _, p := range m.byID {
			all = append(all, p)
		}
		m.mu.RUnlock()
		sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
		return all, true, nil
	}), reactive.FromSlice[Participant])
}

func (m *Memory) Save(p Participant) reactive.Single[Participant] {
	return reactive.Deferred(func(context.Context) (Participant, bool, error) {
		if err := Validate(p); err != nil {
			return Participant{}, false, err
		}
		m.mu.Lock()
		m.byID[p.ID] = p
		m.mu.Unlock()
		return p, true, nil
	})
}

var _ Participants = (*Memory)(nil)
