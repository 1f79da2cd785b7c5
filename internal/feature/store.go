// Package feature keeps the edits a user selected for each studio mode.
package feature

import (
	"fmt"

	"studio/internal/domain"
)

// Set maps slot ids to their current value for one mode. An absent entry means the slot
// is not selected.
type Set struct {
	mode   domain.Mode
	values map[domain.SlotID]domain.Value
}

// NewSet returns an empty set for the mode.
func NewSet(mode domain.Mode) *Set {
	return &Set{mode: mode, values: make(map[domain.SlotID]domain.Value)}
}

// Mode returns the mode the set belongs to.
func (s *Set) Mode() domain.Mode {
	return s.mode
}

// Value returns the slot value when the slot is populated.
func (s *Set) Value(id domain.SlotID) (domain.Value, bool) {
	v, ok := s.values[id]
	if !ok {
		return nil, false
	}
	spec, ok := domain.LookupSlot(s.mode, id)
	if !ok || !v.Populated(spec.RequireAll) {
		return nil, false
	}
	return v, true
}

// Raw returns whatever is stored for the slot, populated or not.
func (s *Set) Raw(id domain.SlotID) (domain.Value, bool) {
	v, ok := s.values[id]
	return v, ok
}

// IsPopulated applies the slot-specific populated predicate.
func (s *Set) IsPopulated(id domain.SlotID) bool {
	_, ok := s.Value(id)
	return ok
}

// PopulatedCount counts populated slots that are subject to the photo selection cap.
func (s *Set) PopulatedCount() int {
	n := 0
	for _, spec := range domain.SlotsFor(s.mode) {
		if spec.Exempt {
			continue
		}
		if s.IsPopulated(spec.ID) {
			n++
		}
	}
	return n
}

// Populated lists the populated slots in catalogue order.
func (s *Set) Populated() []domain.SlotID {
	var ids []domain.SlotID
	for _, spec := range domain.SlotsFor(s.mode) {
		if s.IsPopulated(spec.ID) {
			ids = append(ids, spec.ID)
		}
	}
	return ids
}

// Clone returns an independent copy. Values are immutable so a shallow map copy suffices,
// except for image lists whose backing array is copied.
func (s *Set) Clone() *Set {
	out := NewSet(s.mode)
	for id, v := range s.values {
		if list, ok := v.(domain.ImageList); ok {
			v = domain.ImageList{URLs: append([]string(nil), list.URLs...)}
		}
		out.values[id] = v
	}
	return out
}

func (s *Set) reset() {
	s.values = make(map[domain.SlotID]domain.Value)
}

// Store holds one Set per mode. Mutating one mode never touches the other.
type Store struct {
	sets map[domain.Mode]*Set
}

// NewStore returns a store with every mode's set empty.
func NewStore() *Store {
	st := &Store{sets: make(map[domain.Mode]*Set, len(domain.Modes))}
	for _, m := range domain.Modes {
		st.sets[m] = NewSet(m)
	}
	return st
}

func (st *Store) set(mode domain.Mode) (*Set, error) {
	s, ok := st.sets[mode]
	if !ok {
		return nil, fmt.Errorf("feature store: unsupported mode %q", mode)
	}
	return s, nil
}

// Select validates value against the slot kind and stores it. In photo mode a new
// selection beyond the cap is rejected with domain.ErrSlotCapReached; edits to an already
// populated slot are always accepted. An unpopulated value clears the slot.
func (st *Store) Select(mode domain.Mode, id domain.SlotID, value domain.Value) error {
	s, err := st.set(mode)
	if err != nil {
		return err
	}
	spec, ok := domain.LookupSlot(mode, id)
	if !ok {
		return fmt.Errorf("%w: %s/%s", domain.ErrUnknownSlot, mode, id)
	}
	if err := validate(spec, value); err != nil {
		return err
	}
	if !value.Populated(spec.RequireAll) {
		// a half-filled AND slot is kept so the editor can finish it
		if spec.RequireAll && value.Populated(false) {
			s.values[id] = value
		} else {
			delete(s.values, id)
		}
		return nil
	}
	if mode == domain.ModePhoto && !spec.Exempt && !s.IsPopulated(id) && s.PopulatedCount() >= domain.MaxPhotoSelections {
		return domain.ErrSlotCapReached
	}
	s.values[id] = value
	return nil
}

// Clear empties a slot.
func (st *Store) Clear(mode domain.Mode, id domain.SlotID) error {
	s, err := st.set(mode)
	if err != nil {
		return err
	}
	if _, ok := domain.LookupSlot(mode, id); !ok {
		return fmt.Errorf("%w: %s/%s", domain.ErrUnknownSlot, mode, id)
	}
	delete(s.values, id)
	return nil
}

// IsPopulated reports whether the slot of a mode currently counts as selected.
func (st *Store) IsPopulated(mode domain.Mode, id domain.SlotID) bool {
	s, err := st.set(mode)
	if err != nil {
		return false
	}
	return s.IsPopulated(id)
}

// ResetAll restores every slot of the mode to empty.
func (st *Store) ResetAll(mode domain.Mode) {
	if s, err := st.set(mode); err == nil {
		s.reset()
	}
}

// Snapshot returns an independent copy of the mode's set.
func (st *Store) Snapshot(mode domain.Mode) *Set {
	s, err := st.set(mode)
	if err != nil {
		return NewSet(mode)
	}
	return s.Clone()
}

func validate(spec domain.SlotSpec, value domain.Value) error {
	if value == nil {
		return fmt.Errorf("%w: %s has no value", domain.ErrInvalidValue, spec.ID)
	}
	if value.Kind() != spec.Kind {
		return fmt.Errorf("%w: %s expects %s, got %s", domain.ErrKindMismatch, spec.ID, spec.Kind, value.Kind())
	}
	switch v := value.(type) {
	case domain.Number:
		if !spec.InRange(v.N) {
			return fmt.Errorf("%w: %s out of range", domain.ErrInvalidValue, spec.ID)
		}
	case domain.Choice:
		if v.Option != "" && !spec.AllowsChoice(v.Option) {
			return fmt.Errorf("%w: %s does not accept %q", domain.ErrInvalidValue, spec.ID, v.Option)
		}
	}
	return nil
}
