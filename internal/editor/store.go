package editor

import (
	"fmt"

	"linkpage/api/internal/validate"
)

// State is the part of the working copy the reconciler reads.
type State struct {
	Fields Fields
	Items  []Item
}

// Store is the working copy: profile fields plus the working sequence, and the
// Delta recording how the sequence diverged from the last sync.
type Store struct {
	fields Fields
	items  []Item
	delta  Delta
	dirty  bool
}

// NewStore seeds a clean working copy from server state.
func NewStore(snapshot Snapshot) *Store {
	return &Store{
		fields: snapshot.Profile.Fields,
		items:  cloneItems(snapshot.Items),
	}
}

func (s *Store) State() State {
	return State{Fields: s.fields, Items: cloneItems(s.items)}
}

func (s *Store) Fields() Fields {
	return s.fields
}

func (s *Store) Items() []Item {
	return cloneItems(s.items)
}

func (s *Store) Delta() Delta {
	return s.delta
}

func (s *Store) Dirty() bool {
	return s.dirty
}

// SetField validates and assigns one profile field by its wire name.
func (s *Store) SetField(name, value string) error {
	next := s.fields
	switch name {
	case FieldDisplayName:
		if err := validate.DisplayName(value); err != nil {
			return err
		}
		next.DisplayName = value
	case FieldBio:
		if err := validate.Bio(value); err != nil {
			return err
		}
		next.Bio = value
	case FieldAvatarURL:
		if err := validate.AvatarURL(value); err != nil {
			return err
		}
		next.AvatarURL = value
	case FieldTheme:
		if err := validate.Theme(value); err != nil {
			return err
		}
		next.Theme = value
	default:
		return &ValidationError{Field: name, Reason: "unknown field"}
	}
	s.fields = next
	s.dirty = true
	return nil
}

// Insert adds a new item at the end of the sequence, or at the front when
// atEnd is false. Items without an id get a fresh local id. The item's
// position is its index at insertion time; positions are only made
// contiguous again by Reorder or a sync.
func (s *Store) Insert(item Item, atEnd bool) (Item, error) {
	if err := validate.Item(string(item.Kind), item.Title, item.Target); err != nil {
		return Item{}, err
	}
	if item.ID.IsZero() {
		item.ID = NewLocalID()
	}
	if !item.ID.IsLocal() {
		return Item{}, &ValidationError{Field: "id", Reason: "inserted items must carry a local id"}
	}
	if s.indexOf(item.ID) >= 0 {
		return Item{}, &ValidationError{Field: "id", Reason: "duplicate id"}
	}

	if atEnd {
		item.Position = len(s.items)
		s.items = append(s.items, item)
	} else {
		item.Position = 0
		s.items = append([]Item{item}, s.items...)
	}
	s.delta = s.delta.RecordAddition(item)
	s.dirty = true
	return item, nil
}

func (s *Store) AddLink(title, target string) (Item, error) {
	return s.Insert(Item{Kind: KindLink, Title: title, Target: target}, true)
}

func (s *Store) AddHeader(title string) (Item, error) {
	return s.Insert(Item{Kind: KindHeader, Title: title}, true)
}

func (s *Store) AddDivider() (Item, error) {
	return s.Insert(Item{Kind: KindDivider}, true)
}

// Remove drops id from the working sequence.
func (s *Store) Remove(id ItemID) error {
	idx := s.indexOf(id)
	if idx < 0 {
		return fmt.Errorf("remove %s: %w", id, ErrNotFound)
	}
	s.items = append(s.items[:idx:idx], s.items[idx+1:]...)
	s.delta = s.delta.RecordRemoval(id)
	s.dirty = true
	return nil
}

// Reorder replaces the sequence with the given permutation of it and
// renumbers positions 0..n-1. It never touches the delta.
func (s *Store) Reorder(sequence []ItemID) error {
	if len(sequence) != len(s.items) {
		return &ValidationError{Field: "sequence", Reason: fmt.Sprintf("expected %d ids, got %d", len(s.items), len(sequence))}
	}
	byID := make(map[ItemID]Item, len(s.items))
	for _, item := range s.items {
		byID[item.ID] = item
	}
	reordered := make([]Item, 0, len(sequence))
	for idx, id := range sequence {
		item, ok := byID[id]
		if !ok {
			return &ValidationError{Field: "sequence", Reason: fmt.Sprintf("%s is not in the sequence or repeats", id)}
		}
		delete(byID, id)
		item.Position = idx
		reordered = append(reordered, item)
	}
	s.items = reordered
	s.dirty = true
	return nil
}

// Move is a convenience over Reorder that moves one item to index to.
func (s *Store) Move(id ItemID, to int) error {
	from := s.indexOf(id)
	if from < 0 {
		return fmt.Errorf("move %s: %w", id, ErrNotFound)
	}
	if to < 0 || to >= len(s.items) {
		return &ValidationError{Field: "position", Reason: "out of range"}
	}
	sequence := make([]ItemID, 0, len(s.items))
	for _, item := range s.items {
		if item.ID != id {
			sequence = append(sequence, item.ID)
		}
	}
	sequence = append(sequence[:to], append([]ItemID{id}, sequence[to:]...)...)
	return s.Reorder(sequence)
}

func (s *Store) resetDelta() {
	s.delta = s.delta.Clear()
}

func (s *Store) indexOf(id ItemID) int {
	for idx, item := range s.items {
		if item.ID == id {
			return idx
		}
	}
	return -1
}
