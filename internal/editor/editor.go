package editor

import (
	"context"
	"fmt"
	"sync"
)

// Editor is one editing session: a working copy bound to a Remote with at
// most one save in flight. Mutations are rejected while a save runs since the
// save ends by replacing the working copy with the server state.
type Editor struct {
	reconciler *Reconciler
	remote     Remote

	mu      sync.Mutex
	store   *Store
	profile Profile
	loaded  bool
	saving  bool
	// loadErr is why the last fetch failed, returned alongside ErrNotLoaded.
	loadErr error
}

func New(remote Remote) *Editor {
	return &Editor{
		reconciler: NewReconciler(remote),
		remote:     remote,
		store:      NewStore(Snapshot{}),
	}
}

// Load replaces the working copy with a fresh fetch and drops pending changes.
func (e *Editor) Load(ctx context.Context) error {
	e.mu.Lock()
	if e.saving {
		e.mu.Unlock()
		return ErrSaveInProgress
	}
	e.mu.Unlock()

	snapshot, err := e.remote.FetchProfile(ctx)
	if err != nil {
		e.mu.Lock()
		e.loadErr = err
		e.mu.Unlock()
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.reset(snapshot)
	return nil
}

func (e *Editor) Profile() Profile {
	e.mu.Lock()
	defer e.mu.Unlock()
	p := e.profile
	p.Fields = e.store.Fields()
	return p
}

func (e *Editor) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.State()
}

func (e *Editor) Delta() Delta {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Delta()
}

func (e *Editor) Dirty() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Dirty()
}

func (e *Editor) Saving() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.saving
}

func (e *Editor) SetField(name, value string) error {
	return e.mutate(func(s *Store) error { return s.SetField(name, value) })
}

func (e *Editor) Insert(item Item, atEnd bool) (Item, error) {
	var inserted Item
	err := e.mutate(func(s *Store) error {
		var err error
		inserted, err = s.Insert(item, atEnd)
		return err
	})
	return inserted, err
}

func (e *Editor) AddLink(title, target string) (Item, error) {
	return e.Insert(Item{Kind: KindLink, Title: title, Target: target}, true)
}

func (e *Editor) AddHeader(title string) (Item, error) {
	return e.Insert(Item{Kind: KindHeader, Title: title}, true)
}

func (e *Editor) AddDivider() (Item, error) {
	return e.Insert(Item{Kind: KindDivider}, true)
}

func (e *Editor) Remove(id ItemID) error {
	return e.mutate(func(s *Store) error { return s.Remove(id) })
}

func (e *Editor) Reorder(sequence []ItemID) error {
	return e.mutate(func(s *Store) error { return s.Reorder(sequence) })
}

func (e *Editor) Move(id ItemID, to int) error {
	return e.mutate(func(s *Store) error { return s.Move(id, to) })
}

// Save runs one reconciliation pass. A call made while another is running
// returns ErrSaveInProgress without touching the remote. Once started, the
// pass runs to completion even if ctx is cancelled.
//
// When the pass gets past the profile update the pending delta is consumed
// and the working copy is replaced by the refreshed server state, whatever
// happened to the individual item calls. If that refresh fails the editor
// must be loaded again before further edits.
func (e *Editor) Save(ctx context.Context) (Report, error) {
	e.mu.Lock()
	if e.saving {
		e.mu.Unlock()
		return Report{}, ErrSaveInProgress
	}
	if !e.loaded {
		e.mu.Unlock()
		return Report{}, e.notLoaded()
	}
	e.saving = true
	state := e.store.State()
	delta := e.store.Delta()
	e.mu.Unlock()

	report, err := e.reconciler.Reconcile(context.WithoutCancel(ctx), state, delta)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.saving = false
	if report.Synced() {
		if report.Snapshot != nil {
			e.reset(*report.Snapshot)
		} else {
			e.store.resetDelta()
			e.loaded = false
			e.loadErr = refreshError(report)
		}
	}
	return report, err
}

func (e *Editor) mutate(fn func(*Store) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.saving {
		return ErrSaveInProgress
	}
	if !e.loaded {
		return e.notLoaded()
	}
	return fn(e.store)
}

func (e *Editor) reset(snapshot Snapshot) {
	e.store = NewStore(snapshot)
	e.profile = snapshot.Profile
	e.loaded = true
	e.loadErr = nil
}

// notLoaded is ErrNotLoaded wrapping the remote error that left the editor
// unloaded, so ErrNoProfile and ErrUnauthenticated still match.
func (e *Editor) notLoaded() error {
	if e.loadErr == nil {
		return ErrNotLoaded
	}
	return fmt.Errorf("%w: %w", ErrNotLoaded, e.loadErr)
}

func refreshError(report Report) error {
	if phase, ok := report.Phase(PhaseRefresh); ok && len(phase.Errors) > 0 {
		return phase.Errors[0]
	}
	return nil
}
