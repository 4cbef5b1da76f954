package editor

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// fakeRemote mirrors the server rules: owner scoped items, trailing positions
// on create, idempotent deletes and silently skipped foreign ids.
type fakeRemote struct {
	mu         sync.Mutex
	profile    Profile
	hasProfile bool
	items      []Item
	calls      []string

	updateErr     error
	fetchErr      error
	repositionErr error
	createErr     func(ItemDraft) error
	deleteErr     func(string) error

	// updateEntered and updateRelease let a test hold a save inside its
	// first remote call.
	updateEntered chan struct{}
	updateRelease chan struct{}
}

func newFakeRemote(items ...Item) *fakeRemote {
	r := &fakeRemote{
		profile:    Profile{ID: uuid.NewString(), Slug: "my-page", Fields: Fields{Theme: "minimal"}},
		hasProfile: true,
	}
	for idx, item := range items {
		item.Position = idx
		r.items = append(r.items, item)
	}
	return r
}

func remoteItem(kind Kind, title, target string) Item {
	return Item{ID: RemoteID(uuid.NewString()), Kind: kind, Title: title, Target: target}
}

func (r *fakeRemote) record(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func (r *fakeRemote) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.calls))
	copy(out, r.calls)
	return out
}

func (r *fakeRemote) UpdateProfile(_ context.Context, fields Fields) (Profile, error) {
	r.record("update")
	if r.updateEntered != nil {
		r.updateEntered <- struct{}{}
		<-r.updateRelease
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return Profile{}, r.updateErr
	}
	if !r.hasProfile {
		return Profile{}, ErrNoProfile
	}
	r.profile.Fields = fields
	return r.profile, nil
}

func (r *fakeRemote) DeleteItem(_ context.Context, id string) (bool, error) {
	r.record("delete " + id)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deleteErr != nil {
		if err := r.deleteErr(id); err != nil {
			return false, err
		}
	}
	for idx, item := range r.items {
		if item.ID.Value() == id {
			r.items = append(r.items[:idx], r.items[idx+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeRemote) CreateItem(_ context.Context, draft ItemDraft) (Item, error) {
	r.record("create " + draft.Title)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		if err := r.createErr(draft); err != nil {
			return Item{}, err
		}
	}
	position := 0
	for _, item := range r.items {
		if item.Position+1 > position {
			position = item.Position + 1
		}
	}
	item := Item{ID: RemoteID(uuid.NewString()), Kind: draft.Kind, Title: draft.Title, Target: draft.Target, Position: position}
	r.items = append(r.items, item)
	return item, nil
}

func (r *fakeRemote) RepositionItems(_ context.Context, placements []Placement) error {
	r.record("reposition")
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.repositionErr != nil {
		return r.repositionErr
	}
	for _, placement := range placements {
		for idx := range r.items {
			if r.items[idx].ID.Value() == placement.ID {
				r.items[idx].Position = placement.Position
			}
		}
	}
	return nil
}

func (r *fakeRemote) FetchProfile(_ context.Context) (Snapshot, error) {
	r.record("fetch")
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fetchErr != nil {
		return Snapshot{}, r.fetchErr
	}
	if !r.hasProfile {
		return Snapshot{}, ErrNoProfile
	}
	items := cloneItems(r.items)
	sort.SliceStable(items, func(i, j int) bool { return items[i].Position < items[j].Position })
	return Snapshot{Profile: r.profile, Items: items}, nil
}

func (r *fakeRemote) serverItems() []Item {
	snapshot, _ := r.FetchProfile(context.Background())
	return snapshot.Items
}
