package editor

import (
	"context"
	"errors"
	"fmt"
)

// Remote is the server side of a profile page, scoped to the signed-in owner.
type Remote interface {
	UpdateProfile(ctx context.Context, fields Fields) (Profile, error)
	// DeleteItem reports removed=false for ids that are gone or not owned.
	DeleteItem(ctx context.Context, id string) (bool, error)
	// CreateItem assigns a permanent id and appends the item after the
	// current last position.
	CreateItem(ctx context.Context, draft ItemDraft) (Item, error)
	// RepositionItems skips entries whose id the owner does not own.
	RepositionItems(ctx context.Context, placements []Placement) error
	FetchProfile(ctx context.Context) (Snapshot, error)
}

type Phase string

const (
	PhaseProfile    Phase = "profile"
	PhaseRemovals   Phase = "removals"
	PhaseAdditions  Phase = "additions"
	PhaseReposition Phase = "reposition"
	PhaseRefresh    Phase = "refresh"
)

// PhaseResult is the outcome of one step of a pass.
type PhaseResult struct {
	Phase     Phase
	Attempted int
	Succeeded int
	Errors    []error
}

func (p PhaseResult) Failed() bool {
	return len(p.Errors) > 0
}

// Report records everything a pass did. Callers surface only success or
// failure; the detail is kept so failed steps can be retried later.
type Report struct {
	Phases []PhaseResult
	// Created maps each pending local id to the id the server assigned.
	Created map[ItemID]string
	// Removed lists the ids the server confirmed as deleted.
	Removed []string
	// Placements is the reposition request that was sent, if any.
	Placements []Placement
	// Snapshot is the refreshed server state, nil when the pass stopped
	// before the refresh or the refresh failed.
	Snapshot *Snapshot
}

// Failed reports whether any phase recorded an error.
func (r Report) Failed() bool {
	for _, phase := range r.Phases {
		if phase.Failed() {
			return true
		}
	}
	return false
}

// Phase returns the result for p and whether it ran.
func (r Report) Phase(p Phase) (PhaseResult, bool) {
	for _, phase := range r.Phases {
		if phase.Phase == p {
			return phase, true
		}
	}
	return PhaseResult{}, false
}

// Synced reports whether the pass got past the profile update, after which
// the pending delta has been consumed.
func (r Report) Synced() bool {
	profile, ok := r.Phase(PhaseProfile)
	return ok && !profile.Failed()
}

type Reconciler struct {
	remote Remote
}

func NewReconciler(remote Remote) *Reconciler {
	return &Reconciler{remote: remote}
}

// Reconcile converges the remote to state given the pending delta. It is not
// transactional: each step runs against the result of the previous ones and
// nothing is rolled back.
//
// A failed profile update stops the pass; Unauthenticated and NoProfile are
// returned as themselves, anything else as ErrSaveFailed. Failures in the
// item steps are recorded and the pass continues to the refresh. The returned
// error is ErrSaveFailed whenever any phase failed.
func (r *Reconciler) Reconcile(ctx context.Context, state State, delta Delta) (Report, error) {
	report := Report{Created: map[ItemID]string{}}

	profile := PhaseResult{Phase: PhaseProfile, Attempted: 1}
	if _, err := r.remote.UpdateProfile(ctx, state.Fields); err != nil {
		profile.Errors = append(profile.Errors, err)
		report.Phases = append(report.Phases, profile)
		if errors.Is(err, ErrUnauthenticated) || errors.Is(err, ErrNoProfile) {
			return report, err
		}
		return report, fmt.Errorf("%w: update profile: %v", ErrSaveFailed, err)
	}
	profile.Succeeded = 1
	report.Phases = append(report.Phases, profile)

	report.Phases = append(report.Phases, r.applyRemovals(ctx, delta, &report))
	report.Phases = append(report.Phases, r.applyAdditions(ctx, delta, &report))

	report.Placements = Placements(state.Items, delta, report.Created)
	report.Phases = append(report.Phases, r.reposition(ctx, report.Placements))

	refresh := PhaseResult{Phase: PhaseRefresh, Attempted: 1}
	snapshot, err := r.remote.FetchProfile(ctx)
	if err != nil {
		refresh.Errors = append(refresh.Errors, err)
	} else {
		refresh.Succeeded = 1
		report.Snapshot = &snapshot
	}
	report.Phases = append(report.Phases, refresh)

	if report.Failed() {
		return report, fmt.Errorf("%w: %s", ErrSaveFailed, failedPhases(report))
	}
	return report, nil
}

func (r *Reconciler) applyRemovals(ctx context.Context, delta Delta, report *Report) PhaseResult {
	result := PhaseResult{Phase: PhaseRemovals}
	for _, id := range delta.Removals() {
		result.Attempted++
		removed, err := r.remote.DeleteItem(ctx, id)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("delete %s: %w", id, err))
			continue
		}
		result.Succeeded++
		if removed {
			report.Removed = append(report.Removed, id)
		}
	}
	return result
}

func (r *Reconciler) applyAdditions(ctx context.Context, delta Delta, report *Report) PhaseResult {
	result := PhaseResult{Phase: PhaseAdditions}
	for _, item := range delta.Additions() {
		result.Attempted++
		created, err := r.remote.CreateItem(ctx, ItemDraft{Kind: item.Kind, Title: item.Title, Target: item.Target})
		if err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("create %s: %w", item.ID, err))
			continue
		}
		result.Succeeded++
		report.Created[item.ID] = created.ID.Value()
	}
	return result
}

func (r *Reconciler) reposition(ctx context.Context, placements []Placement) PhaseResult {
	result := PhaseResult{Phase: PhaseReposition}
	if len(placements) == 0 {
		return result
	}
	result.Attempted = 1
	if err := r.remote.RepositionItems(ctx, placements); err != nil {
		result.Errors = append(result.Errors, err)
		return result
	}
	result.Succeeded = 1
	return result
}

// Placements builds the final ordering from the working sequence: ids removed
// in delta are dropped, local ids with a created counterpart are replaced by
// the server id, and positions follow the resulting index. A local id whose
// create failed is kept as is; the server ignores it as not owned.
func Placements(items []Item, delta Delta, created map[ItemID]string) []Placement {
	out := make([]Placement, 0, len(items))
	for _, item := range items {
		if !item.ID.IsLocal() && delta.IsRemoved(item.ID.Value()) {
			continue
		}
		id := item.ID.Value()
		if item.ID.IsLocal() {
			if remoteID, ok := created[item.ID]; ok {
				id = remoteID
			}
		}
		out = append(out, Placement{ID: id, Position: len(out)})
	}
	return out
}

func failedPhases(report Report) string {
	var names []string
	for _, phase := range report.Phases {
		if phase.Failed() {
			names = append(names, string(phase.Phase))
		}
	}
	return fmt.Sprintf("phases failed: %v", names)
}
