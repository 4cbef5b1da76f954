package editor

// Delta is the pending change set since the last sync. It is a value: every
// Record call returns a new Delta and leaves the receiver untouched.
//
// additions holds local items in insertion order. removals holds server ids in
// the order they were removed. An id never appears in both.
type Delta struct {
	additions []Item
	removals  []string
}

// RecordAddition appends a locally created item. Items with a server id are
// ignored since they already exist remotely.
func (d Delta) RecordAddition(item Item) Delta {
	if !item.ID.IsLocal() || item.ID.IsZero() || d.IsPending(item.ID) {
		return d
	}
	next := d.clone()
	next.additions = append(next.additions, item)
	return next
}

// RecordRemoval records that id was deleted from the working sequence. A
// pending local item is simply forgotten; it never reached the server.
func (d Delta) RecordRemoval(id ItemID) Delta {
	if id.IsZero() {
		return d
	}
	if id.IsLocal() {
		if !d.IsPending(id) {
			return d
		}
		next := d.clone()
		next.additions = next.additions[:0]
		for _, item := range d.additions {
			if item.ID != id {
				next.additions = append(next.additions, item)
			}
		}
		return next
	}
	if d.IsRemoved(id.Value()) {
		return d
	}
	next := d.clone()
	next.removals = append(next.removals, id.Value())
	return next
}

// Clear returns the empty delta.
func (d Delta) Clear() Delta {
	return Delta{}
}

func (d Delta) Additions() []Item {
	return cloneItems(d.additions)
}

func (d Delta) Removals() []string {
	out := make([]string, len(d.removals))
	copy(out, d.removals)
	return out
}

func (d Delta) IsPending(id ItemID) bool {
	for _, item := range d.additions {
		if item.ID == id {
			return true
		}
	}
	return false
}

func (d Delta) IsRemoved(remoteID string) bool {
	for _, removed := range d.removals {
		if removed == remoteID {
			return true
		}
	}
	return false
}

func (d Delta) IsEmpty() bool {
	return len(d.additions) == 0 && len(d.removals) == 0
}

func (d Delta) clone() Delta {
	next := Delta{
		additions: make([]Item, len(d.additions), len(d.additions)+1),
		removals:  make([]string, len(d.removals), len(d.removals)+1),
	}
	copy(next.additions, d.additions)
	copy(next.removals, d.removals)
	return next
}
