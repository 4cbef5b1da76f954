// Package editor keeps a locally editable copy of a profile page and
// converges the server to it.
//
// A Store holds the working sequence and the profile fields. Every mutation
// also produces a new Delta recording which items were added locally and which
// server items were removed. The Reconciler replays a Delta against a Remote in
// a fixed order and the Editor wraps both with the single-save state machine.
package editor

import (
	"github.com/google/uuid"

	"linkpage/api/internal/validate"
)

type Kind string

const (
	KindLink    Kind = validate.KindLink
	KindHeader  Kind = validate.KindHeader
	KindDivider Kind = validate.KindDivider
)

// ItemID is either a client-minted local id, valid until the item is created
// on the server, or a permanent id assigned by the server.
type ItemID struct {
	value string
	local bool
}

func LocalID(value string) ItemID {
	return ItemID{value: value, local: true}
}

func RemoteID(value string) ItemID {
	return ItemID{value: value}
}

// NewLocalID mints a local id. Local ids are UUIDs so that an orphaned one
// still passes request validation and is dropped by the server's ownership
// check instead of failing the whole request.
func NewLocalID() ItemID {
	return LocalID(uuid.NewString())
}

func (id ItemID) IsLocal() bool {
	return id.local
}

func (id ItemID) IsZero() bool {
	return id.value == ""
}

// Value is the raw identifier as sent over the wire.
func (id ItemID) Value() string {
	return id.value
}

func (id ItemID) String() string {
	if id.local {
		return "local:" + id.value
	}
	return id.value
}

type Item struct {
	ID       ItemID
	Kind     Kind
	Title    string
	Target   string
	Position int
}

// Fields are the editable profile attributes.
type Fields struct {
	DisplayName string
	Bio         string
	AvatarURL   string
	Theme       string
}

const (
	FieldDisplayName = "displayName"
	FieldBio         = "bio"
	FieldAvatarURL   = "avatarUrl"
	FieldTheme       = "theme"
)

type Profile struct {
	ID   string
	Slug string
	Fields
}

// Snapshot is the authoritative server state: a profile and its items ordered
// by position.
type Snapshot struct {
	Profile Profile
	Items   []Item
}

// ItemDraft is what a create call carries.
type ItemDraft struct {
	Kind   Kind
	Title  string
	Target string
}

// Placement assigns a position to a server item.
type Placement struct {
	ID       string
	Position int
}

func cloneItems(items []Item) []Item {
	if items == nil {
		return []Item{}
	}
	out := make([]Item, len(items))
	copy(out, items)
	return out
}
